package storage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/annel0/portalnet/internal/chain"
	"github.com/annel0/portalnet/internal/logging"
	"github.com/go-redis/redis/v8"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string // Адрес Redis сервера
	Password  string // Пароль (пустой если не требуется)
	DB        int    // Номер базы данных
	KeyPrefix string // Префикс для ключей
	Compress  bool   // Сжимать записи zstd
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "portal:",
		Compress:  true,
	}
}

// RedisChainStore хранит цепочки в хеше <prefix>chains: поле - id цепочки
type RedisChainStore struct {
	client *redis.Client
	key    string
	codec  *recordCodec
}

// NewRedisChainStore создаёт хранилище и проверяет подключение
func NewRedisChainStore(ctx context.Context, config *RedisConfig) (*RedisChainStore, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	// Проверяем подключение
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	codec, err := newRecordCodec(config.Compress)
	if err != nil {
		client.Close()
		return nil, err
	}

	logging.Info("🔴 Connected to Redis at %s", config.Addr)
	return &RedisChainStore{client: client, key: config.KeyPrefix + "chains", codec: codec}, nil
}

// Load читает все поля хеша
func (s *RedisChainStore) Load(ctx context.Context) (chain.Document, error) {
	var doc chain.Document

	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return doc, fmt.Errorf("redis hgetall %s: %w", s.key, err)
	}
	for field, raw := range fields {
		rec, err := s.codec.decode([]byte(raw))
		if err != nil {
			return chain.Document{}, fmt.Errorf("поле %s: %w", field, err)
		}
		doc.Chains = append(doc.Chains, rec)
	}
	return doc, nil
}

// Save атомарно заменяет хеш
func (s *RedisChainStore) Save(ctx context.Context, doc chain.Document) error {
	values := make(map[string]interface{}, len(doc.Chains))
	for _, rec := range doc.Chains {
		data, err := s.codec.encode(rec)
		if err != nil {
			return err
		}
		values[strconv.Itoa(rec.ID)] = data
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(values) > 0 {
			pipe.HSet(ctx, s.key, values)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save %s: %w", s.key, err)
	}
	return nil
}

// Close закрывает клиент
func (s *RedisChainStore) Close() error {
	s.codec.close()
	return s.client.Close()
}
