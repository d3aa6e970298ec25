package storage

import (
	"context"
	"fmt"

	"github.com/annel0/portalnet/internal/config"
	"github.com/annel0/portalnet/internal/logging"
)

// Open создаёт хранилище по конфигурации
func Open(ctx context.Context, cfg config.StorageConfig) (ChainStore, error) {
	switch cfg.Backend {
	case "", "memory":
		logging.Info("💾 Реестр цепочек хранится в памяти")
		return NewMemoryChainStore(), nil
	case "badger":
		logging.Info("💾 Реестр цепочек: BadgerDB (%s)", cfg.Path)
		return NewBadgerChainStore(cfg.Path, cfg.Compress)
	case "maria", "mysql":
		logging.Info("💾 Реестр цепочек: MariaDB")
		return NewMariaChainStore(ctx, cfg.MariaDSN)
	case "mongo":
		logging.Info("💾 Реестр цепочек: MongoDB (%s)", cfg.Mongo.URI)
		return NewMongoChainStore(ctx, MongoConfig{
			URI:        cfg.Mongo.URI,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
		})
	case "redis":
		rc := DefaultRedisConfig()
		if cfg.Redis.Addr != "" {
			rc.Addr = cfg.Redis.Addr
		}
		if cfg.Redis.KeyPrefix != "" {
			rc.KeyPrefix = cfg.Redis.KeyPrefix
		}
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		rc.Compress = cfg.Compress
		return NewRedisChainStore(ctx, rc)
	}
	return nil, fmt.Errorf("неизвестный бэкенд хранилища %q", cfg.Backend)
}
