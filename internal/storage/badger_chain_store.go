package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/annel0/portalnet/internal/chain"
	"github.com/dgraph-io/badger/v3"
)

const badgerChainPrefix = "chain:"

// BadgerChainStore хранит каждую цепочку отдельным ключом chain:<id> в BadgerDB
type BadgerChainStore struct {
	db      *badger.DB
	dbPath  string
	codec   *recordCodec
	mutex   sync.RWMutex
	isReady bool
}

// NewBadgerChainStore открывает (или создаёт) базу в dataPath/chains
func NewBadgerChainStore(dataPath string, compress bool) (*BadgerChainStore, error) {
	dbPath := filepath.Join(dataPath, "chains")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	codec, err := newRecordCodec(compress)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BadgerChainStore{db: db, dbPath: dbPath, codec: codec, isReady: true}, nil
}

// Close закрывает хранилище данных
func (s *BadgerChainStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isReady {
		return nil
	}
	s.isReady = false
	s.codec.close()
	return s.db.Close()
}

// Load читает все цепочки
func (s *BadgerChainStore) Load(ctx context.Context) (chain.Document, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var doc chain.Document
	if !s.isReady {
		return doc, ErrClosed
	}

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(badgerChainPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				rec, err := s.codec.decode(val)
				if err != nil {
					return fmt.Errorf("ключ %s: %w", it.Item().Key(), err)
				}
				doc.Chains = append(doc.Chains, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return chain.Document{}, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}
	return doc, nil
}

// Save записывает цепочки и удаляет исчезнувшие в одной транзакции
func (s *BadgerChainStore) Save(ctx context.Context, doc chain.Document) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return ErrClosed
	}

	live := make(map[string][]byte, len(doc.Chains))
	for _, rec := range doc.Chains {
		data, err := s.codec.encode(rec)
		if err != nil {
			return err
		}
		live[badgerChainKey(rec.ID)] = data
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false})
		prefix := []byte(badgerChainPrefix)
		var stale [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if _, ok := live[string(key)]; !ok {
				stale = append(stale, key)
			}
		}
		it.Close()

		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		for key, data := range live {
			if err := txn.Set([]byte(key), data); err != nil {
				return err
			}
		}
		return ctx.Err()
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	return nil
}

func badgerChainKey(id int) string {
	return badgerChainPrefix + strconv.Itoa(id)
}
