package storage

import (
	"context"
	"errors"

	"github.com/annel0/portalnet/internal/chain"
)

// ErrClosed возвращается при обращении к закрытому хранилищу
var ErrClosed = errors.New("chain store is closed")

// ChainStore определяет интерфейс сохранения реестра цепочек.
// Сохраняется документ целиком: индексы реестра восстанавливаются при загрузке.
type ChainStore interface {
	// Load загружает документ. Пустое хранилище - пустой документ без ошибки.
	Load(ctx context.Context) (chain.Document, error)

	// Save заменяет сохранённый документ новым
	Save(ctx context.Context, doc chain.Document) error

	// Close освобождает соединения
	Close() error
}

// LoadRegistry загружает документ и строит из него реестр
func LoadRegistry(ctx context.Context, store ChainStore) (*chain.Registry, error) {
	doc, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return chain.LoadDocument(doc)
}
