package storage

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/annel0/portalnet/internal/chain"
)

// MemoryChainStore хранит документ в памяти (для тестов и режима без сохранения)
type MemoryChainStore struct {
	mu     sync.RWMutex
	data   []byte
	saves  int
	closed bool
}

// NewMemoryChainStore создаёт пустое хранилище
func NewMemoryChainStore() *MemoryChainStore {
	return &MemoryChainStore{}
}

// Load возвращает копию сохранённого документа
func (s *MemoryChainStore) Load(ctx context.Context) (chain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc chain.Document
	if s.closed {
		return doc, ErrClosed
	}
	if s.data == nil {
		return doc, nil
	}
	// Копия через JSON, чтобы вызывающий не разделял срезы с хранилищем
	err := json.Unmarshal(s.data, &doc)
	return doc, err
}

// Save заменяет документ
func (s *MemoryChainStore) Save(ctx context.Context, doc chain.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.data = data
	s.saves++
	return nil
}

// Saves возвращает число сохранений
func (s *MemoryChainStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Close закрывает хранилище
func (s *MemoryChainStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
