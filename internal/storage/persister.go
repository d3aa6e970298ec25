package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/portalnet/internal/chain"
	"github.com/annel0/portalnet/internal/logging"
)

// Persister сохраняет документы реестра в фоне, не блокируя поток симуляции.
// Сохраняется только последний отправленный документ.
type Persister struct {
	store   ChainStore
	timeout time.Duration

	mu      sync.Mutex
	latest  *chain.Document
	version uint64
	saved   uint64
	cond    *sync.Cond

	wake     chan struct{}
	shutdown chan struct{}
	wg       sync.WaitGroup
	failures atomic.Int64
}

// NewPersister запускает фоновую запись
func NewPersister(store ChainStore, timeout time.Duration) *Persister {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	p := &Persister{
		store:    store,
		timeout:  timeout,
		wake:     make(chan struct{}, 1),
		shutdown: make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(1)
	go p.flusher()
	return p
}

// Submit ставит документ в очередь на запись, заменяя ещё не записанный
func (p *Persister) Submit(doc chain.Document) {
	p.mu.Lock()
	p.latest = &doc
	p.version++
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Flush ждёт, пока будет записан последний отправленный документ
func (p *Persister) Flush(ctx context.Context) error {
	p.mu.Lock()
	target := p.version
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.mu.Lock()
		for p.saved < target {
			p.cond.Wait()
		}
		p.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Failures возвращает число неудачных записей
func (p *Persister) Failures() int64 {
	return p.failures.Load()
}

// Close записывает остаток и останавливает фоновую запись
func (p *Persister) Close() {
	close(p.shutdown)
	p.wg.Wait()
}

func (p *Persister) flusher() {
	defer p.wg.Done()

	for {
		select {
		case <-p.shutdown:
			p.flush()
			return
		case <-p.wake:
			p.flush()
		}
	}
}

func (p *Persister) flush() {
	p.mu.Lock()
	doc, version := p.latest, p.version
	p.latest = nil
	p.mu.Unlock()

	if doc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if err := p.store.Save(ctx, *doc); err != nil {
			p.failures.Add(1)
			logging.Error("Persister: ошибка сохранения реестра (%d цепочек): %v", len(doc.Chains), err)
		}
		cancel()
	}

	p.mu.Lock()
	if version > p.saved {
		p.saved = version
	}
	p.cond.Broadcast()
	p.mu.Unlock()
}
