package memworld

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/portalnet/internal/logging"
	"github.com/annel0/portalnet/internal/vec"
	"github.com/annel0/portalnet/internal/world"
)

var (
	// ErrUnknownWorld возвращается при загрузке чанка несуществующего мира
	ErrUnknownWorld = errors.New("unknown world")
	// ErrLoaderStopped возвращается ожидающим после остановки загрузчика
	ErrLoaderStopped = errors.New("chunk loader stopped")
)

// chunkKey - ключ чанка с учётом мира
type chunkKey struct {
	world world.ID
	chunk vec.Vec2
}

// ticketKey - ключ резервирования
type ticketKey struct {
	kind world.TicketKind
	chunkKey
}

// ticketState - счётчик постоянных резервирований и остаток TTL временных
type ticketState struct {
	count int
	ttl   int
}

// LoaderStats содержит статистику загрузчика
type LoaderStats struct {
	loads    atomic.Int64
	unloads  atomic.Int64
	failures atomic.Int64
}

// Loader - асинхронная подсистема загрузки чанков (реализует world.Residency).
// Запросы обрабатывает пул воркеров с искусственной задержкой загрузки.
type Loader struct {
	lookup      func(id world.ID) (*World, bool)
	loadDelay   time.Duration
	workerCount int

	mu       sync.Mutex
	pending  map[chunkKey][]chan error
	tickets  map[ticketKey]*ticketState
	failures map[chunkKey]error

	requests     chan chunkKey
	shutdownChan chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	stats        LoaderStats
}

// NewLoader создаёт загрузчик и запускает воркеров
func NewLoader(lookup func(id world.ID) (*World, bool), loadDelay time.Duration, workerCount int) *Loader {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}

	l := &Loader{
		lookup:       lookup,
		loadDelay:    loadDelay,
		workerCount:  workerCount,
		pending:      make(map[chunkKey][]chan error),
		tickets:      make(map[ticketKey]*ticketState),
		failures:     make(map[chunkKey]error),
		requests:     make(chan chunkKey, workerCount*16),
		shutdownChan: make(chan struct{}),
	}

	for i := 0; i < workerCount; i++ {
		l.wg.Add(1)
		go l.worker(i)
	}

	return l
}

// Stop останавливает воркеров и оповещает всех ожидающих
func (l *Loader) Stop() {
	l.stopOnce.Do(func() {
		close(l.shutdownChan)
		l.wg.Wait()

		l.mu.Lock()
		for key, waiters := range l.pending {
			for _, ch := range waiters {
				ch <- ErrLoaderStopped
				close(ch)
			}
			delete(l.pending, key)
		}
		l.mu.Unlock()
	})
}

// Load запрашивает загрузку чанка. Повторные запросы одного чанка объединяются.
func (l *Loader) Load(id world.ID, chunk vec.Vec2) <-chan error {
	ch := make(chan error, 1)

	w, ok := l.lookup(id)
	if !ok {
		ch <- fmt.Errorf("%w: %s", ErrUnknownWorld, id)
		close(ch)
		return ch
	}
	if w.chunkResident(chunk) {
		ch <- nil
		close(ch)
		return ch
	}

	key := chunkKey{world: id, chunk: chunk}

	l.mu.Lock()
	select {
	case <-l.shutdownChan:
		l.mu.Unlock()
		ch <- ErrLoaderStopped
		close(ch)
		return ch
	default:
	}
	waiters, inFlight := l.pending[key]
	l.pending[key] = append(waiters, ch)
	l.mu.Unlock()

	if !inFlight {
		go l.enqueue(key)
	}
	return ch
}

func (l *Loader) enqueue(key chunkKey) {
	select {
	case <-l.shutdownChan:
	case l.requests <- key:
	}
}

// AddTicket резервирует чанк. Временные (TTL > 0) продлеваются до большего TTL.
func (l *Loader) AddTicket(t world.Ticket) {
	key := ticketKey{kind: t.Kind, chunkKey: chunkKey{world: t.World, chunk: t.Chunk}}

	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.tickets[key]
	if !ok {
		state = &ticketState{}
		l.tickets[key] = state
	}
	if t.TTL > 0 {
		state.ttl = max(state.ttl, t.TTL)
	} else {
		state.count++
	}
}

// RemoveTicket снимает постоянное резервирование
func (l *Loader) RemoveTicket(t world.Ticket) {
	key := ticketKey{kind: t.Kind, chunkKey: chunkKey{world: t.World, chunk: t.Chunk}}

	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.tickets[key]
	if !ok {
		return
	}
	if state.count > 0 {
		state.count--
	}
	if state.count == 0 && state.ttl == 0 {
		delete(l.tickets, key)
	}
}

// Ticketed проверяет, есть ли на чанке хоть одно резервирование
func (l *Loader) Ticketed(id world.ID, chunk vec.Vec2) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ticketedLocked(chunkKey{world: id, chunk: chunk})
}

// TicketCount возвращает число резервирований указанного вида на чанке
func (l *Loader) TicketCount(kind world.TicketKind, id world.ID, chunk vec.Vec2) (count, ttl int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if state, ok := l.tickets[ticketKey{kind: kind, chunkKey: chunkKey{world: id, chunk: chunk}}]; ok {
		return state.count, state.ttl
	}
	return 0, 0
}

func (l *Loader) ticketedLocked(key chunkKey) bool {
	for tk := range l.tickets {
		if tk.chunkKey == key {
			return true
		}
	}
	return false
}

// Tick уменьшает TTL временных резервирований и удаляет истёкшие
func (l *Loader) Tick(uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, state := range l.tickets {
		if state.ttl > 0 {
			state.ttl--
		}
		if state.ttl == 0 && state.count == 0 {
			delete(l.tickets, key)
		}
	}
}

// Unload выгружает чанк, если он не зарезервирован
func (l *Loader) Unload(id world.ID, chunk vec.Vec2) bool {
	w, ok := l.lookup(id)
	if !ok {
		return false
	}

	l.mu.Lock()
	ticketed := l.ticketedLocked(chunkKey{world: id, chunk: chunk})
	l.mu.Unlock()
	if ticketed {
		return false
	}

	if w.setResident(chunk, false) {
		l.stats.unloads.Add(1)
	}
	return true
}

// UnloadIdle выгружает все незарезервированные чанки мира
func (l *Loader) UnloadIdle(id world.ID) int {
	w, ok := l.lookup(id)
	if !ok {
		return 0
	}

	unloaded := 0
	for _, chunk := range w.residentChunks() {
		l.mu.Lock()
		ticketed := l.ticketedLocked(chunkKey{world: id, chunk: chunk})
		l.mu.Unlock()
		if !ticketed && w.setResident(chunk, false) {
			unloaded++
		}
	}
	l.stats.unloads.Add(int64(unloaded))
	return unloaded
}

// InjectFailure заставляет следующую загрузку чанка завершиться ошибкой
func (l *Loader) InjectFailure(id world.ID, chunk vec.Vec2, err error) {
	l.mu.Lock()
	l.failures[chunkKey{world: id, chunk: chunk}] = err
	l.mu.Unlock()
}

// GetStats возвращает статистику загрузчика
func (l *Loader) GetStats() string {
	l.mu.Lock()
	tickets := len(l.tickets)
	pending := len(l.pending)
	l.mu.Unlock()

	return fmt.Sprintf("Loader: %d loads, %d unloads, %d failures, %d tickets, %d pending",
		l.stats.loads.Load(), l.stats.unloads.Load(), l.stats.failures.Load(), tickets, pending)
}

// worker обрабатывает запросы загрузки
func (l *Loader) worker(id int) {
	defer l.wg.Done()

	for {
		select {
		case <-l.shutdownChan:
			return
		case key := <-l.requests:
			l.load(id, key)
		}
	}
}

// load выполняет одну загрузку и оповещает ожидающих
func (l *Loader) load(workerID int, key chunkKey) {
	if l.loadDelay > 0 {
		select {
		case <-l.shutdownChan:
			return
		case <-time.After(l.loadDelay):
		}
	}

	l.mu.Lock()
	err, failed := l.failures[key]
	delete(l.failures, key)
	l.mu.Unlock()

	if !failed {
		if w, ok := l.lookup(key.world); ok {
			w.setResident(key.chunk, true)
			l.stats.loads.Add(1)
		} else {
			err = fmt.Errorf("%w: %s", ErrUnknownWorld, key.world)
		}
	}
	if err != nil {
		l.stats.failures.Add(1)
		logging.Warn("Loader[%d]: чанк %s%v не загружен: %v", workerID, key.world, key.chunk, err)
	}

	l.mu.Lock()
	waiters := l.pending[key]
	delete(l.pending, key)
	l.mu.Unlock()

	for _, ch := range waiters {
		ch <- err
		close(ch)
	}
}
