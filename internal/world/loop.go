package world

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/portalnet/internal/logging"
)

// ErrLoopStopped возвращается, если поток симуляции уже остановлен
var ErrLoopStopped = errors.New("simulation loop stopped")

// Executor выполняет функции в потоке симуляции
type Executor interface {
	Execute(f func())
}

// Loop - единственный поток симуляции: все изменения мира и реестра происходят здесь.
// Задачи выполняются строго по очереди, между ними идут тики.
type Loop struct {
	tasks    chan func()
	tickRate time.Duration
	tick     atomic.Uint64
	overflow atomic.Uint64
	onTick   []func(tick uint64)
	done     chan struct{}
	stopOnce sync.Once
}

// NewLoop создаёт поток симуляции с буфером задач и частотой тиков (0 - без тиков)
func NewLoop(buffer int, tickRate time.Duration) *Loop {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Loop{
		tasks:    make(chan func(), buffer),
		tickRate: tickRate,
		done:     make(chan struct{}),
	}
}

// OnTick регистрирует обработчик тика. Вызывать до Run.
func (l *Loop) OnTick(f func(tick uint64)) {
	l.onTick = append(l.onTick, f)
}

// Tick возвращает номер текущего тика
func (l *Loop) Tick() uint64 {
	return l.tick.Load()
}

// Execute ставит задачу в очередь потока симуляции и не ждёт её выполнения.
// При полном буфере задача досылается из отдельной горутины, поэтому Execute
// можно вызывать из самого потока симуляции. Порядок таких задач не гарантируется.
func (l *Loop) Execute(f func()) {
	select {
	case <-l.done:
		logging.Warn("Loop: задача отброшена, поток симуляции остановлен")
		return
	case l.tasks <- f:
		return
	default:
	}

	l.overflow.Add(1)
	go func() {
		select {
		case <-l.done:
			logging.Warn("Loop: задача отброшена, поток симуляции остановлен")
		case l.tasks <- f:
		}
	}()
}

// Overflow возвращает число задач, отправленных в обход заполненного буфера
func (l *Loop) Overflow() uint64 {
	return l.overflow.Load()
}

// Call выполняет f в потоке симуляции и ждёт завершения
func (l *Loop) Call(ctx context.Context, f func()) error {
	finished := make(chan struct{})
	select {
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	case l.tasks <- func() { defer close(finished); f() }:
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run обрабатывает задачи и тики до отмены контекста
func (l *Loop) Run(ctx context.Context) {
	defer l.stop()

	var ticks <-chan time.Time
	if l.tickRate > 0 {
		ticker := time.NewTicker(l.tickRate)
		defer ticker.Stop()
		ticks = ticker.C
	}

	logging.Debug("Loop: поток симуляции запущен (tick=%s)", l.tickRate)
	for {
		select {
		case <-ctx.Done():
			logging.Debug("Loop: поток симуляции остановлен на тике %d", l.Tick())
			return
		case f := <-l.tasks:
			f()
		case <-ticks:
			n := l.tick.Add(1)
			for _, h := range l.onTick {
				h(n)
			}
		}
	}
}

func (l *Loop) stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// Done закрывается после остановки потока
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
