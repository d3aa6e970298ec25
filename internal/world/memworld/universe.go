package memworld

import (
	"fmt"
	"sync"
	"time"

	"github.com/annel0/portalnet/internal/logging"
	"github.com/annel0/portalnet/internal/vec"
	"github.com/annel0/portalnet/internal/world"
)

// Universe - набор миров в памяти с общим загрузчиком чанков
type Universe struct {
	mu     sync.RWMutex
	worlds map[world.ID]*World
	loader *Loader
}

var _ world.Universe = (*Universe)(nil)

// NewUniverse создаёт вселенную; loadDelay имитирует время загрузки чанка
func NewUniverse(loadDelay time.Duration, workers int) *Universe {
	u := &Universe{worlds: make(map[world.ID]*World)}
	u.loader = NewLoader(u.lookup, loadDelay, workers)
	return u
}

func (u *Universe) lookup(id world.ID) (*World, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	w, ok := u.worlds[id]
	return w, ok
}

// AddWorld регистрирует мир
func (u *Universe) AddWorld(w *World) *World {
	u.mu.Lock()
	u.worlds[w.ID()] = w
	u.mu.Unlock()
	logging.Debug("Universe: мир %s добавлен", w.ID())
	return w
}

// RemoveWorld снимает мир с регистрации
func (u *Universe) RemoveWorld(id world.ID) {
	u.mu.Lock()
	delete(u.worlds, id)
	u.mu.Unlock()
}

// World возвращает мир по идентификатору
func (u *Universe) World(id world.ID) (world.World, bool) {
	w, ok := u.lookup(id)
	if !ok {
		return nil, false
	}
	return w, true
}

// MemWorld возвращает конкретный мир памяти
func (u *Universe) MemWorld(id world.ID) (*World, bool) {
	return u.lookup(id)
}

// Worlds возвращает идентификаторы всех миров
func (u *Universe) Worlds() []world.ID {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]world.ID, 0, len(u.worlds))
	for id := range u.worlds {
		out = append(out, id)
	}
	return out
}

// Residency возвращает загрузчик чанков
func (u *Universe) Residency() world.Residency { return u.loader }

// Loader возвращает конкретный загрузчик
func (u *Universe) Loader() *Loader { return u.loader }

// Tick продвигает TTL резервирований
func (u *Universe) Tick(tick uint64) { u.loader.Tick(tick) }

// Stop останавливает загрузчик
func (u *Universe) Stop() { u.loader.Stop() }

// TeleportPlayer переносит игрока, в том числе между мирами
func (u *Universe) TeleportPlayer(p world.Player, to world.World, pos vec.Vec3Float, yaw float64) error {
	e, ok := p.(*Entity)
	if !ok {
		return ErrForeignEntity
	}
	dst, ok := to.(*World)
	if !ok {
		return ErrForeignEntity
	}
	if _, known := u.lookup(dst.ID()); !known {
		return fmt.Errorf("%w: %s", ErrUnknownWorld, dst.ID())
	}

	if e.world != nil && e.world != dst {
		e.world.detach(e)
	}
	dst.mu.Lock()
	e.pos = pos
	e.yaw = yaw
	e.world = dst
	dst.entities[e.id] = e
	dst.mu.Unlock()
	return nil
}

// WorldOf возвращает мир, в котором находится сущность
func (u *Universe) WorldOf(we world.Entity) (world.ID, bool) {
	e, ok := we.(*Entity)
	if !ok || e.world == nil {
		return "", false
	}
	return e.world.ID(), true
}
