package memworld

import (
	"errors"
	"fmt"
	"sync"

	"github.com/annel0/portalnet/internal/vec"
	"github.com/annel0/portalnet/internal/world"
	"github.com/annel0/portalnet/internal/world/block"
	"github.com/google/uuid"
)

var (
	// ErrNotContainer возвращается при записи данных в блок, который их не хранит
	ErrNotContainer = errors.New("block has no block entity")
	// ErrForeignEntity возвращается для сущностей другой реализации
	ErrForeignEntity = errors.New("entity does not belong to this host")
	// ErrNotPersistable возвращается для типов, которые нельзя сохранить
	ErrNotPersistable = errors.New("entity type is not persistable")
	// ErrEntitySave - отказ сериализации сущности
	ErrEntitySave = errors.New("entity refused to save")
	// ErrEntityCorrupt - отказ восстановления сущности
	ErrEntityCorrupt = errors.New("entity data is corrupt")
)

// BlockListener получает уведомления об изменении блоков
type BlockListener func(pos vec.Vec3, old, new world.BlockState)

// World - мир в памяти: сгенерированная местность плюс изменения по чанкам
type World struct {
	id        world.ID
	generator Generator

	mu             sync.RWMutex
	chunks         map[vec.Vec2]*Chunk
	resident       map[vec.Vec2]bool
	entities       map[uuid.UUID]*Entity
	nonPersistable map[world.EntityType]bool
	listeners      []BlockListener
}

var _ world.World = (*World)(nil)

// NewWorld создаёт пустой мир с указанным генератором
func NewWorld(id world.ID, gen Generator) *World {
	if gen == nil {
		gen = VoidGenerator{}
	}
	return &World{
		id:             id,
		generator:      gen,
		chunks:         make(map[vec.Vec2]*Chunk),
		resident:       make(map[vec.Vec2]bool),
		entities:       make(map[uuid.UUID]*Entity),
		nonPersistable: map[world.EntityType]bool{world.PlayerType: true},
	}
}

// ID возвращает идентификатор мира
func (w *World) ID() world.ID { return w.id }

// OnBlockChange регистрирует слушателя изменений блоков
func (w *World) OnBlockChange(l BlockListener) {
	w.mu.Lock()
	w.listeners = append(w.listeners, l)
	w.mu.Unlock()
}

// SetPersistable разрешает или запрещает сохранение типа сущности
func (w *World) SetPersistable(t world.EntityType, v bool) {
	w.mu.Lock()
	w.nonPersistable[t] = !v
	w.mu.Unlock()
}

// Persistable сообщает, можно ли сохранить сущность этого типа
func (w *World) Persistable(t world.EntityType) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return t != world.PlayerType && !w.nonPersistable[t]
}

// Чанки

func (w *World) chunkResident(c vec.Vec2) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.resident[c]
}

// setResident меняет статус чанка; true, если статус изменился
func (w *World) setResident(c vec.Vec2, v bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.resident[c] == v {
		return false
	}
	if v {
		w.resident[c] = true
	} else {
		delete(w.resident, c)
	}
	return true
}

func (w *World) residentChunks() []vec.Vec2 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]vec.Vec2, 0, len(w.resident))
	for c := range w.resident {
		out = append(out, c)
	}
	return out
}

// IsResident сообщает, загружен ли чанк с этим блоком
func (w *World) IsResident(pos vec.Vec3) bool {
	return w.chunkResident(vec.ChunkOf(pos.X, pos.Z))
}

// Block возвращает состояние блока; для незагруженных чанков - воздух
func (w *World) Block(pos vec.Vec3) world.BlockState {
	c := vec.ChunkOf(pos.X, pos.Z)

	w.mu.RLock()
	resident := w.resident[c]
	chunk := w.chunks[c]
	var (
		state world.BlockState
		ok    bool
	)
	if chunk != nil {
		state, ok = chunk.Block(pos)
	}
	w.mu.RUnlock()

	if !resident {
		return world.AirState
	}
	if ok {
		return state
	}
	return w.generator.BlockAt(pos)
}

// SetBlock записывает блок. Чанк при этом становится загруженным.
func (w *World) SetBlock(pos vec.Vec3, state world.BlockState) {
	old := w.Block(pos)
	c := vec.ChunkOf(pos.X, pos.Z)
	props, _ := block.Get(state.Type)

	w.mu.Lock()
	chunk, ok := w.chunks[c]
	if !ok {
		chunk = NewChunk(c)
		w.chunks[c] = chunk
	}
	chunk.SetBlock(pos, state, props.Container)
	w.resident[c] = true
	listeners := w.listeners
	w.mu.Unlock()

	for _, l := range listeners {
		l(pos, old, state)
	}
}

// BlockEntity возвращает копию данных блока
func (w *World) BlockEntity(pos vec.Vec3) (world.Payload, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	chunk, ok := w.chunks[vec.ChunkOf(pos.X, pos.Z)]
	if !ok {
		return nil, false
	}
	data, ok := chunk.BlockEntities[pos]
	if !ok {
		return nil, false
	}
	return data.Clone(), true
}

// SetBlockEntity загружает данные в блок-контейнер
func (w *World) SetBlockEntity(pos vec.Vec3, data world.Payload) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	chunk, ok := w.chunks[vec.ChunkOf(pos.X, pos.Z)]
	if !ok {
		return fmt.Errorf("%w at %v", ErrNotContainer, pos)
	}
	if _, ok := chunk.BlockEntities[pos]; !ok {
		return fmt.Errorf("%w at %v", ErrNotContainer, pos)
	}
	chunk.BlockEntities[pos] = data.Clone()
	return nil
}

// ClearBlockEntity опустошает содержимое блока
func (w *World) ClearBlockEntity(pos vec.Vec3) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if chunk, ok := w.chunks[vec.ChunkOf(pos.X, pos.Z)]; ok {
		if _, ok := chunk.BlockEntities[pos]; ok {
			chunk.BlockEntities[pos] = world.Payload{}
		}
	}
}

// Сущности

// Entity возвращает сущность мира по идентификатору
func (w *World) Entity(id uuid.UUID) (*Entity, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.entities[id]
	return e, ok
}

// Entities возвращает все сущности мира
func (w *World) Entities() []*Entity {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*Entity, 0, len(w.entities))
	for _, e := range w.entities {
		out = append(out, e)
	}
	return out
}

// EntitiesIn возвращает сущности (кроме наблюдателей) строго внутри бокса
func (w *World) EntitiesIn(box vec.FloatBox) []world.Entity {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var out []world.Entity
	for _, e := range w.entities {
		if e.spectator {
			continue
		}
		if box.ContainsStrict(e.pos) {
			out = append(out, e)
		}
	}
	return out
}

// SaveEntity сериализует сущность и её пассажиров-неигроков
func (w *World) SaveEntity(we world.Entity) (world.Payload, error) {
	e, ok := we.(*Entity)
	if !ok {
		return nil, ErrForeignEntity
	}
	if !w.Persistable(e.typ) {
		return nil, fmt.Errorf("%w: %s", ErrNotPersistable, e.typ)
	}
	if v, _ := e.data[KeyUnsaveable].(bool); v {
		return nil, fmt.Errorf("%w: %s", ErrEntitySave, e.id)
	}

	passengers := make([]interface{}, 0, len(e.passengers))
	for _, p := range e.passengers {
		if p.IsPlayer() {
			continue
		}
		data, err := w.SaveEntity(p)
		if err != nil {
			return nil, err
		}
		passengers = append(passengers, data)
	}

	return world.Payload{
		"type":       string(e.typ),
		"data":       e.data.Clone(),
		"passengers": passengers,
	}, nil
}

// LoadEntity создаёт сущность с пассажирами по данным SaveEntity, не добавляя в мир
func (w *World) LoadEntity(t world.EntityType, data world.Payload) (world.Entity, error) {
	e, err := w.loadEntity(t, data)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (w *World) loadEntity(t world.EntityType, data world.Payload) (*Entity, error) {
	if !w.Persistable(t) {
		return nil, fmt.Errorf("%w: %s", ErrNotPersistable, t)
	}

	own, _ := data["data"].(world.Payload)
	if own == nil {
		if m, ok := data["data"].(map[string]interface{}); ok {
			own = world.Payload(m)
		}
	}
	if v, _ := own[KeyCorrupt].(bool); v {
		return nil, fmt.Errorf("%w: %s", ErrEntityCorrupt, t)
	}

	e := NewEntity(t, own.Clone())
	passengers, _ := data["passengers"].([]interface{})
	for _, raw := range passengers {
		pd, ok := raw.(world.Payload)
		if !ok {
			m, isMap := raw.(map[string]interface{})
			if !isMap {
				return nil, fmt.Errorf("%w: passenger of %s", ErrEntityCorrupt, t)
			}
			pd = world.Payload(m)
		}
		pt, _ := pd["type"].(string)
		p, err := w.loadEntity(world.EntityType(pt), pd)
		if err != nil {
			return nil, err
		}
		p.mount(e)
	}
	return e, nil
}

// SpawnEntity добавляет сущность и её пассажиров в мир в указанной точке
func (w *World) SpawnEntity(we world.Entity, pos vec.Vec3Float, yaw float64) error {
	e, ok := we.(*Entity)
	if !ok {
		return ErrForeignEntity
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.spawnLocked(e, pos, yaw)
	return nil
}

func (w *World) spawnLocked(e *Entity, pos vec.Vec3Float, yaw float64) {
	if e.world != nil && e.world != w {
		e.world.detach(e)
	}
	e.pos = pos
	e.yaw = yaw
	e.world = w
	w.entities[e.id] = e
	for _, p := range e.passengers {
		if !p.IsPlayer() {
			w.spawnLocked(p, pos, yaw)
		}
	}
}

// AddEntity добавляет сущность в мир (удобство для установки сцены)
func (w *World) AddEntity(e *Entity, pos vec.Vec3Float, yaw float64) *Entity {
	_ = w.SpawnEntity(e, pos, yaw)
	return e
}

// RemoveEntity удаляет сущность вместе с пассажирами-неигроками
func (w *World) RemoveEntity(we world.Entity) {
	e, ok := we.(*Entity)
	if !ok {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.removeLocked(e)
	e.dismount()
}

func (w *World) removeLocked(e *Entity) {
	delete(w.entities, e.id)
	e.world = nil
	for _, p := range append([]*Entity(nil), e.passengers...) {
		if p.IsPlayer() {
			p.dismount()
			continue
		}
		w.removeLocked(p)
	}
}

// detach убирает сущность из карты мира, не трогая посадку
func (w *World) detach(e *Entity) {
	w.mu.Lock()
	delete(w.entities, e.id)
	w.mu.Unlock()
}

// Mount сажает пассажира в конец списка пассажиров транспорта
func (w *World) Mount(passenger, vehicle world.Entity) error {
	p, ok := passenger.(*Entity)
	if !ok {
		return ErrForeignEntity
	}
	v, ok := vehicle.(*Entity)
	if !ok {
		return ErrForeignEntity
	}
	if p == v {
		return fmt.Errorf("entity %s cannot ride itself", p.id)
	}

	w.mu.Lock()
	p.mount(v)
	w.mu.Unlock()
	return nil
}

// Dismount снимает сущность с транспорта
func (w *World) Dismount(we world.Entity) {
	if e, ok := we.(*Entity); ok {
		w.mu.Lock()
		e.dismount()
		w.mu.Unlock()
	}
}
