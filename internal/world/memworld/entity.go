package memworld

import (
	"github.com/annel0/portalnet/internal/vec"
	"github.com/annel0/portalnet/internal/world"
	"github.com/google/uuid"
)

// Ключи данных сущности, которыми тесты управляют сериализацией
const (
	KeyUnsaveable = "unsaveable" // SaveEntity завершится ошибкой
	KeyCorrupt    = "corrupt"    // LoadEntity завершится ошибкой
)

// Entity - сущность памяти. Реализует и world.Entity, и world.Player.
type Entity struct {
	id         uuid.UUID
	typ        world.EntityType
	name       string
	pos        vec.Vec3Float
	yaw        float64
	spectator  bool
	data       world.Payload
	vehicle    *Entity
	passengers []*Entity
	world      *World
}

// NewEntity создаёт сущность вне мира
func NewEntity(t world.EntityType, data world.Payload) *Entity {
	if data == nil {
		data = world.Payload{}
	}
	return &Entity{id: uuid.New(), typ: t, data: data}
}

// NewPlayer создаёт игрока вне мира
func NewPlayer(name string) *Entity {
	e := NewEntity(world.PlayerType, nil)
	e.name = name
	return e
}

func (e *Entity) ID() uuid.UUID           { return e.id }
func (e *Entity) Type() world.EntityType  { return e.typ }
func (e *Entity) Position() vec.Vec3Float { return e.pos }
func (e *Entity) Yaw() float64            { return e.yaw }
func (e *Entity) IsPlayer() bool          { return e.typ == world.PlayerType }
func (e *Entity) Name() string            { return e.name }
func (e *Entity) Spectator() bool         { return e.spectator }

// Data возвращает данные сущности
func (e *Entity) Data() world.Payload { return e.data }

// World возвращает мир, в котором находится сущность (nil, если вне мира)
func (e *Entity) World() *World { return e.world }

// SetSpectator переключает режим наблюдателя
func (e *Entity) SetSpectator(v bool) { e.spectator = v }

// Vehicle возвращает транспорт сущности
func (e *Entity) Vehicle() world.Entity {
	if e.vehicle == nil {
		return nil
	}
	return e.vehicle
}

// Passengers возвращает пассажиров в порядке посадки
func (e *Entity) Passengers() []world.Entity {
	out := make([]world.Entity, len(e.passengers))
	for i, p := range e.passengers {
		out[i] = p
	}
	return out
}

func (e *Entity) mount(vehicle *Entity) {
	e.dismount()
	e.vehicle = vehicle
	vehicle.passengers = append(vehicle.passengers, e)
}

func (e *Entity) dismount() {
	if e.vehicle == nil {
		return
	}
	ps := e.vehicle.passengers
	for i, p := range ps {
		if p == e {
			e.vehicle.passengers = append(ps[:i:i], ps[i+1:]...)
			break
		}
	}
	e.vehicle = nil
}
