package world

import (
	"github.com/annel0/portalnet/internal/vec"
	"github.com/google/uuid"
)

// EntityType - идентификатор типа сущности ("pig", "minecart", "player", ...)
type EntityType string

// PlayerType - тип сущности игрока
const PlayerType EntityType = "player"

// Entity - сущность мира хоста. Иерархия посадки (Vehicle/Passengers) принадлежит хосту:
// порядок пассажиров значим, первый пассажир управляет транспортом.
type Entity interface {
	ID() uuid.UUID
	Type() EntityType
	Position() vec.Vec3Float
	Yaw() float64
	IsPlayer() bool
	Vehicle() Entity
	Passengers() []Entity
}

// Player - сущность игрока. Игроков никогда не сериализуют: их перемещают как есть.
type Player interface {
	Entity
	Name() string
	Spectator() bool
}

// WalkPassengers обходит дерево пассажиров в глубину в порядке посадки, не заходя в игроков
func WalkPassengers(e Entity, visit func(Entity)) {
	for _, p := range e.Passengers() {
		if p.IsPlayer() {
			continue
		}
		visit(p)
		WalkPassengers(p, visit)
	}
}
