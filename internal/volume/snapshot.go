package volume

import (
	"errors"

	"github.com/annel0/portalnet/internal/vec"
	"github.com/annel0/portalnet/internal/world"
	"github.com/google/uuid"
)

var (
	// ErrEntitySave - сущность не удалось сериализовать при захвате
	ErrEntitySave = errors.New("entity serialization failed")
	// ErrEntityLoad - сущность не удалось воссоздать при восстановлении
	ErrEntityLoad = errors.New("entity load failed")
	// ErrSnapshotConsumed возвращается при повторном восстановлении снимка
	ErrSnapshotConsumed = errors.New("snapshot already restored")
)

// BlockRecord - блок в локальной системе источника
type BlockRecord struct {
	Offset  vec.Vec3
	State   world.BlockState // Повёрнуто в локальную систему
	Payload world.Payload    // Данные блока, если есть
}

// EntityRecord - сериализованная сущность верхнего уровня вместе с пассажирами
type EntityRecord struct {
	Offset  vec.Vec3Float // Относительно центра якоря, локально
	Yaw     float64       // Локальный угол
	Type    world.EntityType
	Payload world.Payload

	// Исходные идентификаторы дерева (корень, затем пассажиры-неигроки в глубину)
	tree []uuid.UUID
}

// PlayerRecord - живой игрок, которого переместят при восстановлении
type PlayerRecord struct {
	Offset vec.Vec3Float
	Yaw    float64
	Player world.Player
}

// RiderLink - игрок, сидевший на транспорте, и его исходное место в списке пассажиров
type RiderLink struct {
	Player world.Player
	Slot   int
}

// Snapshot - содержимое объёма. Восстанавливается ровно один раз.
type Snapshot struct {
	Policy   Policy
	Blocks   []BlockRecord
	Entities []EntityRecord
	Players  []PlayerRecord
	Riders   map[uuid.UUID][]RiderLink // Исходный id транспорта -> игроки

	Skipped  int // Сущности, пропущенные при захвате
	consumed bool
}

// Consumed сообщает, был ли снимок уже восстановлен
func (s *Snapshot) Consumed() bool { return s.consumed }

// Report - итог восстановления
type Report struct {
	Blocks   int `json:"blocks"`
	Entities int `json:"entities"`
	Players  int `json:"players"`
	Failed   int `json:"failed"`
}
