package world

import (
	"github.com/annel0/portalnet/internal/vec"
)

// ID - идентификатор измерения/мира ("overworld", "nether", ...)
type ID string

// World - доступ к одному миру хоста. Все методы вызываются только из потока симуляции.
type World interface {
	ID() ID

	// Block возвращает состояние блока. Для незагруженных чанков - воздух.
	Block(pos vec.Vec3) BlockState
	// SetBlock записывает состояние, уведомляя слушателей хоста
	SetBlock(pos vec.Vec3, state BlockState)
	// BlockEntity возвращает данные блока (инвентарь и т.п.), если они есть
	BlockEntity(pos vec.Vec3) (Payload, bool)
	// SetBlockEntity загружает данные в блок; ошибка, если блок не хранит данных
	SetBlockEntity(pos vec.Vec3, data Payload) error
	// ClearBlockEntity опустошает содержимое блока без выпадения предметов
	ClearBlockEntity(pos vec.Vec3)
	// IsResident сообщает, загружен ли чанк с этим блоком
	IsResident(pos vec.Vec3) bool

	// EntitiesIn возвращает сущности (кроме наблюдателей), лежащие строго внутри бокса
	EntitiesIn(box vec.FloatBox) []Entity
	// Persistable сообщает, можно ли сохранить и воссоздать сущность этого типа
	Persistable(t EntityType) bool
	// SaveEntity сериализует сущность вместе с пассажирами, кроме игроков
	SaveEntity(e Entity) (Payload, error)
	// LoadEntity создаёт (но не добавляет в мир) сущность и её пассажиров с новыми идентификаторами
	LoadEntity(t EntityType, data Payload) (Entity, error)
	// SpawnEntity добавляет сущность и её пассажиров в мир
	SpawnEntity(e Entity, pos vec.Vec3Float, yaw float64) error
	// RemoveEntity удаляет сущность вместе с пассажирами-неигроками
	RemoveEntity(e Entity)

	// Mount сажает пассажира в конец списка пассажиров транспорта
	Mount(passenger, vehicle Entity) error
	// Dismount снимает сущность с транспорта
	Dismount(e Entity)
}

// Universe - набор миров одного процесса
type Universe interface {
	// World возвращает мир по идентификатору; false, если мир недоступен
	World(id ID) (World, bool)
	// TeleportPlayer переносит живого игрока (в том числе между мирами)
	TeleportPlayer(p Player, to World, pos vec.Vec3Float, yaw float64) error
	// Residency возвращает подсистему загрузки чанков
	Residency() Residency
}
