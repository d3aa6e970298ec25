package block

import "sync"

// Type - канонический идентификатор типа блока (без состояния экземпляра)
type Type string

// Properties описывает физические свойства типа блока, нужные для распознавания узлов
type Properties struct {
	Opaque    bool // Непрозрачный полный куб
	SolidTop  bool // Верхняя грань пригодна для опоры
	Container bool // Блок хранит данные (инвентарь и т.п.)
	Facing    bool // У блока есть горизонтальное направление
}

// Базовые типы блоков
const (
	Air         Type = "air"
	Stone       Type = "stone"
	Cobblestone Type = "cobblestone"
	Dirt        Type = "dirt"
	Grass       Type = "grass_block"
	Sand        Type = "sand"
	Planks      Type = "oak_planks"
	Glass       Type = "glass"
	Obsidian    Type = "obsidian"
	GoldBlock   Type = "gold_block"
	Diamond     Type = "diamond_block"
	Slab        Type = "stone_slab"
	Water       Type = "water"

	// Интерактивные блоки
	Chest   Type = "chest"
	Barrel  Type = "barrel"
	Furnace Type = "furnace"
	Lectern Type = "lectern"
	Stairs  Type = "oak_stairs"
)

var (
	mu       sync.RWMutex
	registry = make(map[Type]Properties)
)

func init() {
	solid := Properties{Opaque: true, SolidTop: true}
	for _, t := range []Type{Stone, Cobblestone, Dirt, Grass, Sand, Planks, Obsidian, GoldBlock, Diamond} {
		Register(t, solid)
	}

	Register(Air, Properties{})
	Register(Water, Properties{})
	Register(Glass, Properties{SolidTop: true})
	Register(Slab, Properties{SolidTop: true})
	Register(Stairs, Properties{SolidTop: true, Facing: true})
	Register(Chest, Properties{Container: true, Facing: true})
	Register(Barrel, Properties{Opaque: true, SolidTop: true, Container: true, Facing: true})
	Register(Furnace, Properties{Opaque: true, SolidTop: true, Container: true, Facing: true})
	Register(Lectern, Properties{Container: true, Facing: true})
}

// Register добавляет свойства типа блока в регистр
func Register(t Type, props Properties) {
	mu.Lock()
	defer mu.Unlock()
	registry[t] = props
}

// Get возвращает свойства для указанного типа
func Get(t Type) (Properties, bool) {
	mu.RLock()
	defer mu.RUnlock()
	props, exists := registry[t]
	return props, exists
}

// IsOpaque проверяет, является ли блок непрозрачным полным кубом
func IsOpaque(t Type) bool {
	props, _ := Get(t)
	return props.Opaque
}

// HasSolidTop проверяет, есть ли у блока опорная верхняя грань
func HasSolidTop(t Type) bool {
	props, _ := Get(t)
	return props.SolidTop
}

// IsContainer проверяет, хранит ли блок данные
func IsContainer(t Type) bool {
	props, _ := Get(t)
	return props.Container
}
