package memworld

import (
	"github.com/annel0/portalnet/internal/vec"
	"github.com/annel0/portalnet/internal/world"
)

// Chunk хранит изменения колонки 16x16 поверх сгенерированной местности
type Chunk struct {
	Coords        vec.Vec2                       // Координаты колонки
	Blocks        map[vec.Vec3]world.BlockState  // Изменённые блоки (мировые координаты)
	BlockEntities map[vec.Vec3]world.Payload     // Данные блоков-контейнеров
	ChangeCounter int                            // Счетчик изменений
}

// NewChunk создаёт пустой чанк с указанными координатами
func NewChunk(coords vec.Vec2) *Chunk {
	return &Chunk{
		Coords:        coords,
		Blocks:        make(map[vec.Vec3]world.BlockState),
		BlockEntities: make(map[vec.Vec3]world.Payload),
	}
}

// Block возвращает изменённый блок, если он есть
func (c *Chunk) Block(pos vec.Vec3) (world.BlockState, bool) {
	state, ok := c.Blocks[pos]
	return state, ok
}

// SetBlock записывает блок и сбрасывает данные, если блок их не хранит
func (c *Chunk) SetBlock(pos vec.Vec3, state world.BlockState, container bool) {
	c.Blocks[pos] = state
	if !container {
		delete(c.BlockEntities, pos)
	} else if _, ok := c.BlockEntities[pos]; !ok {
		c.BlockEntities[pos] = world.Payload{}
	}
	c.ChangeCounter++
}
