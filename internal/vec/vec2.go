package vec

// Vec2 представляет 2D координаты (для колонок чанков: X и Z мира)
type Vec2 struct {
	X, Y int
}

// ChunkOf возвращает координаты колонки чанка, содержащей мировую точку (x, z)
func ChunkOf(x, z int) Vec2 {
	return Vec2{X: x >> 4, Y: z >> 4} // Деление на 16 с округлением вниз
}

// LocalInChunk возвращает локальные координаты внутри чанка
func (v Vec2) LocalInChunk() Vec2 {
	return Vec2{X: v.X & 0xF, Y: v.Y & 0xF} // Модуль 16
}
