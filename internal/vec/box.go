package vec

// Box - выровненный по осям параллелепипед в блочных координатах.
// Обе границы включительные: Box{Min: p, Max: p} занимает ровно один блок.
type Box struct {
	Min Vec3 `json:"min"`
	Max Vec3 `json:"max"`
}

// BoxOf строит Box по двум произвольным углам
func BoxOf(a, b Vec3) Box {
	return Box{
		Min: Vec3{X: min(a.X, b.X), Y: min(a.Y, b.Y), Z: min(a.Z, b.Z)},
		Max: Vec3{X: max(a.X, b.X), Y: max(a.Y, b.Y), Z: max(a.Z, b.Z)},
	}
}

// Intersects проверяет пересечение двух боксов (касание гранями считается пересечением)
func (b Box) Intersects(other Box) bool {
	return b.Min.X <= other.Max.X && other.Min.X <= b.Max.X &&
		b.Min.Y <= other.Max.Y && other.Min.Y <= b.Max.Y &&
		b.Min.Z <= other.Max.Z && other.Min.Z <= b.Max.Z
}

// Contains проверяет, лежит ли блок внутри бокса
func (b Box) Contains(p Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Expand расширяет бокс на n блоков по горизонтали и вертикали
func (b Box) Expand(horizontal, vertical int) Box {
	return Box{
		Min: Vec3{X: b.Min.X - horizontal, Y: b.Min.Y - vertical, Z: b.Min.Z - horizontal},
		Max: Vec3{X: b.Max.X + horizontal, Y: b.Max.Y + vertical, Z: b.Max.Z + horizontal},
	}
}

// Chunks возвращает все колонки чанков, которые задевает бокс
func (b Box) Chunks() []Vec2 {
	lo := ChunkOf(b.Min.X, b.Min.Z)
	hi := ChunkOf(b.Max.X, b.Max.Z)

	chunks := make([]Vec2, 0, (hi.X-lo.X+1)*(hi.Y-lo.Y+1))
	for cx := lo.X; cx <= hi.X; cx++ {
		for cz := lo.Y; cz <= hi.Y; cz++ {
			chunks = append(chunks, Vec2{X: cx, Y: cz})
		}
	}
	return chunks
}

// FloatBox - бокс с плавающими границами, используется для выборки сущностей
type FloatBox struct {
	Min Vec3Float
	Max Vec3Float
}

// ToFloatBox возвращает объём, занимаемый блоками бокса, в мировых координатах
func (b Box) ToFloatBox() FloatBox {
	return FloatBox{
		Min: b.Min.ToFloat(),
		Max: Vec3Float{X: float64(b.Max.X + 1), Y: float64(b.Max.Y + 1), Z: float64(b.Max.Z + 1)},
	}
}

// ContainsStrict проверяет, лежит ли точка строго внутри бокса
func (b FloatBox) ContainsStrict(p Vec3Float) bool {
	return p.X > b.Min.X && p.X < b.Max.X &&
		p.Y > b.Min.Y && p.Y < b.Max.Y &&
		p.Z > b.Min.Z && p.Z < b.Max.Z
}
