package pattern

import (
	"strings"

	"github.com/annel0/portalnet/internal/orient"
	"github.com/annel0/portalnet/internal/vec"
	"github.com/annel0/portalnet/internal/world"
	"github.com/annel0/portalnet/internal/world/block"
)

// Size - число клеток основания узла (3x3)
const Size = 9

// Pattern - типы блоков основания в локальной системе узла.
// Порядок: offX снаружи, offZ внутри, оба по возрастанию. Сравним через ==, годится как ключ карты.
type Pattern [Size]block.Type

// String возвращает компактное представление для логов
func (p Pattern) String() string {
	parts := make([]string, Size)
	for i, t := range p {
		parts[i] = string(t)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Offset возвращает локальное смещение i-й клетки
func Offset(i int) vec.Vec3 {
	return vec.Vec3{X: i/3 - 1, Y: 0, Z: i%3 - 1}
}

// LoadBearing - предикат "клетка годится как опора"
type LoadBearing uint8

const (
	// LoadBearingOpaque требует непрозрачный полный куб
	LoadBearingOpaque LoadBearing = iota
	// LoadBearingSolidTop требует твёрдую верхнюю грань
	LoadBearingSolidTop
)

// Accepts проверяет состояние блока
func (lb LoadBearing) Accepts(s world.BlockState) bool {
	if s.IsAir() {
		return false
	}
	if lb == LoadBearingSolidTop {
		return block.HasSolidTop(s.Type)
	}
	return block.IsOpaque(s.Type)
}

// FrameMode - режим проверки рамки вокруг основания
type FrameMode uint8

const (
	// FrameNone - рамка не требуется
	FrameNone FrameMode = iota
	// FrameFixed - рамка из заданного материала
	FrameFixed
	// FrameReference - рамка из материала опорной клетки
	FrameReference
)

// FramePolicy описывает требование к рамке. Кольца лежат на радиусах 2..1+Rings.
type FramePolicy struct {
	Mode     FrameMode
	Material block.Type // Для FrameFixed
	Rings    int        // 1 или 2 вложенных кольца
}

// ReferenceCell - локальная клетка, задающая материал рамки в режиме FrameReference
var ReferenceCell = vec.Vec3{X: 2, Y: 0, Z: 0}

// Extractor распознаёт узлы и строит их паттерн
type Extractor struct {
	Frame       FramePolicy
	LoadBearing LoadBearing
}

// NewExtractor создаёт распознаватель с настройками по умолчанию
func NewExtractor() *Extractor {
	return &Extractor{LoadBearing: LoadBearingOpaque}
}

// Extract читает основание узла. false, если место не является узлом.
func (e *Extractor) Extract(w world.World, anchor vec.Vec3, facing orient.Facing) (Pattern, bool) {
	var p Pattern

	t, err := orient.NewTransform(anchor, facing)
	if err != nil {
		return p, false
	}
	if !e.checkFrame(w, t) {
		return p, false
	}

	for i := 0; i < Size; i++ {
		state := w.Block(t.LocalToGlobal(Offset(i)))
		if !e.LoadBearing.Accepts(state) {
			return p, false
		}
		p[i] = state.Type
	}
	return p, true
}

// Matches проверяет, что узел всё ещё имеет ожидаемый паттерн
func (e *Extractor) Matches(w world.World, anchor vec.Vec3, facing orient.Facing, want Pattern) bool {
	got, ok := e.Extract(w, anchor, facing)
	return ok && got == want
}

func (e *Extractor) checkFrame(w world.World, t orient.Transform) bool {
	var material block.Type
	switch e.Frame.Mode {
	case FrameNone:
		return true
	case FrameFixed:
		material = e.Frame.Material
	case FrameReference:
		material = w.Block(t.LocalToGlobal(ReferenceCell)).Type
		if material == block.Air {
			return false
		}
	}

	rings := e.Frame.Rings
	if rings <= 0 {
		rings = 1
	}
	for r := 2; r < 2+rings; r++ {
		for _, off := range Ring(r) {
			if w.Block(t.LocalToGlobal(off)).Type != material {
				return false
			}
		}
	}
	return true
}

// Ring возвращает клетки периметра квадрата радиуса r в плоскости основания
func Ring(r int) []vec.Vec3 {
	if r <= 0 {
		return []vec.Vec3{{}}
	}
	cells := make([]vec.Vec3, 0, 8*r)
	for x := -r; x <= r; x++ {
		for z := -r; z <= r; z++ {
			if max(abs(x), abs(z)) == r {
				cells = append(cells, vec.Vec3{X: x, Z: z})
			}
		}
	}
	return cells
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
