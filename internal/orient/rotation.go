package orient

import (
	"math"

	"github.com/annel0/portalnet/internal/vec"
)

// Rotation - поворот вокруг вертикальной оси на кратный 90 градусам угол
// (по часовой стрелке, если смотреть сверху)
type Rotation uint8

const (
	Identity Rotation = iota
	CW90
	CW180
	CCW90
)

// String возвращает имя поворота
func (r Rotation) String() string {
	switch r {
	case Identity:
		return "identity"
	case CW90:
		return "cw90"
	case CW180:
		return "cw180"
	case CCW90:
		return "ccw90"
	}
	return "rotation(?)"
}

// QuarterTurns возвращает количество четвертей оборота по часовой стрелке [0,3]
func (r Rotation) QuarterTurns() int {
	return int(r) & 3
}

// Inverse возвращает обратный поворот
func (r Rotation) Inverse() Rotation {
	return Rotation((4 - r.QuarterTurns()) & 3)
}

// Then возвращает композицию: сначала r, затем next
func (r Rotation) Then(next Rotation) Rotation {
	return Rotation((r.QuarterTurns() + next.QuarterTurns()) & 3)
}

// RotatePos поворачивает целочисленное смещение.
// 90: (x,y,z) -> (-z,y,x); 180: (-x,y,-z); 270: (z,y,-x).
func RotatePos(p vec.Vec3, r Rotation) vec.Vec3 {
	switch r.QuarterTurns() {
	case 1:
		return vec.Vec3{X: -p.Z, Y: p.Y, Z: p.X}
	case 2:
		return vec.Vec3{X: -p.X, Y: p.Y, Z: -p.Z}
	case 3:
		return vec.Vec3{X: p.Z, Y: p.Y, Z: -p.X}
	default:
		return p
	}
}

// RotateVector поворачивает непрерывный вектор перестановкой компонент без тригонометрии,
// поэтому результат точен для геометрии, выровненной по осям.
func RotateVector(v vec.Vec3Float, r Rotation) vec.Vec3Float {
	switch r.QuarterTurns() {
	case 1:
		return vec.Vec3Float{X: -v.Z, Y: v.Y, Z: v.X}
	case 2:
		return vec.Vec3Float{X: -v.X, Y: v.Y, Z: -v.Z}
	case 3:
		return vec.Vec3Float{X: v.Z, Y: v.Y, Z: -v.X}
	default:
		return v
	}
}

// RotateFacingAngle добавляет к углу 0/90/180/270 градусов. Результат приводится к [0,360).
func RotateFacingAngle(angle float64, r Rotation) float64 {
	a := math.Mod(angle+float64(90*r.QuarterTurns()), 360)
	if a < 0 {
		a += 360
	}
	return a
}
