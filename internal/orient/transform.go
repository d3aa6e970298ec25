package orient

import (
	"fmt"

	"github.com/annel0/portalnet/internal/vec"
)

// Локальная система координат узла: X - вперёд (по направлению facing),
// Y - вверх, Z - вправо (facing, повёрнутый по часовой стрелке).

// intoLocal - поворот мировых координат в локальные, по направлению узла
var intoLocal = map[Facing]Rotation{
	East:  Identity,
	South: CCW90,
	West:  CW180,
	North: CW90,
}

// intoWorld - поворот локальных координат в мировые. Таблица ведётся отдельно
// от intoLocal, обратимость проверяется тестом.
var intoWorld = map[Facing]Rotation{
	East:  Identity,
	South: CW90,
	West:  CW180,
	North: CCW90,
}

// Rotations возвращает пару поворотов (мир -> локально, локально -> мир) для направления
func Rotations(f Facing) (toLocal, toWorld Rotation, err error) {
	toLocal, ok := intoLocal[f]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", ErrInvalidFacing, f)
	}
	return toLocal, intoWorld[f], nil
}

// Transform связывает локальную систему координат узла с мировой
type Transform struct {
	origin  vec.Vec3
	facing  Facing
	toLocal Rotation
	toWorld Rotation
}

// NewTransform создаёт преобразование для якоря origin и направления facing
func NewTransform(origin vec.Vec3, facing Facing) (Transform, error) {
	toLocal, toWorld, err := Rotations(facing)
	if err != nil {
		return Transform{}, err
	}
	return Transform{origin: origin, facing: facing, toLocal: toLocal, toWorld: toWorld}, nil
}

// MustTransform как NewTransform, но паникует на вертикальном направлении
func MustTransform(origin vec.Vec3, facing Facing) Transform {
	t, err := NewTransform(origin, facing)
	if err != nil {
		panic(err)
	}
	return t
}

// Origin возвращает якорь преобразования
func (t Transform) Origin() vec.Vec3 { return t.origin }

// Facing возвращает направление узла
func (t Transform) Facing() Facing { return t.facing }

// ToLocal возвращает поворот мир -> локально
func (t Transform) ToLocal() Rotation { return t.toLocal }

// ToWorld возвращает поворот локально -> мир
func (t Transform) ToWorld() Rotation { return t.toWorld }

// LocalToGlobal поворачивает смещение в мировую систему и сдвигает на якорь
func (t Transform) LocalToGlobal(offset vec.Vec3) vec.Vec3 {
	return RotatePos(offset, t.toWorld).Add(t.origin)
}

// GlobalToLocal - обратное к LocalToGlobal
func (t Transform) GlobalToLocal(pos vec.Vec3) vec.Vec3 {
	return RotatePos(pos.Sub(t.origin), t.toLocal)
}

// LocalToGlobalPoint переводит точку, заданную относительно центра якорного блока
func (t Transform) LocalToGlobalPoint(offset vec.Vec3Float) vec.Vec3Float {
	return t.origin.Center().Add(RotateVector(offset, t.toWorld))
}

// GlobalToLocalPoint - обратное к LocalToGlobalPoint
func (t Transform) GlobalToLocalPoint(p vec.Vec3Float) vec.Vec3Float {
	return RotateVector(p.Sub(t.origin.Center()), t.toLocal)
}

// LocalBox переводит локальный бокс [mins, maxs] в мировой
func (t Transform) LocalBox(mins, maxs vec.Vec3) vec.Box {
	return vec.BoxOf(t.LocalToGlobal(mins), t.LocalToGlobal(maxs))
}
