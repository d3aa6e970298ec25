package orient

import (
	"errors"
	"fmt"
	"strings"

	"github.com/annel0/portalnet/internal/vec"
)

// ErrInvalidFacing возвращается, когда узлу передано вертикальное или неизвестное направление
var ErrInvalidFacing = errors.New("invalid facing: only horizontal facings are allowed")

// Facing - направление, в которое построен узел
type Facing uint8

const (
	North Facing = iota
	East
	South
	West
	Up
	Down
)

var facingNames = [...]string{"north", "east", "south", "west", "up", "down"}

// String возвращает токен направления, используемый в сохранённой схеме
func (f Facing) String() string {
	if int(f) < len(facingNames) {
		return facingNames[f]
	}
	return fmt.Sprintf("facing(%d)", uint8(f))
}

// ParseFacing разбирает токен направления (регистр не важен)
func ParseFacing(s string) (Facing, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range facingNames {
		if name == s {
			return Facing(i), nil
		}
	}
	return 0, fmt.Errorf("unknown facing %q", s)
}

// MarshalText реализует encoding.TextMarshaler (JSON/YAML)
func (f Facing) MarshalText() ([]byte, error) {
	if int(f) >= len(facingNames) {
		return nil, fmt.Errorf("unknown facing %d", uint8(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText реализует encoding.TextUnmarshaler
func (f *Facing) UnmarshalText(text []byte) error {
	parsed, err := ParseFacing(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Horizontal возвращает true для четырёх допустимых направлений узла
func (f Facing) Horizontal() bool {
	return f <= West
}

// Offset возвращает единичный вектор направления
func (f Facing) Offset() vec.Vec3 {
	switch f {
	case North:
		return vec.Vec3{Z: -1}
	case East:
		return vec.Vec3{X: 1}
	case South:
		return vec.Vec3{Z: 1}
	case West:
		return vec.Vec3{X: -1}
	case Up:
		return vec.Vec3{Y: 1}
	case Down:
		return vec.Vec3{Y: -1}
	}
	return vec.Vec3{}
}

// Rotate поворачивает горизонтальное направление. Вертикальные не меняются.
func (f Facing) Rotate(r Rotation) Facing {
	if !f.Horizontal() {
		return f
	}
	return Facing((int(f) + int(r.QuarterTurns())) % 4)
}

// Yaw возвращает угол взгляда сущности, смотрящей в этом направлении
// (юг = 0, запад = 90, север = 180, восток = 270; по часовой стрелке сверху)
func (f Facing) Yaw() float64 {
	switch f {
	case South:
		return 0
	case West:
		return 90
	case North:
		return 180
	case East:
		return 270
	}
	return 0
}
