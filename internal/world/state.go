package world

import (
	"github.com/annel0/portalnet/internal/orient"
	"github.com/annel0/portalnet/internal/world/block"
)

// BlockState - тип блока плюс состояние конкретного экземпляра
type BlockState struct {
	Type      block.Type        `json:"type"`
	Facing    orient.Facing     `json:"facing,omitempty"`
	HasFacing bool              `json:"has_facing,omitempty"`
	Props     map[string]string `json:"props,omitempty"` // Прочие свойства (half, open, ...)
}

// AirState - пустой блок
var AirState = BlockState{Type: block.Air}

// StateOf создаёт состояние без направления
func StateOf(t block.Type) BlockState {
	return BlockState{Type: t}
}

// FacingState создаёт состояние с горизонтальным направлением
func FacingState(t block.Type, f orient.Facing) BlockState {
	return BlockState{Type: t, Facing: f, HasFacing: true}
}

// IsAir проверяет, пуст ли блок
func (s BlockState) IsAir() bool {
	return s.Type == "" || s.Type == block.Air
}

// Rotate поворачивает направленные свойства состояния
func (s BlockState) Rotate(r orient.Rotation) BlockState {
	out := s
	if s.HasFacing {
		out.Facing = s.Facing.Rotate(r)
	}
	if len(s.Props) > 0 {
		out.Props = make(map[string]string, len(s.Props))
		for k, v := range s.Props {
			out.Props[k] = v
		}
	}
	return out
}

// Equal сравнивает состояния целиком
func (s BlockState) Equal(other BlockState) bool {
	if s.Type != other.Type || s.HasFacing != other.HasFacing {
		return false
	}
	if s.HasFacing && s.Facing != other.Facing {
		return false
	}
	if len(s.Props) != len(other.Props) {
		return false
	}
	for k, v := range s.Props {
		if other.Props[k] != v {
			return false
		}
	}
	return true
}
