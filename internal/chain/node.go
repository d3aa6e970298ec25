package chain

import (
	"fmt"

	"github.com/annel0/portalnet/internal/orient"
	"github.com/annel0/portalnet/internal/vec"
	"github.com/annel0/portalnet/internal/world"
)

// NodeLocation - расположение узла. Сравнивается структурно.
type NodeLocation struct {
	World  world.ID      `json:"world" bson:"world"`
	Anchor vec.Vec3      `json:"anchor" bson:"anchor"`
	Facing orient.Facing `json:"facing" bson:"facing"`
}

// NewNodeLocation проверяет направление и создаёт расположение
func NewNodeLocation(w world.ID, anchor vec.Vec3, facing orient.Facing) (NodeLocation, error) {
	if !facing.Horizontal() {
		return NodeLocation{}, fmt.Errorf("%w: %s", orient.ErrInvalidFacing, facing)
	}
	return NodeLocation{World: w, Anchor: anchor, Facing: facing}, nil
}

// Transform возвращает преобразование координат узла
func (n NodeLocation) Transform() orient.Transform {
	return orient.MustTransform(n.Anchor, n.Facing)
}

// String возвращает "world@x,y,z/facing"
func (n NodeLocation) String() string {
	return fmt.Sprintf("%s@%d,%d,%d/%s", n.World, n.Anchor.X, n.Anchor.Y, n.Anchor.Z, n.Facing)
}

// Extent - локальный бокс относительно якоря
type Extent struct {
	Mins vec.Vec3 `yaml:"mins" json:"mins"`
	Maxs vec.Vec3 `yaml:"maxs" json:"maxs"`
}

var (
	// TransferExtent - объём 3x3x3, стоящий на основании
	TransferExtent = Extent{Mins: vec.Vec3{X: -1, Y: 1, Z: -1}, Maxs: vec.Vec3{X: 1, Y: 3, Z: 1}}
	// SafeExtent - основание и объём переноса с запасом в одну клетку по горизонтали
	SafeExtent = Extent{Mins: vec.Vec3{X: -2, Y: 0, Z: -2}, Maxs: vec.Vec3{X: 2, Y: 3, Z: 2}}
)

// Box возвращает мировой бокс протяжённости для узла
func (n NodeLocation) Box(e Extent) vec.Box {
	return n.Transform().LocalBox(e.Mins, e.Maxs)
}
