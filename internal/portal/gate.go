package portal

import (
	"github.com/annel0/portalnet/internal/chain"
	"github.com/annel0/portalnet/internal/world"
)

// Gate - требование находиться рядом с узлом при активации.
// Игрок должен стоять внутри безопасного объёма узла, расширенного на Radius.
type Gate struct {
	Cyclic bool // Активация без индекса
	Remote bool // Активация с явным индексом
	Radius int
}

// Required сообщает, проверяется ли близость для этого вида активации
func (g Gate) Required(explicit bool) bool {
	if explicit {
		return g.Remote
	}
	return g.Cyclic
}

// Allows проверяет игрока. Игрок из другого мира всегда далеко.
func (g Gate) Allows(p world.Player, playerWorld world.ID, n chain.NodeLocation, safe chain.Extent, explicit bool) bool {
	if !g.Required(explicit) {
		return true
	}
	if p == nil || playerWorld != n.World {
		return false
	}
	box := n.Box(safe).Expand(g.Radius, g.Radius).ToFloatBox()
	return box.ContainsStrict(p.Position())
}
