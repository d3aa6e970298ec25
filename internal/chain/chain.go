package chain

import (
	"github.com/annel0/portalnet/internal/pattern"
)

// Chain - узлы с одинаковым паттерном. Порядок членов задаёт порядок кандидатов.
type Chain struct {
	ID      int
	Pattern pattern.Pattern
	Members []NodeLocation
}

// IndexOf возвращает позицию узла в цепочке или -1
func (c *Chain) IndexOf(loc NodeLocation) int {
	for i, m := range c.Members {
		if m == loc {
			return i
		}
	}
	return -1
}

// Contains проверяет членство узла
func (c *Chain) Contains(loc NodeLocation) bool {
	return c.IndexOf(loc) >= 0
}

// Clone возвращает независимую копию
func (c *Chain) Clone() *Chain {
	return &Chain{
		ID:      c.ID,
		Pattern: c.Pattern,
		Members: append([]NodeLocation(nil), c.Members...),
	}
}

// Candidates возвращает остальных членов по кругу, начиная сразу после loc.
// Если loc не член цепочки, возвращаются все члены по порядку.
func (c *Chain) Candidates(loc NodeLocation) []NodeLocation {
	self := c.IndexOf(loc)
	out := make([]NodeLocation, 0, len(c.Members))
	for i := 1; i <= len(c.Members); i++ {
		j := (self + i) % len(c.Members)
		if self < 0 {
			j = i - 1
		}
		if j == self {
			continue
		}
		out = append(out, c.Members[j])
	}
	return out
}
