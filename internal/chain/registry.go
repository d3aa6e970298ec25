package chain

import (
	"errors"
	"fmt"
	"sort"

	"github.com/annel0/portalnet/internal/pattern"
)

// ErrUnknownChain возвращается для отсутствующего идентификатора цепочки
var ErrUnknownChain = errors.New("unknown chain")

// Registry - единственный источник истины о топологии цепочек.
// Не потокобезопасен: используется только из потока симуляции.
type Registry struct {
	nextID   int
	chains   map[int]*Chain
	patterns map[pattern.Pattern]int
	safe     Extent
}

// NewRegistry создаёт пустой реестр
func NewRegistry() *Registry {
	return &Registry{
		chains:   make(map[int]*Chain),
		patterns: make(map[pattern.Pattern]int),
		safe:     SafeExtent,
	}
}

// SetSafeExtent меняет безопасный объём для проверки пересечений
func (r *Registry) SetSafeExtent(e Extent) {
	r.safe = e
}

// SafeExtent возвращает безопасный объём
func (r *Registry) SafeExtent() Extent {
	return r.safe
}

// NextID возвращает идентификатор, который получит следующая цепочка
func (r *Registry) NextID() int {
	return r.nextID
}

// Len возвращает число цепочек
func (r *Registry) Len() int {
	return len(r.chains)
}

// GetOrCreateChain ищет цепочку по паттерну или создаёт пустую
func (r *Registry) GetOrCreateChain(p pattern.Pattern) *Chain {
	if id, ok := r.patterns[p]; ok {
		return r.chains[id]
	}

	c := &Chain{ID: r.nextID, Pattern: p}
	r.nextID++
	r.chains[c.ID] = c
	r.patterns[p] = c.ID
	r.mustCheck()
	return c
}

// Chain возвращает цепочку по идентификатору
func (r *Registry) Chain(id int) (*Chain, error) {
	c, ok := r.chains[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChain, id)
	}
	return c, nil
}

// Lookup возвращает цепочку по паттерну, не создавая её
func (r *Registry) Lookup(p pattern.Pattern) (*Chain, bool) {
	id, ok := r.patterns[p]
	if !ok {
		return nil, false
	}
	return r.chains[id], true
}

// Chains возвращает копии всех цепочек, упорядоченные по идентификатору
func (r *Registry) Chains() []*Chain {
	out := make([]*Chain, 0, len(r.chains))
	for _, c := range r.chains {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PruneInvalid удаляет членов, не прошедших проверку. true, если что-то удалено.
func (r *Registry) PruneInvalid(c *Chain, valid func(NodeLocation) bool) bool {
	kept := c.Members[:0]
	for _, m := range c.Members {
		if valid(m) {
			kept = append(kept, m)
		}
	}
	changed := len(kept) != len(c.Members)
	// Обнуляем хвост, чтобы не держать старые значения в массиве
	for i := len(kept); i < len(c.Members); i++ {
		c.Members[i] = NodeLocation{}
	}
	c.Members = kept
	return changed
}

// Remove удаляет конкретного члена. true, если он был в цепочке.
func (r *Registry) Remove(c *Chain, loc NodeLocation) bool {
	return r.PruneInvalid(c, func(m NodeLocation) bool { return m != loc })
}

// Overlaps возвращает другого живого члена, чей безопасный объём пересекается с кандидатом
func (r *Registry) Overlaps(c *Chain, candidate NodeLocation) (NodeLocation, bool) {
	box := candidate.Box(r.safe)
	for _, m := range c.Members {
		if m == candidate || m.World != candidate.World {
			continue
		}
		if m.Box(r.safe).Intersects(box) {
			return m, true
		}
	}
	return NodeLocation{}, false
}

// Admit добавляет кандидата в конец цепочки. false, если он пересекается с другим членом.
// Повторная активация того же узла ничего не меняет.
func (r *Registry) Admit(c *Chain, candidate NodeLocation) (accepted, changed bool) {
	if _, overlap := r.Overlaps(c, candidate); overlap {
		return false, false
	}
	if c.Contains(candidate) {
		return true, false
	}
	c.Members = append(c.Members, candidate)
	return true, true
}

// mustCheck проверяет инварианты индексов. Нарушение - ошибка программы.
func (r *Registry) mustCheck() {
	if err := r.check(); err != nil {
		panic(err)
	}
}

func (r *Registry) check() error {
	if len(r.patterns) != len(r.chains) {
		return fmt.Errorf("registry: %d patterns indexed for %d chains", len(r.patterns), len(r.chains))
	}
	for id, c := range r.chains {
		if c.ID != id {
			return fmt.Errorf("registry: chain %d stored under id %d", c.ID, id)
		}
		if got, ok := r.patterns[c.Pattern]; !ok || got != id {
			return fmt.Errorf("registry: pattern of chain %d indexed as %d", id, got)
		}
		if id >= r.nextID {
			return fmt.Errorf("registry: chain id %d is not below next id %d", id, r.nextID)
		}
	}
	return nil
}
