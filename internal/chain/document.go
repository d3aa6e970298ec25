package chain

import (
	"fmt"
	"sort"

	"github.com/annel0/portalnet/internal/pattern"
	"github.com/annel0/portalnet/internal/world/block"
)

// Document - сохраняемая схема реестра. Индексы не сохраняются, их строит LoadDocument.
type Document struct {
	Chains []ChainRecord `json:"chains" bson:"chains"`
}

// ChainRecord - одна цепочка в сохраняемом виде
type ChainRecord struct {
	ID      int            `json:"id" bson:"_id"`
	Pattern []block.Type   `json:"pattern" bson:"pattern"`
	Books   []NodeLocation `json:"books" bson:"books"`
}

// Record возвращает сохраняемое представление цепочки
func (c *Chain) Record() ChainRecord {
	return ChainRecord{
		ID:      c.ID,
		Pattern: append([]block.Type(nil), c.Pattern[:]...),
		Books:   append([]NodeLocation{}, c.Members...),
	}
}

// ToChain проверяет запись и строит цепочку
func (rec ChainRecord) ToChain() (*Chain, error) {
	if rec.ID < 0 {
		return nil, fmt.Errorf("chain %d: negative id", rec.ID)
	}
	if len(rec.Pattern) != pattern.Size {
		return nil, fmt.Errorf("chain %d: pattern has %d cells, want %d", rec.ID, len(rec.Pattern), pattern.Size)
	}
	c := &Chain{ID: rec.ID}
	copy(c.Pattern[:], rec.Pattern)
	for _, b := range rec.Books {
		if !b.Facing.Horizontal() {
			return nil, fmt.Errorf("chain %d: book %s has vertical facing", rec.ID, b)
		}
		c.Members = append(c.Members, b)
	}
	return c, nil
}

// ToDocument сворачивает реестр в список цепочек, упорядоченный по идентификатору
func (r *Registry) ToDocument() Document {
	doc := Document{Chains: make([]ChainRecord, 0, len(r.chains))}
	for _, c := range r.chains {
		doc.Chains = append(doc.Chains, c.Record())
	}
	sort.Slice(doc.Chains, func(i, j int) bool { return doc.Chains[i].ID < doc.Chains[j].ID })
	return doc
}

// LoadDocument строит реестр из списка цепочек. nextID = max(id)+1.
// Дубликаты идентификаторов или паттернов считаются повреждением данных.
func LoadDocument(doc Document) (*Registry, error) {
	r := NewRegistry()
	for _, rec := range doc.Chains {
		c, err := rec.ToChain()
		if err != nil {
			return nil, err
		}
		if _, dup := r.chains[c.ID]; dup {
			return nil, fmt.Errorf("duplicate chain id %d", c.ID)
		}
		if other, dup := r.patterns[c.Pattern]; dup {
			return nil, fmt.Errorf("chains %d and %d share pattern %s", other, c.ID, c.Pattern)
		}

		r.chains[c.ID] = c
		r.patterns[c.Pattern] = c.ID
		r.nextID = max(r.nextID, c.ID+1)
	}
	if err := r.check(); err != nil {
		return nil, err
	}
	return r, nil
}
