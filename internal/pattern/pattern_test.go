package pattern

import (
	"testing"

	"github.com/annel0/portalnet/internal/orient"
	"github.com/annel0/portalnet/internal/vec"
	"github.com/annel0/portalnet/internal/world"
	"github.com/annel0/portalnet/internal/world/block"
	"github.com/annel0/portalnet/internal/world/memworld"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var footprint = Pattern{
	block.Stone, block.Obsidian, block.Stone,
	block.GoldBlock, block.Diamond, block.Planks,
	block.Stone, block.Cobblestone, block.Dirt,
}

func build(w *memworld.World, anchor vec.Vec3, facing orient.Facing, p Pattern) orient.Transform {
	t := orient.MustTransform(anchor, facing)
	for i, bt := range p {
		w.SetBlock(t.LocalToGlobal(Offset(i)), world.StateOf(bt))
	}
	return t
}

func TestPatternIsRotationInvariant(t *testing.T) {
	w := memworld.NewWorld("overworld", nil)
	ex := NewExtractor()

	anchors := map[orient.Facing]vec.Vec3{
		orient.North: {X: 0, Y: 64, Z: 0},
		orient.East:  {X: 20, Y: 64, Z: 0},
		orient.South: {X: 0, Y: 64, Z: 20},
		orient.West:  {X: 20, Y: 64, Z: 20},
	}
	for facing, anchor := range anchors {
		build(w, anchor, facing, footprint)
	}

	for facing, anchor := range anchors {
		got, ok := ex.Extract(w, anchor, facing)
		require.True(t, ok, facing.String())
		assert.Equal(t, footprint, got, facing.String())
	}

	// Тот же узел, прочитанный в другом направлении, даёт другой паттерн
	other, ok := ex.Extract(w, anchors[orient.North], orient.East)
	require.True(t, ok)
	assert.NotEqual(t, footprint, other)
}

func TestExtractRejects(t *testing.T) {
	anchor := vec.Vec3{X: 5, Y: 64, Z: 5}

	t.Run("vertical facing", func(t *testing.T) {
		w := memworld.NewWorld("overworld", nil)
		build(w, anchor, orient.North, footprint)
		_, ok := NewExtractor().Extract(w, anchor, orient.Up)
		assert.False(t, ok)
	})

	t.Run("missing cell", func(t *testing.T) {
		w := memworld.NewWorld("overworld", nil)
		tr := build(w, anchor, orient.North, footprint)
		w.SetBlock(tr.LocalToGlobal(Offset(4)), world.AirState)
		_, ok := NewExtractor().Extract(w, anchor, orient.North)
		assert.False(t, ok)
	})

	t.Run("glass depends on predicate", func(t *testing.T) {
		w := memworld.NewWorld("overworld", nil)
		p := footprint
		p[0] = block.Glass
		build(w, anchor, orient.West, p)

		_, ok := NewExtractor().Extract(w, anchor, orient.West)
		assert.False(t, ok)

		ex := &Extractor{LoadBearing: LoadBearingSolidTop}
		got, ok := ex.Extract(w, anchor, orient.West)
		require.True(t, ok)
		assert.Equal(t, p, got)
	})
}

func TestPatternIgnoresInstanceState(t *testing.T) {
	w := memworld.NewWorld("overworld", nil)
	anchor := vec.Vec3{X: 0, Y: 10, Z: 0}
	tr := build(w, anchor, orient.South, footprint)

	w.SetBlock(tr.LocalToGlobal(Offset(0)), world.FacingState(block.Furnace, orient.East))
	first, ok := NewExtractor().Extract(w, anchor, orient.South)
	require.True(t, ok)

	w.SetBlock(tr.LocalToGlobal(Offset(0)), world.FacingState(block.Furnace, orient.North))
	second, ok := NewExtractor().Extract(w, anchor, orient.South)
	require.True(t, ok)
	assert.Equal(t, first, second)
	assert.Equal(t, block.Furnace, first[0])
}

func TestFramePolicies(t *testing.T) {
	anchor := vec.Vec3{X: 0, Y: 64, Z: 0}
	frame := func(w *memworld.World, tr orient.Transform, material block.Type, r int) {
		for _, off := range Ring(r) {
			w.SetBlock(tr.LocalToGlobal(off), world.StateOf(material))
		}
	}

	t.Run("fixed", func(t *testing.T) {
		w := memworld.NewWorld("overworld", nil)
		tr := build(w, anchor, orient.East, footprint)
		ex := &Extractor{Frame: FramePolicy{Mode: FrameFixed, Material: block.Obsidian, Rings: 1}}

		_, ok := ex.Extract(w, anchor, orient.East)
		assert.False(t, ok)

		frame(w, tr, block.Obsidian, 2)
		_, ok = ex.Extract(w, anchor, orient.East)
		assert.True(t, ok)

		w.SetBlock(tr.LocalToGlobal(vec.Vec3{X: -2, Z: 1}), world.StateOf(block.Stone))
		_, ok = ex.Extract(w, anchor, orient.East)
		assert.False(t, ok)
	})

	t.Run("reference with two rings", func(t *testing.T) {
		w := memworld.NewWorld("overworld", nil)
		tr := build(w, anchor, orient.North, footprint)
		ex := &Extractor{Frame: FramePolicy{Mode: FrameReference, Rings: 2}}

		frame(w, tr, block.GoldBlock, 2)
		_, ok := ex.Extract(w, anchor, orient.North)
		assert.False(t, ok, "внешнее кольцо отсутствует")

		frame(w, tr, block.GoldBlock, 3)
		_, ok = ex.Extract(w, anchor, orient.North)
		assert.True(t, ok)
	})
}

func TestRing(t *testing.T) {
	assert.Len(t, Ring(2), 16)
	assert.Len(t, Ring(3), 24)
	for _, c := range Ring(2) {
		assert.Equal(t, 2, max(abs(c.X), abs(c.Z)))
	}
}

func TestMatches(t *testing.T) {
	w := memworld.NewWorld("overworld", nil)
	anchor := vec.Vec3{X: 100, Y: 64, Z: -100}
	build(w, anchor, orient.West, footprint)
	ex := NewExtractor()

	assert.True(t, ex.Matches(w, anchor, orient.West, footprint))
	altered := footprint
	altered[8] = block.Stone
	assert.False(t, ex.Matches(w, anchor, orient.West, altered))
}
