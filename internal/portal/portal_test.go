package portal

import (
	"context"
	"testing"
	"time"

	"github.com/annel0/portalnet/internal/chain"
	"github.com/annel0/portalnet/internal/config"
	"github.com/annel0/portalnet/internal/orient"
	"github.com/annel0/portalnet/internal/pattern"
	"github.com/annel0/portalnet/internal/sequencer"
	"github.com/annel0/portalnet/internal/vec"
	"github.com/annel0/portalnet/internal/volume"
	"github.com/annel0/portalnet/internal/world"
	"github.com/annel0/portalnet/internal/world/block"
	"github.com/annel0/portalnet/internal/world/memworld"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var footprint = pattern.Pattern{
	block.Stone, block.Obsidian, block.Stone,
	block.Obsidian, block.Diamond, block.Obsidian,
	block.Stone, block.Obsidian, block.Stone,
}

type fixture struct {
	t    *testing.T
	u    *memworld.Universe
	loop *world.Loop
	reg  *chain.Registry
	act  *Activator
}

func newFixture(t *testing.T, gate Gate) *fixture {
	t.Helper()
	u := memworld.NewUniverse(time.Millisecond, 2)
	u.AddWorld(memworld.NewWorld("overworld", nil))
	u.AddWorld(memworld.NewWorld("nether", nil))

	loop := world.NewLoop(0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-loop.Done()
		u.Stop()
	})

	reg := chain.NewRegistry()
	settings := Settings{Extractor: pattern.NewExtractor(), Policy: volume.DefaultPolicy, Gate: gate, SafeExtent: chain.SafeExtent}
	seq := sequencer.New(u, reg, loop, sequencer.Options{Extractor: settings.Extractor, Policy: settings.Policy})
	return &fixture{t: t, u: u, loop: loop, reg: reg, act: NewActivator(u, seq, loop, settings, nil)}
}

func (f *fixture) world(id world.ID) *memworld.World {
	w, ok := f.u.MemWorld(id)
	require.True(f.t, ok)
	return w
}

// portal ставит активатор и выкладывает основание перед ним
func (f *fixture) portal(id world.ID, lectern vec.Vec3, facing orient.Facing) chain.NodeLocation {
	w := f.world(id)
	w.SetBlock(lectern, world.FacingState(ActivatorBlock, facing))
	n, ok := NodeAt(w, lectern)
	require.True(f.t, ok)
	tr := n.Transform()
	for i, bt := range footprint {
		w.SetBlock(tr.LocalToGlobal(pattern.Offset(i)), world.StateOf(bt))
	}
	return n
}

func (f *fixture) interact(in Interaction) (<-chan sequencer.Outcome, bool) {
	var (
		out     <-chan sequencer.Outcome
		handled bool
	)
	require.NoError(f.t, f.loop.Call(context.Background(), func() {
		out, handled = f.act.Interact(context.Background(), in)
	}))
	return out, handled
}

func wait(t *testing.T, out <-chan sequencer.Outcome) sequencer.Outcome {
	t.Helper()
	select {
	case o := <-out:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("активация не завершилась")
		return sequencer.Outcome{}
	}
}

func intp(v int) *int { return &v }

func TestNodeAtAnchorsTwoAheadAndOneBelow(t *testing.T) {
	w := memworld.NewWorld("overworld", nil)
	pos := vec.Vec3{X: 10, Y: 65, Z: 10}

	cases := map[orient.Facing]vec.Vec3{
		orient.North: {X: 10, Y: 64, Z: 8},
		orient.South: {X: 10, Y: 64, Z: 12},
		orient.East:  {X: 12, Y: 64, Z: 10},
		orient.West:  {X: 8, Y: 64, Z: 10},
	}
	for facing, anchor := range cases {
		w.SetBlock(pos, world.FacingState(ActivatorBlock, facing))
		n, ok := NodeAt(w, pos)
		require.True(t, ok, facing.String())
		assert.Equal(t, anchor, n.Anchor, facing.String())
		assert.Equal(t, facing, n.Facing)
		assert.Equal(t, world.ID("overworld"), n.World)
	}

	w.SetBlock(pos, world.StateOf(block.Stone))
	_, ok := NodeAt(w, pos)
	assert.False(t, ok)

	w.SetBlock(pos, world.StateOf(ActivatorBlock))
	_, ok = NodeAt(w, pos)
	assert.False(t, ok, "активатор без направления")
}

func TestInteractPassesThrough(t *testing.T) {
	f := newFixture(t, Gate{})
	lectern := vec.Vec3{X: 0, Y: 65, Z: 0}
	f.portal("overworld", lectern, orient.North)

	alice := f.world("overworld").AddEntity(memworld.NewPlayer("alice"), vec.Vec3Float{X: 0.5, Y: 65, Z: 1.5}, 0)
	ghost := f.world("overworld").AddEntity(memworld.NewPlayer("ghost"), vec.Vec3Float{X: 0.5, Y: 65, Z: 1.5}, 0)
	ghost.SetSpectator(true)

	cases := map[string]Interaction{
		"spectator":   {Player: ghost, World: "overworld", Pos: lectern},
		"off hand":    {Player: alice, World: "overworld", Pos: lectern, Hand: OffHand},
		"other block": {Player: alice, World: "overworld", Pos: vec.Vec3{X: 0, Y: 64, Z: -2}},
		"no world":    {Player: alice, World: "the_end", Pos: lectern},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			out, handled := f.interact(in)
			assert.False(t, handled)
			assert.Nil(t, out)
		})
	}
	assert.Zero(t, f.reg.Len())
}

func TestInteractTeleportsPlayer(t *testing.T) {
	f := newFixture(t, Gate{})
	home := f.portal("overworld", vec.Vec3{X: 0, Y: 65, Z: 0}, orient.North)
	away := f.portal("nether", vec.Vec3{X: 40, Y: 30, Z: 40}, orient.East)

	ow := f.world("overworld")
	nether := f.world("nether")
	bob := nether.AddEntity(memworld.NewPlayer("bob"), vec.Vec3Float{X: 30, Y: 30, Z: 30}, 0)

	out, handled := f.interact(Interaction{Player: bob, World: "nether", Pos: vec.Vec3{X: 40, Y: 30, Z: 40}})
	require.True(t, handled)
	assert.Equal(t, sequencer.StatusNoValidDestination, wait(t, out).Status)

	alice := ow.AddEntity(memworld.NewPlayer("alice"), home.Transform().LocalToGlobalPoint(vec.Vec3Float{Y: 1.2}), 0)
	out, handled = f.interact(Interaction{Player: alice, World: "overworld", Pos: vec.Vec3{X: 0, Y: 65, Z: 0}})
	require.True(t, handled)

	o := wait(t, out)
	require.Equal(t, sequencer.StatusTeleported, o.Status, o.Err())
	assert.Equal(t, away, o.Destination)
	assert.Same(t, nether, alice.World())
	assert.True(t, away.Box(chain.TransferExtent).ToFloatBox().ContainsStrict(alice.Position()))
}

func TestProximityGate(t *testing.T) {
	f := newFixture(t, Gate{Cyclic: true, Radius: 1})
	lectern := vec.Vec3{X: 0, Y: 65, Z: 0}
	n := f.portal("overworld", lectern, orient.South)

	ow := f.world("overworld")
	far := ow.AddEntity(memworld.NewPlayer("far"), vec.Vec3Float{X: 100, Y: 65, Z: 100}, 0)
	out, handled := f.interact(Interaction{Player: far, World: "overworld", Pos: lectern})
	assert.True(t, handled)
	assert.Nil(t, out)
	assert.Zero(t, f.reg.Len())

	near := ow.AddEntity(memworld.NewPlayer("near"), n.Transform().LocalToGlobalPoint(vec.Vec3Float{Y: 1.2}), 0)
	out, handled = f.interact(Interaction{Player: near, World: "overworld", Pos: lectern})
	require.True(t, handled)
	assert.Equal(t, sequencer.StatusNoValidDestination, wait(t, out).Status)
	assert.Equal(t, 1, f.reg.Len())
}

func TestProximityGateUsesPlayerWorld(t *testing.T) {
	f := newFixture(t, Gate{Cyclic: true, Radius: 1})
	lectern := vec.Vec3{X: 0, Y: 65, Z: 0}
	n := f.portal("overworld", lectern, orient.South)

	// Координаты рядом с узлом, но игрок стоит в другом мире
	stranger := f.world("nether").AddEntity(memworld.NewPlayer("stranger"), n.Transform().LocalToGlobalPoint(vec.Vec3Float{Y: 1.2}), 0)
	out, handled := f.interact(Interaction{Player: stranger, World: "overworld", Pos: lectern})
	assert.True(t, handled)
	assert.Nil(t, out)
	assert.Zero(t, f.reg.Len())
}

func TestGateRequired(t *testing.T) {
	n := chain.NodeLocation{World: "overworld", Anchor: vec.Vec3{Y: 64}, Facing: orient.North}
	p := memworld.NewPlayer("alice")

	assert.True(t, Gate{}.Allows(p, "overworld", n, chain.SafeExtent, true))
	assert.True(t, Gate{Remote: true}.Allows(p, "overworld", n, chain.SafeExtent, false))
	assert.False(t, Gate{Remote: true}.Allows(p, "overworld", n, chain.SafeExtent, true), "игрок в начале координат ниже узла")
	assert.False(t, Gate{Cyclic: true}.Allows(nil, "overworld", n, chain.SafeExtent, false))
	assert.False(t, Gate{Cyclic: true, Radius: 100}.Allows(p, "nether", n, chain.SafeExtent, false))
	assert.True(t, Gate{Cyclic: true, Radius: 100}.Allows(p, "overworld", n, chain.SafeExtent, false))
}

func TestCommand(t *testing.T) {
	f := newFixture(t, Gate{Remote: true})
	ctx := context.Background()
	first := vec.Vec3{X: 0, Y: 65, Z: 0}
	second := vec.Vec3{X: 50, Y: 65, Z: 0}
	a := f.portal("overworld", first, orient.West)
	b := f.portal("overworld", second, orient.North)

	_, err := f.act.Command(ctx, Command{World: "the_end", Pos: first})
	assert.ErrorIs(t, err, ErrUnknownWorld)

	_, err = f.act.Command(ctx, Command{World: "overworld", Pos: vec.Vec3{X: 5000, Y: 65, Z: 5000}})
	assert.ErrorIs(t, err, ErrNotLoaded)

	_, err = f.act.Command(ctx, Command{World: "overworld", Pos: a.Anchor})
	assert.ErrorIs(t, err, sequencer.ErrNotAPortal)

	out, err := f.act.Command(ctx, Command{World: "overworld", Pos: first})
	assert.ErrorIs(t, err, sequencer.ErrNoValidDestination)
	assert.Equal(t, 0, out.ChainID)

	out, err = f.act.Command(ctx, Command{World: "overworld", Pos: second, TargetIndex: intp(0)})
	require.NoError(t, err)
	assert.Equal(t, a, out.Destination)
	assert.Equal(t, b, out.Node)

	_, err = f.act.Command(ctx, Command{World: "overworld", Pos: second, TargetIndex: intp(7)})
	assert.ErrorIs(t, err, sequencer.ErrInvalidIndex)

	// Игрок вдали от узла не может выбрать цель
	var far *memworld.Entity
	require.NoError(t, f.loop.Call(ctx, func() {
		far = f.world("overworld").AddEntity(memworld.NewPlayer("far"), vec.Vec3Float{X: 300, Y: 65, Z: 300}, 0)
	}))
	_, err = f.act.Command(ctx, Command{World: "overworld", Pos: second, TargetIndex: intp(0), Player: far})
	assert.ErrorIs(t, err, ErrTooFar)
}

func TestParseSettings(t *testing.T) {
	s, err := ParseSettings(config.Default().Portal)
	require.NoError(t, err)
	assert.Equal(t, volume.DefaultPolicy, s.Policy)
	assert.Equal(t, pattern.LoadBearingOpaque, s.Extractor.LoadBearing)
	assert.Equal(t, pattern.FrameNone, s.Extractor.Frame.Mode)
	assert.Equal(t, chain.SafeExtent, s.SafeExtent)
	assert.Equal(t, 100, s.PostTeleportTicks)
	assert.Equal(t, 4, s.Gate.Radius)

	cfg := config.Default().Portal
	cfg.Transfer = "copy"
	cfg.Players = "exclude"
	cfg.LoadBearing = "solid_top"
	cfg.Frame = config.FrameConfig{Mode: "fixed", Material: string(block.Obsidian), Rings: 2}
	cfg.SafeRadius = 3
	s, err = ParseSettings(cfg)
	require.NoError(t, err)
	assert.Equal(t, volume.Policy{Mode: volume.Copy, Players: volume.ExcludePlayers}, s.Policy)
	assert.Equal(t, pattern.LoadBearingSolidTop, s.Extractor.LoadBearing)
	assert.Equal(t, pattern.FramePolicy{Mode: pattern.FrameFixed, Material: block.Obsidian, Rings: 2}, s.Extractor.Frame)
	assert.Equal(t, vec.Vec3{X: -3, Y: 0, Z: -3}, s.SafeExtent.Mins)
	assert.Equal(t, vec.Vec3{X: 3, Y: 3, Z: 3}, s.SafeExtent.Maxs)

	bad := map[string]func(c *config.PortalConfig){
		"transfer":      func(c *config.PortalConfig) { c.Transfer = "teleport" },
		"load bearing":  func(c *config.PortalConfig) { c.LoadBearing = "sturdy" },
		"frame mode":    func(c *config.PortalConfig) { c.Frame.Mode = "round" },
		"frame rings":   func(c *config.PortalConfig) { c.Frame = config.FrameConfig{Mode: "reference", Rings: 3} },
		"frame unknown": func(c *config.PortalConfig) { c.Frame = config.FrameConfig{Mode: "fixed", Material: "unobtainium"} },
		"radius":        func(c *config.PortalConfig) { c.Proximity.Radius = -1 },
		"safe radius":   func(c *config.PortalConfig) { c.SafeRadius = -2 },
	}
	for name, mutate := range bad {
		t.Run(name, func(t *testing.T) {
			c := config.Default().Portal
			mutate(&c)
			_, err := ParseSettings(c)
			assert.Error(t, err)
		})
	}
}
