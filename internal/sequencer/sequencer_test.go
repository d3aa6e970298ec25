package sequencer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/annel0/portalnet/internal/chain"
	"github.com/annel0/portalnet/internal/eventbus"
	"github.com/annel0/portalnet/internal/orient"
	"github.com/annel0/portalnet/internal/pattern"
	"github.com/annel0/portalnet/internal/vec"
	"github.com/annel0/portalnet/internal/volume"
	"github.com/annel0/portalnet/internal/world"
	"github.com/annel0/portalnet/internal/world/block"
	"github.com/annel0/portalnet/internal/world/memworld"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var footprint = pattern.Pattern{
	block.Obsidian, block.GoldBlock, block.Obsidian,
	block.Stone, block.Diamond, block.Stone,
	block.Obsidian, block.Planks, block.Obsidian,
}

type harness struct {
	t        *testing.T
	u        *memworld.Universe
	reg      *chain.Registry
	seq      *Sequencer
	metrics  *Metrics
	promReg  *prometheus.Registry
	mu       sync.Mutex
	persists []chain.Document
}

func newHarness(t *testing.T, reg *chain.Registry, bus eventbus.EventBus) *harness {
	t.Helper()

	u := memworld.NewUniverse(2*time.Millisecond, 2)
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

	if reg == nil {
		reg = chain.NewRegistry()
	}
	h := &harness{t: t, u: u, reg: reg, promReg: prometheus.NewRegistry()}
	h.metrics = NewMetrics(h.promReg)
	h.seq = New(u, reg, loop, Options{
		Policy:            volume.DefaultPolicy,
		PostTeleportTicks: 100,
		Persist: func(doc chain.Document) {
			h.mu.Lock()
			h.persists = append(h.persists, doc)
			h.mu.Unlock()
		},
		Bus:     bus,
		Metrics: h.metrics,
	})
	return h
}

func (h *harness) world(id world.ID) *memworld.World {
	w, ok := h.u.MemWorld(id)
	require.True(h.t, ok)
	return w
}

// build выкладывает паттерн узла
func (h *harness) build(n chain.NodeLocation, p pattern.Pattern) {
	w := h.world(n.World)
	tr := n.Transform()
	for i, bt := range p {
		w.SetBlock(tr.LocalToGlobal(pattern.Offset(i)), world.StateOf(bt))
	}
}

// unload выгружает все чанки безопасного объёма узла
func (h *harness) unload(n chain.NodeLocation) {
	for _, c := range n.Box(chain.SafeExtent).Chunks() {
		require.True(h.t, h.u.Loader().Unload(n.World, c))
	}
	require.False(h.t, h.world(n.World).IsResident(n.Anchor))
}

func (h *harness) activate(n chain.NodeLocation, index *int) Outcome {
	h.t.Helper()
	select {
	case out := <-h.seq.Activate(context.Background(), Request{Node: n, TargetIndex: index}):
		return out
	case <-time.After(5 * time.Second):
		h.t.Fatal("активация не завершилась")
		return Outcome{}
	}
}

func (h *harness) lastDocument() chain.Document {
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(h.t, h.persists)
	return h.persists[len(h.persists)-1]
}

func (h *harness) counter(name, label, value string) float64 {
	families, err := h.promReg.Gather()
	require.NoError(h.t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func node(w world.ID, x, y, z int, f orient.Facing) chain.NodeLocation {
	return chain.NodeLocation{World: w, Anchor: vec.Vec3{X: x, Y: y, Z: z}, Facing: f}
}

// seeded создаёт реестр с одной цепочкой из указанных членов
func seeded(members ...chain.NodeLocation) (*chain.Registry, *chain.Chain) {
	reg := chain.NewRegistry()
	c := reg.GetOrCreateChain(footprint)
	for _, m := range members {
		reg.Admit(c, m)
	}
	return reg, c
}

func intp(v int) *int { return &v }

func TestActivateWithoutPatternIsNotAPortal(t *testing.T) {
	h := newHarness(t, nil, nil)

	out := h.activate(node("overworld", 0, 64, 0, orient.North), nil)
	assert.Equal(t, StatusNotAPortal, out.Status)
	assert.ErrorIs(t, out.Err(), ErrNotAPortal)
	assert.Equal(t, -1, out.ChainID)
	assert.Zero(t, h.reg.Len())
	assert.NotEmpty(t, out.CorrelationID)

	out = h.activate(node("the_end", 0, 64, 0, orient.North), nil)
	assert.Equal(t, StatusNotAPortal, out.Status)
	assert.Equal(t, 2.0, h.counter("portal_activations_total", "outcome", "not_a_portal"))
}

func TestFirstNodeRegistersAndHasNoDestination(t *testing.T) {
	h := newHarness(t, nil, nil)
	a := node("overworld", 0, 64, 0, orient.North)
	h.build(a, footprint)

	out := h.activate(a, nil)
	assert.Equal(t, StatusNoValidDestination, out.Status)
	assert.Zero(t, out.Candidates)

	c, ok := h.reg.Lookup(footprint)
	require.True(t, ok)
	assert.Equal(t, []chain.NodeLocation{a}, c.Members)

	doc := h.lastDocument()
	require.Len(t, doc.Chains, 1)
	assert.Equal(t, []chain.NodeLocation{a}, doc.Chains[0].Books)

	// Повторная активация не меняет реестр и не сохраняет его снова
	h.mu.Lock()
	saves := len(h.persists)
	h.mu.Unlock()
	h.activate(a, nil)
	h.mu.Lock()
	assert.Equal(t, saves, len(h.persists))
	h.mu.Unlock()
}

func TestTeleportAcrossWorlds(t *testing.T) {
	h := newHarness(t, nil, nil)
	a := node("overworld", 0, 64, 0, orient.North)
	b := node("nether", 100, 40, 100, orient.East)
	h.build(a, footprint)
	h.build(b, footprint)

	require.Equal(t, StatusNoValidDestination, h.activate(b, nil).Status)

	ow := h.world("overworld")
	srcTr := a.Transform()
	gold := srcTr.LocalToGlobal(vec.Vec3{Y: 2})
	ow.SetBlock(gold, world.StateOf(block.GoldBlock))
	ow.AddEntity(memworld.NewEntity("pig", nil), srcTr.LocalToGlobalPoint(vec.Vec3Float{Y: 1.1}), 0)
	player := ow.AddEntity(memworld.NewPlayer("alice"), srcTr.LocalToGlobalPoint(vec.Vec3Float{X: 0.3, Y: 1.1}), 0)

	out := h.activate(a, nil)
	require.Equal(t, StatusTeleported, out.Status, out.Err())
	assert.Equal(t, b, out.Destination)
	assert.Equal(t, 1, out.Candidates)
	assert.Equal(t, 1, out.Transfer.Entities)
	assert.Equal(t, 1, out.Transfer.Players)

	nether := h.world("nether")
	assert.True(t, ow.Block(gold).IsAir())
	assert.Equal(t, block.GoldBlock, nether.Block(b.Transform().LocalToGlobal(vec.Vec3{Y: 2})).Type)
	assert.Same(t, nether, player.World())
	assert.Len(t, nether.Entities(), 2)

	// Назначение держится коротким резервированием, резервирования перебора сняты
	for _, c := range b.Box(chain.SafeExtent).Chunks() {
		count, ttl := h.u.Loader().TicketCount(world.TicketPostTeleport, "nether", c)
		assert.Zero(t, count)
		assert.Equal(t, 100, ttl)
		count, _ = h.u.Loader().TicketCount(world.TicketPortal, "nether", c)
		assert.Zero(t, count)
	}
	for _, c := range a.Box(chain.SafeExtent).Chunks() {
		count, _ := h.u.Loader().TicketCount(world.TicketPortal, "overworld", c)
		assert.Zero(t, count)
	}

	assert.Equal(t, 1.0, h.counter("portal_activations_total", "outcome", "teleported"))
	assert.Equal(t, 1.0, h.counter("portal_transferred_total", "kind", "players"))
}

func TestTeleportLoadsDestinationChunks(t *testing.T) {
	a := node("overworld", 0, 64, 0, orient.South)
	b := node("overworld", 500, 64, -300, orient.West)
	reg, _ := seeded(a, b)
	h := newHarness(t, reg, nil)
	h.build(a, footprint)
	h.build(b, footprint)
	h.unload(b)

	out := h.activate(a, nil)
	require.Equal(t, StatusTeleported, out.Status, out.Err())
	assert.Equal(t, b, out.Destination)
	assert.Empty(t, out.Pruned)
	assert.True(t, h.world("overworld").IsResident(b.Anchor))
}

func TestFallbackPrunesInvalidMembers(t *testing.T) {
	a := node("overworld", 0, 64, 0, orient.North)
	b := node("overworld", 100, 64, 0, orient.North)
	c := node("overworld", 200, 64, 0, orient.North)
	d := node("overworld", 300, 64, 0, orient.North)
	reg, ch := seeded(a, b, c, d)
	h := newHarness(t, reg, nil)
	for _, n := range []chain.NodeLocation{a, b, c, d} {
		h.build(n, footprint)
	}

	// b разрушен и загружен: удаляется ещё до перебора
	h.world("overworld").SetBlock(b.Transform().LocalToGlobal(pattern.Offset(4)), world.StateOf(block.Dirt))
	// c разрушен и выгружен: удаляется после загрузки
	h.world("overworld").SetBlock(c.Transform().LocalToGlobal(pattern.Offset(0)), world.StateOf(block.Dirt))
	h.unload(c)

	out := h.activate(a, nil)
	require.Equal(t, StatusTeleported, out.Status, out.Err())
	assert.Equal(t, d, out.Destination)
	assert.ElementsMatch(t, []chain.NodeLocation{b, c}, out.Pruned)
	assert.Equal(t, []chain.NodeLocation{a, d}, ch.Members)

	doc := h.lastDocument()
	require.Len(t, doc.Chains, 1)
	assert.Equal(t, []chain.NodeLocation{a, d}, doc.Chains[0].Books)
	assert.Equal(t, 2.0, h.counter("portal_members_pruned_total", "reason", ReasonMismatch))
}

func TestExhaustedChain(t *testing.T) {
	a := node("overworld", 0, 64, 0, orient.North)
	b := node("overworld", 100, 64, 0, orient.North)
	reg, ch := seeded(a, b)
	h := newHarness(t, reg, nil)
	h.build(a, footprint)
	h.build(b, footprint)
	h.world("overworld").SetBlock(b.Anchor, world.StateOf(block.Glass))
	h.unload(b)

	ow := h.world("overworld")
	pig := ow.AddEntity(memworld.NewEntity("pig", nil), a.Transform().LocalToGlobalPoint(vec.Vec3Float{Y: 1.1}), 0)

	out := h.activate(a, nil)
	assert.Equal(t, StatusNoValidDestination, out.Status)
	assert.ErrorIs(t, out.Err(), ErrNoValidDestination)
	assert.Equal(t, 1, out.Candidates)
	assert.Equal(t, []chain.NodeLocation{a}, ch.Members)

	// Ничего не перенесено
	_, ok := ow.Entity(pig.ID())
	assert.True(t, ok)
}

func TestOverlappingNodeIsRejected(t *testing.T) {
	a := node("overworld", 0, 64, 0, orient.North)
	reg, ch := seeded(a)
	h := newHarness(t, reg, nil)
	h.build(a, footprint)

	near := node("overworld", 4, 64, 0, orient.North)
	h.build(near, footprint)

	out := h.activate(near, nil)
	assert.Equal(t, StatusOverlapping, out.Status)
	assert.ErrorIs(t, out.Err(), ErrOverlapping)
	assert.Equal(t, []chain.NodeLocation{a}, ch.Members)

	far := node("overworld", 5, 64, 0, orient.North)
	h.build(far, footprint)
	out = h.activate(far, nil)
	assert.Equal(t, StatusTeleported, out.Status, out.Err())
	assert.Equal(t, a, out.Destination)
}

func TestExplicitIndex(t *testing.T) {
	a := node("overworld", 0, 64, 0, orient.North)
	b := node("overworld", 100, 64, 0, orient.East)
	c := node("nether", 0, 64, 0, orient.South)
	reg, _ := seeded(a, b, c)
	h := newHarness(t, reg, nil)
	for _, n := range []chain.NodeLocation{a, b, c} {
		h.build(n, footprint)
	}

	out := h.activate(a, intp(2))
	require.Equal(t, StatusTeleported, out.Status, out.Err())
	assert.Equal(t, c, out.Destination)
	assert.Equal(t, 1, out.Candidates)

	out = h.activate(a, intp(0))
	require.Equal(t, StatusTeleported, out.Status, out.Err())
	assert.Equal(t, a, out.Destination)

	for _, bad := range []int{-1, 3} {
		out = h.activate(a, intp(bad))
		assert.Equal(t, StatusInvalidIndex, out.Status)
		assert.ErrorIs(t, out.Err(), ErrInvalidIndex)
	}
}

func TestMissingWorldMembersArePruned(t *testing.T) {
	a := node("overworld", 0, 64, 0, orient.North)
	gone := node("the_end", 0, 64, 0, orient.North)
	reg, ch := seeded(gone, a)
	h := newHarness(t, reg, nil)
	h.build(a, footprint)

	out := h.activate(a, nil)
	assert.Equal(t, StatusNoValidDestination, out.Status)
	assert.Equal(t, []chain.NodeLocation{gone}, out.Pruned)
	assert.Equal(t, []chain.NodeLocation{a}, ch.Members)
	assert.Equal(t, 1.0, h.counter("portal_members_pruned_total", "reason", ReasonMissingWorld))
}

func TestLoadFailurePrunesCandidate(t *testing.T) {
	a := node("overworld", 0, 64, 0, orient.North)
	b := node("nether", 0, 64, 0, orient.North)
	c := node("nether", 100, 64, 0, orient.North)
	reg, ch := seeded(a, b, c)
	h := newHarness(t, reg, nil)
	for _, n := range []chain.NodeLocation{a, b, c} {
		h.build(n, footprint)
	}
	h.unload(b)
	h.u.Loader().InjectFailure("nether", vec.ChunkOf(b.Anchor.X, b.Anchor.Z), errors.New("disk on fire"))

	out := h.activate(a, nil)
	require.Equal(t, StatusTeleported, out.Status, out.Err())
	assert.Equal(t, c, out.Destination)
	assert.Equal(t, []chain.NodeLocation{b}, out.Pruned)
	assert.False(t, ch.Contains(b))
	assert.Equal(t, 1.0, h.counter("portal_members_pruned_total", "reason", ReasonLoadFailed))
}

func TestEventsArePublished(t *testing.T) {
	bus := eventbus.NewMemoryBus(32)
	defer bus.Close()

	got := make(chan *eventbus.Envelope, 8)
	_, err := bus.Subscribe(context.Background(), eventbus.Filter{}, func(ctx context.Context, ev *eventbus.Envelope) {
		got <- ev
	})
	require.NoError(t, err)

	a := node("overworld", 0, 64, 0, orient.North)
	b := node("nether", 0, 64, 0, orient.West)
	reg, _ := seeded(a, b)
	h := newHarness(t, reg, bus)
	h.build(a, footprint)
	h.build(b, footprint)

	out := h.activate(a, nil)
	require.Equal(t, StatusTeleported, out.Status, out.Err())

	select {
	case ev := <-got:
		assert.Equal(t, eventbus.TypePortalTeleported, ev.EventType)
		assert.Equal(t, out.CorrelationID, ev.CorrelationID)
		payload, err := eventbus.Decode[eventbus.PortalTeleported](ev)
		require.NoError(t, err)
		assert.Equal(t, out.ChainID, payload.ChainID)
		assert.Equal(t, "nether", payload.To.World)
		assert.Equal(t, "west", payload.To.Facing)
	case <-time.After(2 * time.Second):
		t.Fatal("событие не доставлено")
	}
}

func TestConcurrentActivationsAreSerialized(t *testing.T) {
	a := node("overworld", 0, 64, 0, orient.North)
	b := node("overworld", 100, 64, 0, orient.North)
	reg, _ := seeded(a, b)
	h := newHarness(t, reg, nil)
	h.build(a, footprint)
	h.build(b, footprint)

	outs := make([]<-chan Outcome, 0, 8)
	for i := 0; i < 4; i++ {
		outs = append(outs, h.seq.Activate(context.Background(), Request{Node: a}))
		outs = append(outs, h.seq.Activate(context.Background(), Request{Node: b}))
	}
	for _, ch := range outs {
		select {
		case out := <-ch:
			assert.Equal(t, StatusTeleported, out.Status, out.Err())
		case <-time.After(5 * time.Second):
			t.Fatal("активация не завершилась")
		}
	}
	c, ok := reg.Lookup(footprint)
	require.True(t, ok)
	assert.Equal(t, []chain.NodeLocation{a, b}, c.Members)
}

func TestActivationSpans(t *testing.T) {
	a := node("overworld", 0, 64, 0, orient.North)
	b := node("overworld", 64, 64, 0, orient.North)
	reg, _ := seeded(a, b)
	h := newHarness(t, reg, nil)
	h.build(a, footprint)
	h.build(b, footprint)

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	h.seq.tracer = tp.Tracer("test")

	out := h.activate(a, nil)
	require.Equal(t, StatusTeleported, out.Status, out.Err())

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "portal.candidate", spans[0].Name())
	root := spans[1]
	assert.Equal(t, "portal.activate", root.Name())
	assert.Equal(t, root.SpanContext().SpanID(), spans[0].Parent().SpanID())
	assert.False(t, spans[0].EndTime().After(root.EndTime()), "спан кандидата закрыт до родителя")
	assert.Contains(t, root.Attributes(), attribute.String("portal.outcome", StatusTeleported.String()))
	assert.Contains(t, root.Attributes(), attribute.String("portal.correlation_id", out.CorrelationID))
}

func TestCandidateSpansCloseBeforeActivation(t *testing.T) {
	a := node("overworld", 0, 64, 0, orient.North)
	b := node("overworld", 100, 64, 0, orient.North)
	c := node("overworld", 200, 64, 0, orient.North)
	reg, _ := seeded(a, b, c)
	h := newHarness(t, reg, nil)
	altered := footprint
	altered[4] = block.Stone
	h.build(a, footprint)
	h.build(b, altered)
	h.build(c, footprint)
	h.unload(b)

	rec := tracetest.NewSpanRecorder()
	h.seq.tracer = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)).Tracer("test")

	out := h.activate(a, nil)
	require.Equal(t, StatusTeleported, out.Status, out.Err())
	assert.Equal(t, c, out.Destination)

	spans := rec.Ended()
	require.Len(t, spans, 3)
	root := spans[2]
	assert.Equal(t, "portal.activate", root.Name())
	for _, sp := range spans[:2] {
		assert.Equal(t, "portal.candidate", sp.Name())
		assert.Equal(t, root.SpanContext().SpanID(), sp.Parent().SpanID())
	}
	assert.Contains(t, spans[0].Attributes(), attribute.Bool("portal.valid", false))
	assert.Contains(t, spans[1].Attributes(), attribute.Int("portal.candidate_index", 1))
}
