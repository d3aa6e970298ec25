package portal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/portalnet/internal/chain"
	"github.com/annel0/portalnet/internal/eventbus"
	"github.com/annel0/portalnet/internal/logging"
	"github.com/annel0/portalnet/internal/orient"
	"github.com/annel0/portalnet/internal/sequencer"
	"github.com/annel0/portalnet/internal/vec"
	"github.com/annel0/portalnet/internal/world"
	"github.com/annel0/portalnet/internal/world/block"
	"github.com/google/uuid"
)

var (
	// ErrUnknownWorld - мир команды не существует
	ErrUnknownWorld = errors.New("unknown world")
	// ErrNotLoaded - позиция команды в незагруженном чанке
	ErrNotLoaded = errors.New("position is not loaded")
	// ErrTooFar - игрок слишком далеко от узла
	ErrTooFar = errors.New("player is too far from the portal")
)

// ActivatorBlock - блок, активирующий узел. Его направление задаёт направление узла.
const ActivatorBlock = block.Lectern

// Hand - рука, которой сделано взаимодействие
type Hand uint8

const (
	MainHand Hand = iota
	OffHand
)

// Interaction - взаимодействие игрока с блоком
type Interaction struct {
	Player world.Player
	World  world.ID
	Pos    vec.Vec3
	Hand   Hand
}

// Command - внешний вызов активации (в том числе с явным индексом цели).
// Player == nil - административный вызов, близость не проверяется.
type Command struct {
	World       world.ID
	Pos         vec.Vec3
	TargetIndex *int
	Player      world.Player
}

// Loop - поток симуляции, в котором разрешено читать мир
type Loop interface {
	world.Executor
	Call(ctx context.Context, f func()) error
}

// Activator превращает взаимодействия с активатором в запросы секвенсору
type Activator struct {
	universe world.Universe
	seq      *sequencer.Sequencer
	loop     Loop
	gate     Gate
	safe     chain.Extent
	bus      eventbus.EventBus
	log      *logging.Logger
}

// NewActivator создаёт диспетчер активаций
func NewActivator(u world.Universe, seq *sequencer.Sequencer, loop Loop, settings Settings, bus eventbus.EventBus) *Activator {
	safe := settings.SafeExtent
	if safe == (chain.Extent{}) {
		safe = chain.SafeExtent
	}
	return &Activator{
		universe: u,
		seq:      seq,
		loop:     loop,
		gate:     settings.Gate,
		safe:     safe,
		bus:      bus,
		log:      logging.Default(),
	}
}

// NodeAt возвращает узел, заданный активатором в pos: якорь в двух блоках перед ним и на блок ниже
func NodeAt(w world.World, pos vec.Vec3) (chain.NodeLocation, bool) {
	state := w.Block(pos)
	if state.Type != ActivatorBlock || !state.HasFacing || !state.Facing.Horizontal() {
		return chain.NodeLocation{}, false
	}
	f := state.Facing
	anchor := pos.Add(f.Offset().Scale(2)).Add(orient.Down.Offset())
	return chain.NodeLocation{World: w.ID(), Anchor: anchor, Facing: f}, true
}

// Interact обрабатывает взаимодействие. Вызывается из потока симуляции.
// false - взаимодействие не касается узлов и передаётся дальше хосту.
func (a *Activator) Interact(ctx context.Context, in Interaction) (<-chan sequencer.Outcome, bool) {
	if in.Player == nil || in.Player.Spectator() || in.Hand != MainHand {
		return nil, false
	}
	w, ok := a.universe.World(in.World)
	if !ok {
		return nil, false
	}
	node, ok := NodeAt(w, in.Pos)
	if !ok {
		return nil, false
	}

	corr := uuid.NewString()
	if !a.gate.Allows(in.Player, playerWorld(a.universe, in.Player, in.World), node, a.safe, false) {
		a.reject(corr, node, nil)
		return nil, true
	}

	a.log.Debug("Activator: %s активирует %s", in.Player.Name(), node)
	out := a.seq.Activate(ctx, sequencer.Request{Node: node, CorrelationID: corr})
	return out, true
}

// Command выполняет внешний вызов и ждёт итога активации.
// Ошибка итога доступна через errors.Is с маркерами sequencer.
func (a *Activator) Command(ctx context.Context, cmd Command) (sequencer.Outcome, error) {
	var (
		node   chain.NodeLocation
		resErr error
	)
	corr := uuid.NewString()

	err := a.loop.Call(ctx, func() {
		w, ok := a.universe.World(cmd.World)
		if !ok {
			resErr = fmt.Errorf("%w: %s", ErrUnknownWorld, cmd.World)
			return
		}
		if !w.IsResident(cmd.Pos) {
			resErr = fmt.Errorf("%w: %s %v", ErrNotLoaded, cmd.World, cmd.Pos)
			return
		}
		n, ok := NodeAt(w, cmd.Pos)
		if !ok {
			resErr = sequencer.ErrNotAPortal
			return
		}
		if cmd.Player != nil && !a.gate.Allows(cmd.Player, playerWorld(a.universe, cmd.Player, cmd.World), n, a.safe, cmd.TargetIndex != nil) {
			a.reject(corr, n, cmd.TargetIndex)
			resErr = ErrTooFar
			return
		}
		node = n
	})
	if err != nil {
		return sequencer.Outcome{}, err
	}
	if resErr != nil {
		return sequencer.Outcome{Status: sequencer.StatusNotAPortal, ChainID: -1, Index: cmd.TargetIndex, CorrelationID: corr}, resErr
	}

	select {
	case out := <-a.seq.Activate(ctx, sequencer.Request{Node: node, TargetIndex: cmd.TargetIndex, CorrelationID: corr}):
		return out, out.Err()
	case <-ctx.Done():
		return sequencer.Outcome{}, ctx.Err()
	}
}

func (a *Activator) reject(corr string, node chain.NodeLocation, index *int) {
	a.log.Info("Activator: активация %s отклонена: игрок далеко", node)
	if a.bus == nil {
		return
	}
	ev := eventbus.PortalRejected{
		Node: eventbus.NodeRef{
			World:  string(node.World),
			X:      node.Anchor.X,
			Y:      node.Anchor.Y,
			Z:      node.Anchor.Z,
			Facing: node.Facing.String(),
		},
		Reason: eventbus.ReasonTooFar,
		Index:  index,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := eventbus.Emit(ctx, a.bus, eventbus.TypePortalRejected, corr, 3, ev); err != nil {
			a.log.Warn("Activator: событие не опубликовано: %v", err)
		}
	}()
}

// Locator - необязательная возможность хоста: мир, в котором находится сущность
type Locator interface {
	WorldOf(e world.Entity) (world.ID, bool)
}

// playerWorld определяет мир игрока; без Locator считается, что игрок в мире команды
func playerWorld(u world.Universe, p world.Player, fallback world.ID) world.ID {
	if l, ok := u.(Locator); ok {
		if id, found := l.WorldOf(p); found {
			return id
		}
	}
	return fallback
}
