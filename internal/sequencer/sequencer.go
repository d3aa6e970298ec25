package sequencer

import (
	"context"
	"time"

	"github.com/annel0/portalnet/internal/chain"
	"github.com/annel0/portalnet/internal/eventbus"
	"github.com/annel0/portalnet/internal/logging"
	"github.com/annel0/portalnet/internal/pattern"
	"github.com/annel0/portalnet/internal/vec"
	"github.com/annel0/portalnet/internal/volume"
	"github.com/annel0/portalnet/internal/world"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Причины удаления узлов из цепочки
const (
	ReasonMissingWorld = "missing_world"
	ReasonMismatch     = "pattern_mismatch"
	ReasonLoadFailed   = "load_failed"
)

// Options - настройки секвенсора
type Options struct {
	Extractor         *pattern.Extractor
	Policy            volume.Policy
	Transfer          chain.Extent
	PostTeleportTicks int                  // TTL резервирования назначения после переноса; 0 - без него
	Persist           func(chain.Document) // Вызывается в потоке симуляции при изменении реестра
	Bus               eventbus.EventBus
	Metrics           *Metrics
	Tracer            trace.Tracer
	Logger            *logging.Logger
}

// Request - запрос на активацию узла
type Request struct {
	Node          chain.NodeLocation
	TargetIndex   *int // nil - обход цепочки по кругу
	CorrelationID string
}

// Sequencer проводит активацию узла: распознавание, реестр, перебор кандидатов и перенос.
// Вся работа с миром и реестром идёт в потоке симуляции (Executor); ожидание загрузки
// чанков выполняется в отдельной горутине, продолжение снова ставится в поток симуляции.
type Sequencer struct {
	universe world.Universe
	registry *chain.Registry
	exec     world.Executor
	opts     Options
	log      *logging.Logger
	tracer   trace.Tracer
}

// New создаёт секвенсор
func New(u world.Universe, reg *chain.Registry, exec world.Executor, opts Options) *Sequencer {
	if opts.Extractor == nil {
		opts.Extractor = pattern.NewExtractor()
	}
	if opts.Transfer == (chain.Extent{}) {
		opts.Transfer = chain.TransferExtent
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/annel0/portalnet/internal/sequencer")
	}
	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}
	return &Sequencer{universe: u, registry: reg, exec: exec, opts: opts, log: log, tracer: opts.Tracer}
}

// Registry возвращает реестр, с которым работает секвенсор
func (s *Sequencer) Registry() *chain.Registry { return s.registry }

// activation - состояние одной активации между шагами
type activation struct {
	ctx        context.Context
	span       trace.Span
	req        Request
	src        world.World
	chain      *chain.Chain
	candidates []chain.NodeLocation
	srcTickets []world.Ticket
	outcome    Outcome
	out        chan Outcome
	dirty      bool
}

// Activate запускает активацию. Может вызываться из любой горутины.
// Канал получает ровно один итог и закрывается.
func (s *Sequencer) Activate(ctx context.Context, req Request) <-chan Outcome {
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.NewString()
	}

	ctx, span := s.tracer.Start(ctx, "portal.activate", trace.WithAttributes(
		attribute.String("portal.node", req.Node.String()),
		attribute.String("portal.correlation_id", req.CorrelationID),
	))
	if req.TargetIndex != nil {
		span.SetAttributes(attribute.Int("portal.target_index", *req.TargetIndex))
	}

	a := &activation{
		ctx:  ctx,
		span: span,
		req:  req,
		out:  make(chan Outcome, 1),
		outcome: Outcome{
			Node:          req.Node,
			ChainID:       -1,
			Index:         req.TargetIndex,
			CorrelationID: req.CorrelationID,
		},
	}
	s.exec.Execute(func() { s.start(a) })
	return a.out
}

// start выполняет шаги 1-5 синхронно в потоке симуляции
func (s *Sequencer) start(a *activation) {
	node := a.req.Node

	// 1. Паттерн узла
	src, ok := s.universe.World(node.World)
	if !ok || !node.Facing.Horizontal() {
		s.finish(a, StatusNotAPortal)
		return
	}
	a.src = src

	p, ok := s.opts.Extractor.Extract(src, node.Anchor, node.Facing)
	if !ok {
		s.finish(a, StatusNotAPortal)
		return
	}

	// 2. Цепочка и очистка устаревших членов
	before := s.registry.NextID()
	c := s.registry.GetOrCreateChain(p)
	a.chain = c
	a.outcome.ChainID = c.ID
	a.span.SetAttributes(attribute.Int("portal.chain_id", c.ID))
	if s.registry.NextID() != before {
		a.dirty = true
		s.log.Info("🔗 Новая цепочка %d, паттерн %s", c.ID, p)
	}

	var pruned []chain.NodeLocation
	s.registry.PruneInvalid(c, func(m chain.NodeLocation) bool {
		if m == node {
			return true
		}
		if reason, valid := s.checkResident(m, c.Pattern); !valid {
			pruned = append(pruned, m)
			s.notePruned(a, m, reason)
			return false
		}
		return true
	})
	if len(pruned) > 0 {
		a.dirty = true
	}

	// 3. Пересечение с другими членами
	if other, overlap := s.registry.Overlaps(c, node); overlap {
		s.log.Warn("Sequencer: узел %s пересекается с %s (цепочка %d)", node, other, c.ID)
		s.emit(a, eventbus.TypePortalRejected, 3, eventbus.PortalRejected{
			Node: nodeRef(node), Reason: eventbus.ReasonOverlapping, Index: a.req.TargetIndex,
		})
		s.finish(a, StatusOverlapping)
		return
	}

	// 4. Регистрация узла
	if _, changed := s.registry.Admit(c, node); changed {
		a.dirty = true
		s.log.Info("📖 Узел %s добавлен в цепочку %d (%d членов)", node, c.ID, len(c.Members))
	}
	s.persist(a)

	// 5. Кандидаты
	if idx := a.req.TargetIndex; idx != nil {
		if *idx < 0 || *idx >= len(c.Members) {
			s.emit(a, eventbus.TypePortalRejected, 3, eventbus.PortalRejected{
				Node: nodeRef(node), Reason: eventbus.ReasonInvalidIndex, Index: idx,
			})
			s.finish(a, StatusInvalidIndex)
			return
		}
		a.candidates = []chain.NodeLocation{c.Members[*idx]}
	} else {
		a.candidates = c.Candidates(node)
	}
	a.outcome.Candidates = len(a.candidates)

	// Источник держим загруженным до конца перебора
	a.srcTickets = s.tickets(node)
	for _, t := range a.srcTickets {
		s.universe.Residency().AddTicket(t)
	}

	s.next(a, 0)
}

// checkResident проверяет узел без загрузки: отсутствующий мир - недействителен,
// незагруженные чанки проверяются позже, при переборе кандидатов
func (s *Sequencer) checkResident(m chain.NodeLocation, want pattern.Pattern) (string, bool) {
	w, ok := s.universe.World(m.World)
	if !ok {
		return ReasonMissingWorld, false
	}
	for _, pos := range footprintCorners(m) {
		if !w.IsResident(pos) {
			return "", true
		}
	}
	if !s.opts.Extractor.Matches(w, m.Anchor, m.Facing, want) {
		return ReasonMismatch, false
	}
	return "", true
}

// next - шаг 6: кандидаты строго по очереди, до первого успеха
func (s *Sequencer) next(a *activation, i int) {
	for ; i < len(a.candidates); i++ {
		cand := a.candidates[i]
		// Параллельная активация могла уже удалить кандидата
		if !a.chain.Contains(cand) {
			continue
		}

		dst, ok := s.universe.World(cand.World)
		if !ok {
			s.prune(a, cand, ReasonMissingWorld)
			continue
		}

		tickets := s.tickets(cand)
		for _, t := range tickets {
			s.universe.Residency().AddTicket(t)
		}

		idx := i
		s.awaitResident(a, cand, tickets, func(loadErr error, waited time.Duration) {
			s.check(a, idx, dst, tickets, loadErr, waited)
		})
		return
	}

	s.log.Info("Sequencer: %s - подходящих узлов нет (цепочка %d, кандидатов %d)",
		a.req.Node, a.outcome.ChainID, a.outcome.Candidates)
	s.emit(a, eventbus.TypePortalExhausted, 2, eventbus.PortalExhausted{
		ChainID: a.outcome.ChainID, From: nodeRef(a.req.Node), Candidates: a.outcome.Candidates,
	})
	s.finish(a, StatusNoValidDestination)
}

// awaitResident запрашивает загрузку всех чанков кандидата и ждёт их вне потока симуляции
func (s *Sequencer) awaitResident(a *activation, cand chain.NodeLocation, tickets []world.Ticket, done func(error, time.Duration)) {
	res := s.universe.Residency()
	waits := make([]<-chan error, len(tickets))
	for i, t := range tickets {
		waits[i] = res.Load(cand.World, t.Chunk)
	}

	started := time.Now()
	go func() {
		var first error
		for _, ch := range waits {
			if err := <-ch; err != nil && first == nil {
				first = err
			}
		}
		waited := time.Since(started)
		s.exec.Execute(func() { done(first, waited) })
	}()
}

// check проверяет кандидата после загрузки и выполняет перенос.
// Спан кандидата закрывается до следующего шага: finish закрывает родительский спан.
func (s *Sequencer) check(a *activation, i int, dst world.World, tickets []world.Ticket, loadErr error, waited time.Duration) {
	s.opts.Metrics.observeCandidate(waited.Seconds())

	_, span := s.tracer.Start(a.ctx, "portal.candidate", trace.WithAttributes(
		attribute.String("portal.candidate", a.candidates[i].String()),
		attribute.Int("portal.candidate_index", i),
	))
	then := s.evaluate(a, i, dst, tickets, loadErr, span)
	span.End()
	then()
}

// evaluate выполняет проверку и перенос, возвращая следующий шаг активации
func (s *Sequencer) evaluate(a *activation, i int, dst world.World, tickets []world.Ticket, loadErr error, span trace.Span) func() {
	cand := a.candidates[i]
	nextCandidate := func() { s.next(a, i+1) }

	release := func() {
		for _, t := range tickets {
			s.universe.Residency().RemoveTicket(t)
		}
	}

	switch {
	case loadErr != nil:
		s.log.Warn("Sequencer: кандидат %s не загружен: %v", cand, loadErr)
		span.SetStatus(codes.Error, loadErr.Error())
		release()
		s.prune(a, cand, ReasonLoadFailed)
		return nextCandidate

	case !s.opts.Extractor.Matches(dst, cand.Anchor, cand.Facing, a.chain.Pattern):
		span.SetAttributes(attribute.Bool("portal.valid", false))
		release()
		s.prune(a, cand, ReasonMismatch)
		return nextCandidate
	}

	// Источник мог измениться, пока ждали загрузку
	node := a.req.Node
	if !s.opts.Extractor.Matches(a.src, node.Anchor, node.Facing, a.chain.Pattern) {
		s.log.Warn("Sequencer: узел %s разрушен во время ожидания", node)
		release()
		return func() { s.finish(a, StatusNotAPortal) }
	}

	report, err := s.transfer(a, dst, cand)
	release()
	if err != nil {
		// Сюда попадаем только при ошибке программы (неверное направление в реестре)
		s.log.Error("Sequencer: перенос %s -> %s не выполнен: %v", node, cand, err)
		span.SetStatus(codes.Error, err.Error())
		return nextCandidate
	}

	if s.opts.PostTeleportTicks > 0 {
		for _, t := range tickets {
			t.Kind = world.TicketPostTeleport
			t.TTL = s.opts.PostTeleportTicks
			s.universe.Residency().AddTicket(t)
		}
	}

	a.outcome.Destination = cand
	a.outcome.Transfer = report
	s.log.Info("✨ Перенос %s -> %s: блоков %d, сущностей %d, игроков %d, ошибок %d",
		node, cand, report.Blocks, report.Entities, report.Players, report.Failed)
	s.emit(a, eventbus.TypePortalTeleported, 5, eventbus.PortalTeleported{
		ChainID: a.chain.ID, From: nodeRef(node), To: nodeRef(cand),
		Blocks: report.Blocks, Entities: report.Entities, Players: report.Players, Failed: report.Failed,
	})
	return func() { s.finish(a, StatusTeleported) }
}

func (s *Sequencer) transfer(a *activation, dst world.World, cand chain.NodeLocation) (volume.Report, error) {
	node := a.req.Node
	ext := s.opts.Transfer

	snap, err := volume.Capture(a.src, node.Anchor, node.Facing, ext.Mins, ext.Maxs, s.opts.Policy)
	if err != nil {
		return volume.Report{}, err
	}
	return volume.Restore(snap, s.universe, dst, cand.Anchor, cand.Facing)
}

func (s *Sequencer) prune(a *activation, m chain.NodeLocation, reason string) {
	if s.registry.Remove(a.chain, m) {
		s.notePruned(a, m, reason)
		a.dirty = true
		s.persist(a)
	}
}

func (s *Sequencer) notePruned(a *activation, m chain.NodeLocation, reason string) {
	s.log.Info("🧹 Узел %s удалён из цепочки %d: %s", m, a.chain.ID, reason)
	a.outcome.Pruned = append(a.outcome.Pruned, m)
	s.opts.Metrics.observePruned(reason)
	s.emit(a, eventbus.TypePortalMemberPruned, 3, eventbus.PortalMemberPruned{
		ChainID: a.chain.ID, Node: nodeRef(m), Reason: reason,
	})
}

func (s *Sequencer) persist(a *activation) {
	if !a.dirty {
		return
	}
	a.dirty = false
	if s.opts.Persist != nil {
		s.opts.Persist(s.registry.ToDocument())
	}
}

func (s *Sequencer) finish(a *activation, status Status) {
	s.persist(a)
	for _, t := range a.srcTickets {
		s.universe.Residency().RemoveTicket(t)
	}
	a.srcTickets = nil

	a.outcome.Status = status
	a.span.SetAttributes(attribute.String("portal.outcome", status.String()))
	if err := a.outcome.Err(); err != nil {
		a.span.SetStatus(codes.Error, err.Error())
	}
	a.span.End()
	s.opts.Metrics.observeOutcome(a.outcome)

	a.out <- a.outcome
	close(a.out)
}

// tickets возвращает резервирования для всех чанков безопасного объёма узла
func (s *Sequencer) tickets(n chain.NodeLocation) []world.Ticket {
	chunks := n.Box(s.registry.SafeExtent()).Chunks()
	out := make([]world.Ticket, len(chunks))
	for i, c := range chunks {
		out[i] = world.Ticket{Kind: world.TicketPortal, World: n.World, Chunk: c}
	}
	return out
}

// emit публикует событие, не блокируя поток симуляции
func (s *Sequencer) emit(a *activation, eventType string, priority int, payload interface{}) {
	if s.opts.Bus == nil {
		return
	}
	bus, corr := s.opts.Bus, a.req.CorrelationID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := eventbus.Emit(ctx, bus, eventType, corr, priority, payload); err != nil {
			s.log.Warn("Sequencer: событие %s не опубликовано: %v", eventType, err)
		}
	}()
}

func footprintCorners(n chain.NodeLocation) []vec.Vec3 {
	t := n.Transform()
	return []vec.Vec3{
		t.LocalToGlobal(vec.Vec3{X: -1, Z: -1}),
		t.LocalToGlobal(vec.Vec3{X: -1, Z: 1}),
		t.LocalToGlobal(vec.Vec3{X: 1, Z: -1}),
		t.LocalToGlobal(vec.Vec3{X: 1, Z: 1}),
	}
}

func nodeRef(n chain.NodeLocation) eventbus.NodeRef {
	return eventbus.NodeRef{
		World:  string(n.World),
		X:      n.Anchor.X,
		Y:      n.Anchor.Y,
		Z:      n.Anchor.Z,
		Facing: n.Facing.String(),
	}
}
