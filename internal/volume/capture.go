package volume

import (
	"fmt"

	"github.com/annel0/portalnet/internal/logging"
	"github.com/annel0/portalnet/internal/orient"
	"github.com/annel0/portalnet/internal/vec"
	"github.com/annel0/portalnet/internal/world"
	"github.com/google/uuid"
)

// BelowMargin - насколько объём выборки сущностей опускается ниже блоков (падающие и лежащие сущности)
const BelowMargin = 0.5

// Capture снимает содержимое локального бокса [mins, maxs] узла (anchor, facing)
func Capture(w world.World, anchor vec.Vec3, facing orient.Facing, mins, maxs vec.Vec3, policy Policy) (*Snapshot, error) {
	t, err := orient.NewTransform(anchor, facing)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Policy: policy, Riders: make(map[uuid.UUID][]RiderLink)}

	for offX := mins.X; offX <= maxs.X; offX++ {
		for offY := mins.Y; offY <= maxs.Y; offY++ {
			for offZ := mins.Z; offZ <= maxs.Z; offZ++ {
				off := vec.Vec3{X: offX, Y: offY, Z: offZ}
				pos := t.LocalToGlobal(off)

				rec := BlockRecord{Offset: off, State: w.Block(pos).Rotate(t.ToLocal())}
				if data, ok := w.BlockEntity(pos); ok {
					rec.Payload = data
				}
				snap.Blocks = append(snap.Blocks, rec)

				if policy.Mode == Cut {
					// Сначала опустошаем, чтобы содержимое не выпало
					w.ClearBlockEntity(pos)
					w.SetBlock(pos, world.AirState)
				}
			}
		}
	}

	captureEntities(w, t, t.LocalBox(mins, maxs), snap)
	return snap, nil
}

func captureEntities(w world.World, t orient.Transform, box vec.Box, snap *Snapshot) {
	area := box.ToFloatBox()
	area.Min.Y -= BelowMargin

	seen := make(map[uuid.UUID]bool)
	players := make(map[uuid.UUID]bool)
	var removals []world.Entity

	addPlayer := func(p world.Player) {
		if snap.Policy.Players == ExcludePlayers || players[p.ID()] {
			return
		}
		players[p.ID()] = true
		snap.Players = append(snap.Players, PlayerRecord{
			Offset: t.GlobalToLocalPoint(p.Position()),
			Yaw:    orient.RotateFacingAngle(p.Yaw(), t.ToLocal()),
			Player: p,
		})
	}

	for _, e := range w.EntitiesIn(area) {
		if e.IsPlayer() {
			if p, ok := e.(world.Player); ok {
				addPlayer(p)
			}
			continue
		}

		root := rootInside(e, area)
		if seen[root.ID()] {
			continue
		}
		seen[root.ID()] = true
		world.WalkPassengers(root, func(p world.Entity) { seen[p.ID()] = true })

		if !w.Persistable(root.Type()) {
			logging.Warn("volume: сущность %s (%s) не может быть перенесена, пропуск", root.ID(), root.Type())
			snap.Skipped++
			continue
		}

		data, err := w.SaveEntity(root)
		if err != nil {
			logging.Warn("volume: %v: %s (%s): %v", ErrEntitySave, root.ID(), root.Type(), err)
			snap.Skipped++
			continue
		}

		rec := EntityRecord{
			Offset:  t.GlobalToLocalPoint(root.Position()),
			Yaw:     orient.RotateFacingAngle(root.Yaw(), t.ToLocal()),
			Type:    root.Type(),
			Payload: data,
			tree:    []uuid.UUID{root.ID()},
		}

		// Игроки не попадают в сохранённый список пассажиров: запоминаем их места отдельно
		linkRiders(root, snap, addPlayer)
		world.WalkPassengers(root, func(p world.Entity) {
			rec.tree = append(rec.tree, p.ID())
			linkRiders(p, snap, addPlayer)
		})

		snap.Entities = append(snap.Entities, rec)
		removals = append(removals, root)
	}

	if snap.Policy.Mode == Cut {
		for _, e := range removals {
			// Транспорт снаружи объёма остаётся на месте без вырезанных пассажиров
			if e.Vehicle() != nil {
				w.Dismount(e)
			}
			w.RemoveEntity(e)
		}
	}
}

// rootInside поднимается по транспорту, пока он неигрок и лежит внутри area
func rootInside(e world.Entity, area vec.FloatBox) world.Entity {
	for {
		v := e.Vehicle()
		if v == nil || v.IsPlayer() || !area.ContainsStrict(v.Position()) {
			return e
		}
		e = v
	}
}

func linkRiders(vehicle world.Entity, snap *Snapshot, addPlayer func(world.Player)) {
	if snap.Policy.Players == ExcludePlayers {
		return
	}
	for slot, p := range vehicle.Passengers() {
		if !p.IsPlayer() {
			continue
		}
		player, ok := p.(world.Player)
		if !ok {
			continue
		}
		addPlayer(player)
		snap.Riders[vehicle.ID()] = append(snap.Riders[vehicle.ID()], RiderLink{Player: player, Slot: slot})
	}
}

// String возвращает краткую сводку снимка
func (s *Snapshot) String() string {
	return fmt.Sprintf("snapshot(%s: %d blocks, %d entities, %d players, %d skipped)",
		s.Policy, len(s.Blocks), len(s.Entities), len(s.Players), s.Skipped)
}
