package volume

import (
	"sort"

	"github.com/annel0/portalnet/internal/logging"
	"github.com/annel0/portalnet/internal/orient"
	"github.com/annel0/portalnet/internal/vec"
	"github.com/annel0/portalnet/internal/world"
	"github.com/google/uuid"
)

// Restore воспроизводит снимок у узла (anchor, facing) мира dst.
// Ошибки отдельных сущностей логируются и не прерывают восстановление.
func Restore(snap *Snapshot, u world.Universe, dst world.World, anchor vec.Vec3, facing orient.Facing) (Report, error) {
	var report Report

	if snap.consumed {
		return report, ErrSnapshotConsumed
	}
	t, err := orient.NewTransform(anchor, facing)
	if err != nil {
		return report, err
	}
	snap.consumed = true

	for _, rec := range snap.Blocks {
		pos := t.LocalToGlobal(rec.Offset)

		dst.ClearBlockEntity(pos)
		dst.SetBlock(pos, rec.State.Rotate(t.ToWorld()))
		report.Blocks++

		if rec.Payload != nil {
			if err := dst.SetBlockEntity(pos, rec.Payload); err != nil {
				logging.Warn("volume: блок %v потерял данные: %v", pos, err)
			}
		}
	}

	// Все участники посадки спешиваются до пересоздания
	for _, rec := range snap.Players {
		if rec.Player.Vehicle() != nil {
			dst.Dismount(rec.Player)
		}
	}

	restored := make(map[uuid.UUID]world.Entity)
	for _, rec := range snap.Entities {
		e, err := dst.LoadEntity(rec.Type, rec.Payload)
		if err != nil {
			logging.Warn("volume: %v: %s: %v", ErrEntityLoad, rec.Type, err)
			report.Failed++
			continue
		}

		pos := t.LocalToGlobalPoint(rec.Offset)
		yaw := orient.RotateFacingAngle(rec.Yaw, t.ToWorld())
		if err := dst.SpawnEntity(e, pos, yaw); err != nil {
			logging.Warn("volume: сущность %s не появилась в %v: %v", rec.Type, pos, err)
			report.Failed++
			continue
		}

		mapTree(rec.tree, e, restored)
		report.Entities++
	}

	for _, rec := range snap.Players {
		pos := t.LocalToGlobalPoint(rec.Offset)
		yaw := orient.RotateFacingAngle(rec.Yaw, t.ToWorld())
		if err := u.TeleportPlayer(rec.Player, dst, pos, yaw); err != nil {
			logging.Warn("volume: игрок %s не перемещён: %v", rec.Player.Name(), err)
			report.Failed++
			continue
		}
		report.Players++
	}

	for vehicleID, links := range snap.Riders {
		vehicle, ok := restored[vehicleID]
		if !ok {
			continue
		}
		remount(dst, vehicle, links)
	}

	return report, nil
}

// mapTree сопоставляет исходные идентификаторы дерева с пересозданными сущностями
func mapTree(original []uuid.UUID, root world.Entity, out map[uuid.UUID]world.Entity) {
	fresh := []world.Entity{root}
	world.WalkPassengers(root, func(p world.Entity) { fresh = append(fresh, p) })

	for i, id := range original {
		if i >= len(fresh) {
			break
		}
		out[id] = fresh[i]
	}
}

// remount восстанавливает полный порядок пассажиров, вставляя игроков на их места
func remount(w world.World, vehicle world.Entity, links []RiderLink) {
	links = append([]RiderLink(nil), links...)
	sort.SliceStable(links, func(i, j int) bool { return links[i].Slot < links[j].Slot })

	current := vehicle.Passengers()
	order := make([]world.Entity, 0, len(current)+len(links))
	next := 0
	for _, link := range links {
		for len(order) < link.Slot && next < len(current) {
			order = append(order, current[next])
			next++
		}
		order = append(order, link.Player)
	}
	order = append(order, current[next:]...)

	for _, p := range current {
		w.Dismount(p)
	}
	for _, p := range order {
		if err := w.Mount(p, vehicle); err != nil {
			logging.Warn("volume: не удалось посадить %s на %s: %v", p.ID(), vehicle.ID(), err)
		}
	}
}
