package world

import (
	"strconv"

	"grovecraft.io/internal/protocol"
	"grovecraft.io/internal/sim/respawn"
	"grovecraft.io/internal/sim/store"
	"grovecraft.io/internal/sim/worldgen"
)

const (
	actionAttack  = "ATTACK"
	actionPickup  = "PICKUP"
	actionPlant   = "PLANT"
	actionConsume = "CONSUME"
)

// DropPattern is one entry of the drop table: counts of StackA and SeedB.
type DropPattern struct {
	StackA int
	SeedB  int
}

// DropPatterns are drawn uniformly on every destruction.
var DropPatterns = [3]DropPattern{
	{StackA: 1, SeedB: 1},
	{StackA: 2},
	{SeedB: 2},
}

// rejected counts r, logs it and, when enabled, tells the actor.
func (w *World) rejected(actor, action, target string, r *Rejection) error {
	w.rejections.Add(1)
	w.log.WithField("player", actor).WithField("action", action).WithField("target", target).
		WithField("code", r.Code).Debug(r.Reason)
	if w.cfg.SendRejections {
		w.bc.SendTo(actor, protocol.ActionRejectedMsg{
			Envelope: protocol.NewEnvelope(protocol.TypeActionRejected, protocol.ServerSenderID),
			Action:   action,
			TargetID: target,
			Code:     r.Code,
			Reason:   r.Reason,
		})
	}
	return r
}

// Attack damages a resource, materializing it from the generator first when
// the server has never seen it.
func (w *World) Attack(actor string, msg *protocol.AttackMsg) error {
	target := msg.TargetID
	player, ok := w.store.Player(actor)
	if !ok {
		return w.rejected(actor, actionAttack, target, reject(protocol.ErrInvalidTarget, "unknown player"))
	}

	res, known := w.store.Resource(target)
	var gen worldgen.Descriptor
	if known {
		if !res.Exists {
			return w.rejected(actor, actionAttack, target, reject(protocol.ErrInvalidTarget, "already destroyed"))
		}
	} else {
		if w.store.IsCleared(target) {
			return w.rejected(actor, actionAttack, target, reject(protocol.ErrInvalidTarget, "cleared"))
		}
		d, ok := w.rec.ByID(target)
		if !ok || d.Empty() {
			return w.rejected(actor, actionAttack, target, reject(protocol.ErrInvalidTarget, "nothing generated at %s", target))
		}
		gen = d
		res = freshResource(d.ID, d.Kind, d.X, d.Y)
	}

	if !w.inRange(player, res.X, res.Y) {
		return w.rejected(actor, actionAttack, target, reject(protocol.ErrOutOfRange, "target %.0f,%.0f beyond %.0f of %.0f,%.0f",
			res.X, res.Y, w.cfg.ActionRange, player.X, player.Y))
	}

	if !known {
		created, ok := w.materialize(actor, gen)
		if !ok {
			return w.rejected(actor, actionAttack, target, reject(protocol.ErrInvalidTarget, "cleared"))
		}
		res = created
	}

	spec, _ := worldgen.Spec(res.Kind)
	destroyed := false
	updated, ok := w.store.UpdateResource(target, func(r *store.Resource) bool {
		if !r.Exists {
			return false
		}
		r.Health -= spec.Damage
		if r.Health <= 0 {
			r.Health = 0
			r.Exists = false
			destroyed = true
		}
		return true
	})
	if !ok {
		return w.rejected(actor, actionAttack, target, reject(protocol.ErrInvalidTarget, "already destroyed"))
	}

	if !destroyed {
		w.bc.Broadcast(protocol.ResourceDamagedMsg{
			Envelope: protocol.NewEnvelope(protocol.TypeResourceDamaged, actor),
			Resource: updated.Record(),
			By:       actor,
		}, "")
		return nil
	}
	w.destroy(actor, updated, spec)
	return nil
}

// materialize inserts a generated resource and announces it to every
// session, the actor included. The announcement happens under the store's
// lock for the id, so a concurrent attacker's damage is always broadcast
// after it.
func (w *World) materialize(actor string, d worldgen.Descriptor) (store.Resource, bool) {
	cleared := false
	r, created := w.store.MaterializeResource(d.ID, func() (store.Resource, bool) {
		if w.store.IsCleared(d.ID) {
			// The respawn scheduler owns this id now.
			cleared = true
			return store.Resource{}, false
		}
		return freshResource(d.ID, d.Kind, d.X, d.Y), true
	}, func(r store.Resource) {
		w.bc.Broadcast(protocol.ResourceCreatedMsg{
			Envelope: protocol.NewEnvelope(protocol.TypeResourceCreated, protocol.ServerSenderID),
			Resource: r.Record(),
			Cause:    protocol.CauseMaterialized,
		}, "")
	})
	if cleared {
		return store.Resource{}, false
	}
	if !created {
		// Another session inserted it first; its announcement is already queued.
		return r, true
	}
	w.materialized.Add(1)
	w.log.WithField("entity", d.ID).WithField("kind", d.Kind).WithField("player", actor).Debug("materialized")
	w.writeAudit(AuditEntry{Actor: actor, Action: "MATERIALIZE", Target: d.ID, Details: map[string]any{"kind": string(d.Kind)}})
	return r, true
}

func (w *World) destroy(actor string, r store.Resource, spec worldgen.KindSpec) {
	w.store.Clear(r.ID)

	var rec *protocol.RespawnRecord
	if spec.Renewable {
		e := respawn.Entry{
			TargetID:  r.ID,
			Category:  string(spec.Category),
			Kind:      string(r.Kind),
			X:         r.X,
			Y:         r.Y,
			Remaining: w.cfg.RespawnTicks[spec.Category],
		}
		w.respawns.Schedule(e)
		rr := respawnRecord(e)
		rec = &rr
	}

	pattern := DropPatterns[w.intn(len(DropPatterns))]
	drops := w.dropItems(r, spec, pattern)

	w.bc.Broadcast(protocol.ResourceDestroyedMsg{
		Envelope: protocol.NewEnvelope(protocol.TypeResourceDestroyed, actor),
		Resource: r.Record(),
		By:       actor,
		Respawn:  rec,
	}, "")
	for _, it := range drops {
		w.bc.Broadcast(protocol.ItemDroppedMsg{
			Envelope: protocol.NewEnvelope(protocol.TypeItemDropped, protocol.ServerSenderID),
			Item:     it.Record(),
		}, "")
	}

	w.log.WithField("entity", r.ID).WithField("player", actor).Debug("destroyed")
	w.writeAudit(AuditEntry{Actor: actor, Action: "DESTROY", Target: r.ID, Details: map[string]any{
		"kind":  string(r.Kind),
		"drops": pattern,
	}})
}

func (w *World) dropItems(r store.Resource, spec worldgen.KindSpec, pattern DropPattern) []store.Item {
	var out []store.Item
	add := func(kind string, n int, offset float64) {
		if n <= 0 {
			return
		}
		it := store.Item{
			ID:    "i-" + strconv.FormatUint(w.nextItem.Add(1), 10),
			Kind:  kind,
			X:     r.X + offset,
			Y:     r.Y,
			Count: n,
		}
		w.store.PutItem(it)
		out = append(out, it)
	}
	add(spec.StackA, pattern.StackA, -8)
	add(spec.SeedB, pattern.SeedB, 8)
	return out
}

// Pickup moves a dropped item into the actor's inventory.
func (w *World) Pickup(actor string, msg *protocol.PickupMsg) error {
	player, ok := w.store.Player(actor)
	if !ok {
		return w.rejected(actor, actionPickup, msg.ItemID, reject(protocol.ErrInvalidTarget, "unknown player"))
	}
	it, ok := w.store.Item(msg.ItemID)
	if !ok || it.Collected {
		return w.rejected(actor, actionPickup, msg.ItemID, reject(protocol.ErrInvalidTarget, "no such item"))
	}
	if !w.inRange(player, it.X, it.Y) {
		return w.rejected(actor, actionPickup, msg.ItemID, reject(protocol.ErrOutOfRange, "item beyond %.0f", w.cfg.ActionRange))
	}
	taken, ok := w.store.TakeItem(msg.ItemID, nil)
	if !ok {
		return w.rejected(actor, actionPickup, msg.ItemID, reject(protocol.ErrInvalidTarget, "already taken"))
	}
	updated, ok := w.store.UpdatePlayer(actor, func(p *store.Player) bool {
		if p.Inventory == nil {
			p.Inventory = map[string]int{}
		}
		p.Inventory[taken.Kind] += taken.Count
		return true
	})
	if !ok {
		// The player left mid-pickup; put the item back.
		w.store.PutItem(taken)
		return w.rejected(actor, actionPickup, msg.ItemID, reject(protocol.ErrInvalidTarget, "unknown player"))
	}

	w.bc.Broadcast(protocol.ItemRemovedMsg{
		Envelope: protocol.NewEnvelope(protocol.TypeItemRemoved, actor),
		ItemID:   taken.ID,
		By:       actor,
	}, "")
	w.sendInventory(updated)
	w.writeAudit(AuditEntry{Actor: actor, Action: "PICKUP", Target: taken.ID, Details: map[string]any{"kind": taken.Kind, "count": taken.Count}})
	return nil
}

// Plant places a seed on the tile containing (x, y).
func (w *World) Plant(actor string, msg *protocol.PlantMsg) error {
	qx, qy := worldgen.Quantize(msg.X, msg.Y)
	ox, oy := qx*worldgen.TileSize, qy*worldgen.TileSize
	pid := worldgen.PlantedID(ox, oy)

	seed, ok := worldgen.Seed(msg.Item)
	if !ok {
		return w.rejected(actor, actionPlant, pid, reject(protocol.ErrInvalidTarget, "%s is not plantable", msg.Item))
	}
	player, ok := w.store.Player(actor)
	if !ok {
		return w.rejected(actor, actionPlant, pid, reject(protocol.ErrInvalidTarget, "unknown player"))
	}
	if player.Inventory[msg.Item] <= 0 {
		return w.rejected(actor, actionPlant, pid, reject(protocol.ErrNoResource, "no %s in inventory", msg.Item))
	}
	x, y := float64(ox), float64(oy)
	if !w.inRange(player, x, y) {
		return w.rejected(actor, actionPlant, pid, reject(protocol.ErrOutOfRange, "tile beyond %.0f", w.cfg.ActionRange))
	}
	if w.tileOccupied(qx, qy) {
		return w.rejected(actor, actionPlant, pid, reject(protocol.ErrOccupied, "tile %d,%d occupied", ox, oy))
	}

	updated, ok := w.store.UpdatePlayer(actor, func(p *store.Player) bool {
		if p.Inventory[msg.Item] <= 0 {
			return false
		}
		p.Inventory[msg.Item]--
		if p.Inventory[msg.Item] == 0 {
			delete(p.Inventory, msg.Item)
		}
		return true
	})
	if !ok {
		return w.rejected(actor, actionPlant, pid, reject(protocol.ErrNoResource, "no %s in inventory", msg.Item))
	}

	planted, created := w.store.InsertPlanted(store.Planted{
		ID:        pid,
		Kind:      seed.Planted,
		GrowsInto: seed.GrowsInto,
		X:         x,
		Y:         y,
		Occupied:  true,
		PlantedBy: actor,
	})
	if !created {
		w.refund(actor, msg.Item)
		return w.rejected(actor, actionPlant, pid, reject(protocol.ErrOccupied, "tile %d,%d occupied", ox, oy))
	}

	spec, _ := worldgen.Spec(seed.GrowsInto)
	w.growth.Schedule(respawn.Entry{
		TargetID:  pid,
		Category:  string(spec.Category),
		Kind:      string(seed.GrowsInto),
		X:         x,
		Y:         y,
		Remaining: w.cfg.GrowthTicks,
	})

	w.bc.Broadcast(protocol.PlantedMsg{
		Envelope: protocol.NewEnvelope(protocol.TypePlanted, actor),
		Planted:  planted.Record(w.cfg.GrowthTicks),
		By:       actor,
	}, "")
	w.sendInventory(updated)
	w.writeAudit(AuditEntry{Actor: actor, Action: "PLANT", Target: pid, Details: map[string]any{"item": msg.Item}})
	return nil
}

// tileOccupied reports whether a resource stands, will stand, or could be
// generated on the tile, or something is already planted there.
func (w *World) tileOccupied(qx, qy int) bool {
	ox, oy := qx*worldgen.TileSize, qy*worldgen.TileSize
	if _, ok := w.store.Planted(worldgen.PlantedID(ox, oy)); ok {
		return true
	}
	rid := worldgen.ResourceID(ox, oy)
	if r, ok := w.store.Resource(rid); ok {
		if r.Exists {
			return true
		}
		_, pending := w.respawns.Remaining(rid)
		return pending
	}
	if w.store.IsCleared(rid) {
		_, pending := w.respawns.Remaining(rid)
		return pending
	}
	return !worldgen.ReconcileTile(w.cfg.Seed, qx, qy).Empty()
}

func (w *World) refund(actor, item string) {
	if p, ok := w.store.UpdatePlayer(actor, func(p *store.Player) bool {
		if p.Inventory == nil {
			p.Inventory = map[string]int{}
		}
		p.Inventory[item]++
		return true
	}); ok {
		w.sendInventory(p)
	}
}

// Consume eats one unit of an edible item.
func (w *World) Consume(actor string, msg *protocol.ConsumeMsg) error {
	n, ok := worldgen.Nutrition(msg.Item)
	if !ok {
		return w.rejected(actor, actionConsume, msg.Item, reject(protocol.ErrInvalidTarget, "%s is not edible", msg.Item))
	}
	updated, ok := w.store.UpdatePlayer(actor, func(p *store.Player) bool {
		if p.Inventory[msg.Item] <= 0 {
			return false
		}
		p.Inventory[msg.Item]--
		if p.Inventory[msg.Item] == 0 {
			delete(p.Inventory, msg.Item)
		}
		p.Hunger -= n
		if p.Hunger < 0 {
			p.Hunger = 0
		}
		return true
	})
	if !ok {
		return w.rejected(actor, actionConsume, msg.Item, reject(protocol.ErrNoResource, "no %s in inventory", msg.Item))
	}
	w.broadcastPlayer(updated, "")
	w.sendInventory(updated)
	return nil
}
