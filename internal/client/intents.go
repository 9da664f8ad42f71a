package client

import (
	"errors"
	"math"
	"sort"
	"time"

	"grovecraft.io/internal/client/deferred"
	"grovecraft.io/internal/protocol"
	"grovecraft.io/internal/sim/store"
	"grovecraft.io/internal/sim/worldgen"
)

var ErrNotJoined = errors.New("client: not joined")

// SubmitIntent moves the local player immediately and tells the server.
func (r *Replica) SubmitIntent(x, y, facing float64, moving bool) error {
	id := r.LocalID()
	if id == "" {
		return ErrNotJoined
	}
	r.shadow.UpdatePlayer(id, func(p *store.Player) bool {
		p.X, p.Y, p.Facing, p.Moving = x, y, facing, moving
		return true
	})
	r.emit(protocol.PlayerMoveMsg{
		Envelope: protocol.NewEnvelope(protocol.TypePlayerMove, id),
		X:        x,
		Y:        y,
		Facing:   facing,
		Moving:   moving,
	})
	return nil
}

func (r *Replica) Heartbeat() {
	r.emit(protocol.HeartbeatMsg{Envelope: protocol.NewEnvelope(protocol.TypeHeartbeat, r.LocalID())})
}

func (r *Replica) RequestRegion(x, y, radius float64) {
	r.emit(protocol.RegionRequestMsg{
		Envelope: protocol.NewEnvelope(protocol.TypeRegionRequest, r.LocalID()),
		X:        x,
		Y:        y,
		Radius:   radius,
	})
}

func (r *Replica) Consume(item string) {
	r.emit(protocol.ConsumeMsg{
		Envelope: protocol.NewEnvelope(protocol.TypeConsume, r.LocalID()),
		Item:     item,
	})
}

func (r *Replica) Leave() {
	r.emit(protocol.LeaveMsg{Envelope: protocol.NewEnvelope(protocol.TypeLeave, r.LocalID())})
}

// Attack predicts the hit locally and sends ATTACK. A target the shadow has
// never seen is resolved through the generator so the prediction has
// something to damage.
func (r *Replica) Attack(targetID string) error {
	id := r.LocalID()
	if id == "" {
		return ErrNotJoined
	}
	res, known := r.shadow.Resource(targetID)
	if !known {
		r.mu.Lock()
		rec := r.rec
		r.mu.Unlock()
		if d, ok := rec.ByID(targetID); ok && !d.Empty() && !r.shadow.IsCleared(targetID) {
			res = store.Resource{ID: d.ID, Kind: d.Kind, X: d.X, Y: d.Y, Health: worldgen.MaxHealth, Exists: true}
		}
	}
	if res.ID != "" && res.Exists {
		r.remember(targetID, pendingAction{action: protocol.TypeAttack, prevRes: ptrIf(known, res)})
		predicted := res
		if spec, ok := worldgen.Spec(res.Kind); ok {
			// Destruction is left to the server; the prediction never drops
			// below one hit point.
			predicted.Health = math.Max(1, res.Health-spec.Damage)
		}
		r.shadow.PutResource(predicted)
	}
	r.emit(protocol.AttackMsg{
		Envelope: protocol.NewEnvelope(protocol.TypeAttack, id),
		TargetID: targetID,
		X:        res.X,
		Y:        res.Y,
	})
	return nil
}

// Pickup hides the item locally and sends PICKUP.
func (r *Replica) Pickup(itemID string) error {
	id := r.LocalID()
	if id == "" {
		return ErrNotJoined
	}
	if it, ok := r.shadow.RemoveItem(itemID); ok {
		r.remember(itemID, pendingAction{action: protocol.TypePickup, prevItem: &it})
		r.queue.Enqueue(func() { r.presenter.ItemDisposed(itemID) })
	}
	r.emit(protocol.PickupMsg{
		Envelope: protocol.NewEnvelope(protocol.TypePickup, id),
		ItemID:   itemID,
	})
	return nil
}

// Plant shows a provisional plant at the target tile and sends PLANT.
func (r *Replica) Plant(item string, x, y float64) error {
	id := r.LocalID()
	if id == "" {
		return ErrNotJoined
	}
	if seed, ok := worldgen.Seed(item); ok {
		qx, qy := worldgen.Quantize(x, y)
		px, py := qx*worldgen.TileSize, qy*worldgen.TileSize
		p := store.Planted{
			ID:        worldgen.PlantedID(px, py),
			Kind:      seed.Planted,
			GrowsInto: seed.GrowsInto,
			X:         float64(px),
			Y:         float64(py),
			Occupied:  true,
			PlantedBy: id,
		}
		if _, inserted := r.shadow.InsertPlanted(p); inserted {
			r.remember(p.ID, pendingAction{action: protocol.TypePlant, planted: true})
			r.queue.Enqueue(func() { r.presenter.PlantedCreated(p) })
		}
	}
	r.emit(protocol.PlantMsg{
		Envelope: protocol.NewEnvelope(protocol.TypePlant, id),
		Item:     item,
		X:        x,
		Y:        y,
	})
	return nil
}

// remember records the undo state of target. An older pending entry wins so
// a rejection restores the state before the first unconfirmed action.
func (r *Replica) remember(target string, pa pendingAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[target]; !ok {
		r.pending[target] = pa
	}
}

func ptrIf[T any](ok bool, v T) *T {
	if !ok {
		return nil
	}
	return &v
}

type PlayerView struct {
	ID     string
	Name   string
	X, Y   float64
	Facing float64
	Moving bool
	Health float64
	Hunger float64
	Local  bool
}

// View is what one presentation frame draws.
type View struct {
	LocalID   string
	Players   []PlayerView
	Resources []store.Resource
	Items     []store.Item
	Planted   []store.Planted
	Weather   []store.WeatherZone
	Respawns  []protocol.RespawnRecord
	Inventory []protocol.ItemStack
	Deferred  deferred.Stats
	Executed  int
}

// Frame runs one presentation frame: deferred presenter callbacks first,
// then remote interpolation by dt, then a read of the shadow store.
func (r *Replica) Frame(dt time.Duration) View {
	n := r.queue.RunPending()
	r.Interpolate(dt)

	r.mu.Lock()
	localID := r.localID
	tickRate := r.params.TickRateHz
	now := r.now()
	respawns := make([]protocol.RespawnRecord, 0, len(r.respawns))
	for _, c := range r.respawns {
		rec := c.rec
		if tickRate > 0 {
			elapsed := int(now.Sub(c.receivedAt).Seconds() * float64(tickRate))
			rec.RemainingTicks = max(0, rec.RemainingTicks-elapsed)
		}
		respawns = append(respawns, rec)
	}
	display := make(map[string][2]float64, len(r.remotes))
	for id, rm := range r.remotes {
		display[id] = [2]float64{rm.dx, rm.dy}
	}
	r.mu.Unlock()
	sort.Slice(respawns, func(i, j int) bool { return respawns[i].TargetID < respawns[j].TargetID })

	v := View{
		LocalID:  localID,
		Items:    r.shadow.Items(),
		Planted:  r.shadow.AllPlanted(),
		Weather:  r.shadow.Weather(),
		Respawns: respawns,
		Deferred: r.queue.Stats(),
		Executed: n,
	}
	for _, res := range r.shadow.Resources() {
		if res.Exists {
			v.Resources = append(v.Resources, res)
		}
	}
	for _, p := range r.shadow.Players() {
		pv := PlayerView{
			ID: p.ID, Name: p.Name, X: p.X, Y: p.Y, Facing: p.Facing, Moving: p.Moving,
			Health: p.Health, Hunger: p.Hunger, Local: p.ID == localID,
		}
		if d, ok := display[p.ID]; ok && !pv.Local {
			pv.X, pv.Y = d[0], d[1]
		}
		if pv.Local {
			v.Inventory = store.InventoryStacks(p.Inventory)
		}
		v.Players = append(v.Players, pv)
	}
	return v
}

// Interpolate moves every remote player's displayed position toward its last
// authoritative position at InterpSpeed. Gaps larger than SnapDistance are
// closed at once.
func (r *Replica) Interpolate(dt time.Duration) {
	step := r.cfg.InterpSpeed * dt.Seconds()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rm := range r.remotes {
		dx, dy := rm.tx-rm.dx, rm.ty-rm.dy
		d := math.Hypot(dx, dy)
		switch {
		case d == 0:
		case d > r.cfg.SnapDistance || d <= step:
			rm.dx, rm.dy = rm.tx, rm.ty
		default:
			rm.dx += dx / d * step
			rm.dy += dy / d * step
		}
	}
}

// DisplayPosition returns where a remote player is currently drawn.
func (r *Replica) DisplayPosition(id string) (x, y float64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.remotes[id]
	if !ok {
		return 0, 0, false
	}
	return rm.dx, rm.dy, true
}

// RunPendingDeferredOperations drains the presenter queue without building a
// view. Hosts with their own render loop call it once per frame.
func (r *Replica) RunPendingDeferredOperations() int {
	return r.queue.RunPending()
}
