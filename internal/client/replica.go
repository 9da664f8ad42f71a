package client

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"

	"grovecraft.io/internal/client/deferred"
	"grovecraft.io/internal/logging"
	"grovecraft.io/internal/protocol"
	"grovecraft.io/internal/sim/store"
	"grovecraft.io/internal/sim/worldgen"
)

const (
	DefaultInterpSpeed  = 600.0 // world units per second
	DefaultSnapDistance = 256.0
)

type ReplicaConfig struct {
	InterpSpeed           float64
	SnapDistance          float64
	DeferredWarnThreshold int
}

type remote struct {
	tx, ty float64 // last authoritative position
	dx, dy float64 // displayed position
}

type pendingAction struct {
	action   string
	prevRes  *store.Resource
	prevItem *store.Item
	planted  bool
}

type respawnCountdown struct {
	rec        protocol.RespawnRecord
	receivedAt time.Time
}

// Replica applies replicated messages to a shadow store. Apply runs on the
// network goroutine; Frame runs on the presentation goroutine. Presenter
// calls are only made from Frame, through the deferred queue.
type Replica struct {
	cfg       ReplicaConfig
	log       logrus.FieldLogger
	shadow    *store.Store
	queue     *deferred.Queue
	presenter Presenter
	send      func(any)

	mu         deadlock.Mutex
	rec        *worldgen.Reconciler
	params     protocol.WorldParams
	localID    string
	remotes    map[string]*remote
	pending    map[string]pendingAction
	respawns   map[string]respawnCountdown
	rtt        time.Duration
	lastReject *protocol.ActionRejectedMsg
	now        func() time.Time
}

// NewReplica builds an empty replica. send delivers outbound messages to the
// server; it may be nil for a read-only replica.
func NewReplica(cfg ReplicaConfig, presenter Presenter, send func(any), log logrus.FieldLogger) *Replica {
	if cfg.InterpSpeed <= 0 {
		cfg.InterpSpeed = DefaultInterpSpeed
	}
	if cfg.SnapDistance <= 0 {
		cfg.SnapDistance = DefaultSnapDistance
	}
	if presenter == nil {
		presenter = NopPresenter{}
	}
	log = logging.OrDiscard(log)
	return &Replica{
		cfg:       cfg,
		log:       log,
		shadow:    store.New(0, false),
		queue:     deferred.New(cfg.DeferredWarnThreshold, log),
		presenter: presenter,
		send:      send,
		remotes:   map[string]*remote{},
		pending:   map[string]pendingAction{},
		respawns:  map[string]respawnCountdown{},
		now:       time.Now,
	}
}

func (r *Replica) Shadow() *store.Store { return r.shadow }

// SetSend replaces the outbound hook. The network client installs it once the
// socket is up.
func (r *Replica) SetSend(fn func(any)) {
	r.mu.Lock()
	r.send = fn
	r.mu.Unlock()
}

func (r *Replica) emit(msg any) {
	r.mu.Lock()
	fn := r.send
	r.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

func (r *Replica) Queue() *deferred.Queue { return r.queue }

func (r *Replica) LocalID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.localID
}

func (r *Replica) Params() protocol.WorldParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.params
}

func (r *Replica) RTT() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rtt
}

// LastRejection returns the most recent ACTION_REJECTED, if any.
func (r *Replica) LastRejection() (protocol.ActionRejectedMsg, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastReject == nil {
		return protocol.ActionRejectedMsg{}, false
	}
	return *r.lastReject, true
}

// KindAt answers what the local player sees at (x, y): the shadow store when
// it knows the tile, the generator otherwise.
func (r *Replica) KindAt(x, y float64) worldgen.Kind {
	qx, qy := worldgen.Quantize(x, y)
	rid := worldgen.ResourceID(qx*worldgen.TileSize, qy*worldgen.TileSize)
	if res, ok := r.shadow.Resource(rid); ok {
		if !res.Exists {
			return worldgen.KindNone
		}
		return res.Kind
	}
	if r.shadow.IsCleared(rid) {
		return worldgen.KindNone
	}
	r.mu.Lock()
	rec := r.rec
	r.mu.Unlock()
	if rec == nil {
		return worldgen.KindNone
	}
	return worldgen.ReconcileTile(rec.Seed(), qx, qy).Kind
}

// Apply decodes and applies one server message.
func (r *Replica) Apply(raw []byte) error {
	base, err := protocol.DecodeBase(raw)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	switch base.Type {
	case protocol.TypeAccept:
		var m protocol.AcceptMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		return r.applyAccept(m)
	case protocol.TypeReject:
		var m protocol.RejectMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		return fmt.Errorf("rejected: %s: %s", m.Code, m.Reason)
	case protocol.TypePlayerJoined:
		var m protocol.PlayerJoinedMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		r.applyPlayer(m.Player)
	case protocol.TypePlayerState:
		var m protocol.PlayerStateMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		r.applyPlayer(m.Player)
	case protocol.TypePlayerLeft:
		var m protocol.PlayerLeftMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		r.shadow.RemovePlayer(m.PlayerID)
		r.mu.Lock()
		delete(r.remotes, m.PlayerID)
		r.mu.Unlock()
		id := m.PlayerID
		r.queue.Enqueue(func() { r.presenter.PlayerLeft(id) })
	case protocol.TypeInventory:
		var m protocol.InventoryMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		inv := make(map[string]int, len(m.Items))
		for _, s := range m.Items {
			inv[s.Item] = s.Count
		}
		r.shadow.UpdatePlayer(m.PlayerID, func(p *store.Player) bool {
			p.Inventory = inv
			return true
		})
	case protocol.TypeResourceCreated:
		var m protocol.ResourceCreatedMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		res := store.ResourceFromRecord(m.Resource)
		if m.Cause == protocol.CauseMaterialized && r.knownFromServer(res.ID) {
			// Later events already describe this resource.
			r.log.WithField("entity", res.ID).Debug("ignoring stale materialization")
			return nil
		}
		r.shadow.Unclear(res.ID)
		r.shadow.PutResource(res)
		r.mu.Lock()
		delete(r.respawns, res.ID)
		r.mu.Unlock()
		r.queue.Enqueue(func() { r.presenter.ResourceCreated(res) })
	case protocol.TypeResourceDamaged:
		var m protocol.ResourceDamagedMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		r.shadow.PutResource(store.ResourceFromRecord(m.Resource))
		r.confirm(m.Resource.ID, m.By)
	case protocol.TypeResourceDestroyed:
		var m protocol.ResourceDestroyedMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		res := store.ResourceFromRecord(m.Resource)
		r.shadow.PutResource(res)
		r.shadow.Clear(res.ID)
		r.confirm(res.ID, m.By)
		if m.Respawn != nil {
			r.mu.Lock()
			r.respawns[res.ID] = respawnCountdown{rec: *m.Respawn, receivedAt: r.now()}
			r.mu.Unlock()
		}
		id := res.ID
		r.queue.Enqueue(func() { r.presenter.ResourceDisposed(id) })
	case protocol.TypeItemDropped:
		var m protocol.ItemDroppedMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		it := store.ItemFromRecord(m.Item)
		r.shadow.PutItem(it)
		r.queue.Enqueue(func() { r.presenter.ItemCreated(it) })
	case protocol.TypeItemRemoved:
		var m protocol.ItemRemovedMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		r.confirm(m.ItemID, m.By)
		if _, ok := r.shadow.RemoveItem(m.ItemID); ok {
			id := m.ItemID
			r.queue.Enqueue(func() { r.presenter.ItemDisposed(id) })
		}
	case protocol.TypePlanted:
		var m protocol.PlantedMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		p := store.PlantedFromRecord(m.Planted)
		r.shadow.PutPlanted(p)
		r.confirm(p.ID, m.By)
		r.queue.Enqueue(func() { r.presenter.PlantedCreated(p) })
	case protocol.TypePlantTransformed:
		var m protocol.PlantTransformedMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		r.shadow.RemovePlanted(m.PlantedID)
		res := store.ResourceFromRecord(m.Resource)
		r.shadow.Unclear(res.ID)
		r.shadow.PutResource(res)
		pid := m.PlantedID
		r.queue.Enqueue(func() {
			r.presenter.PlantedDisposed(pid)
			r.presenter.ResourceCreated(res)
		})
	case protocol.TypeWeather:
		var m protocol.WeatherMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		zones := make([]store.WeatherZone, 0, len(m.Zones))
		for _, z := range m.Zones {
			zones = append(zones, store.WeatherFromRecord(z))
		}
		r.shadow.SetWeather(zones)
	case protocol.TypeActionRejected:
		var m protocol.ActionRejectedMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		r.revert(m)
	case protocol.TypeWorldSnapshot:
		var m protocol.WorldSnapshotMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		r.applySnapshot(m.Snapshot)
	case protocol.TypeHeartbeatAck:
		var m protocol.HeartbeatAckMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		if m.ClientTime > 0 {
			r.mu.Lock()
			r.rtt = time.Duration(r.now().UnixMilli()-m.ClientTime) * time.Millisecond
			r.mu.Unlock()
		}
	case protocol.TypePing:
		var m protocol.PingMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		r.emit(protocol.PongMsg{
			Envelope:   protocol.NewEnvelope(protocol.TypePong, r.LocalID()),
			Nonce:      m.Nonce,
			ServerTime: m.ServerTime,
		})
	default:
		r.log.WithField("type", base.Type).Debug("ignoring message")
	}
	return nil
}

// knownFromServer reports whether the shadow holds id, live or cleared, for
// any reason other than this client's own unconfirmed attack prediction.
func (r *Replica) knownFromServer(id string) bool {
	_, held := r.shadow.Resource(id)
	if !held && !r.shadow.IsCleared(id) {
		return false
	}
	r.mu.Lock()
	pa, pending := r.pending[id]
	r.mu.Unlock()
	return !(pending && pa.action == protocol.TypeAttack && pa.prevRes == nil)
}

func (r *Replica) applyAccept(m protocol.AcceptMsg) error {
	// A reconnect starts from a fresh shadow. The server may have restarted
	// with another seed, so the old one is not kept.
	if seed, ok := r.shadow.Seed(); ok && seed != m.Params.Seed {
		r.log.WithField("old", seed).WithField("new", m.Params.Seed).Info("world seed changed")
	}
	r.shadow.Reseed(m.Params.Seed)
	r.mu.Lock()
	r.rec = worldgen.NewReconciler(m.Params.Seed)
	r.params = m.Params
	r.localID = m.PlayerID
	r.remotes = map[string]*remote{}
	r.pending = map[string]pendingAction{}
	r.respawns = map[string]respawnCountdown{}
	now := r.now()
	for _, e := range m.PendingRespawns {
		r.respawns[e.TargetID] = respawnCountdown{rec: e, receivedAt: now}
	}
	r.mu.Unlock()

	r.applySnapshot(m.Snapshot)
	inv := make(map[string]int, len(m.Inventory))
	for _, s := range m.Inventory {
		inv[s.Item] = s.Count
	}
	r.shadow.UpdatePlayer(m.PlayerID, func(p *store.Player) bool {
		p.Inventory = inv
		return true
	})
	return nil
}

func (r *Replica) applySnapshot(s protocol.Snapshot) {
	for _, rec := range s.Resources {
		res := store.ResourceFromRecord(rec)
		r.shadow.PutResource(res)
		if res.Exists {
			r.queue.Enqueue(func() { r.presenter.ResourceCreated(res) })
		}
	}
	for _, rec := range s.Items {
		it := store.ItemFromRecord(rec)
		r.shadow.PutItem(it)
		r.queue.Enqueue(func() { r.presenter.ItemCreated(it) })
	}
	for _, rec := range s.Planted {
		p := store.PlantedFromRecord(rec)
		r.shadow.PutPlanted(p)
		r.queue.Enqueue(func() { r.presenter.PlantedCreated(p) })
	}
	for _, id := range s.Cleared {
		r.shadow.Clear(id)
	}
	for _, p := range s.Players {
		r.applyPlayer(p)
	}
	if len(s.Weather) > 0 {
		zones := make([]store.WeatherZone, 0, len(s.Weather))
		for _, z := range s.Weather {
			zones = append(zones, store.WeatherFromRecord(z))
		}
		r.shadow.SetWeather(zones)
	}
}

// applyPlayer stores an authoritative player record. Remote players get a
// new interpolation target; the local player keeps its predicted position
// unless the server moved it further than SnapDistance (respawn).
func (r *Replica) applyPlayer(rec protocol.PlayerRecord) {
	r.mu.Lock()
	local := rec.ID == r.localID
	if !local {
		rm := r.remotes[rec.ID]
		if rm == nil {
			rm = &remote{dx: rec.X, dy: rec.Y}
			r.remotes[rec.ID] = rm
		}
		rm.tx, rm.ty = rec.X, rec.Y
		if math.Hypot(rm.tx-rm.dx, rm.ty-rm.dy) > r.cfg.SnapDistance {
			rm.dx, rm.dy = rm.tx, rm.ty
		}
	}
	r.mu.Unlock()

	prev, known := r.shadow.Player(rec.ID)
	p := store.PlayerFromRecord(rec, prev.Inventory)
	if local && known && math.Hypot(rec.X-prev.X, rec.Y-prev.Y) <= r.cfg.SnapDistance {
		p.X, p.Y, p.Facing, p.Moving = prev.X, prev.Y, prev.Facing, prev.Moving
	}
	r.shadow.PutPlayer(p)
}

// confirm settles a pending optimistic action once the server reports the
// local player's mutation of target.
func (r *Replica) confirm(target, by string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if by != "" && by == r.localID {
		delete(r.pending, target)
	}
}

// revert undoes the optimistic effect of a rejected action.
func (r *Replica) revert(m protocol.ActionRejectedMsg) {
	r.mu.Lock()
	r.lastReject = &m
	pa, ok := r.pending[m.TargetID]
	delete(r.pending, m.TargetID)
	r.mu.Unlock()
	r.log.WithField("action", m.Action).WithField("target", m.TargetID).WithField("code", m.Code).Debug("action rejected")
	if !ok {
		return
	}
	switch {
	case pa.prevRes != nil:
		r.shadow.PutResource(*pa.prevRes)
	case pa.action == protocol.TypeAttack:
		r.shadow.RemoveResource(m.TargetID)
	case pa.prevItem != nil:
		it := *pa.prevItem
		r.shadow.PutItem(it)
		r.queue.Enqueue(func() { r.presenter.ItemCreated(it) })
	case pa.planted:
		if _, ok := r.shadow.RemovePlanted(m.TargetID); ok {
			id := m.TargetID
			r.queue.Enqueue(func() { r.presenter.PlantedDisposed(id) })
		}
	}
}

// Pending reports the targets of unconfirmed local actions.
func (r *Replica) Pending() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.pending))
	for id := range r.pending {
		out = append(out, id)
	}
	return out
}
