package world

import (
	"strconv"
	"time"

	"grovecraft.io/internal/protocol"
	"grovecraft.io/internal/sim/respawn"
	"grovecraft.io/internal/sim/store"
	"grovecraft.io/internal/sim/worldgen"
)

const (
	startHealth = 100.0
	maxHunger   = 100.0
)

type JoinRequest struct {
	SessionID string
	Name      string
	// Out is the session outbox. The broadcaster never blocks on it.
	Out chan []byte
	// Kick asks the session to close with code. It must not block.
	Kick func(code, reason string)
}

// Join admits a participant. The outbox is registered before the spawn
// snapshot is taken, so any mutation not in the snapshot reaches the outbox
// after it; the caller must write the returned ACCEPT before draining Out.
func (w *World) Join(req JoinRequest) (protocol.AcceptMsg, error) {
	w.partMu.Lock()
	if len(w.participants) >= w.cfg.MaxParticipants {
		w.partMu.Unlock()
		return protocol.AcceptMsg{}, reject(protocol.ErrServerFull, "server full (%d)", w.cfg.MaxParticipants)
	}
	id := "p" + strconv.FormatUint(w.nextPlayer.Add(1), 10)
	p := &participant{id: id, sessionID: req.SessionID, name: req.Name, kick: req.Kick}
	p.lastSeen.Store(w.now().UnixNano())
	w.participants[id] = p
	w.partMu.Unlock()

	player := store.Player{
		ID:        id,
		Name:      req.Name,
		X:         w.cfg.SpawnX,
		Y:         w.cfg.SpawnY,
		Health:    startHealth,
		Inventory: map[string]int{},
	}
	w.store.PutPlayer(player)

	w.bc.Register(id, req.Out, func() {
		if req.Kick != nil {
			req.Kick(protocol.ErrInternal, "slow consumer")
		}
	})

	accept := protocol.AcceptMsg{
		Envelope:        protocol.NewEnvelope(protocol.TypeAccept, protocol.ServerSenderID),
		PlayerID:        id,
		SessionID:       req.SessionID,
		Params:          w.params(),
		Snapshot:        w.snapshotAround(w.cfg.SpawnX, w.cfg.SpawnY, w.cfg.SpawnRadius),
		PendingRespawns: respawnRecords(w.respawns.Pending()),
		Inventory:       store.InventoryStacks(player.Inventory),
	}

	w.bc.Broadcast(protocol.PlayerJoinedMsg{
		Envelope: protocol.NewEnvelope(protocol.TypePlayerJoined, protocol.ServerSenderID),
		Player:   player.Record(),
	}, id)

	w.log.WithField("player", id).WithField("session", req.SessionID).Info("join")
	w.writeAudit(AuditEntry{Actor: id, Action: "JOIN", Details: map[string]any{"name": req.Name, "session": req.SessionID}})
	return accept, nil
}

func (w *World) params() protocol.WorldParams {
	return protocol.WorldParams{
		Seed:          w.cfg.Seed,
		TickRateHz:    w.cfg.TickRateHz,
		TileSize:      worldgen.TileSize,
		SpawnRadius:   w.cfg.SpawnRadius,
		ActionRange:   w.cfg.ActionRange,
		SpawnX:        w.cfg.SpawnX,
		SpawnY:        w.cfg.SpawnY,
		HeartbeatMS:   w.cfg.HeartbeatInterval.Milliseconds(),
		ClientTimeout: w.cfg.ClientTimeout.Milliseconds(),
	}
}

// Leave removes a participant and notifies the others. It is idempotent, so
// every session exit path may call it.
func (w *World) Leave(id, reason string) {
	w.partMu.Lock()
	_, ok := w.participants[id]
	delete(w.participants, id)
	w.partMu.Unlock()
	if !ok {
		return
	}
	w.bc.Unregister(id)
	w.store.RemovePlayer(id)
	w.bc.Broadcast(protocol.PlayerLeftMsg{
		Envelope: protocol.NewEnvelope(protocol.TypePlayerLeft, protocol.ServerSenderID),
		PlayerID: id,
		Reason:   reason,
	}, id)
	w.log.WithField("player", id).WithField("reason", reason).Info("leave")
	w.writeAudit(AuditEntry{Actor: id, Action: "LEAVE", Reason: reason})
}

// Touch refreshes the heartbeat of id. Every inbound frame counts.
func (w *World) Touch(id string) {
	if p := w.participant(id); p != nil {
		p.lastSeen.Store(w.now().UnixNano())
	}
}

// Heartbeat answers an explicit HEARTBEAT.
func (w *World) Heartbeat(id string, msg *protocol.HeartbeatMsg) {
	w.Touch(id)
	w.bc.SendTo(id, protocol.HeartbeatAckMsg{
		Envelope:   protocol.NewEnvelope(protocol.TypeHeartbeatAck, protocol.ServerSenderID),
		ServerTime: w.now().UnixMilli(),
		ClientTime: msg.TS,
	})
}

// Pong records the round trip of a PING as the player's connection quality.
func (w *World) Pong(id string, msg *protocol.PongMsg) {
	rtt := time.Duration(w.now().UnixMilli()-msg.ServerTime) * time.Millisecond
	if rtt < 0 {
		rtt = 0
	}
	p, ok := w.store.UpdatePlayer(id, func(p *store.Player) bool {
		p.RTT = rtt
		return true
	})
	if !ok {
		return
	}
	w.broadcastPlayer(p, "")
}

// Move applies a position report. Movement is not validated beyond schema.
func (w *World) Move(id string, msg *protocol.PlayerMoveMsg) error {
	p, ok := w.store.UpdatePlayer(id, func(p *store.Player) bool {
		p.X, p.Y = msg.X, msg.Y
		p.Facing = msg.Facing
		p.Moving = msg.Moving
		return true
	})
	if !ok {
		return reject(protocol.ErrInvalidTarget, "unknown player %s", id)
	}
	w.broadcastPlayer(p, id)
	return nil
}

// Region answers REGION_REQUEST with a snapshot clamped to the spawn radius.
func (w *World) Region(id string, msg *protocol.RegionRequestMsg) {
	radius := msg.Radius
	if radius > w.cfg.SpawnRadius {
		radius = w.cfg.SpawnRadius
	}
	w.bc.SendTo(id, protocol.WorldSnapshotMsg{
		Envelope: protocol.NewEnvelope(protocol.TypeWorldSnapshot, protocol.ServerSenderID),
		Snapshot: w.snapshotAround(msg.X, msg.Y, radius),
	})
}

func (w *World) broadcastPlayer(p store.Player, except string) {
	w.bc.Broadcast(protocol.PlayerStateMsg{
		Envelope: protocol.NewEnvelope(protocol.TypePlayerState, protocol.ServerSenderID),
		Player:   p.Record(),
	}, except)
}

func (w *World) sendInventory(p store.Player) {
	w.bc.SendTo(p.ID, protocol.InventoryMsg{
		Envelope: protocol.NewEnvelope(protocol.TypeInventory, protocol.ServerSenderID),
		PlayerID: p.ID,
		Items:    store.InventoryStacks(p.Inventory),
	})
}

// snapshotAround collects the bounded view centred on (cx, cy). Players are
// always included in full.
func (w *World) snapshotAround(cx, cy, radius float64) protocol.Snapshot {
	snap := protocol.Snapshot{
		CenterX:   cx,
		CenterY:   cy,
		Radius:    radius,
		Tick:      w.tick.Load(),
		Resources: []protocol.ResourceRecord{},
		Items:     []protocol.ItemRecord{},
		Planted:   []protocol.PlantedRecord{},
		Players:   []protocol.PlayerRecord{},
		Cleared:   []string{},
		Weather:   []protocol.WeatherZone{},
	}
	for _, r := range w.store.ResourcesWithin(cx, cy, radius) {
		snap.Resources = append(snap.Resources, r.Record())
	}
	for _, it := range w.store.ItemsWithin(cx, cy, radius) {
		snap.Items = append(snap.Items, it.Record())
	}
	for _, p := range w.store.PlantedWithin(cx, cy, radius) {
		rem, _ := w.growth.Remaining(p.ID)
		snap.Planted = append(snap.Planted, p.Record(rem))
	}
	for _, p := range w.store.Players() {
		snap.Players = append(snap.Players, p.Record())
	}
	for _, id := range w.store.Cleared() {
		x, y, ok := worldgen.ParseID(id)
		if ok && worldgen.InRegion(float64(x), float64(y), cx, cy, radius) {
			snap.Cleared = append(snap.Cleared, id)
		}
	}
	for _, z := range w.store.Weather() {
		snap.Weather = append(snap.Weather, z.Record())
	}
	return snap
}

func respawnRecord(e respawn.Entry) protocol.RespawnRecord {
	return protocol.RespawnRecord{
		TargetID:       e.TargetID,
		Category:       e.Category,
		Kind:           e.Kind,
		X:              e.X,
		Y:              e.Y,
		RemainingTicks: e.Remaining,
	}
}

func respawnRecords(es []respawn.Entry) []protocol.RespawnRecord {
	out := make([]protocol.RespawnRecord, 0, len(es))
	for _, e := range es {
		out = append(out, respawnRecord(e))
	}
	return out
}

// Params returns the parameters sent to clients in ACCEPT.
func (w *World) Params() protocol.WorldParams { return w.params() }
