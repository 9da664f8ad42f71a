package world

import (
	"context"
	"time"

	"grovecraft.io/internal/protocol"
	"grovecraft.io/internal/sim/store"
	"grovecraft.io/internal/sim/worldgen"
)

// Run drives Step at the configured tick rate until ctx is done or Stop is
// called.
func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case <-ticker.C:
			w.step()
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// StepOnce advances the world by a single frame. Tests and replays use it in
// place of Run.
func (w *World) StepOnce() uint64 {
	w.step()
	return w.tick.Load()
}

func (w *World) step() {
	start := time.Now()
	tick := w.tick.Add(1)

	for _, e := range w.respawns.Tick(1) {
		w.respawnResource(e.TargetID, worldgen.Kind(e.Kind), e.X, e.Y)
	}
	for _, e := range w.growth.Tick(1) {
		w.transformPlanted(e.TargetID, worldgen.Kind(e.Kind), e.X, e.Y)
	}
	if w.cfg.HungerEveryTicks > 0 && tick%uint64(w.cfg.HungerEveryTicks) == 0 {
		w.hungerPass()
	}
	if w.cfg.WeatherEveryTicks > 0 && tick%uint64(w.cfg.WeatherEveryTicks) == 0 {
		w.driftWeather(tick)
	}
	if tick%w.cfg.heartbeatTicks() == 0 {
		w.sweepSessions()
	}
	if w.cfg.SnapshotEveryTicks > 0 && tick%uint64(w.cfg.SnapshotEveryTicks) == 0 && w.snapshots != nil {
		select {
		case w.snapshots <- w.ExportSnapshot():
		default:
			w.log.WithField("tick", tick).Warn("snapshot writer busy; skipping")
		}
	}
	w.storeMetrics(time.Since(start))
}

// respawnResource re-creates a destroyed resource with full health and lifts
// the id from the cleared set.
func (w *World) respawnResource(id string, kind worldgen.Kind, x, y float64) {
	r := freshResource(id, kind, x, y)
	w.store.Unclear(id)
	w.store.PublishResource(r, func(r store.Resource) {
		w.bc.Broadcast(protocol.ResourceCreatedMsg{
			Envelope: protocol.NewEnvelope(protocol.TypeResourceCreated, protocol.ServerSenderID),
			Resource: r.Record(),
			Cause:    protocol.CauseRespawned,
		}, "")
	})
	w.log.WithField("entity", id).Debug("respawned")
	w.writeAudit(AuditEntry{Actor: protocol.ServerSenderID, Action: "RESPAWN", Target: id, Details: map[string]any{"kind": string(kind)}})
}

func (w *World) transformPlanted(pid string, kind worldgen.Kind, x, y float64) {
	if _, ok := w.store.RemovePlanted(pid); !ok {
		return
	}
	rid := worldgen.ResourceID(int(x), int(y))
	r := freshResource(rid, kind, x, y)
	w.store.Unclear(rid)
	w.store.PublishResource(r, func(r store.Resource) {
		w.bc.Broadcast(protocol.PlantTransformedMsg{
			Envelope:  protocol.NewEnvelope(protocol.TypePlantTransformed, protocol.ServerSenderID),
			PlantedID: pid,
			Resource:  r.Record(),
		}, "")
	})
	w.writeAudit(AuditEntry{Actor: protocol.ServerSenderID, Action: "GROW", Target: rid, Details: map[string]any{"planted": pid, "kind": string(kind)}})
}

// hungerPass raises hunger, applies starvation or regeneration, and respawns
// players whose health reached zero.
func (w *World) hungerPass() {
	for _, snap := range w.store.Players() {
		var died bool
		p, ok := w.store.UpdatePlayer(snap.ID, func(p *store.Player) bool {
			p.Hunger += w.cfg.HungerRate
			if p.Hunger >= maxHunger {
				p.Hunger = maxHunger
				p.Health -= w.cfg.StarvationDamage
			} else if p.Hunger < w.cfg.RegenBelow && p.Health < startHealth {
				p.Health += w.cfg.RegenAmount
				if p.Health > startHealth {
					p.Health = startHealth
				}
			}
			if p.Health <= 0 {
				died = true
				p.Health = startHealth
				p.Hunger = 0
				p.X, p.Y = w.cfg.SpawnX, w.cfg.SpawnY
				p.Moving = false
			}
			return true
		})
		if !ok {
			continue
		}
		if died {
			w.log.WithField("player", p.ID).Info("starved; respawned at spawn")
			w.writeAudit(AuditEntry{Actor: p.ID, Action: "STARVE"})
		}
		w.broadcastPlayer(p, "")
	}
}

var weatherKinds = [...]string{"RAIN", "FOG", "SNOW"}

func initialWeather(cfg Config) []store.WeatherZone {
	zones := make([]store.WeatherZone, 0, cfg.WeatherZones)
	span := cfg.SpawnRadius * 2
	if span <= 0 {
		span = 1024
	}
	for i := 0; i < cfg.WeatherZones; i++ {
		h := worldgen.Hash2(cfg.Seed, i, -1)
		zones = append(zones, store.WeatherZone{
			ID:             "w-" + string(rune('a'+i%26)),
			Kind:           weatherKinds[h%uint64(len(weatherKinds))],
			X:              cfg.SpawnX + (float64(h>>8%1000)/1000*2-1)*span,
			Y:              cfg.SpawnY + (float64(h>>24%1000)/1000*2-1)*span,
			Radius:         128 + float64(h>>40%256),
			RemainingTicks: cfg.WeatherEveryTicks,
		})
	}
	return zones
}

// driftWeather moves every zone by a seed-derived step, so two worlds with
// the same seed see the same weather at the same tick.
func (w *World) driftWeather(tick uint64) {
	epoch := int(tick / uint64(w.cfg.WeatherEveryTicks))
	zones := w.store.Weather()
	for i := range zones {
		h := worldgen.Hash2(w.cfg.Seed, i, epoch)
		zones[i].X += float64(int(h%129) - 64)
		zones[i].Y += float64(int(h>>16%129) - 64)
		zones[i].RemainingTicks = w.cfg.WeatherEveryTicks
	}
	w.store.SetWeather(zones)
	msg := protocol.WeatherMsg{
		Envelope: protocol.NewEnvelope(protocol.TypeWeather, protocol.ServerSenderID),
		Zones:    make([]protocol.WeatherZone, 0, len(zones)),
	}
	for _, z := range zones {
		msg.Zones = append(msg.Zones, z.Record())
	}
	w.bc.Broadcast(msg, "")
}

// sweepSessions kicks participants idle beyond ClientTimeout and probes the
// rest with PING.
func (w *World) sweepSessions() {
	now := w.now()
	for _, p := range w.participantList() {
		idle := now.Sub(time.Unix(0, p.lastSeen.Load()))
		if idle > w.cfg.ClientTimeout {
			w.log.WithField("player", p.id).WithField("idle", idle).Info("heartbeat timeout")
			if p.kick != nil {
				p.kick(protocol.ErrTimeout, "heartbeat timeout")
			}
			w.Leave(p.id, "timeout")
			continue
		}
		nonce := w.nextPing.Add(1)
		w.bc.SendTo(p.id, protocol.PingMsg{
			Envelope:   protocol.NewEnvelope(protocol.TypePing, protocol.ServerSenderID),
			Nonce:      nonce,
			ServerTime: now.UnixMilli(),
		})
	}
}
