package world

import (
	"grovecraft.io/internal/protocol"
)

// Observe registers a read-only outbox that receives every broadcast but is
// not a participant: it has no player, counts against no capacity and cannot
// act. The returned snapshot covers the requested area at registration time;
// the outbox is registered first so no event between the two is missed.
func (w *World) Observe(id string, out chan []byte, cx, cy, radius float64, onSlow func()) protocol.WorldSnapshotMsg {
	if radius <= 0 || radius > w.cfg.SpawnRadius {
		radius = w.cfg.SpawnRadius
	}
	w.bc.Register(id, out, onSlow)
	w.observers.Add(1)
	w.log.WithField("observer", id).Info("observe")
	return protocol.WorldSnapshotMsg{
		Envelope: protocol.NewEnvelope(protocol.TypeWorldSnapshot, protocol.ServerSenderID),
		Snapshot: w.snapshotAround(cx, cy, radius),
	}
}

func (w *World) Unobserve(id string) {
	w.bc.Unregister(id)
	w.observers.Add(-1)
	w.log.WithField("observer", id).Info("unobserve")
}

func (w *World) ObserverCount() int { return int(w.observers.Load()) }
