package world

import "time"

// WorldMetrics is a read-only view of runtime signals, refreshed every frame
// and read from HTTP handlers and tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Participants int `json:"participants"`
	Observers    int `json:"observers"`
	Resources    int `json:"resources"`
	Items        int `json:"items"`
	Planted      int `json:"planted"`
	Cleared      int `json:"cleared"`

	PendingRespawns int `json:"pending_respawns"`
	PendingGrowth   int `json:"pending_growth"`

	Materialized uint64         `json:"materialized"`
	Rejections   uint64         `json:"rejections"`
	Broadcast    BroadcastStats `json:"broadcast"`

	StepMS float64 `json:"step_ms"`
}

func (w *World) storeMetrics(stepDur time.Duration) {
	c := w.store.Counts()
	w.metrics.Store(WorldMetrics{
		Tick:            w.tick.Load(),
		Participants:    w.ParticipantCount(),
		Observers:       w.ObserverCount(),
		Resources:       c.Resources,
		Items:           c.Items,
		Planted:         c.Planted,
		Cleared:         c.Cleared,
		PendingRespawns: w.respawns.Len(),
		PendingGrowth:   w.growth.Len(),
		Materialized:    w.materialized.Load(),
		Rejections:      w.rejections.Load(),
		Broadcast:       w.bc.Stats(),
		StepMS:          float64(stepDur.Microseconds()) / 1000,
	})
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	m, _ := w.metrics.Load().(WorldMetrics)
	return m
}
