package world

import (
	"fmt"

	"grovecraft.io/internal/persistence/snapshot"
	"grovecraft.io/internal/sim/respawn"
	"grovecraft.io/internal/sim/store"
	"grovecraft.io/internal/sim/worldgen"
)

// ExportSnapshot captures the store, the cleared set and both timer sets as
// plain records.
func (w *World) ExportSnapshot() snapshot.SnapshotV1 {
	tick := w.tick.Load()
	rec := w.store.Export()
	s := snapshot.SnapshotV1{
		Header:     snapshot.Header{Version: snapshot.Version, WorldID: w.cfg.ID, Tick: tick, Seed: rec.Seed},
		Seed:       rec.Seed,
		TickRateHz: w.cfg.TickRateHz,
		Cleared:    rec.Cleared,
		Respawns:   timersV1(w.respawns.Pending()),
		Growth:     timersV1(w.growth.Pending()),
		Counters: snapshot.CountersV1{
			NextItem:   w.nextItem.Load(),
			NextPlayer: w.nextPlayer.Load(),
		},
	}
	for _, r := range rec.Resources {
		s.Resources = append(s.Resources, snapshot.ResourceV1{ID: r.ID, Kind: string(r.Kind), X: r.X, Y: r.Y, Health: r.Health, Exists: r.Exists})
	}
	for _, it := range rec.Items {
		s.Items = append(s.Items, snapshot.ItemV1{ID: it.ID, Kind: it.Kind, X: it.X, Y: it.Y, Count: it.Count, Collected: it.Collected})
	}
	for _, p := range rec.Planted {
		s.Planted = append(s.Planted, snapshot.PlantedV1{ID: p.ID, Kind: p.Kind, GrowsInto: string(p.GrowsInto), X: p.X, Y: p.Y, Occupied: p.Occupied, PlantedBy: p.PlantedBy})
	}
	for _, p := range rec.Players {
		s.Players = append(s.Players, snapshot.PlayerV1{ID: p.ID, Name: p.Name, X: p.X, Y: p.Y, Facing: p.Facing, Health: p.Health, Hunger: p.Hunger, Inventory: p.Inventory})
	}
	for _, z := range rec.Weather {
		s.Weather = append(s.Weather, snapshot.WeatherV1{ID: z.ID, Kind: z.Kind, X: z.X, Y: z.Y, Radius: z.Radius, RemainingTicks: z.RemainingTicks})
	}
	return s
}

// ImportSnapshot restores world content from s. Call it before Run and
// before any participant joins; players in s are not restored because their
// sessions are gone.
func (w *World) ImportSnapshot(s snapshot.SnapshotV1) error {
	if s.Seed != w.cfg.Seed {
		return fmt.Errorf("import snapshot: seed %d does not match world seed %d: %w", s.Seed, w.cfg.Seed, store.ErrSeedImmutable)
	}
	rec := store.Records{Seed: s.Seed, Cleared: s.Cleared}
	for _, r := range s.Resources {
		rec.Resources = append(rec.Resources, store.Resource{ID: r.ID, Kind: worldgen.Kind(r.Kind), X: r.X, Y: r.Y, Health: r.Health, Exists: r.Exists})
	}
	for _, it := range s.Items {
		rec.Items = append(rec.Items, store.Item{ID: it.ID, Kind: it.Kind, X: it.X, Y: it.Y, Count: it.Count, Collected: it.Collected})
	}
	for _, p := range s.Planted {
		rec.Planted = append(rec.Planted, store.Planted{ID: p.ID, Kind: p.Kind, GrowsInto: worldgen.Kind(p.GrowsInto), X: p.X, Y: p.Y, Occupied: p.Occupied, PlantedBy: p.PlantedBy})
	}
	for _, z := range s.Weather {
		rec.Weather = append(rec.Weather, store.WeatherZone{ID: z.ID, Kind: z.Kind, X: z.X, Y: z.Y, Radius: z.Radius, RemainingTicks: z.RemainingTicks})
	}
	if err := w.store.Import(rec); err != nil {
		return err
	}
	w.respawns.Restore(timerEntries(s.Respawns))
	w.growth.Restore(timerEntries(s.Growth))
	w.tick.Store(s.Header.Tick)
	w.nextItem.Store(s.Counters.NextItem)
	w.nextPlayer.Store(s.Counters.NextPlayer)
	w.storeMetrics(0)
	return nil
}

func timersV1(es []respawn.Entry) []snapshot.TimerV1 {
	out := make([]snapshot.TimerV1, 0, len(es))
	for _, e := range es {
		out = append(out, snapshot.TimerV1{TargetID: e.TargetID, Category: e.Category, Kind: e.Kind, X: e.X, Y: e.Y, RemainingTicks: e.Remaining})
	}
	return out
}

func timerEntries(ts []snapshot.TimerV1) []respawn.Entry {
	out := make([]respawn.Entry, 0, len(ts))
	for _, t := range ts {
		out = append(out, respawn.Entry{TargetID: t.TargetID, Category: t.Category, Kind: t.Kind, X: t.X, Y: t.Y, Remaining: t.RemainingTicks})
	}
	return out
}
