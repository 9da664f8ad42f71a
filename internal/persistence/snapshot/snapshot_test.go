package snapshot

import (
	"errors"
	"testing"
)

func sample(tick uint64) SnapshotV1 {
	return SnapshotV1{
		Header:     Header{Version: Version, WorldID: "grove", Tick: tick, Seed: 42},
		Seed:       42,
		TickRateHz: 20,
		Resources:  []ResourceV1{{ID: "r-0-0", Kind: "TREE", Health: 75, Exists: true}},
		Items:      []ItemV1{{ID: "i-1", Kind: "WOOD", Count: 2}},
		Players:    []PlayerV1{{ID: "p1", Name: "a", Health: 100, Inventory: map[string]int{"WOOD": 1}}},
		Cleared:    []string{"r-64-0"},
		Respawns:   []TimerV1{{TargetID: "r-64-0", Category: "vegetation", Kind: "APPLE", RemainingTicks: 100}},
		Counters:   CountersV1{NextItem: 2, NextPlayer: 1},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := Path(dir, 40)
	if err := WriteSnapshot(p, sample(40)); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	got, err := ReadSnapshot(p)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if got.Header.Tick != 40 || got.Seed != 42 || len(got.Resources) != 1 || got.Resources[0].Health != 75 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if got.Players[0].Inventory["WOOD"] != 1 || got.Respawns[0].RemainingTicks != 100 {
		t.Fatalf("nested data lost: %+v", got)
	}
	h, err := ReadHeader(p)
	if err != nil || h.Tick != 40 || h.WorldID != "grove" {
		t.Fatalf("ReadHeader: %+v %v", h, err)
	}
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := Latest(dir); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot, got %v", err)
	}
	for _, tick := range []uint64{100, 3000, 900} {
		if err := WriteSnapshot(Path(dir, tick), sample(tick)); err != nil {
			t.Fatalf("write %d: %v", tick, err)
		}
	}
	p, tick, err := Latest(dir)
	if err != nil || tick != 3000 || p != Path(dir, 3000) {
		t.Fatalf("Latest: %s %d %v", p, tick, err)
	}
}
