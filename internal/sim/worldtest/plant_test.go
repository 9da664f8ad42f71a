package worldtest

import (
	"testing"

	"grovecraft.io/internal/protocol"
	"grovecraft.io/internal/sim/worldgen"
)

func TestPlant_GrowsIntoResource(t *testing.T) {
	h := NewHarness(t, Config(42))
	a := h.Join("a")
	b := h.Join("b")
	h.Sync()
	giveItem(t, h, a.ID, "TREE_SEED", 2)

	d := findTile(t, 42, 64, 300, func(d worldgen.Descriptor) bool { return d.Empty() })
	pid := worldgen.PlantedID(int(d.X), int(d.Y))
	if err := a.Replica.Plant("TREE_SEED", d.X+5, d.Y+5); err != nil {
		t.Fatalf("plant: %v", err)
	}
	h.Sync()

	if _, ok := h.W.Store().Planted(pid); !ok {
		t.Fatalf("server has no %s", pid)
	}
	if _, ok := b.Replica.Shadow().Planted(pid); !ok {
		t.Fatalf("observer has no %s", pid)
	}
	if p, _ := h.W.Store().Player(a.ID); p.Inventory["TREE_SEED"] != 1 {
		t.Fatalf("seed not consumed: %v", p.Inventory)
	}

	// The tile is taken now.
	if err := a.Replica.Plant("TREE_SEED", d.X, d.Y); err != nil {
		t.Fatalf("plant: %v", err)
	}
	h.Sync()
	if rej, ok := a.Replica.LastRejection(); !ok || rej.Code != protocol.ErrOccupied {
		t.Fatalf("second plant: %+v ok=%v", rej, ok)
	}
	if p, _ := h.W.Store().Player(a.ID); p.Inventory["TREE_SEED"] != 1 {
		t.Fatalf("rejected plant consumed a seed: %v", p.Inventory)
	}

	h.Step(h.W.Config().GrowthTicks)
	rid := worldgen.ResourceID(int(d.X), int(d.Y))
	r, ok := h.W.Store().Resource(rid)
	if !ok || !r.Exists || r.Kind != worldgen.KindTree {
		t.Fatalf("grown resource: %+v ok=%v", r, ok)
	}
	if _, ok := h.W.Store().Planted(pid); ok {
		t.Fatalf("planted entity not removed")
	}
	for _, p := range []*Peer{a, b} {
		if _, ok := p.Replica.Shadow().Planted(pid); ok {
			t.Fatalf("peer %s still shows %s", p.ID, pid)
		}
		if got := p.Replica.KindAt(d.X+1, d.Y+1); got != worldgen.KindTree {
			t.Fatalf("peer %s sees %q", p.ID, got)
		}
	}
}

func TestPlant_Rejections(t *testing.T) {
	h := NewHarness(t, Config(42))
	a := h.Join("a")
	giveItem(t, h, a.ID, "BUSH_SEED", 1)
	giveItem(t, h, a.ID, "WOOD", 1)

	empty := findTile(t, 42, 64, 300, func(d worldgen.Descriptor) bool { return d.Empty() })
	full := findTile(t, 42, 64, 300, func(d worldgen.Descriptor) bool { return !d.Empty() })

	cases := []struct {
		name string
		item string
		x, y float64
		code string
	}{
		{"not a seed", "WOOD", empty.X, empty.Y, protocol.ErrInvalidTarget},
		{"not owned", "TREE_SEED", empty.X, empty.Y, protocol.ErrNoResource},
		{"generated tile", "BUSH_SEED", full.X, full.Y, protocol.ErrOccupied},
		{"out of reach", "BUSH_SEED", 5000, 5000, protocol.ErrOutOfRange},
	}
	for _, tc := range cases {
		err := h.W.Plant(a.ID, &protocol.PlantMsg{Item: tc.item, X: tc.x, Y: tc.y})
		if got := rejectionCode(err); got != tc.code {
			t.Fatalf("%s: code %q want %q", tc.name, got, tc.code)
		}
	}
	if p, _ := h.W.Store().Player(a.ID); p.Inventory["BUSH_SEED"] != 1 {
		t.Fatalf("rejections consumed seeds: %v", p.Inventory)
	}
}

func TestPlant_PendingRespawnOccupiesTile(t *testing.T) {
	h := NewHarness(t, Config(42))
	a := h.Join("a")
	giveItem(t, h, a.ID, "TREE_SEED", 1)
	d := findTile(t, 42, 64, 300, func(d worldgen.Descriptor) bool { return d.Kind == worldgen.KindBush })
	for i := 0; i < 2; i++ {
		if err := h.W.Attack(a.ID, &protocol.AttackMsg{TargetID: d.ID}); err != nil {
			t.Fatalf("attack: %v", err)
		}
	}
	if !h.W.Store().IsCleared(d.ID) {
		t.Fatalf("bush not destroyed")
	}
	err := h.W.Plant(a.ID, &protocol.PlantMsg{Item: "TREE_SEED", X: d.X, Y: d.Y})
	if got := rejectionCode(err); got != protocol.ErrOccupied {
		t.Fatalf("plant over pending respawn: %v", err)
	}
}
