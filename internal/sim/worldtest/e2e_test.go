package worldtest

import (
	"testing"

	"grovecraft.io/internal/protocol"
	"grovecraft.io/internal/sim/store"
	"grovecraft.io/internal/sim/world"
	"grovecraft.io/internal/sim/worldgen"
)

// Seed 42, an apple tree at (100, 200): three hits destroy it, one drop
// pattern lands, and it grows back after 120 s of frames.
func TestEndToEnd_AppleTreeLifecycle(t *testing.T) {
	h := NewHarness(t, Config(42))
	a := h.Join("a")
	b := h.Join("b")
	h.Sync()

	const id = "r-100-200"
	h.W.Store().PutResource(store.Resource{ID: id, Kind: worldgen.KindApple, X: 100, Y: 200, Health: 100, Exists: true})

	for i, want := range []float64{66, 32} {
		if err := a.Replica.Attack(id); err != nil {
			t.Fatalf("attack %d: %v", i, err)
		}
		h.Sync()
		r, _ := h.W.Store().Resource(id)
		if r.Health != want {
			t.Fatalf("after hit %d health %v want %v", i+1, r.Health, want)
		}
		if got, _ := b.Replica.Shadow().Resource(id); got.Health != want {
			t.Fatalf("observer health %v want %v", got.Health, want)
		}
	}
	if err := a.Replica.Attack(id); err != nil {
		t.Fatalf("attack 3: %v", err)
	}
	h.Sync()

	r, _ := h.W.Store().Resource(id)
	if r.Exists || r.Health != 0 || !h.W.Store().IsCleared(id) {
		t.Fatalf("expected destroyed and cleared: %+v", r)
	}
	pending := h.W.PendingRespawns()
	if len(pending) != 1 || pending[0].TargetID != id || pending[0].Remaining != 2400 {
		t.Fatalf("pending respawns: %+v", pending)
	}

	var apples, seeds int
	for _, it := range h.W.Store().Items() {
		switch {
		case it.Kind == "APPLE" && it.X == 92 && it.Y == 200:
			apples += it.Count
		case it.Kind == "APPLE_SEED" && it.X == 108 && it.Y == 200:
			seeds += it.Count
		default:
			t.Fatalf("unexpected drop %+v", it)
		}
	}
	matched := false
	for _, p := range world.DropPatterns {
		if p.StackA == apples && p.SeedB == seeds {
			matched = true
		}
	}
	if !matched {
		t.Fatalf("drops %d apples %d seeds match no pattern", apples, seeds)
	}
	if got := len(b.Replica.Shadow().Items()); got != len(h.W.Store().Items()) {
		t.Fatalf("observer has %d items, server %d", got, len(h.W.Store().Items()))
	}
	if got := b.Replica.KindAt(100, 200); got != worldgen.KindNone {
		t.Fatalf("observer sees %q at destroyed tile", got)
	}
	if seen := b.Seen(); indexOf(seen, protocol.TypeResourceDestroyed) > indexOf(seen, protocol.TypeItemDropped) {
		t.Fatalf("drops announced before destruction: %v", seen)
	}

	// Another attack on the cleared id is refused.
	if err := h.W.Attack(a.ID, &protocol.AttackMsg{TargetID: id}); rejectionCode(err) != protocol.ErrInvalidTarget {
		t.Fatalf("attack cleared: %v", err)
	}

	h.Step(2399)
	if !h.W.Store().IsCleared(id) {
		t.Fatalf("respawned early")
	}
	h.Step(1)
	r, _ = h.W.Store().Resource(id)
	if !r.Exists || r.Health != 100 || h.W.Store().IsCleared(id) {
		t.Fatalf("expected respawn: %+v", r)
	}
	for _, p := range []*Peer{a, b} {
		if got := p.Replica.KindAt(100, 200); got != worldgen.KindApple {
			t.Fatalf("peer %s sees %q after respawn", p.ID, got)
		}
	}
	if len(h.W.PendingRespawns()) != 0 {
		t.Fatalf("respawn timer still pending")
	}
}

func TestEndToEnd_PickupMovesItemToInventory(t *testing.T) {
	h := NewHarness(t, Config(42))
	a := h.Join("a")
	b := h.Join("b")
	h.W.Store().PutItem(store.Item{ID: "i-loose", Kind: "WOOD", X: 40, Y: 40, Count: 2})

	if err := a.Replica.Pickup("i-loose"); err != nil {
		t.Fatalf("pickup: %v", err)
	}
	h.Sync()
	if _, ok := h.W.Store().Item("i-loose"); ok {
		t.Fatalf("item still on the ground")
	}
	p, _ := h.W.Store().Player(a.ID)
	if p.Inventory["WOOD"] != 2 {
		t.Fatalf("server inventory: %v", p.Inventory)
	}
	local, _ := a.Replica.Shadow().Player(a.ID)
	if local.Inventory["WOOD"] != 2 {
		t.Fatalf("client inventory: %v", local.Inventory)
	}
	if _, ok := b.Replica.Shadow().Item("i-loose"); ok {
		t.Fatalf("observer still shows item")
	}

	// A second pickup of the same item loses.
	if err := h.W.Pickup(b.ID, &protocol.PickupMsg{ItemID: "i-loose"}); rejectionCode(err) != protocol.ErrInvalidTarget {
		t.Fatalf("double pickup: %v", err)
	}
}
