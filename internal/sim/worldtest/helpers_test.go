package worldtest

import (
	"errors"
	"math"
	"testing"

	"grovecraft.io/internal/sim/store"
	"grovecraft.io/internal/sim/world"
	"grovecraft.io/internal/sim/worldgen"
)

// findTile returns the first generated tile whose origin lies in
// [minDist, maxDist] of (0, 0) and satisfies keep.
func findTile(t *testing.T, seed int64, minDist, maxDist float64, keep func(worldgen.Descriptor) bool) worldgen.Descriptor {
	t.Helper()
	n := int(maxDist)/worldgen.TileSize + 1
	for qy := -n; qy <= n; qy++ {
		for qx := -n; qx <= n; qx++ {
			d := worldgen.ReconcileTile(seed, qx, qy)
			dist := math.Hypot(d.X, d.Y)
			if dist < minDist || dist > maxDist {
				continue
			}
			if keep(d) {
				return d
			}
		}
	}
	t.Fatalf("no tile in [%v,%v] for seed %d", minDist, maxDist, seed)
	return worldgen.Descriptor{}
}

func rejectionCode(err error) string {
	var r *world.Rejection
	if errors.As(err, &r) {
		return r.Code
	}
	return ""
}

func moveTo(h *Harness, p *Peer, x, y float64) {
	h.T.Helper()
	if err := p.Replica.SubmitIntent(x, y, 0, false); err != nil {
		h.T.Fatalf("move: %v", err)
	}
	h.Sync()
}

func giveItem(t *testing.T, h *Harness, id, item string, n int) {
	t.Helper()
	if _, ok := h.W.Store().UpdatePlayer(id, func(p *store.Player) bool {
		p.Inventory[item] += n
		return true
	}); !ok {
		t.Fatalf("unknown player %s", id)
	}
}

func indexOf(types []string, typ string) int {
	for i, s := range types {
		if s == typ {
			return i
		}
	}
	return -1
}

func countOf(types []string, typ string) int {
	n := 0
	for _, s := range types {
		if s == typ {
			n++
		}
	}
	return n
}
