package worldgen

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

const (
	TileSize = 64

	P1 = 73856093
	P2 = 19349663
)

// Table maps hash buckets to kinds. Its order is part of the world format:
// changing it changes every generated world.
var Table = []Kind{
	KindNone, KindNone, KindNone, KindNone, KindNone,
	KindNone, KindNone, KindNone, KindNone, KindNone,
	KindTree, KindTree, KindTree,
	KindBush, KindBush,
	KindApple,
	KindStone, KindStone,
	KindIron,
}

// Descriptor is what the generator says exists at a tile.
type Descriptor struct {
	ID   string
	Kind Kind
	X    float64
	Y    float64
}

func (d Descriptor) Empty() bool { return d.Kind == KindNone }

// Quantize returns the tile containing world position (x, y).
func Quantize(x, y float64) (qx, qy int) {
	return FloorDiv(int(math.Floor(x)), TileSize), FloorDiv(int(math.Floor(y)), TileSize)
}

// ResourceID formats the id of an entity at world position (x, y).
func ResourceID(x, y int) string {
	return "r-" + strconv.Itoa(x) + "-" + strconv.Itoa(y)
}

// PlantedID names the planted entity on the tile with origin (x, y).
func PlantedID(x, y int) string {
	return "g-" + strconv.Itoa(x) + "-" + strconv.Itoa(y)
}

// ParseID parses "r-<x>-<y>". Coordinates may be negative ("r--64-128").
func ParseID(id string) (x, y int, ok bool) {
	rest, found := strings.CutPrefix(id, "r-")
	if !found || rest == "" {
		return 0, 0, false
	}
	// Split on the separator dash, skipping a leading minus sign.
	i := strings.IndexByte(rest[1:], '-')
	if i < 0 {
		return 0, 0, false
	}
	i++
	xs, ys := rest[:i], rest[i+1:]
	xv, err := strconv.Atoi(xs)
	if err != nil {
		return 0, 0, false
	}
	yv, err := strconv.Atoi(ys)
	if err != nil {
		return 0, 0, false
	}
	return xv, yv, true
}

// LatticeTile reports the tile of id if id names a tile origin.
func LatticeTile(id string) (qx, qy int, ok bool) {
	x, y, ok := ParseID(id)
	if !ok || x%TileSize != 0 || y%TileSize != 0 || ResourceID(x, y) != id {
		return 0, 0, false
	}
	return x / TileSize, y / TileSize, true
}

func tileKind(seed int64, qx, qy int) Kind {
	key := int64(qx)*P1 + int64(qy)*P2
	h := Hash(seed, key)
	return Table[h%uint64(len(Table))]
}

// Reconcile returns the generated content of the tile containing (x, y).
// It is pure: the same seed and tile always yield the same descriptor.
func Reconcile(seed int64, x, y float64) Descriptor {
	qx, qy := Quantize(x, y)
	return ReconcileTile(seed, qx, qy)
}

func ReconcileTile(seed int64, qx, qy int) Descriptor {
	ox, oy := qx*TileSize, qy*TileSize
	return Descriptor{
		ID:   ResourceID(ox, oy),
		Kind: tileKind(seed, qx, qy),
		X:    float64(ox),
		Y:    float64(oy),
	}
}

// ReconcileID resolves a lattice id. ok is false for ids that do not name a
// tile origin.
func ReconcileID(seed int64, id string) (Descriptor, bool) {
	qx, qy, ok := LatticeTile(id)
	if !ok {
		return Descriptor{}, false
	}
	return ReconcileTile(seed, qx, qy), true
}

// EagerRegion lists every non-empty tile whose origin lies within radius of
// (cx, cy), ordered by id.
func EagerRegion(seed int64, cx, cy, radius float64) []Descriptor {
	if radius < 0 {
		return nil
	}
	minQX, minQY := Quantize(cx-radius, cy-radius)
	maxQX, maxQY := Quantize(cx+radius, cy+radius)
	r2 := radius * radius
	var out []Descriptor
	for qy := minQY; qy <= maxQY; qy++ {
		for qx := minQX; qx <= maxQX; qx++ {
			dx := float64(qx*TileSize) - cx
			dy := float64(qy*TileSize) - cy
			if dx*dx+dy*dy > r2 {
				continue
			}
			d := ReconcileTile(seed, qx, qy)
			if d.Empty() {
				continue
			}
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// InRegion reports whether (x, y) lies within radius of (cx, cy).
func InRegion(x, y, cx, cy, radius float64) bool {
	dx, dy := x-cx, y-cy
	return dx*dx+dy*dy <= radius*radius
}

// Reconciler binds a seed. Server and client each hold their own instance.
type Reconciler struct {
	seed int64
}

func NewReconciler(seed int64) *Reconciler { return &Reconciler{seed: seed} }

func (r *Reconciler) Seed() int64 { return r.seed }

func (r *Reconciler) At(x, y float64) Descriptor { return Reconcile(r.seed, x, y) }

func (r *Reconciler) ByID(id string) (Descriptor, bool) { return ReconcileID(r.seed, id) }

func (r *Reconciler) String() string { return fmt.Sprintf("reconciler(seed=%d)", r.seed) }
