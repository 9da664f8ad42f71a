package store

import (
	"time"

	"grovecraft.io/internal/sim/worldgen"
)

type Resource struct {
	ID     string
	Kind   worldgen.Kind
	X, Y   float64
	Health float64
	Exists bool
}

type Item struct {
	ID        string
	Kind      string
	X, Y      float64
	Count     int
	Collected bool
}

type Planted struct {
	ID        string
	Kind      string
	GrowsInto worldgen.Kind
	X, Y      float64
	Occupied  bool
	PlantedBy string
}

type Player struct {
	ID     string
	Name   string
	X, Y   float64
	Facing float64
	Moving bool
	Health float64
	Hunger float64
	RTT    time.Duration
	// Inventory maps item kind to count. Counts are always > 0.
	Inventory map[string]int
}

func clonePlayer(p Player) Player {
	if p.Inventory != nil {
		inv := make(map[string]int, len(p.Inventory))
		for k, v := range p.Inventory {
			inv[k] = v
		}
		p.Inventory = inv
	}
	return p
}

type WeatherZone struct {
	ID             string
	Kind           string
	X, Y           float64
	Radius         float64
	RemainingTicks int
}

// Within reports whether (x, y) lies within radius of the entity.
func within(x, y, cx, cy, radius float64) bool {
	dx, dy := x-cx, y-cy
	return dx*dx+dy*dy <= radius*radius
}
