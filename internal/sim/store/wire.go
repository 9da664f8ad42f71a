package store

import (
	"sort"
	"time"

	"grovecraft.io/internal/protocol"
	"grovecraft.io/internal/sim/worldgen"
)

func (r Resource) Record() protocol.ResourceRecord {
	return protocol.ResourceRecord{ID: r.ID, Kind: string(r.Kind), X: r.X, Y: r.Y, Health: r.Health, Exists: r.Exists}
}

func ResourceFromRecord(r protocol.ResourceRecord) Resource {
	return Resource{ID: r.ID, Kind: worldgen.Kind(r.Kind), X: r.X, Y: r.Y, Health: r.Health, Exists: r.Exists}
}

func (it Item) Record() protocol.ItemRecord {
	return protocol.ItemRecord{ID: it.ID, Kind: it.Kind, X: it.X, Y: it.Y, Count: it.Count, Collected: it.Collected}
}

func ItemFromRecord(r protocol.ItemRecord) Item {
	return Item{ID: r.ID, Kind: r.Kind, X: r.X, Y: r.Y, Count: r.Count, Collected: r.Collected}
}

// Record renders p with the remaining growth time supplied by the caller,
// which owns the growth timers.
func (p Planted) Record(remainingTicks int) protocol.PlantedRecord {
	return protocol.PlantedRecord{
		ID:             p.ID,
		Kind:           p.Kind,
		GrowsInto:      string(p.GrowsInto),
		X:              p.X,
		Y:              p.Y,
		RemainingTicks: remainingTicks,
		Occupied:       p.Occupied,
	}
}

func PlantedFromRecord(r protocol.PlantedRecord) Planted {
	return Planted{ID: r.ID, Kind: r.Kind, GrowsInto: worldgen.Kind(r.GrowsInto), X: r.X, Y: r.Y, Occupied: r.Occupied}
}

func (p Player) Record() protocol.PlayerRecord {
	return protocol.PlayerRecord{
		ID:        p.ID,
		Name:      p.Name,
		X:         p.X,
		Y:         p.Y,
		Facing:    p.Facing,
		Moving:    p.Moving,
		Health:    p.Health,
		Hunger:    p.Hunger,
		RTTMillis: p.RTT.Milliseconds(),
	}
}

// PlayerFromRecord keeps inv as the inventory; replicated player records do
// not carry inventories.
func PlayerFromRecord(r protocol.PlayerRecord, inv map[string]int) Player {
	return Player{
		ID:        r.ID,
		Name:      r.Name,
		X:         r.X,
		Y:         r.Y,
		Facing:    r.Facing,
		Moving:    r.Moving,
		Health:    r.Health,
		Hunger:    r.Hunger,
		RTT:       time.Duration(r.RTTMillis) * time.Millisecond,
		Inventory: inv,
	}
}

// InventoryStacks renders an inventory ordered by item name.
func InventoryStacks(inv map[string]int) []protocol.ItemStack {
	out := make([]protocol.ItemStack, 0, len(inv))
	for item, n := range inv {
		if n > 0 {
			out = append(out, protocol.ItemStack{Item: item, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Item < out[j].Item })
	return out
}

func (z WeatherZone) Record() protocol.WeatherZone {
	return protocol.WeatherZone{ID: z.ID, Kind: z.Kind, X: z.X, Y: z.Y, Radius: z.Radius, RemainingTicks: z.RemainingTicks}
}

func WeatherFromRecord(r protocol.WeatherZone) WeatherZone {
	return WeatherZone{ID: r.ID, Kind: r.Kind, X: r.X, Y: r.Y, Radius: r.Radius, RemainingTicks: r.RemainingTicks}
}
