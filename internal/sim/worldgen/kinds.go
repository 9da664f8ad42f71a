package worldgen

import "sort"

type Kind string

const (
	KindNone  Kind = ""
	KindTree  Kind = "TREE"
	KindApple Kind = "APPLE"
	KindBush  Kind = "BUSH"
	KindStone Kind = "STONE"
	KindIron  Kind = "IRON"
)

type Category string

const (
	CategoryVegetation Category = "vegetation"
	CategoryMineral    Category = "mineral"
)

const MaxHealth = 100.0

// KindSpec describes one resource kind.
type KindSpec struct {
	Kind      Kind
	Category  Category
	MaxHealth float64
	// Damage is the flat health loss per accepted attack.
	Damage    float64
	Renewable bool
	// StackA and SeedB are the two items of the drop table.
	StackA string
	SeedB  string
}

var kinds = map[Kind]KindSpec{
	KindTree:  {Kind: KindTree, Category: CategoryVegetation, MaxHealth: MaxHealth, Damage: 25, Renewable: true, StackA: "WOOD", SeedB: "TREE_SEED"},
	KindApple: {Kind: KindApple, Category: CategoryVegetation, MaxHealth: MaxHealth, Damage: 34, Renewable: true, StackA: "APPLE", SeedB: "APPLE_SEED"},
	KindBush:  {Kind: KindBush, Category: CategoryVegetation, MaxHealth: MaxHealth, Damage: 50, Renewable: true, StackA: "BERRY", SeedB: "BUSH_SEED"},
	KindStone: {Kind: KindStone, Category: CategoryMineral, MaxHealth: MaxHealth, Damage: 20, Renewable: true, StackA: "STONE", SeedB: "FLINT"},
	KindIron:  {Kind: KindIron, Category: CategoryMineral, MaxHealth: MaxHealth, Damage: 10, Renewable: false, StackA: "IRON_ORE", SeedB: "STONE"},
}

func Spec(k Kind) (KindSpec, bool) {
	s, ok := kinds[k]
	return s, ok
}

func Kinds() []Kind {
	out := make([]Kind, 0, len(kinds))
	for k := range kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SeedSpec describes a plantable item.
type SeedSpec struct {
	Item      string
	Planted   string
	GrowsInto Kind
}

var seeds = map[string]SeedSpec{
	"TREE_SEED":  {Item: "TREE_SEED", Planted: "SAPLING", GrowsInto: KindTree},
	"APPLE_SEED": {Item: "APPLE_SEED", Planted: "APPLE_SPROUT", GrowsInto: KindApple},
	"BUSH_SEED":  {Item: "BUSH_SEED", Planted: "BUSH_SPROUT", GrowsInto: KindBush},
}

func Seed(item string) (SeedSpec, bool) {
	s, ok := seeds[item]
	return s, ok
}

// Nutrition is the hunger reduction of eating one unit of an item.
var nutrition = map[string]float64{
	"APPLE": 25,
	"BERRY": 10,
}

func Nutrition(item string) (float64, bool) {
	v, ok := nutrition[item]
	return v, ok
}
