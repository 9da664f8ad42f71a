package store

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sasha-s/go-deadlock"
)

var ErrSeedImmutable = errors.New("store: world seed is immutable")

// Store is the canonical collection of simulated entities. The server owns
// one; each client keeps a shadow Store fed only by replicated messages.
//
// Every method is safe for concurrent use. Readers receive copies, never
// references into the maps.
type Store struct {
	seed    atomic.Int64
	seedSet atomic.Bool

	resources *shardedMap[Resource]
	items     *shardedMap[Item]
	planted   *shardedMap[Planted]
	players   *shardedMap[Player]
	cleared   *shardedMap[struct{}]

	weatherMu deadlock.RWMutex
	weather   []WeatherZone
}

// New returns an empty store. A client passes seedKnown=false and learns the
// seed from ACCEPT via SetSeed.
func New(seed int64, seedKnown bool) *Store {
	s := &Store{
		resources: newShardedMap[Resource](nil),
		items:     newShardedMap[Item](nil),
		planted:   newShardedMap[Planted](nil),
		players:   newShardedMap(clonePlayer),
		cleared:   newShardedMap[struct{}](nil),
	}
	if seedKnown {
		s.seed.Store(seed)
		s.seedSet.Store(true)
	}
	return s
}

func (s *Store) Seed() (int64, bool) {
	return s.seed.Load(), s.seedSet.Load()
}

// SetSeed fixes the seed once. Setting the same value again is a no-op; any
// other value fails with ErrSeedImmutable.
func (s *Store) SetSeed(seed int64) error {
	if s.seedSet.CompareAndSwap(false, true) {
		s.seed.Store(seed)
		return nil
	}
	if cur := s.seed.Load(); cur != seed {
		return fmt.Errorf("%w: have %d, got %d", ErrSeedImmutable, cur, seed)
	}
	return nil
}

// Resources.

func (s *Store) Resource(id string) (Resource, bool) { return s.resources.get(id) }

func (s *Store) PutResource(r Resource) { s.resources.put(r.ID, r) }

func (s *Store) UpdateResource(id string, fn func(*Resource) bool) (Resource, bool) {
	return s.resources.update(id, fn)
}

// MaterializeResource inserts build()'s value under id when id is unknown and
// build accepts. announce runs while the resource shard is still locked, so
// every update of id is ordered after it. created is true only for the caller
// whose value was stored.
func (s *Store) MaterializeResource(id string, build func() (Resource, bool), announce func(Resource)) (r Resource, created bool) {
	return s.resources.insert(id, build, announce)
}

// PublishResource stores r and runs announce before any update of r.ID can
// proceed.
func (s *Store) PublishResource(r Resource, announce func(Resource)) {
	s.resources.publish(r.ID, r, announce)
}

func (s *Store) RemoveResource(id string) (Resource, bool) { return s.resources.removeIf(id, nil) }

func (s *Store) Resources() []Resource { return s.resources.snapshot(nil) }

func (s *Store) ResourcesWithin(cx, cy, radius float64) []Resource {
	return s.resources.snapshot(func(r Resource) bool { return within(r.X, r.Y, cx, cy, radius) })
}

// Items.

func (s *Store) Item(id string) (Item, bool) { return s.items.get(id) }

func (s *Store) PutItem(it Item) { s.items.put(it.ID, it) }

// TakeItem removes id if it is still uncollected and accept approves it.
func (s *Store) TakeItem(id string, accept func(Item) bool) (Item, bool) {
	return s.items.removeIf(id, func(it Item) bool {
		if it.Collected {
			return false
		}
		return accept == nil || accept(it)
	})
}

func (s *Store) RemoveItem(id string) (Item, bool) { return s.items.removeIf(id, nil) }

func (s *Store) Items() []Item { return s.items.snapshot(nil) }

func (s *Store) ItemsWithin(cx, cy, radius float64) []Item {
	return s.items.snapshot(func(it Item) bool { return within(it.X, it.Y, cx, cy, radius) })
}

// Planted entities.

func (s *Store) Planted(id string) (Planted, bool) { return s.planted.get(id) }

func (s *Store) PutPlanted(p Planted) { s.planted.put(p.ID, p) }

// InsertPlanted stores p unless its id is taken.
func (s *Store) InsertPlanted(p Planted) (Planted, bool) {
	return s.planted.insert(p.ID, func() (Planted, bool) { return p, true }, nil)
}

func (s *Store) RemovePlanted(id string) (Planted, bool) { return s.planted.removeIf(id, nil) }

func (s *Store) AllPlanted() []Planted { return s.planted.snapshot(nil) }

func (s *Store) PlantedWithin(cx, cy, radius float64) []Planted {
	return s.planted.snapshot(func(p Planted) bool { return within(p.X, p.Y, cx, cy, radius) })
}

// Players.

func (s *Store) Player(id string) (Player, bool) { return s.players.get(id) }

func (s *Store) PutPlayer(p Player) { s.players.put(p.ID, p) }

func (s *Store) UpdatePlayer(id string, fn func(*Player) bool) (Player, bool) {
	return s.players.update(id, fn)
}

func (s *Store) RemovePlayer(id string) (Player, bool) { return s.players.removeIf(id, nil) }

func (s *Store) Players() []Player { return s.players.snapshot(nil) }

func (s *Store) PlayerCount() int { return s.players.len() }

// Cleared-position set.

func (s *Store) Clear(id string) { s.cleared.put(id, struct{}{}) }

// Unclear removes id and reports whether it was present.
func (s *Store) Unclear(id string) bool {
	_, ok := s.cleared.removeIf(id, nil)
	return ok
}

func (s *Store) IsCleared(id string) bool {
	_, ok := s.cleared.get(id)
	return ok
}

func (s *Store) Cleared() []string { return s.cleared.keys() }

// Weather.

func (s *Store) SetWeather(zones []WeatherZone) {
	cp := append([]WeatherZone(nil), zones...)
	s.weatherMu.Lock()
	s.weather = cp
	s.weatherMu.Unlock()
}

func (s *Store) Weather() []WeatherZone {
	s.weatherMu.RLock()
	defer s.weatherMu.RUnlock()
	return append([]WeatherZone(nil), s.weather...)
}

// Counts reports entity totals for metrics.
type Counts struct {
	Resources int
	Items     int
	Planted   int
	Players   int
	Cleared   int
}

func (s *Store) Counts() Counts {
	return Counts{
		Resources: s.resources.len(),
		Items:     s.items.len(),
		Planted:   s.planted.len(),
		Players:   s.players.len(),
		Cleared:   s.cleared.len(),
	}
}

// Reseed drops every entity and fixes seed, replacing any earlier one. A
// replica uses it when a reconnect lands on a world generated differently.
func (s *Store) Reseed(seed int64) {
	s.Reset()
	s.seed.Store(seed)
	s.seedSet.Store(true)
}

// Reset drops every entity. The seed is kept.
func (s *Store) Reset() {
	s.resources.reset()
	s.items.reset()
	s.planted.reset()
	s.players.reset()
	s.cleared.reset()
	s.SetWeather(nil)
}
