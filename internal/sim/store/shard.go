package store

import (
	"hash/fnv"
	"sort"

	"github.com/sasha-s/go-deadlock"
)

const shardCount = 16

// EnableDeadlockDetection toggles lock-order and timeout detection for every
// store lock. It is off unless the server runs in debug mode.
func EnableDeadlockDetection(on bool) {
	deadlock.Opts.Disable = !on
}

func init() {
	deadlock.Opts.Disable = true
}

type shard[V any] struct {
	mu deadlock.RWMutex
	m  map[string]V
}

// shardedMap is a lock-striped map keyed by entity id. Values are stored by
// value; clone produces the defensive copy handed to callers.
type shardedMap[V any] struct {
	shards [shardCount]shard[V]
	clone  func(V) V
}

func newShardedMap[V any](clone func(V) V) *shardedMap[V] {
	sm := &shardedMap[V]{clone: clone}
	for i := range sm.shards {
		sm.shards[i].m = make(map[string]V)
	}
	return sm
}

func shardIndex(id string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % shardCount)
}

func (sm *shardedMap[V]) shardFor(id string) *shard[V] {
	return &sm.shards[shardIndex(id)]
}

func (sm *shardedMap[V]) copyOf(v V) V {
	if sm.clone == nil {
		return v
	}
	return sm.clone(v)
}

func (sm *shardedMap[V]) get(id string) (V, bool) {
	s := sm.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[id]
	if !ok {
		return v, false
	}
	return sm.copyOf(v), true
}

func (sm *shardedMap[V]) put(id string, v V) {
	s := sm.shardFor(id)
	s.mu.Lock()
	s.m[id] = sm.copyOf(v)
	s.mu.Unlock()
}

// insert stores build() under id unless id is present or build declines.
// The builder and announce run under the shard lock, so at most one
// concurrent caller creates the value and no update of id can finish before
// announce returns.
func (sm *shardedMap[V]) insert(id string, build func() (V, bool), announce func(V)) (V, bool) {
	s := sm.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.m[id]; ok {
		return sm.copyOf(v), false
	}
	v, ok := build()
	if !ok {
		var zero V
		return zero, false
	}
	s.m[id] = v
	if announce != nil {
		announce(sm.copyOf(v))
	}
	return sm.copyOf(v), true
}

// publish stores v under id and runs announce before releasing the shard.
func (sm *shardedMap[V]) publish(id string, v V, announce func(V)) {
	s := sm.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[id] = sm.copyOf(v)
	if announce != nil {
		announce(sm.copyOf(v))
	}
}

// update applies fn to the value under the shard lock. fn returning false
// discards its changes.
func (sm *shardedMap[V]) update(id string, fn func(*V) bool) (V, bool) {
	s := sm.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[id]
	if !ok {
		return v, false
	}
	work := sm.copyOf(v)
	if !fn(&work) {
		return sm.copyOf(v), false
	}
	s.m[id] = work
	return sm.copyOf(work), true
}

// removeIf deletes id when pred accepts the current value.
func (sm *shardedMap[V]) removeIf(id string, pred func(V) bool) (V, bool) {
	s := sm.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[id]
	if !ok || (pred != nil && !pred(v)) {
		var zero V
		return zero, false
	}
	delete(s.m, id)
	return v, true
}

func (sm *shardedMap[V]) len() int {
	n := 0
	for i := range sm.shards {
		s := &sm.shards[i]
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}

// snapshot copies every value accepted by keep, one shard at a time, and
// returns them ordered by id.
func (sm *shardedMap[V]) snapshot(keep func(V) bool) []V {
	type kv struct {
		id string
		v  V
	}
	var all []kv
	for i := range sm.shards {
		s := &sm.shards[i]
		s.mu.RLock()
		for id, v := range s.m {
			if keep != nil && !keep(v) {
				continue
			}
			all = append(all, kv{id: id, v: sm.copyOf(v)})
		}
		s.mu.RUnlock()
	}
	sort.Slice(all, func(i, j int) bool { return all[i].id < all[j].id })
	out := make([]V, len(all))
	for i := range all {
		out[i] = all[i].v
	}
	return out
}

func (sm *shardedMap[V]) keys() []string {
	var out []string
	for i := range sm.shards {
		s := &sm.shards[i]
		s.mu.RLock()
		for id := range s.m {
			out = append(out, id)
		}
		s.mu.RUnlock()
	}
	sort.Strings(out)
	return out
}

func (sm *shardedMap[V]) reset() {
	for i := range sm.shards {
		s := &sm.shards[i]
		s.mu.Lock()
		s.m = make(map[string]V)
		s.mu.Unlock()
	}
}
