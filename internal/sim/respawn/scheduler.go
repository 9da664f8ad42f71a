package respawn

import (
	"sort"

	"github.com/sasha-s/go-deadlock"
)

// Entry is a pending re-creation. For growth timers TargetID names the
// planted entity and Kind the resource it grows into.
type Entry struct {
	TargetID  string
	Category  string
	Kind      string
	X, Y      float64
	Remaining int
}

// Scheduler counts entries down in whole server frames. Entries are keyed by
// target id; scheduling an id again replaces its entry.
type Scheduler struct {
	mu      deadlock.Mutex
	entries map[string]Entry
}

func New() *Scheduler {
	return &Scheduler{entries: map[string]Entry{}}
}

// Schedule registers e. A non-positive delay fires on the next Tick.
func (s *Scheduler) Schedule(e Entry) {
	s.mu.Lock()
	s.entries[e.TargetID] = e
	s.mu.Unlock()
}

// Tick advances every entry by n frames and returns the expired ones, ordered
// by target id. Expired entries are removed.
func (s *Scheduler) Tick(n int) []Entry {
	if n <= 0 {
		return nil
	}
	s.mu.Lock()
	var due []Entry
	for id, e := range s.entries {
		e.Remaining -= n
		if e.Remaining <= 0 {
			e.Remaining = 0
			due = append(due, e)
			delete(s.entries, id)
			continue
		}
		s.entries[id] = e
	}
	s.mu.Unlock()
	sortEntries(due)
	return due
}

func (s *Scheduler) Remaining(id string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return e.Remaining, ok
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Pending copies every entry, ordered by target id.
func (s *Scheduler) Pending() []Entry {
	s.mu.Lock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.Unlock()
	sortEntries(out)
	return out
}

// Restore replaces every entry with entries.
func (s *Scheduler) Restore(entries []Entry) {
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		m[e.TargetID] = e
	}
	s.mu.Lock()
	s.entries = m
	s.mu.Unlock()
}

func sortEntries(es []Entry) {
	sort.Slice(es, func(i, j int) bool { return es[i].TargetID < es[j].TargetID })
}
