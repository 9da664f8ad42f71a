package respawn

import "testing"

func TestTick_ExpiresExactlyAtDelay(t *testing.T) {
	s := New()
	s.Schedule(Entry{TargetID: "r-0-0", Kind: "APPLE", Remaining: 2400})

	if due := s.Tick(2399); len(due) != 0 {
		t.Fatalf("expired early: %+v", due)
	}
	if rem, ok := s.Remaining("r-0-0"); !ok || rem != 1 {
		t.Fatalf("remaining: %d %v", rem, ok)
	}
	due := s.Tick(1)
	if len(due) != 1 || due[0].TargetID != "r-0-0" || due[0].Kind != "APPLE" {
		t.Fatalf("due: %+v", due)
	}
	if s.Len() != 0 {
		t.Fatalf("expired entry kept")
	}
}

func TestTick_FrameByFrameMatchesBulk(t *testing.T) {
	a, b := New(), New()
	for _, s := range []*Scheduler{a, b} {
		s.Schedule(Entry{TargetID: "x", Remaining: 7})
		s.Schedule(Entry{TargetID: "y", Remaining: 3})
	}
	var stepped []Entry
	for i := 0; i < 7; i++ {
		stepped = append(stepped, a.Tick(1)...)
	}
	bulk := b.Tick(7)
	if len(stepped) != 2 || len(bulk) != 2 {
		t.Fatalf("stepped=%+v bulk=%+v", stepped, bulk)
	}
	if stepped[0].TargetID != "y" || stepped[1].TargetID != "x" {
		t.Fatalf("stepped order: %+v", stepped)
	}
}

func TestTick_OrderedByID(t *testing.T) {
	s := New()
	for _, id := range []string{"r-9-0", "r-1-0", "r-5-0"} {
		s.Schedule(Entry{TargetID: id, Remaining: 1})
	}
	due := s.Tick(1)
	if len(due) != 3 || due[0].TargetID != "r-1-0" || due[1].TargetID != "r-5-0" || due[2].TargetID != "r-9-0" {
		t.Fatalf("order: %+v", due)
	}
}

func TestSchedule_ReplacesByID(t *testing.T) {
	s := New()
	s.Schedule(Entry{TargetID: "r-0-0", Remaining: 10})
	s.Schedule(Entry{TargetID: "r-0-0", Remaining: 50})
	if s.Len() != 1 {
		t.Fatalf("len: %d", s.Len())
	}
	if rem, _ := s.Remaining("r-0-0"); rem != 50 {
		t.Fatalf("remaining: %d", rem)
	}
}

func TestPendingRestore(t *testing.T) {
	s := New()
	s.Schedule(Entry{TargetID: "b", Remaining: 5})
	s.Schedule(Entry{TargetID: "a", Remaining: 9})
	p := s.Pending()
	if len(p) != 2 || p[0].TargetID != "a" {
		t.Fatalf("pending: %+v", p)
	}
	p[0].Remaining = 1

	other := New()
	other.Restore(s.Pending())
	if rem, _ := other.Remaining("a"); rem != 9 {
		t.Fatalf("restore: %d", rem)
	}
	if s.Tick(0) != nil {
		t.Fatalf("zero tick should not expire")
	}
}
