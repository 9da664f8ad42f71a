package indexdb

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"grovecraft.io/internal/persistence/snapshot"
	"grovecraft.io/internal/sim/world"
	"grovecraft.io/internal/transport/ws"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqAudit, audit: world.AuditEntry{Tick: 1}}

	s.WriteAudit(world.AuditEntry{Tick: 2})
	s.RecordSession(ws.SessionRecord{SessionID: "s"})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropAuditTotal != 1 {
		t.Fatalf("DropAuditTotal=%d want=1", st.DropAuditTotal)
	}
	if st.DropSessionTotal != 1 {
		t.Fatalf("DropSessionTotal=%d want=1", st.DropSessionTotal)
	}
	if st.DropSnapshotTotal != 1 {
		t.Fatalf("DropSnapshotTotal=%d want=1", st.DropSnapshotTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_NilIsSafe(t *testing.T) {
	var s *SQLiteIndex
	s.WriteAudit(world.AuditEntry{})
	s.RecordSession(ws.SessionRecord{})
	s.RecordSnapshot("", snapshot.SnapshotV1{})
	if st := s.Stats(); st.QueueCapacity != 0 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestSQLiteIndex_WriteThenQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "world.sqlite")
	idx, err := OpenSQLite(path, Options{CommitEvery: 1})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	idx.WriteAudit(world.AuditEntry{Tick: 10, Actor: "p1", Action: "MATERIALIZE", Target: "r-100-200"})
	idx.WriteAudit(world.AuditEntry{Tick: 10, Actor: "p1", Action: "DESTROY", Target: "r-100-200"})
	idx.WriteAudit(world.AuditEntry{Tick: 12, Actor: "p2", Action: "PICKUP", Target: "i-1"})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	idx.RecordSession(ws.SessionRecord{SessionID: "s1", PlayerID: "p1", Name: "ann", Remote: "127.0.0.1", Opened: now, Closed: now.Add(time.Minute), Reason: "leave"})
	idx.RecordSnapshot("/data/snap/120.snap.zst", snapshot.SnapshotV1{
		Header:    snapshot.Header{Tick: 120},
		Seed:      42,
		Resources: make([]snapshot.ResourceV1, 3),
		Cleared:   []string{"r-100-200"},
	})
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if st := idx.Stats(); st.WrittenTotal != 5 {
		t.Fatalf("written=%d want 5", st.WrittenTotal)
	}

	r, err := OpenReader(path)
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	defer r.Close()
	ctx := context.Background()

	audits, err := r.Audits(ctx, AuditFilter{Actor: "p1"})
	if err != nil {
		t.Fatalf("audits: %v", err)
	}
	if len(audits) != 2 || audits[0].Action != "MATERIALIZE" || audits[1].Seq != 1 {
		t.Fatalf("audits: %+v", audits)
	}
	if got, _ := r.Audits(ctx, AuditFilter{FromTick: 11}); len(got) != 1 || got[0].Actor != "p2" {
		t.Fatalf("from tick: %+v", got)
	}

	counts, err := r.ActionCounts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts["DESTROY"] != 1 || counts["PICKUP"] != 1 {
		t.Fatalf("counts: %v", counts)
	}

	sessions, err := r.Sessions(ctx, "p1", 0)
	if err != nil || len(sessions) != 1 || sessions[0].Reason != "leave" {
		t.Fatalf("sessions: %+v err=%v", sessions, err)
	}

	snaps, err := r.Snapshots(ctx, 0)
	if err != nil || len(snaps) != 1 {
		t.Fatalf("snapshots: %+v err=%v", snaps, err)
	}
	if snaps[0].Tick != 120 || snaps[0].Seed != 42 || snaps[0].Resources != 3 || snaps[0].Cleared != 1 {
		t.Fatalf("snapshot row: %+v", snaps[0])
	}
}

func TestSQLiteIndex_WritesRacingClose(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.sqlite"), Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 500; j++ {
				idx.WriteAudit(world.AuditEntry{Tick: uint64(j), Actor: "p1", Action: "LEAVE"})
				idx.RecordSession(ws.SessionRecord{SessionID: "s", PlayerID: "p1"})
			}
		}()
	}
	close(start)
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	wg.Wait()
	if err := idx.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
