package log

import (
	"encoding/json"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"grovecraft.io/internal/sim/world"
	"grovecraft.io/internal/transport/ws"
)

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "audit")
	now := time.Date(2024, 5, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	if err := w.Write(map[string]int{"n": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"n": 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := Files(dir, "audit")
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	want := []string{
		filepath.Join(dir, "audit-2024-05-01-10.jsonl.zst"),
		filepath.Join(dir, "audit-2024-05-01-11.jsonl.zst"),
	}
	if len(files) != 2 || files[0] != want[0] || files[1] != want[1] {
		t.Fatalf("files: %v", files)
	}
	for i, f := range files {
		var lines []map[string]int
		if err := ReadJSONL(f, func(b []byte) error {
			var m map[string]int
			if err := json.Unmarshal(b, &m); err != nil {
				return err
			}
			lines = append(lines, m)
			return nil
		}); err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if len(lines) != 1 || lines[0]["n"] != i+1 {
			t.Fatalf("%s: %v", f, lines)
		}
	}
}

func TestAuditLogger_WritesEntries(t *testing.T) {
	dir := t.TempDir()
	l := NewAuditLogger(dir, nil)
	for i := 0; i < 10; i++ {
		l.WriteAudit(world.AuditEntry{Tick: uint64(i), Actor: "p1", Action: "DESTROY", Target: "r-0-0"})
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Writes after close are ignored.
	l.WriteAudit(world.AuditEntry{Tick: 99})

	files, _ := Files(filepath.Join(dir, "audit"), "audit")
	n := 0
	for _, f := range files {
		if err := ReadJSONL(f, func(b []byte) error {
			var e world.AuditEntry
			if err := json.Unmarshal(b, &e); err != nil {
				return err
			}
			if e.Actor != "p1" || e.Action != "DESTROY" {
				t.Fatalf("entry: %+v", e)
			}
			n++
			return nil
		}); err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	if n+int(l.Dropped()) != 10 {
		t.Fatalf("read %d, dropped %d", n, l.Dropped())
	}
}

func TestSessionLogger_WritesRecords(t *testing.T) {
	dir := t.TempDir()
	l := NewSessionLogger(dir, nil)
	l.RecordSession(ws.SessionRecord{SessionID: "s1", PlayerID: "p1", Reason: "leave"})
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	files, _ := Files(filepath.Join(dir, "sessions"), "sessions")
	if len(files) != 1 {
		t.Fatalf("files: %v", files)
	}
	var got ws.SessionRecord
	if err := ReadJSONL(files[0], func(b []byte) error { return json.Unmarshal(b, &got) }); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.SessionID != "s1" || got.Reason != "leave" {
		t.Fatalf("record: %+v", got)
	}
}

func TestAuditLogger_ConcurrentWritersDuringClose(t *testing.T) {
	l := NewAuditLogger(t.TempDir(), nil)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			for j := 0; j < 500; j++ {
				l.WriteAudit(world.AuditEntry{Tick: uint64(j), Actor: "p" + strconv.Itoa(i), Action: "LEAVE"})
			}
		}(i)
	}
	close(start)
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	wg.Wait()
}
