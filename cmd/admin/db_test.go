package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"grovecraft.io/internal/persistence/indexdb"
	"grovecraft.io/internal/sim/world"
)

func TestRunQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.sqlite")
	idx, err := indexdb.OpenSQLite(path, indexdb.Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	idx.WriteAudit(world.AuditEntry{Tick: 3, Actor: "p1", Action: "PLANT", Target: "g-0-0"})
	idx.WriteAudit(world.AuditEntry{Tick: 4, Actor: "p2", Action: "PLANT", Target: "g-32-0"})
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := indexdb.OpenReader(path)
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	defer r.Close()
	ctx := context.Background()

	var buf bytes.Buffer
	if err := runQuery(ctx, &buf, r, "audits", queryOpts{Audit: indexdb.AuditFilter{Actor: "p2"}}); err != nil {
		t.Fatalf("audits: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(buf.String()), "\n"); len(lines) != 1 || !strings.Contains(lines[0], `"target":"g-32-0"`) {
		t.Fatalf("audits output: %q", buf.String())
	}

	buf.Reset()
	if err := runQuery(ctx, &buf, r, "actions", queryOpts{}); err != nil {
		t.Fatalf("actions: %v", err)
	}
	if strings.TrimSpace(buf.String()) != `{"PLANT":2}` {
		t.Fatalf("actions output: %q", buf.String())
	}

	buf.Reset()
	if err := runQuery(ctx, &buf, r, "snapshots", queryOpts{}); err != nil || buf.Len() != 0 {
		t.Fatalf("snapshots: %q err=%v", buf.String(), err)
	}

	if err := runQuery(ctx, &buf, r, "ticks", queryOpts{}); err == nil {
		t.Fatalf("unknown query accepted")
	}
}
