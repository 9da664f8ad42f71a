package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"grovecraft.io/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "grove", "world id")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	actor := fs.String("actor", "", "actor filter (audits)")
	target := fs.String("target", "", "target filter (audits)")
	action := fs.String("action", "", "action filter (audits)")
	player := fs.String("player", "", "player filter (sessions)")
	fromTick := fs.Uint64("from_tick", 0, "first tick (audits)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	r, err := indexdb.OpenReader(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer r.Close()

	err = runQuery(context.Background(), os.Stdout, r, q, queryOpts{
		Limit:  *limit,
		Player: *player,
		Audit: indexdb.AuditFilter{
			Actor:    *actor,
			Target:   *target,
			Action:   *action,
			FromTick: *fromTick,
			Limit:    *limit,
		},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
}

type queryOpts struct {
	Limit  int
	Player string
	Audit  indexdb.AuditFilter
}

// runQuery prints the result of q as JSON lines.
func runQuery(ctx context.Context, w io.Writer, r *indexdb.Reader, q string, o queryOpts) error {
	enc := json.NewEncoder(w)
	switch q {
	case "snapshots":
		rows, err := r.Snapshots(ctx, o.Limit)
		if err != nil {
			return err
		}
		for _, row := range rows {
			_ = enc.Encode(row)
		}
	case "audits":
		rows, err := r.Audits(ctx, o.Audit)
		if err != nil {
			return err
		}
		for _, row := range rows {
			_ = enc.Encode(row)
		}
	case "sessions":
		rows, err := r.Sessions(ctx, o.Player, o.Limit)
		if err != nil {
			return err
		}
		for _, row := range rows {
			_ = enc.Encode(row)
		}
	case "actions":
		counts, err := r.ActionCounts(ctx)
		if err != nil {
			return err
		}
		return enc.Encode(counts)
	default:
		return fmt.Errorf("unknown query %q (snapshots|audits|sessions|actions)", q)
	}
	return nil
}
