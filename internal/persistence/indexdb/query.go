package indexdb

import (
	"context"
	"database/sql"
	"fmt"
)

// Reader runs queries against an index written by SQLiteIndex. It may be
// opened while the server is writing; WAL lets both proceed.
type Reader struct {
	db *sql.DB
}

func OpenReader(path string) (*Reader, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

// AuditFilter selects audit rows. Empty fields match everything.
type AuditFilter struct {
	Actor    string
	Target   string
	Action   string
	FromTick uint64
	Limit    int
}

func (r *Reader) Audits(ctx context.Context, f AuditFilter) ([]AuditRow, error) {
	q := `SELECT tick,seq,actor,action,target,COALESCE(reason,''),raw_json FROM audits WHERE tick >= ?`
	args := []any{int64(f.FromTick)}
	if f.Actor != "" {
		q += ` AND actor = ?`
		args = append(args, f.Actor)
	}
	if f.Target != "" {
		q += ` AND target = ?`
		args = append(args, f.Target)
	}
	if f.Action != "" {
		q += ` AND action = ?`
		args = append(args, f.Action)
	}
	q += ` ORDER BY tick, seq LIMIT ?`
	args = append(args, limitOr(f.Limit, 1000))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AuditRow
	for rows.Next() {
		var a AuditRow
		var tick int64
		if err := rows.Scan(&tick, &a.Seq, &a.Actor, &a.Action, &a.Target, &a.Reason, &a.RawJSON); err != nil {
			return nil, err
		}
		a.Tick = uint64(tick)
		out = append(out, a)
	}
	return out, rows.Err()
}

// ActionCounts returns the number of audit rows per action.
func (r *Reader) ActionCounts(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT action, COUNT(*) FROM audits GROUP BY action`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var action string
		var n int
		if err := rows.Scan(&action, &n); err != nil {
			return nil, err
		}
		out[action] = n
	}
	return out, rows.Err()
}

func (r *Reader) Sessions(ctx context.Context, playerID string, limit int) ([]SessionRow, error) {
	q := `SELECT session_id,player_id,name,remote,opened_at,closed_at,reason FROM sessions`
	var args []any
	if playerID != "" {
		q += ` WHERE player_id = ?`
		args = append(args, playerID)
	}
	q += ` ORDER BY closed_at DESC LIMIT ?`
	args = append(args, limitOr(limit, 100))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SessionRow
	for rows.Next() {
		var s SessionRow
		if err := rows.Scan(&s.SessionID, &s.PlayerID, &s.Name, &s.Remote, &s.OpenedAt, &s.ClosedAt, &s.Reason); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Reader) Snapshots(ctx context.Context, limit int) ([]SnapshotRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT tick,path,seed,resources,items,planted,players,cleared,respawns FROM snapshots ORDER BY tick DESC LIMIT ?`,
		limitOr(limit, 100))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SnapshotRow
	for rows.Next() {
		var s SnapshotRow
		var tick int64
		if err := rows.Scan(&tick, &s.Path, &s.Seed, &s.Resources, &s.Items, &s.Planted, &s.Players, &s.Cleared, &s.Respawns); err != nil {
			return nil, err
		}
		s.Tick = uint64(tick)
		out = append(out, s)
	}
	return out, rows.Err()
}

func limitOr(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
