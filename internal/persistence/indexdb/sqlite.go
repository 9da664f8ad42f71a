package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"grovecraft.io/internal/logging"
	"grovecraft.io/internal/persistence/snapshot"
	"grovecraft.io/internal/sim/world"
	"grovecraft.io/internal/transport/ws"
)

// SQLiteIndex is a queryable secondary index over audits, sessions and
// snapshots. Writes are queued and applied by a single goroutine; when the
// queue is full they are dropped and counted. The JSONL logs stay the source
// of truth.
type SQLiteIndex struct {
	db  *sql.DB
	log logrus.FieldLogger

	// mu orders enqueues against Close so no send hits a closed channel.
	mu     sync.RWMutex
	closed bool
	ch     chan req
	wg     sync.WaitGroup

	dropAudit    atomic.Uint64
	dropSession  atomic.Uint64
	dropSnapshot atomic.Uint64
	written      atomic.Uint64
}

type reqKind int

const (
	reqAudit reqKind = iota + 1
	reqSession
	reqSnapshot
)

type req struct {
	kind reqKind

	audit    world.AuditEntry
	session  ws.SessionRecord
	snapshot SnapshotRow
}

// SnapshotRow summarizes one snapshot file.
type SnapshotRow struct {
	Tick      uint64 `json:"tick"`
	Path      string `json:"path"`
	Seed      int64  `json:"seed"`
	Resources int    `json:"resources"`
	Items     int    `json:"items"`
	Planted   int    `json:"planted"`
	Players   int    `json:"players"`
	Cleared   int    `json:"cleared"`
	Respawns  int    `json:"respawns"`
}

// AuditRow is an audit entry as stored.
type AuditRow struct {
	Tick    uint64 `json:"tick"`
	Seq     int    `json:"seq"`
	Actor   string `json:"actor"`
	Action  string `json:"action"`
	Target  string `json:"target"`
	Reason  string `json:"reason,omitempty"`
	RawJSON string `json:"raw_json"`
}

// SessionRow is a finished session as stored.
type SessionRow struct {
	SessionID string `json:"session_id"`
	PlayerID  string `json:"player_id"`
	Name      string `json:"name"`
	Remote    string `json:"remote"`
	OpenedAt  string `json:"opened_at"`
	ClosedAt  string `json:"closed_at"`
	Reason    string `json:"reason"`
}

type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropAuditTotal    uint64 `json:"drop_audit_total"`
	DropSessionTotal  uint64 `json:"drop_session_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
	WrittenTotal      uint64 `json:"written_total"`
}

// Options tune the writer. Zero values pick defaults.
type Options struct {
	QueueSize     int
	CommitEvery   int
	CommitMaxWait time.Duration
	Log           logrus.FieldLogger
}

func OpenSQLite(path string, opts Options) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if opts.QueueSize <= 0 {
		opts.QueueSize = 65536
	}
	if opts.CommitEvery <= 0 {
		opts.CommitEvery = 2000
	}
	if opts.CommitMaxWait <= 0 {
		opts.CommitMaxWait = 2 * time.Second
	}
	s := &SQLiteIndex{
		db:  db,
		log: logging.OrDiscard(opts.Log),
		ch:  make(chan req, opts.QueueSize),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(opts.CommitEvery, opts.CommitMaxWait)
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS audits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			target TEXT NOT NULL,
			reason TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_actor_tick ON audits(actor, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_target_tick ON audits(target, tick);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			player_id TEXT NOT NULL,
			name TEXT NOT NULL,
			remote TEXT NOT NULL,
			opened_at TEXT NOT NULL,
			closed_at TEXT NOT NULL,
			reason TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_player ON sessions(player_id);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			seed INTEGER NOT NULL,
			resources INTEGER NOT NULL,
			items INTEGER NOT NULL,
			planted INTEGER NOT NULL,
			players INTEGER NOT NULL,
			cleared INTEGER NOT NULL,
			respawns INTEGER NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()
	s.wg.Wait()
	return s.db.Close()
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

// WriteAudit implements world.AuditSink.
func (s *SQLiteIndex) WriteAudit(e world.AuditEntry) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqAudit, audit: e}, &s.dropAudit)
}

// RecordSession implements ws.SessionSink.
func (s *SQLiteIndex) RecordSession(r ws.SessionRecord) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqSession, session: r}, &s.dropSession)
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil {
		return
	}
	row := SnapshotRow{
		Tick:      snap.Header.Tick,
		Path:      path,
		Seed:      snap.Seed,
		Resources: len(snap.Resources),
		Items:     len(snap.Items),
		Planted:   len(snap.Planted),
		Players:   len(snap.Players),
		Cleared:   len(snap.Cleared),
		Respawns:  len(snap.Respawns),
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: row}, &s.dropSnapshot)
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropAuditTotal:    s.dropAudit.Load(),
		DropSessionTotal:  s.dropSession.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		WrittenTotal:      s.written.Load(),
	}
}

func (s *SQLiteIndex) loop(commitEvery int, commitMaxWait time.Duration) {
	ctx := context.Background()

	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(tick,seq,actor,action,target,reason,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertSession, _ := s.db.Prepare(`INSERT OR REPLACE INTO sessions(session_id,player_id,name,remote,opened_at,closed_at,reason) VALUES(?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,seed,resources,items,planted,players,cleared,respawns) VALUES(?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertAudit, insertSession, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx         *sql.Tx
		opCount    int
		lastCommit = time.Now()

		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.log.WithError(err).Warn("index begin")
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.log.WithError(err).Warn("index commit")
		} else {
			s.written.Add(uint64(opCount))
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func(err error) {
		s.log.WithError(err).Warn("index insert")
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback(err)
			return
		}
		opCount++
	}

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		select {
		case r, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			begin()
			if tx == nil {
				continue
			}
			switch r.kind {
			case reqAudit:
				a := r.audit
				if a.Tick != lastAuditTick {
					lastAuditTick = a.Tick
					auditSeq = 0
				}
				seq := auditSeq
				auditSeq++
				raw, _ := json.Marshal(a)
				exec(insertAudit, int64(a.Tick), seq, a.Actor, a.Action, a.Target, a.Reason, string(raw))

			case reqSession:
				se := r.session
				exec(insertSession, se.SessionID, se.PlayerID, se.Name, se.Remote,
					se.Opened.UTC().Format(time.RFC3339Nano), se.Closed.UTC().Format(time.RFC3339Nano), se.Reason)

			case reqSnapshot:
				sn := r.snapshot
				exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.Seed, sn.Resources, sn.Items,
					sn.Planted, sn.Players, sn.Cleared, sn.Respawns)
			}
			if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
				commit()
			}

		case <-ticker.C:
			if time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
		}
	}
}
