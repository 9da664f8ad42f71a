package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"grovecraft.io/internal/logging"
	"grovecraft.io/internal/persistence/archive"
	"grovecraft.io/internal/persistence/indexdb"
	persistlog "grovecraft.io/internal/persistence/log"
	"grovecraft.io/internal/persistence/snapshot"
	"grovecraft.io/internal/sim/store"
	"grovecraft.io/internal/sim/tuning"
	"grovecraft.io/internal/sim/world"
	"grovecraft.io/internal/transport/ws"
)

func main() {
	var (
		configPath = flag.String("config", "./configs/server.yaml", "server config path")
		addr       = flag.String("addr", "", "http listen address (overrides config listen)")
		seed       = flag.Int64("seed", 0, "world seed (overrides config; ignored when resuming)")
		dataDir    = flag.String("data", "", "runtime data directory (overrides config data_dir)")
		debug      = flag.Bool("debug", false, "debug logging and deadlock detection")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	tune, err := tuning.Load(*configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.New("info", "text", false, nil).WithError(err).Fatal("load config")
		}
		tune = tuning.Defaults()
	}
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if *addr != "" {
		tune.Listen = *addr
	}
	if set["seed"] {
		tune.WorldSeed = *seed
	}
	if *dataDir != "" {
		tune.DataDir = *dataDir
	}
	if *debug {
		tune.Debug = true
	}

	logger := logging.New(tune.Log.Level, tune.Log.Format, tune.Debug, nil)
	store.EnableDeadlockDetection(tune.Debug)
	if errors.Is(err, os.ErrNotExist) {
		logger.WithField("path", *configPath).Warn("config not found; using defaults")
	}

	cfg := world.ConfigFromTuning(tune)
	worldDir := filepath.Join(tune.DataDir, "worlds", cfg.ID)
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		logger.WithError(err).Fatal("data dir")
	}

	// Resume: the snapshot's seed wins over config.
	var resume *snapshot.SnapshotV1
	toLoad := strings.TrimSpace(*snapPath)
	if toLoad == "" && *loadLatest {
		if p, _, err := snapshot.Latest(worldDir); err == nil {
			toLoad = p
		} else if !errors.Is(err, snapshot.ErrNoSnapshot) {
			logger.WithError(err).Fatal("find latest snapshot")
		}
	}
	if toLoad != "" {
		snap, err := snapshot.ReadSnapshot(toLoad)
		if err != nil {
			logger.WithError(err).Fatal("read snapshot")
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != cfg.ID {
			logger.Fatalf("snapshot world id mismatch: want=%s snap=%s", cfg.ID, snap.Header.WorldID)
		}
		cfg.Seed = snap.Seed
		resume = &snap
	}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"), indexdb.Options{Log: logger})
		if err != nil {
			logger.WithError(err).Fatal("open index")
		}
		defer idx.Close()
	}

	auditLog := persistlog.NewAuditLogger(worldDir, logger)
	defer auditLog.Close()
	sessionLog := persistlog.NewSessionLogger(worldDir, logger)
	defer sessionLog.Close()

	snapCh := make(chan snapshot.SnapshotV1, 2)
	w := world.New(cfg, world.Options{
		Log:       logger,
		Audit:     multiAudit{auditLog, idx},
		Snapshots: snapCh,
	})
	if resume != nil {
		if err := w.ImportSnapshot(*resume); err != nil {
			logger.WithError(err).Fatal("import snapshot")
		}
		logger.WithField("snapshot", filepath.Base(toLoad)).WithField("tick", w.Tick()).Info("resumed")
	}

	ctx, cancel := signalContext()
	defer cancel()

	snapDone := make(chan struct{})
	go func() {
		defer close(snapDone)
		policy := archive.Policy{ArchiveEveryTicks: uint64(max(tune.ArchiveEveryTicks, 0)), Keep: tune.SnapshotKeep}
		runSnapshotWriter(ctx, worldDir, snapCh, policy, idx, logger)
	}()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("world stopped")
		}
	}()

	wsSrv := ws.NewServer(w, ws.ConfigFromTuning(tune), logger, multiSession{sessionLog, idx})
	srv := &http.Server{
		Addr:              tune.Listen,
		Handler:           newMux(w, wsSrv, idx, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		wsSrv.CloseAll("server shutting down")
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.WithField("addr", tune.Listen).WithField("seed", cfg.Seed).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Fatal("ListenAndServe")
	}
	<-worldDone

	// Hijacked websocket handlers outlive srv.Shutdown; their cleanup still
	// writes to the audit and session sinks closed by the defers below.
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 5*time.Second)
	if err := wsSrv.Wait(drainCtx); err != nil {
		logger.WithError(err).Warn("sessions still open at shutdown")
	}
	cancelDrain()

	// Final snapshot so a restart resumes where we stopped.
	final := w.ExportSnapshot()
	if err := snapshot.WriteSnapshot(snapshot.Path(worldDir, final.Header.Tick), final); err != nil {
		logger.WithError(err).Error("final snapshot")
	}
	<-snapDone
	logger.Info("bye")
}

func runSnapshotWriter(ctx context.Context, worldDir string, ch <-chan snapshot.SnapshotV1, policy archive.Policy, idx *indexdb.SQLiteIndex, log logrus.FieldLogger) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			path := snapshot.Path(worldDir, snap.Header.Tick)
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				log.WithError(err).Error("snapshot write")
				continue
			}
			idx.RecordSnapshot(path, snap)
			log.WithField("tick", snap.Header.Tick).Debug("snapshot written")

			archived, pruned, err := policy.Apply(worldDir, path, snap)
			if err != nil {
				log.WithError(err).Warn("snapshot retention")
			}
			if archived != "" {
				log.WithField("path", archived).Info("snapshot archived")
			}
			if len(pruned) > 0 {
				log.WithField("count", len(pruned)).Debug("snapshots pruned")
			}
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

type multiAudit struct {
	a *persistlog.AuditLogger
	b *indexdb.SQLiteIndex
}

func (m multiAudit) WriteAudit(e world.AuditEntry) {
	if m.a != nil {
		m.a.WriteAudit(e)
	}
	m.b.WriteAudit(e)
}

type multiSession struct {
	a *persistlog.SessionLogger
	b *indexdb.SQLiteIndex
}

func (m multiSession) RecordSession(r ws.SessionRecord) {
	if m.a != nil {
		m.a.RecordSession(r)
	}
	m.b.RecordSession(r)
}
