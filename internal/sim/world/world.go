package world

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"

	"grovecraft.io/internal/logging"
	"grovecraft.io/internal/persistence/snapshot"
	"grovecraft.io/internal/sim/respawn"
	"grovecraft.io/internal/sim/store"
	"grovecraft.io/internal/sim/worldgen"
)

// AuditEntry records one accepted world mutation.
type AuditEntry struct {
	Tick    uint64         `json:"tick"`
	Actor   string         `json:"actor"`
	Action  string         `json:"action"`
	Target  string         `json:"target,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// AuditSink receives audit entries. Implementations must not block.
type AuditSink interface {
	WriteAudit(AuditEntry)
}

type Options struct {
	Log logrus.FieldLogger
	// Rand drives drop-pattern draws. Defaults to a source seeded from the
	// world seed.
	Rand  *rand.Rand
	Now   func() time.Time
	Audit AuditSink
	// Snapshots receives a snapshot every SnapshotEveryTicks. Sends are
	// non-blocking; a full channel skips the snapshot.
	Snapshots chan<- snapshot.SnapshotV1
}

type participant struct {
	id        string
	sessionID string
	name      string
	kick      func(code, reason string)
	lastSeen  atomic.Int64 // unix nanos
}

// World is the authoritative simulation. Participant operations run on each
// session's goroutine and touch only the concurrent store and schedulers;
// timed work runs on the Run loop.
type World struct {
	cfg   Config
	log   logrus.FieldLogger
	now   func() time.Time
	audit AuditSink

	store    *store.Store
	rec      *worldgen.Reconciler
	respawns *respawn.Scheduler
	growth   *respawn.Scheduler
	bc       *Broadcaster

	rngMu deadlock.Mutex
	rng   *rand.Rand

	partMu       deadlock.Mutex
	participants map[string]*participant

	tick       atomic.Uint64
	nextItem   atomic.Uint64
	nextPlayer atomic.Uint64
	nextPing   atomic.Uint64

	materialized atomic.Uint64
	rejections   atomic.Uint64
	observers    atomic.Int64

	snapshots chan<- snapshot.SnapshotV1
	metrics   atomic.Value

	stopOnce sync.Once
	stop     chan struct{}
}

func New(cfg Config, opts Options) *World {
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 20
	}
	log := logging.OrDiscard(opts.Log).WithField("world", cfg.ID)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(cfg.Seed))
	}
	w := &World{
		cfg:          cfg,
		log:          log,
		now:          now,
		audit:        opts.Audit,
		store:        store.New(cfg.Seed, true),
		rec:          worldgen.NewReconciler(cfg.Seed),
		respawns:     respawn.New(),
		growth:       respawn.New(),
		bc:           NewBroadcaster(log),
		rng:          rng,
		participants: map[string]*participant{},
		snapshots:    opts.Snapshots,
		stop:         make(chan struct{}),
	}
	w.generateEager()
	w.store.SetWeather(initialWeather(cfg))
	w.storeMetrics(0)
	return w
}

// generateEager materializes every generated resource around spawn.
func (w *World) generateEager() {
	for _, d := range worldgen.EagerRegion(w.cfg.Seed, w.cfg.SpawnX, w.cfg.SpawnY, w.cfg.SpawnRadius) {
		w.store.PutResource(freshResource(d.ID, d.Kind, d.X, d.Y))
	}
}

func freshResource(id string, kind worldgen.Kind, x, y float64) store.Resource {
	health := worldgen.MaxHealth
	if spec, ok := worldgen.Spec(kind); ok {
		health = spec.MaxHealth
	}
	return store.Resource{ID: id, Kind: kind, X: x, Y: y, Health: health, Exists: true}
}

func (w *World) ID() string          { return w.cfg.ID }
func (w *World) Config() Config      { return w.cfg }
func (w *World) Tick() uint64        { return w.tick.Load() }
func (w *World) Store() *store.Store { return w.store }

func (w *World) Broadcaster() *Broadcaster { return w.bc }

func (w *World) Reconciler() *worldgen.Reconciler { return w.rec }

// PendingRespawns copies the pending respawn entries.
func (w *World) PendingRespawns() []respawn.Entry { return w.respawns.Pending() }

func (w *World) PendingGrowth() []respawn.Entry { return w.growth.Pending() }

func (w *World) ParticipantCount() int {
	w.partMu.Lock()
	defer w.partMu.Unlock()
	return len(w.participants)
}

func (w *World) participant(id string) *participant {
	w.partMu.Lock()
	defer w.partMu.Unlock()
	return w.participants[id]
}

func (w *World) participantList() []*participant {
	w.partMu.Lock()
	defer w.partMu.Unlock()
	out := make([]*participant, 0, len(w.participants))
	for _, p := range w.participants {
		out = append(out, p)
	}
	return out
}

func (w *World) intn(n int) int {
	w.rngMu.Lock()
	defer w.rngMu.Unlock()
	return w.rng.Intn(n)
}

func (w *World) writeAudit(e AuditEntry) {
	if w.audit == nil {
		return
	}
	e.Tick = w.tick.Load()
	w.audit.WriteAudit(e)
}

func dist2(ax, ay, bx, by float64) float64 {
	dx, dy := ax-bx, ay-by
	return dx*dx + dy*dy
}

// inRange is the action range check. The boundary is inclusive.
func (w *World) inRange(p store.Player, x, y float64) bool {
	return dist2(p.X, p.Y, x, y) <= w.cfg.ActionRange*w.cfg.ActionRange
}
