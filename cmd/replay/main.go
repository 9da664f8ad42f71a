package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	persistlog "grovecraft.io/internal/persistence/log"
	"grovecraft.io/internal/persistence/snapshot"
	"grovecraft.io/internal/sim/world"
)

func main() {
	var (
		snapPath = flag.String("snapshot", "", "path to .snap.zst (default: latest under -world_dir)")
		worldDir = flag.String("world_dir", "./data/worlds/grove", "world data directory")
		auditDir = flag.String("audit", "", "directory with audit-*.jsonl.zst (default: <world_dir>/audit)")
		advance  = flag.Int("advance", 0, "step the restored world this many ticks and report timers that fired")
	)
	flag.Parse()

	path := *snapPath
	if path == "" {
		p, _, err := snapshot.Latest(*worldDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "find snapshot:", err)
			os.Exit(1)
		}
		path = p
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printSnapshot(os.Stdout, snap)

	if *advance > 0 {
		if err := replayTimers(os.Stdout, snap, *advance); err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}

	dir := *auditDir
	if dir == "" {
		dir = filepath.Join(*worldDir, "audit")
	}
	st, err := auditStats(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "audit:", err)
		os.Exit(1)
	}
	printAudit(os.Stdout, st)
}

func printSnapshot(w io.Writer, s snapshot.SnapshotV1) {
	fmt.Fprintf(w, "snapshot v%d world=%s tick=%d seed=%d resources=%d items=%d planted=%d players=%d cleared=%d respawns=%d growth=%d weather=%d\n",
		s.Header.Version, s.Header.WorldID, s.Header.Tick, s.Seed,
		len(s.Resources), len(s.Items), len(s.Planted), len(s.Players), len(s.Cleared),
		len(s.Respawns), len(s.Growth), len(s.Weather))
}

// replayTimers restores the snapshot into a fresh world and steps it,
// reporting how many pending respawns and growths fired.
func replayTimers(w io.Writer, s snapshot.SnapshotV1, ticks int) error {
	wd := world.New(world.Config{ID: s.Header.WorldID, Seed: s.Seed, TickRateHz: s.TickRateHz}, world.Options{})
	if err := wd.ImportSnapshot(s); err != nil {
		return err
	}
	beforeR, beforeG := len(wd.PendingRespawns()), len(wd.PendingGrowth())
	for i := 0; i < ticks; i++ {
		wd.StepOnce()
	}
	m := wd.Metrics()
	fmt.Fprintf(w, "advanced %d ticks to %d: respawned=%d grown=%d resources=%d cleared=%d\n",
		ticks, wd.Tick(), beforeR-m.PendingRespawns, beforeG-m.PendingGrowth, m.Resources, m.Cleared)
	return nil
}

type stats struct {
	Files     int
	Entries   int
	Bad       int
	FirstTick uint64
	LastTick  uint64
	ByAction  map[string]int
	ByActor   map[string]int
}

func auditStats(dir string) (stats, error) {
	st := stats{ByAction: map[string]int{}, ByActor: map[string]int{}}
	files, err := persistlog.Files(dir, "audit")
	if err != nil {
		return st, err
	}
	st.Files = len(files)
	for _, f := range files {
		err := persistlog.ReadJSONL(f, func(line []byte) error {
			var e world.AuditEntry
			if err := json.Unmarshal(line, &e); err != nil {
				st.Bad++
				return nil
			}
			if st.Entries == 0 || e.Tick < st.FirstTick {
				st.FirstTick = e.Tick
			}
			if e.Tick > st.LastTick {
				st.LastTick = e.Tick
			}
			st.Entries++
			st.ByAction[e.Action]++
			if e.Actor != "" {
				st.ByActor[e.Actor]++
			}
			return nil
		})
		if err != nil {
			return st, fmt.Errorf("%s: %w", f, err)
		}
	}
	return st, nil
}

func printAudit(w io.Writer, st stats) {
	fmt.Fprintf(w, "audit files=%d entries=%d bad=%d ticks=%d..%d\n", st.Files, st.Entries, st.Bad, st.FirstTick, st.LastTick)
	for _, k := range sortedKeys(st.ByAction) {
		fmt.Fprintf(w, "  action %-12s %d\n", k, st.ByAction[k])
	}
	for _, k := range sortedKeys(st.ByActor) {
		fmt.Fprintf(w, "  actor  %-12s %d\n", k, st.ByActor[k])
	}
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
