package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"grovecraft.io/internal/persistence/snapshot"
)

type Meta struct {
	Tick       uint64 `json:"tick"`
	Seed       int64  `json:"seed"`
	Snapshot   string `json:"snapshot"`
	CreatedAt  string `json:"created_at"`
	Resources  int    `json:"resources"`
	Cleared    int    `json:"cleared"`
	TickRateHz int    `json:"tick_rate_hz"`
}

// Policy controls what happens to written snapshots. Zero values disable the
// respective step.
type Policy struct {
	// ArchiveEveryTicks copies snapshots whose tick is a multiple of it into
	// worldDir/archives/tick_<N>/ where pruning never reaches.
	ArchiveEveryTicks uint64
	// Keep is the number of newest snapshots kept in worldDir/snapshots.
	Keep int
}

// Apply archives snapshotPath when the policy says so and prunes old
// snapshots. It returns the archived path, or "" when nothing was archived.
func (p Policy) Apply(worldDir, snapshotPath string, snap snapshot.SnapshotV1) (archived string, pruned []string, err error) {
	if p.ArchiveEveryTicks > 0 && snap.Header.Tick > 0 && snap.Header.Tick%p.ArchiveEveryTicks == 0 {
		archived, err = archiveSnapshot(worldDir, snapshotPath, snap)
		if err != nil {
			return "", nil, err
		}
	}
	if p.Keep > 0 {
		pruned, err = prune(filepath.Join(worldDir, "snapshots"), p.Keep)
	}
	return archived, pruned, err
}

func archiveSnapshot(worldDir, snapshotPath string, snap snapshot.SnapshotV1) (string, error) {
	archiveDir := filepath.Join(worldDir, "archives", fmt.Sprintf("tick_%d", snap.Header.Tick))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", err
	}

	meta := Meta{
		Tick:       snap.Header.Tick,
		Seed:       snap.Seed,
		Snapshot:   filepath.Base(dst),
		CreatedAt:  time.Now().UTC().Format(time.RFC3339Nano),
		Resources:  len(snap.Resources),
		Cleared:    len(snap.Cleared),
		TickRateHz: snap.TickRateHz,
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}
	return dst, nil
}

// prune removes all but the keep highest-tick snapshots in dir.
func prune(dir string, keep int) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	type snap struct {
		tick uint64
		path string
	}
	var all []snap
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		all = append(all, snap{tick: n, path: filepath.Join(dir, name)})
	}
	if len(all) <= keep {
		return nil, nil
	}
	sort.Slice(all, func(i, j int) bool { return all[i].tick > all[j].tick })
	var removed []string
	for _, s := range all[keep:] {
		if err := os.Remove(s.path); err != nil {
			return removed, err
		}
		removed = append(removed, s.path)
	}
	return removed, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
