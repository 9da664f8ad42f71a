package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
	Seed    int64  `json:"seed"`
}

// SnapshotV1 is the plain-record form of a world: everything needed to resume
// it with the same seed, content and pending timers.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed       int64 `json:"seed"`
	TickRateHz int   `json:"tick_rate_hz"`

	Resources []ResourceV1 `json:"resources"`
	Items     []ItemV1     `json:"items"`
	Planted   []PlantedV1  `json:"planted"`
	Players   []PlayerV1   `json:"players"`
	Cleared   []string     `json:"cleared"`
	Weather   []WeatherV1  `json:"weather"`

	Respawns []TimerV1 `json:"respawns"`
	Growth   []TimerV1 `json:"growth"`

	Counters CountersV1 `json:"counters"`
}

type ResourceV1 struct {
	ID     string  `json:"id"`
	Kind   string  `json:"kind"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Health float64 `json:"health"`
	Exists bool    `json:"exists"`
}

type ItemV1 struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Count     int     `json:"count"`
	Collected bool    `json:"collected,omitempty"`
}

type PlantedV1 struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	GrowsInto string  `json:"grows_into"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Occupied  bool    `json:"occupied"`
	PlantedBy string  `json:"planted_by,omitempty"`
}

// PlayerV1 is the last known state of a participant. Players are removed on
// disconnect, so this is only non-empty for snapshots taken while connected.
type PlayerV1 struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	X         float64        `json:"x"`
	Y         float64        `json:"y"`
	Facing    float64        `json:"facing"`
	Health    float64        `json:"health"`
	Hunger    float64        `json:"hunger"`
	Inventory map[string]int `json:"inventory"`
}

type WeatherV1 struct {
	ID             string  `json:"id"`
	Kind           string  `json:"kind"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Radius         float64 `json:"radius"`
	RemainingTicks int     `json:"remaining_ticks"`
}

// TimerV1 is a pending respawn or growth entry.
type TimerV1 struct {
	TargetID       string  `json:"target_id"`
	Category       string  `json:"category"`
	Kind           string  `json:"kind"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	RemainingTicks int     `json:"remaining_ticks"`
}

type CountersV1 struct {
	NextItem   uint64 `json:"next_item"`
	NextPlayer uint64 `json:"next_player"`
}

// Path is the file name of the snapshot taken at tick.
func Path(dir string, tick uint64) string {
	return filepath.Join(dir, "snapshots", fmt.Sprintf("%d.snap.zst", tick))
}

func WriteSnapshot(path string, snap SnapshotV1) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

var ErrNoSnapshot = errors.New("snapshot: none found")

// Latest returns the path of the highest-tick snapshot under dir.
func Latest(dir string) (string, uint64, error) {
	entries, err := os.ReadDir(filepath.Join(dir, "snapshots"))
	if errors.Is(err, os.ErrNotExist) {
		return "", 0, ErrNoSnapshot
	}
	if err != nil {
		return "", 0, err
	}
	var ticks []uint64
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		ticks = append(ticks, n)
	}
	if len(ticks) == 0 {
		return "", 0, ErrNoSnapshot
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i] < ticks[j] })
	last := ticks[len(ticks)-1]
	return Path(dir, last), last, nil
}
