package tuning

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults_Valid(t *testing.T) {
	d := Defaults()
	if err := d.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if d.ActionRange != 384 {
		t.Fatalf("action_range: got %v want 384", d.ActionRange)
	}
	if got := d.SecondsToTicks(d.RespawnSeconds.Vegetation); got != 2400 {
		t.Fatalf("vegetation ticks: got %d want 2400", got)
	}
}

func TestLoad_RepoConfig(t *testing.T) {
	tu, err := Load(filepath.Join("..", "..", "..", "configs", "server.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.Listen != ":25565" || tu.WorldSeed != 42 {
		t.Fatalf("unexpected config: %+v", tu)
	}
	if tu.RateViolationGrace != 2*time.Second || tu.HeartbeatInterval != 5*time.Second {
		t.Fatalf("durations not parsed: %v %v", tu.RateViolationGrace, tu.HeartbeatInterval)
	}
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "server.yaml")
	if err := os.WriteFile(p, []byte("world_seed: 7\naction_range: 128\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.WorldSeed != 7 || tu.ActionRange != 128 {
		t.Fatalf("overrides lost: %+v", tu)
	}
	if tu.TickRateHz != 20 || tu.MaxParticipants != 8 {
		t.Fatalf("defaults lost: %+v", tu)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []string{
		"max_participants: 0\n",
		"tick_rate_hz: -1\n",
		"client_timeout: 1s\nheartbeat_interval: 5s\n",
		"action_range: 0\n",
		"rate_limit_per_sec: [1]\n",
	}
	for _, c := range cases {
		p := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(p, []byte(c), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := Load(p); err == nil {
			t.Fatalf("expected error for %q", c)
		}
	}
}
