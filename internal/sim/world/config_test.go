package world

import (
	"testing"
	"time"

	"grovecraft.io/internal/sim/store"
	"grovecraft.io/internal/sim/tuning"
	"grovecraft.io/internal/sim/worldgen"
)

func TestConfigFromTuning(t *testing.T) {
	cfg := ConfigFromTuning(tuning.Defaults())
	if cfg.RespawnTicks[worldgen.CategoryVegetation] != 2400 {
		t.Fatalf("vegetation respawn ticks: %d", cfg.RespawnTicks[worldgen.CategoryVegetation])
	}
	if cfg.RespawnTicks[worldgen.CategoryMineral] != 6000 {
		t.Fatalf("mineral respawn ticks: %d", cfg.RespawnTicks[worldgen.CategoryMineral])
	}
	if cfg.GrowthTicks != 1200 {
		t.Fatalf("growth ticks: %d", cfg.GrowthTicks)
	}
	if got := cfg.heartbeatTicks(); got != 100 {
		t.Fatalf("heartbeat ticks: %d", got)
	}
	cfg.HeartbeatInterval = time.Millisecond
	if got := cfg.heartbeatTicks(); got != 1 {
		t.Fatalf("heartbeat ticks floor: %d", got)
	}
}

func TestWorld_InRangeInclusive(t *testing.T) {
	w := New(DefaultConfig(), Options{})
	cases := []struct {
		x, y float64
		want bool
	}{
		{384, 0, true},
		{0, -384, true},
		{384.0001, 0, false},
		{300, 300, false},
	}
	for _, tc := range cases {
		if got := w.inRange(store.Player{}, tc.x, tc.y); got != tc.want {
			t.Fatalf("inRange(%v,%v)=%v", tc.x, tc.y, got)
		}
	}
}
