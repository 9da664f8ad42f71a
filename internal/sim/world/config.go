package world

import (
	"time"

	"grovecraft.io/internal/sim/tuning"
	"grovecraft.io/internal/sim/worldgen"
)

type Config struct {
	ID         string
	Seed       int64
	TickRateHz int

	MaxParticipants   int
	HeartbeatInterval time.Duration
	ClientTimeout     time.Duration

	ActionRange    float64
	SpawnX, SpawnY float64
	SpawnRadius    float64
	SendRejections bool

	RespawnTicks map[worldgen.Category]int
	GrowthTicks  int

	HungerEveryTicks int
	HungerRate       float64
	StarvationDamage float64
	RegenBelow       float64
	RegenAmount      float64

	WeatherEveryTicks int
	WeatherZones      int

	SnapshotEveryTicks int
}

func ConfigFromTuning(t tuning.Tuning) Config {
	return Config{
		ID:                "grove",
		Seed:              t.WorldSeed,
		TickRateHz:        t.TickRateHz,
		MaxParticipants:   t.MaxParticipants,
		HeartbeatInterval: t.HeartbeatInterval,
		ClientTimeout:     t.ClientTimeout,
		ActionRange:       t.ActionRange,
		SpawnX:            t.SpawnX,
		SpawnY:            t.SpawnY,
		SpawnRadius:       t.SpawnRadius,
		SendRejections:    t.SendRejections,
		RespawnTicks: map[worldgen.Category]int{
			worldgen.CategoryVegetation: t.SecondsToTicks(t.RespawnSeconds.Vegetation),
			worldgen.CategoryMineral:    t.SecondsToTicks(t.RespawnSeconds.Minerals),
		},
		GrowthTicks:        t.SecondsToTicks(t.GrowthSeconds),
		HungerEveryTicks:   t.Hunger.EveryTicks,
		HungerRate:         t.Hunger.Rate,
		StarvationDamage:   t.Hunger.StarvationDamage,
		RegenBelow:         t.Hunger.RegenBelow,
		RegenAmount:        t.Hunger.RegenAmount,
		WeatherEveryTicks:  t.WeatherEveryTicks,
		WeatherZones:       t.WeatherZones,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
	}
}

// DefaultConfig is ConfigFromTuning(tuning.Defaults()).
func DefaultConfig() Config {
	return ConfigFromTuning(tuning.Defaults())
}

func (c Config) heartbeatTicks() uint64 {
	n := uint64(c.HeartbeatInterval * time.Duration(c.TickRateHz) / time.Second)
	if n == 0 {
		n = 1
	}
	return n
}
