package tuning

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	Listen          string `yaml:"listen"`
	MaxParticipants int    `yaml:"max_participants"`

	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	ClientTimeout      time.Duration `yaml:"client_timeout"`
	JoinTimeout        time.Duration `yaml:"join_timeout"`
	RateLimitPerSec    float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst     int           `yaml:"rate_limit_burst"`
	RateViolationGrace time.Duration `yaml:"rate_violation_grace"`
	OutboxSize         int           `yaml:"outbox_size"`

	WorldSeed int64 `yaml:"world_seed"`
	Debug     bool  `yaml:"debug"`

	TickRateHz  int     `yaml:"tick_rate_hz"`
	ActionRange float64 `yaml:"action_range"`
	SpawnRadius float64 `yaml:"spawn_radius"`
	SpawnX      float64 `yaml:"spawn_x"`
	SpawnY      float64 `yaml:"spawn_y"`
	// SendRejections enables ACTION_REJECTED replies to the acting session.
	SendRejections bool `yaml:"send_rejections"`

	RespawnSeconds RespawnSeconds `yaml:"respawn_seconds"`
	GrowthSeconds  int            `yaml:"growth_seconds"`
	Hunger         Hunger         `yaml:"hunger"`

	WeatherEveryTicks int `yaml:"weather_every_ticks"`
	WeatherZones      int `yaml:"weather_zones"`

	DeferredWarnThreshold int `yaml:"deferred_warn_threshold"`

	SnapshotEveryTicks int    `yaml:"snapshot_every_ticks"`
	SnapshotKeep       int    `yaml:"snapshot_keep"`
	ArchiveEveryTicks  int    `yaml:"archive_every_ticks"`
	DataDir            string `yaml:"data_dir"`

	Log Log `yaml:"log"`
}

type RespawnSeconds struct {
	Vegetation int `yaml:"vegetation"`
	Minerals   int `yaml:"minerals"`
}

type Hunger struct {
	EveryTicks       int     `yaml:"every_ticks"`
	Rate             float64 `yaml:"rate"`
	StarvationDamage float64 `yaml:"starvation_damage"`
	RegenBelow       float64 `yaml:"regen_below"`
	RegenAmount      float64 `yaml:"regen_amount"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Defaults() Tuning {
	return Tuning{
		Listen:          ":25565",
		MaxParticipants: 8,

		HeartbeatInterval:  5 * time.Second,
		ClientTimeout:      30 * time.Second,
		JoinTimeout:        5 * time.Second,
		RateLimitPerSec:    100,
		RateLimitBurst:     100,
		RateViolationGrace: 2 * time.Second,
		OutboxSize:         512,

		WorldSeed: 42,

		TickRateHz:     20,
		ActionRange:    384,
		SpawnRadius:    512,
		SendRejections: true,

		RespawnSeconds: RespawnSeconds{Vegetation: 120, Minerals: 300},
		GrowthSeconds:  60,
		Hunger: Hunger{
			EveryTicks:       100,
			Rate:             1,
			StarvationDamage: 5,
			RegenBelow:       50,
			RegenAmount:      1,
		},

		WeatherEveryTicks: 600,
		WeatherZones:      3,

		DeferredWarnThreshold: 100,

		SnapshotEveryTicks: 3000,
		SnapshotKeep:       10,
		ArchiveEveryTicks:  72000,
		DataDir:            "data",

		Log: Log{Level: "info", Format: "text"},
	}
}

// Load reads path on top of Defaults. Missing keys keep their default value.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("%s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	var errs []error
	if t.MaxParticipants <= 0 {
		errs = append(errs, errors.New("max_participants must be > 0"))
	}
	if t.TickRateHz <= 0 || t.TickRateHz > 1000 {
		errs = append(errs, fmt.Errorf("tick_rate_hz out of range: %d", t.TickRateHz))
	}
	if t.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("heartbeat_interval must be > 0"))
	}
	if t.ClientTimeout <= t.HeartbeatInterval {
		errs = append(errs, errors.New("client_timeout must exceed heartbeat_interval"))
	}
	if t.RateLimitPerSec <= 0 || t.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("rate limit must be > 0"))
	}
	if t.ActionRange <= 0 {
		errs = append(errs, errors.New("action_range must be > 0"))
	}
	if t.SpawnRadius < 0 {
		errs = append(errs, errors.New("spawn_radius must be >= 0"))
	}
	if t.RespawnSeconds.Vegetation < 0 || t.RespawnSeconds.Minerals < 0 || t.GrowthSeconds < 0 {
		errs = append(errs, errors.New("respawn/growth seconds must be >= 0"))
	}
	if t.Hunger.EveryTicks <= 0 {
		errs = append(errs, errors.New("hunger.every_ticks must be > 0"))
	}
	if t.OutboxSize <= 0 {
		errs = append(errs, errors.New("outbox_size must be > 0"))
	}
	if t.SnapshotKeep < 0 || t.ArchiveEveryTicks < 0 {
		errs = append(errs, errors.New("snapshot_keep and archive_every_ticks must be >= 0"))
	}
	return errors.Join(errs...)
}

// SecondsToTicks converts a wall-clock delay into whole server frames.
func (t Tuning) SecondsToTicks(sec int) int {
	return sec * t.TickRateHz
}
