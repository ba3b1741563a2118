package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/proctorai/proctor/internal/proctor"
	"github.com/proctorai/proctor/internal/session"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Engine    EngineConfig    `yaml:"engine"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Privacy   PrivacyConfig   `yaml:"privacy"`
	Mock      MockConfig      `yaml:"mock"`
}

type ServerConfig struct {
	Port           int      `yaml:"port" env:"PORT"`
	Host           string   `yaml:"host" env:"HOST"`
	AuthToken      string   `yaml:"auth_token" env:"AUTH_TOKEN"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	MaxConnections int      `yaml:"max_connections" env:"MAX_CONNECTIONS"`
}

// EngineConfig tunes the fusion engine's timers and thresholds.
type EngineConfig struct {
	LookAwayAfter    time.Duration `yaml:"look_away_after" env:"LOOK_AWAY_AFTER"`
	WarningThreshold int           `yaml:"warning_threshold" env:"WARNING_THRESHOLD"`
	EventLogCapacity int           `yaml:"event_log_capacity" env:"EVENT_LOG_CAPACITY"`
	AudioThreshold   float64       `yaml:"audio_threshold" env:"AUDIO_THRESHOLD"`
	AudioSustain     time.Duration `yaml:"audio_sustain" env:"AUDIO_SUSTAIN"`
}

// ScoringConfig holds the suspicion score deltas per trigger.
type ScoringConfig struct {
	MultipleFaces     int `yaml:"multiple_faces"`
	LookAway          int `yaml:"look_away"`
	SustainedLookAway int `yaml:"sustained_look_away"`
	GazeAway          int `yaml:"gaze_away"`
	Warning           int `yaml:"warning"`
}

type BroadcastConfig struct {
	Throttle         time.Duration `yaml:"throttle" env:"BROADCAST_THROTTLE"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval" env:"SNAPSHOT_INTERVAL"`
}

type PrivacyConfig struct {
	MaskSessionIDs  bool `yaml:"mask_session_ids" env:"MASK_SESSION_IDS"`
	HideDiagnostics bool `yaml:"hide_diagnostics" env:"HIDE_DIAGNOSTICS"`
}

// MockConfig drives the simulated sensor adapter used by serve --mock.
type MockConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	Seed         int64         `yaml:"seed"`
}

// envPrefix scopes environment overrides, e.g. PROCTOR_PORT.
const envPrefix = "PROCTOR_"

func defaultConfig() *Config {
	sc := proctor.DefaultScores()
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			Host:           "127.0.0.1",
			MaxConnections: 100,
		},
		Engine: EngineConfig{
			LookAwayAfter:    proctor.DefaultLookAwayAfter,
			WarningThreshold: proctor.DefaultWarningThreshold,
			EventLogCapacity: proctor.DefaultLogCapacity,
			AudioThreshold:   proctor.DefaultAudioThreshold,
			AudioSustain:     proctor.DefaultAudioSustain,
		},
		Scoring: ScoringConfig{
			MultipleFaces:     sc.MultipleFaces,
			LookAway:          sc.LookAway,
			SustainedLookAway: sc.SustainedLookAway,
			GazeAway:          sc.GazeAway,
			Warning:           sc.Warning,
		},
		Broadcast: BroadcastConfig{
			Throttle:         100 * time.Millisecond,
			SnapshotInterval: 5 * time.Second,
		},
		Mock: MockConfig{
			TickInterval: 500 * time.Millisecond,
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load reads a YAML config file over the defaults, then applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return finish(cfg)
}

// LoadOrDefault is Load, except a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return finish(defaultConfig())
	}
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return finish(defaultConfig())
	}
	return cfg, err
}

func finish(cfg *Config) (*Config, error) {
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from a .env file into the process environment
// without overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays PROCTOR_* environment variables onto the config.
func (c *Config) ApplyEnv() error {
	opts := env.Options{Prefix: envPrefix}
	if err := env.ParseWithOptions(&c.Server, opts); err != nil {
		return fmt.Errorf("server env: %w", err)
	}
	if err := env.ParseWithOptions(&c.Engine, opts); err != nil {
		return fmt.Errorf("engine env: %w", err)
	}
	if err := env.ParseWithOptions(&c.Broadcast, opts); err != nil {
		return fmt.Errorf("broadcast env: %w", err)
	}
	if err := env.ParseWithOptions(&c.Privacy, opts); err != nil {
		return fmt.Errorf("privacy env: %w", err)
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.MaxConnections < 0 {
		errs = append(errs, fmt.Errorf("server.max_connections must not be negative"))
	}
	if c.Engine.LookAwayAfter <= 0 {
		errs = append(errs, fmt.Errorf("engine.look_away_after must be positive"))
	}
	if c.Engine.AudioSustain <= 0 {
		errs = append(errs, fmt.Errorf("engine.audio_sustain must be positive"))
	}
	if c.Engine.WarningThreshold < 1 {
		errs = append(errs, fmt.Errorf("engine.warning_threshold must be at least 1"))
	}
	if c.Engine.EventLogCapacity < 1 {
		errs = append(errs, fmt.Errorf("engine.event_log_capacity must be at least 1"))
	}
	if c.Engine.AudioThreshold <= 0 || c.Engine.AudioThreshold > 100 {
		errs = append(errs, fmt.Errorf("engine.audio_threshold %.1f outside (0,100]", c.Engine.AudioThreshold))
	}
	for name, v := range map[string]int{
		"multiple_faces":      c.Scoring.MultipleFaces,
		"look_away":           c.Scoring.LookAway,
		"sustained_look_away": c.Scoring.SustainedLookAway,
		"gaze_away":           c.Scoring.GazeAway,
		"warning":             c.Scoring.Warning,
	} {
		if v < 0 || v > proctor.MaxScore {
			errs = append(errs, fmt.Errorf("scoring.%s %d outside [0,%d]", name, v, proctor.MaxScore))
		}
	}
	if c.Broadcast.Throttle <= 0 {
		errs = append(errs, fmt.Errorf("broadcast.throttle must be positive"))
	}
	if c.Broadcast.SnapshotInterval <= 0 {
		errs = append(errs, fmt.Errorf("broadcast.snapshot_interval must be positive"))
	}
	if c.Mock.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("mock.tick_interval must be positive"))
	}
	return errors.Join(errs...)
}

// Policy builds the scoring policy described by the config.
func (c *Config) Policy() proctor.Policy {
	return proctor.NewPolicy(proctor.Scores{
		MultipleFaces:     c.Scoring.MultipleFaces,
		LookAway:          c.Scoring.LookAway,
		SustainedLookAway: c.Scoring.SustainedLookAway,
		GazeAway:          c.Scoring.GazeAway,
		Warning:           c.Scoring.Warning,
	}, c.Engine.WarningThreshold)
}

// SessionOptions returns the engine options every session is created with.
func (c *Config) SessionOptions() proctor.Options {
	return proctor.Options{
		Policy:         c.Policy(),
		LookAwayAfter:  c.Engine.LookAwayAfter,
		AudioThreshold: c.Engine.AudioThreshold,
		AudioSustain:   c.Engine.AudioSustain,
		LogCapacity:    c.Engine.EventLogCapacity,
	}
}

// NewViewFilter builds the broadcast filter from the privacy settings.
func (pc PrivacyConfig) NewViewFilter() *session.ViewFilter {
	return &session.ViewFilter{
		MaskSessionIDs:  pc.MaskSessionIDs,
		HideDiagnostics: pc.HideDiagnostics,
	}
}
