package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/newthinker/arena/internal/alert"
	"github.com/newthinker/arena/internal/competition"
	"github.com/newthinker/arena/internal/core"
	"github.com/newthinker/arena/internal/evolution"
	"github.com/newthinker/arena/internal/paper"
	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig              `mapstructure:"server"`
	Metrics      MetricsConfig             `mapstructure:"metrics"`
	Storage      StorageConfig             `mapstructure:"storage"`
	Feed         FeedConfig                `mapstructure:"feed"`
	Competition  CompetitionDefaults       `mapstructure:"competition"`
	Evolution    EvolutionConfig           `mapstructure:"evolution"`
	Notifiers    map[string]NotifierConfig `mapstructure:"notifiers"`
	Alerts       AlertsConfig              `mapstructure:"alerts"`
	Competitions []CompetitionSpec         `mapstructure:"competitions"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	APIKey      string `mapstructure:"api_key"`
	JobTTLHours int    `mapstructure:"job_ttl_hours"`
	MaxJobs     int    `mapstructure:"max_jobs"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
}

// PostgresConfig selects the result store. An empty DSN keeps results in memory.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type ArchiveConfig struct {
	Type string   `mapstructure:"type"` // "", "localfs" or "s3"
	Path string   `mapstructure:"path"` // For localfs
	S3   S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// FeedConfig selects and tunes the market data feed.
type FeedConfig struct {
	Type         string        `mapstructure:"type"` // "simulated" or "websocket"
	URL          string        `mapstructure:"url"`
	Seed         int64         `mapstructure:"seed"`
	Interval     time.Duration `mapstructure:"interval"`
	Volatility   float64       `mapstructure:"volatility"`
	Spread       float64       `mapstructure:"spread"`
	InitialPrice float64       `mapstructure:"initial_price"`
	Warmup       int           `mapstructure:"warmup"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Feed types.
const (
	FeedSimulated = "simulated"
	FeedWebsocket = "websocket"
)

// CompetitionDefaults apply to every competition unless overridden.
type CompetitionDefaults struct {
	TickInterval        time.Duration       `mapstructure:"tick_interval"`
	MinSignalStrength   float64             `mapstructure:"min_signal_strength"`
	MinSignalConfidence float64             `mapstructure:"min_signal_confidence"`
	StartingBalance     float64             `mapstructure:"starting_balance"`
	Weights             competition.Weights `mapstructure:"weights"`
	Paper               paper.Settings      `mapstructure:"paper"`
}

// AlertsConfig holds standings alert rules evaluated on every leaderboard update.
type AlertsConfig struct {
	Cooldown time.Duration `mapstructure:"cooldown"`
	Rules    []alert.Rule  `mapstructure:"rules"`
}

// EvolutionConfig configures evolution runs.
type EvolutionConfig struct {
	evolution.Config   `mapstructure:",squash"`
	Generations        int           `mapstructure:"generations"`
	EvaluationDuration time.Duration `mapstructure:"evaluation_duration"`
	BaseStrategy       string        `mapstructure:"base_strategy"`
	Markets            []string      `mapstructure:"markets"`
}

type NotifierConfig struct {
	Enabled  bool              `mapstructure:"enabled"`
	BotToken string            `mapstructure:"bot_token"`
	ChatID   string            `mapstructure:"chat_id"`
	URL      string            `mapstructure:"url"`
	Headers  map[string]string `mapstructure:"headers"`
	Events   []string          `mapstructure:"events"` // empty means the notifier's defaults
}

// CompetitionSpec describes a competition runnable from configuration.
type CompetitionSpec struct {
	Name                 string           `mapstructure:"name" json:"name"`
	Mode                 string           `mapstructure:"mode" json:"mode"`
	Duration             time.Duration    `mapstructure:"duration" json:"duration,omitempty"`
	EliminationThreshold float64          `mapstructure:"elimination_threshold" json:"elimination_threshold,omitempty"`
	Markets              []string         `mapstructure:"markets" json:"markets"`
	StartingBalance      float64          `mapstructure:"starting_balance" json:"starting_balance,omitempty"`
	Competitors          []CompetitorSpec `mapstructure:"competitors" json:"competitors"`
}

type CompetitorSpec struct {
	ID         string         `mapstructure:"id" json:"id"`
	Name       string         `mapstructure:"name" json:"name,omitempty"`
	Disabled   bool           `mapstructure:"disabled" json:"disabled,omitempty"`
	Paper      paper.Settings `mapstructure:"paper" json:"paper,omitempty"`
	Strategies []StrategySpec `mapstructure:"strategies" json:"strategies"`
}

type StrategySpec struct {
	Name   string         `mapstructure:"name" json:"name"`
	Params map[string]any `mapstructure:"params" json:"params,omitempty"`
}

// Load reads configuration from file on top of Defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			JobTTLHours: 1,
			MaxJobs:     100,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Feed: FeedConfig{
			Type:         FeedSimulated,
			Interval:     250 * time.Millisecond,
			Volatility:   1.5,
			Spread:       2,
			InitialPrice: 50,
			Warmup:       60,
		},
		Competition: CompetitionDefaults{
			TickInterval:        competition.DefaultTickInterval,
			MinSignalStrength:   competition.DefaultMinSignalStrength,
			MinSignalConfidence: competition.DefaultMinSignalConfidence,
			StartingBalance:     competition.DefaultStartingBalance,
			Weights:             competition.DefaultWeights(),
			Paper:               paper.DefaultSettings(),
		},
		Evolution: EvolutionConfig{
			Config:             evolution.DefaultConfig(),
			Generations:        5,
			EvaluationDuration: 30 * time.Second,
			BaseStrategy:       "momentum",
			Markets:            []string{"SIM-A", "SIM-B"},
		},
		Alerts: AlertsConfig{
			Cooldown: alert.DefaultCooldown,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	switch c.Feed.Type {
	case "", FeedSimulated:
	case FeedWebsocket:
		if c.Feed.URL == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("feed url required when type is websocket"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown feed type %q", c.Feed.Type))
	}

	switch c.Storage.Archive.Type {
	case "":
	case "localfs":
		if c.Storage.Archive.Path == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("archive path required when type is localfs"))
		}
	case "s3":
		if c.Storage.Archive.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("archive s3 bucket required when type is s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown archive type %q", c.Storage.Archive.Type))
	}

	// Competition defaults
	cd := c.Competition
	if cd.MinSignalStrength < 0 || cd.MinSignalStrength > 100 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("min_signal_strength must be between 0 and 100, got %f", cd.MinSignalStrength))
	}
	if cd.MinSignalConfidence < 0 || cd.MinSignalConfidence > 100 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("min_signal_confidence must be between 0 and 100, got %f", cd.MinSignalConfidence))
	}
	if cd.TickInterval < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("tick_interval cannot be negative, got %s", cd.TickInterval))
	}
	w := cd.Weights
	if w.Returns < 0 || w.Sharpe < 0 || w.WinRate < 0 || w.Consistency < 0 {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("weights cannot be negative"))
	}

	if err := c.Evolution.Config.Validate(); err != nil {
		return err
	}
	if c.Evolution.Generations < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("generations cannot be negative, got %d", c.Evolution.Generations))
	}

	for name, n := range c.Notifiers {
		if !n.Enabled {
			continue
		}
		switch name {
		case "telegram":
			if n.BotToken == "" || n.ChatID == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("telegram bot_token and chat_id required when enabled"))
			}
		case "webhook":
			if n.URL == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("webhook url required when enabled"))
			}
		}
	}

	if c.Alerts.Cooldown < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("alerts cooldown cannot be negative, got %s", c.Alerts.Cooldown))
	}
	for _, rule := range c.Alerts.Rules {
		if err := rule.Validate(); err != nil {
			return core.WrapError(core.ErrConfigInvalid, err)
		}
	}

	for i, spec := range c.Competitions {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("competitions[%d]: %w", i, err)
		}
	}

	return nil
}

// Validate checks a competition spec for errors that do not need a registry.
func (s CompetitionSpec) Validate() error {
	if s.Name == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("competition name required"))
	}
	if s.Mode != "" && !competition.Mode(s.Mode).IsValid() {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown mode %q", s.Mode))
	}
	if len(s.Markets) == 0 {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("competition %q has no markets", s.Name))
	}

	seen := make(map[string]bool, len(s.Competitors))
	for _, c := range s.Competitors {
		if c.ID == "" {
			return core.WrapError(core.ErrConfigMissing, fmt.Errorf("competitor id required"))
		}
		if seen[c.ID] {
			return core.WrapError(core.ErrCompetitorExists, fmt.Errorf("competitor %q", c.ID))
		}
		seen[c.ID] = true
		if len(c.Strategies) == 0 {
			return core.WrapError(core.ErrConfigMissing, fmt.Errorf("competitor %q has no strategies", c.ID))
		}
	}
	return nil
}
