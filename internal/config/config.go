package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token        string  `yaml:"token"`
	Workers      int     `yaml:"workers"` // polling workers
	ModeratorIDs []int64 `yaml:"moderator_ids"`
	Timezone     string  `yaml:"timezone"`
	// RateLimit is the number of moderator commands allowed per RateWindow.
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
	Migrate  bool   `yaml:"migrate"`
}

// RedisConfig backs the durable mutation backlog and the delayed reminder jobs.
// An empty URL disables both.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

func (c RedisConfig) Enabled() bool { return strings.TrimSpace(c.URL) != "" }

type PlansConfig struct {
	TrialDays float64        `yaml:"trial_days"`
	Durations DurationVector `yaml:"durations"`
}

type SchedulerConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	ClaimBatch    int           `yaml:"claim_batch"`
	Workers       int           `yaml:"workers"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	Log       LogConfig       `yaml:"log"`
	Admin     AdminConfig     `yaml:"admin"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Plans     PlansConfig     `yaml:"plans"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// DurationVector holds the configured durations (days) of the 7/15/30 plans, by
// position. An element that was not configured is NaN.
type DurationVector [3]float64

func UnsetDurations() DurationVector {
	return DurationVector{math.NaN(), math.NaN(), math.NaN()}
}

// UnmarshalYAML accepts a sequence ([7, 15, 30]), a mapping ({"7": 8, "30": 31})
// or a scalar comma list ("7,,30").
func (v *DurationVector) UnmarshalYAML(node *yaml.Node) error {
	out := UnsetDurations()
	switch node.Kind {
	case yaml.SequenceNode:
		var items []*float64
		if err := node.Decode(&items); err != nil {
			return err
		}
		for i := 0; i < len(items) && i < len(out); i++ {
			if items[i] != nil {
				out[i] = *items[i]
			}
		}
	case yaml.MappingNode:
		var m map[string]float64
		if err := node.Decode(&m); err != nil {
			return err
		}
		applyDurationMap(&out, m)
	case yaml.ScalarNode:
		parsed, err := ParseDurationVector(node.Value)
		if err != nil {
			return err
		}
		out = parsed
	default:
		return fmt.Errorf("plans.durations: unsupported yaml node kind %d", node.Kind)
	}
	*v = out
	return nil
}

var durationKeys = [3]string{"7", "15", "30"}

func applyDurationMap(out *DurationVector, m map[string]float64) {
	for i, k := range durationKeys {
		if d, ok := m[k]; ok {
			out[i] = d
			continue
		}
		if d, ok := m[strconv.Itoa(i)]; ok {
			out[i] = d
		}
	}
}

// ParseDurationVector parses a JSON array, a JSON object keyed by plan ("7",
// "15", "30") or a comma separated list. Empty or unparsable elements stay unset.
func ParseDurationVector(s string) (DurationVector, error) {
	out := UnsetDurations()
	s = strings.TrimSpace(s)
	if s == "" {
		return out, nil
	}
	switch s[0] {
	case '[':
		var items []*float64
		if err := json.Unmarshal([]byte(s), &items); err != nil {
			return out, fmt.Errorf("parse durations array: %w", err)
		}
		for i := 0; i < len(items) && i < len(out); i++ {
			if items[i] != nil {
				out[i] = *items[i]
			}
		}
		return out, nil
	case '{':
		var m map[string]float64
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return out, fmt.Errorf("parse durations object: %w", err)
		}
		applyDurationMap(&out, m)
		return out, nil
	}
	for i, part := range strings.Split(s, ",") {
		if i >= len(out) {
			break
		}
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if d, err := strconv.ParseFloat(part, 64); err == nil {
			out[i] = d
		}
	}
	return out, nil
}

func Default() Config {
	var cfg Config
	cfg.Bot.Workers = 8
	cfg.Bot.Timezone = "Asia/Almaty"
	cfg.Bot.RateLimit = 30
	cfg.Bot.RateWindow = time.Minute
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Admin.Port = 8080
	cfg.Database.MaxConns = 10
	cfg.Redis.Prefix = "dispatch"
	cfg.Plans.TrialDays = math.NaN()
	cfg.Plans.Durations = UnsetDurations()
	cfg.Scheduler.PollInterval = time.Second
	cfg.Scheduler.ClaimBatch = 50
	cfg.Scheduler.Workers = 4
	cfg.Scheduler.RetryDelay = time.Minute
	cfg.Scheduler.FlushInterval = 30 * time.Second
	return cfg
}

// LoadConfig reads the YAML file at path (a missing file is not an error), then
// applies environment overrides and validates the result.
func LoadConfig(path string, dev bool) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	// defaults
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Scheduler.PollInterval <= 0 {
		cfg.Scheduler.PollInterval = time.Second
	}
	if cfg.Scheduler.ClaimBatch <= 0 {
		cfg.Scheduler.ClaimBatch = 50
	}
	if cfg.Scheduler.RetryDelay <= 0 {
		cfg.Scheduler.RetryDelay = time.Minute
	}
	if cfg.Scheduler.FlushInterval <= 0 {
		cfg.Scheduler.FlushInterval = 30 * time.Second
	}
	if strings.TrimSpace(cfg.Redis.Prefix) == "" {
		cfg.Redis.Prefix = "dispatch"
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if _, err := time.LoadLocation(cfg.Bot.Timezone); err != nil {
		return nil, fmt.Errorf("bot.timezone: %w", err)
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("REDIS_PREFIX"); v != "" {
		cfg.Redis.Prefix = v
	}
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		cfg.Bot.Token = v
	}
	if v := os.Getenv("ADMIN_JWT_SECRET"); v != "" {
		cfg.Admin.JWTSecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("EXECUTOR_PLAN_TRIAL_DAYS"); v != "" {
		if d, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			cfg.Plans.TrialDays = d
		}
	}
	if v := os.Getenv("EXECUTOR_PLAN_DURATIONS"); v != "" {
		parsed, err := ParseDurationVector(v)
		if err != nil {
			return fmt.Errorf("EXECUTOR_PLAN_DURATIONS: %w", err)
		}
		// Only the positions present in the env value override the file.
		for i, d := range parsed {
			if !math.IsNaN(d) {
				cfg.Plans.Durations[i] = d
			}
		}
	}
	return nil
}
