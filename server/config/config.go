package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"layeredge/server/balance"
)

// Config holds all server configuration.
type Config struct {
	HTTP struct {
		Addr      string `yaml:"addr"`
		StaticDir string `yaml:"static_dir"`
	} `yaml:"http"`
	Surge struct {
		Duration     time.Duration `yaml:"duration"`
		Target       int64         `yaml:"target"`
		TargetPolicy string        `yaml:"target_policy"` // "fixed" or "random"
		TargetMin    int64         `yaml:"target_min"`
		TargetMax    int64         `yaml:"target_max"`
		InitialDelay time.Duration `yaml:"initial_delay"`
		RetriggerMin time.Duration `yaml:"retrigger_min"`
		RetriggerMax time.Duration `yaml:"retrigger_max"`
	} `yaml:"surge"`
	Viral struct {
		Schedule string  `yaml:"schedule"` // cron spec
		MinHype  int64   `yaml:"min_hype"`
		MinScore float64 `yaml:"min_score"`
		Reward   int64   `yaml:"reward"`
	} `yaml:"viral"`
	Limits struct {
		MessagesPerSecond float64 `yaml:"messages_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"limits"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Admin struct {
		JWTSecret string            `yaml:"jwt_secret"`
		TokenTTL  time.Duration     `yaml:"token_ttl"`
		Users     map[string]string `yaml:"users"` // name -> bcrypt hash
	} `yaml:"admin"`
}

// Load reads .env (if present), then the YAML file at path (a missing file is
// allowed), then applies environment overrides and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("CONFIG: .env not loaded: %v", err)
	}

	cfg := newConfig()
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// newConfig presets the fields where zero is a meaningful setting, so the
// YAML decoder only overwrites them when the key is present.
func newConfig() *Config {
	cfg := &Config{}
	cfg.Viral.MinHype = balance.MinHypeToGoViral
	cfg.Viral.MinScore = balance.MinViralityScoreThreshold
	cfg.Viral.Reward = balance.ViralRewardAmount
	return cfg
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		c.HTTP.Addr = ":" + v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("STATIC_DIR"); v != "" {
		c.HTTP.StaticDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Admin.JWTSecret = v
	}
	if v := os.Getenv("SURGE_TARGET_POLICY"); v != "" {
		c.Surge.TargetPolicy = v
	}
	if v := os.Getenv("VIRAL_SCHEDULE"); v != "" {
		c.Viral.Schedule = v
	}
	if v := os.Getenv("MESSAGES_PER_SECOND"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("MESSAGES_PER_SECOND: %w", err)
		}
		c.Limits.MessagesPerSecond = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":3000"
	}
	if c.Surge.Duration == 0 {
		c.Surge.Duration = balance.SurgeDuration
	}
	if c.Surge.Target == 0 {
		c.Surge.Target = balance.SurgeTarget
	}
	if c.Surge.TargetPolicy == "" {
		c.Surge.TargetPolicy = "fixed"
	}
	if c.Surge.TargetMin == 0 {
		c.Surge.TargetMin = balance.SurgeTargetMin
	}
	if c.Surge.TargetMax == 0 {
		c.Surge.TargetMax = balance.SurgeTargetMax
	}
	if c.Surge.InitialDelay == 0 {
		c.Surge.InitialDelay = balance.SurgeInitialDelay
	}
	if c.Surge.RetriggerMin == 0 {
		c.Surge.RetriggerMin = balance.SurgeRetriggerMin
	}
	if c.Surge.RetriggerMax == 0 {
		c.Surge.RetriggerMax = balance.SurgeRetriggerMax
	}
	if c.Viral.Schedule == "" {
		c.Viral.Schedule = "@every " + balance.ViralSpreadInterval.String()
	}
	if c.Limits.MessagesPerSecond == 0 {
		c.Limits.MessagesPerSecond = balance.MessagesPerSecond
	}
	if c.Limits.Burst == 0 {
		c.Limits.Burst = balance.MessageBurst
	}
	if c.Admin.TokenTTL == 0 {
		c.Admin.TokenTTL = 24 * time.Hour
	}
}

// Validate checks that the loaded values are usable.
func (c *Config) Validate() error {
	switch c.Surge.TargetPolicy {
	case "fixed", "random":
	default:
		return fmt.Errorf("surge.target_policy must be fixed or random, got %q", c.Surge.TargetPolicy)
	}
	if c.Surge.Duration <= 0 {
		return fmt.Errorf("surge.duration must be positive")
	}
	if c.Surge.Target <= 0 {
		return fmt.Errorf("surge.target must be positive")
	}
	if c.Surge.TargetMin > c.Surge.TargetMax {
		return fmt.Errorf("surge.target_min must not exceed surge.target_max")
	}
	if c.Surge.RetriggerMin > c.Surge.RetriggerMax {
		return fmt.Errorf("surge.retrigger_min must not exceed surge.retrigger_max")
	}
	if c.Viral.Reward < 0 || c.Viral.MinHype < 0 || c.Viral.MinScore < 0 {
		return fmt.Errorf("viral thresholds and reward must not be negative")
	}
	if c.Limits.MessagesPerSecond < 0 || c.Limits.Burst < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	if len(c.Admin.Users) > 0 && c.Admin.JWTSecret != "" && len(c.Admin.JWTSecret) < 32 {
		return fmt.Errorf("admin.jwt_secret must be at least 32 bytes")
	}
	return nil
}
