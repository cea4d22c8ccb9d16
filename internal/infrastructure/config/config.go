package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`

	Restore  RestoreConfig  `koanf:"restore"`
	StepUp   StepUpConfig   `koanf:"step_up"`
	Snapshot SnapshotConfig `koanf:"snapshot"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	RateLimit RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `koanf:"requests_per_second"`
	BurstSize         int `koanf:"burst_size"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL      string `koanf:"url"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type RestoreConfig struct {
	// RestorePointThreshold is the minimum number of changes an hourly
	// bucket needs before the detector suggests it as a rollback target.
	RestorePointThreshold int `koanf:"restore_point_threshold"`

	// SessionFetchLimit caps how many session events one restore call
	// pulls; very large sessions should be paginated by the caller.
	SessionFetchLimit int `koanf:"session_fetch_limit"`
}

type StepUpConfig struct {
	// Risk level assigned to each restore operation. Levels above "low"
	// require a satisfied step-up verification session.
	RecordRestoreRisk  string `koanf:"record_restore_risk"`
	SessionRestoreRisk string `koanf:"session_restore_risk"`

	TokenSecret string `koanf:"token_secret"`
	KeyPrefix   string `koanf:"key_prefix"`
}

type SnapshotConfig struct {
	// Schedule is a cron expression for the periodic compliance rollup.
	Schedule string `koanf:"schedule"`
	Enabled  bool   `koanf:"enabled"`
}

func Load(paths ...string) (*Config, error) {
	k := koanf.New(".")

	defaults := &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 50,
				BurstSize:         100,
			},
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			DB: 0,
		},
		Restore: RestoreConfig{
			RestorePointThreshold: 5,
			SessionFetchLimit:     1000,
		},
		StepUp: StepUpConfig{
			RecordRestoreRisk:  "medium",
			SessionRestoreRisk: "high",
			KeyPrefix:          "stepup",
		},
		Snapshot: SnapshotConfig{
			Schedule: "0 2 * * *",
			Enabled:  true,
		},
	}

	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Load from config file if one exists; the file is optional.
	configPath := "configs/config.yaml"
	if len(paths) > 0 && paths[0] != "" {
		configPath = paths[0]
	}
	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil && len(paths) > 0 && paths[0] != "" {
		return nil, fmt.Errorf("loading config file %s: %w", configPath, err)
	}

	// Override with environment variables
	if err := k.Load(env.Provider("COMPLYVAULT_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "COMPLYVAULT_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
