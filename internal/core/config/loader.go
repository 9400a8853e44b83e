package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/handoff/internal/core/domain"
)

// Load reads the YAML config file at path, expands ${ENV} references, and
// fills in defaults for anything left unset.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg AppConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadOrDefault behaves like Load but returns the built-in defaults when
// path is empty or the file does not exist. Used by the CLI so the service
// can come up in memory-only mode without a config file.
func LoadOrDefault(path string) (*AppConfig, error) {
	if path == "" {
		cfg := &AppConfig{}
		applyDefaults(cfg)
		return cfg, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		cfg := &AppConfig{}
		applyDefaults(cfg)
		return cfg, nil
	}
	return Load(path)
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeoutSeconds == 0 {
		cfg.Server.ShutdownTimeoutSeconds = 15
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Database.MigrationsDir == "" {
		cfg.Database.MigrationsDir = "migrations"
	}
	if cfg.Resilience.BreakerThreshold == 0 {
		cfg.Resilience.BreakerThreshold = 5
	}
	if cfg.Resilience.BreakerTimeoutSeconds == 0 {
		cfg.Resilience.BreakerTimeoutSeconds = 60
	}
	if cfg.Resilience.AlertCooldownMinutes == 0 {
		cfg.Resilience.AlertCooldownMinutes = 5
	}
	if len(cfg.Retention.Policies) == 0 {
		cfg.Retention.Policies = []PolicyConfig{{
			Name:                   domain.DefaultPolicyName,
			ActiveSessionTTLHours:  24,
			ArchivedSessionTTLDays: 30,
			LogRetentionDays:       14,
			MetricsRetentionDays:   7,
			DormantThresholdHours:  12,
		}}
	}
}
