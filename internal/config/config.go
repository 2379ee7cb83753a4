// Package config provides configuration types, loading and validation for
// HydraRPZ.
//
// Configuration is read from a YAML file, then overridden by HYDRARPZ_*
// environment variables, then validated and normalized.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxZones mirrors the number of policy zones the index can hold.
const MaxZones = 64

// EnvConfigPath names the environment variable holding the config path.
const EnvConfigPath = "HYDRARPZ_CONFIG"

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:            "INFO",
			StructuredFormat: "json",
		},
		API: APIConfig{
			Enabled:   true,
			Host:      "127.0.0.1",
			Port:      8080,
			RateLimit: RateLimitConfig{
				IPQPS:      50,
				IPBurst:    100,
				MaxEntries: 10000,
			},
		},
		Database: DatabaseConfig{
			Path: "hydrarpz.db",
		},
	}
}

// ResolveConfigPath picks the config path from the flag, falling back to
// HYDRARPZ_CONFIG.
func ResolveConfigPath(flagValue string) string {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p
	}
	return strings.TrimSpace(os.Getenv(EnvConfigPath))
}

// Load reads the YAML file at path (if any), applies environment overrides
// and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v, ok := os.LookupEnv("HYDRARPZ_API_ENABLED"); ok {
		cfg.API.Enabled = envBool(v, cfg.API.Enabled)
	}
	if v := os.Getenv("HYDRARPZ_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("HYDRARPZ_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HYDRARPZ_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}
	if v := os.Getenv("HYDRARPZ_API_KEY"); v != "" {
		cfg.API.APIKey = v
	}
	if v, ok := os.LookupEnv("HYDRARPZ_DB_PATH"); ok {
		cfg.Database.Path = v
	}
	if v := os.Getenv("HYDRARPZ_MAX_NODES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HYDRARPZ_MAX_NODES: %w", err)
		}
		cfg.RPZ.MaxNodes = n
	}
	if v, ok := os.LookupEnv("HYDRARPZ_QNAME_WAIT_RECURSE"); ok {
		cfg.RPZ.QNameWaitRecurse = envBool(v, cfg.RPZ.QNameWaitRecurse)
	}
	if v := os.Getenv("HYDRARPZ_RELOAD_INTERVAL"); v != "" {
		d, err := ParseDuration(v)
		if err != nil {
			return fmt.Errorf("HYDRARPZ_RELOAD_INTERVAL: %w", err)
		}
		cfg.RPZ.ReloadInterval = d
	}
	return nil
}

func envBool(raw string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

// Validate validates and normalizes the configuration.
func (cfg *Config) Validate() error {
	// Normalize logging
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	// Normalize management API
	if cfg.API.Host == "" {
		cfg.API.Host = "127.0.0.1"
	}
	if cfg.API.Enabled {
		if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
			return errors.New("api.port must be 1..65535")
		}
	}

	rl := cfg.API.RateLimit
	if rl.GlobalQPS < 0 || rl.PrefixQPS < 0 || rl.IPQPS < 0 ||
		rl.GlobalBurst < 0 || rl.PrefixBurst < 0 || rl.IPBurst < 0 {
		return errors.New("api.rate_limit values must not be negative")
	}
	if rl.MaxEntries <= 0 {
		cfg.API.RateLimit.MaxEntries = 10000
	}

	if cfg.RPZ.MaxNodes < 0 {
		return errors.New("rpz.max_nodes must not be negative")
	}

	if len(cfg.Zones) > MaxZones {
		return fmt.Errorf("at most %d zones may be configured, got %d", MaxZones, len(cfg.Zones))
	}
	seen := make(map[string]bool, len(cfg.Zones))
	for i := range cfg.Zones {
		z := &cfg.Zones[i]
		z.Origin = strings.TrimSpace(z.Origin)
		if z.Origin == "" {
			return fmt.Errorf("zones[%d].origin is required", i)
		}
		if z.Name == "" {
			z.Name = strings.TrimSuffix(strings.ToLower(z.Origin), ".")
		}
		if seen[z.Name] {
			return fmt.Errorf("zones[%d]: duplicate zone name %q", i, z.Name)
		}
		seen[z.Name] = true

		z.Format = strings.ToLower(strings.TrimSpace(z.Format))
		switch z.Format {
		case "":
			z.Format = FormatZone
		case FormatZone, FormatList:
		default:
			return fmt.Errorf("zones[%d].format must be %q or %q", i, FormatZone, FormatList)
		}
		if z.File == "" && cfg.Database.Path == "" {
			return fmt.Errorf("zones[%d] (%s) has no file and no database is configured", i, z.Name)
		}
	}
	return nil
}
