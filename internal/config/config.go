package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Advisory  AdvisoryConfig  `yaml:"advisory"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// AdvisoryConfig points at the optional quality and policy services. An
// empty URL disables that advisor; the engine then runs on its local
// ladder alone.
type AdvisoryConfig struct {
	Enabled    bool   `yaml:"enabled"`
	QualityURL string `yaml:"quality_url"`
	PolicyURL  string `yaml:"policy_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Timeout returns the advisory request timeout, defaulting to 5s.
func (a AdvisoryConfig) Timeout() time.Duration {
	if a.TimeoutSec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(a.TimeoutSec) * time.Second
}

// Load reads config from a YAML file, then applies environment variable overrides.
// Env vars use the prefix FLEXION_ and underscore-separated paths:
//
//	FLEXION_SERVER_HOST, FLEXION_SERVER_PORT,
//	FLEXION_DB_HOST, FLEXION_DB_PORT, FLEXION_DB_NAME,
//	FLEXION_DB_USER, FLEXION_DB_PASSWORD, FLEXION_DB_SSLMODE,
//	FLEXION_AUTH_API_KEY,
//	FLEXION_ADVISORY_ENABLED, FLEXION_ADVISORY_QUALITY_URL,
//	FLEXION_ADVISORY_POLICY_URL, FLEXION_ADVISORY_TIMEOUT_SEC,
//	FLEXION_TS_ENABLED, FLEXION_TS_HOSTNAME, FLEXION_TS_STATE_DIR
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FLEXION_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("FLEXION_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FLEXION_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FLEXION_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FLEXION_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FLEXION_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FLEXION_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FLEXION_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("FLEXION_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("FLEXION_ADVISORY_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Advisory.Enabled = enabled
		}
	}
	if v := os.Getenv("FLEXION_ADVISORY_QUALITY_URL"); v != "" {
		cfg.Advisory.QualityURL = v
	}
	if v := os.Getenv("FLEXION_ADVISORY_POLICY_URL"); v != "" {
		cfg.Advisory.PolicyURL = v
	}
	if v := os.Getenv("FLEXION_ADVISORY_TIMEOUT_SEC"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil {
			cfg.Advisory.TimeoutSec = sec
		}
	}
	if v := os.Getenv("FLEXION_TS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Tailscale.Enabled = enabled
		}
	}
	if v := os.Getenv("FLEXION_TS_HOSTNAME"); v != "" {
		cfg.Tailscale.Hostname = v
	}
	if v := os.Getenv("FLEXION_TS_STATE_DIR"); v != "" {
		cfg.Tailscale.StateDir = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if c.Advisory.Enabled && c.Advisory.QualityURL == "" && c.Advisory.PolicyURL == "" {
		return fmt.Errorf("advisory.quality_url or advisory.policy_url is required when advisory is enabled")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	return nil
}
