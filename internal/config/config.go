// Package config loads and validates the MountWarden YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mountwarden/mountwarden/internal/models"
	"github.com/mountwarden/mountwarden/internal/notifications"
	"github.com/mountwarden/mountwarden/internal/probe"
)

// DefaultConfigDir returns the default config directory (~/.mountwarden).
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".mountwarden"), nil
}

// DefaultConfigPath returns the default config file path
// (~/.mountwarden/config.yaml).
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// WorkstationConfig names one monitored host and the mounts it must carry.
type WorkstationConfig struct {
	Host   string   `yaml:"host"`
	Mounts []string `yaml:"mounts"`
}

// SoftwareConfig names one critical software path verified per cycle. The
// check only runs on workstations whose mount inventory includes MountPoint.
type SoftwareConfig struct {
	Name       string `yaml:"name"`
	MountPoint string `yaml:"mount_point"`
}

// ProbeConfig carries per-command probe deadlines in whole seconds. Zero
// values fall back to the probe defaults.
type ProbeConfig struct {
	PingSeconds     int `yaml:"ping_seconds,omitempty"`
	MountsSeconds   int `yaml:"mounts_seconds,omitempty"`
	SoftwareSeconds int `yaml:"software_seconds,omitempty"`
	RemountSeconds  int `yaml:"remount_seconds,omitempty"`
	UsersSeconds    int `yaml:"users_seconds,omitempty"`
}

// Timeouts converts the configured seconds to probe deadlines.
func (p ProbeConfig) Timeouts() probe.Timeouts {
	return probe.Timeouts{
		Ping:     time.Duration(p.PingSeconds) * time.Second,
		Mounts:   time.Duration(p.MountsSeconds) * time.Second,
		Software: time.Duration(p.SoftwareSeconds) * time.Second,
		Remount:  time.Duration(p.RemountSeconds) * time.Second,
		Users:    time.Duration(p.UsersSeconds) * time.Second,
	}
}

// APIConfig carries the embedded HTTP API settings.
type APIConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Listen         string `yaml:"listen,omitempty"`
	RatePerMinute  int    `yaml:"rate_per_minute,omitempty"`
	MetricsEnabled bool   `yaml:"metrics_enabled,omitempty"`
}

// Config is the full daemon configuration.
type Config struct {
	DatabasePath         string                   `yaml:"database_path"`
	LogLevel             string                   `yaml:"log_level,omitempty"`
	CheckIntervalSeconds int                      `yaml:"check_interval_seconds"`
	MaxConcurrentProbes  int                      `yaml:"max_concurrent_probes,omitempty"`
	AutoRemount          bool                     `yaml:"auto_remount"`
	TrackUsers           bool                     `yaml:"track_users"`
	Probe                ProbeConfig              `yaml:"probe,omitempty"`
	Workstations         []WorkstationConfig      `yaml:"workstations"`
	Software             []SoftwareConfig         `yaml:"software,omitempty"`
	QuietHours           models.QuietWindow       `yaml:"quiet_hours"`
	SMTP                 notifications.SMTPConfig `yaml:"smtp,omitempty"`
	API                  APIConfig                `yaml:"api,omitempty"`
}

// DefaultConfig returns a runnable configuration with an empty workstation
// inventory.
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:         "mountwarden.db",
		LogLevel:             "info",
		CheckIntervalSeconds: 3600,
		MaxConcurrentProbes:  4,
		AutoRemount:          true,
		TrackUsers:           true,
		QuietHours:           models.DefaultQuietWindow(),
		API: APIConfig{
			Listen:        ":8787",
			RatePerMinute: 120,
		},
	}
}

// Interval returns the time between monitoring cycles.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

// ExpectedMounts returns the mount inventory for a host, or nil when the host
// is not configured.
func (c *Config) ExpectedMounts(host string) []string {
	for _, ws := range c.Workstations {
		if ws.Host == host {
			return ws.Mounts
		}
	}
	return nil
}

// SoftwareFor returns the critical software entries expected under the given
// mount point.
func (c *Config) SoftwareFor(mountPoint string) []SoftwareConfig {
	var out []SoftwareConfig
	for _, sw := range c.Software {
		if sw.MountPoint == mountPoint {
			out = append(out, sw)
		}
	}
	return out
}

// Validate checks that the configuration can drive a monitoring daemon.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return errors.New("database_path is required")
	}
	if c.CheckIntervalSeconds <= 0 {
		return errors.New("check_interval_seconds must be positive")
	}
	if c.MaxConcurrentProbes < 0 {
		return errors.New("max_concurrent_probes cannot be negative")
	}
	if len(c.Workstations) == 0 {
		return errors.New("at least one workstation is required")
	}
	for i, ws := range c.Workstations {
		if ws.Host == "" {
			return fmt.Errorf("workstation %d: host is required", i)
		}
		if len(ws.Mounts) == 0 {
			return fmt.Errorf("workstation %s: at least one mount is required", ws.Host)
		}
	}
	for i, sw := range c.Software {
		if sw.Name == "" {
			return fmt.Errorf("software %d: name is required", i)
		}
		if sw.MountPoint == "" {
			return fmt.Errorf("software %s: mount_point is required", sw.Name)
		}
	}
	if err := c.QuietHours.Validate(); err != nil {
		return err
	}
	return c.SMTP.Validate()
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// LoadDefault loads the configuration from the default path.
func LoadDefault() (*Config, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// Save writes the configuration to the given path, creating directories as
// needed. The file is written user-only because SMTP credentials may be
// present.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}
