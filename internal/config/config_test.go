package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mountwarden/mountwarden/internal/models"
	"github.com/mountwarden/mountwarden/internal/notifications"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Workstations = []WorkstationConfig{
		{Host: "adam", Mounts: []string{"/usr/local/chem.sw"}},
	}
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.DatabasePath = "" },
			wantErr: true,
		},
		{
			name:    "zero interval",
			mutate:  func(c *Config) { c.CheckIntervalSeconds = 0 },
			wantErr: true,
		},
		{
			name:    "no workstations",
			mutate:  func(c *Config) { c.Workstations = nil },
			wantErr: true,
		},
		{
			name: "workstation without host",
			mutate: func(c *Config) {
				c.Workstations = append(c.Workstations, WorkstationConfig{Mounts: []string{"/mnt/a"}})
			},
			wantErr: true,
		},
		{
			name: "workstation without mounts",
			mutate: func(c *Config) {
				c.Workstations = append(c.Workstations, WorkstationConfig{Host: "eve"})
			},
			wantErr: true,
		},
		{
			name: "software without mount point",
			mutate: func(c *Config) {
				c.Software = []SoftwareConfig{{Name: "gaussian"}}
			},
			wantErr: true,
		},
		{
			name: "quiet window out of range",
			mutate: func(c *Config) {
				c.QuietHours = models.QuietWindow{StartHour: 25, EndHour: 6}
			},
			wantErr: true,
		},
		{
			name: "smtp enabled without host",
			mutate: func(c *Config) {
				c.SMTP = notifications.SMTPConfig{Enabled: true, Port: 25, From: "a@b", To: []string{"c@d"}}
			},
			wantErr: true,
		},
		{
			name: "smtp enabled without recipients",
			mutate: func(c *Config) {
				c.SMTP = notifications.SMTPConfig{Enabled: true, Host: "mail", Port: 25, From: "a@b"}
			},
			wantErr: true,
		},
		{
			name: "smtp disabled needs nothing",
			mutate: func(c *Config) {
				c.SMTP = notifications.SMTPConfig{}
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_SaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	original := validConfig()
	original.DatabasePath = "/var/lib/mountwarden/mountwarden.db"
	original.CheckIntervalSeconds = 1800
	original.Software = []SoftwareConfig{
		{Name: "gaussian", MountPoint: "/usr/local/chem.sw"},
	}
	original.SMTP = notifications.SMTPConfig{
		Enabled: true,
		Host:    "mail.example.edu",
		Port:    25,
		From:    "monitor@example.edu",
		To:      []string{"admins@example.edu"},
	}

	if err := original.Save(configPath); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}
	if info.Mode().Perm()&0077 != 0 {
		t.Errorf("config file has loose permissions: %v", info.Mode())
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if loaded.DatabasePath != original.DatabasePath {
		t.Errorf("DatabasePath = %q, want %q", loaded.DatabasePath, original.DatabasePath)
	}
	if loaded.CheckIntervalSeconds != 1800 {
		t.Errorf("CheckIntervalSeconds = %d, want 1800", loaded.CheckIntervalSeconds)
	}
	if len(loaded.Workstations) != 1 || loaded.Workstations[0].Host != "adam" {
		t.Errorf("Workstations = %+v, want the saved inventory", loaded.Workstations)
	}
	if loaded.SMTP.Host != "mail.example.edu" {
		t.Errorf("SMTP.Host = %q, want mail.example.edu", loaded.SMTP.Host)
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("round-tripped config fails validation: %v", err)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("not: valid: yaml: {{"), 0600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("Load() expected error for invalid YAML")
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	minimal := []byte(`database_path: test.db
workstations:
  - host: adam
    mounts: ["/usr/local/chem.sw"]
`)
	if err := os.WriteFile(configPath, minimal, 0600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.CheckIntervalSeconds != 3600 {
		t.Errorf("CheckIntervalSeconds = %d, want default 3600", cfg.CheckIntervalSeconds)
	}
	if cfg.MaxConcurrentProbes != 4 {
		t.Errorf("MaxConcurrentProbes = %d, want default 4", cfg.MaxConcurrentProbes)
	}
	if cfg.QuietHours != models.DefaultQuietWindow() {
		t.Errorf("QuietHours = %+v, want default window", cfg.QuietHours)
	}
}

func TestConfig_Lookups(t *testing.T) {
	cfg := validConfig()
	cfg.Workstations = append(cfg.Workstations, WorkstationConfig{Host: "eve", Mounts: []string{"/mnt/data", "/usr/local/chem.sw"}})
	cfg.Software = []SoftwareConfig{
		{Name: "gaussian", MountPoint: "/usr/local/chem.sw"},
		{Name: "orca", MountPoint: "/usr/local/chem.sw"},
		{Name: "datasets", MountPoint: "/mnt/data"},
	}

	if mounts := cfg.ExpectedMounts("eve"); len(mounts) != 2 {
		t.Errorf("ExpectedMounts(eve) = %v, want 2 mounts", mounts)
	}
	if mounts := cfg.ExpectedMounts("unknown"); mounts != nil {
		t.Errorf("ExpectedMounts(unknown) = %v, want nil", mounts)
	}
	if sw := cfg.SoftwareFor("/usr/local/chem.sw"); len(sw) != 2 {
		t.Errorf("SoftwareFor(/usr/local/chem.sw) = %v, want 2 entries", sw)
	}
	if sw := cfg.SoftwareFor("/elsewhere"); sw != nil {
		t.Errorf("SoftwareFor(/elsewhere) = %v, want nil", sw)
	}
}

func TestProbeConfig_Timeouts(t *testing.T) {
	pc := ProbeConfig{PingSeconds: 2, MountsSeconds: 15}
	timeouts := pc.Timeouts()
	if timeouts.Ping != 2*time.Second {
		t.Errorf("Ping = %v, want 2s", timeouts.Ping)
	}
	if timeouts.Mounts != 15*time.Second {
		t.Errorf("Mounts = %v, want 15s", timeouts.Mounts)
	}
	if timeouts.Software != 0 {
		t.Errorf("Software = %v, want 0 (prober applies its default)", timeouts.Software)
	}
}
