package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.SyncInterval != 2*time.Minute {
		t.Errorf("SyncInterval = %v, want 2m", cfg.SyncInterval)
	}
	if cfg.ProbeInterval != 15*time.Second {
		t.Errorf("ProbeInterval = %v, want 15s", cfg.ProbeInterval)
	}
	if cfg.CachePath == "" {
		t.Error("CachePath default missing")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `clinic_id: clinic-7
remote_dsn: "user:pw@tcp(db:3306)/clinic"
jwt_secret: sssh
sync_interval: 30s
dashboard_port: 9100
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.ClinicID != "clinic-7" {
		t.Errorf("ClinicID = %q", cfg.ClinicID)
	}
	if cfg.SyncInterval != 30*time.Second {
		t.Errorf("SyncInterval = %v, want 30s", cfg.SyncInterval)
	}
	if cfg.DashboardPort != 9100 {
		t.Errorf("DashboardPort = %d", cfg.DashboardPort)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}
}

func TestValidateRequiresClinicID(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted empty clinic_id")
	}
}

func TestValidateRequiresSecretWithRemote(t *testing.T) {
	cfg := &Config{ClinicID: "clinic-1", RemoteDSN: "dsn"}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted remote_dsn without jwt_secret")
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() accepted a missing explicit config file")
	}
}
