package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUTH_DISABLED", "true")
	t.Setenv("ENVIRONMENT", "test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StoreDriver != "badger" {
		t.Errorf("StoreDriver = %q, want badger", cfg.StoreDriver)
	}
	if cfg.FeedDriver != "memory" {
		t.Errorf("FeedDriver = %q, want memory", cfg.FeedDriver)
	}
	if cfg.TablePrefix != "test_" {
		t.Errorf("TablePrefix = %q, want test_", cfg.TablePrefix)
	}
	if cfg.FeedConsumer == "" {
		t.Error("FeedConsumer should default to the host name")
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("port: \"9000\"\nstore_driver: postgres\ndatabase_url: postgres://file\nauth_disabled: true\nrepair_workers: 4\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DATABASE_URL", "postgres://env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "9000" {
		t.Errorf("Port = %q, want 9000", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://env" {
		t.Errorf("DatabaseURL = %q, want env override", cfg.DatabaseURL)
	}
	if cfg.RepairWorkers != 4 {
		t.Errorf("RepairWorkers = %d, want 4", cfg.RepairWorkers)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without url", map[string]string{"AUTH_DISABLED": "true", "STORE_DRIVER": "postgres"}},
		{"redis without url", map[string]string{"AUTH_DISABLED": "true", "FEED_DRIVER": "redis"}},
		{"unknown store", map[string]string{"AUTH_DISABLED": "true", "STORE_DRIVER": "dynamo"}},
		{"auth without jwks", map[string]string{"AUTH_DISABLED": "false"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("Load() error = nil, want validation error")
			}
		})
	}
}

func TestSetupLogFile_KeepsNewest(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"dashctl-2024-01-01T00-00-00.log", "dashctl-2024-01-02T00-00-00.log", "server-2024-01-01T00-00-00.log"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}

	f, err := SetupLogFile(dir, "dashctl", 2)
	if err != nil {
		t.Fatalf("SetupLogFile() error = %v", err)
	}
	f.Close()

	matches, _ := filepath.Glob(filepath.Join(dir, "dashctl-*.log"))
	if len(matches) != 2 {
		t.Errorf("dashctl logs = %d, want 2", len(matches))
	}
	if _, err := os.Stat(filepath.Join(dir, "server-2024-01-01T00-00-00.log")); err != nil {
		t.Errorf("other binary's log was removed: %v", err)
	}
}
