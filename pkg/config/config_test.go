package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Expected Storage.Backend=sqlite, got %s", cfg.Storage.Backend)
	}
	if cfg.Embedding.Provider != "hash" {
		t.Errorf("Expected Embedding.Provider=hash, got %s", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Dimensions != 128 {
		t.Errorf("Expected Embedding.Dimensions=128, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Dedup.SkipThreshold != 0.95 {
		t.Errorf("Expected Dedup.SkipThreshold=0.95, got %f", cfg.Dedup.SkipThreshold)
	}
	if cfg.Dedup.UpdateThreshold != 0.85 {
		t.Errorf("Expected Dedup.UpdateThreshold=0.85, got %f", cfg.Dedup.UpdateThreshold)
	}
	if cfg.Consolidate.MinClusterSize != 3 {
		t.Errorf("Expected Consolidate.MinClusterSize=3, got %d", cfg.Consolidate.MinClusterSize)
	}
	if cfg.Graph.ChainDepthDefault != 2 {
		t.Errorf("Expected Graph.ChainDepthDefault=2, got %d", cfg.Graph.ChainDepthDefault)
	}
	if cfg.RestAPI.Port != 7420 {
		t.Errorf("Expected RestAPI.Port=7420, got %d", cfg.RestAPI.Port)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig should validate cleanly, got: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		expectErr bool
	}{
		{
			name:      "valid config",
			modify:    func(c *Config) {},
			expectErr: false,
		},
		{
			name: "empty storage path",
			modify: func(c *Config) {
				c.Storage.Path = ""
			},
			expectErr: true,
		},
		{
			name: "invalid storage backend",
			modify: func(c *Config) {
				c.Storage.Backend = "filesystem"
			},
			expectErr: true,
		},
		{
			name: "invalid port",
			modify: func(c *Config) {
				c.RestAPI.Enabled = true
				c.RestAPI.Port = 99999
			},
			expectErr: true,
		},
		{
			name: "ranking weights do not sum to one",
			modify: func(c *Config) {
				c.Ranking.Similarity = 0.9
			},
			expectErr: true,
		},
		{
			name: "skip threshold below update threshold",
			modify: func(c *Config) {
				c.Dedup.SkipThreshold = 0.5
			},
			expectErr: true,
		},
		{
			name: "invalid logging level",
			modify: func(c *Config) {
				c.Logging.Level = "invalid"
			},
			expectErr: true,
		},
		{
			name: "remote embedding without env var",
			modify: func(c *Config) {
				c.Embedding.Provider = "remote"
				c.Embedding.EnvVar = ""
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.expectErr && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	defer os.Chdir(oldWd) //nolint:errcheck
	_ = os.Chdir(tmpDir)

	oldHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", oldHome)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error with missing config, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected config, got nil")
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Expected default backend sqlite, got %s", cfg.Storage.Backend)
	}
}

func TestLoadConfig_LayeredMerge(t *testing.T) {
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	defer os.Chdir(oldWd) //nolint:errcheck
	_ = os.Chdir(tmpDir)

	oldHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpDir)
	defer os.Setenv("HOME", oldHome)

	globalDir := filepath.Join(tmpDir, ".agentmem")
	if err := os.MkdirAll(globalDir, 0755); err != nil {
		t.Fatal(err)
	}
	globalContent := `
storage:
  path: /global/memory.db
logging:
  level: debug
  format: console
`
	if err := os.WriteFile(filepath.Join(globalDir, "config.yaml"), []byte(globalContent), 0644); err != nil {
		t.Fatal(err)
	}

	projectDir := filepath.Join(tmpDir, ".agentmem")
	projectContent := `
logging:
  format: json
`
	if err := os.WriteFile(filepath.Join(projectDir, "config.yaml"), []byte(projectContent), 0644); err != nil {
		t.Fatal(err)
	}

	localContent := `
logging:
  level: warn
`
	if err := os.WriteFile(filepath.Join(tmpDir, "agentmem.local.yaml"), []byte(localContent), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// local overrides level, project (same path here) overrides format,
	// global's storage.path survives untouched.
	if cfg.Logging.Level != "warn" {
		t.Errorf("Expected level=warn from local override, got %s", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format=json, got %s", cfg.Logging.Format)
	}
	if cfg.Storage.Path != "/global/memory.db" {
		t.Errorf("Expected storage.path to survive from global, got %s", cfg.Storage.Path)
	}
}

func TestEnsureStorageDir(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := &Config{
		Storage: StorageConfig{
			Backend: "sqlite",
			Path:    filepath.Join(tmpDir, "subdir", "memory.db"),
		},
	}

	if err := cfg.EnsureStorageDir(); err != nil {
		t.Fatalf("EnsureStorageDir failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "subdir")); os.IsNotExist(err) {
		t.Error("Storage directory was not created")
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()
	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}

	homeDir, _ := os.UserHomeDir()
	expected := filepath.Join(homeDir, ".agentmem")
	if dir != expected {
		t.Errorf("Expected %s, got %s", expected, dir)
	}
}

func TestDatabasePath(t *testing.T) {
	path := DatabasePath()
	if path == "" {
		t.Error("DatabasePath returned empty string")
	}
	if filepath.Base(path) != "memory.db" {
		t.Errorf("Expected database file named memory.db, got %s", filepath.Base(path))
	}
}
