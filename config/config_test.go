package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Addr != ":8000" {
		t.Errorf("expected default addr :8000, got %s", cfg.Server.Addr)
	}
	if cfg.Model.Provider != "anthropic" {
		t.Errorf("expected default provider anthropic, got %s", cfg.Model.Provider)
	}
	if cfg.Model.Temperature != 0.2 {
		t.Errorf("expected default temperature 0.2, got %f", cfg.Model.Temperature)
	}
	if cfg.Repair.MaxAttempts != 2 {
		t.Errorf("expected 2 repair attempts, got %d", cfg.Repair.MaxAttempts)
	}
	if cfg.Retention.UploadDays != 7 {
		t.Errorf("expected 7 upload retention days, got %d", cfg.Retention.UploadDays)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing addr",
			modify:  func(c *Config) { c.Server.Addr = "" },
			wantErr: true,
		},
		{
			name:    "missing model name",
			modify:  func(c *Config) { c.Model.Name = "" },
			wantErr: true,
		},
		{
			name:    "missing endpoint",
			modify:  func(c *Config) { c.Model.Endpoint = "" },
			wantErr: true,
		},
		{
			name:    "temperature too low",
			modify:  func(c *Config) { c.Model.Temperature = -0.1 },
			wantErr: true,
		},
		{
			name:    "temperature too high",
			modify:  func(c *Config) { c.Model.Temperature = 1.1 },
			wantErr: true,
		},
		{
			name:    "negative repair attempts",
			modify:  func(c *Config) { c.Repair.MaxAttempts = -1 },
			wantErr: true,
		},
		{
			name:    "negative retention",
			modify:  func(c *Config) { c.Retention.UploadDays = -1 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plotline.yaml")

	content := `
server:
  addr: ":9000"
model:
  provider: openai
  name: gpt-4o
repair:
  max_attempts: 4
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Server.Addr != ":9000" {
		t.Errorf("addr = %s", cfg.Server.Addr)
	}
	if cfg.Model.Provider != "openai" {
		t.Errorf("provider = %s", cfg.Model.Provider)
	}
	if cfg.Model.Timeout != 2*time.Minute {
		t.Errorf("timeout = %v, want default", cfg.Model.Timeout)
	}
	if cfg.Repair.MaxAttempts != 4 {
		t.Errorf("repair attempts = %d", cfg.Repair.MaxAttempts)
	}
	// Unset fields keep their defaults.
	if cfg.Server.UploadDir != "uploads" {
		t.Errorf("upload dir = %s", cfg.Server.UploadDir)
	}
}

func TestMerge(t *testing.T) {
	base := DefaultConfig()
	base.Merge(&Config{
		Server: ServerConfig{Addr: ":9999"},
		Model:  ModelConfig{Name: "other-model"},
	})

	if base.Server.Addr != ":9999" {
		t.Errorf("addr = %s", base.Server.Addr)
	}
	if base.Model.Name != "other-model" {
		t.Errorf("model = %s", base.Model.Name)
	}
	if base.Model.Provider != "anthropic" {
		t.Errorf("provider overwritten: %s", base.Model.Provider)
	}

	base.Merge(nil) // no-op
	if base.Server.Addr != ":9999" {
		t.Error("Merge(nil) changed config")
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Server.Addr = ":7070"
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if loaded.Server.Addr != ":7070" {
		t.Errorf("addr = %s", loaded.Server.Addr)
	}
}
