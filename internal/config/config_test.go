package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		BaseDir:  "/home/user/.local/share/hard-sync",
		LogDir:   "/home/user/.local/share/hard-sync/log",
		LogLevel: "debug",
		Sync:     SyncConfig{JournalTTLSeconds: 9, CopyBufferSize: 4096},
		Filesystem: FilesystemConfig{
			Ignore: []string{`\.DS_Store$`, `^\.git/`},
		},
		Database: DatabaseConfig{Type: "sqlite", DataDir: "/home/user/.local/share/hard-sync/db"},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.LogDir != original.LogDir {
		t.Errorf("LogDir = %q, want %q", got.LogDir, original.LogDir)
	}
	if got.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", got.LogLevel, "debug")
	}
	if got.Sync.JournalTTLSeconds != 9 {
		t.Errorf("Sync.JournalTTLSeconds = %d, want 9", got.Sync.JournalTTLSeconds)
	}
	if got.Sync.CopyBufferSize != 4096 {
		t.Errorf("Sync.CopyBufferSize = %d, want 4096", got.Sync.CopyBufferSize)
	}
	if got.Database.DataDir != original.Database.DataDir {
		t.Errorf("Database.DataDir = %q, want %q", got.Database.DataDir, original.Database.DataDir)
	}
	if len(got.Filesystem.Ignore) != 2 {
		t.Fatalf("len(Filesystem.Ignore) = %d, want 2", len(got.Filesystem.Ignore))
	}
	if got.Filesystem.Ignore[0] != `\.DS_Store$` {
		t.Errorf("Filesystem.Ignore[0] = %q, want %q", got.Filesystem.Ignore[0], `\.DS_Store$`)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/hs")

	if cfg.BaseDir != "/data/hs" {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, "/data/hs")
	}
	if cfg.LogDir != "/data/hs/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/hs/log")
	}
	if cfg.Database.DataDir != "/data/hs/db" {
		t.Errorf("Database.DataDir = %q, want %q", cfg.Database.DataDir, "/data/hs/db")
	}
	if cfg.JournalTTL() != 5*time.Second {
		t.Errorf("JournalTTL() = %v, want 5s", cfg.JournalTTL())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"memory database", func(c *Config) { c.Database.Type = "memory" }, false},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"negative ttl", func(c *Config) { c.Sync.JournalTTLSeconds = -1 }, true},
		{"negative buffer", func(c *Config) { c.Sync.CopyBufferSize = -1 }, true},
		{"unknown database", func(c *Config) { c.Database.Type = "postgres" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("/data/hs")
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "hard-sync.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "hard-sync.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestLoad(t *testing.T) {
	t.Run("missing file falls back to defaults", func(t *testing.T) {
		dir := t.TempDir()
		cfg, err := Load(filepath.Join(dir, "absent.toml"), dir)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.LogDir != filepath.Join(dir, "log") {
			t.Errorf("LogDir = %q, want %q", cfg.LogDir, filepath.Join(dir, "log"))
		}
	})

	t.Run("partial file keeps defaults for absent keys", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "hard-sync.toml")
		content := "log_level = \"warn\"\n\n[filesystem]\nignore = ['\\.tmp$']\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}

		cfg, err := Load(path, dir)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.LogLevel != "warn" {
			t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
		}
		if cfg.Sync.JournalTTLSeconds != DefaultJournalTTLSeconds {
			t.Errorf("JournalTTLSeconds = %d, want %d", cfg.Sync.JournalTTLSeconds, DefaultJournalTTLSeconds)
		}
		if len(cfg.Filesystem.Ignore) != 1 || cfg.Filesystem.Ignore[0] != `\.tmp$` {
			t.Errorf("Filesystem.Ignore = %v, want [\\.tmp$]", cfg.Filesystem.Ignore)
		}
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "hard-sync.toml")
		if err := os.WriteFile(path, []byte("log_level = \"loud\"\n"), 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		if _, err := Load(path, dir); err == nil {
			t.Fatal("Load() expected error for invalid log level")
		}
	})
}
