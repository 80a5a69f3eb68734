package database

import (
	"os"
	"path/filepath"
	"testing"

	"hard-sync/internal/config"
)

func TestNewHistoryFromConfig(t *testing.T) {
	t.Run("memory database", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "memory"}
		got, err := NewHistoryFromConfig(cfg)

		if err != nil {
			t.Errorf("NewHistoryFromConfig() unexpected error: %v", err)
			return
		}

		if got == nil {
			t.Error("NewHistoryFromConfig() returned nil")
		}

		if got != nil {
			got.Close()
		}
	})

	t.Run("sqlite database", func(t *testing.T) {
		dataDir := filepath.Join(t.TempDir(), "db")
		cfg := config.DatabaseConfig{
			Type:    "sqlite",
			DataDir: dataDir,
		}
		got, err := NewHistoryFromConfig(cfg)

		if err != nil {
			t.Errorf("NewHistoryFromConfig() unexpected error: %v", err)
			return
		}
		defer got.Close()

		if _, err := got.ListSyncRuns(1); err != nil {
			t.Fatalf("ListSyncRuns() error = %v", err)
		}
		if _, err := os.Stat(filepath.Join(dataDir, HistoryFileName)); err != nil {
			t.Errorf("database file not created: %v", err)
		}
	})

	t.Run("sqlite database without data_dir", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "sqlite"}
		got, err := NewHistoryFromConfig(cfg)

		if err == nil {
			t.Error("NewHistoryFromConfig() expected error for missing data_dir, got nil")
		}

		if got != nil {
			t.Error("NewHistoryFromConfig() should return nil on error")
			got.Close()
		}
	})

	t.Run("unknown database type", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "unknown"}
		got, err := NewHistoryFromConfig(cfg)

		if err == nil {
			t.Error("NewHistoryFromConfig() expected error for unknown type, got nil")
		}

		if got != nil {
			t.Error("NewHistoryFromConfig() should return nil on error")
			got.Close()
		}
	})
}
