package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("server:\n  port: 9000\n"))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Fatalf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Server.TickRate != 20 {
		t.Fatalf("expected default tick rate 20, got %d", cfg.Server.TickRate)
	}
	if cfg.Inventory.Rows != 15 || cfg.Inventory.Columns != 6 {
		t.Fatalf("expected 15x6 inventory, got %dx%d", cfg.Inventory.Rows, cfg.Inventory.Columns)
	}
	if cfg.Inventory.WeightCapacity != 50 {
		t.Fatalf("expected weight capacity 50, got %v", cfg.Inventory.WeightCapacity)
	}
	if cfg.Interaction.Distance != 500 {
		t.Fatalf("expected interaction distance 500, got %v", cfg.Interaction.Distance)
	}
	if cfg.Storage.RedisPrefix != "inventory:" {
		t.Fatalf("unexpected redis prefix %q", cfg.Storage.RedisPrefix)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected info log level, got %q", cfg.Logging.Level)
	}
}

func TestLoadReadsSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	data := `
inventory:
  rows: 4
  columns: 8
  weight_capacity: 12.5
  catalog_path: items.yaml
interaction:
  distance: 250
  tick: 30
storage:
  enabled: true
  sqlite_path: /tmp/ledger.db
  redis_prefix: "inv:"
  snapshot_ttl: 1h
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Inventory.Rows != 4 || cfg.Inventory.Columns != 8 || cfg.Inventory.WeightCapacity != 12.5 {
		t.Fatalf("unexpected inventory config %+v", cfg.Inventory)
	}
	if cfg.Inventory.CatalogPath != "items.yaml" {
		t.Fatalf("unexpected catalog path %q", cfg.Inventory.CatalogPath)
	}
	if cfg.Interaction.Distance != 250 || cfg.Interaction.TickRate != 30 {
		t.Fatalf("unexpected interaction config %+v", cfg.Interaction)
	}
	if !cfg.Storage.Enabled || cfg.Storage.RedisPrefix != "inv:" || cfg.Storage.SnapshotTTL != time.Hour {
		t.Fatalf("unexpected storage config %+v", cfg.Storage)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.Logging.Level)
	}
}

func TestParseRejectsNegativeInventory(t *testing.T) {
	if _, err := Parse([]byte("inventory:\n  rows: -1\n")); err == nil {
		t.Fatalf("expected negative rows to be rejected")
	}
	if _, err := Parse([]byte("inventory:\n  weight_capacity: -3\n")); err == nil {
		t.Fatalf("expected negative capacity to be rejected")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
