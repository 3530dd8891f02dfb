package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all server configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	JWT         JWTConfig         `yaml:"jwt"`
	Redis       RedisConfig       `yaml:"redis"`
	Session     SessionConfig     `yaml:"session"`
	Chat        ChatConfig        `yaml:"chat"`
	Inventory   InventoryConfig   `yaml:"inventory"`
	Interaction InteractionConfig `yaml:"interaction"`
	Storage     StorageConfig     `yaml:"storage"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds server-specific settings
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TickRate int    `yaml:"tick_rate"` // Hz
}

// JWTConfig holds JWT authentication settings
type JWTConfig struct {
	Issuer              string `yaml:"issuer"`
	PublicKeyURL        string `yaml:"public_key_url"`
	PublicKeyRefreshHrs int    `yaml:"public_key_refresh_hours"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address         string `yaml:"address"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db"`
	BlacklistPrefix string `yaml:"blacklist_prefix"`
}

// SessionConfig holds game session settings
type SessionConfig struct {
	MaxPlayers int `yaml:"max_players"`
}

// ChatConfig holds chat system settings
type ChatConfig struct {
	MaxMessageLength int `yaml:"max_message_length"`
	RateLimit        int `yaml:"rate_limit"` // messages per minute
}

// InventoryConfig sizes every player inventory.
type InventoryConfig struct {
	Rows           int     `yaml:"rows"`
	Columns        int     `yaml:"columns"`
	WeightCapacity float64 `yaml:"weight_capacity"`
	// CatalogPath points at a YAML item catalog. Empty uses the built-in sample kinds.
	CatalogPath string `yaml:"catalog_path"`
}

// InteractionConfig holds pickup interaction settings
type InteractionConfig struct {
	Distance float64 `yaml:"distance"` // world units
	TickRate int     `yaml:"tick"`     // Hz
}

// StorageConfig holds inventory persistence settings
type StorageConfig struct {
	Enabled     bool          `yaml:"enabled"`
	SQLitePath  string        `yaml:"sqlite_path"`
	RedisPrefix string        `yaml:"redis_prefix"`
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes configuration from YAML and fills in defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.TickRate == 0 {
		cfg.Server.TickRate = 20
	}
	if cfg.JWT.PublicKeyRefreshHrs == 0 {
		cfg.JWT.PublicKeyRefreshHrs = 24
	}
	if cfg.Chat.MaxMessageLength == 0 {
		cfg.Chat.MaxMessageLength = 500
	}
	if cfg.Chat.RateLimit == 0 {
		cfg.Chat.RateLimit = 10
	}
	if cfg.Session.MaxPlayers == 0 {
		cfg.Session.MaxPlayers = 100
	}
	if cfg.Inventory.Rows == 0 {
		cfg.Inventory.Rows = 15
	}
	if cfg.Inventory.Columns == 0 {
		cfg.Inventory.Columns = 6
	}
	if cfg.Inventory.WeightCapacity == 0 {
		cfg.Inventory.WeightCapacity = 50
	}
	if cfg.Interaction.Distance == 0 {
		cfg.Interaction.Distance = 500
	}
	if cfg.Interaction.TickRate == 0 {
		cfg.Interaction.TickRate = 10
	}
	if cfg.Storage.RedisPrefix == "" {
		cfg.Storage.RedisPrefix = "inventory:"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/ledger.sqlite"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func (cfg *Config) validate() error {
	if cfg.Inventory.Rows < 0 || cfg.Inventory.Columns < 0 {
		return fmt.Errorf("inventory dimensions must be positive, got %dx%d", cfg.Inventory.Rows, cfg.Inventory.Columns)
	}
	if cfg.Inventory.WeightCapacity < 0 {
		return fmt.Errorf("inventory weight capacity must not be negative, got %v", cfg.Inventory.WeightCapacity)
	}
	if cfg.Interaction.Distance < 0 {
		return fmt.Errorf("interaction distance must not be negative, got %v", cfg.Interaction.Distance)
	}
	return nil
}
