package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig
	Remote   RemoteConfig
	Server   ServerConfig
	UI       UIConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path       string
	FlushDelay time.Duration `mapstructure:"flush_delay"`
}

// RemoteConfig holds ledger API settings. The token itself is never stored
// here; TokenEnv names the environment variable that carries it.
type RemoteConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	TokenEnv  string        `mapstructure:"token_env"`
	PageSize  int           `mapstructure:"page_size"`
	PageDelay time.Duration `mapstructure:"page_delay"`
	Timeout   time.Duration
}

// ServerConfig holds the read API settings.
type ServerConfig struct {
	Addr         string
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// UIConfig holds presentation settings.
type UIConfig struct {
	CurrencySymbol string `mapstructure:"currency_symbol"`
	Timezone       string
}

// Location resolves the configured timezone, falling back to local time.
func (c Config) Location() *time.Location {
	if c.UI.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.UI.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Path returns the config file location. LEDGERSYNC_CONFIG overrides it.
func Path() string {
	if p := os.Getenv("LEDGERSYNC_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "ledgersync", "config.toml")
}

// Load reads configuration from file and env. Env var overrides use prefix LEDGERSYNC_.
func Load() (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "ledgersync", "ledgersync.db"))
	v.SetDefault("database.flush_delay", "500ms")
	v.SetDefault("remote.base_url", "https://api.up.com.au/api/v1")
	v.SetDefault("remote.token_env", "UP_API_TOKEN")
	v.SetDefault("remote.page_size", 100)
	v.SetDefault("remote.page_delay", "1s")
	v.SetDefault("remote.timeout", "30s")
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.allow_origins", []string{"http://localhost:3000"})
	v.SetDefault("ui.currency_symbol", "$")
	v.SetDefault("ui.timezone", "Australia/Melbourne")

	v.SetConfigType("toml")
	v.SetConfigFile(Path())

	v.SetEnvPrefix("LEDGERSYNC")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// a missing file is fine; a malformed one is not
	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(Path()); statErr == nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.Remote.PageSize <= 0 {
		c.Remote.PageSize = 100
	}
	return c, nil
}

// Save writes the provided config to disk, creating the config directory if needed.
func Save(cfg Config) error {
	path := Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("database.path", cfg.Database.Path)
	v.Set("database.flush_delay", cfg.Database.FlushDelay.String())
	v.Set("remote.base_url", cfg.Remote.BaseURL)
	v.Set("remote.token_env", cfg.Remote.TokenEnv)
	v.Set("remote.page_size", cfg.Remote.PageSize)
	v.Set("remote.page_delay", cfg.Remote.PageDelay.String())
	v.Set("remote.timeout", cfg.Remote.Timeout.String())
	v.Set("server.addr", cfg.Server.Addr)
	v.Set("server.allow_origins", cfg.Server.AllowOrigins)
	v.Set("ui.currency_symbol", cfg.UI.CurrencySymbol)
	v.Set("ui.timezone", cfg.UI.Timezone)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
