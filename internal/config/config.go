// Package config provides configuration management for the web front end.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Paths  PathsConfig  `mapstructure:"paths"`
	Audit  AuditConfig  `mapstructure:"audit"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	SessionAuthKey string `mapstructure:"session_auth_key"`
	SessionEncKey  string `mapstructure:"session_enc_key"` // 16, 24 or 32 bytes
}

// PathsConfig holds file locations consumed at startup.
type PathsConfig struct {
	Stocks      string `mapstructure:"stocks"`       // stocks.json symbol directory
	TokenFile   string `mapstructure:"token_file"`   // debug auth-token dump, empty disables
	EnvDefaults string `mapstructure:"env_defaults"` // .env.trading login prefill
}

// AuditConfig holds the optional audit store configuration.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/angelone-web"
	}
	return filepath.Join(home, ".config", "angelone-web")
}

// Load loads configuration from the specified directory. If configDir is
// empty the default directory is used; a template config is written on
// first run.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		if err := writeTemplate(configDir); err != nil {
			return nil, fmt.Errorf("writing config template: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("paths.stocks", "stocks.json")
	v.SetDefault("paths.token_file", filepath.Join(configDir, "auth_token.json"))
	v.SetDefault("paths.env_defaults", ".env.trading")
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.path", filepath.Join(configDir, "audit.db"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
	v.SetDefault("log.file", true)
	v.SetDefault("log.file_path", filepath.Join(configDir, "logs", "angelone-web.log"))
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age", 30)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ANGELWEB_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("ANGELWEB_SESSION_AUTH_KEY"); v != "" {
		cfg.Server.SessionAuthKey = v
	}
	if v := os.Getenv("ANGELWEB_SESSION_ENC_KEY"); v != "" {
		cfg.Server.SessionEncKey = v
	}
	if v := os.Getenv("ANGELWEB_STOCKS"); v != "" {
		cfg.Paths.Stocks = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if key := len(c.Server.SessionEncKey); key != 0 && key != 16 && key != 24 && key != 32 {
		return fmt.Errorf("session_enc_key must be 16, 24 or 32 bytes, got %d", key)
	}
	if c.Audit.Enabled && c.Audit.Path == "" {
		return fmt.Errorf("audit.path must be set when audit is enabled")
	}
	return nil
}

const configTemplate = `# angelone-web configuration

[server]
addr = ":8080"
# session_auth_key = ""   # random string; generated at startup when empty
# session_enc_key = ""    # 16, 24 or 32 bytes; generated at startup when empty

[paths]
stocks = "stocks.json"
env_defaults = ".env.trading"

[audit]
enabled = true

[log]
level = "info"
console = true
file = true
`

func writeTemplate(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}
	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(configTemplate), 0644)
}

// LoadEnvDefaults parses the .env.trading KEY=VALUE file used to pre-fill
// the login form. The file is a convenience, not secure storage; a missing
// or unreadable file yields an empty map.
func LoadEnvDefaults(path string) map[string]string {
	if path == "" {
		return map[string]string{}
	}
	defaults, err := godotenv.Read(path)
	if err != nil {
		return map[string]string{}
	}
	return defaults
}
