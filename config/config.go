// Package config loads server settings from defaults, an optional config
// file and RECORDSTORE_* environment variables, in increasing priority.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "RECORDSTORE"

type Config struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	DataDir        string   `mapstructure:"data_dir"`
	Backend        string   `mapstructure:"backend"` // memory, json, sqlite
	PrimaryKey     string   `mapstructure:"primary_key"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	Log            Log      `mapstructure:"log"`
}

type Log struct {
	Level  string `mapstructure:"level"`  // DEBUG, INFO, WARN, ERROR
	Format string `mapstructure:"format"` // json, text
	SeqURL string `mapstructure:"seq_url"`
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func defaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("data_dir", "./data")
	v.SetDefault("backend", "memory")
	v.SetDefault("primary_key", "id")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.seq_url", "")
}

// Load reads the configuration. file may be empty; when set it must exist
// and its format is taken from the extension (yaml, json, toml, env).
//
// RECORDSTORE_LOG_LEVEL sets log.level, RECORDSTORE_DATA_DIR sets data_dir.
// List values are comma separated.
func Load(file string) (*Config, error) {
	v := viper.New()
	defaults(v)

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	for i, o := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(o)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Backend {
	case "memory", "json", "sqlite":
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.PrimaryKey == "" {
		return fmt.Errorf("primary_key must not be empty")
	}
	return nil
}
