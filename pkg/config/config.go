package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds host configuration.
type Config struct {
	Log     LogConfig
	Modules ModulesConfig
	KV      KVConfig
}

// LogConfig controls the zap logger built by the CLI.
type LogConfig struct {
	Level       string
	Development bool
}

// ModulesConfig selects which native modules are declared and which are
// built eagerly at startup instead of on first use.
type ModulesConfig struct {
	Preload  []string
	Disabled []string
}

// KVConfig holds sqlite settings for the kv module.
type KVConfig struct {
	Path string
}

// ModuleEnabled reports whether name is absent from Modules.Disabled.
func (c Config) ModuleEnabled(name string) bool {
	for _, d := range c.Modules.Disabled {
		if strings.EqualFold(strings.TrimSpace(d), name) {
			return false
		}
	}
	return true
}

// Default returns the configuration used when no file or env overrides exist.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		KV:  KVConfig{Path: defaultKVPath()},
	}
}

func defaultKVPath() string {
	return filepath.Join(os.Getenv("HOME"), ".local", "share", "lazyhost", "kv.db")
}

// Load reads configuration from file and env. Env var overrides use prefix LAZYHOST_.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("modules.preload", []string{})
	v.SetDefault("modules.disabled", []string{})
	v.SetDefault("kv.path", defaultKVPath())

	v.SetConfigType("toml")

	cfgPath := os.Getenv("LAZYHOST_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "lazyhost"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("LAZYHOST")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// An explicitly named file must exist; the default location is optional.
		if cfgPath != "" {
			return Config{}, fmt.Errorf("read config %s: %w", cfgPath, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}
