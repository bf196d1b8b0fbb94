package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/viper"
)

// FileName is the base name of the configuration file.
const FileName = "wsmodel"

// Config represents the wsmodel configuration
type Config struct {
	Program      string              `mapstructure:"program"`
	Log          LogConfig           `mapstructure:"log"`
	Applications []ApplicationConfig `mapstructure:"applications"`
	Server       ServerConfig        `mapstructure:"server"`
	Watch        WatchConfig         `mapstructure:"watch"`
	Redis        RedisConfig         `mapstructure:"redis"`
	Store        StoreConfig         `mapstructure:"store"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// ApplicationConfig declares an application the way web.xml does. Its path
// overrides the @ApplicationPath of the java application with the same class.
type ApplicationConfig struct {
	Class string `mapstructure:"class"`
	Path  string `mapstructure:"path"`
}

// ServerConfig represents the HTTP view configuration
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// WatchConfig represents file watching configuration
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
	Patterns []string      `mapstructure:"patterns"`
	Ignore   []string      `mapstructure:"ignore"`
}

// RedisConfig represents the endpoint event publisher configuration
type RedisConfig struct {
	Addr    string `mapstructure:"addr"`
	Channel string `mapstructure:"channel"`
}

// StoreConfig represents the SQLite snapshot configuration
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// Load loads the configuration from wsmodel.yml or wsmodel.yaml in the
// current directory
func Load() (*Config, error) {
	return load(func(v *viper.Viper) {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
	})
}

// LoadFile loads the configuration from the given file
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return load(func(v *viper.Viper) {
		v.SetConfigFile(path)
	})
}

func load(locate func(v *viper.Viper)) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("program", "program.yaml")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("watch.debounce", 100*time.Millisecond)
	v.SetDefault("watch.patterns", []string{"*.yaml", "*.yml"})
	v.SetDefault("redis.channel", "wsmodel.endpoints")

	v.SetConfigType("yaml")
	locate(v)

	// Enable environment variable support (WSMODEL_SERVER_ADDR, ...)
	v.SetEnvPrefix("WSMODEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	// The program path is relative to the config file
	if used := v.ConfigFileUsed(); used != "" && !filepath.IsAbs(config.Program) {
		config.Program = filepath.Join(filepath.Dir(used), config.Program)
	}

	return &config, nil
}

// WebxmlApplications returns the declared applications keyed by class.
func (c *Config) WebxmlApplications() map[string]string {
	result := make(map[string]string, len(c.Applications))
	for _, app := range c.Applications {
		result[app.Class] = app.Path
	}
	return result
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Program == "" {
		return fmt.Errorf("program must not be empty")
	}
	seen := make(map[string]bool)
	for i, app := range cfg.Applications {
		if app.Class == "" {
			return fmt.Errorf("applications[%d].class must not be empty", i)
		}
		if seen[app.Class] {
			return fmt.Errorf("applications[%d]: duplicate class %s", i, app.Class)
		}
		seen[app.Class] = true
		if !strings.HasPrefix(app.Path, "/") {
			return fmt.Errorf("applications[%d].path must start with '/', got: %s", i, app.Path)
		}
	}
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative, got: %s", cfg.Watch.Debounce)
	}
	for _, pattern := range append(append([]string(nil), cfg.Watch.Patterns...), cfg.Watch.Ignore...) {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid watch pattern: %s", pattern)
		}
	}
	if cfg.Redis.Addr != "" && cfg.Redis.Channel == "" {
		return fmt.Errorf("redis.channel is required when redis.addr is set")
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got: %s", cfg.Log.Level)
	}
	return nil
}
