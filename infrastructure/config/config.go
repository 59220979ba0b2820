// Package config loads gateway settings from a YAML file, WORLDLINK_* environment
// variables and built-in defaults.
package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"worldlink/application/session"
	"worldlink/infrastructure/logging"
)

// EnvPrefix prefixes every environment override, e.g. WORLDLINK_SERVER_ADDR.
const EnvPrefix = "WORLDLINK"

type Config struct {
	Server struct {
		Addr         string        `mapstructure:"addr"`
		Path         string        `mapstructure:"path"`
		MetricsAddr  string        `mapstructure:"metrics_addr"`
		ReadLimit    int64         `mapstructure:"read_limit"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"server"`

	Session struct {
		PollInterval   time.Duration `mapstructure:"poll_interval"`
		MaxAttempts    int           `mapstructure:"max_attempts"`
		RosterInterval time.Duration `mapstructure:"roster_interval"`
		PendingTTL     time.Duration `mapstructure:"pending_ttl"`
		QueueLimit     int           `mapstructure:"queue_limit"`
	} `mapstructure:"session"`

	Log struct {
		Level      string `mapstructure:"level"`
		Dir        string `mapstructure:"dir"`
		MaxSizeMB  int    `mapstructure:"max_size_mb"`
		MaxBackups int    `mapstructure:"max_backups"`
		MaxAgeDays int    `mapstructure:"max_age_days"`
		Compress   bool   `mapstructure:"compress"`
	} `mapstructure:"log"`

	Chat struct {
		// Echo repeats every chat message back to its world.
		Echo bool `mapstructure:"echo"`
		// GatewayName is the sender name of messages the gateway itself broadcast.
		GatewayName string `mapstructure:"gateway_name"`
	} `mapstructure:"chat"`
}

func defaults() map[string]any {
	lc := logging.DefaultConfig()
	return map[string]any{
		"server.addr":             ":19132",
		"server.path":             "/",
		"server.metrics_addr":     "",
		"server.read_limit":       1 << 20,
		"server.write_timeout":    5 * time.Second,
		"session.poll_interval":   session.DefaultPollInterval,
		"session.max_attempts":    session.DefaultMaxAttempts,
		"session.roster_interval": session.DefaultRosterInterval,
		"session.pending_ttl":     session.DefaultPendingTTL,
		"session.queue_limit":     session.DefaultQueueLimit,
		"log.level":               "info",
		"log.dir":                 "",
		"log.max_size_mb":         lc.MaxSizeMB,
		"log.max_backups":         lc.MaxBackups,
		"log.max_age_days":        lc.MaxAgeDays,
		"log.compress":            lc.Compress,
		"chat.echo":               true,
		"chat.gateway_name":       "External",
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	return v
}

// Load reads path (if non-empty) over the defaults. Environment variables take
// precedence over both.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return decode(v)
}

// Read parses YAML from r over the defaults.
func Read(r io.Reader) (*Config, error) {
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects settings the gateway cannot run with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must be set")
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		return fmt.Errorf("server.path %q must start with /", c.Server.Path)
	}
	if c.Session.PollInterval <= 0 || c.Session.MaxAttempts <= 0 {
		return fmt.Errorf("session.poll_interval and session.max_attempts must be positive")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// SessionConfig returns the timing part of a session.Config.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		PollInterval:   c.Session.PollInterval,
		MaxAttempts:    c.Session.MaxAttempts,
		RosterInterval: c.Session.RosterInterval,
		PendingTTL:     c.Session.PendingTTL,
		QueueLimit:     c.Session.QueueLimit,
	}
}

// LoggingConfig converts the log section for logging.Setup.
func (c *Config) LoggingConfig() *logging.Config {
	level, _ := logging.ParseLevel(c.Log.Level)
	return &logging.Config{
		Level:      level,
		Dir:        c.Log.Dir,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}

// Write renders c as YAML that Load accepts.
func (c *Config) Write(w io.Writer) error {
	doc := map[string]any{
		"server": map[string]any{
			"addr":          c.Server.Addr,
			"path":          c.Server.Path,
			"metrics_addr":  c.Server.MetricsAddr,
			"read_limit":    c.Server.ReadLimit,
			"write_timeout": c.Server.WriteTimeout.String(),
		},
		"session": map[string]any{
			"poll_interval":   c.Session.PollInterval.String(),
			"max_attempts":    c.Session.MaxAttempts,
			"roster_interval": c.Session.RosterInterval.String(),
			"pending_ttl":     c.Session.PendingTTL.String(),
			"queue_limit":     c.Session.QueueLimit,
		},
		"log": map[string]any{
			"level":        c.Log.Level,
			"dir":          c.Log.Dir,
			"max_size_mb":  c.Log.MaxSizeMB,
			"max_backups":  c.Log.MaxBackups,
			"max_age_days": c.Log.MaxAgeDays,
			"compress":     c.Log.Compress,
		},
		"chat": map[string]any{
			"echo":         c.Chat.Echo,
			"gateway_name": c.Chat.GatewayName,
		},
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
