// pkg/config/config.go
//
// Loads and validates /etc/pc-switcher/config.yaml. Everything downstream of
// this package consumes the validated Config value only; no other package
// re-reads configuration from disk.

package config

import (
	"time"

	cerr "github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Target is the machine to sync to: a hostname or user@host[:port].
	Target string `mapstructure:"target" validate:"required"`

	SSH SSHConfig `mapstructure:"ssh"`

	// The two sinks filter independently.
	LogLevelFile     string `mapstructure:"log_level_file" validate:"omitempty,oneof=trace debug info warn error"`
	LogLevelTerminal string `mapstructure:"log_level_terminal" validate:"omitempty,oneof=trace debug info warn error"`

	// GracePeriod bounds how long a cancelled job may spend cleaning up.
	GracePeriod time.Duration `mapstructure:"grace_period"`

	Jobs      JobsConfig      `mapstructure:"jobs"`
	Disk      DiskConfig      `mapstructure:"disk"`
	Snapshots SnapshotsConfig `mapstructure:"snapshots"`
}

type SSHConfig struct {
	User                 string        `mapstructure:"user"`
	Port                 int           `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	KeyPath              string        `mapstructure:"key_path"`
	MaxSessions          int64         `mapstructure:"max_sessions" validate:"omitempty,min=1,max=64"`
	KeepaliveInterval    time.Duration `mapstructure:"keepalive_interval"`
	KeepaliveMaxFailures int           `mapstructure:"keepalive_max_failures" validate:"omitempty,min=1"`
}

type JobsConfig struct {
	// Enabled lists user-configurable jobs in execution order.
	Enabled []string `mapstructure:"enabled"`
	// Settings holds one opaque block per job, decoded on demand.
	Settings map[string]map[string]interface{} `mapstructure:"settings"`
}

type DiskConfig struct {
	PreflightMin Threshold     `mapstructure:"preflight_min"`
	RuntimeMin   Threshold     `mapstructure:"runtime_min"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type SnapshotsConfig struct {
	Subvolumes []string        `mapstructure:"subvolumes" validate:"required,min=1,dive,required"`
	Root       string          `mapstructure:"root"`
	Retention  RetentionConfig `mapstructure:"retention"`
}

type RetentionConfig struct {
	KeepRecent int           `mapstructure:"keep_recent" validate:"omitempty,min=1"`
	MaxAge     time.Duration `mapstructure:"max_age"`
}

// Defaults applied after decode, before validation.
func (c *Config) applyDefaults() {
	if c.SSH.Port == 0 {
		c.SSH.Port = 22
	}
	if c.SSH.MaxSessions == 0 {
		c.SSH.MaxSessions = 8
	}
	if c.SSH.KeepaliveInterval == 0 {
		c.SSH.KeepaliveInterval = 15 * time.Second
	}
	if c.SSH.KeepaliveMaxFailures == 0 {
		c.SSH.KeepaliveMaxFailures = 3
	}
	if c.LogLevelFile == "" {
		c.LogLevelFile = "debug"
	}
	if c.LogLevelTerminal == "" {
		c.LogLevelTerminal = "info"
	}
	if c.GracePeriod == 0 {
		c.GracePeriod = 10 * time.Second
	}
	if c.Disk.PreflightMin == (Threshold{}) {
		c.Disk.PreflightMin = Threshold{Percent: 20, percent: true}
	}
	if c.Disk.RuntimeMin == (Threshold{}) {
		c.Disk.RuntimeMin = Threshold{Percent: 15, percent: true}
	}
	if c.Disk.PollInterval == 0 {
		c.Disk.PollInterval = 30 * time.Second
	}
	if c.Snapshots.Root == "" {
		c.Snapshots.Root = "/.snapshots-pcswitcher"
	}
	if c.Snapshots.Retention.KeepRecent == 0 {
		c.Snapshots.Retention.KeepRecent = 3
	}
	if c.Snapshots.Retention.MaxAge == 0 {
		c.Snapshots.Retention.MaxAge = 30 * 24 * time.Hour
	}
}

// Load reads the config file (default /etc/pc-switcher/config.yaml, override
// via path) and returns the validated structure. A non-empty targetOverride
// (the CLI argument) wins over the file's target.
func Load(path, targetOverride string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("/etc/pc-switcher")
		v.AddConfigPath("$HOME/.config/pc-switcher")
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, cerr.Wrap(err, "failed to read config file")
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, cerr.Wrap(err, "config file does not match expected schema")
	}

	if targetOverride != "" {
		cfg.Target = targetOverride
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs struct-tag validation plus semantic checks.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return cerr.Wrap(err, "config validation failed")
	}

	// Runtime watermark above the preflight one would fail every run the
	// moment the watchdog starts.
	if c.Disk.RuntimeMin.IsPercent() == c.Disk.PreflightMin.IsPercent() {
		if c.Disk.RuntimeMin.MinBytes(100) > c.Disk.PreflightMin.MinBytes(100) {
			return cerr.New("disk.runtime_min must not exceed disk.preflight_min")
		}
	}

	if c.Disk.PollInterval < time.Second {
		return cerr.New("disk.poll_interval must be at least 1s")
	}

	seen := make(map[string]bool, len(c.Jobs.Enabled))
	for _, name := range c.Jobs.Enabled {
		if seen[name] {
			return cerr.Newf("job %q listed twice in jobs.enabled", name)
		}
		seen[name] = true
	}
	return nil
}

// DecodeJobSettings decodes one job's opaque settings block into out.
// Jobs own the schema of their block; this is the only place the raw
// structure crosses into typed space.
func (c *Config) DecodeJobSettings(job string, out interface{}) error {
	raw, ok := c.Jobs.Settings[job]
	if !ok {
		return nil
	}
	data, err := yaml.Marshal(raw)
	if err != nil {
		return cerr.Wrapf(err, "failed to re-encode settings for job %q", job)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return cerr.Wrapf(err, "invalid settings for job %q", job)
	}
	return nil
}
