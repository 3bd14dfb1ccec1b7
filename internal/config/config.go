// Package config layers defaults, an optional config file, REMINDERS_*
// environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "REMINDERS"
	configName = "reminders"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

type AuthConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	VerifyURL  string        `mapstructure:"verify_url"`
	LoginURL   string        `mapstructure:"login_url"`
	CookieName string        `mapstructure:"cookie_name"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type AssistantConfig struct {
	Secret string `mapstructure:"secret"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Listen             string          `mapstructure:"listen"`
	DataFile           string          `mapstructure:"data_file"`
	BackupDir          string          `mapstructure:"backup_dir"`
	JournalFile        string          `mapstructure:"journal_file"`
	BackupRetention    time.Duration   `mapstructure:"backup_retention"`
	RemoteSyncCommand  string          `mapstructure:"remote_sync_command"`
	RemoteSyncTimeout  time.Duration   `mapstructure:"remote_sync_timeout"`
	AutosaveInterval   time.Duration   `mapstructure:"autosave_interval"`
	RecurrenceInterval time.Duration   `mapstructure:"recurrence_interval"`
	TagRebuildInterval time.Duration   `mapstructure:"tag_rebuild_interval"`
	BackupInterval     time.Duration   `mapstructure:"backup_interval"`
	ShutdownTimeout    time.Duration   `mapstructure:"shutdown_timeout"`
	SchedulerBuffer    int             `mapstructure:"scheduler_buffer"`
	Auth               AuthConfig      `mapstructure:"auth"`
	Assistant          AssistantConfig `mapstructure:"assistant"`
	Log                LogConfig       `mapstructure:"log"`
}

func Default() Config {
	return Config{
		Listen:             ":3000",
		DataFile:           "/data/reminders.json",
		BackupDir:          "/data/backups",
		JournalFile:        "/data/backups/journal.db",
		BackupRetention:    180 * 24 * time.Hour,
		RemoteSyncCommand:  "",
		RemoteSyncTimeout:  2 * time.Minute,
		AutosaveInterval:   30 * time.Second,
		RecurrenceInterval: time.Hour,
		TagRebuildInterval: 5 * time.Minute,
		BackupInterval:     24 * time.Hour,
		ShutdownTimeout:    10 * time.Second,
		SchedulerBuffer:    64,
		Auth: AuthConfig{
			CookieName: "auth_token",
			Timeout:    5 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// NewViper returns a viper instance carrying every default, the env
// binding and the config search path.
func NewViper() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("listen", d.Listen)
	v.SetDefault("data_file", d.DataFile)
	v.SetDefault("backup_dir", d.BackupDir)
	v.SetDefault("journal_file", d.JournalFile)
	v.SetDefault("backup_retention", d.BackupRetention)
	v.SetDefault("remote_sync_command", d.RemoteSyncCommand)
	v.SetDefault("remote_sync_timeout", d.RemoteSyncTimeout)
	v.SetDefault("autosave_interval", d.AutosaveInterval)
	v.SetDefault("recurrence_interval", d.RecurrenceInterval)
	v.SetDefault("tag_rebuild_interval", d.TagRebuildInterval)
	v.SetDefault("backup_interval", d.BackupInterval)
	v.SetDefault("shutdown_timeout", d.ShutdownTimeout)
	v.SetDefault("scheduler_buffer", d.SchedulerBuffer)
	v.SetDefault("auth.enabled", d.Auth.Enabled)
	v.SetDefault("auth.verify_url", d.Auth.VerifyURL)
	v.SetDefault("auth.login_url", d.Auth.LoginURL)
	v.SetDefault("auth.cookie_name", d.Auth.CookieName)
	v.SetDefault("auth.timeout", d.Auth.Timeout)
	v.SetDefault("assistant.secret", d.Assistant.Secret)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetConfigName(configName)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if override := os.Getenv(EnvPrefix + "_CONFIG_PATH"); override != "" {
		v.AddConfigPath(override)
	}
	v.AddConfigPath("./")
	v.AddConfigPath("/etc/reminders")
	return v
}

// Load reads the config file, if any, and decodes the merged result. An
// explicit file must exist; a missing searched file is fine. A leading ~
// in file paths is expanded.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		expanded, err := homedir.Expand(file)
		if err != nil {
			return Config{}, fmt.Errorf("config path: %w", err)
		}
		v.SetConfigFile(expanded)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	for _, p := range []*string{&cfg.DataFile, &cfg.BackupDir, &cfg.JournalFile} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return Config{}, fmt.Errorf("expand %s: %w", *p, err)
		}
		*p = expanded
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Listen) == "" {
		errs = append(errs, errors.New("listen is required"))
	}
	if strings.TrimSpace(c.DataFile) == "" {
		errs = append(errs, errors.New("data_file is required"))
	}
	if strings.TrimSpace(c.BackupDir) == "" {
		errs = append(errs, errors.New("backup_dir is required"))
	}
	positive := map[string]time.Duration{
		"autosave_interval":    c.AutosaveInterval,
		"recurrence_interval":  c.RecurrenceInterval,
		"tag_rebuild_interval": c.TagRebuildInterval,
		"backup_interval":      c.BackupInterval,
		"remote_sync_timeout":  c.RemoteSyncTimeout,
		"auth.timeout":         c.Auth.Timeout,
	}
	for _, key := range []string{"autosave_interval", "recurrence_interval", "tag_rebuild_interval", "backup_interval", "remote_sync_timeout", "auth.timeout"} {
		if positive[key] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", key, positive[key]))
		}
	}
	if c.BackupRetention < 0 {
		errs = append(errs, errors.New("backup_retention must not be negative"))
	}
	if c.Auth.Enabled {
		if c.Auth.VerifyURL == "" {
			errs = append(errs, errors.New("auth.verify_url is required when auth is enabled"))
		}
		if c.Auth.LoginURL == "" {
			errs = append(errs, errors.New("auth.login_url is required when auth is enabled"))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

type exampleAuth struct {
	Enabled    bool   `toml:"enabled"`
	VerifyURL  string `toml:"verify_url"`
	LoginURL   string `toml:"login_url"`
	CookieName string `toml:"cookie_name"`
	Timeout    string `toml:"timeout"`
}

type exampleFile struct {
	Listen             string      `toml:"listen"`
	DataFile           string      `toml:"data_file"`
	BackupDir          string      `toml:"backup_dir"`
	JournalFile        string      `toml:"journal_file"`
	BackupRetention    string      `toml:"backup_retention"`
	RemoteSyncCommand  string      `toml:"remote_sync_command"`
	RemoteSyncTimeout  string      `toml:"remote_sync_timeout"`
	AutosaveInterval   string      `toml:"autosave_interval"`
	RecurrenceInterval string      `toml:"recurrence_interval"`
	TagRebuildInterval string      `toml:"tag_rebuild_interval"`
	BackupInterval     string      `toml:"backup_interval"`
	ShutdownTimeout    string      `toml:"shutdown_timeout"`
	SchedulerBuffer    int         `toml:"scheduler_buffer"`
	Auth               exampleAuth `toml:"auth"`
	Assistant          struct {
		Secret string `toml:"secret"`
	} `toml:"assistant"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
}

// WriteExample writes c as a TOML config file with durations spelled the
// way Load accepts them.
func WriteExample(w io.Writer, c Config) error {
	f := exampleFile{
		Listen:             c.Listen,
		DataFile:           c.DataFile,
		BackupDir:          c.BackupDir,
		JournalFile:        c.JournalFile,
		BackupRetention:    c.BackupRetention.String(),
		RemoteSyncCommand:  c.RemoteSyncCommand,
		RemoteSyncTimeout:  c.RemoteSyncTimeout.String(),
		AutosaveInterval:   c.AutosaveInterval.String(),
		RecurrenceInterval: c.RecurrenceInterval.String(),
		TagRebuildInterval: c.TagRebuildInterval.String(),
		BackupInterval:     c.BackupInterval.String(),
		ShutdownTimeout:    c.ShutdownTimeout.String(),
		SchedulerBuffer:    c.SchedulerBuffer,
		Auth: exampleAuth{
			Enabled:    c.Auth.Enabled,
			VerifyURL:  c.Auth.VerifyURL,
			LoginURL:   c.Auth.LoginURL,
			CookieName: c.Auth.CookieName,
			Timeout:    c.Auth.Timeout.String(),
		},
	}
	f.Assistant.Secret = c.Assistant.Secret
	f.Log.Level = c.Log.Level
	f.Log.Format = c.Log.Format
	return toml.NewEncoder(w).Encode(f)
}
