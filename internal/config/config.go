// Package config loads and merges configuration from a TOML file and
// environment variable overrides, then validates the result.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// AppName names the config directory, lock file, syslog tag and MQTT client.
const AppName = "power-notify"

// Backend names.
const (
	BackendUPowerCmd  = "upower-cmd"
	BackendUPowerDBus = "upower-dbus"
	BackendNUT        = "nut"
	BackendSysfs      = "sysfs"
)

// Notifier names.
const (
	NotifierNotifySend = "notify-send"
	NotifierDBus       = "dbus"
)

// Duration wraps time.Duration so that BurntSushi/toml can decode "30s"-style
// strings via the encoding.TextUnmarshaler interface.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// Thresholds are the battery percentages that bound the notification zones.
type Thresholds struct {
	Critical int `toml:"critical" validate:"min=0,max=100,ltfield=Low"`
	Low      int `toml:"low" validate:"min=0,max=100,ltfield=High"`
	High     int `toml:"high" validate:"min=0,max=100"`
	MinDelta int `toml:"min_delta" validate:"min=0,max=100"`
}

// Sounds maps each notification kind to an audio file. Blank disables it.
type Sounds struct {
	ACConnected    string `toml:"ac_connected"`
	ACDisconnected string `toml:"ac_disconnected"`
	Low            string `toml:"low"`
	Critical       string `toml:"critical"`
	High           string `toml:"high"`
}

// LogConfig selects the log sink and verbosity.
type LogConfig struct {
	Output string `toml:"output" validate:"oneof=stdout syslog"`
	Level  string `toml:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
}

// NUTConfig holds Network UPS Tools client settings for the nut backend.
type NUTConfig struct {
	Host         string   `toml:"host"`
	Port         int      `toml:"port" validate:"min=1,max=65535"`
	Username     string   `toml:"username"`
	Password     string   `toml:"password"`
	UPSName      string   `toml:"ups_name"`
	PollInterval Duration `toml:"poll_interval"`
}

// SysfsConfig holds settings for the kernel battery backend.
type SysfsConfig struct {
	PollInterval Duration `toml:"poll_interval"`
}

// MQTTConfig holds MQTT broker connection settings for the optional
// transition mirror.
type MQTTConfig struct {
	Enabled     bool   `toml:"enabled"`
	Broker      string `toml:"broker"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	ClientID    string `toml:"client_id"`
	TopicPrefix string `toml:"topic_prefix"`
	QOS         byte   `toml:"qos" validate:"max=2"`
	TLSCACert   string `toml:"tls_ca_cert"`
}

// Config is the top-level configuration struct.
type Config struct {
	Backend       string      `toml:"backend" validate:"oneof=upower-cmd upower-dbus nut sysfs"`
	Notifier      string      `toml:"notifier" validate:"oneof=notify-send dbus"`
	AudioPlayer   string      `toml:"audio_player"`
	ACDevice      string      `toml:"ac_device"`
	BatteryDevice string      `toml:"battery_device"`
	QueryTimeout  Duration    `toml:"query_timeout"`
	Thresholds    Thresholds  `toml:"thresholds"`
	Sounds        Sounds      `toml:"sounds"`
	Log           LogConfig   `toml:"log"`
	NUT           NUTConfig   `toml:"nut"`
	Sysfs         SysfsConfig `toml:"sysfs"`
	MQTT          MQTTConfig  `toml:"mqtt"`
}

// DefaultPaths lists the config locations searched when --config is not given.
func DefaultPaths() []string {
	return []string{
		filepath.Join(xdg.ConfigHome, AppName, "config.toml"),
		filepath.Join("/etc", AppName, "config.toml"),
	}
}

// Load reads config from the first existing path in paths, then applies
// environment variable overrides and validates the result.  Missing files
// are skipped silently; a malformed or invalid file returns an error.
// Calling Load() with no arguments returns pure defaults plus any env
// overrides.
func Load(paths ...string) (*Config, error) {
	cfg := defaults()

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, statErr := os.Stat(path); statErr == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %q: %w", path, err)
			}
			break // first found file wins
		} else if !os.IsNotExist(statErr) {
			return nil, fmt.Errorf("checking config path %q: %w", path, statErr)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges and the critical < low < high ordering.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for name, d := range map[string]Duration{
		"query_timeout":       c.QueryTimeout,
		"nut.poll_interval":   c.NUT.PollInterval,
		"sysfs.poll_interval": c.Sysfs.PollInterval,
	} {
		if d.Duration <= 0 {
			return fmt.Errorf("invalid config: %s must be positive, got %s", name, d)
		}
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Backend:      BackendUPowerCmd,
		Notifier:     NotifierNotifySend,
		AudioPlayer:  "paplay",
		QueryTimeout: Duration{5 * time.Second},
		Thresholds: Thresholds{
			Critical: 10,
			Low:      20,
			High:     80,
			MinDelta: 1,
		},
		Log: LogConfig{
			Output: "stdout",
			Level:  "info",
		},
		NUT: NUTConfig{
			Host:         "localhost",
			Port:         3493,
			UPSName:      "ups",
			PollInterval: Duration{30 * time.Second},
		},
		Sysfs: SysfsConfig{
			PollInterval: Duration{30 * time.Second},
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    AppName,
			TopicPrefix: AppName,
			QOS:         1,
		},
	}
}

// applyEnvOverrides copies any set POWER_NOTIFY_* environment variables into cfg.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("POWER_NOTIFY_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("POWER_NOTIFY_NOTIFIER"); v != "" {
		cfg.Notifier = v
	}
	if v := os.Getenv("POWER_NOTIFY_AUDIO_PLAYER"); v != "" {
		cfg.AudioPlayer = v
	}
	if v := os.Getenv("POWER_NOTIFY_AC_DEVICE"); v != "" {
		cfg.ACDevice = v
	}
	if v := os.Getenv("POWER_NOTIFY_BATTERY_DEVICE"); v != "" {
		cfg.BatteryDevice = v
	}
	if v := os.Getenv("POWER_NOTIFY_LOG_OUTPUT"); v != "" {
		cfg.Log.Output = v
	}
	if v := os.Getenv("POWER_NOTIFY_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	envInt("POWER_NOTIFY_LOW_THRESHOLD", &cfg.Thresholds.Low)
	envInt("POWER_NOTIFY_CRITICAL_THRESHOLD", &cfg.Thresholds.Critical)
	envInt("POWER_NOTIFY_HIGH_THRESHOLD", &cfg.Thresholds.High)
	envInt("POWER_NOTIFY_MIN_DELTA", &cfg.Thresholds.MinDelta)
	if v := os.Getenv("POWER_NOTIFY_QUERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.QueryTimeout = Duration{d}
		} else {
			logrus.WithError(err).WithField("value", v).Warn("config: ignoring invalid POWER_NOTIFY_QUERY_TIMEOUT")
		}
	}
	if v := os.Getenv("POWER_NOTIFY_NUT_HOST"); v != "" {
		cfg.NUT.Host = v
	}
	if v := os.Getenv("POWER_NOTIFY_NUT_UPS_NAME"); v != "" {
		cfg.NUT.UPSName = v
	}
	if v := os.Getenv("POWER_NOTIFY_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("POWER_NOTIFY_MQTT_ENABLED"); v != "" {
		cfg.MQTT.Enabled = v == "true" || v == "1"
	}
}

func envInt(name string, dst *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logrus.WithError(err).WithField("value", v).Warnf("config: ignoring invalid %s", name)
		return
	}
	*dst = n
}
