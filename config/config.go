// Package config loads the sensorscan configuration from YAML and the
// environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kellegous/poop"
	"gopkg.in/yaml.v3"

	"github.com/kellegous/sensorscan"
)

const (
	BackendTinyGo = "tinygo"
	BackendGatt   = "gatt"
)

type Config struct {
	Backend  string         `yaml:"backend"`
	Adapter  string         `yaml:"adapter"`
	Platform PlatformConfig `yaml:"platform"`
	Scan     ScanConfig     `yaml:"scan"`
	Connect  ConnectConfig  `yaml:"connect"`
	Sensors  SensorsConfig  `yaml:"sensors"`
	Logger   LoggerConfig   `yaml:"logger"`
}

// PlatformConfig describes the host for the permission gate. Only
// android at or above API level 23 prompts for permission.
type PlatformConfig struct {
	OS      string `yaml:"os"`
	Version int    `yaml:"version"`
	// Permission answers the prompt when no terminal is attached: granted,
	// denied or never_ask_again. Empty means ask.
	Permission string `yaml:"permission"`
}

type ScanConfig struct {
	Window      time.Duration `yaml:"window"`
	StopOnError bool          `yaml:"stop_on_error"`
}

type ConnectConfig struct {
	DiscoverServices   bool          `yaml:"discover_services"`
	DiscoverBeforeRead bool          `yaml:"discover_before_read"`
	Pacing             PacingConfig  `yaml:"pacing"`
	Timeout            time.Duration `yaml:"timeout"`
}

type PacingConfig struct {
	BeforeCheck   time.Duration `yaml:"before_check"`
	BeforeConnect time.Duration `yaml:"before_connect"`
	AfterConnect  time.Duration `yaml:"after_connect"`
}

type SensorConfig struct {
	Service        string `yaml:"service"`
	Characteristic string `yaml:"characteristic"`
}

type SensorsConfig struct {
	Humidity SensorConfig `yaml:"humidity"`
	Battery  SensorConfig `yaml:"battery"`
	Light    SensorConfig `yaml:"light"`
}

type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

func sensorConfig(s sensorscan.Sensor) SensorConfig {
	return SensorConfig{
		Service:        s.Service.String(),
		Characteristic: s.Characteristic.String(),
	}
}

// Defaults returns the configuration used when no file is present.
func Defaults() *Config {
	sensors := sensorscan.DefaultSensors()
	return &Config{
		Backend: BackendTinyGo,
		Adapter: "hci0",
		Platform: PlatformConfig{
			OS: "linux",
		},
		Scan: ScanConfig{
			Window: sensorscan.DefaultScanWindow,
		},
		Connect: ConnectConfig{
			DiscoverServices:   true,
			DiscoverBeforeRead: true,
			Pacing: PacingConfig{
				BeforeCheck:   time.Second,
				BeforeConnect: time.Second,
				AfterConnect:  5 * time.Second,
			},
			Timeout: 30 * time.Second,
		},
		Sensors: SensorsConfig{
			Humidity: sensorConfig(sensors.Humidity),
			Battery:  sensorConfig(sensors.Battery),
			Light:    sensorConfig(sensors.Light),
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads a YAML config file on top of the defaults, then applies
// environment overrides and validates the result. A missing file is not an
// error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, poop.Chain(err)
	}

	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, poop.Chain(err)
		}
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps SENSORSCAN_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SENSORSCAN_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("SENSORSCAN_ADAPTER"); v != "" {
		cfg.Adapter = v
	}
	if v := os.Getenv("SENSORSCAN_PLATFORM_OS"); v != "" {
		cfg.Platform.OS = v
	}
	if v := os.Getenv("SENSORSCAN_PLATFORM_VERSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Platform.Version = n
		}
	}
	if v := os.Getenv("SENSORSCAN_PERMISSION"); v != "" {
		cfg.Platform.Permission = v
	}
	if v := os.Getenv("SENSORSCAN_SCAN_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scan.Window = d
		}
	}
	if v := os.Getenv("SENSORSCAN_SCAN_STOP_ON_ERROR"); v != "" {
		cfg.Scan.StopOnError = v == "true"
	}
	if v := os.Getenv("SENSORSCAN_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("SENSORSCAN_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("SENSORSCAN_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
}

func (s SensorConfig) sensor(label string) sensorscan.Sensor {
	return sensorscan.Sensor{
		Label:          label,
		Service:        uuid.MustParse(s.Service),
		Characteristic: uuid.MustParse(s.Characteristic),
	}
}

// SensorSet converts the sensor section. cfg must have passed Validate.
func (c *Config) SensorSet() sensorscan.Sensors {
	return sensorscan.Sensors{
		Humidity: c.Sensors.Humidity.sensor("humidity"),
		Battery:  c.Sensors.Battery.sensor("battery"),
		Light:    c.Sensors.Light.sensor("light"),
	}
}

func (c *Config) permissionResult() (sensorscan.PermissionResult, bool) {
	switch c.Platform.Permission {
	case "granted":
		return sensorscan.PermissionGranted, true
	case "denied":
		return sensorscan.PermissionDenied, true
	case "never_ask_again":
		return sensorscan.PermissionNeverAskAgain, true
	}
	return sensorscan.PermissionDenied, false
}

// Requester returns a fixed answer for the permission prompt when the
// config sets one.
func (c *Config) Requester() (sensorscan.PermissionRequester, bool) {
	r, ok := c.permissionResult()
	if !ok {
		return nil, false
	}
	return sensorscan.StaticRequester(r), true
}

// Options converts the config into session options.
func (c *Config) Options() []sensorscan.Option {
	policy := sensorscan.ScanErrorContinue
	if c.Scan.StopOnError {
		policy = sensorscan.ScanErrorStop
	}

	return []sensorscan.Option{
		sensorscan.WithPlatform(sensorscan.Platform{
			OS:      c.Platform.OS,
			Version: c.Platform.Version,
		}),
		sensorscan.WithScanWindow(c.Scan.Window),
		sensorscan.WithScanErrorPolicy(policy),
		sensorscan.WithPacing(sensorscan.Pacing{
			BeforeCheck:   c.Connect.Pacing.BeforeCheck,
			BeforeConnect: c.Connect.Pacing.BeforeConnect,
			AfterConnect:  c.Connect.Pacing.AfterConnect,
		}),
		sensorscan.WithConnectTimeout(c.Connect.Timeout),
		sensorscan.WithDiscoverOnConnect(c.Connect.DiscoverServices),
		sensorscan.WithDiscoverBeforeRead(c.Connect.DiscoverBeforeRead),
		sensorscan.WithSensors(c.SensorSet()),
	}
}
