package config

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg and returns a *ValidationError listing every problem.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateBackend(cfg, ve)
	validatePlatform(cfg, ve)
	validateScan(cfg, ve)
	validateConnect(cfg, ve)
	validateSensors(cfg, ve)
	validateLogger(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateBackend(cfg *Config, ve *ValidationError) {
	switch cfg.Backend {
	case BackendTinyGo, BackendGatt:
	default:
		ve.Add("backend must be %q or %q, got %q", BackendTinyGo, BackendGatt, cfg.Backend)
	}
	if cfg.Backend == BackendTinyGo && cfg.Adapter == "" {
		ve.Add("adapter is required for the %s backend", BackendTinyGo)
	}
}

func validatePlatform(cfg *Config, ve *ValidationError) {
	if cfg.Platform.Version < 0 {
		ve.Add("platform.version must be >= 0")
	}
	switch cfg.Platform.Permission {
	case "", "granted", "denied", "never_ask_again":
	default:
		ve.Add("platform.permission %q is not one of granted, denied, never_ask_again", cfg.Platform.Permission)
	}
}

func validateScan(cfg *Config, ve *ValidationError) {
	if cfg.Scan.Window <= 0 {
		ve.Add("scan.window must be > 0")
	}
}

func validateConnect(cfg *Config, ve *ValidationError) {
	p := cfg.Connect.Pacing
	if p.BeforeCheck < 0 || p.BeforeConnect < 0 || p.AfterConnect < 0 {
		ve.Add("connect.pacing delays must be >= 0")
	}
	if cfg.Connect.Timeout < 0 {
		ve.Add("connect.timeout must be >= 0")
	}
}

func validateSensor(name string, s SensorConfig, ve *ValidationError) {
	if _, err := uuid.Parse(s.Service); err != nil {
		ve.Add("sensors.%s.service: %v", name, err)
	}
	if _, err := uuid.Parse(s.Characteristic); err != nil {
		ve.Add("sensors.%s.characteristic: %v", name, err)
	}
}

func validateSensors(cfg *Config, ve *ValidationError) {
	validateSensor("humidity", cfg.Sensors.Humidity, ve)
	validateSensor("battery", cfg.Sensors.Battery, ve)
	validateSensor("light", cfg.Sensors.Light, ve)
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format must be text or json, got %q", cfg.Logger.Format)
	}
}
