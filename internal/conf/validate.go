package conf

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/naturethrive/birdmonitor/internal/viewstate"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates every section and reports all problems together.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, check := range []func(*Settings) []string{
		validateBackendSettings,
		validateDashboardSettings,
		validateLoggingSettings,
		validateTelemetrySettings,
		validateMetricsSettings,
	} {
		ve.Errors = append(ve.Errors, check(settings)...)
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateBackendSettings(s *Settings) []string {
	var errs []string
	b := &s.Backend

	if err := validateEnvURL(b.BaseURL); err != nil {
		errs = append(errs, fmt.Sprintf("backend.baseurl %q: %v", b.BaseURL, err))
	}
	if b.Timeout <= 0 {
		errs = append(errs, "backend.timeout must be positive")
	}
	if b.MaxRetries < 0 {
		errs = append(errs, "backend.maxretries must not be negative")
	}
	if b.InitialBackoff < 0 || b.MaxBackoff < 0 {
		errs = append(errs, "backend backoff durations must not be negative")
	} else if b.MaxBackoff > 0 && b.MaxBackoff < b.InitialBackoff {
		errs = append(errs, "backend.maxbackoff must not be below backend.initialbackoff")
	}
	if b.RateLimit < 0 {
		errs = append(errs, "backend.ratelimit must not be negative")
	}
	if b.RateLimit > 0 && b.Burst < 1 {
		errs = append(errs, "backend.burst must be at least 1 when rate limiting is enabled")
	}
	if b.MaxBodyBytes < 0 {
		errs = append(errs, "backend.maxbodybytes must not be negative")
	}
	return errs
}

func validateDashboardSettings(s *Settings) []string {
	var errs []string
	d := &s.Dashboard

	if _, err := viewstate.ParseMode(d.View); err != nil {
		errs = append(errs, fmt.Sprintf("dashboard.view: %v", err))
	}
	if d.ReloadEvery < 0 {
		errs = append(errs, "dashboard.reloadevery must not be negative")
	}
	if _, err := d.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("dashboard.timezone %q: %v", d.Timezone, err))
	}
	return errs
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

func validateLoggingSettings(s *Settings) []string {
	var errs []string
	l := &s.Logging

	check := func(key, level string) {
		if level != "" && !validLogLevels[strings.ToLower(level)] {
			errs = append(errs, fmt.Sprintf("%s %q is not a log level", key, level))
		}
	}
	check("logging.default_level", l.DefaultLevel)
	if l.Console != nil {
		check("logging.console.level", l.Console.Level)
	}
	if l.FileOutput != nil {
		check("logging.file_output.level", l.FileOutput.Level)
		if l.FileOutput.Enabled && l.FileOutput.Path == "" {
			errs = append(errs, "logging.file_output.path is required when file output is enabled")
		}
	}
	for module, level := range l.ModuleLevels {
		check("logging.module_levels."+module, level)
	}
	return errs
}

func validateTelemetrySettings(s *Settings) []string {
	t := &s.Telemetry
	if !t.Enabled {
		return nil
	}

	var errs []string
	if t.DSN == "" {
		errs = append(errs, "telemetry.dsn is required when telemetry is enabled")
	} else if u, err := url.Parse(t.DSN); err != nil || u.Host == "" {
		errs = append(errs, "telemetry.dsn is not a valid DSN")
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("telemetry.samplerate must be between 0 and 1, got %g", t.SampleRate))
	}
	return errs
}

func validateMetricsSettings(s *Settings) []string {
	m := &s.Metrics
	if !m.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(m.Listen); err != nil {
		return []string{fmt.Sprintf("metrics.listen %q: %v", m.Listen, err)}
	}
	return nil
}
