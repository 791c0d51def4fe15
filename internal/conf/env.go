package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding ties a config key to its environment variable.
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

// envBindings lists the keys that may be overridden from the environment.
// SENTRY_DSN is honored as an alias so existing deployments keep working.
func envBindings() []envBinding {
	bindings := []envBinding{
		{ConfigKey: "debug", Validate: validateEnvBool},

		{ConfigKey: "backend.baseurl", Validate: validateEnvURL},
		{ConfigKey: "backend.timeout", Validate: validateEnvDuration},
		{ConfigKey: "backend.maxretries", Validate: validateEnvNonNegativeInt},
		{ConfigKey: "backend.initialbackoff", Validate: validateEnvDuration},
		{ConfigKey: "backend.maxbackoff", Validate: validateEnvDuration},
		{ConfigKey: "backend.ratelimit", Validate: validateEnvNonNegativeFloat},
		{ConfigKey: "backend.burst", Validate: validateEnvNonNegativeInt},
		{ConfigKey: "backend.maxbodybytes", Validate: validateEnvNonNegativeInt},

		{ConfigKey: "dashboard.view"},
		{ConfigKey: "dashboard.species"},
		{ConfigKey: "dashboard.chartdir"},
		{ConfigKey: "dashboard.reloadevery", Validate: validateEnvDuration},
		{ConfigKey: "dashboard.color", Validate: validateEnvBool},
		{ConfigKey: "dashboard.timezone"},

		{ConfigKey: "logging.default_level"},
		{ConfigKey: "logging.console.level"},
		{ConfigKey: "logging.file_output.enabled", Validate: validateEnvBool},
		{ConfigKey: "logging.file_output.path"},

		{ConfigKey: "telemetry.enabled", Validate: validateEnvBool},
		{ConfigKey: "telemetry.dsn"},
		{ConfigKey: "telemetry.dsnfile"},
		{ConfigKey: "telemetry.environment"},
		{ConfigKey: "telemetry.samplerate", Validate: validateEnvNonNegativeFloat},

		{ConfigKey: "metrics.enabled", Validate: validateEnvBool},
		{ConfigKey: "metrics.listen"},
	}
	for i := range bindings {
		bindings[i].EnvVar = normalizeKey(bindings[i].ConfigKey)
	}
	return bindings
}

func bindEnv(v *viper.Viper) {
	for _, b := range envBindings() {
		// BindEnv only fails without a key, which the table always has.
		_ = v.BindEnv(b.ConfigKey, b.EnvVar)
	}
	_ = v.BindEnv("telemetry.dsn", normalizeKey("telemetry.dsn"), "SENTRY_DSN")
}

// checkEnv validates the environment overrides that are set and reports all
// problems at once.
func checkEnv() error {
	var problems []string
	for _, b := range envBindings() {
		if b.Validate == nil {
			continue
		}
		value, ok := os.LookupEnv(b.EnvVar)
		if !ok || value == "" {
			continue
		}
		if err := b.Validate(value); err != nil {
			problems = append(problems, fmt.Sprintf("invalid %s value %q: %v", b.EnvVar, value, err))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true/false, 1/0, t/f")
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("must be a duration such as 500ms or 2s")
	}
	if d < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validateEnvNonNegativeInt(value string) error {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	if n < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validateEnvNonNegativeFloat(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if f < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
