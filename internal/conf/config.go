// Package conf loads birdmonitor settings from defaults, an optional YAML
// file, BIRDMONITOR_ environment variables and command line flags.
package conf

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/naturethrive/birdmonitor/internal/errors"
	"github.com/naturethrive/birdmonitor/internal/logger"
	"github.com/naturethrive/birdmonitor/internal/secrets"
)

const (
	// ConfigName is the base name of the config file searched in the config paths.
	ConfigName = "birdmonitor"
	// EnvPrefix prefixes every environment override, e.g. BIRDMONITOR_BACKEND_BASEURL.
	EnvPrefix = "BIRDMONITOR"

	redacted = "[REDACTED]"
)

// Settings is the effective configuration.
type Settings struct {
	Debug bool `yaml:"debug" mapstructure:"debug"`

	Backend   BackendSettings      `yaml:"backend" mapstructure:"backend"`
	Dashboard DashboardSettings    `yaml:"dashboard" mapstructure:"dashboard"`
	Logging   logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Telemetry TelemetrySettings    `yaml:"telemetry" mapstructure:"telemetry"`
	Metrics   MetricsSettings      `yaml:"metrics" mapstructure:"metrics"`
}

// BackendSettings configures the data backend client.
type BackendSettings struct {
	BaseURL        string        `yaml:"baseurl" mapstructure:"baseurl"`               // backend root, endpoints are joined onto it
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"`               // per request timeout
	MaxRetries     int           `yaml:"maxretries" mapstructure:"maxretries"`         // retries after the first attempt
	InitialBackoff time.Duration `yaml:"initialbackoff" mapstructure:"initialbackoff"` // first retry delay, doubled per attempt
	MaxBackoff     time.Duration `yaml:"maxbackoff" mapstructure:"maxbackoff"`
	RateLimit      float64       `yaml:"ratelimit" mapstructure:"ratelimit"` // requests per second, 0 disables pacing
	Burst          int           `yaml:"burst" mapstructure:"burst"`
	MaxBodyBytes   int64         `yaml:"maxbodybytes" mapstructure:"maxbodybytes"`
}

// DashboardSettings configures the dashboard command.
type DashboardSettings struct {
	View        string        `yaml:"view" mapstructure:"view"`       // summary or analytics
	Species     string        `yaml:"species" mapstructure:"species"` // initial selection, empty selects the top species
	ChartDir    string        `yaml:"chartdir" mapstructure:"chartdir"`
	ReloadEvery time.Duration `yaml:"reloadevery" mapstructure:"reloadevery"` // 0 renders once and exits
	Color       bool          `yaml:"color" mapstructure:"color"`
	Timezone    string        `yaml:"timezone" mapstructure:"timezone"` // "Local", "UTC" or an IANA name
}

// TelemetrySettings configures Sentry error reporting.
type TelemetrySettings struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// DSN may reference environment variables as ${VAR}; DSNFile, when set,
	// takes precedence and names a file holding the DSN.
	DSN         string  `yaml:"dsn" mapstructure:"dsn"`
	DSNFile     string  `yaml:"dsnfile" mapstructure:"dsnfile"`
	Environment string  `yaml:"environment" mapstructure:"environment"`
	SampleRate  float64 `yaml:"samplerate" mapstructure:"samplerate"`
}

// MetricsSettings configures the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Listen  string `yaml:"listen" mapstructure:"listen"`
}

// Location resolves the dashboard timezone.
func (d *DashboardSettings) Location() (*time.Location, error) {
	switch d.Timezone {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	default:
		return time.LoadLocation(d.Timezone)
	}
}

// NewViper returns a viper instance carrying defaults and environment
// bindings. Flags are bound onto it by the caller before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaultConfig(v)
	bindEnv(v)
	return v
}

// Load reads the config file (configFile, or birdmonitor.yaml in the default
// paths), unmarshals onto Settings and validates the result. A missing
// default config file is not an error; a missing explicit one is.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	if err := checkEnv(); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := readConfigFile(v, configFile); err != nil {
		return nil, err
	}

	settings := new(Settings)
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	dsn, err := secrets.Resolve(settings.Telemetry.DSNFile, settings.Telemetry.DSN)
	if err != nil {
		return nil, errors.New(fmt.Errorf("error resolving telemetry.dsn: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	settings.Telemetry.DSN = dsn

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryValidation).
			Context("config_file", v.ConfigFileUsed()).
			Build()
	}
	return settings, nil
}

func readConfigFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		for _, path := range DefaultConfigPaths() {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return errors.New(fmt.Errorf("error reading config file: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("config_file", configFile).
			Build()
	}
	return nil
}

// DefaultConfigPaths lists the directories searched for birdmonitor.yaml,
// most specific first.
func DefaultConfigPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, ConfigName))
	}
	return append(paths, filepath.Join("/etc", ConfigName))
}

// WriteYAML prints settings as YAML with secrets redacted.
func WriteYAML(w io.Writer, settings *Settings) error {
	out := *settings
	if out.Telemetry.DSN != "" {
		out.Telemetry.DSN = redacted
	}
	out.Backend.BaseURL = logger.RedactSensitiveData(out.Backend.BaseURL)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&out); err != nil {
		return fmt.Errorf("error encoding settings: %w", err)
	}
	return enc.Close()
}

// normalizeKey maps a dotted config key onto its environment variable.
func normalizeKey(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// BindFlags binds command line flags onto config keys. bindings maps a
// config key to a flag name; a flag given on the command line overrides the
// environment and the config file.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, bindings map[string]string) error {
	for key, name := range bindings {
		flag := flags.Lookup(name)
		if flag == nil {
			return fmt.Errorf("flag --%s is not defined", name)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("error binding flag --%s: %w", name, err)
		}
	}
	return nil
}
