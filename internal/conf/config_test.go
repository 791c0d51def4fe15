package conf

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/naturethrive/birdmonitor/internal/errors"
)

// isolate keeps the user's own config directory and environment out of the test.
func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, b := range envBindings() {
		t.Setenv(b.EnvVar, "")
		require.NoError(t, os.Unsetenv(b.EnvVar))
	}
	t.Setenv("SENTRY_DSN", "")
	require.NoError(t, os.Unsetenv("SENTRY_DSN"))
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "birdmonitor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	settings, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.False(t, settings.Debug)
	assert.Equal(t, DefaultBaseURL, settings.Backend.BaseURL)
	assert.Equal(t, 10*time.Second, settings.Backend.Timeout)
	assert.Equal(t, 2, settings.Backend.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, settings.Backend.InitialBackoff)
	assert.Equal(t, int64(8<<20), settings.Backend.MaxBodyBytes)
	assert.Equal(t, "summary", settings.Dashboard.View)
	assert.Zero(t, settings.Dashboard.ReloadEvery)
	assert.True(t, settings.Dashboard.Color)
	assert.Equal(t, "info", settings.Logging.DefaultLevel)
	require.NotNil(t, settings.Logging.Console)
	assert.True(t, settings.Logging.Console.Stderr)
	assert.False(t, settings.Telemetry.Enabled)
	assert.Equal(t, DefaultMetricsListen, settings.Metrics.Listen)
}

func TestLoadConfigFile(t *testing.T) {
	isolate(t)

	path := writeConfig(t, `
debug: true
backend:
  baseurl: https://birds.example.org/dashboard
  timeout: 3s
  maxretries: 4
  ratelimit: 5
  burst: 2
dashboard:
  view: analytics
  species: Robin
  reloadevery: 1m
  timezone: UTC
logging:
  default_level: debug
metrics:
  enabled: true
  listen: ":9100"
`)
	settings, err := Load(NewViper(), path)
	require.NoError(t, err)

	assert.True(t, settings.Debug)
	assert.Equal(t, "https://birds.example.org/dashboard", settings.Backend.BaseURL)
	assert.Equal(t, 3*time.Second, settings.Backend.Timeout)
	assert.Equal(t, 4, settings.Backend.MaxRetries)
	assert.InDelta(t, 5.0, settings.Backend.RateLimit, 0)
	assert.Equal(t, 2, settings.Backend.Burst)
	// Keys absent from the file keep their defaults.
	assert.Equal(t, 250*time.Millisecond, settings.Backend.InitialBackoff)
	assert.Equal(t, "analytics", settings.Dashboard.View)
	assert.Equal(t, "Robin", settings.Dashboard.Species)
	assert.Equal(t, time.Minute, settings.Dashboard.ReloadEvery)
	assert.Equal(t, "debug", settings.Logging.DefaultLevel)
	assert.True(t, settings.Metrics.Enabled)

	loc, err := settings.Dashboard.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadSearchesWorkingDirectory(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile("birdmonitor.yaml", []byte("dashboard:\n  species: Jay\n"), 0o600))

	v := NewViper()
	settings, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, "Jay", settings.Dashboard.Species)
	assert.NotEmpty(t, v.ConfigFileUsed())
}

func TestEnvironmentOverridesFile(t *testing.T) {
	isolate(t)

	path := writeConfig(t, "backend:\n  baseurl: http://file.example\n")
	t.Setenv("BIRDMONITOR_BACKEND_BASEURL", "http://env.example:8080")
	t.Setenv("BIRDMONITOR_DASHBOARD_VIEW", "analytics")
	t.Setenv("BIRDMONITOR_BACKEND_TIMEOUT", "750ms")

	settings, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, "http://env.example:8080", settings.Backend.BaseURL)
	assert.Equal(t, "analytics", settings.Dashboard.View)
	assert.Equal(t, 750*time.Millisecond, settings.Backend.Timeout)
}

func TestSentryDSNAlias(t *testing.T) {
	isolate(t)
	t.Setenv("SENTRY_DSN", "https://key@sentry.example/1")
	t.Setenv("BIRDMONITOR_TELEMETRY_ENABLED", "true")

	settings, err := Load(NewViper(), "")
	require.NoError(t, err)
	assert.True(t, settings.Telemetry.Enabled)
	assert.Equal(t, "https://key@sentry.example/1", settings.Telemetry.DSN)
}

func TestTelemetryDSNFromFileAndEnvReference(t *testing.T) {
	isolate(t)

	dsnFile := filepath.Join(t.TempDir(), "sentry_dsn")
	require.NoError(t, os.WriteFile(dsnFile, []byte("https://file@sentry.example/1\n"), 0o600))
	t.Setenv("BM_TEST_SENTRY_KEY", "envkey")

	path := writeConfig(t, "telemetry:\n  enabled: true\n  dsn: https://${BM_TEST_SENTRY_KEY}@sentry.example/2\n")
	settings, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, "https://envkey@sentry.example/2", settings.Telemetry.DSN)

	t.Setenv("BIRDMONITOR_TELEMETRY_DSNFILE", dsnFile)
	settings, err = Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, "https://file@sentry.example/1", settings.Telemetry.DSN)

	t.Setenv("BIRDMONITOR_TELEMETRY_DSNFILE", filepath.Join(t.TempDir(), "absent"))
	_, err = Load(NewViper(), path)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestInvalidEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("BIRDMONITOR_BACKEND_MAXRETRIES", "-1")
	t.Setenv("BIRDMONITOR_DASHBOARD_COLOR", "sometimes")

	_, err := Load(NewViper(), "")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.Contains(t, err.Error(), "BIRDMONITOR_BACKEND_MAXRETRIES")
	assert.Contains(t, err.Error(), "BIRDMONITOR_DASHBOARD_COLOR")
}

func TestMissingExplicitConfigFile(t *testing.T) {
	isolate(t)

	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestValidationCollectsAllProblems(t *testing.T) {
	isolate(t)

	path := writeConfig(t, `
backend:
  baseurl: ftp://birds.example
  timeout: 0s
dashboard:
  view: weekly
  timezone: Mars/Olympus
telemetry:
  enabled: true
`)
	_, err := Load(NewViper(), path)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Errors, 5)
	assert.Contains(t, err.Error(), "backend.baseurl")
	assert.Contains(t, err.Error(), "unknown view")
	assert.Contains(t, err.Error(), "telemetry.dsn is required")
}

func TestValidateSettingsRules(t *testing.T) {
	t.Parallel()

	valid := func() *Settings {
		return &Settings{
			Backend: BackendSettings{
				BaseURL:        "http://localhost:5000",
				Timeout:        time.Second,
				InitialBackoff: time.Second,
				MaxBackoff:     2 * time.Second,
			},
			Dashboard: DashboardSettings{View: "summary"},
		}
	}
	require.NoError(t, ValidateSettings(valid()))

	tests := []struct {
		name   string
		mutate func(*Settings)
		want   string
	}{
		{"backoff inverted", func(s *Settings) { s.Backend.MaxBackoff = time.Millisecond }, "maxbackoff"},
		{"burst without rate", func(s *Settings) { s.Backend.RateLimit = 2 }, "burst"},
		{"negative reload", func(s *Settings) { s.Dashboard.ReloadEvery = -time.Second }, "reloadevery"},
		{"log level", func(s *Settings) { s.Logging.DefaultLevel = "loud" }, "not a log level"},
		{"sample rate", func(s *Settings) {
			s.Telemetry = TelemetrySettings{Enabled: true, DSN: "https://k@sentry.example/1", SampleRate: 2}
		}, "samplerate"},
		{"metrics listen", func(s *Settings) { s.Metrics = MetricsSettings{Enabled: true, Listen: "9100"} }, "metrics.listen"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := valid()
			tt.mutate(s)
			err := ValidateSettings(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWriteYAMLRedactsSecrets(t *testing.T) {
	isolate(t)
	t.Setenv("BIRDMONITOR_TELEMETRY_DSN", "https://secretkey@sentry.example/1")
	t.Setenv("BIRDMONITOR_BACKEND_BASEURL", "http://localhost:5000/?token=abcdef123")

	settings, err := Load(NewViper(), "")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, settings))
	out := buf.String()

	assert.NotContains(t, out, "secretkey")
	assert.NotContains(t, out, "abcdef123")
	assert.Contains(t, out, "reloadevery: 0s")
	// The caller's settings are left untouched.
	assert.Equal(t, "https://secretkey@sentry.example/1", settings.Telemetry.DSN)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Contains(t, decoded, "backend")
	assert.Contains(t, decoded, "dashboard")
}

func TestBindFlagsOverrideEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("BIRDMONITOR_DASHBOARD_VIEW", "analytics")
	t.Setenv("BIRDMONITOR_DASHBOARD_SPECIES", "Jay")

	v := NewViper()
	flags := pflag.NewFlagSet("dashboard", pflag.ContinueOnError)
	flags.String("view", DefaultView, "")
	flags.String("species", "", "")
	require.NoError(t, BindFlags(v, flags, map[string]string{
		"dashboard.view":    "view",
		"dashboard.species": "species",
	}))
	require.NoError(t, flags.Parse([]string{"--view", "summary"}))

	settings, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, "summary", settings.Dashboard.View, "explicit flag wins")
	assert.Equal(t, "Jay", settings.Dashboard.Species, "unset flag defers to the environment")

	err = BindFlags(v, flags, map[string]string{"dashboard.chartdir": "chart-dir"})
	require.ErrorContains(t, err, "--chart-dir")
}
