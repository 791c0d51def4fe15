package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/naturethrive/birdmonitor/internal/backend"
	"github.com/naturethrive/birdmonitor/internal/logger"
)

// Default values that are not owned by another package.
const (
	DefaultBaseURL       = "http://localhost:5000"
	DefaultView          = "summary"
	DefaultMetricsListen = "127.0.0.1:9464"
	DefaultSampleRate    = 1.0
)

// setDefaultConfig registers every key so AutomaticEnv and Unmarshal see it.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("backend.baseurl", DefaultBaseURL)
	v.SetDefault("backend.timeout", backend.DefaultTimeout)
	v.SetDefault("backend.maxretries", backend.DefaultMaxRetries)
	v.SetDefault("backend.initialbackoff", backend.DefaultInitialBackoff)
	v.SetDefault("backend.maxbackoff", backend.DefaultMaxBackoff)
	v.SetDefault("backend.ratelimit", 0.0)
	v.SetDefault("backend.burst", 1)
	v.SetDefault("backend.maxbodybytes", int64(backend.DefaultMaxBodyBytes))

	v.SetDefault("dashboard.view", DefaultView)
	v.SetDefault("dashboard.species", "")
	v.SetDefault("dashboard.chartdir", "")
	v.SetDefault("dashboard.reloadevery", time.Duration(0))
	v.SetDefault("dashboard.color", true)
	v.SetDefault("dashboard.timezone", "Local")

	v.SetDefault("logging.default_level", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.console.stderr", true)
	v.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	v.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	v.SetDefault("logging.file_output.level", logger.DefaultLogLevel)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.dsn", "")
	v.SetDefault("telemetry.dsnfile", "")
	v.SetDefault("telemetry.environment", "production")
	v.SetDefault("telemetry.samplerate", DefaultSampleRate)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", DefaultMetricsListen)
}
