// Package telemetry provides opt-in, privacy-filtered error reporting to Sentry.
//
// When enabled, every error built through internal/errors is forwarded by the
// errors package reporter; locally recovered categories are never sent.
package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/naturethrive/birdmonitor/internal/errors"
	"github.com/naturethrive/birdmonitor/internal/logger"
)

const (
	componentName = "telemetry"

	DefaultFlushTimeout = 2 * time.Second
	defaultEnvironment  = "production"
)

// Config holds telemetry settings.
type Config struct {
	Enabled     bool
	DSN         string
	Environment string
	Release     string
	SampleRate  float64
	Debug       bool

	// Transport replaces the HTTP transport, used by tests
	Transport sentry.Transport
}

var (
	initMu      sync.Mutex
	initialized bool
)

// Init configures Sentry and installs the error reporter. A disabled config
// is a no-op. Init may be called again to reconfigure.
func Init(cfg Config, log logger.Logger) error {
	if log == nil {
		log = logger.NewNopLogger()
	}
	log = log.Module(componentName)

	if !cfg.Enabled {
		log.Debug("error telemetry disabled")
		return nil
	}
	if cfg.DSN == "" && cfg.Transport == nil {
		return errors.Newf("telemetry enabled without a DSN").
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 || sampleRate > 1 {
		sampleRate = 1.0
	}
	environment := cfg.Environment
	if environment == "" {
		environment = defaultEnvironment
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Transport:        cfg.Transport,
		SampleRate:       sampleRate,
		Debug:            cfg.Debug,
		AttachStacktrace: false,
		Environment:      environment,
		ServerName:       "",
		Release:          releaseName(cfg.Release),
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))

	initMu.Lock()
	initialized = true
	initMu.Unlock()

	log.Info("error telemetry enabled",
		logger.String("environment", environment),
		logger.Float64("sample_rate", sampleRate))
	return nil
}

// Enabled reports whether Init installed a reporter.
func Enabled() bool {
	initMu.Lock()
	defer initMu.Unlock()
	return initialized
}

// Flush waits for queued events to be delivered.
func Flush(timeout time.Duration) bool {
	if !Enabled() {
		return true
	}
	return sentry.Flush(timeout)
}

// Shutdown flushes pending events and uninstalls the reporter.
func Shutdown() {
	initMu.Lock()
	wasInitialized := initialized
	initialized = false
	initMu.Unlock()

	if !wasInitialized {
		return
	}
	errors.SetTelemetryReporter(nil)
	sentry.Flush(DefaultFlushTimeout)
}

func releaseName(version string) string {
	if version == "" {
		version = "dev"
	}
	return "birdmonitor@" + version
}

// applyPrivacyFilters strips host and user identifying data from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}
	return event
}
