// Package dashboard implements the command rendering the bird detection dashboard.
package dashboard

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/naturethrive/birdmonitor/internal/backend"
	"github.com/naturethrive/birdmonitor/internal/buildinfo"
	"github.com/naturethrive/birdmonitor/internal/conf"
	session "github.com/naturethrive/birdmonitor/internal/dashboard"
	"github.com/naturethrive/birdmonitor/internal/errors"
	"github.com/naturethrive/birdmonitor/internal/logger"
	"github.com/naturethrive/birdmonitor/internal/observability"
	"github.com/naturethrive/birdmonitor/internal/observability/metrics"
	"github.com/naturethrive/birdmonitor/internal/orchestrator"
	"github.com/naturethrive/birdmonitor/internal/render"
	"github.com/naturethrive/birdmonitor/internal/telemetry"
	"github.com/naturethrive/birdmonitor/internal/viewstate"
)

// heartbeatGrace is how long a render waits for the server clock before
// showing the loading placeholder instead.
const (
	heartbeatGrace = 500 * time.Millisecond
	heartbeatPoll  = 20 * time.Millisecond
)

// Command creates a new command rendering the dashboard.
func Command(settings *conf.Settings, v *viper.Viper, build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Render the bird detection dashboard",
		Long: "Loads the summary or analytics view from the backend and renders it as tables, " +
			"optionally exporting PNG charts and reloading periodically until interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("metrics-addr") {
				settings.Metrics.Enabled = true
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return Run(ctx, settings, build, cmd.OutOrStdout(), logger.Global().Module("birdmonitor"))
		},
	}

	if err := setupFlags(cmd, v); err != nil {
		panic(err)
	}
	return cmd
}

// setupFlags configures flags specific to the dashboard command.
func setupFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := cmd.Flags()
	flags.String("view", conf.DefaultView, "View to load: summary or analytics")
	flags.String("species", "", "Species to select in the summary view (default: most detected)")
	flags.String("chart-dir", "", "Directory to export PNG charts into")
	flags.Duration("reload-every", 0, "Reload all data at this interval until interrupted (0 renders once)")
	flags.String("metrics-addr", conf.DefaultMetricsListen, "Serve Prometheus metrics on this address")
	flags.Bool("color", true, "Colorize output (NO_COLOR disables)")

	return conf.BindFlags(v, flags, map[string]string{
		"dashboard.view":        "view",
		"dashboard.species":     "species",
		"dashboard.chartdir":    "chart-dir",
		"dashboard.reloadevery": "reload-every",
		"dashboard.color":       "color",
		"metrics.listen":        "metrics-addr",
	})
}

// Run mounts a session against the configured backend and renders it to out.
// Without a reload interval it renders once and returns the view's failure,
// if any; otherwise it reloads and re-renders until ctx is cancelled.
func Run(ctx context.Context, settings *conf.Settings, build *buildinfo.Context, out io.Writer, log logger.Logger) error {
	if log == nil {
		log = logger.NewNopLogger()
	}

	mode, err := viewstate.ParseMode(settings.Dashboard.View)
	if err != nil {
		return errors.New(err).Component("cmd").Category(errors.CategoryValidation).Build()
	}
	loc, err := settings.Dashboard.Location()
	if err != nil {
		return errors.New(err).Component("cmd").Category(errors.CategoryConfiguration).Build()
	}

	if err := telemetry.Init(telemetry.Config{
		Enabled:     settings.Telemetry.Enabled,
		DSN:         settings.Telemetry.DSN,
		Environment: settings.Telemetry.Environment,
		Release:     build.ReleaseVersion(),
		SampleRate:  settings.Telemetry.SampleRate,
		Debug:       settings.Debug,
	}, log); err != nil {
		return err
	}
	defer telemetry.Shutdown()

	var (
		backendMetrics   *metrics.BackendMetrics
		dashboardMetrics *metrics.DashboardMetrics
	)
	if settings.Metrics.Enabled {
		m, err := observability.NewMetrics()
		if err != nil {
			return err
		}
		backendMetrics, dashboardMetrics = m.Backend, m.Dashboard

		endpoint, err := observability.NewEndpoint(settings.Metrics.Listen, m, log)
		if err != nil {
			return err
		}
		epCtx, cancel := context.WithCancel(ctx)
		if err := endpoint.Start(epCtx); err != nil {
			cancel()
			return err
		}
		defer func() {
			cancel()
			endpoint.Wait()
		}()
	}

	client, err := backend.New(backend.Config{
		BaseURL:        settings.Backend.BaseURL,
		Timeout:        settings.Backend.Timeout,
		MaxRetries:     settings.Backend.MaxRetries,
		InitialBackoff: settings.Backend.InitialBackoff,
		MaxBackoff:     settings.Backend.MaxBackoff,
		RateLimit:      settings.Backend.RateLimit,
		Burst:          settings.Backend.Burst,
		MaxBodyBytes:   settings.Backend.MaxBodyBytes,
		UserAgent:      "birdmonitor/" + build.GetVersion(),
	}, log, backendMetrics)
	if err != nil {
		return err
	}
	defer client.Close()

	s := session.NewSession(client, session.Options{
		Logger:  log,
		Metrics: dashboardMetrics,
		Mode:    mode,
	})
	defer s.Close()

	d := &display{
		session: s,
		text:    render.NewText(out, render.ResolveColors(settings.Dashboard.Color), loc),
		log:     log.Module("cmd"),
	}
	if settings.Dashboard.ChartDir != "" {
		d.charts = render.NewCharts(settings.Dashboard.ChartDir, log)
	}

	d.log.Info("dashboard started",
		logger.String("view", mode.String()),
		logger.String("backend", logger.RedactSensitiveData(settings.Backend.BaseURL)),
		logger.Duration("reload_every", settings.Dashboard.ReloadEvery),
		logger.Bool("metrics", settings.Metrics.Enabled))

	outcome := s.Mount(ctx)
	d.selectSpecies(settings.Dashboard.Species)
	if err := d.draw(ctx, outcome); err != nil {
		return err
	}

	if settings.Dashboard.ReloadEvery <= 0 {
		if outcome.State == orchestrator.Failed {
			return outcome.Cause
		}
		return nil
	}

	ticker := time.NewTicker(settings.Dashboard.ReloadEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			d.log.Info("dashboard stopped")
			return nil
		case <-ticker.C:
			outcome = s.Reload(ctx)
			if ctx.Err() != nil {
				return nil
			}
			if err := d.draw(ctx, outcome); err != nil {
				return err
			}
		}
	}
}

// display renders session frames as text and, optionally, charts.
type display struct {
	session *session.Session
	text    *render.Text
	charts  *render.Charts
	log     logger.Logger
}

func (d *display) selectSpecies(species string) {
	if species == "" {
		return
	}
	if _, err := d.session.Select(species); err != nil {
		d.log.Warn("species not selectable, keeping default selection",
			logger.String("species", species),
			logger.Error(err))
	}
}

func (d *display) draw(ctx context.Context, outcome orchestrator.Outcome) error {
	if outcome.State == orchestrator.Ready {
		d.awaitHeartbeat(ctx)
	}

	frame := d.session.Frame()
	if err := d.text.Render(frame); err != nil {
		return err
	}

	if d.charts == nil || frame.State != orchestrator.Ready {
		return nil
	}
	paths, err := d.charts.Export(frame)
	if err != nil {
		return err
	}
	for _, p := range paths {
		d.log.Debug("chart written", logger.String("path", p))
	}
	return nil
}

// awaitHeartbeat gives an in-flight heartbeat a short chance to land so the
// status bar can show the server time.
func (d *display) awaitHeartbeat(ctx context.Context) {
	deadline := time.NewTimer(heartbeatGrace)
	defer deadline.Stop()
	poll := time.NewTicker(heartbeatPoll)
	defer poll.Stop()

	for d.session.ServerClock() == nil {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-poll.C:
		}
	}
}
