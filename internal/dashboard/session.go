// Package dashboard ties the fetch orchestrator, the derived-data pipeline,
// the selection coordinator and the view-state machine into one session.
//
// A Session lives from Mount to Close. Every committed record sequence is run
// through the pipeline and handed to the coordinator before any frame can
// observe it, so a Frame never mixes data from two record versions.
package dashboard

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/naturethrive/birdmonitor/internal/aggregate"
	"github.com/naturethrive/birdmonitor/internal/dataset"
	"github.com/naturethrive/birdmonitor/internal/errors"
	"github.com/naturethrive/birdmonitor/internal/logger"
	"github.com/naturethrive/birdmonitor/internal/observability/metrics"
	"github.com/naturethrive/birdmonitor/internal/orchestrator"
	"github.com/naturethrive/birdmonitor/internal/selection"
	"github.com/naturethrive/birdmonitor/internal/viewstate"
)

const componentName = "dashboard"

// Options configures a Session. Every field is optional.
type Options struct {
	Logger  logger.Logger
	Metrics *metrics.DashboardMetrics
	// Mode is the initial view; Summary when unset
	Mode viewstate.Mode
}

// Frame is a consistent snapshot of everything a renderer needs.
type Frame struct {
	SessionID string
	Mode      viewstate.Mode
	State     orchestrator.State
	Cause     error

	// Clock is nil until a heartbeat has been received
	Clock *dataset.ServerClock

	// Version is the record version every derived field below belongs to
	Version   uint64
	Records   []dataset.DetectionRecord
	Ranking   []aggregate.SpeciesTotal
	Selection selection.View
	// Daily is diversity computed locally from the records
	Daily []dataset.DailyDiversityEntry

	Analytics dataset.Analytics
}

// Loading reports whether the active view has not become ready yet.
func (f Frame) Loading() bool {
	return f.State == orchestrator.Idle || f.State == orchestrator.Loading
}

// Session is one mounted dashboard.
type Session struct {
	id       string
	log      logger.Logger
	metrics  *metrics.DashboardMetrics
	orch     *orchestrator.Orchestrator
	machine  *viewstate.Machine
	pipeline *aggregate.Pipeline
	coord    *selection.Coordinator

	// mu orders record commits against frame reads
	mu        sync.RWMutex
	version   uint64
	records   []dataset.DetectionRecord
	deriveErr error
	mounted   bool
	closed    bool
}

// NewSession creates an unmounted session that fetches through fetcher.
func NewSession(fetcher orchestrator.Fetcher, opts Options) *Session {
	base := opts.Logger
	if base == nil {
		base = logger.NewNopLogger()
	}

	id := uuid.NewString()
	log := base.Module(componentName).With(logger.String("session_id", id))

	s := &Session{
		id:       id,
		log:      log,
		metrics:  opts.Metrics,
		machine:  viewstate.NewMachine(),
		pipeline: aggregate.NewPipeline(),
		coord:    selection.NewCoordinator(),
	}
	if opts.Mode.Valid() {
		_, _ = s.machine.SetMode(opts.Mode)
	}
	s.orch = orchestrator.New(fetcher, orchestrator.Options{
		Logger:   base.With(logger.String("session_id", id)),
		Metrics:  opts.Metrics,
		OnCommit: s.onCommit,
	})
	return s
}

// ID returns the session trace ID.
func (s *Session) ID() string {
	return s.id
}

// Context attaches the session trace ID to ctx.
func (s *Session) Context(ctx context.Context) context.Context {
	return logger.WithTraceID(ctx, s.id)
}

// Mount starts the session and loads the initial view.
func (s *Session) Mount(ctx context.Context) orchestrator.Outcome {
	s.mu.Lock()
	if !s.mounted && !s.closed {
		s.mounted = true
		s.metrics.SessionMounted()
	}
	s.mu.Unlock()

	mode := s.machine.Mode()
	s.log.Info("session mounted", logger.String("view", mode.String()))
	return s.orch.LoadView(s.Context(ctx), mode)
}

// SetMode switches the active view and loads whatever it still needs.
// Data already held is kept, so switching back and forth fetches nothing.
func (s *Session) SetMode(ctx context.Context, mode viewstate.Mode) (orchestrator.Outcome, error) {
	prev, err := s.machine.SetMode(mode)
	if err != nil {
		return orchestrator.Outcome{}, errors.New(err).
			Component(componentName).
			Category(errors.CategoryValidation).
			Build()
	}
	if prev != mode {
		s.log.Debug("view switched",
			logger.String("from", prev.String()),
			logger.String("to", mode.String()))
	}
	return s.orch.LoadView(s.Context(ctx), mode), nil
}

// Mode returns the active view.
func (s *Session) Mode() viewstate.Mode {
	return s.machine.Mode()
}

// Select changes the displayed species. An unknown species leaves the
// selection unchanged and returns an UnknownSpecies error.
func (s *Session) Select(species string) (selection.View, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view, err := s.coord.Select(species)
	if err != nil {
		s.metrics.RecordSelection(metrics.StatusError)
		s.log.Debug("selection rejected",
			logger.String("species", species),
			logger.String("kept", s.coord.Selected()))
		return view, err
	}
	s.metrics.RecordSelection(metrics.StatusSuccess)
	return view, nil
}

// Reload drops all held data and loads the active view again.
func (s *Session) Reload(ctx context.Context) orchestrator.Outcome {
	mode := s.machine.Mode()
	s.log.Info("reloading", logger.String("view", mode.String()))
	return s.orch.Reload(s.Context(ctx), mode)
}

// Frame returns a version-consistent snapshot of the session. Every dataset
// in it comes from one orchestrator snapshot; a record sequence committed
// there but not yet seen by onCommit is applied first.
func (s *Session) Frame() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.orch.Snapshot()
	if set.Has(dataset.Records) && set.RecordsVersion > s.version && !s.closed {
		s.applyLocked(set.RecordsVersion, set.Records)
	}

	f := Frame{
		SessionID: s.id,
		Mode:      s.machine.Mode(),
		State:     s.orch.State(),
		Cause:     s.orch.Cause(),
		Clock:     set.Clock,
		Analytics: set.Analytics,
	}
	if s.deriveErr != nil && f.Cause == nil {
		f.Cause = s.deriveErr
	}
	// Records dropped by a reload in progress are not shown next to newer data.
	if !set.Has(dataset.Records) || s.version != set.RecordsVersion || s.deriveErr != nil {
		return f
	}

	// Memoized: every frame of one record version shares a single computation.
	d, err := s.derive(s.version, s.records)
	if err != nil {
		f.Cause = err
		return f
	}
	f.Version = d.Version
	f.Records = s.records
	f.Ranking = aggregate.RankedTotals(d.Totals)
	f.Selection = s.coord.Current()
	f.Daily = d.Daily
	return f
}

// ServerClock returns the last heartbeat, or nil when none has arrived.
func (s *Session) ServerClock() *dataset.ServerClock {
	set := s.orch.Snapshot()
	return set.Clock
}

// Close unmounts the session. In-flight requests are cancelled and their
// results discarded. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	wasMounted := s.mounted
	s.mu.Unlock()

	s.orch.Close()
	if wasMounted {
		s.metrics.SessionClosed()
	}
	s.log.Info("session closed")
}

// onCommit recomputes derived data whenever a new record sequence lands.
func (s *Session) onCommit(c orchestrator.Commit) {
	if !c.HasRecords() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A Frame may have applied this version already.
	if s.closed || c.Set.RecordsVersion <= s.version {
		return
	}
	s.applyLocked(c.Set.RecordsVersion, c.Set.Records)
}

// applyLocked derives totals and ranking for a committed record sequence and
// hands them to the coordinator. s.mu must be held for writing.
func (s *Session) applyLocked(version uint64, records []dataset.DetectionRecord) {
	d, err := s.derive(version, records)
	if err != nil {
		s.deriveErr = err
		s.version = version
		s.records = nil
		s.coord.Reset(version, nil, nil)
		s.log.Error("derived data unavailable",
			logger.Int64("version", int64(version)),
			logger.Error(err))
		return
	}

	s.deriveErr = nil
	s.version = d.Version
	s.records = records
	view := s.coord.Reset(d.Version, records, d.Ranking)
	s.log.Debug("records committed",
		logger.Int64("version", int64(d.Version)),
		logger.Int("records", len(records)),
		logger.Int("species", d.Totals.Len()),
		logger.String("selected", view.Species))
}

func (s *Session) derive(version uint64, records []dataset.DetectionRecord) (*aggregate.Derived, error) {
	before := s.pipeline.Stats()
	d, err := s.pipeline.Derive(version, records)
	if s.pipeline.Stats().Hits > before.Hits {
		s.metrics.RecordMemo(metrics.MemoHit)
	} else {
		s.metrics.RecordMemo(metrics.MemoMiss)
	}
	return d, err
}
