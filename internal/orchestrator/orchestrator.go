// Package orchestrator loads the datasets a view needs and commits them atomically.
//
// A load moves the orchestrator through Idle, Loading and then Ready or Failed.
// Required datasets are joined with JoinAllOrNothing; the heartbeat is fetched
// on its own and never blocks or fails a view.
package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/naturethrive/birdmonitor/internal/dataset"
	"github.com/naturethrive/birdmonitor/internal/errors"
	"github.com/naturethrive/birdmonitor/internal/logger"
	"github.com/naturethrive/birdmonitor/internal/observability/metrics"
	"github.com/naturethrive/birdmonitor/internal/viewstate"
)

const componentName = "orchestrator"

// ErrClosed is the cause reported by loads attempted after Close.
var ErrClosed = errors.NewStd("orchestrator closed")

// Fetcher retrieves the raw body of a dataset.
type Fetcher interface {
	Fetch(ctx context.Context, id dataset.ID) ([]byte, error)
}

// State is the load state of the orchestrator.
type State int

const (
	Idle State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome is the result of one view load.
type Outcome struct {
	Mode  viewstate.Mode
	State State
	// Cause explains a Failed outcome
	Cause error
	// Fetched lists the required datasets requested by this load; empty when
	// everything was already held
	Fetched []dataset.ID
}

// Commit describes datasets that were just committed.
type Commit struct {
	IDs []dataset.ID
	Set dataset.Set
}

// HasRecords reports whether the commit replaced the record sequence.
func (c Commit) HasRecords() bool {
	return slices.Contains(c.IDs, dataset.Records)
}

// Options configures an Orchestrator. Every field is optional.
type Options struct {
	Logger  logger.Logger
	Metrics *metrics.DashboardMetrics
	// OnCommit runs after every commit, outside the orchestrator lock
	OnCommit func(Commit)
}

// Orchestrator owns the committed datasets of one session.
type Orchestrator struct {
	fetcher  Fetcher
	log      logger.Logger
	metrics  *metrics.DashboardMetrics
	onCommit func(Commit)

	// loadMu serializes LoadView and Reload
	loadMu sync.Mutex

	mu         sync.Mutex
	set        dataset.Set
	state      State
	cause      error
	generation uint64
	closed     bool

	// The heartbeat is tried once per generation, whether it succeeds or
	// not; only Reload starts a new generation.
	heartbeatTried   bool
	heartbeatPending bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an Orchestrator in the Idle state.
func New(fetcher Fetcher, opts Options) *Orchestrator {
	log := opts.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		fetcher:  fetcher,
		log:      log.Module(componentName),
		metrics:  opts.Metrics,
		onCommit: opts.OnCommit,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// LoadView makes mode ready. Datasets already held are not fetched again, so
// switching to a view whose data is held returns Ready without any request.
func (o *Orchestrator) LoadView(ctx context.Context, mode viewstate.Mode) Outcome {
	o.loadMu.Lock()
	defer o.loadMu.Unlock()
	return o.load(ctx, mode, false)
}

// Reload drops every held dataset and loads mode from scratch.
func (o *Orchestrator) Reload(ctx context.Context, mode viewstate.Mode) Outcome {
	o.loadMu.Lock()
	defer o.loadMu.Unlock()
	return o.load(ctx, mode, true)
}

func (o *Orchestrator) load(ctx context.Context, mode viewstate.Mode, reset bool) Outcome {
	if !mode.Valid() {
		return Outcome{Mode: mode, State: Failed, Cause: fmt.Errorf("unknown view %s", mode)}
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		o.metrics.RecordViewLoad(mode.String(), metrics.OutcomeDiscarded, 0)
		return Outcome{Mode: mode, State: Failed, Cause: ErrClosed}
	}
	if reset {
		o.set.Reset()
		o.generation++
		o.heartbeatTried = false
		o.heartbeatPending = false
		o.log.Info("held datasets dropped for reload", logger.String("view", mode.String()))
	}
	if !o.heartbeatTried && slices.Contains(viewstate.Requirements(mode), dataset.Heartbeat) {
		o.startHeartbeatLocked()
	}
	missing := o.set.Missing(viewstate.Required(mode))
	if len(missing) == 0 {
		o.state = Ready
		o.cause = nil
		o.mu.Unlock()
		o.metrics.RecordViewLoad(mode.String(), metrics.OutcomeCached, 0)
		o.log.Debug("view served from held data", logger.String("view", mode.String()))
		return Outcome{Mode: mode, State: Ready}
	}
	o.state = Loading
	o.cause = nil
	generation := o.generation
	o.mu.Unlock()

	start := time.Now()
	o.log.Debug("loading view",
		logger.String("view", mode.String()),
		logger.Strings("datasets", idStrings(missing)))

	loadCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(o.ctx, cancel)
	defer stop()

	results, err := JoinAllOrNothing(loadCtx, missing, o.fetchDecoded)
	elapsed := time.Since(start)

	o.mu.Lock()
	if o.closed || generation != o.generation {
		o.mu.Unlock()
		o.metrics.RecordViewLoad(mode.String(), metrics.OutcomeDiscarded, elapsed.Seconds())
		return Outcome{Mode: mode, State: Failed, Cause: ErrClosed, Fetched: missing}
	}

	if err != nil {
		cause := errors.Newf("%s view unavailable: %w", mode, err).
			Component(componentName).
			Context("view", mode.String()).
			Timing("load_view", elapsed).
			Build()
		o.state = Failed
		o.cause = cause
		o.mu.Unlock()

		o.metrics.RecordViewLoad(mode.String(), metrics.OutcomeFailed, elapsed.Seconds())
		o.log.Error("view load failed",
			logger.String("view", mode.String()),
			logger.Duration("elapsed", elapsed),
			logger.Error(err))
		return Outcome{Mode: mode, State: Failed, Cause: cause, Fetched: missing}
	}

	// Validate the whole batch on a copy so a bad value commits nothing.
	next := o.set.Clone()
	for _, id := range missing {
		if perr := next.Put(id, results[id]); perr != nil {
			o.state = Failed
			o.cause = perr
			o.mu.Unlock()
			o.metrics.RecordViewLoad(mode.String(), metrics.OutcomeFailed, elapsed.Seconds())
			return Outcome{Mode: mode, State: Failed, Cause: perr, Fetched: missing}
		}
	}
	o.set = next
	o.state = Ready
	commit := Commit{IDs: missing, Set: o.set.Clone()}
	o.mu.Unlock()

	o.metrics.RecordViewLoad(mode.String(), metrics.OutcomeReady, elapsed.Seconds())
	o.metrics.SetRecordsHeld(len(commit.Set.Records))
	o.log.Info("view ready",
		logger.String("view", mode.String()),
		logger.Int("datasets", len(missing)),
		logger.Strings("held", idStrings(commit.Set.Held())),
		logger.Duration("elapsed", elapsed))

	o.notify(commit)
	return Outcome{Mode: mode, State: Ready, Fetched: missing}
}

// fetchDecoded fetches one dataset and runs it through the decoders.
// Decode failures are reported exactly like fetch failures.
func (o *Orchestrator) fetchDecoded(ctx context.Context, id dataset.ID) (any, error) {
	body, err := o.fetcher.Fetch(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", id, err)
	}
	v, err := dataset.Decode(id, body)
	if err != nil {
		kind := string(errors.CategoryGeneric)
		var ee *errors.EnhancedError
		if errors.As(err, &ee) {
			kind = string(ee.Category)
		}
		o.metrics.RecordDecodeError(id.String(), kind)
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	return v, nil
}

// startHeartbeatLocked fetches the server clock in the background. The result
// is committed whenever it arrives unless the session closed or reloaded.
func (o *Orchestrator) startHeartbeatLocked() {
	o.heartbeatTried = true
	o.heartbeatPending = true
	generation := o.generation

	o.wg.Go(func() {
		v, err := o.fetchDecoded(o.ctx, dataset.Heartbeat)

		o.mu.Lock()
		if generation == o.generation {
			o.heartbeatPending = false
		}
		if o.closed || generation != o.generation {
			o.mu.Unlock()
			return
		}
		if err != nil {
			o.mu.Unlock()
			o.metrics.RecordHeartbeat(metrics.StatusError)
			o.log.Warn("heartbeat unavailable", logger.Error(err))
			return
		}
		if perr := o.set.Put(dataset.Heartbeat, v); perr != nil {
			o.mu.Unlock()
			o.log.Warn("heartbeat rejected", logger.Error(perr))
			return
		}
		commit := Commit{IDs: []dataset.ID{dataset.Heartbeat}, Set: o.set.Clone()}
		o.mu.Unlock()

		o.metrics.RecordHeartbeat(metrics.StatusSuccess)
		o.notify(commit)
	})
}

func (o *Orchestrator) notify(c Commit) {
	if o.onCommit != nil {
		o.onCommit(c)
	}
}

// State returns the current load state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Cause returns the reason for the last Failed state, or nil.
func (o *Orchestrator) Cause() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cause
}

// Snapshot returns a copy of the committed datasets.
func (o *Orchestrator) Snapshot() dataset.Set {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.set.Clone()
}

// Close cancels in-flight requests, waits for background fetches and
// discards any result that arrives afterwards. It is safe to call twice.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
}

func idStrings(ids []dataset.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
