package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"harmony/internal/compare"
	"harmony/internal/config"
	"harmony/internal/consistency"
	"harmony/internal/logging"
	"harmony/internal/merge"
	"harmony/internal/metadata"
	"harmony/internal/report"
	"harmony/internal/services"
	"harmony/internal/similarity"
	"harmony/internal/store"
)

// Library is the library content provider.
type Library interface {
	// FetchPage returns the page at cursor. The empty cursor is the first
	// page; the returned Next is empty once the listing is exhausted. On
	// error a non-empty Next names the page after the failed one so the
	// listing can continue past it.
	FetchPage(ctx context.Context, cursor string) (metadata.Page, error)
	// Apply writes field of rec back to the library.
	Apply(ctx context.Context, rec metadata.Record, field metadata.Field) error
}

// ResumeFunc decides whether a pending run is resumed (true) or discarded
// and restarted (false).
type ResumeFunc func(ctx context.Context, pending RunState) (bool, error)

// Coordinator drives harmonization runs.
type Coordinator struct {
	store   *store.Store
	library Library
	logger  *slog.Logger

	matcher    similarity.Matcher
	comparator *compare.Comparator
	resolver   *merge.Resolver
	validator  *consistency.Validator

	progress    ProgressFunc
	resume      ResumeFunc
	forceRescan bool
	now         func() time.Time
	window      *rateWindow
	sampler     *logging.ProgressSampler
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithProgress registers a per-unit progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Coordinator) { c.progress = fn }
}

// WithResumeDecision registers the resume-or-restart decision. Without one
// a pending run is resumed.
func WithResumeDecision(fn ResumeFunc) Option {
	return func(c *Coordinator) { c.resume = fn }
}

// WithForceRescan discards any pending run without asking.
func WithForceRescan(force bool) Option {
	return func(c *Coordinator) { c.forceRescan = force }
}

// WithMatcher replaces the similarity matcher.
func WithMatcher(m similarity.Matcher) Option {
	return func(c *Coordinator) {
		if m != nil {
			c.matcher = m
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// New builds a coordinator over a store and a library.
func New(st *store.Store, library Library, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   st,
		library: library,
		logger:  logging.NewNop(),
		matcher: similarity.New(),
		now:     time.Now,
		window:  newRateWindow(defaultRateWindow),
		sampler: logging.NewProgressSampler(10),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "pipeline")
	c.comparator = compare.New(c.matcher)
	c.resolver = merge.NewResolver()
	c.validator = consistency.New()
	return c
}

type phaseFunc func(ctx context.Context, state *RunState, logger *slog.Logger) error

func (c *Coordinator) phaseHandler(p Phase) phaseFunc {
	switch p {
	case PhaseScanning:
		return c.scan
	case PhaseDetecting:
		return c.detect
	case PhaseComparing:
		return c.compareGroups
	case PhaseMerging:
		return c.resolve
	case PhaseValidating:
		return c.validate
	default:
		return nil
	}
}

// Run executes a harmonization run and returns its completion report. An
// invalid threshold fails before any phase starts. When a run fails part
// way the returned report covers the work done so far and the checkpoint
// stays in place for a later resume.
func (c *Coordinator) Run(ctx context.Context, mode merge.Mode, threshold float64) (*report.CompletionReport, error) {
	if err := config.ValidateThreshold(threshold); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "startup", "threshold", "", err)
	}
	if _, err := merge.ParseMode(string(mode)); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "startup", "mode", "", err)
	}

	state, err := c.startState(ctx, mode, threshold)
	if err != nil {
		return nil, err
	}

	ctx = services.WithRunID(ctx, state.RunID)
	logger := logging.WithContext(ctx, c.logger)
	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("mode", string(state.Mode)),
		logging.Float64("threshold", state.Threshold),
		logging.Int("resumes", state.Resumes),
		logging.String("phase", string(state.Phase)),
	)

	for !state.Phase.Terminal() {
		if err := ctx.Err(); err != nil {
			return c.partialReport(ctx, state), err
		}
		if err := c.executePhase(ctx, state); err != nil {
			err = c.handlePhaseFailure(ctx, state, err)
			return c.partialReport(ctx, state), err
		}
		state.Phase = state.Phase.Next()
		if err := c.checkpoint(ctx, state); err != nil {
			return c.partialReport(ctx, state), err
		}
	}

	rep, err := c.buildReport(ctx, state)
	if err != nil {
		return nil, err
	}
	if err := c.store.ClearCheckpoint(ctx); err != nil {
		return rep, err
	}
	logger.Info("run completed",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("scanned", rep.TotalScanned),
		logging.Int("applied", rep.Updates.Applied),
		logging.Int("failed", rep.Updates.Failed),
		logging.Int("manual_review", rep.ManualReview),
		logging.Bool("validation_passed", rep.Validation.Passed),
		logging.String("duration", rep.Duration),
	)
	return rep, nil
}

// startState resumes the pending run or starts a new one.
func (c *Coordinator) startState(ctx context.Context, mode merge.Mode, threshold float64) (*RunState, error) {
	pending, err := LoadState(ctx, c.store)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		resume := !c.forceRescan
		if resume && c.resume != nil {
			resume, err = c.resume(ctx, *pending)
			if err != nil {
				return nil, fmt.Errorf("resume decision: %w", err)
			}
		}
		if resume {
			if pending.Phase == PhaseFailed {
				pending.Phase = pending.FailedPhase
				pending.FailedPhase = ""
			}
			if !pending.Phase.Valid() || pending.Phase == PhaseFailed {
				pending.Phase = PhaseScanning
			}
			pending.Resumes++
			pending.LastError = ""
			if pending.Mode != mode || pending.Threshold != threshold {
				c.logger.Warn("resumed run keeps its original settings",
					logging.String(logging.FieldRunID, pending.RunID),
					logging.String("mode", string(pending.Mode)),
					logging.Float64("threshold", pending.Threshold),
					logging.String(logging.FieldEventType, "resume_settings"),
				)
			}
			c.logger.Info("resuming run",
				logging.String(logging.FieldRunID, pending.RunID),
				logging.String("phase", string(pending.Phase)),
				logging.String(logging.FieldEventType, "run_resume"),
			)
			return pending, saveState(ctx, c.store, pending, c.now())
		}
		c.logger.Info("discarding pending run",
			logging.String(logging.FieldRunID, pending.RunID),
			logging.String("phase", string(pending.Phase)),
			logging.String(logging.FieldEventType, "run_restart"),
		)
		if err := c.store.ClearCheckpoint(ctx); err != nil {
			return nil, err
		}
	}
	state := newRunState(uuid.NewString(), mode, threshold, c.now())
	return state, saveState(ctx, c.store, state, c.now())
}

func (c *Coordinator) executePhase(ctx context.Context, state *RunState) error {
	handler := c.phaseHandler(state.Phase)
	if handler == nil {
		return services.Wrap(services.ErrDataIntegrity, string(state.Phase), "dispatch", "no handler for phase", nil)
	}
	requestID := uuid.NewString()
	phaseCtx := services.WithRequestID(services.WithPhase(ctx, string(state.Phase)), requestID)
	logger := logging.WithContext(phaseCtx, c.logger)

	start := c.now()
	c.window.reset(start)
	c.sampler.Reset()
	logger.Info("phase started", logging.String(logging.FieldEventType, "phase_start"))
	if err := handler(phaseCtx, state, logger); err != nil {
		return err
	}
	logger.Info("phase completed",
		logging.String(logging.FieldEventType, "phase_complete"),
		logging.Duration("phase_duration", c.now().Sub(start)),
	)
	return nil
}

// handlePhaseFailure records err against the current phase. Fatal errors
// move the run to Failed; anything else leaves the phase in place so a
// resume retries it from the last checkpointed unit.
func (c *Coordinator) handlePhaseFailure(ctx context.Context, state *RunState, err error) error {
	phase := state.Phase
	logger := logging.WithContext(services.WithPhase(ctx, string(phase)), c.logger)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("run interrupted",
			logging.String(logging.FieldEventType, "run_interrupted"),
			logging.String(logging.FieldImpact, "checkpoint kept; resume continues from the last completed unit"),
		)
		return err
	}

	state.LastError = err.Error()
	state.addFailure(recordOf(err), phase, err)
	if services.IsFatal(err) {
		state.FailedPhase = phase
		state.Phase = PhaseFailed
	}
	logging.ErrorWithContext(logger, "phase failed", "phase_failure",
		logging.Alert("phase_failure"),
		logging.ErrorKind(err),
		logging.Bool("fatal", services.IsFatal(err)),
		logging.Error(err),
	)
	if saveErr := saveState(context.WithoutCancel(ctx), c.store, state, c.now()); saveErr != nil {
		return errors.Join(err, saveErr)
	}
	return err
}

// reportProgress notifies the callback and logs sampled progress.
func (c *Coordinator) reportProgress(ctx context.Context, state *RunState, current, total int, recordID string) {
	now := c.now()
	c.window.observe(now)
	p := Progress{
		RunID:    state.RunID,
		Phase:    state.Phase,
		Current:  current,
		Total:    total,
		RecordID: recordID,
	}
	if total > 0 {
		p.Percent = float64(current) / float64(total) * 100
		p.ETA = c.window.eta(total - current)
	}
	if c.progress != nil {
		c.progress(p)
	}
	if total > 0 && c.sampler.ShouldLog(p.Percent, string(state.Phase)) {
		logging.WithContext(ctx, c.logger).Info("phase progress",
			logging.String(logging.FieldEventType, "phase_progress"),
			logging.Int("current", current),
			logging.Int("total", total),
			logging.Float64(logging.FieldProgressPercent, p.Percent),
			logging.Duration(logging.FieldProgressETA, p.ETA),
		)
	}
}

func (c *Coordinator) checkpoint(ctx context.Context, state *RunState) error {
	return saveState(ctx, c.store, state, c.now())
}

func (c *Coordinator) enqueue(ctx context.Context, state *RunState, entry store.ReviewEntry) error {
	entry.RunID = state.RunID
	entry.FlaggedAt = c.now()
	if err := c.store.EnqueueReview(ctx, entry); err != nil {
		return fmt.Errorf("enqueue review for %s: %w", entry.RecordID, err)
	}
	return nil
}

// scannedRecords loads the pre-run state of every scanned record in id
// order, split into the records fit for harmonization and all of them.
func (c *Coordinator) scannedRecords(ctx context.Context, state *RunState) (usable, all []metadata.Record, err error) {
	all, err = c.store.Snapshots(ctx, state.RunID)
	if err != nil {
		return nil, nil, err
	}
	invalid := state.invalidSet()
	usable = make([]metadata.Record, 0, len(all))
	for _, r := range all {
		if _, bad := invalid[r.ID]; !bad {
			usable = append(usable, r)
		}
	}
	return usable, all, nil
}
