// Package reconciler runs a complete reconciliation over a set of
// transactions: it sorts them, runs refund and duplicate detection, and
// aggregates the matches into per-run and per-account summaries.
//
// Example usage:
//
//	engine, err := reconciler.NewEngine(reconciler.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	result, err := engine.Reconcile(ctx, transactions)
package reconciler

import (
	"context"
	stderrors "errors"
	"time"

	"golang.org/x/sync/errgroup"

	"statement-reconciler/internal/matcher"
	"statement-reconciler/internal/models"
	"statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"
)

// Stage identifies a step of a reconciliation run
type Stage int

const (
	StageSort Stage = iota
	StageRefundDetection
	StageDuplicateDetection
	StageAggregation
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageSort:
		return "sort"
	case StageRefundDetection:
		return matcher.StageRefundDetection
	case StageDuplicateDetection:
		return matcher.StageDuplicateDetection
	case StageAggregation:
		return "aggregation"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// Config holds the engine configuration
type Config struct {
	Matching *matcher.MatchingConfig `json:"matching"`

	// Parallel runs refund and duplicate detection concurrently
	Parallel bool `json:"parallel"`
}

// DefaultConfig returns the default matching thresholds with parallel detection
func DefaultConfig() *Config {
	return &Config{
		Matching: matcher.DefaultMatchingConfig(),
		Parallel: true,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c == nil {
		return errors.ConfigurationError(errors.CodeMissingConfig, "reconciler", nil, nil)
	}
	return c.Matching.Validate()
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	return &Config{
		Matching: c.Matching.Clone(),
		Parallel: c.Parallel,
	}
}

// RunStats describes how a run was executed. It is the only part of a
// Result that differs between two runs on the same input.
type RunStats struct {
	StartedAt          time.Time                `json:"started_at"`
	ProcessingDuration time.Duration            `json:"processing_duration"`
	StageDurations     map[string]time.Duration `json:"stage_durations"`
	Parallel           bool                     `json:"parallel"`
}

// Result is the complete outcome of a reconciliation run
type Result struct {
	Refunds         []models.RefundMatch              `json:"refunds"`
	Duplicates      []models.DuplicateGroup           `json:"duplicates"`
	UnmatchedDebits []*models.Transaction             `json:"unmatched_debits"`
	Summary         models.Summary                    `json:"summary"`
	Accounts        map[string]*models.AccountSummary `json:"accounts"`
	Config          *Config                           `json:"config"`
	Stats           *RunStats                         `json:"stats,omitempty"`
}

// AccountIDs returns the ids of the accounts in the result, sorted
func (r *Result) AccountIDs() []string {
	agg := Aggregation{Accounts: r.Accounts}
	return agg.AccountIDs()
}

// WithoutStats returns a shallow copy of the result with run stats removed
func (r *Result) WithoutStats() *Result {
	clone := *r
	clone.Stats = nil
	return &clone
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithLogger sets the logger used for stage logging
func WithLogger(log logger.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.logger = log
		}
	}
}

// WithProgress forwards matcher progress to observer
func WithProgress(observer matcher.ProgressObserver) EngineOption {
	return func(e *Engine) {
		e.observer = observer
	}
}

// WithScorer overrides the similarity implementation selected by the config
func WithScorer(scorer matcher.SimilarityScorer) EngineOption {
	return func(e *Engine) {
		e.scorer = scorer
	}
}

// WithStageHook calls fn as the run enters each stage. With parallel
// detection both detection stages are entered before either runs.
func WithStageHook(fn func(Stage)) EngineOption {
	return func(e *Engine) {
		e.onStage = fn
	}
}

// Engine runs reconciliations. It holds no per-run state and is safe for
// concurrent use.
type Engine struct {
	config   *Config
	logger   logger.Logger
	observer matcher.ProgressObserver
	scorer   matcher.SimilarityScorer
	onStage  func(Stage)
}

// NewEngine validates config and creates an engine
func NewEngine(config *Config, opts ...EngineOption) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		config: config.Clone(),
		logger: logger.GetGlobalLogger().WithComponent("reconciliation_engine"),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.logger.WithField("config", e.config.Matching.String()).Debug("Reconciliation engine created")
	return e, nil
}

// Config returns a copy of the engine configuration
func (e *Engine) Config() *Config {
	return e.config.Clone()
}

// Reconcile runs refund detection, duplicate detection and aggregation over
// transactions. The input is not modified. Either a complete result or a
// single error is returned.
func (e *Engine) Reconcile(ctx context.Context, transactions []*models.Transaction) (*Result, error) {
	op := logger.NewOperationLogger("reconcile", e.logger).
		WithField("transactions", len(transactions)).
		WithField("parallel", e.config.Parallel)

	stats := &RunStats{
		StartedAt:      time.Now(),
		StageDurations: make(map[string]time.Duration),
		Parallel:       e.config.Parallel,
	}

	fail := func(stage Stage, err error) (*Result, error) {
		rerr := stageError(stage, err)
		op.Error(rerr, "Reconciliation failed")
		return nil, rerr
	}

	if err := e.enter(ctx, StageSort); err != nil {
		return fail(StageSort, err)
	}
	started := time.Now()
	sorted := matcher.SortChronologically(transactions)
	stats.StageDurations[StageSort.String()] = time.Since(started)
	op.Step(StageSort.String(), nil)

	refunds, duplicates, stage, err := e.detect(ctx, sorted, stats)
	if err != nil {
		return fail(stage, err)
	}

	if err := e.enter(ctx, StageAggregation); err != nil {
		return fail(StageAggregation, err)
	}
	started = time.Now()
	agg := Aggregate(sorted, refunds, duplicates)
	stats.StageDurations[StageAggregation.String()] = time.Since(started)
	op.Step(StageAggregation.String(), logger.Fields{"accounts": len(agg.Accounts)})

	e.notify(StageDone)
	stats.ProcessingDuration = time.Since(stats.StartedAt)

	op.Success("Reconciliation completed", logger.Fields{
		"refunds":          len(refunds),
		"duplicate_groups": len(duplicates),
		"unmatched_debits": len(agg.UnmatchedDebits),
	})

	return &Result{
		Refunds:         refunds,
		Duplicates:      duplicates,
		UnmatchedDebits: agg.UnmatchedDebits,
		Summary:         agg.Summary,
		Accounts:        agg.Accounts,
		Config:          e.config.Clone(),
		Stats:           stats,
	}, nil
}

// detect runs both matchers and reports the stage that failed, if any
func (e *Engine) detect(ctx context.Context, sorted []*models.Transaction, stats *RunStats) ([]models.RefundMatch, []models.DuplicateGroup, Stage, error) {
	opts := []matcher.Option{matcher.WithProgress(e.observer)}
	refundMatcher := matcher.NewRefundMatcher(opts...)
	duplicateMatcher := matcher.NewDuplicateMatcher(e.config.Matching, append(opts, matcher.WithScorer(e.scorer))...)

	var (
		refunds                         []models.RefundMatch
		duplicates                      []models.DuplicateGroup
		refundElapsed, duplicateElapsed time.Duration
	)

	runRefunds := func(ctx context.Context) error {
		started := time.Now()
		var err error
		refunds, err = refundMatcher.Match(ctx, sorted)
		refundElapsed = time.Since(started)
		return err
	}
	runDuplicates := func(ctx context.Context) error {
		started := time.Now()
		var err error
		duplicates, err = duplicateMatcher.Match(ctx, sorted)
		duplicateElapsed = time.Since(started)
		return err
	}

	if e.config.Parallel {
		if err := e.enter(ctx, StageRefundDetection); err != nil {
			return nil, nil, StageRefundDetection, err
		}
		e.notify(StageDuplicateDetection)

		var refundErr, duplicateErr error
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			refundErr = runRefunds(gctx)
			return refundErr
		})
		g.Go(func() error {
			duplicateErr = runDuplicates(gctx)
			return duplicateErr
		})
		if err := g.Wait(); err != nil {
			// Wait returns the first failure, which cancels the other matcher
			if refundErr != nil && (duplicateErr == nil || stderrors.Is(err, refundErr)) {
				return nil, nil, StageRefundDetection, err
			}
			return nil, nil, StageDuplicateDetection, err
		}
	} else {
		if err := e.enter(ctx, StageRefundDetection); err != nil {
			return nil, nil, StageRefundDetection, err
		}
		if err := runRefunds(ctx); err != nil {
			return nil, nil, StageRefundDetection, err
		}
		if err := e.enter(ctx, StageDuplicateDetection); err != nil {
			return nil, nil, StageDuplicateDetection, err
		}
		if err := runDuplicates(ctx); err != nil {
			return nil, nil, StageDuplicateDetection, err
		}
	}

	stats.StageDurations[StageRefundDetection.String()] = refundElapsed
	stats.StageDurations[StageDuplicateDetection.String()] = duplicateElapsed

	e.logger.WithFields(logger.Fields{
		"refunds":          len(refunds),
		"duplicate_groups": len(duplicates),
	}).Debug("Detection finished")

	return refunds, duplicates, StageDuplicateDetection, nil
}

// enter checks for cancellation and then notifies the stage hook
func (e *Engine) enter(ctx context.Context, stage Stage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.notify(stage)
	return nil
}

func (e *Engine) notify(stage Stage) {
	if e.onStage != nil {
		e.onStage(stage)
	}
}

func isContextError(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}

func stageError(stage Stage, err error) *errors.ReconcilerError {
	if isContextError(err) {
		return errors.ReconciliationError(errors.CodeCancelled, stage.String(), err)
	}
	return errors.WrapIfNeeded(err, errors.CategoryReconciliation, errors.CodeStageFailed, "reconciliation stage failed: "+stage.String())
}
