// Package scheduler drives the periodic retention batch.
//
// A Processor runs one batch: it binds a privileged execution identity,
// releases stale claims, selects the due records, and for each one claims
// it, executes its disposal and marks it processed or releases it for the
// next run. A Scheduler triggers the Processor on a cron schedule.
//
// Overlapping runs are safe. The cron chain skips a tick while the previous
// one is still running in this process, and every record is claimed with an
// atomic active-to-processing transition before anything touches storage, so
// concurrent processes never act on the same record twice.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"mercator-hq/saturn/pkg/identity"
	"mercator-hq/saturn/pkg/retention"
	"mercator-hq/saturn/pkg/retention/executor"
	"mercator-hq/saturn/pkg/retention/store"
	"mercator-hq/saturn/pkg/telemetry/logging"
	"mercator-hq/saturn/pkg/telemetry/tracing"
)

const jobName = "retention.process"

const (
	markAttempts      = 3
	markRetryInterval = 50 * time.Millisecond
)

// Config contains configuration for retention processing.
type Config struct {
	// Schedule is a cron expression. Empty disables scheduled runs.
	// Example: "0 2 * * *" (daily at 2 AM)
	Schedule string

	// ClaimTimeout releases processing claims older than this at the start
	// of each run. 0 disables stale-claim recovery.
	ClaimTimeout time.Duration

	// BatchLimit caps the records handled per run. 0 means unlimited.
	BatchLimit int

	// ErrorThreshold is the number of failures above which a run escalates.
	ErrorThreshold int
}

// DefaultConfig returns the default processing configuration.
func DefaultConfig() *Config {
	return &Config{
		Schedule:       "0 2 * * *",
		ClaimTimeout:   time.Hour,
		BatchLimit:     0,
		ErrorThreshold: 5,
	}
}

// Recorder receives run and action metrics.
type Recorder interface {
	RecordRun(outcome string, dryRun bool, duration time.Duration, processed, errors int)
	RecordAction(action, status string)
}

// EscalationFunc is called when a run exceeds the error threshold.
type EscalationFunc func(ctx context.Context, report *RunReport)

// RunOptions controls a single run.
type RunOptions struct {
	// DryRun selects and reports due records without claiming, executing
	// or logging anything.
	DryRun bool
}

// RunReport aggregates the outcome of one run.
type RunReport struct {
	RunID          string             `json:"run_id"`
	DryRun         bool               `json:"dry_run"`
	StartedAt      time.Time          `json:"started_at"`
	Duration       time.Duration      `json:"duration"`
	TotalDue       int                `json:"total_due"`
	TotalProcessed int                `json:"total_processed"`
	TotalErrors    int                `json:"total_errors"`
	Skipped        int                `json:"skipped"`
	Reclaimed      int64              `json:"reclaimed"`
	PeakMemory     uint64             `json:"peak_memory_bytes"`
	Escalated      bool               `json:"escalated"`
	Items          []*executor.Result `json:"items"`
}

func (r *RunReport) add(res *executor.Result) {
	r.Items = append(r.Items, res)
	switch res.Status {
	case executor.StatusSuccess, executor.StatusPending:
		r.TotalProcessed++
	case executor.StatusFailed:
		r.TotalErrors++
	case executor.StatusSkipped:
		r.Skipped++
	}
}

// Processor runs retention batches.
type Processor struct {
	store      store.Store
	executor   *executor.Executor
	identities identity.Provider
	config     *Config
	now        func() time.Time
	recorder   Recorder
	escalate   EscalationFunc
	logger     *slog.Logger

	mu   sync.Mutex
	last *RunReport
}

// Option configures a Processor.
type Option func(*Processor)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Processor) { p.recorder = r }
}

// WithEscalation sets the hook called for runs over the error threshold.
func WithEscalation(fn EscalationFunc) Option {
	return func(p *Processor) { p.escalate = fn }
}

// NewProcessor creates a batch processor. A nil config uses DefaultConfig.
func NewProcessor(st store.Store, ex *executor.Executor, identities identity.Provider, config *Config, opts ...Option) *Processor {
	if config == nil {
		config = DefaultConfig()
	}
	p := &Processor{
		store:      st,
		executor:   ex,
		identities: identities,
		config:     config,
		now:        time.Now,
		logger:     slog.Default().With("component", "retention.scheduler"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes one batch pass.
//
// A missing execution identity aborts the run with a CriticalJobError before
// any record is claimed. Failures of individual records, including panics,
// are counted and never stop the batch. The identity is released when Run
// returns, whatever the outcome.
func (p *Processor) Run(ctx context.Context, opts RunOptions) (report *RunReport, err error) {
	start := p.now().UTC()
	report = &RunReport{
		RunID:     uuid.NewString(),
		DryRun:    opts.DryRun,
		StartedAt: start,
		Items:     []*executor.Result{},
	}
	ctx = logging.WithRunID(ctx, report.RunID)
	ctx, span := tracing.Start(ctx, "retention.run", tracing.RunAttributes(report.RunID, opts.DryRun))
	defer func() {
		tracing.SetRunTotals(span, report.TotalDue, report.TotalProcessed, report.TotalErrors)
		tracing.End(span, err)
	}()
	logger := p.logger.With("dry_run", opts.DryRun)

	exec, err := p.bind(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "retention run aborted", "error", err)
		p.record("aborted", report)
		return report, err
	}
	defer p.release(ctx, exec)

	mem := &memSampler{}
	mem.sample()

	if !opts.DryRun && p.config.ClaimTimeout > 0 {
		n, err := p.store.ReclaimStale(ctx, start.Add(-p.config.ClaimTimeout), start)
		if err != nil {
			logger.ErrorContext(ctx, "failed to release stale claims", "error", err)
			p.record("failed", report)
			return report, fmt.Errorf("failed to release stale claims: %w", err)
		}
		report.Reclaimed = n
		if n > 0 {
			logger.WarnContext(ctx, "released stale claims", "count", n)
		}
	}

	due, err := p.store.DueRecords(ctx, retention.Today(start), p.config.BatchLimit)
	if err != nil {
		logger.ErrorContext(ctx, "failed to select due records", "error", err)
		p.record("failed", report)
		return report, fmt.Errorf("failed to select due records: %w", err)
	}
	report.TotalDue = len(due)
	logger.InfoContext(ctx, "retention run started", "due", len(due))

	policies := make(map[int64]*retention.Policy)
	for _, rec := range due {
		if ctx.Err() != nil {
			logger.WarnContext(ctx, "retention run cancelled", "remaining", len(due)-len(report.Items))
			break
		}
		res := p.processOne(ctx, exec, rec, policies, report.RunID, opts.DryRun)
		report.add(res)
		mem.sample()
	}

	report.Duration = p.now().Sub(start)
	report.PeakMemory = mem.peak

	outcome := "completed"
	if report.TotalErrors > p.config.ErrorThreshold {
		outcome = "escalated"
		report.Escalated = true
		logger.ErrorContext(ctx, "retention run exceeded error threshold",
			"total_errors", report.TotalErrors,
			"threshold", p.config.ErrorThreshold,
		)
		if p.escalate != nil {
			p.escalate(ctx, report)
		}
	}

	logger.InfoContext(ctx, "retention run finished",
		"due", report.TotalDue,
		"processed", report.TotalProcessed,
		"errors", report.TotalErrors,
		"skipped", report.Skipped,
		"duration", report.Duration,
		"peak_memory_bytes", report.PeakMemory,
	)
	p.record(outcome, report)

	p.mu.Lock()
	p.last = report
	p.mu.Unlock()

	return report, nil
}

// ProcessRecord runs a single due record outside the schedule. It is how
// records of policies without auto-processing are disposed of.
func (p *Processor) ProcessRecord(ctx context.Context, recordID int64) (*executor.Result, error) {
	rec, err := p.store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.Status == retention.StatusActive && rec.ExpireDate.After(retention.Today(p.now())) {
		return nil, retention.NewValidationError("record_id",
			fmt.Sprintf("record %d is not due until %s", rec.ID, retention.FormatDate(rec.ExpireDate)))
	}

	exec, err := p.bind(ctx)
	if err != nil {
		p.logger.Error("manual processing aborted", "record_id", recordID, "error", err)
		return nil, err
	}
	defer p.release(ctx, exec)

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	return p.processOne(ctx, exec, rec, map[int64]*retention.Policy{}, runID, false), nil
}

// LastReport returns the report of the most recent completed run, or nil.
func (p *Processor) LastReport() *RunReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *Processor) processOne(ctx context.Context, exec *identity.ExecutionContext, rec *retention.Record, policies map[int64]*retention.Policy, runID string, dryRun bool) (res *executor.Result) {
	ctx = logging.WithFileID(ctx, rec.FileID)
	ctx, span := tracing.Start(ctx, "retention.record", tracing.RecordAttributes(rec))
	defer func() {
		if res != nil {
			tracing.SetActionResult(span, res.Action, string(res.Status))
			tracing.End(span, res.Err)
			return
		}
		span.End()
	}()
	claimed := false
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		cause := fmt.Errorf("panic: %v", r)
		p.logger.ErrorContext(ctx, "panic while processing record",
			"record_id", rec.ID,
			"panic", r,
		)
		if claimed {
			p.releaseClaim(ctx, rec.ID, cause.Error())
		}
		res = &executor.Result{
			RecordID: rec.ID,
			FileID:   rec.FileID,
			PolicyID: rec.PolicyID,
			FilePath: rec.FilePath,
			Status:   executor.StatusFailed,
			Message:  cause.Error(),
			Err:      retention.NewProcessingError(rec, "", cause),
		}
	}()

	pol, err := p.policy(ctx, rec.PolicyID, policies)
	if err != nil {
		return p.failed(rec, err)
	}

	if dryRun || !rec.IsOpen() {
		return p.executor.Execute(ctx, exec, rec, pol, runID, dryRun)
	}

	ok, err := p.store.ClaimRecord(ctx, rec.ID, p.now().UTC())
	if err != nil {
		return p.failed(rec, err)
	}
	if !ok {
		// Another run claimed or finished it since selection.
		return &executor.Result{
			RecordID: rec.ID,
			FileID:   rec.FileID,
			PolicyID: rec.PolicyID,
			FilePath: rec.FilePath,
			Status:   executor.StatusSkipped,
			Message:  "record already claimed",
		}
	}
	claimed = true
	rec.Status = retention.StatusProcessing

	res = p.executor.Execute(ctx, exec, rec, pol, runID, false)
	if p.recorder != nil {
		p.recorder.RecordAction(string(res.Action), string(res.Status))
	}

	switch res.Status {
	case executor.StatusSuccess:
		if err := p.markProcessed(ctx, rec.ID); err != nil {
			p.logger.ErrorContext(ctx, "action applied but record could not be marked processed",
				"record_id", rec.ID,
				"file_id", rec.FileID,
				"error", err,
			)
			res.Status = executor.StatusFailed
			res.Err = retention.NewProcessingError(rec, res.Action, err)
			res.Message = fmt.Sprintf("%s applied but record could not be marked processed: %v", res.Action, err)
			p.appendLog(ctx, runID, res)
		}
	default:
		p.releaseClaim(ctx, rec.ID, res.Message)
	}
	return res
}

func (p *Processor) failed(rec *retention.Record, err error) *executor.Result {
	p.logger.Warn("record could not be processed",
		"record_id", rec.ID,
		"file_id", rec.FileID,
		"error", err,
	)
	return &executor.Result{
		RecordID: rec.ID,
		FileID:   rec.FileID,
		PolicyID: rec.PolicyID,
		FilePath: rec.FilePath,
		Status:   executor.StatusFailed,
		Message:  err.Error(),
		Err:      retention.NewProcessingError(rec, "", err),
	}
}

func (p *Processor) policy(ctx context.Context, id int64, cache map[int64]*retention.Policy) (*retention.Policy, error) {
	if pol, ok := cache[id]; ok {
		return pol, nil
	}
	pol, err := p.store.GetPolicy(ctx, id)
	if err != nil && !retention.IsNotFound(err) {
		return nil, err
	}
	// A missing policy is cached as nil; the executor reports it.
	cache[id] = pol
	return pol, nil
}

// markProcessed retries transient store failures. A record that is no
// longer processing is not retried.
func (p *Processor) markProcessed(ctx context.Context, id int64) error {
	ctx = context.WithoutCancel(ctx)
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = markRetryInterval
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := p.store.MarkProcessed(ctx, id, p.now().UTC())
		if retention.IsNotFound(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(markAttempts))
	return err
}

// appendLog records a result the executor already logged differently, so
// the processing log shows the record needs reconciling.
func (p *Processor) appendLog(ctx context.Context, runID string, res *executor.Result) {
	entry := &retention.LogEntry{
		RunID:      runID,
		RecordID:   res.RecordID,
		FileID:     res.FileID,
		PolicyID:   res.PolicyID,
		Action:     string(res.Action),
		Status:     retention.LogStatus(res.Status),
		Message:    res.Message,
		FilePath:   res.FilePath,
		TargetPath: res.TargetPath,
		CreatedAt:  p.now().UTC(),
	}
	if err := p.store.AppendLog(context.WithoutCancel(ctx), entry); err != nil {
		p.logger.ErrorContext(ctx, "failed to append processing log",
			"record_id", res.RecordID,
			"error", err,
		)
	}
}

func (p *Processor) releaseClaim(ctx context.Context, id int64, msg string) {
	if err := p.store.ReleaseClaim(context.WithoutCancel(ctx), id, msg, p.now().UTC()); err != nil {
		p.logger.Error("failed to release claim",
			"record_id", id,
			"error", err,
		)
	}
}

func (p *Processor) bind(ctx context.Context) (*identity.ExecutionContext, error) {
	id, err := p.identities.FindPrivilegedIdentity(ctx)
	if err == nil && id == nil {
		err = identity.ErrNoPrivilegedIdentity
	}
	if err != nil {
		return nil, retention.NewCriticalJobError(jobName, err)
	}
	exec, err := p.identities.BindExecutionContext(ctx, id)
	if err != nil {
		return nil, retention.NewCriticalJobError(jobName, err)
	}
	return exec, nil
}

func (p *Processor) release(ctx context.Context, exec *identity.ExecutionContext) {
	if err := p.identities.ClearExecutionContext(context.WithoutCancel(ctx), exec); err != nil {
		p.logger.Error("failed to clear execution context",
			"session_id", exec.SessionID,
			"error", err,
		)
	}
}

func (p *Processor) record(outcome string, report *RunReport) {
	if p.recorder != nil {
		p.recorder.RecordRun(outcome, report.DryRun, report.Duration, report.TotalProcessed, report.TotalErrors)
	}
}

// memSampler tracks the peak heap size observed during a run.
type memSampler struct {
	peak uint64
}

func (m *memSampler) sample() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	if ms.HeapAlloc > m.peak {
		m.peak = ms.HeapAlloc
	}
}
