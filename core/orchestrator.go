package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bodrovdev/image-enhancer/config"
	apperrors "github.com/bodrovdev/image-enhancer/errors"
	"github.com/bodrovdev/image-enhancer/utils"
)

// PlanBuilder resolves an EnhancementMode into an OperationPlan, and builds
// the degraded substitute after a recoverable stage failure.  The
// implementation lives in the pipeline package; the interface keeps core free
// of a circular import.
type PlanBuilder interface {
	Primary(mode EnhancementMode, meta Metadata) (*OperationPlan, error)
	Degrade(prev *OperationPlan, mode EnhancementMode, meta Metadata) (*OperationPlan, error)
}

// maxAttempts bounds the retry ladder: primary plan plus one degraded plan.
const maxAttempts = 2

// Orchestrator drives the per-job state machine
// Planned → Executing → (Succeeded | Degrading → Executing → (Succeeded | Failed)).
// It is safe for concurrent use.
type Orchestrator struct {
	cfg      config.Config
	registry Registry
	planner  PlanBuilder
	gate     *Gate
	hooks    []Hook
	logger   Logger
	metrics  MetricsCollector

	// Atomic counters for lightweight internal metrics.
	processedCount int64
	errorCount     int64
	degradedCount  int64
	jobSeq         int64
}

// NewOrchestrator creates an Orchestrator.  All parameters are required
// except the gate's workspace factory, which may be nil.
func NewOrchestrator(cfg config.Config, reg Registry, planner PlanBuilder, gate *Gate) *Orchestrator {
	return &Orchestrator{cfg: cfg, registry: reg, planner: planner, gate: gate}
}

// SetLogger attaches a structured logger.
func (o *Orchestrator) SetLogger(l Logger) { o.logger = l }

// SetMetrics attaches a metrics collector.
func (o *Orchestrator) SetMetrics(m MetricsCollector) { o.metrics = m }

// AddHook registers a pipeline step observer.
func (o *Orchestrator) AddHook(h Hook) { o.hooks = append(o.hooks, h) }

// Registry returns the codec registry so callers can register custom
// decoders/encoders after construction.
func (o *Orchestrator) Registry() Registry { return o.registry }

// Gate exposes the concurrency gate for inspection.
func (o *Orchestrator) Gate() *Gate { return o.gate }

// Enhance runs one job synchronously: admission, planning, execution with a
// single degraded retry, and size-bounded encoding.  The job's temporary
// resources are released on every exit path.
func (o *Orchestrator) Enhance(ctx context.Context, src []byte, mode EnhancementMode) (*Result, error) {
	if len(src) == 0 {
		return nil, apperrors.New(apperrors.KindUnsupportedOrCorruptInput, "enhance", apperrors.ErrEmptyInput)
	}
	if o.cfg.MaxUploadBytes > 0 && int64(len(src)) > o.cfg.MaxUploadBytes {
		return nil, apperrors.New(apperrors.KindUnsupportedOrCorruptInput, "enhance",
			fmt.Errorf("%w: %s", apperrors.ErrInputTooLarge, utils.FormatFileSize(int64(len(src)))))
	}

	jobID := fmt.Sprintf("job-%d", atomic.AddInt64(&o.jobSeq, 1))

	adm, err := o.gate.Admit(ctx, jobID)
	if err != nil {
		atomic.AddInt64(&o.errorCount, 1)
		return nil, err
	}
	defer adm.Release()

	start := time.Now()
	job := &ProcessingJob{ID: jobID, Source: src, Mode: mode, Attempt: 1, State: StatePlanned}
	o.logf("job.admitted", "job", jobID, "mode", mode.String(), "size", utils.FormatFileSize(int64(len(src))))

	result, err := o.run(ctx, job, adm.Scope)
	if err != nil {
		job.State = StateFailed
		atomic.AddInt64(&o.errorCount, 1)
		if o.metrics != nil {
			o.metrics.RecordError("job", string(apperrors.KindOf(err)))
		}
		o.errorf("job.failed", "job", jobID, "kind", string(apperrors.KindOf(err)), "error", err.Error())
		return nil, err
	}

	job.State = StateSucceeded
	result.ProcessingTime = time.Since(start)
	atomic.AddInt64(&o.processedCount, 1)
	if o.metrics != nil {
		o.metrics.RecordThroughput(result.SizeBytes)
	}
	o.logf("job.succeeded",
		"job", jobID,
		"dims", fmt.Sprintf("%dx%d", result.Width, result.Height),
		"format", string(result.Format),
		"size", utils.FormatFileSize(result.SizeBytes),
		"degraded", result.Degraded,
	)
	return result, nil
}

// run executes the plan ladder: decode, primary plan, optional degraded plan.
func (o *Orchestrator) run(ctx context.Context, job *ProcessingJob, scope Workspace) (*Result, error) {
	decoded, err := o.decode(ctx, job.Source)
	if err != nil {
		return nil, err // decode errors are always terminal
	}

	plan, err := o.planner.Primary(job.Mode, decoded.Meta)
	if err != nil {
		return nil, err
	}
	job.Plan = plan

	for {
		job.State = StateExecuting
		final, timings, execErr := o.executePlan(ctx, plan, decoded)
		if execErr == nil {
			return o.finish(ctx, job, scope, plan, final, timings)
		}
		if !apperrors.IsDegradable(execErr) || job.Attempt >= maxAttempts {
			return nil, execErr
		}

		// Degrading: substitute a reduced plan and re-enter Executing with a
		// freshly decoded buffer (the previous one was consumed mid-plan).
		job.State = StateDegrading
		job.Attempt++
		atomic.AddInt64(&o.degradedCount, 1)
		if o.metrics != nil {
			o.metrics.RecordDegradation(string(job.Mode.Kind))
		}
		o.warnf("job.degrading", "job", job.ID, "cause", execErr.Error())

		degraded, derr := o.planner.Degrade(plan, job.Mode, decoded.Meta)
		if derr != nil {
			return nil, derr
		}
		plan = degraded
		job.Plan = plan

		decoded, err = o.decode(ctx, job.Source)
		if err != nil {
			return nil, err
		}
	}
}

// executePlan runs each plan step in order against the current buffer.
// Steps execute strictly sequentially; ownership of the buffer moves with
// each call.
func (o *Orchestrator) executePlan(ctx context.Context, plan *OperationPlan, img *ImageData) (*ImageData, map[string]time.Duration, error) {
	timings := make(map[string]time.Duration, len(plan.Steps))
	current := img
	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return nil, timings, apperrors.Wrap(apperrors.KindInternal, step.Name(), err)
		}
		o.notifyBefore(ctx, step.Name(), current)
		t := time.Now()
		next, err := step.Execute(ctx, current)
		elapsed := time.Since(t)
		timings[step.Name()] = elapsed
		o.notifyAfter(ctx, step.Name(), next, elapsed, err)
		if err != nil {
			return nil, timings, err
		}
		current = next
	}
	return current, timings, nil
}

// finish persists the output into the job scope and assembles the Result.
func (o *Orchestrator) finish(ctx context.Context, job *ProcessingJob, scope Workspace, plan *OperationPlan, final *ImageData, timings map[string]time.Duration) (*Result, error) {
	if scope != nil && len(final.Data) > 0 {
		name := fmt.Sprintf("%s.%s", job.ID, final.Format)
		if err := scope.Store(ctx, name, final.Data); err != nil {
			o.warnf("job.scope.store", "job", job.ID, "error", err.Error())
		}
	}
	return &Result{
		Bytes:       final.Data,
		Format:      final.Format,
		Width:       final.Meta.Width,
		Height:      final.Meta.Height,
		SizeBytes:   int64(len(final.Data)),
		Degraded:    plan.Degraded,
		StepTimings: timings,
	}, nil
}

// decode drains the source bytes through the registry's decoder for the
// sniffed format.  Any failure here is an UnsupportedOrCorruptInput.
func (o *Orchestrator) decode(ctx context.Context, src []byte) (*ImageData, error) {
	format := Format(utils.DetectFormat(src))
	dec, ok := o.registry.DecoderFor(format)
	if !ok {
		return nil, apperrors.New(apperrors.KindUnsupportedOrCorruptInput, "decode",
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format))
	}
	img, err := dec.Decode(ctx, utils.BytesReader(src))
	if err != nil {
		return nil, err
	}
	if img.Meta.Width <= 0 || img.Meta.Height <= 0 {
		return nil, apperrors.New(apperrors.KindUnsupportedOrCorruptInput, "decode", apperrors.ErrInvalidDimensions)
	}
	// Bound the decoded buffer, not just plan targets: a small compressed
	// input may decode into an arbitrarily large pixel buffer, and plans
	// without a scale step carry no target to check.
	if o.cfg.MaxPixelCount > 0 && int64(img.Meta.Width)*int64(img.Meta.Height) > o.cfg.MaxPixelCount {
		return nil, apperrors.New(apperrors.KindUnsupportedOrCorruptInput, "decode",
			fmt.Errorf("source %dx%d exceeds maximum of %d pixels",
				img.Meta.Width, img.Meta.Height, o.cfg.MaxPixelCount))
	}
	img.Data = src
	img.OriginalSize = int64(len(src))
	return img, nil
}

// ── async submission ───────────────────────────────────────────────────────────

// JobRequest describes an asynchronous enhancement job.
type JobRequest struct {
	ID       string
	Ctx      context.Context //nolint:containedctx // intentional for async jobs
	Source   []byte
	Mode     EnhancementMode
	ResultCh chan<- JobOutcome
}

// JobOutcome wraps the outcome of an async job.
type JobOutcome struct {
	JobID  string
	Result *Result
	Err    error
}

// Submit runs the job in its own goroutine.  The gate still bounds actual
// parallelism; excess submissions queue FIFO on admission.
func (o *Orchestrator) Submit(req JobRequest) {
	go func() {
		ctx := req.Ctx
		if ctx == nil {
			ctx = context.Background()
		}
		res, err := o.Enhance(ctx, req.Source, req.Mode)
		if req.ResultCh != nil {
			req.ResultCh <- JobOutcome{JobID: req.ID, Result: res, Err: err}
		}
	}()
}

// ── counters / hooks / logging ─────────────────────────────────────────────────

// ProcessedCount returns the total number of successfully processed jobs.
func (o *Orchestrator) ProcessedCount() int64 { return atomic.LoadInt64(&o.processedCount) }

// ErrorCount returns the total number of failed jobs.
func (o *Orchestrator) ErrorCount() int64 { return atomic.LoadInt64(&o.errorCount) }

// DegradedCount returns how many jobs fell back to a degraded plan.
func (o *Orchestrator) DegradedCount() int64 { return atomic.LoadInt64(&o.degradedCount) }

func (o *Orchestrator) notifyBefore(ctx context.Context, name string, img *ImageData) {
	for _, h := range o.hooks {
		h.BeforeStep(ctx, name, img)
	}
}

func (o *Orchestrator) notifyAfter(ctx context.Context, name string, img *ImageData, d time.Duration, err error) {
	for _, h := range o.hooks {
		h.AfterStep(ctx, name, img, d, err)
	}
}

func (o *Orchestrator) logf(msg string, fields ...interface{}) {
	if o.logger != nil {
		o.logger.Info(msg, fields...)
	}
}

func (o *Orchestrator) warnf(msg string, fields ...interface{}) {
	if o.logger != nil {
		o.logger.Warn(msg, fields...)
	}
}

func (o *Orchestrator) errorf(msg string, fields ...interface{}) {
	if o.logger != nil {
		o.logger.Error(msg, fields...)
	}
}
