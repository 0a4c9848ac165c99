// Package worker runs ranking tasks pulled from the queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/feedrank/internal/core/domain"
	"github.com/vietddude/feedrank/internal/core/task"
	"github.com/vietddude/feedrank/internal/infra/storage"
	"github.com/vietddude/feedrank/internal/pipeline/dlq"
	"github.com/vietddude/feedrank/internal/pipeline/errkind"
	"github.com/vietddude/feedrank/internal/pipeline/executor"
	"github.com/vietddude/feedrank/internal/pipeline/metrics"
	"github.com/vietddude/feedrank/internal/pipeline/queue"
	"github.com/vietddude/feedrank/internal/pipeline/retry"
)

// Runner executes one attempt of a task.
type Runner interface {
	Run(ctx context.Context, t *domain.Task, progress executor.ProgressFunc) (*executor.Result, error)
}

// Config holds worker pool settings.
type Config struct {
	Workers       int
	HardTimeout   time.Duration
	PullBackoff   time.Duration
	DepthInterval time.Duration
}

// DefaultConfig returns 4 workers and a 300s hard timeout.
func DefaultConfig() Config {
	return Config{
		Workers:       4,
		HardTimeout:   300 * time.Second,
		PullBackoff:   time.Second,
		DepthInterval: 5 * time.Second,
	}
}

// Pool pulls deliveries and drives each task through its state machine.
type Pool struct {
	cfg      Config
	queue    queue.Queue
	tasks    *task.Manager
	runner   Runner
	retry    *retry.Scheduler
	dlq      *dlq.Store
	recorder metrics.Recorder
	now      func() time.Time
	log      *slog.Logger
}

// NewPool creates a worker pool.
func NewPool(
	cfg Config,
	q queue.Queue,
	tasks *task.Manager,
	runner Runner,
	scheduler *retry.Scheduler,
	deadLetters *dlq.Store,
	recorder metrics.Recorder,
) *Pool {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.HardTimeout <= 0 {
		cfg.HardTimeout = def.HardTimeout
	}
	if cfg.PullBackoff <= 0 {
		cfg.PullBackoff = def.PullBackoff
	}
	if cfg.DepthInterval <= 0 {
		cfg.DepthInterval = def.DepthInterval
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Pool{
		cfg:      cfg,
		queue:    q,
		tasks:    tasks,
		runner:   runner,
		retry:    scheduler,
		dlq:      deadLetters,
		recorder: recorder,
		now:      time.Now,
		log:      slog.Default().With("component", "worker_pool"),
	}
}

// Run starts the workers and blocks until ctx is done or the queue closes.
func (p *Pool) Run(ctx context.Context) error {
	p.log.Info("Starting worker pool", "workers", p.cfg.Workers, "hard_timeout", p.cfg.HardTimeout)

	g, ctx := errgroup.WithContext(ctx)
	for i := range p.cfg.Workers {
		id := i
		g.Go(func() error {
			return p.work(ctx, id)
		})
	}

	depthCtx, stopDepth := context.WithCancel(ctx)
	defer stopDepth()
	go p.sampleDepth(depthCtx)

	err := g.Wait()
	p.log.Info("Worker pool stopped")
	return err
}

func (p *Pool) work(ctx context.Context, id int) error {
	log := p.log.With("worker", id)
	for {
		d, err := p.queue.Pull(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return nil
			}
			log.Error("Failed to pull task", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.cfg.PullBackoff):
			}
			continue
		}
		p.Process(ctx, d)
	}
}

func (p *Pool) sampleDepth(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.DepthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := p.queue.Len(ctx); err == nil {
				metrics.QueueDepth.Set(float64(n))
			}
		}
	}
}

// Process runs one delivery to a terminal outcome or a scheduled retry.
// Bookkeeping after the attempt is not cancelled by ctx.
func (p *Pool) Process(ctx context.Context, d *queue.Delivery) {
	bg := context.WithoutCancel(ctx)
	log := p.log.With("task_id", d.Job.TaskID, "user_id", d.Job.UserID)

	t, err := p.load(bg, d.Job)
	if err != nil {
		log.Error("Failed to load task, requeueing", "error", err)
		p.nack(bg, d, p.cfg.PullBackoff)
		return
	}

	if t.IsTerminal() {
		log.Debug("Dropping redelivered terminal task", "state", t.State)
		p.ack(bg, d)
		return
	}

	if err := p.begin(bg, t); err != nil {
		log.Error("Failed to start task", "error", err)
		p.nack(bg, d, p.cfg.PullBackoff)
		return
	}

	metrics.WorkersBusy.Inc()
	start := p.now()
	res, runErr := p.execute(ctx, t)
	elapsed := p.now().Sub(start)
	metrics.WorkersBusy.Dec()

	if runErr == nil {
		p.succeed(bg, d, t, res, elapsed)
		return
	}
	p.handleFailure(bg, d, t, runErr, elapsed)
}

func (p *Pool) load(ctx context.Context, job queue.Job) (*domain.Task, error) {
	t, err := p.tasks.Get(ctx, job.TaskID)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, storage.ErrTaskNotFound) {
		return nil, err
	}
	// Snapshot expired or never written: rebuild from the job.
	t, err = p.tasks.Create(ctx, job.TaskID, job.UserID, job.Params)
	if err != nil {
		return nil, err
	}
	if job.Attempt > 1 {
		t.Attempt = job.Attempt
	}
	return t, nil
}

// begin moves t into PROGRESS. A task found in PROGRESS was redelivered
// after a worker died mid-attempt and is resumed as is.
func (p *Pool) begin(ctx context.Context, t *domain.Task) error {
	if t.State == domain.TaskStateRetry {
		if err := p.tasks.Transition(ctx, t, domain.TaskStatePending, "retry due"); err != nil {
			return err
		}
	}
	t.Progress = 0
	t.Stage = "starting"
	t.NextRetryAt = time.Time{}
	if t.State == domain.TaskStateProgress {
		return p.tasks.Save(ctx, t)
	}
	return p.tasks.Transition(ctx, t, domain.TaskStateProgress, fmt.Sprintf("attempt %d", t.Attempt))
}

// progressSink serializes progress writes and drops them once the attempt
// has been abandoned by the hard timeout.
type progressSink struct {
	mu     sync.Mutex
	closed bool
	tasks  *task.Manager
	t      *domain.Task
	log    *slog.Logger
}

func (s *progressSink) report(ctx context.Context) executor.ProgressFunc {
	return func(percent int, stage string) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		if err := s.tasks.Progress(ctx, s.t, percent, stage); err != nil {
			s.log.Warn("Failed to record progress", "stage", stage, "error", err)
		}
	}
}

func (s *progressSink) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

type outcome struct {
	res *executor.Result
	err error
}

// execute runs the attempt under the hard timeout. A panic in the runner is
// converted to an unexpected error.
func (p *Pool) execute(ctx context.Context, t *domain.Task) (*executor.Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, p.cfg.HardTimeout)
	defer cancel()

	sink := &progressSink{tasks: p.tasks, t: t, log: p.log.With("task_id", t.ID)}
	defer sink.close()

	// The runner works on a copy so an abandoned attempt cannot race with
	// the bookkeeping below.
	snapshot := *t
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: errkind.Newf(errkind.Unexpected, "panic: %v", r)}
			}
		}()
		res, err := p.runner.Run(runCtx, &snapshot, sink.report(context.WithoutCancel(ctx)))
		done <- outcome{res: res, err: err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-runCtx.Done():
		return nil, errkind.Wrap(errkind.Timeout, "hard timeout exceeded", runCtx.Err())
	}
}

func (p *Pool) succeed(
	ctx context.Context,
	d *queue.Delivery,
	t *domain.Task,
	res *executor.Result,
	elapsed time.Duration,
) {
	t.Params = res.Params
	t.Result = res.Ranking
	t.ResultRef = res.ResultRef
	t.LastError = nil
	t.Progress = 100
	t.Stage = executor.StageComplete

	if err := p.tasks.Transition(ctx, t, domain.TaskStateSuccess, "rankings generated"); err != nil {
		p.log.Error("Failed to mark task successful", "task_id", t.ID, "error", err)
	}
	p.ack(ctx, d)
	p.recorder.TaskFinished(metrics.OutcomeSuccess, elapsed)

	p.log.Info("Task succeeded",
		"task_id", t.ID,
		"attempt", t.Attempt,
		"count", res.Ranking.Count,
		"cached", res.ResultRef != "",
		"elapsed", elapsed,
	)
}

func (p *Pool) handleFailure(
	ctx context.Context,
	d *queue.Delivery,
	t *domain.Task,
	runErr error,
	elapsed time.Duration,
) {
	kerr, ok := errkind.As(runErr)
	if !ok {
		kerr = errkind.Wrap(errkind.Classify(runErr), "task failed", runErr)
	}

	switch {
	case kerr.Kind == errkind.Unexpected:
		p.fail(ctx, d, t, kerr.Kind, kerr, domain.FailureUnexpected, elapsed)
	case !kerr.Kind.Retryable:
		p.fail(ctx, d, t, kerr.Kind, kerr, domain.FailurePermanent, elapsed)
	// t.Attempt is the run that just failed; the budget counts runs.
	case p.retry.ShouldRetry(t.Attempt + 1):
		p.scheduleRetry(ctx, d, t, kerr, elapsed)
	default:
		p.fail(ctx, d, t, errkind.MaxRetries, kerr, domain.FailureMaxRetries, elapsed)
	}
}

func (p *Pool) scheduleRetry(
	ctx context.Context,
	d *queue.Delivery,
	t *domain.Task,
	kerr *errkind.Error,
	elapsed time.Duration,
) {
	delay := p.retry.NextDelay(kerr.Kind, t.Attempt)

	t.LastError = &domain.TaskError{
		Kind:         kerr.Kind.Name,
		Message:      kerr.Error(),
		Attempts:     t.Attempt,
		FailureClass: domain.FailureRetryable,
	}
	t.NextRetryAt = p.now().Add(delay)
	t.Attempt++

	if err := p.tasks.Transition(ctx, t, domain.TaskStateRetry, kerr.Kind.Name); err != nil {
		p.log.Error("Failed to mark task for retry", "task_id", t.ID, "error", err)
	}

	d.Job.Attempt = t.Attempt
	p.nack(ctx, d, delay)
	p.recorder.RetryScheduled(kerr.Kind.Name)
	p.recorder.TaskFinished(metrics.OutcomeRetry, elapsed)

	p.log.Warn("Task attempt failed, retry scheduled",
		"task_id", t.ID,
		"error_type", kerr.Kind.Name,
		"next_attempt", t.Attempt,
		"delay", delay,
		"error", kerr,
	)
}

func (p *Pool) fail(
	ctx context.Context,
	d *queue.Delivery,
	t *domain.Task,
	kind errkind.Kind,
	cause *errkind.Error,
	class domain.FailureClass,
	elapsed time.Duration,
) {
	message := cause.Error()
	if p.dlq != nil {
		if _, err := p.dlq.Record(ctx, dlq.RecordInput{
			TaskID:   t.ID,
			UserID:   t.UserID,
			Kind:     kind,
			Cause:    cause.Kind,
			Message:  message,
			Attempts: t.Attempt,
			Params:   t.RawParams,
		}); err != nil {
			p.log.Error("Failed to dead-letter task", "task_id", t.ID, "error_type", kind.Name, "error", err)
		}
	}

	t.LastError = &domain.TaskError{
		Kind:         kind.Name,
		Message:      message,
		Attempts:     t.Attempt,
		FailureClass: class,
	}
	if err := p.tasks.Transition(ctx, t, domain.TaskStateFailure, kind.Name); err != nil {
		p.log.Error("Failed to mark task failed", "task_id", t.ID, "error", err)
	}
	p.ack(ctx, d)
	p.recorder.TaskFinished(metrics.OutcomeFailure, elapsed)

	p.log.Error("Task failed",
		"task_id", t.ID,
		"error_type", kind.Name,
		"failure_class", class,
		"attempts", t.Attempt,
		"error", message,
	)
}

func (p *Pool) ack(ctx context.Context, d *queue.Delivery) {
	if err := p.queue.Ack(ctx, d); err != nil {
		p.log.Error("Failed to ack task", "task_id", d.Job.TaskID, "error", err)
	}
}

func (p *Pool) nack(ctx context.Context, d *queue.Delivery, delay time.Duration) {
	if err := p.queue.Nack(ctx, d, delay); err != nil {
		p.log.Error("Failed to requeue task", "task_id", d.Job.TaskID, "error", err)
	}
}
