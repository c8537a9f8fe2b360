package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jordigilh/realestate-collector/pkg/collector"
	"github.com/jordigilh/realestate-collector/pkg/corekinds"
	"github.com/jordigilh/realestate-collector/pkg/models"
	"github.com/jordigilh/realestate-collector/pkg/shared/logging"
)

// Store is the narrow persistence slice the worker pool needs, satisfied
// by *JobStore (and by a fake in tests).
type Store interface {
	Lease(ctx context.Context) (*models.Job, error)
	CompleteSuccess(ctx context.Context, jobID string, itemsFound, changesDetected, newEntitiesFound, changesApplied int) error
	Reschedule(ctx context.Context, jobID string, nextRunAt time.Time, reason string) error
	Fail(ctx context.Context, jobID string, reason string) error
}

// Executor runs a single job's collection pipeline. *collector.Collector
// satisfies this.
type Executor interface {
	Collect(ctx context.Context, job *models.Job) (collector.Result, error)
}

// Config tunes the worker pool (spec.md §4.E; SPEC_FULL.md "worker_pool_size").
type Config struct {
	WorkerCount  int
	PollInterval time.Duration
	JobDeadline  time.Duration
	BackoffBase  time.Duration
	BackoffCap   time.Duration
}

// DefaultConfig returns the pool tuning spec.md §4.E(4) assumes: 60s base
// backoff capped at 1h, a 250ms idle poll, and a generous per-job deadline.
func DefaultConfig() Config {
	return Config{
		WorkerCount:  4,
		PollInterval: 250 * time.Millisecond,
		JobDeadline:  10 * time.Minute,
		BackoffBase:  60 * time.Second,
		BackoffCap:   time.Hour,
	}
}

// Pool is spec.md §4.E's job-execution worker pool: WorkerCount goroutines
// each poll Store.Lease and run whatever they get through Executor,
// classifying the outcome back into a status transition.
type Pool struct {
	store  Store
	exec   Executor
	cfg    Config
	log    *logrus.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewPool builds a Pool. log may be nil.
func NewPool(store Store, exec Executor, cfg Config, log *logrus.Logger) *Pool {
	if log == nil {
		log = logrus.New()
	}
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	return &Pool{store: store, exec: exec, cfg: cfg, log: log, cancels: make(map[string]context.CancelFunc)}
}

// Run blocks, fanning WorkerCount goroutines out over the lease queue,
// until ctx is cancelled. Each worker's errgroup slot never returns an
// error for a single job failure — only ctx cancellation unwinds the
// group — so one bad job never takes down the pool.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.WorkerCount; i++ {
		g.Go(func() error {
			return p.workerLoop(ctx)
		})
	}
	return g.Wait()
}

func (p *Pool) workerLoop(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			job, err := p.store.Lease(ctx)
			if err != nil {
				p.log.WithFields(logging.JobFields("lease", "").Error(err).ToLogrus()).Error("lease failed")
				continue
			}
			if job == nil {
				continue
			}
			p.runJob(ctx, job)
		}
	}
}

// runJob executes one leased job under its own cancellable, deadline-bound
// context, registered so CancelJob can interrupt it mid-flight, and always
// finalizes the job's status against the pool's outer context so a
// cancelled/timed-out job's own status write is never itself aborted.
func (p *Pool) runJob(outer context.Context, job *models.Job) {
	jobCtx, cancel := context.WithTimeout(outer, p.cfg.JobDeadline)
	jobCtx, innerCancel := context.WithCancel(jobCtx)
	p.registerCancel(job.JobID, innerCancel)
	defer func() {
		cancel()
		p.unregisterCancel(job.JobID)
	}()

	fields := logging.JobFields("run", job.JobID)
	p.log.WithFields(fields.ToLogrus()).Info("job execution starting")
	start := time.Now()

	result, err := p.exec.Collect(jobCtx, job)
	duration := time.Since(start)
	initPoolMetrics().recordJob(outer, duration, string(job.EntityType), string(job.JobType))

	switch {
	case err == nil:
		p.log.WithFields(fields.Duration(duration).Count(result.ChangesDetected).ToLogrus()).Info("job completed")
		if cerr := p.store.CompleteSuccess(outer, job.JobID, result.ItemsFound, result.ChangesDetected, result.NewEntitiesFound, result.ChangesApplied); cerr != nil {
			p.log.WithFields(fields.Error(cerr).ToLogrus()).Error("failed to record job completion")
		}

	case errors.Is(jobCtx.Err(), context.Canceled) && outer.Err() == nil:
		p.log.WithFields(fields.ToLogrus()).Warn("job cancelled")
		if ferr := p.store.Fail(outer, job.JobID, "cancelled"); ferr != nil {
			p.log.WithFields(fields.Error(ferr).ToLogrus()).Error("failed to record job cancellation")
		}

	case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		p.log.WithFields(fields.Duration(duration).ToLogrus()).Warn("job exceeded deadline")
		p.finalizeFailure(outer, job, corekinds.TransientErr(jobCtx.Err(), "job exceeded deadline"))

	default:
		p.finalizeFailure(outer, job, err)
	}
}

// finalizeFailure classifies err via corekinds.Result and either
// reschedules (Transient, attempts remaining) or fails the job outright
// (spec.md §4.E(4)).
func (p *Pool) finalizeFailure(ctx context.Context, job *models.Job, err error) {
	fields := logging.JobFields("run", job.JobID).Error(err)

	var result corekinds.Result
	retryable := errors.As(err, &result) && result.Retryable()

	if retryable && job.Attempts < job.MaxAttempts {
		delay := backoff(job.Attempts, p.cfg.BackoffBase, p.cfg.BackoffCap)
		p.log.WithFields(fields.ToLogrus()).Warnf("job failed transiently, retrying in %s", delay)
		initPoolMetrics().recordRetry(ctx, string(job.EntityType))
		if rerr := p.store.Reschedule(ctx, job.JobID, time.Now().Add(delay), err.Error()); rerr != nil {
			p.log.WithFields(fields.Error(rerr).ToLogrus()).Error("failed to reschedule job")
		}
		return
	}

	p.log.WithFields(fields.ToLogrus()).Error("job failed terminally")
	initPoolMetrics().recordFailure(ctx, string(job.EntityType))
	if ferr := p.store.Fail(ctx, job.JobID, err.Error()); ferr != nil {
		p.log.WithFields(fields.Error(ferr).ToLogrus()).Error("failed to record job failure")
	}
}

func (p *Pool) registerCancel(jobID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancels[jobID] = cancel
}

func (p *Pool) unregisterCancel(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cancels, jobID)
}

// ExecutePending implements spec.md §6.1 execute_pending: leases and runs,
// synchronously and in this goroutine, up to maxCount pending jobs through
// the same runJob path the background loop uses, and returns the IDs of
// the jobs it started. Intended for operator-triggered catch-up runs
// (tests, a manual "run the queue now" command) rather than the steady
// state, which is Run's job.
func (p *Pool) ExecutePending(ctx context.Context, maxCount int) ([]string, error) {
	if maxCount <= 0 {
		maxCount = 1
	}
	started := make([]string, 0, maxCount)
	for i := 0; i < maxCount; i++ {
		job, err := p.store.Lease(ctx)
		if err != nil {
			return started, err
		}
		if job == nil {
			break
		}
		started = append(started, job.JobID)
		p.runJob(ctx, job)
	}
	return started, nil
}

// CancelRunning interrupts a job currently executing in this pool, if any.
// Reports whether a running job was found and signalled.
func (p *Pool) CancelRunning(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	cancel, ok := p.cancels[jobID]
	if !ok {
		return false
	}
	cancel()
	return true
}
