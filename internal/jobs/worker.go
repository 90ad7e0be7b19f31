package jobs

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	jobsrepo "github.com/coursegraph/catalog-backend/internal/data/repos/jobs"
	types "github.com/coursegraph/catalog-backend/internal/domain"
	"github.com/coursegraph/catalog-backend/internal/domain/jobs"
	"github.com/coursegraph/catalog-backend/internal/platform/logger"
)

const (
	defaultMaxAttempts  = 5
	defaultRetryDelay   = 30 * time.Second
	defaultStaleRunning = 5 * time.Minute
	defaultPollInterval = time.Second
)

// Worker drains the job_run table. Claims use SKIP LOCKED so multiple
// processes can poll the same table; each claimed job runs to completion.
type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     jobsrepo.JobRunRepo
	registry *Registry

	concurrency  int
	pollInterval time.Duration
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo jobsrepo.JobRunRepo, registry *Registry, concurrency int) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		db:           db,
		log:          baseLog.With("component", "JobWorker"),
		repo:         repo,
		registry:     registry,
		concurrency:  concurrency,
		pollInterval: defaultPollInterval,
	}
}

// Start runs the polling loops until the context is canceled.
func (w *Worker) Start(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			w.poll(ctx)
			return nil
		})
	}
	go func() { _ = g.Wait() }()
}

func (w *Worker) poll(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				job, err := w.repo.ClaimNextRunnable(ctx, nil, defaultMaxAttempts, defaultRetryDelay, defaultStaleRunning)
				if err != nil {
					w.log.Warn("claim failed", "error", err)
					break
				}
				if job == nil {
					break
				}
				w.RunOne(ctx, job)
			}
		}
	}
}

// RunOne dispatches a claimed job and records the outcome.
func (w *Worker) RunOne(ctx context.Context, job *types.JobRun) {
	handler, ok := w.registry.Get(job.Kind)
	if !ok {
		w.fail(ctx, job, &missingHandlerError{Kind: job.Kind})
		return
	}

	err := w.invoke(ctx, job, handler)
	if err != nil {
		w.fail(ctx, job, err)
		return
	}

	now := time.Now()
	if uerr := w.repo.UpdateFields(ctx, nil, job.ID, map[string]any{
		"status":     jobs.StatusSucceeded,
		"ended_at":   now,
		"last_error": "",
	}); uerr != nil {
		w.log.Error("mark succeeded failed", "job_id", job.ID, "error", uerr)
	}
	w.log.Info("job finished", "job_id", job.ID, "kind", job.Kind)
}

func (w *Worker) invoke(ctx context.Context, job *types.JobRun, handler Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handler(ctx, job)
}

func (w *Worker) fail(ctx context.Context, job *types.JobRun, cause error) {
	w.log.Warn("job failed", "job_id", job.ID, "kind", job.Kind, "attempts", job.Attempts, "error", cause)
	now := time.Now()
	if uerr := w.repo.UpdateFields(ctx, nil, job.ID, map[string]any{
		"status":     jobs.StatusFailed,
		"ended_at":   now,
		"last_error": cause.Error(),
	}); uerr != nil {
		w.log.Error("mark failed failed", "job_id", job.ID, "error", uerr)
	}
}
