package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	jobsrepo "github.com/coursegraph/catalog-backend/internal/data/repos/jobs"
	"github.com/coursegraph/catalog-backend/internal/data/repos/testutil"
	types "github.com/coursegraph/catalog-backend/internal/domain"
	domainjobs "github.com/coursegraph/catalog-backend/internal/domain/jobs"
)

func newWorker(t *testing.T, tx *gorm.DB, registry *Registry) (*Worker, jobsrepo.JobRunRepo) {
	t.Helper()
	log := testutil.Logger(t)
	repo := jobsrepo.NewJobRunRepo(tx, log)
	return NewWorker(tx, log, repo, registry, 1), repo
}

func enqueue(t *testing.T, ctx context.Context, repo jobsrepo.JobRunRepo, kind string, payload string) *types.JobRun {
	t.Helper()
	jobs, err := repo.Create(ctx, nil, []*types.JobRun{{
		Kind:      kind,
		PartnerID: uuid.New(),
		Status:    domainjobs.StatusQueued,
		Payload:   datatypes.JSON(payload),
	}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return jobs[0]
}

func reload(t *testing.T, ctx context.Context, repo jobsrepo.JobRunRepo, id uuid.UUID) *types.JobRun {
	t.Helper()
	rows, err := repo.GetByIDs(ctx, nil, []uuid.UUID{id})
	if err != nil || len(rows) != 1 {
		t.Fatalf("reload job: %v (%d rows)", err, len(rows))
	}
	return rows[0]
}

func TestWorkerRunsClaimedJob(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	var got uuid.UUID
	registry := NewRegistry()
	registry.Register("echo", func(ctx context.Context, job *types.JobRun) error {
		var payload struct {
			CourseUUID uuid.UUID `json:"course_uuid"`
		}
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return err
		}
		got = payload.CourseUUID
		return nil
	})
	worker, repo := newWorker(t, tx, registry)

	want := uuid.New()
	enqueue(t, ctx, repo, "echo", `{"course_uuid":"`+want.String()+`"}`)

	job, err := repo.ClaimNextRunnable(ctx, nil, 5, 0, 0)
	if err != nil || job == nil {
		t.Fatalf("claim: %v job=%v", err, job)
	}
	worker.RunOne(ctx, job)

	if got != want {
		t.Fatalf("handler saw %s, want %s", got, want)
	}
	final := reload(t, ctx, repo, job.ID)
	if final.Status != domainjobs.StatusSucceeded {
		t.Fatalf("status = %s, want succeeded", final.Status)
	}
	if final.EndedAt == nil {
		t.Fatal("ended_at not set")
	}
}

func TestWorkerRecordsFailureAndError(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	registry := NewRegistry()
	registry.Register("boom", func(ctx context.Context, job *types.JobRun) error {
		return errors.New("downstream unavailable")
	})
	worker, repo := newWorker(t, tx, registry)

	enqueue(t, ctx, repo, "boom", `{}`)
	job, err := repo.ClaimNextRunnable(ctx, nil, 5, 0, 0)
	if err != nil || job == nil {
		t.Fatalf("claim: %v", err)
	}
	worker.RunOne(ctx, job)

	final := reload(t, ctx, repo, job.ID)
	if final.Status != domainjobs.StatusFailed {
		t.Fatalf("status = %s, want failed", final.Status)
	}
	if final.LastError != "downstream unavailable" {
		t.Fatalf("last_error = %q", final.LastError)
	}
	if final.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", final.Attempts)
	}
}

func TestWorkerFailsUnknownKind(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	worker, repo := newWorker(t, tx, NewRegistry())
	enqueue(t, ctx, repo, "nobody_home", `{}`)

	job, err := repo.ClaimNextRunnable(ctx, nil, 5, 0, 0)
	if err != nil || job == nil {
		t.Fatalf("claim: %v", err)
	}
	worker.RunOne(ctx, job)

	final := reload(t, ctx, repo, job.ID)
	if final.Status != domainjobs.StatusFailed {
		t.Fatalf("status = %s, want failed", final.Status)
	}
}

func TestWorkerRecoversFromHandlerPanic(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	registry := NewRegistry()
	registry.Register("panicky", func(ctx context.Context, job *types.JobRun) error {
		panic("nil deref somewhere deep")
	})
	worker, repo := newWorker(t, tx, registry)

	enqueue(t, ctx, repo, "panicky", `{}`)
	job, err := repo.ClaimNextRunnable(ctx, nil, 5, 0, 0)
	if err != nil || job == nil {
		t.Fatalf("claim: %v", err)
	}
	worker.RunOne(ctx, job)

	final := reload(t, ctx, repo, job.ID)
	if final.Status != domainjobs.StatusFailed {
		t.Fatalf("status = %s, want failed", final.Status)
	}
}
