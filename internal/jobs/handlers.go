package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	types "github.com/coursegraph/catalog-backend/internal/domain"
	"github.com/coursegraph/catalog-backend/internal/domain/jobs"
	"github.com/coursegraph/catalog-backend/internal/platform/logger"
	"github.com/coursegraph/catalog-backend/internal/search"
	"github.com/coursegraph/catalog-backend/internal/services"
)

type reindexPayload struct {
	CourseUUID uuid.UUID `json:"course_uuid"`
}

// NewReindexCourseHandler refreshes a single course's search documents after
// publication.
func NewReindexCourseHandler(indexer *search.Indexer) Handler {
	return func(ctx context.Context, job *types.JobRun) error {
		var payload reindexPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode reindex payload: %w", err)
		}
		if payload.CourseUUID == uuid.Nil {
			return fmt.Errorf("reindex payload missing course_uuid")
		}
		return indexer.ReindexCourse(ctx, payload.CourseUUID)
	}
}

type bulkSyncPayload struct {
	RunKeys []string `json:"run_keys"`
}

// NewBulkSyncHandler re-runs the publication pipeline for a batch of runs,
// used when a large publication is pushed out of band.
func NewBulkSyncHandler(log *logger.Logger, publish services.PublishService) Handler {
	hlog := log.With("handler", "BulkSync")
	return func(ctx context.Context, job *types.JobRun) error {
		var payload bulkSyncPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode bulk sync payload: %w", err)
		}
		var failed int
		for _, key := range payload.RunKeys {
			if _, err := publish.Publish(ctx, key); err != nil {
				hlog.Warn("bulk sync run failed", "run_key", key, "error", err)
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("bulk sync: %d of %d runs failed", failed, len(payload.RunKeys))
		}
		return nil
	}
}

// RegisterDefaults wires the standard handlers.
func RegisterDefaults(registry *Registry, log *logger.Logger, indexer *search.Indexer, publish services.PublishService) {
	registry.Register(jobs.KindReindexCourse, NewReindexCourseHandler(indexer))
	registry.Register(jobs.KindBulkSync, NewBulkSyncHandler(log, publish))
}
