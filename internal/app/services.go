package app

import (
	"time"

	"gorm.io/gorm"

	"github.com/coursegraph/catalog-backend/internal/jobs"
	"github.com/coursegraph/catalog-backend/internal/platform/logger"
	"github.com/coursegraph/catalog-backend/internal/search"
	"github.com/coursegraph/catalog-backend/internal/services"
)

type Services struct {
	Drafts    services.DraftService
	Projector services.Projector
	Publish   services.PublishService
	Course    services.CourseService

	Search          *search.Service
	SearchIndexer   *search.Indexer
	SearchLifecycle *search.Lifecycle

	JobWorker *jobs.Worker
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, clients Clients) Services {
	log.Info("Wiring services...")

	drafts := services.NewDraftService(
		db, log,
		repos.Course, repos.CourseRun, repos.Seat, repos.Entitlement,
		repos.Slug, repos.Redirect, repos.Lookup,
	)
	projector := services.NewProjector(
		log,
		repos.Course, repos.CourseRun, repos.Seat, repos.Entitlement,
		repos.Slug, repos.Redirect,
	)

	var invalidator services.SearchInvalidator
	if clients.SearchCache != nil {
		invalidator = clients.SearchCache
	}
	publish := services.NewPublishService(
		db, log,
		repos.Course, repos.CourseRun, repos.Lookup, repos.JobRun,
		projector, clients.Studio, clients.Commerce,
		services.NewImageLoader(10*time.Second), invalidator,
	)
	course := services.NewCourseService(db, log, repos.Course, repos.Entitlement, drafts, publish)

	source := search.NewStoreSource(db, log)
	indexer := search.NewIndexer(clients.Search, source, log)
	lifecycle := search.NewLifecycle(clients.Search, source, log)
	searchSvc := search.NewService(clients.Search, log)

	registry := jobs.NewRegistry()
	jobs.RegisterDefaults(registry, log, indexer, publish)
	worker := jobs.NewWorker(db, log, repos.JobRun, registry, cfg.WorkerConcurrency)

	return Services{
		Drafts:          drafts,
		Projector:       projector,
		Publish:         publish,
		Course:          course,
		Search:          searchSvc,
		SearchIndexer:   indexer,
		SearchLifecycle: lifecycle,
		JobWorker:       worker,
	}
}
