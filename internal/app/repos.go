package app

import (
	"gorm.io/gorm"

	catalogrepo "github.com/coursegraph/catalog-backend/internal/data/repos/catalog"
	jobsrepo "github.com/coursegraph/catalog-backend/internal/data/repos/jobs"
	"github.com/coursegraph/catalog-backend/internal/platform/logger"
)

type Repos struct {
	Course      catalogrepo.CourseRepo
	CourseRun   catalogrepo.CourseRunRepo
	Seat        catalogrepo.SeatRepo
	Entitlement catalogrepo.EntitlementRepo
	Slug        catalogrepo.SlugHistoryRepo
	Redirect    catalogrepo.RedirectRepo
	Program     catalogrepo.ProgramRepo
	Lookup      catalogrepo.LookupRepo
	JobRun      jobsrepo.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Course:      catalogrepo.NewCourseRepo(db, log),
		CourseRun:   catalogrepo.NewCourseRunRepo(db, log),
		Seat:        catalogrepo.NewSeatRepo(db, log),
		Entitlement: catalogrepo.NewEntitlementRepo(db, log),
		Slug:        catalogrepo.NewSlugHistoryRepo(db, log),
		Redirect:    catalogrepo.NewRedirectRepo(db, log),
		Program:     catalogrepo.NewProgramRepo(db, log),
		Lookup:      catalogrepo.NewLookupRepo(db, log),
		JobRun:      jobsrepo.NewJobRunRepo(db, log),
	}
}
