package db

import (
	types "github.com/coursegraph/catalog-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// Lookups
		&types.Partner{},
		&types.Organization{},
		&types.Person{},
		&types.Subject{},
		&types.Topic{},
		&types.Source{},
		&types.Mode{},
		&types.CourseType{},
		&types.CourseRunType{},

		// Catalog graph (draft + official row-sets)
		&types.Course{},
		&types.CourseRun{},
		&types.Seat{},
		&types.CourseEntitlement{},
		&types.CourseURLSlug{},
		&types.CourseURLRedirect{},
		&types.Program{},

		// Background work
		&types.JobRun{},
	)
}
