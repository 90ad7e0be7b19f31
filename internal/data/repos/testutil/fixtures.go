package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/coursegraph/catalog-backend/internal/domain"
	"github.com/coursegraph/catalog-backend/internal/domain/catalog"
)

func SeedPartner(tb testing.TB, ctx context.Context, tx *gorm.DB, shortCode string) *types.Partner {
	tb.Helper()
	p := &types.Partner{
		ID:        uuid.New(),
		Name:      shortCode,
		ShortCode: shortCode,
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed partner: %v", err)
	}
	return p
}

func SeedOrganization(tb testing.TB, ctx context.Context, tx *gorm.DB, partnerID uuid.UUID, key string) *types.Organization {
	tb.Helper()
	o := &types.Organization{
		ID:        uuid.New(),
		UUID:      uuid.New(),
		PartnerID: partnerID,
		Key:       key,
		Name:      key,
	}
	if err := tx.WithContext(ctx).Create(o).Error; err != nil {
		tb.Fatalf("seed organization: %v", err)
	}
	return o
}

func SeedPerson(tb testing.TB, ctx context.Context, tx *gorm.DB, partnerID uuid.UUID, name string) *types.Person {
	tb.Helper()
	p := &types.Person{
		ID:        uuid.New(),
		UUID:      uuid.New(),
		PartnerID: partnerID,
		GivenName: name,
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed person: %v", err)
	}
	return p
}

func SeedMode(tb testing.TB, ctx context.Context, tx *gorm.DB, slug string) *types.Mode {
	tb.Helper()
	m := &types.Mode{
		ID:           uuid.New(),
		Slug:         slug,
		Name:         slug,
		IsIDVerified: slug == catalog.ModeVerified || slug == catalog.ModeProfessional,
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed mode: %v", err)
	}
	return m
}

// SeedCourseType creates a course type whose entitlement modes are the given
// mode slugs, seeding the modes themselves when absent.
func SeedCourseType(tb testing.TB, ctx context.Context, tx *gorm.DB, slug string, modeSlugs ...string) *types.CourseType {
	tb.Helper()
	modes := make([]types.Mode, 0, len(modeSlugs))
	for _, ms := range modeSlugs {
		var m types.Mode
		err := tx.WithContext(ctx).Where("slug = ?", ms).First(&m).Error
		if err != nil {
			m = *SeedMode(tb, ctx, tx, ms)
		}
		modes = append(modes, m)
	}
	ct := &types.CourseType{
		ID:               uuid.New(),
		Name:             slug,
		Slug:             slug,
		EntitlementModes: modes,
	}
	if err := tx.WithContext(ctx).Create(ct).Error; err != nil {
		tb.Fatalf("seed course type: %v", err)
	}
	return ct
}

func SeedCourseRunType(tb testing.TB, ctx context.Context, tx *gorm.DB, courseTypeID uuid.UUID, slug string, modeSlugs ...string) *types.CourseRunType {
	tb.Helper()
	modes := make([]types.Mode, 0, len(modeSlugs))
	for _, ms := range modeSlugs {
		var m types.Mode
		err := tx.WithContext(ctx).Where("slug = ?", ms).First(&m).Error
		if err != nil {
			m = *SeedMode(tb, ctx, tx, ms)
		}
		modes = append(modes, m)
	}
	rt := &types.CourseRunType{
		ID:           uuid.New(),
		CourseTypeID: courseTypeID,
		Name:         slug,
		Slug:         slug,
		Modes:        modes,
	}
	if err := tx.WithContext(ctx).Create(rt).Error; err != nil {
		tb.Fatalf("seed course run type: %v", err)
	}
	return rt
}

// SeedCourse creates a course row. The same business UUID may be passed twice
// to create a draft/official pair.
func SeedCourse(tb testing.TB, ctx context.Context, tx *gorm.DB, partnerID, typeID, businessUUID uuid.UUID, key string, draft bool) *types.Course {
	tb.Helper()
	c := &types.Course{
		ID:        uuid.New(),
		UUID:      businessUUID,
		Draft:     draft,
		PartnerID: partnerID,
		TypeID:    typeID,
		Key:       key,
		Number:    "t101",
		Title:     "Course title",
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed course: %v", err)
	}
	return c
}

func SeedCourseRun(tb testing.TB, ctx context.Context, tx *gorm.DB, courseID, runTypeID uuid.UUID, key string, draft bool, status string) *types.CourseRun {
	tb.Helper()
	r := &types.CourseRun{
		ID:       uuid.New(),
		CourseID: courseID,
		Key:      key,
		Draft:    draft,
		TypeID:   runTypeID,
		Status:   status,
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed course run: %v", err)
	}
	return r
}

func SeedActiveSlug(tb testing.TB, ctx context.Context, tx *gorm.DB, courseID, partnerID uuid.UUID, urlSlug string) *types.CourseURLSlug {
	tb.Helper()
	s := &types.CourseURLSlug{
		ID:        uuid.New(),
		CourseID:  courseID,
		PartnerID: partnerID,
		URLSlug:   urlSlug,
		IsActive:  true,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed slug: %v", err)
	}
	return s
}

// RunKey builds a course-v1 run key for fixtures.
func RunKey(org, number, run string) string {
	return fmt.Sprintf("course-v1:%s+%s+%s", org, number, run)
}

func PtrUUID(id uuid.UUID) *uuid.UUID { return &id }
