package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/coursegraph/catalog-backend/internal/domain"
	pkgerrors "github.com/coursegraph/catalog-backend/internal/pkg/errors"
	"github.com/coursegraph/catalog-backend/internal/platform/logger"
)

// LookupRepo serves the value-like reference entities: partners, orgs,
// people, subjects, course types and run types.
type LookupRepo interface {
	PartnerByShortCode(ctx context.Context, tx *gorm.DB, shortCode string) (*types.Partner, error)
	PartnerByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Partner, error)
	OrganizationByKey(ctx context.Context, tx *gorm.DB, partnerID uuid.UUID, key string) (*types.Organization, error)
	PeopleByUUIDs(ctx context.Context, tx *gorm.DB, uuids []uuid.UUID) ([]*types.Person, error)
	SubjectsBySlugs(ctx context.Context, tx *gorm.DB, partnerID uuid.UUID, slugs []string) ([]*types.Subject, error)
	CourseTypeByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.CourseType, error)
	CourseTypeBySlug(ctx context.Context, tx *gorm.DB, slug string) (*types.CourseType, error)
	CourseRunTypeBySlug(ctx context.Context, tx *gorm.DB, slug string) (*types.CourseRunType, error)
}

type lookupRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLookupRepo(db *gorm.DB, baseLog *logger.Logger) LookupRepo {
	return &lookupRepo{db: db, log: baseLog.With("repo", "LookupRepo")}
}

func (r *lookupRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *lookupRepo) first(ctx context.Context, tx *gorm.DB, dest any, query string, args ...any) error {
	err := r.conn(tx).WithContext(ctx).Where(query, args...).First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.ErrNotFound
	}
	return err
}

func (r *lookupRepo) PartnerByShortCode(ctx context.Context, tx *gorm.DB, shortCode string) (*types.Partner, error) {
	var result types.Partner
	if err := r.first(ctx, tx, &result, "short_code = ?", shortCode); err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *lookupRepo) PartnerByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Partner, error) {
	var result types.Partner
	if err := r.first(ctx, tx, &result, "id = ?", id); err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *lookupRepo) OrganizationByKey(ctx context.Context, tx *gorm.DB, partnerID uuid.UUID, key string) (*types.Organization, error) {
	var result types.Organization
	if err := r.first(ctx, tx, &result, "partner_id = ? AND key = ?", partnerID, key); err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *lookupRepo) PeopleByUUIDs(ctx context.Context, tx *gorm.DB, uuids []uuid.UUID) ([]*types.Person, error) {
	var results []*types.Person
	if len(uuids) == 0 {
		return results, nil
	}
	if err := r.conn(tx).WithContext(ctx).Where("uuid IN ?", uuids).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *lookupRepo) SubjectsBySlugs(ctx context.Context, tx *gorm.DB, partnerID uuid.UUID, slugs []string) ([]*types.Subject, error) {
	var results []*types.Subject
	if len(slugs) == 0 {
		return results, nil
	}
	if err := r.conn(tx).WithContext(ctx).
		Where("partner_id = ? AND slug IN ?", partnerID, slugs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *lookupRepo) CourseTypeByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.CourseType, error) {
	var result types.CourseType
	err := r.conn(tx).WithContext(ctx).
		Preload("EntitlementModes").
		Where("id = ?", id).
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *lookupRepo) CourseTypeBySlug(ctx context.Context, tx *gorm.DB, slug string) (*types.CourseType, error) {
	var result types.CourseType
	err := r.conn(tx).WithContext(ctx).
		Preload("EntitlementModes").
		Where("slug = ?", slug).
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *lookupRepo) CourseRunTypeBySlug(ctx context.Context, tx *gorm.DB, slug string) (*types.CourseRunType, error) {
	var result types.CourseRunType
	err := r.conn(tx).WithContext(ctx).
		Preload("Modes").
		Where("slug = ?", slug).
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}
