package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/coursegraph/catalog-backend/internal/domain"
	"github.com/coursegraph/catalog-backend/internal/platform/logger"
)

// SlugRow is a slug-history row joined with the draft flag of its owning
// course, used for partner-wide uniqueness checks.
type SlugRow struct {
	types.CourseURLSlug
	CourseUUID  uuid.UUID `gorm:"column:course_uuid"`
	CourseDraft bool      `gorm:"column:course_draft"`
}

type SlugHistoryRepo interface {
	Create(ctx context.Context, tx *gorm.DB, slugs []*types.CourseURLSlug) ([]*types.CourseURLSlug, error)
	GetByCourseIDs(ctx context.Context, tx *gorm.DB, courseIDs []uuid.UUID) ([]*types.CourseURLSlug, error)
	// FindByPartnerAndSlug returns every history row carrying the slug within
	// the partner, joined with the draft flag of its owning course.
	FindByPartnerAndSlug(ctx context.Context, tx *gorm.DB, partnerID uuid.UUID, urlSlug string) ([]*SlugRow, error)
	// ActiveSlugsByPartner returns the set of active slugs within the partner,
	// used for auto-generation collision walking.
	ActiveSlugsByPartner(ctx context.Context, tx *gorm.DB, partnerID uuid.UUID) (map[string]bool, error)
	Save(ctx context.Context, tx *gorm.DB, slug *types.CourseURLSlug) error
	DeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error
}

type slugHistoryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSlugHistoryRepo(db *gorm.DB, baseLog *logger.Logger) SlugHistoryRepo {
	return &slugHistoryRepo{db: db, log: baseLog.With("repo", "SlugHistoryRepo")}
}

func (r *slugHistoryRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *slugHistoryRepo) Create(ctx context.Context, tx *gorm.DB, slugs []*types.CourseURLSlug) ([]*types.CourseURLSlug, error) {
	if len(slugs) == 0 {
		return []*types.CourseURLSlug{}, nil
	}
	if err := r.conn(tx).WithContext(ctx).Create(&slugs).Error; err != nil {
		return nil, err
	}
	return slugs, nil
}

func (r *slugHistoryRepo) GetByCourseIDs(ctx context.Context, tx *gorm.DB, courseIDs []uuid.UUID) ([]*types.CourseURLSlug, error) {
	var results []*types.CourseURLSlug
	if len(courseIDs) == 0 {
		return results, nil
	}
	if err := r.conn(tx).WithContext(ctx).
		Where("course_id IN ?", courseIDs).
		Order("created_at").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *slugHistoryRepo) FindByPartnerAndSlug(ctx context.Context, tx *gorm.DB, partnerID uuid.UUID, urlSlug string) ([]*SlugRow, error) {
	var results []*SlugRow
	err := r.conn(tx).WithContext(ctx).
		Table("course_url_slug").
		Select("course_url_slug.*, course.uuid AS course_uuid, course.draft AS course_draft").
		Joins("JOIN course ON course.id = course_url_slug.course_id").
		Where("course_url_slug.partner_id = ? AND course_url_slug.url_slug = ?", partnerID, urlSlug).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *slugHistoryRepo) ActiveSlugsByPartner(ctx context.Context, tx *gorm.DB, partnerID uuid.UUID) (map[string]bool, error) {
	var slugs []string
	err := r.conn(tx).WithContext(ctx).
		Model(&types.CourseURLSlug{}).
		Where("partner_id = ? AND is_active = ?", partnerID, true).
		Pluck("url_slug", &slugs).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(slugs))
	for _, s := range slugs {
		out[s] = true
	}
	return out, nil
}

func (r *slugHistoryRepo) Save(ctx context.Context, tx *gorm.DB, slug *types.CourseURLSlug) error {
	return r.conn(tx).WithContext(ctx).Save(slug).Error
}

func (r *slugHistoryRepo) DeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Where("id IN ?", ids).Delete(&types.CourseURLSlug{}).Error
}

type RedirectRepo interface {
	Create(ctx context.Context, tx *gorm.DB, redirects []*types.CourseURLRedirect) ([]*types.CourseURLRedirect, error)
	GetByCourseIDs(ctx context.Context, tx *gorm.DB, courseIDs []uuid.UUID) ([]*types.CourseURLRedirect, error)
	DeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error
}

type redirectRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRedirectRepo(db *gorm.DB, baseLog *logger.Logger) RedirectRepo {
	return &redirectRepo{db: db, log: baseLog.With("repo", "RedirectRepo")}
}

func (r *redirectRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *redirectRepo) Create(ctx context.Context, tx *gorm.DB, redirects []*types.CourseURLRedirect) ([]*types.CourseURLRedirect, error) {
	if len(redirects) == 0 {
		return []*types.CourseURLRedirect{}, nil
	}
	if err := r.conn(tx).WithContext(ctx).Create(&redirects).Error; err != nil {
		return nil, err
	}
	return redirects, nil
}

func (r *redirectRepo) GetByCourseIDs(ctx context.Context, tx *gorm.DB, courseIDs []uuid.UUID) ([]*types.CourseURLRedirect, error) {
	var results []*types.CourseURLRedirect
	if len(courseIDs) == 0 {
		return results, nil
	}
	if err := r.conn(tx).WithContext(ctx).
		Where("course_id IN ?", courseIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *redirectRepo) DeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Where("id IN ?", ids).Delete(&types.CourseURLRedirect{}).Error
}
