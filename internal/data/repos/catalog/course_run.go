package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/coursegraph/catalog-backend/internal/domain"
	pkgerrors "github.com/coursegraph/catalog-backend/internal/pkg/errors"
	"github.com/coursegraph/catalog-backend/internal/platform/logger"
)

type CourseRunRepo interface {
	Create(ctx context.Context, tx *gorm.DB, runs []*types.CourseRun) ([]*types.CourseRun, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.CourseRun, error)
	GetByKey(ctx context.Context, tx *gorm.DB, key string, draft bool) (*types.CourseRun, error)
	GetByCourseIDs(ctx context.Context, tx *gorm.DB, courseIDs []uuid.UUID) ([]*types.CourseRun, error)
	// ListOfficialByPartner returns the official runs of every official
	// course under the partner, ordered by key.
	ListOfficialByPartner(ctx context.Context, tx *gorm.DB, partnerID uuid.UUID) ([]*types.CourseRun, error)
	Save(ctx context.Context, tx *gorm.DB, run *types.CourseRun) error
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]any) error
	ReplaceStaff(ctx context.Context, tx *gorm.DB, run *types.CourseRun, staff []types.Person) error
	DeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error
}

type courseRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseRunRepo(db *gorm.DB, baseLog *logger.Logger) CourseRunRepo {
	repoLog := baseLog.With("repo", "CourseRunRepo")
	return &courseRunRepo{db: db, log: repoLog}
}

func (r *courseRunRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *courseRunRepo) Create(ctx context.Context, tx *gorm.DB, runs []*types.CourseRun) ([]*types.CourseRun, error) {
	if len(runs) == 0 {
		return []*types.CourseRun{}, nil
	}
	if err := r.conn(tx).WithContext(ctx).Omit(clause.Associations).Create(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *courseRunRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.CourseRun, error) {
	var result types.CourseRun
	err := r.conn(tx).WithContext(ctx).
		Preload("Seats").Preload("Staff").Preload("Type").Preload("Type.Modes").
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

func (r *courseRunRepo) ListOfficialByPartner(ctx context.Context, tx *gorm.DB, partnerID uuid.UUID) ([]*types.CourseRun, error) {
	var results []*types.CourseRun
	err := r.conn(tx).WithContext(ctx).
		Joins("JOIN course ON course.id = course_run.course_id").
		Where("course.partner_id = ? AND course.draft = ? AND course_run.draft = ?", partnerID, false, false).
		Order("course_run.key").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *courseRunRepo) GetByKey(ctx context.Context, tx *gorm.DB, key string, draft bool) (*types.CourseRun, error) {
	var result types.CourseRun
	err := r.conn(tx).WithContext(ctx).
		Preload("Seats").Preload("Staff").Preload("Type").Preload("Type.Modes").
		Where("key = ? AND draft = ?", key, draft).
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *courseRunRepo) GetByCourseIDs(ctx context.Context, tx *gorm.DB, courseIDs []uuid.UUID) ([]*types.CourseRun, error) {
	var results []*types.CourseRun
	if len(courseIDs) == 0 {
		return results, nil
	}
	if err := r.conn(tx).WithContext(ctx).
		Preload("Seats").Preload("Staff").
		Where("course_id IN ?", courseIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *courseRunRepo) Save(ctx context.Context, tx *gorm.DB, run *types.CourseRun) error {
	return r.conn(tx).WithContext(ctx).Omit(clause.Associations).Save(run).Error
}

func (r *courseRunRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]any) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.CourseRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *courseRunRepo) ReplaceStaff(ctx context.Context, tx *gorm.DB, run *types.CourseRun, staff []types.Person) error {
	return r.conn(tx).WithContext(ctx).
		Model(run).
		Association("Staff").
		Replace(staff)
}

func (r *courseRunRepo) DeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&types.CourseRun{}).Error
}
