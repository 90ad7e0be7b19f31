package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/coursegraph/catalog-backend/internal/domain"
	"github.com/coursegraph/catalog-backend/internal/platform/logger"
)

type ProgramRepo interface {
	GetByUUIDs(ctx context.Context, tx *gorm.DB, uuids []uuid.UUID) ([]*types.Program, error)
	ListByPartner(ctx context.Context, tx *gorm.DB, partnerID uuid.UUID, includeDeleted bool) ([]*types.Program, error)
	ListContainingCourse(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*types.Program, error)
}

type programRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProgramRepo(db *gorm.DB, baseLog *logger.Logger) ProgramRepo {
	return &programRepo{db: db, log: baseLog.With("repo", "ProgramRepo")}
}

func (r *programRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *programRepo) GetByUUIDs(ctx context.Context, tx *gorm.DB, uuids []uuid.UUID) ([]*types.Program, error) {
	var results []*types.Program
	if len(uuids) == 0 {
		return results, nil
	}
	if err := r.conn(tx).WithContext(ctx).
		Preload("AuthoringOrganizations").
		Where("uuid IN ?", uuids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *programRepo) ListByPartner(ctx context.Context, tx *gorm.DB, partnerID uuid.UUID, includeDeleted bool) ([]*types.Program, error) {
	q := r.conn(tx).WithContext(ctx).
		Preload("AuthoringOrganizations").
		Where("partner_id = ?", partnerID)
	if !includeDeleted {
		q = q.Where("status <> ?", "deleted")
	}
	var results []*types.Program
	if err := q.Order("title").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *programRepo) ListContainingCourse(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*types.Program, error) {
	var results []*types.Program
	err := r.conn(tx).WithContext(ctx).
		Joins("JOIN program_courses ON program_courses.program_id = program.id").
		Where("program_courses.course_id = ?", courseID).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
