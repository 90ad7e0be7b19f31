package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/coursegraph/catalog-backend/internal/domain"
	"github.com/coursegraph/catalog-backend/internal/platform/logger"
)

// SeatRepo and EntitlementRepo manage the priced-mode children reconciled by
// the projector.

type SeatRepo interface {
	Create(ctx context.Context, tx *gorm.DB, seats []*types.Seat) ([]*types.Seat, error)
	GetByRunIDs(ctx context.Context, tx *gorm.DB, runIDs []uuid.UUID) ([]*types.Seat, error)
	Save(ctx context.Context, tx *gorm.DB, seat *types.Seat) error
	DeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error
}

type seatRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSeatRepo(db *gorm.DB, baseLog *logger.Logger) SeatRepo {
	return &seatRepo{db: db, log: baseLog.With("repo", "SeatRepo")}
}

func (r *seatRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *seatRepo) Create(ctx context.Context, tx *gorm.DB, seats []*types.Seat) ([]*types.Seat, error) {
	if len(seats) == 0 {
		return []*types.Seat{}, nil
	}
	if err := r.conn(tx).WithContext(ctx).Create(&seats).Error; err != nil {
		return nil, err
	}
	return seats, nil
}

func (r *seatRepo) GetByRunIDs(ctx context.Context, tx *gorm.DB, runIDs []uuid.UUID) ([]*types.Seat, error) {
	var results []*types.Seat
	if len(runIDs) == 0 {
		return results, nil
	}
	if err := r.conn(tx).WithContext(ctx).
		Where("course_run_id IN ?", runIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *seatRepo) Save(ctx context.Context, tx *gorm.DB, seat *types.Seat) error {
	return r.conn(tx).WithContext(ctx).Save(seat).Error
}

func (r *seatRepo) DeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Where("id IN ?", ids).Delete(&types.Seat{}).Error
}

type EntitlementRepo interface {
	Create(ctx context.Context, tx *gorm.DB, entitlements []*types.CourseEntitlement) ([]*types.CourseEntitlement, error)
	GetByCourseIDs(ctx context.Context, tx *gorm.DB, courseIDs []uuid.UUID) ([]*types.CourseEntitlement, error)
	Save(ctx context.Context, tx *gorm.DB, entitlement *types.CourseEntitlement) error
	DeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error
}

type entitlementRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEntitlementRepo(db *gorm.DB, baseLog *logger.Logger) EntitlementRepo {
	return &entitlementRepo{db: db, log: baseLog.With("repo", "EntitlementRepo")}
}

func (r *entitlementRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *entitlementRepo) Create(ctx context.Context, tx *gorm.DB, entitlements []*types.CourseEntitlement) ([]*types.CourseEntitlement, error) {
	if len(entitlements) == 0 {
		return []*types.CourseEntitlement{}, nil
	}
	if err := r.conn(tx).WithContext(ctx).Create(&entitlements).Error; err != nil {
		return nil, err
	}
	return entitlements, nil
}

func (r *entitlementRepo) GetByCourseIDs(ctx context.Context, tx *gorm.DB, courseIDs []uuid.UUID) ([]*types.CourseEntitlement, error) {
	var results []*types.CourseEntitlement
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

func (r *entitlementRepo) Save(ctx context.Context, tx *gorm.DB, entitlement *types.CourseEntitlement) error {
	return r.conn(tx).WithContext(ctx).Save(entitlement).Error
}

func (r *entitlementRepo) DeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Where("id IN ?", ids).Delete(&types.CourseEntitlement{}).Error
}
