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

// courseGraphPreloads loads everything the copy-on-write machinery needs in
// one pass: child collections plus owned many-to-many links.
var courseGraphPreloads = []string{
	"Type", "Type.EntitlementModes",
	"CourseRuns", "CourseRuns.Seats", "CourseRuns.Staff", "CourseRuns.Type", "CourseRuns.Type.Modes",
	"Entitlements", "URLSlugHistory", "URLRedirects",
	"AuthoringOrganizations", "Subjects", "Topics",
}

// CourseFilter narrows course listings.
type CourseFilter struct {
	PartnerID uuid.UUID
	Keys      []string
	UUIDs     []uuid.UUID
	// Statuses restricts to courses having at least one run in the given statuses.
	Statuses []string
}

// CourseRowSet is a typed view over one of the two logical course tables
// (draft rows, official rows) or their union.
type CourseRowSet interface {
	GetByUUID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Course, error)
	GetByKey(ctx context.Context, tx *gorm.DB, partnerID uuid.UUID, key string) (*types.Course, error)
	// GetGraphByUUID loads the course with every owned child collection.
	GetGraphByUUID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Course, error)
	List(ctx context.Context, tx *gorm.DB, filter CourseFilter) ([]*types.Course, error)
}

type CourseRepo interface {
	// Drafts, Official and Both expose the two logical row-sets.
	Drafts() CourseRowSet
	Official() CourseRowSet
	Both() CourseRowSet

	Create(ctx context.Context, tx *gorm.DB, courses []*types.Course) ([]*types.Course, error)
	Save(ctx context.Context, tx *gorm.DB, course *types.Course) error
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]any) error
	ReplaceOrganizations(ctx context.Context, tx *gorm.DB, course *types.Course, orgs []types.Organization) error
	ReplaceSubjects(ctx context.Context, tx *gorm.DB, course *types.Course, subjects []types.Subject) error

	// LockOfficialByUUID takes a row-level lock on the official course row,
	// serializing concurrent publications of the same course. Returns
	// ErrNotFound when no official row exists yet.
	LockOfficialByUUID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Course, error)
}

type courseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseRepo(db *gorm.DB, baseLog *logger.Logger) CourseRepo {
	repoLog := baseLog.With("repo", "CourseRepo")
	return &courseRepo{db: db, log: repoLog}
}

type courseRowSet struct {
	repo *courseRepo
	// draft is nil for the union view.
	draft *bool
}

func (r *courseRepo) Drafts() CourseRowSet {
	d := true
	return &courseRowSet{repo: r, draft: &d}
}

func (r *courseRepo) Official() CourseRowSet {
	d := false
	return &courseRowSet{repo: r, draft: &d}
}

func (r *courseRepo) Both() CourseRowSet {
	return &courseRowSet{repo: r}
}

func (r *courseRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (s *courseRowSet) scope(tx *gorm.DB) *gorm.DB {
	q := s.repo.conn(tx)
	if s.draft != nil {
		q = q.Where("course.draft = ?", *s.draft)
	}
	return q
}

func (s *courseRowSet) GetByUUID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Course, error) {
	var result types.Course
	err := s.scope(tx).WithContext(ctx).
		Where("course.uuid = ?", id).
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *courseRowSet) GetByKey(ctx context.Context, tx *gorm.DB, partnerID uuid.UUID, key string) (*types.Course, error) {
	var result types.Course
	err := s.scope(tx).WithContext(ctx).
		Where("course.partner_id = ? AND course.key = ?", partnerID, key).
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *courseRowSet) GetGraphByUUID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Course, error) {
	q := s.scope(tx).WithContext(ctx)
	for _, preload := range courseGraphPreloads {
		q = q.Preload(preload)
	}
	var result types.Course
	err := q.Where("course.uuid = ?", id).First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *courseRowSet) List(ctx context.Context, tx *gorm.DB, filter CourseFilter) ([]*types.Course, error) {
	q := s.scope(tx).WithContext(ctx)
	if filter.PartnerID != uuid.Nil {
		q = q.Where("course.partner_id = ?", filter.PartnerID)
	}
	if len(filter.Keys) > 0 {
		q = q.Where("course.key IN ?", filter.Keys)
	}
	if len(filter.UUIDs) > 0 {
		q = q.Where("course.uuid IN ?", filter.UUIDs)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where(
			"EXISTS (SELECT 1 FROM course_run WHERE course_run.course_id = course.id AND course_run.status IN ?)",
			filter.Statuses,
		)
	}
	var results []*types.Course
	if err := q.Order("course.key").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *courseRepo) Create(ctx context.Context, tx *gorm.DB, courses []*types.Course) ([]*types.Course, error) {
	if len(courses) == 0 {
		return []*types.Course{}, nil
	}
	if err := r.conn(tx).WithContext(ctx).Omit(clause.Associations).Create(&courses).Error; err != nil {
		return nil, err
	}
	return courses, nil
}

func (r *courseRepo) Save(ctx context.Context, tx *gorm.DB, course *types.Course) error {
	return r.conn(tx).WithContext(ctx).Omit(clause.Associations).Save(course).Error
}

func (r *courseRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]any) error {
	return r.conn(tx).WithContext(ctx).
		Model(&types.Course{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *courseRepo) ReplaceOrganizations(ctx context.Context, tx *gorm.DB, course *types.Course, orgs []types.Organization) error {
	return r.conn(tx).WithContext(ctx).
		Model(course).
		Association("AuthoringOrganizations").
		Replace(orgs)
}

func (r *courseRepo) ReplaceSubjects(ctx context.Context, tx *gorm.DB, course *types.Course, subjects []types.Subject) error {
	return r.conn(tx).WithContext(ctx).
		Model(course).
		Association("Subjects").
		Replace(subjects)
}

func (r *courseRepo) LockOfficialByUUID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Course, error) {
	var result types.Course
	err := r.conn(tx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("course.uuid = ? AND course.draft = ?", id, false).
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}
