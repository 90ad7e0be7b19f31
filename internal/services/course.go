package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	catalogrepo "github.com/coursegraph/catalog-backend/internal/data/repos/catalog"
	types "github.com/coursegraph/catalog-backend/internal/domain"
	pkgerrors "github.com/coursegraph/catalog-backend/internal/pkg/errors"
	"github.com/coursegraph/catalog-backend/internal/platform/logger"
)

// CourseService is the API-facing orchestration over drafts, review and
// publication.
type CourseService interface {
	// Get resolves a course by key or uuid. With editable set the draft view
	// is returned (materializing it when needed) and a missing entitlement is
	// derived from the active runs' seats when they agree on one mode/price.
	Get(ctx context.Context, partnerID uuid.UUID, keyOrUUID string, editable bool) (*types.Course, error)
	List(ctx context.Context, partnerID uuid.UUID, filter catalogrepo.CourseFilter, editable bool) ([]*types.Course, error)
	Create(ctx context.Context, spec CreateCourseSpec) (*types.Course, error)
	// Patch edits the draft and applies the post-edit review-status rules.
	Patch(ctx context.Context, partnerID uuid.UUID, keyOrUUID string, patch CoursePatch) (*types.Course, error)
}

type courseService struct {
	db  *gorm.DB
	log *logger.Logger

	courseRepo catalogrepo.CourseRepo
	entRepo    catalogrepo.EntitlementRepo
	drafts     DraftService
	publish    PublishService
}

func NewCourseService(
	db *gorm.DB,
	baseLog *logger.Logger,
	courseRepo catalogrepo.CourseRepo,
	entRepo catalogrepo.EntitlementRepo,
	drafts DraftService,
	publish PublishService,
) CourseService {
	return &courseService{
		db:         db,
		log:        baseLog.With("service", "CourseService"),
		courseRepo: courseRepo,
		entRepo:    entRepo,
		drafts:     drafts,
		publish:    publish,
	}
}

// resolveUUID turns a key-or-uuid path token into the course business UUID.
func (s *courseService) resolveUUID(ctx context.Context, tx *gorm.DB, partnerID uuid.UUID, keyOrUUID string) (uuid.UUID, error) {
	if id, err := uuid.Parse(keyOrUUID); err == nil {
		return id, nil
	}
	course, err := s.courseRepo.Both().GetByKey(ctx, tx, partnerID, keyOrUUID)
	if err != nil {
		return uuid.Nil, err
	}
	return course.UUID, nil
}

func (s *courseService) Get(ctx context.Context, partnerID uuid.UUID, keyOrUUID string, editable bool) (*types.Course, error) {
	var out *types.Course
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		id, err := s.resolveUUID(ctx, tx, partnerID, keyOrUUID)
		if err != nil {
			return err
		}
		if !editable {
			out, err = s.courseRepo.Official().GetGraphByUUID(ctx, tx, id)
			if errors.Is(err, pkgerrors.ErrNotFound) {
				// Unpublished courses only exist as drafts.
				out, err = s.courseRepo.Drafts().GetGraphByUUID(ctx, tx, id)
			}
			return err
		}
		draft, err := s.drafts.EnsureDraft(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.deriveMissingEntitlement(ctx, tx, draft); err != nil {
			return err
		}
		out, err = s.courseRepo.Drafts().GetGraphByUUID(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *courseService) List(ctx context.Context, partnerID uuid.UUID, filter catalogrepo.CourseFilter, editable bool) ([]*types.Course, error) {
	filter.PartnerID = partnerID
	set := s.courseRepo.Official()
	if editable {
		set = s.courseRepo.Drafts()
	}
	return set.List(ctx, nil, filter)
}

func (s *courseService) Create(ctx context.Context, spec CreateCourseSpec) (*types.Course, error) {
	return s.drafts.CreateCourse(ctx, spec)
}

func (s *courseService) Patch(ctx context.Context, partnerID uuid.UUID, keyOrUUID string, patch CoursePatch) (*types.Course, error) {
	var id uuid.UUID
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		id, err = s.resolveUUID(ctx, tx, partnerID, keyOrUUID)
		return err
	})
	if err != nil {
		return nil, err
	}

	course, changed, err := s.drafts.PatchCourse(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if err := s.publish.HandleDraftEdit(ctx, id, changed); err != nil {
		return nil, err
	}
	return course, nil
}

// deriveMissingEntitlement lazily creates a draft entitlement when all the
// draft's active run seats agree on a single paid mode, price and currency.
func (s *courseService) deriveMissingEntitlement(ctx context.Context, tx *gorm.DB, draft *types.Course) error {
	if len(draft.Entitlements) > 0 {
		return nil
	}

	var (
		mode     string
		price    float64
		currency string
		found    bool
	)
	for i := range draft.CourseRuns {
		run := &draft.CourseRuns[i]
		for j := range run.Seats {
			seat := &run.Seats[j]
			if seat.Price <= 0 {
				continue
			}
			if !found {
				mode, price, currency, found = seat.Type, seat.Price, seat.Currency, true
				continue
			}
			if seat.Type != mode || seat.Price != price || seat.Currency != currency {
				// Disagreement; nothing to derive.
				return nil
			}
		}
	}
	if !found {
		return nil
	}

	ent := &types.CourseEntitlement{
		ID:       uuid.New(),
		CourseID: draft.ID,
		Mode:     mode,
		Price:    price,
		Currency: currency,
		Draft:    true,
	}
	if _, err := s.entRepo.Create(ctx, tx, []*types.CourseEntitlement{ent}); err != nil {
		return err
	}
	s.log.Info("Derived missing entitlement from run seats", "course", draft.UUID.String(), "mode", mode)
	return nil
}
