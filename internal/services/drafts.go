package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"

	catalogrepo "github.com/coursegraph/catalog-backend/internal/data/repos/catalog"
	types "github.com/coursegraph/catalog-backend/internal/domain"
	"github.com/coursegraph/catalog-backend/internal/domain/catalog"
	pkgerrors "github.com/coursegraph/catalog-backend/internal/pkg/errors"
	"github.com/coursegraph/catalog-backend/internal/platform/logger"
)

var courseNumberRe = regexp.MustCompile(`^[a-zA-Z0-9.]+$`)

// CreateRunSpec describes the optional first run created with a course.
type CreateRunSpec struct {
	RunTypeSlug string
	Term        string
	PacingType  string
	Start       *time.Time
	End         *time.Time
}

// CreateCourseSpec is the payload for creating a brand-new draft course.
type CreateCourseSpec struct {
	PartnerID uuid.UUID
	OrgKey    string
	Number    string
	Title     string
	TypeSlug  string
	// URLSlug is optional; when empty one is generated from the title.
	URLSlug string
	// Prices keys are entitlement mode slugs.
	Prices map[string]float64
	Run    *CreateRunSpec
}

type DraftService interface {
	// EnsureDraft returns the draft row-set view of the course, materializing
	// it from the official graph on first use. Idempotent.
	EnsureDraft(ctx context.Context, tx *gorm.DB, courseUUID uuid.UUID) (*types.Course, error)
	// CreateCourse allocates a new draft course (and optionally its first
	// draft run) with seeded entitlements and a generated or explicit slug.
	CreateCourse(ctx context.Context, spec CreateCourseSpec) (*types.Course, error)
	// PatchCourse applies field updates to the draft and returns the updated
	// draft together with the names of the fields that changed.
	PatchCourse(ctx context.Context, courseUUID uuid.UUID, patch CoursePatch) (*types.Course, []string, error)
}

type draftService struct {
	db  *gorm.DB
	log *logger.Logger

	courseRepo   catalogrepo.CourseRepo
	runRepo      catalogrepo.CourseRunRepo
	seatRepo     catalogrepo.SeatRepo
	entRepo      catalogrepo.EntitlementRepo
	slugRepo     catalogrepo.SlugHistoryRepo
	redirectRepo catalogrepo.RedirectRepo
	lookupRepo   catalogrepo.LookupRepo
}

func NewDraftService(
	db *gorm.DB,
	baseLog *logger.Logger,
	courseRepo catalogrepo.CourseRepo,
	runRepo catalogrepo.CourseRunRepo,
	seatRepo catalogrepo.SeatRepo,
	entRepo catalogrepo.EntitlementRepo,
	slugRepo catalogrepo.SlugHistoryRepo,
	redirectRepo catalogrepo.RedirectRepo,
	lookupRepo catalogrepo.LookupRepo,
) DraftService {
	return &draftService{
		db:           db,
		log:          baseLog.With("service", "DraftService"),
		courseRepo:   courseRepo,
		runRepo:      runRepo,
		seatRepo:     seatRepo,
		entRepo:      entRepo,
		slugRepo:     slugRepo,
		redirectRepo: redirectRepo,
		lookupRepo:   lookupRepo,
	}
}

func (s *draftService) EnsureDraft(ctx context.Context, tx *gorm.DB, courseUUID uuid.UUID) (*types.Course, error) {
	if tx != nil {
		return s.ensureDraft(ctx, tx, courseUUID)
	}
	var out *types.Course
	err := s.db.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var err error
		out, err = s.ensureDraft(ctx, txx, courseUUID)
		return err
	})
	return out, err
}

func (s *draftService) ensureDraft(ctx context.Context, tx *gorm.DB, courseUUID uuid.UUID) (*types.Course, error) {
	existing, err := s.courseRepo.Drafts().GetGraphByUUID(ctx, tx, courseUUID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pkgerrors.ErrNotFound) {
		return nil, fmt.Errorf("load draft course: %w", err)
	}

	official, err := s.courseRepo.Official().GetGraphByUUID(ctx, tx, courseUUID)
	if err != nil {
		return nil, fmt.Errorf("load official course: %w", err)
	}

	cp := planDraftCopy(official)

	if _, err := s.courseRepo.Create(ctx, tx, []*types.Course{cp.Course}); err != nil {
		return nil, fmt.Errorf("materialize draft course: %w", err)
	}
	if _, err := s.runRepo.Create(ctx, tx, cp.Runs); err != nil {
		return nil, fmt.Errorf("materialize draft runs: %w", err)
	}
	if _, err := s.seatRepo.Create(ctx, tx, cp.Seats); err != nil {
		return nil, fmt.Errorf("materialize draft seats: %w", err)
	}
	if _, err := s.entRepo.Create(ctx, tx, cp.Entitlements); err != nil {
		return nil, fmt.Errorf("materialize draft entitlements: %w", err)
	}
	if _, err := s.slugRepo.Create(ctx, tx, cp.Slugs); err != nil {
		return nil, fmt.Errorf("materialize draft slug history: %w", err)
	}
	if _, err := s.redirectRepo.Create(ctx, tx, cp.Redirects); err != nil {
		return nil, fmt.Errorf("materialize draft url redirects: %w", err)
	}

	// Re-bind many-to-many links on the clones.
	if err := s.courseRepo.ReplaceOrganizations(ctx, tx, cp.Course, cp.Orgs); err != nil {
		return nil, fmt.Errorf("link draft organizations: %w", err)
	}
	if err := s.courseRepo.ReplaceSubjects(ctx, tx, cp.Course, cp.Subjects); err != nil {
		return nil, fmt.Errorf("link draft subjects: %w", err)
	}
	for _, run := range cp.Runs {
		if staff := cp.StaffByRun[run.ID]; len(staff) > 0 {
			if err := s.runRepo.ReplaceStaff(ctx, tx, run, staff); err != nil {
				return nil, fmt.Errorf("link draft staff: %w", err)
			}
		}
	}

	// Point the official rows at their new draft counterparts.
	if err := s.courseRepo.UpdateFields(ctx, tx, official.ID, map[string]any{"draft_version_id": cp.Course.ID}); err != nil {
		return nil, fmt.Errorf("link official course to draft: %w", err)
	}
	for cloneID, srcRun := range cp.SourceRunByCloneID {
		id := cloneID
		if err := s.runRepo.UpdateFields(ctx, tx, srcRun.ID, map[string]any{"draft_version_id": id}); err != nil {
			return nil, fmt.Errorf("link official run to draft: %w", err)
		}
	}
	for cloneID, srcSeat := range cp.SourceSeatByCloneID {
		id := cloneID
		if err := tx.WithContext(ctx).Model(&types.Seat{}).Where("id = ?", srcSeat.ID).
			Update("draft_version_id", id).Error; err != nil {
			return nil, fmt.Errorf("link official seat to draft: %w", err)
		}
	}
	for cloneID, srcEnt := range cp.SourceEntitlementByCloneID {
		id := cloneID
		if err := tx.WithContext(ctx).Model(&types.CourseEntitlement{}).Where("id = ?", srcEnt.ID).
			Update("draft_version_id", id).Error; err != nil {
			return nil, fmt.Errorf("link official entitlement to draft: %w", err)
		}
	}

	return s.courseRepo.Drafts().GetGraphByUUID(ctx, tx, courseUUID)
}

func (s *draftService) CreateCourse(ctx context.Context, spec CreateCourseSpec) (*types.Course, error) {
	if spec.Title == "" {
		return nil, pkgerrors.New(pkgerrors.ErrValidation, "Course creation requires a title.")
	}
	if spec.Number == "" || !courseNumberRe.MatchString(spec.Number) {
		return nil, pkgerrors.New(pkgerrors.ErrValidation, "Course number may contain only alphanumeric characters and periods.")
	}

	var created *types.Course
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := s.lookupRepo.OrganizationByKey(ctx, tx, spec.PartnerID, spec.OrgKey)
		if err != nil {
			return pkgerrors.Newf(pkgerrors.ErrValidation, "Organization [%s] does not exist.", spec.OrgKey)
		}
		courseType, err := s.lookupRepo.CourseTypeBySlug(ctx, tx, spec.TypeSlug)
		if err != nil {
			return pkgerrors.Newf(pkgerrors.ErrValidation, "Course Type [%s] does not exist.", spec.TypeSlug)
		}

		key := fmt.Sprintf("%s+%s", org.Key, spec.Number)
		if _, err := s.courseRepo.Both().GetByKey(ctx, tx, spec.PartnerID, key); err == nil {
			return pkgerrors.Newf(pkgerrors.ErrValidation, "A course with key [%s] already exists.", key)
		}

		urlSlug := spec.URLSlug
		if urlSlug == "" {
			urlSlug, err = s.generateSlug(ctx, tx, spec.PartnerID, spec.Title)
			if err != nil {
				return err
			}
		} else if err := s.checkSlugAvailable(ctx, tx, spec.PartnerID, uuid.Nil, urlSlug); err != nil {
			return err
		}

		course := &types.Course{
			ID:        uuid.New(),
			UUID:      uuid.New(),
			Draft:     true,
			PartnerID: spec.PartnerID,
			TypeID:    courseType.ID,
			Key:       key,
			Number:    spec.Number,
			Title:     spec.Title,
		}
		if _, err := s.courseRepo.Create(ctx, tx, []*types.Course{course}); err != nil {
			return fmt.Errorf("create draft course: %w", err)
		}
		if err := s.courseRepo.ReplaceOrganizations(ctx, tx, course, []types.Organization{*org}); err != nil {
			return fmt.Errorf("link authoring organization: %w", err)
		}

		slugRow := &types.CourseURLSlug{
			ID:        uuid.New(),
			CourseID:  course.ID,
			PartnerID: spec.PartnerID,
			URLSlug:   urlSlug,
			IsActive:  true,
		}
		if _, err := s.slugRepo.Create(ctx, tx, []*types.CourseURLSlug{slugRow}); err != nil {
			return fmt.Errorf("create slug history: %w", err)
		}

		// Seed one draft entitlement per mode permitted by the course type.
		for _, mode := range courseType.EntitlementModes {
			ent := &types.CourseEntitlement{
				ID:       uuid.New(),
				CourseID: course.ID,
				Mode:     mode.Slug,
				Price:    spec.Prices[mode.Slug],
				Currency: "USD",
				Draft:    true,
			}
			if _, err := s.entRepo.Create(ctx, tx, []*types.CourseEntitlement{ent}); err != nil {
				return fmt.Errorf("seed entitlement: %w", err)
			}
		}

		if spec.Run != nil {
			if err := s.createDraftRun(ctx, tx, course, org.Key, spec); err != nil {
				return err
			}
		}

		created = course
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.courseRepo.Drafts().GetGraphByUUID(ctx, nil, created.UUID)
}

func (s *draftService) createDraftRun(ctx context.Context, tx *gorm.DB, course *types.Course, orgKey string, spec CreateCourseSpec) error {
	runType, err := s.lookupRepo.CourseRunTypeBySlug(ctx, tx, spec.Run.RunTypeSlug)
	if err != nil {
		return pkgerrors.Newf(pkgerrors.ErrValidation, "Course Run Type [%s] does not exist.", spec.Run.RunTypeSlug)
	}
	term := spec.Run.Term
	if term == "" {
		term = deriveTerm(spec.Run.Start)
	}
	pacing := spec.Run.PacingType
	if pacing == "" {
		pacing = catalog.PacingInstructor
	}
	run := &types.CourseRun{
		ID:         uuid.New(),
		CourseID:   course.ID,
		Key:        fmt.Sprintf("course-v1:%s+%s+%s", orgKey, spec.Number, term),
		Draft:      true,
		TypeID:     runType.ID,
		Status:     catalog.StatusUnpublished,
		PacingType: pacing,
		Title:      course.Title,
		Start:      spec.Run.Start,
		End:        spec.Run.End,
	}
	if _, err := s.runRepo.Create(ctx, tx, []*types.CourseRun{run}); err != nil {
		return fmt.Errorf("create draft run: %w", err)
	}
	if err := s.courseRepo.UpdateFields(ctx, tx, course.ID, map[string]any{"canonical_course_run_id": run.ID}); err != nil {
		return fmt.Errorf("set canonical run: %w", err)
	}

	// Seats matching the run type's modes.
	for _, mode := range runType.Modes {
		seat := &types.Seat{
			ID:          uuid.New(),
			CourseRunID: run.ID,
			Type:        mode.Slug,
			Price:       spec.Prices[mode.Slug],
			Currency:    "USD",
			Draft:       true,
		}
		if _, err := s.seatRepo.Create(ctx, tx, []*types.Seat{seat}); err != nil {
			return fmt.Errorf("seed seat: %w", err)
		}
	}
	return nil
}

// generateSlug walks slugify(title), -2, -3, ... until no active slug in the
// partner collides.
func (s *draftService) generateSlug(ctx context.Context, tx *gorm.DB, partnerID uuid.UUID, title string) (string, error) {
	active, err := s.slugRepo.ActiveSlugsByPartner(ctx, tx, partnerID)
	if err != nil {
		return "", fmt.Errorf("load active slugs: %w", err)
	}
	base := slug.Make(title)
	candidate := base
	for n := 2; active[candidate]; n++ {
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
	return candidate, nil
}

// checkSlugAvailable enforces the partner-wide slug rules: a slug active on a
// different course is taken, a slug present in another course's history is
// reserved, and a slug from this course's own history may be reused.
func (s *draftService) checkSlugAvailable(ctx context.Context, tx *gorm.DB, partnerID, courseUUID uuid.UUID, urlSlug string) error {
	rows, err := s.slugRepo.FindByPartnerAndSlug(ctx, tx, partnerID, urlSlug)
	if err != nil {
		return fmt.Errorf("check slug: %w", err)
	}
	for _, row := range rows {
		if courseUUID != uuid.Nil && row.CourseUUID == courseUUID {
			continue
		}
		return pkgerrors.Newf(
			pkgerrors.ErrValidation,
			"Failed to set data: Course creation was unsuccessful. The course URL slug ‘[%s]’ is already in use. Please update this field and try again.",
			urlSlug,
		)
	}
	return nil
}

// deriveTerm produces a term string like 1T2026 from a start date.
func deriveTerm(start *time.Time) string {
	t := time.Now().UTC()
	if start != nil {
		t = start.UTC()
	}
	quarter := (int(t.Month())-1)/3 + 1
	return fmt.Sprintf("%dT%d", quarter, t.Year())
}
