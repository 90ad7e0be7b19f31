package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coursegraph/catalog-backend/internal/clients/commerce"
	"github.com/coursegraph/catalog-backend/internal/clients/studio"
	catalogrepo "github.com/coursegraph/catalog-backend/internal/data/repos/catalog"
	jobsrepo "github.com/coursegraph/catalog-backend/internal/data/repos/jobs"
	types "github.com/coursegraph/catalog-backend/internal/domain"
	"github.com/coursegraph/catalog-backend/internal/domain/catalog"
	"github.com/coursegraph/catalog-backend/internal/domain/jobs"
	pkgerrors "github.com/coursegraph/catalog-backend/internal/pkg/errors"
	"github.com/coursegraph/catalog-backend/internal/pkg/httpx"
	"github.com/coursegraph/catalog-backend/internal/platform/logger"
)

// safelistedFields are the cosmetic fields whose edits never knock a
// published run back into review.
var safelistedFields = map[string]bool{
	"image":        true,
	"video_src":    true,
	"social_urls":  true,
	"ai_languages": true,
	"tags":         true,
}

// SafelistedOnly reports whether every changed field is cosmetic.
func SafelistedOnly(changed []string) bool {
	for _, f := range changed {
		if !safelistedFields[f] {
			return false
		}
	}
	return true
}

var allowedTransitions = map[string][]string{
	catalog.StatusUnpublished:    {catalog.StatusLegalReview, catalog.StatusInternalReview},
	catalog.StatusLegalReview:    {catalog.StatusInternalReview},
	catalog.StatusInternalReview: {catalog.StatusReviewed},
	catalog.StatusReviewed:       {catalog.StatusPublished},
}

func transitionAllowed(from, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SearchInvalidator drops cached search responses after the official graph
// changes. Implementations must be safe to call with a canceled context.
type SearchInvalidator interface {
	InvalidateSearch(ctx context.Context, partnerID uuid.UUID)
}

type PublishService interface {
	// TransitionRun advances a draft run through the review state machine.
	// Hitting Reviewed creates the official counterparts; hitting Published
	// runs the full projection and external sync pipeline.
	TransitionRun(ctx context.Context, runKey, target string) (*types.CourseRun, error)
	// HandleDraftEdit applies the post-edit status rules: a published run
	// edited in a review-sensitive way resets to Unpublished on both sides;
	// a cosmetic edit re-projects the official graph in place.
	HandleDraftEdit(ctx context.Context, courseUUID uuid.UUID, changed []string) error
	// Publish runs the publication pipeline for a reviewed draft run.
	Publish(ctx context.Context, runKey string) (*types.CourseRun, error)
}

type publishService struct {
	db  *gorm.DB
	log *logger.Logger

	courseRepo catalogrepo.CourseRepo
	runRepo    catalogrepo.CourseRunRepo
	lookupRepo catalogrepo.LookupRepo
	jobRepo    jobsrepo.JobRunRepo

	projector Projector
	studio    studio.Client
	commerce  commerce.Client
	images    ImageLoader
	cache     SearchInvalidator
}

func NewPublishService(
	db *gorm.DB,
	baseLog *logger.Logger,
	courseRepo catalogrepo.CourseRepo,
	runRepo catalogrepo.CourseRunRepo,
	lookupRepo catalogrepo.LookupRepo,
	jobRepo jobsrepo.JobRunRepo,
	projector Projector,
	studioClient studio.Client,
	commerceClient commerce.Client,
	images ImageLoader,
	cache SearchInvalidator,
) PublishService {
	return &publishService{
		db:         db,
		log:        baseLog.With("service", "PublishService"),
		courseRepo: courseRepo,
		runRepo:    runRepo,
		lookupRepo: lookupRepo,
		jobRepo:    jobRepo,
		projector:  projector,
		studio:     studioClient,
		commerce:   commerceClient,
		images:     images,
		cache:      cache,
	}
}

func (s *publishService) TransitionRun(ctx context.Context, runKey, target string) (*types.CourseRun, error) {
	if target == catalog.StatusPublished {
		return s.Publish(ctx, runKey)
	}

	var out *types.CourseRun
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		run, err := s.runRepo.GetByKey(ctx, tx, runKey, true)
		if err != nil {
			return err
		}
		if !transitionAllowed(run.Status, target) {
			return pkgerrors.Newf(pkgerrors.ErrValidation, "Cannot switch from status [%s] to [%s].", run.Status, target)
		}
		if err := s.runRepo.UpdateFields(ctx, tx, run.ID, map[string]any{"status": target}); err != nil {
			return fmt.Errorf("update run status: %w", err)
		}
		run.Status = target

		// The first promotion out of review is the only path that creates
		// the official counterparts.
		if target == catalog.StatusReviewed {
			draft, err := s.draftCourseForRun(ctx, tx, run)
			if err != nil {
				return err
			}
			if _, err := s.projector.Project(ctx, tx, draft); err != nil {
				return err
			}
		}
		out = run
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Publish runs validate, project and external sync inside one transaction so
// a downstream failure rolls back the local projection.
func (s *publishService) Publish(ctx context.Context, runKey string) (*types.CourseRun, error) {
	var (
		out       *types.CourseRun
		partnerID uuid.UUID
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		run, err := s.runRepo.GetByKey(ctx, tx, runKey, true)
		if err != nil {
			return err
		}
		if run.Status != catalog.StatusReviewed && run.Status != catalog.StatusPublished {
			return pkgerrors.Newf(pkgerrors.ErrValidation, "Cannot switch from status [%s] to [%s].", run.Status, catalog.StatusPublished)
		}

		draft, err := s.draftCourseForRun(ctx, tx, run)
		if err != nil {
			return err
		}
		partnerID = draft.PartnerID
		if err := validateDraftForPublish(draft, run); err != nil {
			return err
		}

		if run.Status != catalog.StatusPublished {
			if err := s.runRepo.UpdateFields(ctx, tx, run.ID, map[string]any{"status": catalog.StatusPublished}); err != nil {
				return fmt.Errorf("update run status: %w", err)
			}
			run.Status = catalog.StatusPublished
		}

		official, err := s.projector.Project(ctx, tx, draft)
		if err != nil {
			return err
		}

		partner, err := s.lookupRepo.PartnerByID(ctx, tx, draft.PartnerID)
		if err != nil {
			return fmt.Errorf("load partner: %w", err)
		}
		officialRun := findRunByKey(official, run.Key)
		if officialRun == nil {
			return fmt.Errorf("official run %s missing after projection", run.Key)
		}

		if _, err := s.commerce.PublishProducts(ctx, partner, official, officialRun); err != nil {
			return syncFailure(err)
		}
		if err := s.studio.PublishRun(ctx, partner, officialRun); err != nil {
			return syncFailure(err)
		}
		s.pushRunImage(ctx, partner, official, officialRun)

		if err := s.enqueueReindex(ctx, tx, official); err != nil {
			return err
		}
		out = officialRun
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.InvalidateSearch(ctx, partnerID)
	}
	return out, nil
}

func (s *publishService) HandleDraftEdit(ctx context.Context, courseUUID uuid.UUID, changed []string) error {
	if len(changed) == 0 {
		return nil
	}
	var partnerID uuid.UUID
	reprojected := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		draft, err := s.courseRepo.Drafts().GetGraphByUUID(ctx, tx, courseUUID)
		if err != nil {
			return err
		}
		official, err := s.courseRepo.Official().GetGraphByUUID(ctx, tx, courseUUID)
		if errors.Is(err, pkgerrors.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		partnerID = draft.PartnerID

		if SafelistedOnly(changed) {
			anyPublished := false
			for i := range official.CourseRuns {
				if official.CourseRuns[i].Status == catalog.StatusPublished {
					anyPublished = true
					break
				}
			}
			if anyPublished {
				if _, err := s.projector.Project(ctx, tx, draft); err != nil {
					return err
				}
				if err := s.enqueueReindex(ctx, tx, official); err != nil {
					return err
				}
				reprojected = true
			}
			return nil
		}

		// Review-sensitive edit: published runs on both sides fall back to
		// Unpublished, keeping slug history intact.
		for i := range draft.CourseRuns {
			run := &draft.CourseRuns[i]
			if run.Status != catalog.StatusPublished {
				continue
			}
			if err := s.runRepo.UpdateFields(ctx, tx, run.ID, map[string]any{"status": catalog.StatusUnpublished}); err != nil {
				return fmt.Errorf("reset draft run status: %w", err)
			}
		}
		for i := range official.CourseRuns {
			run := &official.CourseRuns[i]
			if run.Status != catalog.StatusPublished {
				continue
			}
			if err := s.runRepo.UpdateFields(ctx, tx, run.ID, map[string]any{"status": catalog.StatusUnpublished}); err != nil {
				return fmt.Errorf("reset official run status: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if reprojected && s.cache != nil {
		s.cache.InvalidateSearch(ctx, partnerID)
	}
	return nil
}

func (s *publishService) draftCourseForRun(ctx context.Context, tx *gorm.DB, run *types.CourseRun) (*types.Course, error) {
	var course types.Course
	if err := tx.WithContext(ctx).Where("id = ?", run.CourseID).First(&course).Error; err != nil {
		return nil, fmt.Errorf("load run course: %w", err)
	}
	return s.courseRepo.Drafts().GetGraphByUUID(ctx, tx, course.UUID)
}

func (s *publishService) enqueueReindex(ctx context.Context, tx *gorm.DB, official *types.Course) error {
	payload, err := json.Marshal(map[string]string{"course_uuid": official.UUID.String()})
	if err != nil {
		return err
	}
	job := &types.JobRun{
		ID:        uuid.New(),
		Kind:      jobs.KindReindexCourse,
		PartnerID: official.PartnerID,
		Status:    jobs.StatusQueued,
		Payload:   payload,
		RunAt:     time.Now().UTC(),
	}
	if _, err := s.jobRepo.Create(ctx, tx, []*types.JobRun{job}); err != nil {
		return fmt.Errorf("enqueue reindex: %w", err)
	}
	return nil
}

// pushRunImage uploads the course card image for the freshly published run.
// Image failures never fail the publication; they are logged and swallowed.
func (s *publishService) pushRunImage(ctx context.Context, partner *types.Partner, course *types.Course, run *types.CourseRun) {
	if s.images == nil || strings.TrimSpace(course.Image) == "" {
		return
	}
	data, err := s.images(ctx, course.Image)
	if err != nil {
		s.log.Warn("course image load failed, skipping studio upload", "run", run.Key, "image", course.Image, "error", err)
		return
	}
	if err := s.studio.PushImage(ctx, partner, run, path.Base(course.Image), data); err != nil {
		s.log.Warn("studio image upload failed", "run", run.Key, "error", err)
	}
}

// syncFailure converts a downstream publication error into the typed error
// the API echoes. The response body of a non-2xx downstream answer becomes
// the caller-facing message.
func syncFailure(err error) *pkgerrors.Error {
	var statusErr *httpx.StatusError
	if errors.As(err, &statusErr) && statusErr.Body != "" {
		return pkgerrors.Wrap(pkgerrors.ErrExternalSync, statusErr.Body, err)
	}
	return pkgerrors.Wrap(pkgerrors.ErrExternalSync, err.Error(), err)
}

func findRunByKey(course *types.Course, key string) *types.CourseRun {
	for i := range course.CourseRuns {
		if course.CourseRuns[i].Key == key {
			return &course.CourseRuns[i]
		}
	}
	return nil
}

// validateDraftForPublish enforces the pre-publication invariants: entitlement
// modes must match the course type and seat modes must match the run type.
func validateDraftForPublish(draft *types.Course, run *types.CourseRun) error {
	if draft.Type != nil {
		allowed := map[string]bool{}
		for _, mode := range draft.Type.EntitlementModes {
			allowed[mode.Slug] = true
		}
		for i := range draft.Entitlements {
			if !allowed[draft.Entitlements[i].Mode] {
				return pkgerrors.Newf(pkgerrors.ErrValidation,
					"Entitlement mode [%s] is not permitted by course type [%s].",
					draft.Entitlements[i].Mode, draft.Type.Slug)
			}
		}
	}
	draftRun := findRunByKey(draft, run.Key)
	if draftRun == nil {
		return pkgerrors.Newf(pkgerrors.ErrNotFound, "Run [%s] is not part of the draft course.", run.Key)
	}
	if draftRun.Type != nil {
		allowed := map[string]bool{}
		for _, mode := range draftRun.Type.Modes {
			allowed[mode.Slug] = true
		}
		for i := range draftRun.Seats {
			if !allowed[draftRun.Seats[i].Type] {
				return pkgerrors.Newf(pkgerrors.ErrValidation,
					"Seat type [%s] is not permitted by run type [%s].",
					draftRun.Seats[i].Type, draftRun.Type.Slug)
			}
		}
	}
	return nil
}
