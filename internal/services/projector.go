package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	catalogrepo "github.com/coursegraph/catalog-backend/internal/data/repos/catalog"
	types "github.com/coursegraph/catalog-backend/internal/domain"
	pkgerrors "github.com/coursegraph/catalog-backend/internal/pkg/errors"
	"github.com/coursegraph/catalog-backend/internal/platform/logger"
)

// Projector copies the draft graph onto the official graph. Children are
// matched by natural key (run key, seat type/provider/currency, entitlement
// mode) so official primary keys stay stable across repeated projections.
type Projector interface {
	Project(ctx context.Context, tx *gorm.DB, draft *types.Course) (*types.Course, error)
}

type projector struct {
	log *logger.Logger

	courseRepo   catalogrepo.CourseRepo
	runRepo      catalogrepo.CourseRunRepo
	seatRepo     catalogrepo.SeatRepo
	entRepo      catalogrepo.EntitlementRepo
	slugRepo     catalogrepo.SlugHistoryRepo
	redirectRepo catalogrepo.RedirectRepo
}

func NewProjector(
	baseLog *logger.Logger,
	courseRepo catalogrepo.CourseRepo,
	runRepo catalogrepo.CourseRunRepo,
	seatRepo catalogrepo.SeatRepo,
	entRepo catalogrepo.EntitlementRepo,
	slugRepo catalogrepo.SlugHistoryRepo,
	redirectRepo catalogrepo.RedirectRepo,
) Projector {
	return &projector{
		log:          baseLog.With("service", "Projector"),
		courseRepo:   courseRepo,
		runRepo:      runRepo,
		seatRepo:     seatRepo,
		entRepo:      entRepo,
		slugRepo:     slugRepo,
		redirectRepo: redirectRepo,
	}
}

func (p *projector) Project(ctx context.Context, tx *gorm.DB, draft *types.Course) (*types.Course, error) {
	official, err := p.ensureOfficialCourse(ctx, tx, draft)
	if err != nil {
		return nil, err
	}

	runIDMap, err := p.projectRuns(ctx, tx, draft, official)
	if err != nil {
		return nil, err
	}
	if err := p.projectEntitlements(ctx, tx, draft, official); err != nil {
		return nil, err
	}
	if err := p.projectSlugs(ctx, tx, draft, official); err != nil {
		return nil, err
	}
	if err := p.projectRedirects(ctx, tx, draft, official); err != nil {
		return nil, err
	}

	if err := p.courseRepo.ReplaceOrganizations(ctx, tx, official, draft.AuthoringOrganizations); err != nil {
		return nil, fmt.Errorf("project organizations: %w", err)
	}
	if err := p.courseRepo.ReplaceSubjects(ctx, tx, official, draft.Subjects); err != nil {
		return nil, fmt.Errorf("project subjects: %w", err)
	}

	updates := map[string]any{
		"type_id":           draft.TypeID,
		"key":               draft.Key,
		"number":            draft.Number,
		"title":             draft.Title,
		"short_description": draft.ShortDescription,
		"full_description":  draft.FullDescription,
		"level":             draft.Level,
		"image":             draft.Image,
		"video_src":         draft.VideoSrc,
		"social_urls":       draft.SocialURLs,
		"tags":              draft.Tags,
		"draft_version_id":  draft.ID,
	}
	if draft.CanonicalCourseRunID != nil {
		if mapped, ok := runIDMap[*draft.CanonicalCourseRunID]; ok {
			updates["canonical_course_run_id"] = mapped
		}
	} else {
		updates["canonical_course_run_id"] = nil
	}
	if err := p.courseRepo.UpdateFields(ctx, tx, official.ID, updates); err != nil {
		return nil, fmt.Errorf("project course fields: %w", err)
	}

	return p.courseRepo.Official().GetGraphByUUID(ctx, tx, draft.UUID)
}

func (p *projector) ensureOfficialCourse(ctx context.Context, tx *gorm.DB, draft *types.Course) (*types.Course, error) {
	official, err := p.courseRepo.LockOfficialByUUID(ctx, tx, draft.UUID)
	if err == nil {
		return p.courseRepo.Official().GetGraphByUUID(ctx, tx, draft.UUID)
	}
	if !errors.Is(err, pkgerrors.ErrNotFound) {
		return nil, fmt.Errorf("lock official course: %w", err)
	}

	official = &types.Course{
		ID:        uuid.New(),
		UUID:      draft.UUID,
		Draft:     false,
		PartnerID: draft.PartnerID,
		TypeID:    draft.TypeID,
		Key:       draft.Key,
		Number:    draft.Number,
		Title:     draft.Title,
	}
	if _, err := p.courseRepo.Create(ctx, tx, []*types.Course{official}); err != nil {
		return nil, fmt.Errorf("create official course: %w", err)
	}
	return official, nil
}

// projectRuns mirrors the draft run set onto the official side and returns a
// draft-run-ID to official-run-ID map for canonical run rebinding.
func (p *projector) projectRuns(ctx context.Context, tx *gorm.DB, draft, official *types.Course) (map[uuid.UUID]uuid.UUID, error) {
	byKey := map[string]*types.CourseRun{}
	for i := range official.CourseRuns {
		run := &official.CourseRuns[i]
		byKey[run.Key] = run
	}

	idMap := map[uuid.UUID]uuid.UUID{}
	seen := map[string]bool{}
	for i := range draft.CourseRuns {
		src := &draft.CourseRuns[i]
		seen[src.Key] = true

		dst, exists := byKey[src.Key]
		if !exists {
			dst = &types.CourseRun{
				ID:       uuid.New(),
				CourseID: official.ID,
				Key:      src.Key,
				Draft:    false,
				TypeID:   src.TypeID,
				Status:   src.Status,
			}
			if _, err := p.runRepo.Create(ctx, tx, []*types.CourseRun{dst}); err != nil {
				return nil, fmt.Errorf("create official run: %w", err)
			}
		}
		idMap[src.ID] = dst.ID

		err := p.runRepo.UpdateFields(ctx, tx, dst.ID, map[string]any{
			"type_id":              src.TypeID,
			"status":               src.Status,
			"pacing_type":          src.PacingType,
			"hidden":               src.Hidden,
			"title":                src.Title,
			"start":                src.Start,
			"end":                  src.End,
			"enrollment_start":     src.EnrollmentStart,
			"enrollment_end":       src.EnrollmentEnd,
			"language":             src.Language,
			"transcript_languages": src.TranscriptLanguages,
			"ai_languages":         src.AILanguages,
			"draft_version_id":     src.ID,
		})
		if err != nil {
			return nil, fmt.Errorf("project run fields: %w", err)
		}
		if err := p.runRepo.ReplaceStaff(ctx, tx, dst, src.Staff); err != nil {
			return nil, fmt.Errorf("project staff: %w", err)
		}

		var officialSeats []types.Seat
		if exists {
			officialSeats = dst.Seats
		}
		if err := p.projectSeats(ctx, tx, src, dst.ID, officialSeats); err != nil {
			return nil, err
		}
	}

	// Official runs with no draft counterpart were deleted on the draft side.
	var orphanIDs []uuid.UUID
	for i := range official.CourseRuns {
		run := &official.CourseRuns[i]
		if seen[run.Key] {
			continue
		}
		orphanIDs = append(orphanIDs, run.ID)
		var seatIDs []uuid.UUID
		for _, seat := range run.Seats {
			seatIDs = append(seatIDs, seat.ID)
		}
		if err := p.seatRepo.DeleteByIDs(ctx, tx, seatIDs); err != nil {
			return nil, fmt.Errorf("drop orphan seats: %w", err)
		}
	}
	if err := p.runRepo.DeleteByIDs(ctx, tx, orphanIDs); err != nil {
		return nil, fmt.Errorf("drop orphan runs: %w", err)
	}
	return idMap, nil
}

func (p *projector) projectSeats(ctx context.Context, tx *gorm.DB, draftRun *types.CourseRun, officialRunID uuid.UUID, officialSeats []types.Seat) error {
	byNK := map[types.SeatNaturalKey]*types.Seat{}
	for i := range officialSeats {
		seat := &officialSeats[i]
		byNK[seat.NaturalKey()] = seat
	}

	seen := map[types.SeatNaturalKey]bool{}
	for i := range draftRun.Seats {
		src := &draftRun.Seats[i]
		seen[src.NaturalKey()] = true

		if dst, ok := byNK[src.NaturalKey()]; ok {
			dst.Price = src.Price
			dst.UpgradeDeadline = src.UpgradeDeadline
			dst.DraftVersionID = &src.ID
			if err := p.seatRepo.Save(ctx, tx, dst); err != nil {
				return fmt.Errorf("project seat: %w", err)
			}
			continue
		}
		clone := &types.Seat{
			ID:              uuid.New(),
			CourseRunID:     officialRunID,
			Type:            src.Type,
			CreditProvider:  src.CreditProvider,
			Currency:        src.Currency,
			Price:           src.Price,
			UpgradeDeadline: src.UpgradeDeadline,
			Draft:           false,
			DraftVersionID:  &src.ID,
		}
		if _, err := p.seatRepo.Create(ctx, tx, []*types.Seat{clone}); err != nil {
			return fmt.Errorf("create official seat: %w", err)
		}
	}

	var orphanIDs []uuid.UUID
	for i := range officialSeats {
		seat := &officialSeats[i]
		if !seen[seat.NaturalKey()] {
			orphanIDs = append(orphanIDs, seat.ID)
		}
	}
	if err := p.seatRepo.DeleteByIDs(ctx, tx, orphanIDs); err != nil {
		return fmt.Errorf("drop orphan seats: %w", err)
	}
	return nil
}

func (p *projector) projectEntitlements(ctx context.Context, tx *gorm.DB, draft, official *types.Course) error {
	byMode := map[string]*types.CourseEntitlement{}
	for i := range official.Entitlements {
		ent := &official.Entitlements[i]
		byMode[ent.Mode] = ent
	}

	seen := map[string]bool{}
	for i := range draft.Entitlements {
		src := &draft.Entitlements[i]
		seen[src.Mode] = true

		if dst, ok := byMode[src.Mode]; ok {
			dst.Price = src.Price
			dst.Currency = src.Currency
			dst.DraftVersionID = &src.ID
			if err := p.entRepo.Save(ctx, tx, dst); err != nil {
				return fmt.Errorf("project entitlement: %w", err)
			}
			continue
		}
		clone := &types.CourseEntitlement{
			ID:             uuid.New(),
			CourseID:       official.ID,
			Mode:           src.Mode,
			Price:          src.Price,
			Currency:       src.Currency,
			Draft:          false,
			DraftVersionID: &src.ID,
		}
		if _, err := p.entRepo.Create(ctx, tx, []*types.CourseEntitlement{clone}); err != nil {
			return fmt.Errorf("create official entitlement: %w", err)
		}
	}

	var orphanIDs []uuid.UUID
	for i := range official.Entitlements {
		ent := &official.Entitlements[i]
		if !seen[ent.Mode] {
			orphanIDs = append(orphanIDs, ent.ID)
		}
	}
	if err := p.entRepo.DeleteByIDs(ctx, tx, orphanIDs); err != nil {
		return fmt.Errorf("drop orphan entitlements: %w", err)
	}
	return nil
}

// projectSlugs mirrors the draft slug history onto the official course,
// matching rows by slug value so history survives republication.
func (p *projector) projectSlugs(ctx context.Context, tx *gorm.DB, draft, official *types.Course) error {
	bySlug := map[string]*types.CourseURLSlug{}
	for i := range official.URLSlugHistory {
		row := &official.URLSlugHistory[i]
		bySlug[row.URLSlug] = row
	}

	for i := range draft.URLSlugHistory {
		src := &draft.URLSlugHistory[i]
		if dst, ok := bySlug[src.URLSlug]; ok {
			if dst.IsActive != src.IsActive {
				dst.IsActive = src.IsActive
				if err := p.slugRepo.Save(ctx, tx, dst); err != nil {
					return fmt.Errorf("project slug: %w", err)
				}
			}
			continue
		}
		clone := &types.CourseURLSlug{
			ID:        uuid.New(),
			CourseID:  official.ID,
			PartnerID: src.PartnerID,
			URLSlug:   src.URLSlug,
			IsActive:  src.IsActive,
		}
		if _, err := p.slugRepo.Create(ctx, tx, []*types.CourseURLSlug{clone}); err != nil {
			return fmt.Errorf("create official slug: %w", err)
		}
	}

	// Official slug rows are append-only: a slug that was ever published
	// stays reserved even when the draft no longer lists it, but it cannot
	// stay active.
	for i := range official.URLSlugHistory {
		row := &official.URLSlugHistory[i]
		found := false
		for j := range draft.URLSlugHistory {
			if draft.URLSlugHistory[j].URLSlug == row.URLSlug {
				found = true
				break
			}
		}
		if !found && row.IsActive {
			row.IsActive = false
			if err := p.slugRepo.Save(ctx, tx, row); err != nil {
				return fmt.Errorf("retire official slug: %w", err)
			}
		}
	}
	return nil
}

func (p *projector) projectRedirects(ctx context.Context, tx *gorm.DB, draft, official *types.Course) error {
	existing := map[string]bool{}
	for _, r := range official.URLRedirects {
		existing[r.Value] = true
	}
	for _, src := range draft.URLRedirects {
		if existing[src.Value] {
			continue
		}
		clone := &types.CourseURLRedirect{
			ID:        uuid.New(),
			CourseID:  official.ID,
			PartnerID: src.PartnerID,
			Value:     src.Value,
		}
		if _, err := p.redirectRepo.Create(ctx, tx, []*types.CourseURLRedirect{clone}); err != nil {
			return fmt.Errorf("create official redirect: %w", err)
		}
	}
	return nil
}
