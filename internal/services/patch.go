package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/coursegraph/catalog-backend/internal/domain"
	pkgerrors "github.com/coursegraph/catalog-backend/internal/pkg/errors"
)

// CoursePatch carries the updatable course fields; nil means "leave alone".
type CoursePatch struct {
	Title            *string
	ShortDescription *string
	FullDescription  *string
	Level            *string

	Image      *string
	VideoSrc   *string
	SocialURLs datatypes.JSON
	Tags       datatypes.JSON

	TypeSlug *string
	URLSlug  *string

	SubjectSlugs []string
	// Prices keys are entitlement mode slugs; present keys reprice the
	// matching draft entitlement.
	Prices map[string]float64
}

func (s *draftService) PatchCourse(ctx context.Context, courseUUID uuid.UUID, patch CoursePatch) (*types.Course, []string, error) {
	var (
		out     *types.Course
		changed []string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		draft, err := s.ensureDraft(ctx, tx, courseUUID)
		if err != nil {
			return err
		}

		updates := map[string]any{}
		setStr := func(field string, cur string, next *string) {
			if next != nil && *next != cur {
				updates[field] = *next
				changed = append(changed, field)
			}
		}
		setStr("title", draft.Title, patch.Title)
		setStr("short_description", draft.ShortDescription, patch.ShortDescription)
		setStr("full_description", draft.FullDescription, patch.FullDescription)
		setStr("level", draft.Level, patch.Level)
		setStr("image", draft.Image, patch.Image)
		setStr("video_src", draft.VideoSrc, patch.VideoSrc)
		if patch.SocialURLs != nil && string(patch.SocialURLs) != string(draft.SocialURLs) {
			updates["social_urls"] = patch.SocialURLs
			changed = append(changed, "social_urls")
		}
		if patch.Tags != nil && string(patch.Tags) != string(draft.Tags) {
			updates["tags"] = patch.Tags
			changed = append(changed, "tags")
		}

		if patch.TypeSlug != nil {
			if err := s.applyTypeChange(ctx, tx, draft, *patch.TypeSlug, updates, &changed); err != nil {
				return err
			}
		}

		if patch.URLSlug != nil {
			moved, err := s.applySlugChange(ctx, tx, draft, *patch.URLSlug)
			if err != nil {
				return err
			}
			if moved {
				changed = append(changed, "url_slug")
			}
		}

		if len(updates) > 0 {
			if err := s.courseRepo.UpdateFields(ctx, tx, draft.ID, updates); err != nil {
				return fmt.Errorf("update draft course: %w", err)
			}
		}

		if patch.SubjectSlugs != nil {
			subjects, err := s.lookupRepo.SubjectsBySlugs(ctx, tx, draft.PartnerID, patch.SubjectSlugs)
			if err != nil {
				return fmt.Errorf("resolve subjects: %w", err)
			}
			if len(subjects) != len(patch.SubjectSlugs) {
				return pkgerrors.New(pkgerrors.ErrValidation, "One or more subjects do not exist.")
			}
			vals := make([]types.Subject, 0, len(subjects))
			for _, sub := range subjects {
				vals = append(vals, *sub)
			}
			if err := s.courseRepo.ReplaceSubjects(ctx, tx, draft, vals); err != nil {
				return fmt.Errorf("replace subjects: %w", err)
			}
			changed = append(changed, "subjects")
		}

		if len(patch.Prices) > 0 {
			repriced, err := s.repriceEntitlements(ctx, tx, draft, patch.Prices)
			if err != nil {
				return err
			}
			if repriced {
				changed = append(changed, "entitlements")
			}
		}

		out, err = s.courseRepo.Drafts().GetGraphByUUID(ctx, tx, courseUUID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return out, changed, nil
}

// applyTypeChange swaps the course type on a never-reviewed draft. Once an
// official version exists the entitlement products were already pushed
// downstream, so the type is frozen.
func (s *draftService) applyTypeChange(ctx context.Context, tx *gorm.DB, draft *types.Course, typeSlug string, updates map[string]any, changed *[]string) error {
	newType, err := s.lookupRepo.CourseTypeBySlug(ctx, tx, typeSlug)
	if err != nil {
		return pkgerrors.Newf(pkgerrors.ErrValidation, "Course Type [%s] does not exist.", typeSlug)
	}
	if newType.ID == draft.TypeID {
		return nil
	}
	if _, err := s.courseRepo.Official().GetByUUID(ctx, tx, draft.UUID); err == nil {
		return pkgerrors.New(pkgerrors.ErrConflict, "Switching entitlement types after being reviewed is not supported.")
	} else if !errors.Is(err, pkgerrors.ErrNotFound) {
		return fmt.Errorf("check official course: %w", err)
	}
	updates["type_id"] = newType.ID
	*changed = append(*changed, "type")

	// Rebuild the seeded entitlements for the new type's modes, carrying
	// prices over where the mode survives.
	prices := map[string]float64{}
	var staleIDs []uuid.UUID
	for _, ent := range draft.Entitlements {
		prices[ent.Mode] = ent.Price
		staleIDs = append(staleIDs, ent.ID)
	}
	if err := s.entRepo.DeleteByIDs(ctx, tx, staleIDs); err != nil {
		return fmt.Errorf("drop stale entitlements: %w", err)
	}
	for _, mode := range newType.EntitlementModes {
		ent := &types.CourseEntitlement{
			ID:       uuid.New(),
			CourseID: draft.ID,
			Mode:     mode.Slug,
			Price:    prices[mode.Slug],
			Currency: "USD",
			Draft:    true,
		}
		if _, err := s.entRepo.Create(ctx, tx, []*types.CourseEntitlement{ent}); err != nil {
			return fmt.Errorf("reseed entitlement: %w", err)
		}
	}
	return nil
}

// applySlugChange updates the active slug-history row. Slug rows of a course
// that has been published are deactivated but kept; a draft-only course just
// repoints its single row. Reusing a slug from the course's own history
// reactivates the old row.
func (s *draftService) applySlugChange(ctx context.Context, tx *gorm.DB, draft *types.Course, urlSlug string) (bool, error) {
	active := draft.ActiveURLSlug()
	if active != nil && active.URLSlug == urlSlug {
		return false, nil
	}
	if err := s.checkSlugAvailable(ctx, tx, draft.PartnerID, draft.UUID, urlSlug); err != nil {
		return false, err
	}

	published := false
	if _, err := s.courseRepo.Official().GetByUUID(ctx, tx, draft.UUID); err == nil {
		published = true
	} else if !errors.Is(err, pkgerrors.ErrNotFound) {
		return false, fmt.Errorf("check official course: %w", err)
	}

	if active != nil {
		if published {
			active.IsActive = false
			if err := s.slugRepo.Save(ctx, tx, active); err != nil {
				return false, fmt.Errorf("deactivate slug: %w", err)
			}
		} else if err := s.slugRepo.DeleteByIDs(ctx, tx, []uuid.UUID{active.ID}); err != nil {
			return false, fmt.Errorf("drop unpublished slug: %w", err)
		}
	}

	// Reactivate a historical row when the slug was this course's before.
	for i := range draft.URLSlugHistory {
		row := &draft.URLSlugHistory[i]
		if row.URLSlug == urlSlug && !row.IsActive {
			row.IsActive = true
			if err := s.slugRepo.Save(ctx, tx, row); err != nil {
				return false, fmt.Errorf("reactivate slug: %w", err)
			}
			return true, nil
		}
	}

	row := &types.CourseURLSlug{
		ID:        uuid.New(),
		CourseID:  draft.ID,
		PartnerID: draft.PartnerID,
		URLSlug:   urlSlug,
		IsActive:  true,
	}
	if _, err := s.slugRepo.Create(ctx, tx, []*types.CourseURLSlug{row}); err != nil {
		return false, fmt.Errorf("create slug: %w", err)
	}
	return true, nil
}

func (s *draftService) repriceEntitlements(ctx context.Context, tx *gorm.DB, draft *types.Course, prices map[string]float64) (bool, error) {
	repriced := false
	for i := range draft.Entitlements {
		ent := &draft.Entitlements[i]
		price, ok := prices[ent.Mode]
		if !ok || price == ent.Price {
			continue
		}
		ent.Price = price
		if err := s.entRepo.Save(ctx, tx, ent); err != nil {
			return false, fmt.Errorf("reprice entitlement: %w", err)
		}
		repriced = true
	}
	return repriced, nil
}
