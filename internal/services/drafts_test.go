package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	catalogrepo "github.com/coursegraph/catalog-backend/internal/data/repos/catalog"
	"github.com/coursegraph/catalog-backend/internal/data/repos/testutil"
	types "github.com/coursegraph/catalog-backend/internal/domain"
	"github.com/coursegraph/catalog-backend/internal/domain/catalog"
)

func newDraftService(t *testing.T, tx *gorm.DB) DraftService {
	t.Helper()
	log := testutil.Logger(t)
	return NewDraftService(
		tx,
		log,
		catalogrepo.NewCourseRepo(tx, log),
		catalogrepo.NewCourseRunRepo(tx, log),
		catalogrepo.NewSeatRepo(tx, log),
		catalogrepo.NewEntitlementRepo(tx, log),
		catalogrepo.NewSlugHistoryRepo(tx, log),
		catalogrepo.NewRedirectRepo(tx, log),
		catalogrepo.NewLookupRepo(tx, log),
	)
}

func seedOfficialWorld(t *testing.T, ctx context.Context, tx *gorm.DB) (*types.Partner, *types.Course, *types.CourseRun) {
	t.Helper()
	p := testutil.SeedPartner(t, ctx, tx, "edX")
	ct := testutil.SeedCourseType(t, ctx, tx, "verified-audit", "verified", "audit")
	rt := testutil.SeedCourseRunType(t, ctx, tx, ct.ID, "verified-audit-run", "verified", "audit")

	course := testutil.SeedCourse(t, ctx, tx, p.ID, ct.ID, uuid.New(), "edX+test101", false)
	run := testutil.SeedCourseRun(t, ctx, tx, course.ID, rt.ID, testutil.RunKey("edX", "test101", "1T2026"), false, catalog.StatusPublished)

	seat := &types.Seat{ID: uuid.New(), CourseRunID: run.ID, Type: "verified", Currency: "USD", Price: 77.77}
	if err := tx.Create(seat).Error; err != nil {
		t.Fatalf("seed seat: %v", err)
	}
	ent := &types.CourseEntitlement{ID: uuid.New(), CourseID: course.ID, Mode: "verified", Currency: "USD", Price: 77.77}
	if err := tx.Create(ent).Error; err != nil {
		t.Fatalf("seed entitlement: %v", err)
	}
	testutil.SeedActiveSlug(t, ctx, tx, course.ID, p.ID, "course-title")

	course.CanonicalCourseRunID = &run.ID
	if err := tx.Model(&types.Course{}).Where("id = ?", course.ID).
		Update("canonical_course_run_id", run.ID).Error; err != nil {
		t.Fatalf("set canonical run: %v", err)
	}
	return p, course, run
}

func TestEnsureDraftMaterializesOfficialGraph(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	_, official, run := seedOfficialWorld(t, ctx, tx)
	svc := newDraftService(t, tx)

	draft, err := svc.EnsureDraft(ctx, tx, official.UUID)
	if err != nil {
		t.Fatalf("EnsureDraft: %v", err)
	}
	if !draft.Draft || draft.ID == official.ID {
		t.Fatalf("expected a fresh draft row, got draft=%v id=%v", draft.Draft, draft.ID)
	}
	if len(draft.CourseRuns) != 1 || draft.CourseRuns[0].Key != run.Key {
		t.Fatalf("draft runs not copied: %+v", draft.CourseRuns)
	}
	if len(draft.CourseRuns[0].Seats) != 1 || draft.CourseRuns[0].Seats[0].Price != 77.77 {
		t.Fatalf("draft seats not copied: %+v", draft.CourseRuns[0].Seats)
	}
	if len(draft.Entitlements) != 1 {
		t.Fatalf("draft entitlements not copied: %+v", draft.Entitlements)
	}
	if active := draft.ActiveURLSlug(); active == nil || active.URLSlug != "course-title" {
		t.Fatalf("active slug not copied: %+v", draft.URLSlugHistory)
	}
	if draft.CanonicalCourseRunID == nil || *draft.CanonicalCourseRunID != draft.CourseRuns[0].ID {
		t.Fatalf("canonical run not rebound to the clone")
	}

	// The official side now points at the draft.
	var reloaded types.Course
	if err := tx.Where("id = ?", official.ID).First(&reloaded).Error; err != nil {
		t.Fatalf("reload official: %v", err)
	}
	if reloaded.DraftVersionID == nil || *reloaded.DraftVersionID != draft.ID {
		t.Fatalf("official draft_version_id not set")
	}
}

func TestEnsureDraftIsIdempotent(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	_, official, _ := seedOfficialWorld(t, ctx, tx)
	svc := newDraftService(t, tx)

	first, err := svc.EnsureDraft(ctx, tx, official.UUID)
	if err != nil {
		t.Fatalf("EnsureDraft: %v", err)
	}
	second, err := svc.EnsureDraft(ctx, tx, official.UUID)
	if err != nil {
		t.Fatalf("EnsureDraft again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the existing draft back, got %v then %v", first.ID, second.ID)
	}
}

func TestCreateCourseGeneratesDisambiguatedSlug(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	p := testutil.SeedPartner(t, ctx, tx, "edX")
	ct := testutil.SeedCourseType(t, ctx, tx, "audit", "audit")
	testutil.SeedOrganization(t, ctx, tx, p.ID, "edX")

	// Occupy the base slug so the new course lands on -2.
	other := testutil.SeedCourse(t, ctx, tx, p.ID, ct.ID, uuid.New(), "edX+other", true)
	testutil.SeedActiveSlug(t, ctx, tx, other.ID, p.ID, "course-title")

	svc := newDraftService(t, tx)
	course, err := svc.CreateCourse(ctx, CreateCourseSpec{
		PartnerID: p.ID,
		OrgKey:    "edX",
		Number:    "test101",
		Title:     "Course title",
		TypeSlug:  "audit",
	})
	if err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}
	if course.Key != "edX+test101" {
		t.Fatalf("key: got %q", course.Key)
	}
	if active := course.ActiveURLSlug(); active == nil || active.URLSlug != "course-title-2" {
		t.Fatalf("slug: got %+v", course.URLSlugHistory)
	}
	if len(course.Entitlements) != 1 || course.Entitlements[0].Mode != "audit" {
		t.Fatalf("entitlements not seeded from type: %+v", course.Entitlements)
	}
}

func TestCreateCourseRejectsBadNumber(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	svc := newDraftService(t, tx)
	_, err := svc.CreateCourse(context.Background(), CreateCourseSpec{
		PartnerID: uuid.New(),
		OrgKey:    "edX",
		Number:    "test 101!",
		Title:     "Course title",
		TypeSlug:  "audit",
	})
	if err == nil {
		t.Fatal("expected a validation error for a non-alphanumeric number")
	}
}

func TestCreateCourseWithRunSeedsSeats(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	p := testutil.SeedPartner(t, ctx, tx, "edX")
	ct := testutil.SeedCourseType(t, ctx, tx, "verified-audit", "verified", "audit")
	testutil.SeedCourseRunType(t, ctx, tx, ct.ID, "verified-audit-run", "verified", "audit")
	testutil.SeedOrganization(t, ctx, tx, p.ID, "edX")

	svc := newDraftService(t, tx)
	course, err := svc.CreateCourse(ctx, CreateCourseSpec{
		PartnerID: p.ID,
		OrgKey:    "edX",
		Number:    "test101",
		Title:     "Course title",
		TypeSlug:  "verified-audit",
		Prices:    map[string]float64{"verified": 77.77},
		Run: &CreateRunSpec{
			RunTypeSlug: "verified-audit-run",
			Term:        "1T2026",
		},
	})
	if err != nil {
		t.Fatalf("CreateCourse: %v", err)
	}
	if len(course.CourseRuns) != 1 {
		t.Fatalf("expected one draft run, got %d", len(course.CourseRuns))
	}
	run := course.CourseRuns[0]
	if run.Key != "course-v1:edX+test101+1T2026" {
		t.Fatalf("run key: %q", run.Key)
	}
	prices := map[string]float64{}
	for _, seat := range run.Seats {
		prices[seat.Type] = seat.Price
	}
	if prices["verified"] != 77.77 || prices["audit"] != 0 {
		t.Fatalf("seat prices: %+v", prices)
	}
	if course.CanonicalCourseRunID == nil || *course.CanonicalCourseRunID != run.ID {
		t.Fatal("canonical run not set")
	}
}

func TestPatchCourseSlugRules(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	p, official, _ := seedOfficialWorld(t, ctx, tx)
	svc := newDraftService(t, tx)

	// Slug active on another course is refused.
	other := testutil.SeedCourse(t, ctx, tx, p.ID, official.TypeID, uuid.New(), "edX+other", true)
	testutil.SeedActiveSlug(t, ctx, tx, other.ID, p.ID, "taken-slug")

	taken := "taken-slug"
	if _, _, err := svc.PatchCourse(ctx, official.UUID, CoursePatch{URLSlug: &taken}); err == nil {
		t.Fatal("expected slug collision error")
	}

	// A fresh slug moves the active row; the published one is retained.
	fresh := "new-title"
	course, changed, err := svc.PatchCourse(ctx, official.UUID, CoursePatch{URLSlug: &fresh})
	if err != nil {
		t.Fatalf("PatchCourse: %v", err)
	}
	if active := course.ActiveURLSlug(); active == nil || active.URLSlug != "new-title" {
		t.Fatalf("active slug: %+v", course.URLSlugHistory)
	}
	foundRetired := false
	for _, row := range course.URLSlugHistory {
		if row.URLSlug == "course-title" && !row.IsActive {
			foundRetired = true
		}
	}
	if !foundRetired {
		t.Fatalf("published slug should be retained inactive: %+v", course.URLSlugHistory)
	}
	if len(changed) != 1 || changed[0] != "url_slug" {
		t.Fatalf("changed: %v", changed)
	}

	// Reusing this course's own old slug reactivates it.
	old := "course-title"
	course, _, err = svc.PatchCourse(ctx, official.UUID, CoursePatch{URLSlug: &old})
	if err != nil {
		t.Fatalf("PatchCourse back: %v", err)
	}
	if active := course.ActiveURLSlug(); active == nil || active.URLSlug != "course-title" {
		t.Fatalf("expected the historical slug reactivated: %+v", course.URLSlugHistory)
	}
}

func TestPatchCourseSlugUnpublishedReplacesRow(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	// Never published: no official row exists.
	draft := draftWorld(t, ctx, tx)
	svc := newDraftService(t, tx)

	fresh := "renamed-course"
	course, _, err := svc.PatchCourse(ctx, draft.UUID, CoursePatch{URLSlug: &fresh})
	if err != nil {
		t.Fatalf("PatchCourse: %v", err)
	}
	// The pre-publication slug is dropped outright, not retained inactive.
	if len(course.URLSlugHistory) != 1 {
		t.Fatalf("slug history: %+v", course.URLSlugHistory)
	}
	if active := course.ActiveURLSlug(); active == nil || active.URLSlug != "renamed-course" {
		t.Fatalf("active slug: %+v", course.URLSlugHistory)
	}

	// Renaming back gets a fresh row; the first name left no trace to reuse.
	back := "course-title"
	course, _, err = svc.PatchCourse(ctx, draft.UUID, CoursePatch{URLSlug: &back})
	if err != nil {
		t.Fatalf("PatchCourse back: %v", err)
	}
	if len(course.URLSlugHistory) != 1 {
		t.Fatalf("slug history after round-trip: %+v", course.URLSlugHistory)
	}
	if active := course.ActiveURLSlug(); active == nil || active.URLSlug != "course-title" {
		t.Fatalf("active slug after round-trip: %+v", course.URLSlugHistory)
	}
}

func TestPatchCourseTypeFrozenAfterReview(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	_, official, _ := seedOfficialWorld(t, ctx, tx)
	testutil.SeedCourseType(t, ctx, tx, "professional", "professional")

	svc := newDraftService(t, tx)
	target := "professional"
	_, _, err := svc.PatchCourse(ctx, official.UUID, CoursePatch{TypeSlug: &target})
	if err == nil {
		t.Fatal("expected type change to be refused once an official version exists")
	}
}

func TestPatchCourseTracksChangedFields(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	_, official, _ := seedOfficialWorld(t, ctx, tx)
	svc := newDraftService(t, tx)

	title := "Renamed"
	image := "https://cdn.example.com/card.jpg"
	_, changed, err := svc.PatchCourse(ctx, official.UUID, CoursePatch{Title: &title, Image: &image})
	if err != nil {
		t.Fatalf("PatchCourse: %v", err)
	}
	got := map[string]bool{}
	for _, f := range changed {
		got[f] = true
	}
	if !got["title"] || !got["image"] || len(changed) != 2 {
		t.Fatalf("changed: %v", changed)
	}
	if SafelistedOnly(changed) {
		t.Fatal("title is review-sensitive")
	}
}
