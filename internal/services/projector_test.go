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

func newProjector(t *testing.T, tx *gorm.DB) (Projector, catalogrepo.CourseRepo) {
	t.Helper()
	log := testutil.Logger(t)
	courseRepo := catalogrepo.NewCourseRepo(tx, log)
	return NewProjector(
		log,
		courseRepo,
		catalogrepo.NewCourseRunRepo(tx, log),
		catalogrepo.NewSeatRepo(tx, log),
		catalogrepo.NewEntitlementRepo(tx, log),
		catalogrepo.NewSlugHistoryRepo(tx, log),
		catalogrepo.NewRedirectRepo(tx, log),
	), courseRepo
}

func draftWorld(t *testing.T, ctx context.Context, tx *gorm.DB) *types.Course {
	t.Helper()
	p := testutil.SeedPartner(t, ctx, tx, "edX")
	ct := testutil.SeedCourseType(t, ctx, tx, "verified-audit", "verified", "audit")
	rt := testutil.SeedCourseRunType(t, ctx, tx, ct.ID, "verified-audit-run", "verified", "audit")

	course := testutil.SeedCourse(t, ctx, tx, p.ID, ct.ID, uuid.New(), "edX+test101", true)
	run := testutil.SeedCourseRun(t, ctx, tx, course.ID, rt.ID, testutil.RunKey("edX", "test101", "1T2026"), true, catalog.StatusReviewed)
	seat := &types.Seat{ID: uuid.New(), CourseRunID: run.ID, Type: "verified", Currency: "USD", Price: 77.77, Draft: true}
	if err := tx.Create(seat).Error; err != nil {
		t.Fatalf("seed seat: %v", err)
	}
	ent := &types.CourseEntitlement{ID: uuid.New(), CourseID: course.ID, Mode: "verified", Currency: "USD", Price: 77.77, Draft: true}
	if err := tx.Create(ent).Error; err != nil {
		t.Fatalf("seed entitlement: %v", err)
	}
	testutil.SeedActiveSlug(t, ctx, tx, course.ID, p.ID, "course-title")

	graph, err := catalogrepo.NewCourseRepo(tx, testutil.Logger(t)).Drafts().GetGraphByUUID(ctx, tx, course.UUID)
	if err != nil {
		t.Fatalf("load draft graph: %v", err)
	}
	return graph
}

func TestProjectCreatesOfficialGraph(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	draft := draftWorld(t, ctx, tx)
	proj, _ := newProjector(t, tx)

	official, err := proj.Project(ctx, tx, draft)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if official.Draft {
		t.Fatal("projection produced a draft row")
	}
	if official.UUID != draft.UUID || official.ID == draft.ID {
		t.Fatalf("identity: official=%v draft=%v", official.ID, draft.ID)
	}
	if official.DraftVersionID == nil || *official.DraftVersionID != draft.ID {
		t.Fatal("official must point back at the draft")
	}
	if len(official.CourseRuns) != 1 || official.CourseRuns[0].Key != draft.CourseRuns[0].Key {
		t.Fatalf("runs: %+v", official.CourseRuns)
	}
	if len(official.CourseRuns[0].Seats) != 1 || official.CourseRuns[0].Seats[0].Price != 77.77 {
		t.Fatalf("seats: %+v", official.CourseRuns[0].Seats)
	}
	if len(official.Entitlements) != 1 {
		t.Fatalf("entitlements: %+v", official.Entitlements)
	}
	if active := official.ActiveURLSlug(); active == nil || active.URLSlug != "course-title" {
		t.Fatalf("slug history: %+v", official.URLSlugHistory)
	}
}

func TestProjectIsIdempotent(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	draft := draftWorld(t, ctx, tx)
	proj, courseRepo := newProjector(t, tx)

	first, err := proj.Project(ctx, tx, draft)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	second, err := proj.Project(ctx, tx, draft)
	if err != nil {
		t.Fatalf("Project again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatal("official course row must be stable across projections")
	}
	if first.CourseRuns[0].ID != second.CourseRuns[0].ID {
		t.Fatal("official run row must be stable across projections")
	}
	if first.CourseRuns[0].Seats[0].ID != second.CourseRuns[0].Seats[0].ID {
		t.Fatal("official seat row must be stable across projections")
	}

	reloaded, err := courseRepo.Official().GetGraphByUUID(ctx, tx, draft.UUID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(reloaded.CourseRuns) != 1 || len(reloaded.Entitlements) != 1 {
		t.Fatalf("duplicate children after reprojection: %+v", reloaded)
	}
}

func TestProjectReconcilesChildrenAndRetiresSlugs(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	draft := draftWorld(t, ctx, tx)
	proj, courseRepo := newProjector(t, tx)
	log := testutil.Logger(t)

	if _, err := proj.Project(ctx, tx, draft); err != nil {
		t.Fatalf("Project: %v", err)
	}

	// Drop the draft entitlement and swap the active slug on the draft side.
	entRepo := catalogrepo.NewEntitlementRepo(tx, log)
	if err := entRepo.DeleteByIDs(ctx, tx, []uuid.UUID{draft.Entitlements[0].ID}); err != nil {
		t.Fatalf("delete entitlement: %v", err)
	}
	slugRepo := catalogrepo.NewSlugHistoryRepo(tx, log)
	oldSlug := draft.ActiveURLSlug()
	oldSlug.IsActive = false
	if err := slugRepo.Save(ctx, tx, oldSlug); err != nil {
		t.Fatalf("deactivate slug: %v", err)
	}
	if _, err := slugRepo.Create(ctx, tx, []*types.CourseURLSlug{{
		ID: uuid.New(), CourseID: draft.ID, PartnerID: draft.PartnerID, URLSlug: "new-title", IsActive: true,
	}}); err != nil {
		t.Fatalf("create slug: %v", err)
	}

	refreshed, err := courseRepo.Drafts().GetGraphByUUID(ctx, tx, draft.UUID)
	if err != nil {
		t.Fatalf("reload draft: %v", err)
	}
	official, err := proj.Project(ctx, tx, refreshed)
	if err != nil {
		t.Fatalf("reproject: %v", err)
	}

	if len(official.Entitlements) != 0 {
		t.Fatalf("orphan entitlement not deleted: %+v", official.Entitlements)
	}
	if active := official.ActiveURLSlug(); active == nil || active.URLSlug != "new-title" {
		t.Fatalf("active slug: %+v", official.URLSlugHistory)
	}
	retired := false
	for _, row := range official.URLSlugHistory {
		if row.URLSlug == "course-title" && !row.IsActive {
			retired = true
		}
	}
	if !retired {
		t.Fatalf("published slug must survive inactive: %+v", official.URLSlugHistory)
	}
}
