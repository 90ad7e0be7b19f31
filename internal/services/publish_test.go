package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coursegraph/catalog-backend/internal/clients/commerce"
	"github.com/coursegraph/catalog-backend/internal/clients/oauth"
	"github.com/coursegraph/catalog-backend/internal/clients/studio"
	catalogrepo "github.com/coursegraph/catalog-backend/internal/data/repos/catalog"
	jobsrepo "github.com/coursegraph/catalog-backend/internal/data/repos/jobs"
	"github.com/coursegraph/catalog-backend/internal/data/repos/testutil"
	types "github.com/coursegraph/catalog-backend/internal/domain"
	"github.com/coursegraph/catalog-backend/internal/domain/catalog"
	"github.com/coursegraph/catalog-backend/internal/domain/jobs"
	pkgerrors "github.com/coursegraph/catalog-backend/internal/pkg/errors"
)

// downstreams fakes the token endpoint, Studio and Commerce in one server.
type downstreams struct {
	srv *httptest.Server

	studioPatches  atomic.Int64
	imagePosts     atomic.Int64
	commercePosts  atomic.Int64
	commerceStatus int
	commerceBody   string
	imageStatus    int
	lastPub        []byte
}

func newDownstreams(t *testing.T) *downstreams {
	t.Helper()
	d := &downstreams{commerceStatus: http.StatusOK, commerceBody: "{}", imageStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-token", "token_type": "bearer", "expires_in": 3600,
		})
	})
	mux.HandleFunc("/api/v1/course_runs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			d.studioPatches.Add(1)
			w.WriteHeader(http.StatusOK)
			return
		}
		d.imagePosts.Add(1)
		w.WriteHeader(d.imageStatus)
	})
	mux.HandleFunc("/publication/", func(w http.ResponseWriter, r *http.Request) {
		d.commercePosts.Add(1)
		d.lastPub, _ = io.ReadAll(r.Body)
		w.WriteHeader(d.commerceStatus)
		_, _ = w.Write([]byte(d.commerceBody))
	})
	d.srv = httptest.NewServer(mux)
	t.Cleanup(d.srv.Close)
	return d
}

func (d *downstreams) configurePartner(t *testing.T, tx *gorm.DB, p *types.Partner) {
	t.Helper()
	p.StudioURL = d.srv.URL
	p.CommerceAPIURL = d.srv.URL
	p.OAuthTokenURL = d.srv.URL + "/oauth2/access_token"
	p.OAuthClientID = "client-" + uuid.NewString()
	p.OAuthClientSecret = "secret"
	if err := tx.Save(p).Error; err != nil {
		t.Fatalf("save partner: %v", err)
	}
}

func newPublishService(t *testing.T, tx *gorm.DB) PublishService {
	t.Helper()
	log := testutil.Logger(t)
	courseRepo := catalogrepo.NewCourseRepo(tx, log)
	runRepo := catalogrepo.NewCourseRunRepo(tx, log)
	seatRepo := catalogrepo.NewSeatRepo(tx, log)
	entRepo := catalogrepo.NewEntitlementRepo(tx, log)
	slugRepo := catalogrepo.NewSlugHistoryRepo(tx, log)
	redirectRepo := catalogrepo.NewRedirectRepo(tx, log)
	tokens := oauth.NewTokenProvider(log)
	return NewPublishService(
		tx,
		log,
		courseRepo,
		runRepo,
		catalogrepo.NewLookupRepo(tx, log),
		jobsrepo.NewJobRunRepo(tx, log),
		NewProjector(log, courseRepo, runRepo, seatRepo, entRepo, slugRepo, redirectRepo),
		studio.NewClient(log, tokens),
		commerce.NewClient(log, tokens),
		func(ctx context.Context, ref string) ([]byte, error) { return []byte("card-image"), nil },
		nil,
	)
}

func TestTransitionRunRejectsIllegalMoves(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	draft := draftWorld(t, ctx, tx)
	svc := newPublishService(t, tx)

	// The fixture run is already Reviewed; it cannot go back to legal review.
	_, err := svc.TransitionRun(ctx, draft.CourseRuns[0].Key, catalog.StatusLegalReview)
	if err == nil {
		t.Fatal("expected an illegal transition to be rejected")
	}
}

func TestTransitionThroughReviewCreatesOfficial(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	draft := draftWorld(t, ctx, tx)
	key := draft.CourseRuns[0].Key
	log := testutil.Logger(t)
	runRepo := catalogrepo.NewCourseRunRepo(tx, log)
	if err := runRepo.UpdateFields(ctx, tx, draft.CourseRuns[0].ID, map[string]any{"status": catalog.StatusUnpublished}); err != nil {
		t.Fatalf("reset status: %v", err)
	}

	svc := newPublishService(t, tx)
	courseRepo := catalogrepo.NewCourseRepo(tx, log)

	for _, target := range []string{catalog.StatusLegalReview, catalog.StatusInternalReview} {
		if _, err := svc.TransitionRun(ctx, key, target); err != nil {
			t.Fatalf("transition to %s: %v", target, err)
		}
		// No official counterpart while still in review.
		if _, err := courseRepo.Official().GetByUUID(ctx, tx, draft.UUID); err == nil {
			t.Fatalf("official must not exist during %s", target)
		}
	}

	run, err := svc.TransitionRun(ctx, key, catalog.StatusReviewed)
	if err != nil {
		t.Fatalf("transition to reviewed: %v", err)
	}
	if run.Status != catalog.StatusReviewed {
		t.Fatalf("status: %s", run.Status)
	}
	official, err := courseRepo.Official().GetGraphByUUID(ctx, tx, draft.UUID)
	if err != nil {
		t.Fatalf("reviewed must create the official counterpart: %v", err)
	}
	if len(official.CourseRuns) != 1 || official.CourseRuns[0].Status != catalog.StatusReviewed {
		t.Fatalf("official run: %+v", official.CourseRuns)
	}
}

func TestPublishPipeline(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	draft := draftWorld(t, ctx, tx)
	d := newDownstreams(t)

	var partner types.Partner
	if err := tx.Where("id = ?", draft.PartnerID).First(&partner).Error; err != nil {
		t.Fatalf("load partner: %v", err)
	}
	d.configurePartner(t, tx, &partner)

	svc := newPublishService(t, tx)
	run, err := svc.Publish(ctx, draft.CourseRuns[0].Key)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if run.Status != catalog.StatusPublished {
		t.Fatalf("status: %s", run.Status)
	}
	if run.Draft {
		t.Fatal("publish must return the official run")
	}
	if d.commercePosts.Load() != 1 || d.studioPatches.Load() != 1 {
		t.Fatalf("downstream calls: commerce=%d studio=%d", d.commercePosts.Load(), d.studioPatches.Load())
	}

	var pub map[string]any
	if err := json.Unmarshal(d.lastPub, &pub); err != nil {
		t.Fatalf("publication body: %v", err)
	}
	if pub["id"] != draft.CourseRuns[0].Key {
		t.Fatalf("publication id: %v", pub["id"])
	}
	products, _ := pub["products"].([]any)
	if len(products) != 2 { // one seat, one entitlement
		t.Fatalf("products: %v", products)
	}

	// Publication enqueues a reindex job for the course.
	var job types.JobRun
	if err := tx.Where("kind = ?", jobs.KindReindexCourse).First(&job).Error; err != nil {
		t.Fatalf("reindex job: %v", err)
	}
	if job.PartnerID != draft.PartnerID {
		t.Fatalf("job partner: %v", job.PartnerID)
	}
}

func TestPublishAuditCourseSkipsCommerce(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	p := testutil.SeedPartner(t, ctx, tx, "edX")
	ct := testutil.SeedCourseType(t, ctx, tx, "audit", "audit")
	rt := testutil.SeedCourseRunType(t, ctx, tx, ct.ID, "audit-run", "audit")
	course := testutil.SeedCourse(t, ctx, tx, p.ID, ct.ID, uuid.New(), "edX+free101", true)
	run := testutil.SeedCourseRun(t, ctx, tx, course.ID, rt.ID, testutil.RunKey("edX", "free101", "1T2026"), true, catalog.StatusReviewed)
	seat := &types.Seat{ID: uuid.New(), CourseRunID: run.ID, Type: "audit", Currency: "USD", Price: 0, Draft: true}
	if err := tx.Create(seat).Error; err != nil {
		t.Fatalf("seed seat: %v", err)
	}
	testutil.SeedActiveSlug(t, ctx, tx, course.ID, p.ID, "free-course")

	d := newDownstreams(t)
	d.configurePartner(t, tx, p)

	svc := newPublishService(t, tx)
	if _, err := svc.Publish(ctx, run.Key); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if d.commercePosts.Load() != 0 {
		t.Fatalf("audit course must not hit commerce, got %d posts", d.commercePosts.Load())
	}
	if d.studioPatches.Load() != 1 {
		t.Fatalf("studio patches: %d", d.studioPatches.Load())
	}
}

func TestPublishRollsBackOnStudioFailure(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	draft := draftWorld(t, ctx, tx)
	d := newDownstreams(t)

	var partner types.Partner
	if err := tx.Where("id = ?", draft.PartnerID).First(&partner).Error; err != nil {
		t.Fatalf("load partner: %v", err)
	}
	d.configurePartner(t, tx, &partner)
	// Point studio somewhere that rejects the PATCH.
	partner.StudioURL = d.srv.URL + "/missing"
	if err := tx.Save(&partner).Error; err != nil {
		t.Fatalf("save partner: %v", err)
	}

	svc := newPublishService(t, tx)
	if _, err := svc.Publish(ctx, draft.CourseRuns[0].Key); err == nil {
		t.Fatal("expected publication to fail")
	}

	// Projection rolled back: no official course row.
	courseRepo := catalogrepo.NewCourseRepo(tx, testutil.Logger(t))
	if _, err := courseRepo.Official().GetByUUID(ctx, tx, draft.UUID); err == nil {
		t.Fatal("official row must be rolled back with the failed publication")
	}
	var reloaded types.CourseRun
	if err := tx.Where("id = ?", draft.CourseRuns[0].ID).First(&reloaded).Error; err != nil {
		t.Fatalf("reload run: %v", err)
	}
	if reloaded.Status != catalog.StatusReviewed {
		t.Fatalf("draft run status must be rolled back, got %s", reloaded.Status)
	}
}

func TestPublishEchoesDownstreamErrorBody(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	draft := draftWorld(t, ctx, tx)
	d := newDownstreams(t)
	d.commerceStatus = http.StatusBadRequest
	d.commerceBody = `{"error": "Product validation failed: missing attribute_values"}`

	var partner types.Partner
	if err := tx.Where("id = ?", draft.PartnerID).First(&partner).Error; err != nil {
		t.Fatalf("load partner: %v", err)
	}
	d.configurePartner(t, tx, &partner)

	svc := newPublishService(t, tx)
	_, err := svc.Publish(ctx, draft.CourseRuns[0].Key)
	if err == nil {
		t.Fatal("expected publication to fail")
	}
	if got := pkgerrors.Message(err); !strings.Contains(got, "Product validation failed") {
		t.Fatalf("caller-facing message must echo the downstream body, got %q", got)
	}
	if got := pkgerrors.HTTPStatus(err); got != http.StatusBadRequest {
		t.Fatalf("external sync failures surface as 400, got %d", got)
	}
}

func TestPublishPushesCourseImage(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	draft := draftWorld(t, ctx, tx)
	if err := tx.Model(&types.Course{}).Where("id = ?", draft.ID).
		Update("image", "media/course/test101/card.png").Error; err != nil {
		t.Fatalf("set image: %v", err)
	}

	d := newDownstreams(t)
	var partner types.Partner
	if err := tx.Where("id = ?", draft.PartnerID).First(&partner).Error; err != nil {
		t.Fatalf("load partner: %v", err)
	}
	d.configurePartner(t, tx, &partner)

	svc := newPublishService(t, tx)
	if _, err := svc.Publish(ctx, draft.CourseRuns[0].Key); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if d.imagePosts.Load() != 1 {
		t.Fatalf("image posts: %d", d.imagePosts.Load())
	}
}

func TestPublishSwallowsImageUploadFailure(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	draft := draftWorld(t, ctx, tx)
	if err := tx.Model(&types.Course{}).Where("id = ?", draft.ID).
		Update("image", "media/course/test101/card.png").Error; err != nil {
		t.Fatalf("set image: %v", err)
	}

	d := newDownstreams(t)
	d.imageStatus = http.StatusBadRequest
	var partner types.Partner
	if err := tx.Where("id = ?", draft.PartnerID).First(&partner).Error; err != nil {
		t.Fatalf("load partner: %v", err)
	}
	d.configurePartner(t, tx, &partner)

	svc := newPublishService(t, tx)
	run, err := svc.Publish(ctx, draft.CourseRuns[0].Key)
	if err != nil {
		t.Fatalf("image failures must not fail the publication: %v", err)
	}
	if run.Status != catalog.StatusPublished {
		t.Fatalf("status: %s", run.Status)
	}
	if d.imagePosts.Load() != 1 {
		t.Fatalf("image posts: %d", d.imagePosts.Load())
	}
}

func TestHandleDraftEditResetsPublishedRuns(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	draft := draftWorld(t, ctx, tx)
	d := newDownstreams(t)
	var partner types.Partner
	if err := tx.Where("id = ?", draft.PartnerID).First(&partner).Error; err != nil {
		t.Fatalf("load partner: %v", err)
	}
	d.configurePartner(t, tx, &partner)

	svc := newPublishService(t, tx)
	if _, err := svc.Publish(ctx, draft.CourseRuns[0].Key); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if err := svc.HandleDraftEdit(ctx, draft.UUID, []string{"title"}); err != nil {
		t.Fatalf("HandleDraftEdit: %v", err)
	}

	var statuses []string
	if err := tx.Model(&types.CourseRun{}).Where("key = ?", draft.CourseRuns[0].Key).
		Pluck("status", &statuses).Error; err != nil {
		t.Fatalf("pluck statuses: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected a draft/official pair, got %d rows", len(statuses))
	}
	for _, s := range statuses {
		if s != catalog.StatusUnpublished {
			t.Fatalf("both sides must reset to unpublished, got %v", statuses)
		}
	}
}

func TestHandleDraftEditSafelistedReprojects(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	draft := draftWorld(t, ctx, tx)
	d := newDownstreams(t)
	var partner types.Partner
	if err := tx.Where("id = ?", draft.PartnerID).First(&partner).Error; err != nil {
		t.Fatalf("load partner: %v", err)
	}
	d.configurePartner(t, tx, &partner)

	svc := newPublishService(t, tx)
	if _, err := svc.Publish(ctx, draft.CourseRuns[0].Key); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	// Cosmetic edit on the draft, then the safelisted path reprojects it.
	if err := tx.Model(&types.Course{}).Where("id = ?", draft.ID).
		Update("image", "https://cdn.example.com/card.jpg").Error; err != nil {
		t.Fatalf("edit draft: %v", err)
	}
	if err := svc.HandleDraftEdit(ctx, draft.UUID, []string{"image"}); err != nil {
		t.Fatalf("HandleDraftEdit: %v", err)
	}

	official, err := catalogrepo.NewCourseRepo(tx, testutil.Logger(t)).Official().GetGraphByUUID(ctx, tx, draft.UUID)
	if err != nil {
		t.Fatalf("reload official: %v", err)
	}
	if official.Image != "https://cdn.example.com/card.jpg" {
		t.Fatalf("official image not reprojected: %q", official.Image)
	}
	if official.CourseRuns[0].Status != catalog.StatusPublished {
		t.Fatalf("safelisted edit must not reset status, got %s", official.CourseRuns[0].Status)
	}
}
