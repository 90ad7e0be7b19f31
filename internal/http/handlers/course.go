package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	catalogrepo "github.com/coursegraph/catalog-backend/internal/data/repos/catalog"
	types "github.com/coursegraph/catalog-backend/internal/domain"
	"github.com/coursegraph/catalog-backend/internal/domain/catalog"
	"github.com/coursegraph/catalog-backend/internal/http/response"
	pkgerrors "github.com/coursegraph/catalog-backend/internal/pkg/errors"
	"github.com/coursegraph/catalog-backend/internal/platform/logger"
	"github.com/coursegraph/catalog-backend/internal/services"
)

type CourseHandler struct {
	log     *logger.Logger
	courses services.CourseService
	publish services.PublishService
	lookups catalogrepo.LookupRepo
	repo    catalogrepo.CourseRepo
}

func NewCourseHandler(
	log *logger.Logger,
	courses services.CourseService,
	publish services.PublishService,
	lookups catalogrepo.LookupRepo,
	repo catalogrepo.CourseRepo,
) *CourseHandler {
	return &CourseHandler{
		log:     log.With("handler", "CourseHandler"),
		courses: courses,
		publish: publish,
		lookups: lookups,
		repo:    repo,
	}
}

// partner resolves the tenant from the partner query parameter, defaulting to
// the sole configured partner via PARTNER_SHORT_CODE.
func (h *CourseHandler) partner(c *gin.Context) (*types.Partner, error) {
	shortCode := strings.TrimSpace(c.Query("partner"))
	if shortCode == "" {
		shortCode = strings.TrimSpace(c.GetString("default_partner"))
	}
	if shortCode == "" {
		return nil, pkgerrors.New(pkgerrors.ErrValidation, "The partner parameter is required.")
	}
	return h.lookups.PartnerByShortCode(c.Request.Context(), nil, shortCode)
}

func editable(c *gin.Context) bool {
	v := strings.TrimSpace(c.Query("editable"))
	return v == "1" || strings.EqualFold(v, "true")
}

// List serves GET /api/v1/courses/.
func (h *CourseHandler) List(c *gin.Context) {
	partner, err := h.partner(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := catalogrepo.CourseFilter{}
	if keys := c.QueryArray("keys"); len(keys) > 0 {
		for _, k := range keys {
			filter.Keys = append(filter.Keys, strings.Split(k, ",")...)
		}
	}
	if raw := c.QueryArray("uuids"); len(raw) > 0 {
		for _, chunk := range raw {
			for _, s := range strings.Split(chunk, ",") {
				id, err := uuid.Parse(strings.TrimSpace(s))
				if err != nil {
					response.Error(c, pkgerrors.Newf(pkgerrors.ErrValidation, "Invalid course uuid [%s].", s))
					return
				}
				filter.UUIDs = append(filter.UUIDs, id)
			}
		}
	}
	if statuses := c.QueryArray("course_run_statuses"); len(statuses) > 0 {
		for _, s := range statuses {
			filter.Statuses = append(filter.Statuses, strings.Split(s, ",")...)
		}
	}

	courses, err := h.courses.List(c.Request.Context(), partner.ID, filter, editable(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"count": len(courses), "results": courses})
}

// Retrieve serves GET /api/v1/courses/:id/.
func (h *CourseHandler) Retrieve(c *gin.Context) {
	partner, err := h.partner(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	course, err := h.courses.Get(c.Request.Context(), partner.ID, c.Param("id"), editable(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, course)
}

type createRunBody struct {
	RunType    string     `json:"run_type"`
	Term       string     `json:"term"`
	PacingType string     `json:"pacing_type"`
	Start      *time.Time `json:"start"`
	End        *time.Time `json:"end"`
}

type createCourseBody struct {
	Title   string             `json:"title"`
	Number  string             `json:"number"`
	Org     string             `json:"org"`
	Type    string             `json:"type"`
	URLSlug string             `json:"url_slug"`
	Prices  map[string]float64 `json:"prices"`
	Run     *createRunBody     `json:"course_run"`
}

// Create serves POST /api/v1/courses/.
func (h *CourseHandler) Create(c *gin.Context) {
	partner, err := h.partner(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var body createCourseBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, pkgerrors.Wrap(pkgerrors.ErrValidation, "Invalid course payload.", err))
		return
	}
	spec := services.CreateCourseSpec{
		PartnerID: partner.ID,
		OrgKey:    body.Org,
		Number:    body.Number,
		Title:     body.Title,
		TypeSlug:  body.Type,
		URLSlug:   body.URLSlug,
		Prices:    body.Prices,
	}
	if body.Run != nil {
		spec.Run = &services.CreateRunSpec{
			RunTypeSlug: body.Run.RunType,
			Term:        body.Run.Term,
			PacingType:  body.Run.PacingType,
			Start:       body.Run.Start,
			End:         body.Run.End,
		}
	}
	course, err := h.courses.Create(c.Request.Context(), spec)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

type patchCourseBody struct {
	Title            *string `json:"title"`
	ShortDescription *string `json:"short_description"`
	FullDescription  *string `json:"full_description"`
	Level            *string `json:"level_type"`

	Image      *string        `json:"image"`
	VideoSrc   *string        `json:"video_src"`
	SocialURLs datatypes.JSON `json:"social_urls"`
	Tags       datatypes.JSON `json:"tags"`

	Type    *string `json:"type"`
	URLSlug *string `json:"url_slug"`

	Subjects []string           `json:"subjects"`
	Prices   map[string]float64 `json:"prices"`

	// Draft false requests publication of the course's reviewed runs after
	// the edit lands.
	Draft *bool `json:"draft"`
}

// Update serves PATCH /api/v1/courses/:id/.
func (h *CourseHandler) Update(c *gin.Context) {
	partner, err := h.partner(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var body patchCourseBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, pkgerrors.Wrap(pkgerrors.ErrValidation, "Invalid course payload.", err))
		return
	}
	patch := services.CoursePatch{
		Title:            body.Title,
		ShortDescription: body.ShortDescription,
		FullDescription:  body.FullDescription,
		Level:            body.Level,
		Image:            body.Image,
		VideoSrc:         body.VideoSrc,
		SocialURLs:       body.SocialURLs,
		Tags:             body.Tags,
		TypeSlug:         body.Type,
		URLSlug:          body.URLSlug,
		SubjectSlugs:     body.Subjects,
		Prices:           body.Prices,
	}
	course, err := h.courses.Patch(c.Request.Context(), partner.ID, c.Param("id"), patch)
	if err != nil {
		response.Error(c, err)
		return
	}

	if body.Draft != nil && !*body.Draft {
		if err := h.publishReadyRuns(c.Request.Context(), course); err != nil {
			response.Error(c, err)
			return
		}
		course, err = h.courses.Get(c.Request.Context(), partner.ID, course.UUID.String(), true)
		if err != nil {
			response.Error(c, err)
			return
		}
	}
	response.OK(c, course)
}

// publishReadyRuns pushes every run that has cleared review out to the
// official graph and the external systems.
func (h *CourseHandler) publishReadyRuns(ctx context.Context, course *types.Course) error {
	graph, err := h.repo.Drafts().GetGraphByUUID(ctx, nil, course.UUID)
	if err != nil {
		return err
	}
	for i := range graph.CourseRuns {
		run := &graph.CourseRuns[i]
		if run.Status != catalog.StatusReviewed && run.Status != catalog.StatusPublished {
			continue
		}
		if _, err := h.publish.Publish(ctx, run.Key); err != nil {
			return err
		}
	}
	return nil
}
