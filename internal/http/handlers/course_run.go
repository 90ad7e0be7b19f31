package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/coursegraph/catalog-backend/internal/http/response"
	"github.com/coursegraph/catalog-backend/internal/platform/logger"
	"github.com/coursegraph/catalog-backend/internal/services"
)

type CourseRunHandler struct {
	log     *logger.Logger
	publish services.PublishService
}

func NewCourseRunHandler(log *logger.Logger, publish services.PublishService) *CourseRunHandler {
	return &CourseRunHandler{
		log:     log.With("handler", "CourseRunHandler"),
		publish: publish,
	}
}

// Publish serves POST /publisher/api/v1/course_runs/:id/publish/. Re-running
// it for an already published run repeats the external sync, which the
// downstream systems absorb idempotently.
func (h *CourseRunHandler) Publish(c *gin.Context) {
	run, err := h.publish.Publish(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, run)
}

// Transition serves PATCH /publisher/api/v1/course_runs/:id/ for review
// status moves.
func (h *CourseRunHandler) Transition(c *gin.Context) {
	var body struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.ErrorWithStatus(c, 400, "validation", err)
		return
	}
	run, err := h.publish.TransitionRun(c.Request.Context(), c.Param("id"), body.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, run)
}
