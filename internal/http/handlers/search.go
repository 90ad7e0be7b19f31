package handlers

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"

	redisclient "github.com/coursegraph/catalog-backend/internal/clients/redis"
	"github.com/coursegraph/catalog-backend/internal/http/response"
	"github.com/coursegraph/catalog-backend/internal/platform/logger"
	"github.com/coursegraph/catalog-backend/internal/search"
)

type SearchHandler struct {
	log     *logger.Logger
	service *search.Service
	cache   redisclient.SearchCache
}

// NewSearchHandler wires the faceted search endpoints. cache may be nil; the
// endpoints then skip response caching.
func NewSearchHandler(log *logger.Logger, service *search.Service, cache redisclient.SearchCache) *SearchHandler {
	return &SearchHandler{
		log:     log.With("handler", "SearchHandler"),
		service: service,
		cache:   cache,
	}
}

type searchRunner func(ctx context.Context, req *search.Request, path string) (*search.Response, error)

func (h *SearchHandler) serve(c *gin.Context, run searchRunner) {
	rawQuery := c.Request.URL.RawQuery
	path := c.Request.URL.Path
	cacheKey := path + "?" + rawQuery

	if h.cache != nil {
		if payload, ok := h.cache.Get(c.Request.Context(), cacheKey); ok {
			c.Data(200, "application/json; charset=utf-8", payload)
			return
		}
	}

	req, err := search.ParseRequest(c.Request.URL.Query(), rawQuery)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := run(c.Request.Context(), req, path)
	if err != nil {
		response.Error(c, err)
		return
	}

	if h.cache != nil {
		if payload, err := json.Marshal(result); err == nil {
			h.cache.Set(c.Request.Context(), cacheKey, payload)
		}
	}
	response.OK(c, result)
}

// CourseRunFacets serves GET /api/v1/search/course_runs/facets/.
func (h *SearchHandler) CourseRunFacets(c *gin.Context) {
	h.serve(c, h.service.CourseRuns)
}

// All serves GET /api/v2/search/all/.
func (h *SearchHandler) All(c *gin.Context) {
	h.serve(c, h.service.All)
}
