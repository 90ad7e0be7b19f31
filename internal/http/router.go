package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/coursegraph/catalog-backend/internal/http/handlers"
	httpMW "github.com/coursegraph/catalog-backend/internal/http/middleware"
	"github.com/coursegraph/catalog-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	AuthMiddleware *httpMW.AuthMiddleware

	CourseHandler    *httpH.CourseHandler
	CourseRunHandler *httpH.CourseRunHandler
	SearchHandler    *httpH.SearchHandler
	HealthHandler    *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.AttachRequestID())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	r.GET("/health", cfg.HealthHandler.HealthCheck)

	apiV1 := r.Group("/api/v1")
	apiV1.Use(cfg.AuthMiddleware.RequireAuth())
	{
		courses := apiV1.Group("/courses")
		courses.GET("/", cfg.CourseHandler.List)
		courses.GET("/:id/", cfg.CourseHandler.Retrieve)

		staffOnly := courses.Group("")
		staffOnly.Use(cfg.AuthMiddleware.RequireStaff())
		staffOnly.POST("/", cfg.CourseHandler.Create)
		staffOnly.PATCH("/:id/", cfg.CourseHandler.Update)

		apiV1.GET("/search/course_runs/facets/", cfg.SearchHandler.CourseRunFacets)
	}

	apiV2 := r.Group("/api/v2")
	apiV2.Use(cfg.AuthMiddleware.RequireAuth())
	apiV2.GET("/search/all/", cfg.SearchHandler.All)

	publisher := r.Group("/publisher/api/v1")
	publisher.Use(cfg.AuthMiddleware.RequireAuth(), cfg.AuthMiddleware.RequireStaff())
	publisher.POST("/course_runs/:id/publish/", cfg.CourseRunHandler.Publish)
	publisher.PATCH("/course_runs/:id/", cfg.CourseRunHandler.Transition)

	return r
}
