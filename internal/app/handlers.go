package app

import (
	"github.com/gin-gonic/gin"

	httpserver "github.com/coursegraph/catalog-backend/internal/http"
	httpH "github.com/coursegraph/catalog-backend/internal/http/handlers"
	httpMW "github.com/coursegraph/catalog-backend/internal/http/middleware"
	"github.com/coursegraph/catalog-backend/internal/platform/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health    *httpH.HealthHandler
	Course    *httpH.CourseHandler
	CourseRun *httpH.CourseRunHandler
	Search    *httpH.SearchHandler
}

func wireMiddleware(log *logger.Logger) (Middleware, error) {
	log.Info("Wiring middleware...")
	auth, err := httpMW.NewAuthMiddleware(log)
	if err != nil {
		return Middleware{}, err
	}
	return Middleware{Auth: auth}, nil
}

func wireHandlers(log *logger.Logger, repos Repos, services Services, clients Clients) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:    httpH.NewHealthHandler(),
		Course:    httpH.NewCourseHandler(log, services.Course, services.Publish, repos.Lookup, repos.Course),
		CourseRun: httpH.NewCourseRunHandler(log, services.Publish),
		Search:    httpH.NewSearchHandler(log, services.Search, clients.SearchCache),
	}
}

func wireRouter(log *logger.Logger, handlers Handlers, middleware Middleware) *gin.Engine {
	return httpserver.NewRouter(httpserver.RouterConfig{
		Log:              log,
		AuthMiddleware:   middleware.Auth,
		CourseHandler:    handlers.Course,
		CourseRunHandler: handlers.CourseRun,
		SearchHandler:    handlers.Search,
		HealthHandler:    handlers.Health,
	})
}
