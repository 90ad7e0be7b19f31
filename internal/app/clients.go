package app

import (
	"github.com/coursegraph/catalog-backend/internal/clients/commerce"
	"github.com/coursegraph/catalog-backend/internal/clients/lms"
	"github.com/coursegraph/catalog-backend/internal/clients/oauth"
	redisclient "github.com/coursegraph/catalog-backend/internal/clients/redis"
	"github.com/coursegraph/catalog-backend/internal/clients/studio"
	"github.com/coursegraph/catalog-backend/internal/platform/logger"
	"github.com/coursegraph/catalog-backend/internal/search"
)

type Clients struct {
	Tokens   oauth.TokenProvider
	Studio   studio.Client
	Commerce commerce.Client
	LMS      lms.Client

	Search      *search.Client
	SearchCache redisclient.SearchCache
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	tokens := oauth.NewTokenProvider(log)
	searchClient, err := search.NewClient(log)
	if err != nil {
		return Clients{}, err
	}

	// The search cache is optional; without redis the endpoints serve
	// uncached.
	cache, err := redisclient.NewSearchCache(log)
	if err != nil {
		log.Warn("search cache disabled", "error", err)
		cache = nil
	}

	return Clients{
		Tokens:      tokens,
		Studio:      studio.NewClient(log, tokens),
		Commerce:    commerce.NewClient(log, tokens),
		LMS:         lms.NewClient(log, tokens),
		Search:      searchClient,
		SearchCache: cache,
	}, nil
}
