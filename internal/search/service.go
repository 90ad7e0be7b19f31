package search

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/coursegraph/catalog-backend/internal/platform/logger"
	"github.com/coursegraph/catalog-backend/internal/utils"
)

// Service runs faceted distinct-counts searches end to end: build the body,
// execute it against the right alias, post-process the response.
type Service struct {
	client *Client
	cfg    Config
	log    *logger.Logger
}

func NewService(client *Client, log *logger.Logger) *Service {
	return &Service{
		client: client,
		cfg: Config{
			HitPrecision:   utils.GetEnvAsInt("DISTINCT_COUNTS_HIT_PRECISION", 1500, log),
			FacetPrecision: utils.GetEnvAsInt("DISTINCT_COUNTS_FACET_PRECISION", 250, log),
		},
		log: log.With("service", "SearchService"),
	}
}

// sourceTransform surfaces the stored document as-is.
func sourceTransform(hit Hit) (any, error) {
	var source map[string]any
	if err := json.Unmarshal(hit.Source, &source); err != nil {
		return nil, err
	}
	return source, nil
}

func (s *Service) run(ctx context.Context, index, path string, req *Request, facets FacetSet) (*Response, error) {
	body, err := BuildBody(req, facets, s.cfg)
	if err != nil {
		return nil, err
	}
	raw, err := s.client.Search(ctx, index, body)
	if err != nil {
		return nil, err
	}
	return ProcessResponse(raw, req, facets, path, sourceTransform)
}

// CourseRuns serves the course-run faceted search surface.
func (s *Service) CourseRuns(ctx context.Context, req *Request, path string) (*Response, error) {
	return s.run(ctx, Alias(ContentTypeCourseRun), path, req, CourseRunFacets())
}

// All serves the cross-type search surface over every document alias.
func (s *Service) All(ctx context.Context, req *Request, path string) (*Response, error) {
	aliases := make([]string, 0, len(ContentTypes()))
	for _, contentType := range ContentTypes() {
		aliases = append(aliases, Alias(contentType))
	}
	return s.run(ctx, strings.Join(aliases, ","), path, req, AllDocumentFacets())
}
