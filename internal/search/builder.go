package search

import (
	"strings"

	pkgerrors "github.com/coursegraph/catalog-backend/internal/pkg/errors"
)

// Config carries the tunable precision and paging knobs for distinct-counts
// queries.
type Config struct {
	// HitPrecision is the cardinality precision_threshold for the top-level
	// distinct hit count.
	HitPrecision int
	// FacetPrecision is the precision_threshold for per-facet cardinalities.
	FacetPrecision int
}

// DistinctAggName is the name under which cardinality aggregations are
// attached, both top-level and nested per facet bucket.
func DistinctAggName(aggregationKey string) string {
	return "distinct_" + aggregationKey
}

// BuildBody translates a request into an Elasticsearch search body with
// cardinality aggregations injected at every level.
func BuildBody(req *Request, facets FacetSet, cfg Config) (map[string]any, error) {
	query, err := buildQuery(req, facets)
	if err != nil {
		return nil, err
	}

	distinct := DistinctAggName(req.AggregationKey)
	aggs := map[string]any{
		distinct: map[string]any{
			"cardinality": map[string]any{
				"field":               req.AggregationKey,
				"precision_threshold": cfg.HitPrecision,
			},
		},
	}
	nested := map[string]any{
		distinct: map[string]any{
			"cardinality": map[string]any{
				"field":               req.AggregationKey,
				"precision_threshold": cfg.FacetPrecision,
			},
		},
	}
	for _, f := range facets.Fields {
		size := f.Size
		if size <= 0 {
			size = 100
		}
		aggs[f.Name] = map[string]any{
			"terms": map[string]any{"field": f.Field, "size": size},
			"aggs":  nested,
		}
	}
	for _, f := range facets.Queries {
		aggs[f.Name] = map[string]any{
			"filter": map[string]any{
				"query_string": map[string]any{"query": f.Query},
			},
			"aggs": nested,
		}
	}

	body := map[string]any{
		"query":            query,
		"aggs":             aggs,
		"size":             req.PageSize,
		"sort":             buildSort(req),
		"track_total_hits": true,
	}

	if req.UseSearchAfter() {
		vector, err := req.SearchAfterVector()
		if err != nil {
			return nil, err
		}
		if vector != nil {
			body["search_after"] = vector
		}
	} else {
		body["from"] = req.From()
	}
	return body, nil
}

func buildQuery(req *Request, facets FacetSet) (map[string]any, error) {
	var must []any
	if q := strings.TrimSpace(req.Q); q != "" {
		must = append(must, map[string]any{
			"query_string": map[string]any{
				"query":            q,
				"analyze_wildcard": true,
			},
		})
	} else {
		must = append(must, map[string]any{"match_all": map[string]any{}})
	}

	var filter []any
	if len(req.ContentTypes) > 0 {
		filter = append(filter, map[string]any{
			"terms": map[string]any{"content_type": req.ContentTypes},
		})
	}
	for _, selected := range req.SelectedFacets {
		name, value, ok := splitFacet(selected)
		if !ok {
			return nil, pkgerrors.Newf(pkgerrors.ErrValidation, "Malformed facet selection [%s].", selected)
		}
		facet, known := facets.fieldByName(strings.TrimSuffix(name, "_exact"))
		if !known {
			return nil, pkgerrors.Newf(pkgerrors.ErrValidation, "Unknown facet [%s].", name)
		}
		filter = append(filter, map[string]any{
			"term": map[string]any{facet.Field: value},
		})
	}
	for _, name := range req.SelectedQueryFacets {
		facet, known := facets.queryByName(name)
		if !known {
			return nil, pkgerrors.Newf(pkgerrors.ErrValidation, "Unknown query facet [%s].", name)
		}
		filter = append(filter, map[string]any{
			"query_string": map[string]any{"query": facet.Query},
		})
	}

	b := map[string]any{"must": must}
	if len(filter) > 0 {
		b["filter"] = filter
	}
	return map[string]any{"bool": b}, nil
}

// buildSort returns the explicit sort, defaulting to score with the
// aggregation key as a stable tiebreaker so cursor paging is deterministic.
func buildSort(req *Request) []any {
	if len(req.Sort) == 0 {
		return []any{
			map[string]any{"_score": map[string]any{"order": "desc"}},
			map[string]any{req.AggregationKey: map[string]any{"order": "asc"}},
		}
	}
	var sort []any
	for _, s := range req.Sort {
		field := s
		order := "asc"
		if strings.HasPrefix(s, "-") {
			field = s[1:]
			order = "desc"
		} else if idx := strings.Index(s, ":"); idx > 0 {
			field = s[:idx]
			order = s[idx+1:]
		}
		sort = append(sort, map[string]any{field: map[string]any{"order": order}})
	}
	// Keep the tiebreaker even under a custom sort.
	sort = append(sort, map[string]any{req.AggregationKey: map[string]any{"order": "asc"}})
	return sort
}
