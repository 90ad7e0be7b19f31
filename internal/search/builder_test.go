package search

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, rawQuery string) *Request {
	t.Helper()
	values, err := url.ParseQuery(rawQuery)
	require.NoError(t, err)
	req, err := ParseRequest(values, rawQuery)
	require.NoError(t, err)
	return req
}

func TestParseRequestDefaultsAndValidation(t *testing.T) {
	req := parse(t, "q=physics&aggregation_key=aggregation_key")
	assert.Equal(t, 1, req.Page)
	assert.Equal(t, DefaultPageSize, req.PageSize)

	values, _ := url.ParseQuery("q=physics")
	_, err := ParseRequest(values, "q=physics")
	require.Error(t, err, "aggregation_key is mandatory")

	values, _ = url.ParseQuery("q=more_like_this:abc&aggregation_key=aggregation_key")
	_, err = ParseRequest(values, "")
	require.Error(t, err)

	values, _ = url.ParseQuery("aggregation_key=aggregation_key&selected_facets=nocolon")
	_, err = ParseRequest(values, "")
	require.Error(t, err)
}

func TestBuildBodyDistinctAggregations(t *testing.T) {
	req := parse(t, "q=physics&aggregation_key=aggregation_key")
	body, err := BuildBody(req, CourseRunFacets(), Config{HitPrecision: 1500, FacetPrecision: 250})
	require.NoError(t, err)

	aggs := body["aggs"].(map[string]any)
	top := aggs["distinct_aggregation_key"].(map[string]any)["cardinality"].(map[string]any)
	assert.Equal(t, "aggregation_key", top["field"])
	assert.Equal(t, 1500, top["precision_threshold"])

	orgs := aggs["organizations"].(map[string]any)
	terms := orgs["terms"].(map[string]any)
	assert.Equal(t, "organizations_exact", terms["field"])
	assert.Equal(t, 100, terms["size"])
	nested := orgs["aggs"].(map[string]any)["distinct_aggregation_key"].(map[string]any)["cardinality"].(map[string]any)
	assert.Equal(t, 250, nested["precision_threshold"])

	current := aggs["availability_current"].(map[string]any)
	require.Contains(t, current, "filter")
	require.Contains(t, current["aggs"].(map[string]any), "distinct_aggregation_key")
}

func TestBuildBodyFiltersSelectedFacets(t *testing.T) {
	req := parse(t, "aggregation_key=aggregation_key&selected_facets=organizations_exact:MITx&selected_query_facets=availability_archived&content_type=courserun")
	body, err := BuildBody(req, CourseRunFacets(), Config{HitPrecision: 10, FacetPrecision: 10})
	require.NoError(t, err)

	boolQuery := body["query"].(map[string]any)["bool"].(map[string]any)
	filter := boolQuery["filter"].([]any)
	require.Len(t, filter, 3)
	assert.Equal(t, map[string]any{"terms": map[string]any{"content_type": []string{"courserun"}}}, filter[0])
	assert.Equal(t, map[string]any{"term": map[string]any{"organizations_exact": "MITx"}}, filter[1])
}

func TestBuildBodyRejectsUnknownFacet(t *testing.T) {
	req := parse(t, "aggregation_key=aggregation_key&selected_facets=bogus_exact:x")
	_, err := BuildBody(req, CourseRunFacets(), Config{})
	require.Error(t, err)

	req = parse(t, "aggregation_key=aggregation_key&selected_query_facets=bogus")
	_, err = BuildBody(req, CourseRunFacets(), Config{})
	require.Error(t, err)
}

func TestBuildBodyDefaultSortWithTiebreaker(t *testing.T) {
	req := parse(t, "aggregation_key=aggregation_key")
	body, err := BuildBody(req, CourseRunFacets(), Config{})
	require.NoError(t, err)

	sort := body["sort"].([]any)
	require.Len(t, sort, 2)
	assert.Contains(t, sort[0].(map[string]any), "_score")
	assert.Contains(t, sort[1].(map[string]any), "aggregation_key")
}

func TestBuildBodyCustomSortKeepsTiebreaker(t *testing.T) {
	req := parse(t, "aggregation_key=aggregation_key&sort=-start")
	body, err := BuildBody(req, CourseRunFacets(), Config{})
	require.NoError(t, err)

	sort := body["sort"].([]any)
	require.Len(t, sort, 2)
	assert.Equal(t, map[string]any{"start": map[string]any{"order": "desc"}}, sort[0])
	assert.Contains(t, sort[1].(map[string]any), "aggregation_key")
}

func TestPaginationModeBoundary(t *testing.T) {
	// page * page_size == 10_000 still rides from+size.
	req := parse(t, "aggregation_key=aggregation_key&page=500&page_size=20")
	assert.False(t, req.UseSearchAfter())
	body, err := BuildBody(req, CourseRunFacets(), Config{})
	require.NoError(t, err)
	assert.Equal(t, 9980, body["from"])

	// One page further crosses the threshold.
	req = parse(t, "aggregation_key=aggregation_key&page=501&page_size=20")
	assert.True(t, req.UseSearchAfter())
	body, err = BuildBody(req, CourseRunFacets(), Config{})
	require.NoError(t, err)
	_, hasFrom := body["from"]
	assert.False(t, hasFrom)
}

func TestBuildBodySearchAfterCursor(t *testing.T) {
	req := parse(t, `aggregation_key=aggregation_key&search_after=[1.5,"course:MITx"]`)
	require.True(t, req.UseSearchAfter())
	body, err := BuildBody(req, CourseRunFacets(), Config{})
	require.NoError(t, err)
	require.Contains(t, body, "search_after")
	vector := body["search_after"].([]any)
	require.Len(t, vector, 2)
	assert.Equal(t, "course:MITx", vector[1])
}
