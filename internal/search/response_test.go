package search

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func esResponse(total int, hits []map[string]any, aggs map[string]any) []byte {
	payload := map[string]any{
		"hits": map[string]any{
			"total": map[string]any{"value": total},
			"hits":  hits,
		},
		"aggregations": aggs,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return raw
}

func hit(id string, sort ...any) map[string]any {
	return map[string]any{
		"_id":     id,
		"_source": map[string]any{"key": id, "content_type": "courserun"},
		"sort":    sort,
	}
}

func TestProcessResponseDistinctCounts(t *testing.T) {
	req := parse(t, "q=physics&aggregation_key=aggregation_key")
	raw := esResponse(109, []map[string]any{hit("course-v1:MITx+8.01x+1T2026", 1.0, "courserun:MITx+8.01x")},
		map[string]any{
			"distinct_aggregation_key": map[string]any{"value": 20},
			"organizations": map[string]any{
				"buckets": []map[string]any{
					{"key": "MITx", "doc_count": 4, "distinct_aggregation_key": map[string]any{"value": 2}},
					{"key": "HarvardX", "doc_count": 3, "distinct_aggregation_key": map[string]any{"value": 3}},
				},
			},
			"availability_archived": map[string]any{
				"doc_count": 7, "distinct_aggregation_key": map[string]any{"value": 5},
			},
		})

	resp, err := ProcessResponse(raw, req, CourseRunFacets(), "/search", sourceTransform)
	require.NoError(t, err)

	assert.Equal(t, int64(109), resp.Objects.Count)
	assert.Equal(t, int64(20), resp.Objects.DistinctCount)
	require.Len(t, resp.Objects.Results, 1)

	orgs := resp.Fields["organizations"]
	require.Len(t, orgs, 2)
	assert.Equal(t, "MITx", orgs[0].Text)
	assert.Equal(t, int64(4), orgs[0].Count)
	assert.Equal(t, int64(2), orgs[0].DistinctCount)
	assert.Contains(t, orgs[0].NarrowURL, "selected_facets=organizations_exact%3AMITx")
	assert.Contains(t, orgs[0].NarrowURL, "q=physics")

	archived := resp.Queries["availability_archived"]
	assert.Equal(t, int64(7), archived.Count)
	assert.Equal(t, int64(5), archived.DistinctCount)
	assert.Contains(t, archived.NarrowURL, "selected_query_facets=availability_archived")
}

func TestProcessResponseOmitsNarrowURLForSelected(t *testing.T) {
	req := parse(t, "aggregation_key=aggregation_key&selected_facets=organizations_exact:MITx&selected_query_facets=availability_archived")
	raw := esResponse(4, nil, map[string]any{
		"distinct_aggregation_key": map[string]any{"value": 2},
		"organizations": map[string]any{
			"buckets": []map[string]any{
				{"key": "MITx", "doc_count": 4, "distinct_aggregation_key": map[string]any{"value": 2}},
			},
		},
		"availability_archived": map[string]any{
			"doc_count": 4, "distinct_aggregation_key": map[string]any{"value": 2},
		},
	})

	resp, err := ProcessResponse(raw, req, CourseRunFacets(), "/search", sourceTransform)
	require.NoError(t, err)
	assert.Empty(t, resp.Fields["organizations"][0].NarrowURL)
	assert.Empty(t, resp.Queries["availability_archived"].NarrowURL)
}

func TestProcessResponsePageModeNextPrevious(t *testing.T) {
	req := parse(t, "q=physics&aggregation_key=aggregation_key&page=2&page_size=2")
	raw := esResponse(5, []map[string]any{
		hit("run-3", 1.0, "c3"),
		hit("run-4", 0.9, "c4"),
	}, map[string]any{"distinct_aggregation_key": map[string]any{"value": 5}})

	resp, err := ProcessResponse(raw, req, CourseRunFacets(), "/search", sourceTransform)
	require.NoError(t, err)

	require.NotNil(t, resp.Objects.Next)
	assert.Equal(t, "/search?q=physics&aggregation_key=aggregation_key&page=3&page_size=2", *resp.Objects.Next)
	require.NotNil(t, resp.Objects.Previous)
	assert.Equal(t, "/search?q=physics&aggregation_key=aggregation_key&page=1&page_size=2", *resp.Objects.Previous)
}

func TestProcessResponseLastPageHasNoNext(t *testing.T) {
	req := parse(t, "aggregation_key=aggregation_key&page=3&page_size=2")
	raw := esResponse(5, []map[string]any{hit("run-5", 0.5, "c5")},
		map[string]any{"distinct_aggregation_key": map[string]any{"value": 5}})

	resp, err := ProcessResponse(raw, req, CourseRunFacets(), "/search", sourceTransform)
	require.NoError(t, err)
	assert.Nil(t, resp.Objects.Next)
	require.NotNil(t, resp.Objects.Previous)
}

func TestProcessResponseSwitchesToSearchAfterAtThreshold(t *testing.T) {
	// Page 500 of 20 is the last from+size page; its next link must carry a
	// cursor instead of page=501.
	rawQuery := "aggregation_key=aggregation_key&page=500&page_size=20"
	req := parse(t, rawQuery)
	require.False(t, req.UseSearchAfter())

	hits := make([]map[string]any, 0, 20)
	for i := 0; i < 20; i++ {
		hits = append(hits, hit(fmt.Sprintf("run-%d", i), float64(20-i), fmt.Sprintf("c%d", i)))
	}
	raw := esResponse(50000, hits, map[string]any{"distinct_aggregation_key": map[string]any{"value": 9}})

	resp, err := ProcessResponse(raw, req, CourseRunFacets(), "/search", sourceTransform)
	require.NoError(t, err)

	require.NotNil(t, resp.Objects.Next)
	next := *resp.Objects.Next
	assert.NotContains(t, next, "page=501")
	assert.Contains(t, next, "search_after=")
	assert.Contains(t, next, "c19", "cursor carries the last hit's sort vector")
}

func TestProcessResponseCursorModeNext(t *testing.T) {
	req := parse(t, `aggregation_key=aggregation_key&page_size=2&search_after=[3,"c2"]`)
	require.True(t, req.UseSearchAfter())

	raw := esResponse(10, []map[string]any{
		hit("run-3", 2.0, "c3"),
		hit("run-4", 1.0, "c4"),
	}, map[string]any{"distinct_aggregation_key": map[string]any{"value": 4}})

	resp, err := ProcessResponse(raw, req, CourseRunFacets(), "/search", sourceTransform)
	require.NoError(t, err)

	require.NotNil(t, resp.Objects.Next)
	assert.Contains(t, *resp.Objects.Next, "search_after=")
	assert.Contains(t, *resp.Objects.Next, "c4")
	assert.Nil(t, resp.Objects.Previous, "cursor paging is forward-only")

	// A short page means the results are exhausted.
	raw = esResponse(10, []map[string]any{hit("run-5", 0.5, "c5")},
		map[string]any{"distinct_aggregation_key": map[string]any{"value": 1}})
	resp, err = ProcessResponse(raw, req, CourseRunFacets(), "/search", sourceTransform)
	require.NoError(t, err)
	assert.Nil(t, resp.Objects.Next)
}

func TestProcessResponseNextURLDropsDuplicateParameters(t *testing.T) {
	// A client that repeats page= in the query string must not get the stale
	// duplicate echoed back in the pagination links.
	req := parse(t, "q=physics&aggregation_key=aggregation_key&page=2&page_size=2&page=2")
	raw := esResponse(5, []map[string]any{
		hit("run-3", 1.0, "c3"),
		hit("run-4", 0.9, "c4"),
	}, map[string]any{"distinct_aggregation_key": map[string]any{"value": 5}})

	resp, err := ProcessResponse(raw, req, CourseRunFacets(), "/search", sourceTransform)
	require.NoError(t, err)

	require.NotNil(t, resp.Objects.Next)
	assert.Equal(t, "/search?q=physics&aggregation_key=aggregation_key&page=3&page_size=2", *resp.Objects.Next)
	require.NotNil(t, resp.Objects.Previous)
	assert.Equal(t, "/search?q=physics&aggregation_key=aggregation_key&page=1&page_size=2", *resp.Objects.Previous)
}

func TestNarrowURLPreservesParameterOrder(t *testing.T) {
	rawQuery := "q=physics&selected_facets=subjects_exact:Physics&aggregation_key=aggregation_key"
	got := narrowURL("/search", rawQuery, "selected_facets", "organizations_exact:MITx")
	assert.Equal(t,
		"/search?q=physics&selected_facets=subjects_exact%3APhysics&aggregation_key=aggregation_key&selected_facets=organizations_exact%3AMITx",
		got)
}
