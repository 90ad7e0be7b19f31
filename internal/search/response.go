package search

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Hit is one search result before hydration.
type Hit struct {
	Index  string          `json:"_index"`
	ID     string          `json:"_id"`
	Score  float64         `json:"_score"`
	Source json.RawMessage `json:"_source"`
	Sort   []any           `json:"sort"`
}

// ResultTransform hydrates a raw hit into the API representation.
type ResultTransform func(hit Hit) (any, error)

// FacetValue is one bucket of a field facet.
type FacetValue struct {
	Text          string `json:"text"`
	Count         int64  `json:"count"`
	DistinctCount int64  `json:"distinct_count"`
	NarrowURL     string `json:"narrow_url,omitempty"`
}

// QueryFacetValue is the result of a query facet.
type QueryFacetValue struct {
	Count         int64  `json:"count"`
	DistinctCount int64  `json:"distinct_count"`
	NarrowURL     string `json:"narrow_url,omitempty"`
}

type Objects struct {
	Count         int64   `json:"count"`
	DistinctCount int64   `json:"distinct_count"`
	Next          *string `json:"next"`
	Previous      *string `json:"previous"`
	Results       []any   `json:"results"`
}

// Response is the distinct-counts output shape.
type Response struct {
	Objects Objects                    `json:"objects"`
	Fields  map[string][]FacetValue    `json:"fields"`
	Queries map[string]QueryFacetValue `json:"queries"`
}

// rawResponse mirrors the slice of the Elasticsearch body we consume.
type rawResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []Hit `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]json.RawMessage `json:"aggregations"`
}

type cardinalityAgg struct {
	Value int64 `json:"value"`
}

type termsAgg struct {
	Buckets []termsBucket `json:"buckets"`
}

type termsBucket struct {
	Key      any                        `json:"key"`
	DocCount int64                      `json:"doc_count"`
	Extra    map[string]json.RawMessage `json:"-"`
}

func (b *termsBucket) UnmarshalJSON(data []byte) error {
	var full map[string]json.RawMessage
	if err := json.Unmarshal(data, &full); err != nil {
		return err
	}
	if raw, ok := full["key"]; ok {
		if err := json.Unmarshal(raw, &b.Key); err != nil {
			return err
		}
	}
	if raw, ok := full["doc_count"]; ok {
		if err := json.Unmarshal(raw, &b.DocCount); err != nil {
			return err
		}
	}
	delete(full, "key")
	delete(full, "doc_count")
	b.Extra = full
	return nil
}

type filterAgg struct {
	DocCount int64                      `json:"doc_count"`
	Extra    map[string]json.RawMessage `json:"-"`
}

func (a *filterAgg) UnmarshalJSON(data []byte) error {
	var full map[string]json.RawMessage
	if err := json.Unmarshal(data, &full); err != nil {
		return err
	}
	if raw, ok := full["doc_count"]; ok {
		if err := json.Unmarshal(raw, &a.DocCount); err != nil {
			return err
		}
	}
	delete(full, "doc_count")
	a.Extra = full
	return nil
}

// ProcessResponse folds a raw Elasticsearch response into the output shape,
// attaching narrow urls and the pagination cursors for the mode in use.
func ProcessResponse(raw []byte, req *Request, facets FacetSet, path string, transform ResultTransform) (*Response, error) {
	var parsed rawResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	distinct := DistinctAggName(req.AggregationKey)
	out := &Response{
		Fields:  map[string][]FacetValue{},
		Queries: map[string]QueryFacetValue{},
	}
	out.Objects.Count = parsed.Hits.Total.Value
	if rawAgg, ok := parsed.Aggregations[distinct]; ok {
		var card cardinalityAgg
		if err := json.Unmarshal(rawAgg, &card); err != nil {
			return nil, fmt.Errorf("decode cardinality: %w", err)
		}
		out.Objects.DistinctCount = card.Value
	}

	var lastSort []any
	for _, hit := range parsed.Hits.Hits {
		item, err := transform(hit)
		if err != nil {
			return nil, err
		}
		out.Objects.Results = append(out.Objects.Results, item)
		lastSort = hit.Sort
	}

	selectedFields := map[string]bool{}
	for _, s := range req.SelectedFacets {
		selectedFields[s] = true
	}
	selectedQueries := map[string]bool{}
	for _, s := range req.SelectedQueryFacets {
		selectedQueries[s] = true
	}

	for _, f := range facets.Fields {
		rawAgg, ok := parsed.Aggregations[f.Name]
		if !ok {
			continue
		}
		var terms termsAgg
		if err := json.Unmarshal(rawAgg, &terms); err != nil {
			return nil, fmt.Errorf("decode terms agg %s: %w", f.Name, err)
		}
		values := make([]FacetValue, 0, len(terms.Buckets))
		for _, bucket := range terms.Buckets {
			text := fmt.Sprintf("%v", bucket.Key)
			v := FacetValue{Text: text, Count: bucket.DocCount}
			if rawCard, ok := bucket.Extra[distinct]; ok {
				var card cardinalityAgg
				if err := json.Unmarshal(rawCard, &card); err != nil {
					return nil, fmt.Errorf("decode bucket cardinality: %w", err)
				}
				v.DistinctCount = card.Value
			}
			selection := f.Name + "_exact:" + text
			if !selectedFields[selection] {
				v.NarrowURL = narrowURL(path, req.rawQuery, "selected_facets", selection)
			}
			values = append(values, v)
		}
		out.Fields[f.Name] = values
	}

	for _, f := range facets.Queries {
		rawAgg, ok := parsed.Aggregations[f.Name]
		if !ok {
			continue
		}
		var agg filterAgg
		if err := json.Unmarshal(rawAgg, &agg); err != nil {
			return nil, fmt.Errorf("decode filter agg %s: %w", f.Name, err)
		}
		v := QueryFacetValue{Count: agg.DocCount}
		if rawCard, ok := agg.Extra[distinct]; ok {
			var card cardinalityAgg
			if err := json.Unmarshal(rawCard, &card); err != nil {
				return nil, fmt.Errorf("decode filter cardinality: %w", err)
			}
			v.DistinctCount = card.Value
		}
		if !selectedQueries[f.Name] {
			v.NarrowURL = narrowURL(path, req.rawQuery, "selected_query_facets", f.Name)
		}
		out.Queries[f.Name] = v
	}

	next, previous := paginationURLs(req, path, int64(len(parsed.Hits.Hits)), out.Objects.Count, lastSort)
	out.Objects.Next = next
	out.Objects.Previous = previous
	return out, nil
}

// paginationURLs derives the next and previous links for the paging mode the
// request ran under. Crossing the deep-paging threshold switches the next
// link to a search_after cursor.
func paginationURLs(req *Request, path string, pageLen, total int64, lastSort []any) (next, previous *string) {
	if pageLen == 0 {
		return nil, nil
	}
	if req.UseSearchAfter() {
		if pageLen == int64(req.PageSize) && lastSort != nil {
			cursor, err := json.Marshal(lastSort)
			if err == nil {
				q := newOrderedQuery(req.rawQuery)
				q.Remove("page")
				q.Set("search_after", string(cursor))
				u := path + "?" + q.Encode()
				next = &u
			}
		}
		return next, nil
	}

	if int64(req.Page*req.PageSize) < total {
		if (req.Page+1)*req.PageSize > MaxResultWindow {
			if lastSort != nil {
				cursor, err := json.Marshal(lastSort)
				if err == nil {
					q := newOrderedQuery(req.rawQuery)
					q.Remove("page")
					q.Set("search_after", string(cursor))
					u := path + "?" + q.Encode()
					next = &u
				}
			}
		} else {
			q := newOrderedQuery(req.rawQuery)
			q.Set("page", strconv.Itoa(req.Page+1))
			u := path + "?" + q.Encode()
			next = &u
		}
	}
	if req.Page > 1 {
		q := newOrderedQuery(req.rawQuery)
		q.Set("page", strconv.Itoa(req.Page-1))
		u := path + "?" + q.Encode()
		previous = &u
	}
	return next, previous
}

func narrowURL(path, rawQuery, param, value string) string {
	q := newOrderedQuery(rawQuery)
	q.Add(param, value)
	return path + "?" + q.Encode()
}

// orderedQuery edits a query string while preserving the original parameter
// ordering, so narrow urls stay byte-stable for caching.
type orderedQuery struct {
	pairs [][2]string
}

func newOrderedQuery(rawQuery string) *orderedQuery {
	q := &orderedQuery{}
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		var k, v string
		if idx := strings.Index(part, "="); idx >= 0 {
			k, _ = url.QueryUnescape(part[:idx])
			v, _ = url.QueryUnescape(part[idx+1:])
		} else {
			k, _ = url.QueryUnescape(part)
		}
		q.pairs = append(q.pairs, [2]string{k, v})
	}
	return q
}

func (q *orderedQuery) Add(key, value string) {
	q.pairs = append(q.pairs, [2]string{key, value})
}

// Set replaces the first occurrence in place, dropping any later duplicates,
// or appends when the key is absent.
func (q *orderedQuery) Set(key, value string) {
	replaced := false
	kept := q.pairs[:0]
	for _, p := range q.pairs {
		if p[0] == key {
			if replaced {
				continue
			}
			p[1] = value
			replaced = true
		}
		kept = append(kept, p)
	}
	q.pairs = kept
	if !replaced {
		q.Add(key, value)
	}
}

func (q *orderedQuery) Remove(key string) {
	kept := q.pairs[:0]
	for _, p := range q.pairs {
		if p[0] != key {
			kept = append(kept, p)
		}
	}
	q.pairs = kept
}

func (q *orderedQuery) Encode() string {
	var b strings.Builder
	for i, p := range q.pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p[0]))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p[1]))
	}
	return b.String()
}
