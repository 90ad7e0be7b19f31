package search

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/gorilla/schema"

	pkgerrors "github.com/coursegraph/catalog-backend/internal/pkg/errors"
)

// MaxResultWindow mirrors the index's max_result_window setting; from+size
// paging beyond it has to switch to search_after.
const MaxResultWindow = 10000

const DefaultPageSize = 20

var queryDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	d.SetAliasTag("schema")
	return d
}()

// Request is a typed faceted search request.
type Request struct {
	Q            string   `schema:"q"`
	ContentTypes []string `schema:"content_type"`

	// SelectedFacets are field-facet selections of the form name_exact:value.
	SelectedFacets []string `schema:"selected_facets"`
	// SelectedQueryFacets name predefined query facets.
	SelectedQueryFacets []string `schema:"selected_query_facets"`

	Page     int `schema:"page"`
	PageSize int `schema:"page_size"`
	// SearchAfter is the previous page's last sort vector, JSON-encoded.
	SearchAfter string `schema:"search_after"`

	Sort []string `schema:"sort"`

	// AggregationKey is the keyword field distinct counts deduplicate on.
	AggregationKey string `schema:"aggregation_key"`

	// rawQuery preserves the original query string ordering for narrow urls.
	rawQuery string
}

// ParseRequest decodes and validates the query parameters of a search call.
func ParseRequest(values url.Values, rawQuery string) (*Request, error) {
	req := &Request{rawQuery: rawQuery}
	if err := queryDecoder.Decode(req, values); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrValidation, "Invalid search parameters.", err)
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 {
		req.PageSize = DefaultPageSize
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *Request) Validate() error {
	if strings.TrimSpace(r.AggregationKey) == "" {
		return pkgerrors.New(pkgerrors.ErrValidation, "The aggregation_key parameter is required.")
	}
	if strings.Contains(r.Q, "more_like_this") {
		return pkgerrors.New(pkgerrors.ErrValidation, "more_like_this queries are not supported.")
	}
	for _, facet := range r.SelectedFacets {
		if _, _, ok := splitFacet(facet); !ok {
			return pkgerrors.Newf(pkgerrors.ErrValidation, "Malformed facet selection [%s].", facet)
		}
	}
	return nil
}

// SearchAfterVector decodes the search_after cursor.
func (r *Request) SearchAfterVector() ([]any, error) {
	if strings.TrimSpace(r.SearchAfter) == "" {
		return nil, nil
	}
	var vector []any
	if err := json.Unmarshal([]byte(r.SearchAfter), &vector); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrValidation, "Invalid search_after cursor.", err)
	}
	return vector, nil
}

// UseSearchAfter reports whether the request must use cursor paging: either
// the caller supplied a cursor or from+size would cross the deep-paging
// threshold.
func (r *Request) UseSearchAfter() bool {
	if strings.TrimSpace(r.SearchAfter) != "" {
		return true
	}
	return r.Page*r.PageSize > MaxResultWindow
}

// From returns the from offset for from+size paging.
func (r *Request) From() int {
	return (r.Page - 1) * r.PageSize
}

// splitFacet splits "name_exact:value" selections.
func splitFacet(s string) (field, value string, ok bool) {
	idx := strings.Index(s, ":")
	if idx <= 0 || idx == len(s)-1 {
		return "", "", false
	}
	return s[:idx], s[idx+1:], true
}
