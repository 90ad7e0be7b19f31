package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursegraph/catalog-backend/internal/data/repos/testutil"
)

// fakeES fakes the few Elasticsearch endpoints the lifecycle touches.
type fakeES struct {
	mu sync.Mutex
	// counts maps index or alias name to its document count.
	counts map[string]int64
	// aliases maps concrete index name to its alias set.
	aliases map[string][]string

	aliasActions []map[string]any
	deleted      []string
	countCalls   int
}

func (f *fakeES) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")

		path := strings.Trim(r.URL.Path, "/")
		switch {
		case strings.HasSuffix(path, "/_count"):
			f.countCalls++
			name := strings.TrimSuffix(path, "/_count")
			fmt.Fprintf(w, `{"count":%d}`, f.counts[name])

		case path == "_aliases":
			var payload struct {
				Actions []map[string]any `json:"actions"`
			}
			_ = json.NewDecoder(r.Body).Decode(&payload)
			f.aliasActions = append(f.aliasActions, payload.Actions...)
			fmt.Fprint(w, `{"acknowledged":true}`)

		case strings.HasSuffix(path, "/_alias"):
			pattern := strings.TrimSuffix(path, "/_alias")
			prefix := strings.TrimSuffix(pattern, "*")
			out := map[string]any{}
			for name, aliases := range f.aliases {
				if !strings.HasPrefix(name, prefix) {
					continue
				}
				set := map[string]any{}
				for _, a := range aliases {
					set[a] = map[string]any{}
				}
				out[name] = map[string]any{"aliases": set}
			}
			_ = json.NewEncoder(w).Encode(out)

		case r.Method == http.MethodDelete:
			f.deleted = append(f.deleted, strings.Split(path, ",")...)
			fmt.Fprint(w, `{"acknowledged":true}`)

		default:
			fmt.Fprint(w, `{}`)
		}
	})
}

func newTestLifecycle(t *testing.T, f *fakeES) *Lifecycle {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	log := testutil.Logger(t)
	client, err := NewClientWithAddress(log, srv.URL)
	require.NoError(t, err)

	return &Lifecycle{
		client:    client,
		log:       log,
		threshold: 0.1,
		retention: 2,
		backoff:   0,
	}
}

func TestSanityCheckPassesWithinThreshold(t *testing.T) {
	f := &fakeES{counts: map[string]int64{
		"catalog_course":              100,
		"catalog_course_20260801_000": 95,
	}}
	l := newTestLifecycle(t, f)

	err := l.SanityCheck(context.Background(), "catalog_course", "catalog_course_20260801_000")
	require.NoError(t, err)
}

func TestSanityCheckFirstBuildSkipsComparison(t *testing.T) {
	f := &fakeES{counts: map[string]int64{
		"catalog_course_20260801_000": 80,
	}}
	l := newTestLifecycle(t, f)

	err := l.SanityCheck(context.Background(), "catalog_course", "catalog_course_20260801_000")
	require.NoError(t, err)
}

func TestSanityCheckFailureRetriesThenRefusesSwap(t *testing.T) {
	// 100 -> 80 is a 20% shrink against a 10% threshold.
	f := &fakeES{counts: map[string]int64{
		"catalog_course":              100,
		"catalog_course_20260801_000": 80,
	}}
	l := newTestLifecycle(t, f)

	err := l.SanityCheck(context.Background(), "catalog_course", "catalog_course_20260801_000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "100 -> 80")

	// Initial check plus two retries, two count lookups each, plus the
	// diagnostic per-content-type counts.
	assert.GreaterOrEqual(t, f.countCalls, 6)
	assert.Empty(t, f.aliasActions, "a failed sanity check must not touch aliases")
}

func TestSwapIsSingleAtomicUpdate(t *testing.T) {
	f := &fakeES{counts: map[string]int64{}}
	l := newTestLifecycle(t, f)

	err := l.Swap(context.Background(), "catalog_course", "catalog_course_20260801_000")
	require.NoError(t, err)

	require.Len(t, f.aliasActions, 2)
	remove := f.aliasActions[0]["remove"].(map[string]any)
	assert.Equal(t, "catalog_course_*", remove["index"])
	assert.Equal(t, "catalog_course", remove["alias"])
	add := f.aliasActions[1]["add"].(map[string]any)
	assert.Equal(t, "catalog_course_20260801_000", add["index"])
	assert.Equal(t, "catalog_course", add["alias"])
}

func TestPruneKeepsAliasedAndRecentHistory(t *testing.T) {
	f := &fakeES{
		counts: map[string]int64{},
		aliases: map[string][]string{
			"catalog_course_20260104_000000": {"catalog_course"},
			"catalog_course_20260103_000000": {},
			"catalog_course_20260102_000000": {},
			"catalog_course_20260101_000000": {},
			"catalog_course_20251231_000000": {},
		},
	}
	l := newTestLifecycle(t, f)

	err := l.Prune(context.Background(), "catalog_course")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"catalog_course_20260101_000000",
		"catalog_course_20251231_000000",
	}, f.deleted)
}

func TestRelativeChange(t *testing.T) {
	assert.InDelta(t, 0.2, relativeChange(100, 80), 1e-9)
	assert.InDelta(t, 0.2, relativeChange(100, 120), 1e-9)
	assert.InDelta(t, 0.0, relativeChange(50, 50), 1e-9)
}
