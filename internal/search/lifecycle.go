package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/coursegraph/catalog-backend/internal/platform/logger"
	"github.com/coursegraph/catalog-backend/internal/utils"
)

const indexTimestampLayout = "20060102_150405"

// sanityAttempts is the initial check plus two retries.
const sanityAttempts = 3

// Lifecycle manages the timestamped indices behind the read aliases: build a
// fresh index, sanity-check its size against the live one, flip the alias
// atomically, prune history.
type Lifecycle struct {
	client *Client
	source *StoreSource
	log    *logger.Logger

	// threshold is the tolerated relative size change between the live index
	// and its replacement.
	threshold float64
	// retention is how many historical indices survive a prune, on top of the
	// aliased one.
	retention int
	backoff   time.Duration
	now       func() time.Time
}

func NewLifecycle(client *Client, source *StoreSource, log *logger.Logger) *Lifecycle {
	return &Lifecycle{
		client:    client,
		source:    source,
		log:       log.With("service", "SearchLifecycle"),
		threshold: utils.GetEnvAsFloat("INDEX_SIZE_CHANGE_THRESHOLD", 0.1, log),
		retention: utils.GetEnvAsInt("ELASTICSEARCH_INDEX_RETENTION_LIMIT", 3, log),
		backoff:   5 * time.Second,
		now:       time.Now,
	}
}

// UpdateAll rebuilds every content type's index and flips its alias. A sanity
// failure on one content type aborts that type's swap but the others still
// proceed; the first failure is returned.
func (l *Lifecycle) UpdateAll(ctx context.Context) error {
	var firstErr error
	for _, contentType := range ContentTypes() {
		if err := l.Update(ctx, contentType); err != nil {
			l.log.Error("index update failed", "content_type", contentType, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Update rebuilds one content type's index end to end.
func (l *Lifecycle) Update(ctx context.Context, contentType string) error {
	alias := Alias(contentType)
	name, count, err := l.Build(ctx, contentType)
	if err != nil {
		return err
	}
	l.log.Info("built index", "index", name, "records", count)

	if err := l.SanityCheck(ctx, alias, name); err != nil {
		// The alias keeps pointing at the old index; the failed build stays
		// around for inspection until the next prune.
		return err
	}
	if err := l.Swap(ctx, alias, name); err != nil {
		return err
	}
	return l.Prune(ctx, alias)
}

// Build creates a fresh timestamped index for the content type and fills it
// from the relational store.
func (l *Lifecycle) Build(ctx context.Context, contentType string) (string, int64, error) {
	alias := Alias(contentType)
	name := alias + "_" + l.now().UTC().Format(indexTimestampLayout)

	if err := l.client.CreateIndex(ctx, name, IndexBody(MaxResultWindow)); err != nil {
		return "", 0, fmt.Errorf("create index %s: %w", name, err)
	}
	docs, err := l.source.Documents(ctx, contentType)
	if err != nil {
		return "", 0, err
	}
	if err := l.client.BulkIndex(ctx, name, docs); err != nil {
		return "", 0, fmt.Errorf("fill index %s: %w", name, err)
	}
	if err := l.client.Refresh(ctx, name); err != nil {
		return "", 0, err
	}
	count, err := l.client.Count(ctx, name)
	if err != nil {
		return "", 0, err
	}
	if count != int64(len(docs)) {
		return "", 0, fmt.Errorf("index %s holds %d records, expected %d", name, count, len(docs))
	}
	return name, count, nil
}

// SanityCheck compares the replacement index's size against the live one and
// refuses swaps that would shrink or grow it beyond the threshold. Retries
// absorb refresh lag; a persistent deviation is fatal to the swap.
func (l *Lifecycle) SanityCheck(ctx context.Context, alias, newIndex string) error {
	var lastErr error
	for attempt := 1; attempt <= sanityAttempts; attempt++ {
		oldCount, err := l.client.Count(ctx, alias)
		if err != nil {
			return err
		}
		if oldCount == 0 {
			// First build, nothing to compare against.
			return nil
		}
		newCount, err := l.client.Count(ctx, newIndex)
		if err != nil {
			return err
		}
		change := relativeChange(oldCount, newCount)
		if change <= l.threshold {
			return nil
		}
		lastErr = fmt.Errorf(
			"index %s size changed by %.0f%% against %s (%d -> %d), threshold %.0f%%",
			newIndex, change*100, alias, oldCount, newCount, l.threshold*100,
		)
		l.logRecordCounts(ctx, attempt)
		if attempt < sanityAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(l.backoff):
			}
		}
	}
	return lastErr
}

// logRecordCounts emits per-content-type record counts for diagnosing a
// sanity failure.
func (l *Lifecycle) logRecordCounts(ctx context.Context, attempt int) {
	for _, contentType := range ContentTypes() {
		count, err := l.client.Count(ctx, Alias(contentType))
		if err != nil {
			l.log.Warn("record count unavailable", "content_type", contentType, "error", err)
			continue
		}
		l.log.Warn("sanity check failed",
			"attempt", attempt, "content_type", contentType, "records", count)
	}
}

// Swap points the alias at the new index in one atomic aliases update. The
// remove matches every timestamped sibling so stale assignments cannot
// survive.
func (l *Lifecycle) Swap(ctx context.Context, alias, newIndex string) error {
	actions := []map[string]any{
		{"remove": map[string]any{"index": alias + "_*", "alias": alias, "must_exist": false}},
		{"add": map[string]any{"index": newIndex, "alias": alias}},
	}
	if err := l.client.UpdateAliases(ctx, actions); err != nil {
		return fmt.Errorf("swap alias %s to %s: %w", alias, newIndex, err)
	}
	l.log.Info("alias swapped", "alias", alias, "index", newIndex)
	return nil
}

// Prune deletes historical indices beyond the retention limit. The aliased
// index is always kept regardless of age.
func (l *Lifecycle) Prune(ctx context.Context, alias string) error {
	indices, err := l.client.IndicesMatching(ctx, alias+"_*")
	if err != nil {
		return err
	}

	var history []string
	for name, aliases := range indices {
		aliased := false
		for _, a := range aliases {
			if a == alias {
				aliased = true
				break
			}
		}
		if !aliased {
			history = append(history, name)
		}
	}
	// Timestamped names sort chronologically; newest first.
	sort.Sort(sort.Reverse(sort.StringSlice(history)))
	if len(history) <= l.retention {
		return nil
	}
	stale := history[l.retention:]
	if err := l.client.DeleteIndices(ctx, stale); err != nil {
		return err
	}
	l.log.Info("pruned indices", "alias", alias, "deleted", len(stale))
	return nil
}

// RemoveUnused deletes every non-aliased index beyond retention for all
// content types.
func (l *Lifecycle) RemoveUnused(ctx context.Context) error {
	for _, contentType := range ContentTypes() {
		if err := l.Prune(ctx, Alias(contentType)); err != nil {
			return err
		}
	}
	return nil
}

func relativeChange(before, after int64) float64 {
	diff := after - before
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) / float64(before)
}
