package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/coursegraph/catalog-backend/internal/platform/logger"
	"github.com/coursegraph/catalog-backend/internal/utils"
)

// Client is a thin wrapper over the Elasticsearch client exposing the few
// operations the search surfaces and the index lifecycle need.
type Client struct {
	es  *elasticsearch.Client
	log *logger.Logger
}

func NewClient(log *logger.Logger) (*Client, error) {
	addr := utils.GetEnv("ELASTICSEARCH_URL", "http://localhost:9200", log)
	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	return &Client{es: es, log: log.With("service", "SearchClient")}, nil
}

// NewClientWithAddress is the test hook; production wiring goes through
// NewClient.
func NewClientWithAddress(log *logger.Logger, addr string) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	return &Client{es: es, log: log.With("service", "SearchClient")}, nil
}

func consume(res *esapi.Response, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	raw, readErr := io.ReadAll(res.Body)
	if readErr != nil {
		return nil, readErr
	}
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch: %s: %s", res.Status(), string(raw))
	}
	return raw, nil
}

// Search runs a search body against an index or alias and returns the raw
// response.
func (c *Client) Search(ctx context.Context, index string, body map[string]any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	return consume(res, err)
}

// CreateIndex creates an index with the given settings/mappings body.
func (c *Client) CreateIndex(ctx context.Context, name string, body map[string]any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	res, err := c.es.Indices.Create(name,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(payload)),
	)
	_, err = consume(res, err)
	return err
}

func (c *Client) DeleteIndices(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	res, err := c.es.Indices.Delete(names, c.es.Indices.Delete.WithContext(ctx))
	_, err = consume(res, err)
	return err
}

func (c *Client) Refresh(ctx context.Context, index string) error {
	res, err := c.es.Indices.Refresh(
		c.es.Indices.Refresh.WithContext(ctx),
		c.es.Indices.Refresh.WithIndex(index),
	)
	_, err = consume(res, err)
	return err
}

// Count returns the document count of an index or alias. A missing index
// counts as zero.
func (c *Client) Count(ctx context.Context, index string) (int64, error) {
	res, err := c.es.Count(
		c.es.Count.WithContext(ctx),
		c.es.Count.WithIndex(index),
		c.es.Count.WithIgnoreUnavailable(true),
	)
	raw, err := consume(res, err)
	if err != nil {
		return 0, err
	}
	var parsed struct {
		Count int64 `json:"count"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return 0, err
	}
	return parsed.Count, nil
}

// IndicesMatching lists concrete index names matching a pattern, with the
// aliases each carries.
func (c *Client) IndicesMatching(ctx context.Context, pattern string) (map[string][]string, error) {
	res, err := c.es.Indices.GetAlias(
		c.es.Indices.GetAlias.WithContext(ctx),
		c.es.Indices.GetAlias.WithIndex(pattern),
		c.es.Indices.GetAlias.WithIgnoreUnavailable(true),
	)
	raw, err := consume(res, err)
	if err != nil {
		return nil, err
	}
	var parsed map[string]struct {
		Aliases map[string]json.RawMessage `json:"aliases"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(parsed))
	for name, entry := range parsed {
		aliases := make([]string, 0, len(entry.Aliases))
		for alias := range entry.Aliases {
			aliases = append(aliases, alias)
		}
		out[name] = aliases
	}
	return out, nil
}

// UpdateAliases applies a single atomic aliases update.
func (c *Client) UpdateAliases(ctx context.Context, actions []map[string]any) error {
	payload, err := json.Marshal(map[string]any{"actions": actions})
	if err != nil {
		return err
	}
	res, err := c.es.Indices.UpdateAliases(bytes.NewReader(payload),
		c.es.Indices.UpdateAliases.WithContext(ctx),
	)
	_, err = consume(res, err)
	return err
}

// BulkIndex writes documents into an index with the bulk API.
func (c *Client) BulkIndex(ctx context.Context, index string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, doc := range docs {
		action, err := json.Marshal(map[string]any{
			"index": map[string]any{"_index": index, "_id": doc.ID},
		})
		if err != nil {
			return err
		}
		source, err := json.Marshal(doc.Body)
		if err != nil {
			return err
		}
		buf.Write(action)
		buf.WriteByte('\n')
		buf.Write(source)
		buf.WriteByte('\n')
	}
	res, err := c.es.Bulk(bytes.NewReader(buf.Bytes()), c.es.Bulk.WithContext(ctx))
	raw, err := consume(res, err)
	if err != nil {
		return err
	}
	var parsed struct {
		Errors bool `json:"errors"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return err
	}
	if parsed.Errors {
		return fmt.Errorf("bulk index into %s reported item failures", index)
	}
	return nil
}

// DeleteByQuery removes documents matching a query, used for targeted
// reindexing of a single course.
func (c *Client) DeleteByQuery(ctx context.Context, index string, query map[string]any) error {
	payload, err := json.Marshal(map[string]any{"query": query})
	if err != nil {
		return err
	}
	res, err := c.es.DeleteByQuery([]string{index}, bytes.NewReader(payload),
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithRefresh(true),
	)
	_, err = consume(res, err)
	return err
}
