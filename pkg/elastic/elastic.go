package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"log/slog"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
)

type Client struct {
	es *elasticsearch.Client
}

const (
	TimeLayout = "20060102"
)

// NewClient connects to the given nodes, or to ELASTICSEARCH_URL (default
// http://localhost:9200) when none are given.
func NewClient(addresses ...string) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, err
	}
	return &Client{es}, nil
}

func (c *Client) Index(ctx context.Context, index string, id string, v interface{}) error {
	b, err := json.Marshal(&v)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Refresh:    "true",
		Index:      strings.ToLower(index),
		DocumentID: id,
		Body:       bytes.NewReader(b),
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		err = responseError(res, "failed to index document")
		slog.Error("Elastic index error",
			"err", err.Error(),
			"index", index,
			"id", id,
		)
		return err
	}

	return nil
}

func (c *Client) Search(ctx context.Context, index string, query map[string]interface{}) (*SearchResult, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	slog.Debug("Elastic query",
		"query", string(body),
		"index", index,
	)

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(strings.ToLower(index)),
		c.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		slog.Error("Error getting response",
			"err", err.Error(),
			"index", index,
		)
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		err = responseError(res, "failed to run query")
		slog.Error("Elastic search error",
			"err", err.Error(),
			"query", string(body),
			"index", index,
		)
		return nil, err
	}

	var r SearchResult
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		slog.Error("Error parsing the response body",
			"err", err.Error(),
		)
		return nil, err
	}

	slog.Debug("Elastic query time",
		"took", r.Took,
	)

	return &r, nil
}

// Sources decodes the _source of every hit into a new element of out, which
// must point to a slice.
func (r *SearchResult) Sources(out interface{}) error {
	raw := make([]json.RawMessage, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		if hit.Source != nil {
			raw = append(raw, hit.Source)
		}
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
