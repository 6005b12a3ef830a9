package elastic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNode answers the handful of endpoints the client uses.
type fakeNode struct {
	mu   sync.Mutex
	docs map[string]json.RawMessage
	last string
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	n.mu.Lock()
	defer n.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.URL.Path == "/":
		io.WriteString(w, `{"version":{"number":"7.17.10","build_flavor":"default"},"tagline":"You Know, for Search"}`)
	case parts[0] == "broken":
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"type":"mapper_parsing_exception","reason":"failed to parse"},"status":400}`)
	case len(parts) == 3 && parts[1] == "_doc" && r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		n.docs[parts[2]] = body
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"result":"created"}`)
	case len(parts) == 2 && parts[1] == "_search":
		body, _ := io.ReadAll(r.Body)
		n.last = string(body)
		hits := make([]ResultHit, 0, len(n.docs))
		for id, doc := range n.docs {
			hits = append(hits, ResultHit{Index: parts[0], ID: id, Source: doc})
		}
		json.NewEncoder(w).Encode(SearchResult{Took: 1, Hits: ResultHits{Total: ResultTotal{Value: len(hits)}, Hits: hits}})
	default:
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"not found"}`)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeNode) {
	t.Helper()
	node := &fakeNode{docs: make(map[string]json.RawMessage)}
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	return c, node
}

func TestIndexAndSearch(t *testing.T) {
	c, node := newTestClient(t)
	ctx := context.Background()

	doc := map[string]interface{}{"id": "a-1", "type": "blocked_transaction"}
	require.NoError(t, c.Index(ctx, "Audit", "a-1", doc))
	assert.Contains(t, node.docs, "a-1")

	res, err := c.Search(ctx, "audit", Term("type.keyword", "blocked_transaction", 10))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Hits.Total.Value)
	assert.Contains(t, node.last, `"type.keyword":"blocked_transaction"`)

	var out []map[string]interface{}
	require.NoError(t, res.Sources(&out))
	require.Len(t, out, 1)
	assert.Equal(t, "blocked_transaction", out[0]["type"])
}

func TestIndexError(t *testing.T) {
	c, _ := newTestClient(t)

	err := c.Index(context.Background(), "broken", "x", map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}

func TestDatedIndex(t *testing.T) {
	day := time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "audit_20240131", DatedIndex("Audit", day))
}
