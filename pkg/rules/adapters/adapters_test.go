package adapters

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonwalker/verdict/pkg/elastic"
	"github.com/moonwalker/verdict/pkg/rules"
	"github.com/moonwalker/verdict/pkg/rules/action"
	boltstore "github.com/moonwalker/verdict/pkg/store/bolt"
	"github.com/moonwalker/verdict/pkg/streams"
	"github.com/moonwalker/verdict/pkg/streams/streamstest"
	"github.com/moonwalker/verdict/pkg/worker"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func txContext() *rules.Context {
	return rules.NewContext(map[string]interface{}{
		"user":        map[string]interface{}{"id": "u-1"},
		"transaction": map[string]interface{}{"id": "tx-1", "amount": 20000000},
	})
}

func TestRecorderWithDispatcher(t *testing.T) {
	rec := NewRecorder()
	d := action.New(action.WithPorts(rec.Ports()), action.WithLogger(quiet))

	out := d.ExecuteAction(context.Background(), action.BlockTransaction, action.Params{
		"blockReason":        "amount_exceeds_limit",
		"notifyCompliance":   true,
		"createAuditLog":     true,
		"sendAlertToManager": true,
	}, txContext())
	require.True(t, out.Success, out.Error)

	require.Len(t, rec.Alerts, 2)
	assert.False(t, rec.Alerts[0].ToManager)
	assert.True(t, rec.Alerts[1].ToManager)
	require.Len(t, rec.Audits, 1)
	assert.Equal(t, "tx-1", rec.Audits[0].TransactionID)

	balance, err := rec.AddPoints(context.Background(), "u-1", 40, "test")
	require.NoError(t, err)
	assert.Equal(t, 40.0, balance)
	_, err = rec.AddPoints(context.Background(), "", 1, "")
	assert.Error(t, err)

	id, err := rec.StartWorkflow(context.Background(), &action.Workflow{Type: "review"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "wf_"))

	assert.Equal(t, map[string]int{
		"notifications": 0,
		"audits":        1,
		"workflows":     1,
		"alerts":        2,
		"loyalty":       1,
	}, rec.Summary())
}

func TestLedger(t *testing.T) {
	s := boltstore.New(filepath.Join(t.TempDir(), "ledger.db"), "loyalty")
	defer s.Close()
	l := NewLedger(s)
	ctx := context.Background()

	b, err := l.Balance("u-1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, b)

	b, err = l.AddPoints(ctx, "u-1", 30, "Discount applied")
	require.NoError(t, err)
	assert.Equal(t, 30.0, b)

	b, err = l.AddPoints(ctx, "u-1", 12.5, "Discount applied")
	require.NoError(t, err)
	assert.Equal(t, 42.5, b)

	b, err = l.Balance("u-1")
	require.NoError(t, err)
	assert.Equal(t, 42.5, b)

	_, err = l.AddPoints(ctx, "", 1, "")
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = l.AddPoints(cancelled, "u-1", 1, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLedgerThroughDispatcher(t *testing.T) {
	s := boltstore.New(filepath.Join(t.TempDir(), "ledger.db"), "loyalty")
	defer s.Close()
	l := NewLedger(s)
	d := action.New(action.WithPorts(action.Ports{Loyalty: l}), action.WithLogger(quiet))

	actx := rules.NewContext(map[string]interface{}{
		"user":  map[string]interface{}{"id": "u-7"},
		"order": map[string]interface{}{"id": "o-1", "amount": 150000},
	})
	out := d.ExecuteAction(context.Background(), action.ApplyDiscount, action.Params{
		"percentage":          20,
		"updateLoyaltyPoints": true,
		"pointsMultiplier":    2,
	}, actx)
	require.True(t, out.Success, out.Error)
	require.Len(t, out.Cascaded, 1)
	require.True(t, out.Cascaded[0].Success, out.Cascaded[0].Error)

	b, err := l.Balance("u-7")
	require.NoError(t, err)
	assert.Equal(t, 60.0, b)
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []*worker.Job
	err  error
}

func (q *fakeQueue) EnqueueJob(job *worker.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func TestWorkflowQueue(t *testing.T) {
	jobs := &fakeQueue{}
	q := NewWorkflowQueue(jobs, "")
	assert.Equal(t, WORKFLOW_QUEUE, q.Queue())

	wf := &action.Workflow{
		Type:          "fraud-review",
		Steps:         []string{"collect", "review", "decide"},
		Timeout:       time.Minute,
		RetryAttempts: 2,
		Data:          map[string]interface{}{"transaction": map[string]interface{}{"id": "tx-1"}},
	}
	id, err := q.StartWorkflow(context.Background(), wf)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "wf_"))

	runAt := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	delayed := *wf
	delayed.RunAt = &runAt
	_, err = q.StartWorkflow(context.Background(), &delayed)
	require.NoError(t, err)

	require.Len(t, jobs.jobs, 2)
	job := jobs.jobs[0]
	assert.Equal(t, WORKFLOW_QUEUE, job.Queue)
	assert.Equal(t, id, job.BatchID)
	assert.Equal(t, int64(2), job.Retry)
	assert.Equal(t, worker.TypeQueued, job.Type)
	assert.Equal(t, worker.TypeScheduled, jobs.jobs[1].Type)
	assert.Equal(t, runAt, *jobs.jobs[1].RunAt)

	var got *action.Workflow
	var gotID string
	h := q.Handler(func(ctx context.Context, id string, wf *action.Workflow) error {
		gotID, got = id, wf
		return nil
	})
	require.NoError(t, h(context.Background(), job.Args))
	assert.Equal(t, id, gotID)
	assert.Equal(t, wf.Steps, got.Steps)
	assert.Equal(t, time.Minute, got.Timeout)
	assert.Equal(t, "tx-1", got.Data["transaction"].(map[string]interface{})["id"])

	jobs.err = assert.AnError
	_, err = q.StartWorkflow(context.Background(), wf)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestWebhook(t *testing.T) {
	var mu sync.Mutex
	var got []webhookMessage
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg webhookMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		got = append(got, msg)
		auth = r.Header.Get("Authorization")
		mu.Unlock()
		if msg.Kind == "compliance_alert" && msg.Alert.Reason == "reject" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL).SetBearerToken("secret")
	ctx := context.Background()

	require.NoError(t, hook.Notify(ctx, &action.Notification{Type: "discount_applied", Channels: []string{"email"}, Recipients: []string{"u-1"}}))
	require.NoError(t, hook.Alert(ctx, &action.ComplianceAlert{Reason: "limit", TransactionID: "tx-1"}))
	assert.Error(t, hook.Alert(ctx, &action.ComplianceAlert{Reason: "reject"}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 3)
	assert.Equal(t, "notification", got[0].Kind)
	assert.Equal(t, []string{"u-1"}, got[0].Notification.Recipients)
	assert.Equal(t, "tx-1", got[1].Alert.TransactionID)
	assert.Equal(t, "Bearer secret", auth)
}

func TestNatsCompliance(t *testing.T) {
	s := streams.NewStream(streamstest.RunServer(t))
	defer s.Close()

	nc, err := s.Conn()
	require.NoError(t, err)
	sub, err := nc.SubscribeSync(COMPLIANCE_SUBJECT + ".>")
	require.NoError(t, err)
	all, err := nc.SubscribeSync(COMPLIANCE_SUBJECT)
	require.NoError(t, err)

	c := NewNatsCompliance(s, "")
	ctx := context.Background()
	require.NoError(t, c.Alert(ctx, &action.ComplianceAlert{Reason: "limit", TransactionID: "tx-1"}))
	require.NoError(t, c.Alert(ctx, &action.ComplianceAlert{Reason: "limit", TransactionID: "tx-1", ToManager: true}))

	msg, err := all.NextMsg(2 * time.Second)
	require.NoError(t, err)
	var alert action.ComplianceAlert
	require.NoError(t, json.Unmarshal(msg.Data, &alert))
	assert.Equal(t, "tx-1", alert.TransactionID)

	msg, err = sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, COMPLIANCE_SUBJECT+".manager", msg.Subject)
}

func TestAuditIndex(t *testing.T) {
	var mu sync.Mutex
	docs := map[string]json.RawMessage{}
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		mu.Lock()
		defer mu.Unlock()
		paths = append(paths, r.Method+" "+r.URL.Path)

		switch {
		case r.URL.Path == "/":
			io.WriteString(w, `{"version":{"number":"7.17.10","build_flavor":"default"},"tagline":"You Know, for Search"}`)
		case strings.HasSuffix(r.URL.Path, "/_search"):
			hits := make([]elastic.ResultHit, 0, len(docs))
			for id, doc := range docs {
				hits = append(hits, elastic.ResultHit{ID: id, Source: doc})
			}
			json.NewEncoder(w).Encode(elastic.SearchResult{Hits: elastic.ResultHits{Hits: hits}})
		default:
			body, _ := io.ReadAll(r.Body)
			parts := strings.Split(r.URL.Path, "/")
			docs[parts[len(parts)-1]] = body
			w.WriteHeader(http.StatusCreated)
			io.WriteString(w, `{"result":"created"}`)
		}
	}))
	defer srv.Close()

	client, err := elastic.NewClient(srv.URL)
	require.NoError(t, err)
	a := NewAuditIndex(client, "audit")

	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	require.NoError(t, a.Audit(context.Background(), &action.AuditRecord{
		ID:            "audit_1",
		Type:          "transaction_blocked",
		TransactionID: "tx-1",
		Timestamp:     ts,
	}))

	recs, err := a.ForTransaction(context.Background(), "tx-1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "transaction_blocked", recs[0].Type)
	assert.Equal(t, ts, recs[0].Timestamp)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, paths, "PUT /audit_20240506/_doc/audit_1")
	assert.Contains(t, paths, "POST /audit_*/_search")
}
