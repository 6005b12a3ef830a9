package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonwalker/verdict/pkg/rules"
	"github.com/moonwalker/verdict/pkg/rules/catalog"
	"github.com/moonwalker/verdict/pkg/rules/resolve"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("VERDICT_REPO", "")
	t.Setenv("NATS_URL", "")
	t.Setenv("DEBUG", "")

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := newRootCommand()
	for _, path := range [][]string{{"eval"}, {"serve"}, {"rules", "list"}, {"rules", "export"}, {"rules", "import"}, {"rules", "reload"}, {"rules", "archive"}} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}

	repoFlag := cmd.PersistentFlags().Lookup("repo")
	require.NotNil(t, repoFlag)
	assert.Equal(t, repoMemory, repoFlag.DefValue)
}

func TestInvalidRepo(t *testing.T) {
	_, err := execute(t, "--repo", "floppy", "rules", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid repo")
}

func TestEvalDiscount(t *testing.T) {
	out, err := execute(t, "eval", catalog.Discount, "--facts", `{"user-type":"premium","order-amount":150000}`)
	require.NoError(t, err)

	var res evalOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotEmpty(t, res.Events)
	assert.Equal(t, "premium-discount", res.Events[0].Type)
	require.NotNil(t, res.Discount)
	assert.Equal(t, 30000.0, res.Discount.Amount)
	assert.Nil(t, res.Fraud)
}

func TestEvalFraud(t *testing.T) {
	facts := filepath.Join(t.TempDir(), "tx.json")
	require.NoError(t, os.WriteFile(facts, []byte(`{
		"transaction-amount": 15000000,
		"transaction-count-today": 7,
		"is-different-country": false,
		"is-new-device": true,
		"user-verification-level": 5
	}`), 0o644))

	out, err := execute(t, "eval", catalog.Fraud, "--facts-file", facts, "--explain")
	require.NoError(t, err)

	var res evalOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotNil(t, res.Fraud)
	assert.Equal(t, resolve.ActionBlock, res.Fraud.RecommendedAction)
	assert.Len(t, res.Explain, len(catalog.Must(catalog.Fraud).Rules))
}

func TestEvalWithActions(t *testing.T) {
	out, err := execute(t, "eval", catalog.ActionBased,
		"--facts", `{"user-type":"premium","order-amount":150000}`,
		"--context", `{"user":{"id":"u-1"},"order":{"id":"o-1","amount":150000}}`,
		"--actions")
	require.NoError(t, err)

	var res evalOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotEmpty(t, res.ActionResults)
	first := res.ActionResults[0].Outcome
	assert.True(t, first.Success, first.Error)
	assert.Equal(t, 30000.0, first.Payload["discountAmount"])
	assert.Equal(t, 1, res.Recorded["notifications"])
	assert.Equal(t, 1, res.Recorded["loyalty"])
}

func TestEvalActionsContextFromFacts(t *testing.T) {
	out, err := execute(t, "eval", catalog.ActionBased,
		"--facts", `{"user-type":"premium","order-amount":150000,"user-id":"u-1"}`,
		"--actions")
	require.NoError(t, err)

	var res evalOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotEmpty(t, res.ActionResults)
	first := res.ActionResults[0].Outcome
	assert.True(t, first.Success, first.Error)
	assert.Equal(t, 30000.0, first.Payload["discountAmount"])
	assert.Equal(t, 1, res.Recorded["loyalty"])
}

func TestFactContext(t *testing.T) {
	actx := factContext(rules.MustFacts(map[string]interface{}{
		"order-amount":            150000,
		"transaction-count-today": 7,
		"user-id":                 "u-1",
		"is-vip":                  true,
	}))
	assert.Equal(t, 150000.0, actx.Float("order.amount"))
	assert.Equal(t, 7.0, actx.Float("transaction.countToday"))
	assert.Equal(t, "u-1", actx.String("user.id"))
	assert.True(t, actx.GetFact("is-vip").Bool())
}

func TestEvalErrors(t *testing.T) {
	_, err := execute(t, "eval", catalog.Discount)
	assert.Error(t, err)

	_, err = execute(t, "eval", catalog.Discount, "--facts", `{"user":{"nested":true}}`)
	assert.Error(t, err)

	_, err = execute(t, "eval", "unknown", "--facts", `{}`)
	assert.Error(t, err)
}

const vipRules = `rulesetName: vip
version: 2.0.0
rules:
  - id: vip-big-order
    name: VIP big order
    conditions:
      all:
        - fact: user-type
          operator: equal
          value: vip
        - fact: order-amount
          operator: ">="
          value: 1000
    event:
      type: vip-discount
      params:
        percentage: 5
`

func TestRulesImportExportDisk(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(t.TempDir(), "vip.yaml")
	require.NoError(t, os.WriteFile(file, []byte(vipRules), 0o644))

	out, err := execute(t, "--repo", "disk", "--rules-dir", dir, "rules", "import", file)
	require.NoError(t, err)
	assert.Contains(t, out, "imported vip: 1 rules")

	out, err = execute(t, "--repo", "disk", "--rules-dir", dir, "rules", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "vip")

	exported := filepath.Join(t.TempDir(), "export.json")
	_, err = execute(t, "--repo", "disk", "--rules-dir", dir, "rules", "export", "vip", "-o", exported)
	require.NoError(t, err)
	data, err := os.ReadFile(exported)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"rulesetName": "vip"`)

	out, err = execute(t, "--repo", "disk", "--rules-dir", dir, "eval", "vip", "--facts", `{"user-type":"vip","order-amount":2500}`, "--resolve", "discount")
	require.NoError(t, err)
	var res evalOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotNil(t, res.Discount)
	assert.Equal(t, 125.0, res.Discount.Amount)
}

func TestRulesImportMalformed(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(file, []byte("rulesetName: broken\nrules:\n  - conditions: {all: []}\n    event: {type: x}\n"), 0o644))

	_, err := execute(t, "--repo", "disk", "--rules-dir", dir, "rules", "import", file)
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEvalRulesFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "vip.yaml")
	require.NoError(t, os.WriteFile(file, []byte(vipRules), 0o644))

	out, err := execute(t, "eval", "ignored", "--rules", file, "--facts", `{"user-type":"vip","order-amount":10}`)
	require.NoError(t, err)

	var res evalOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "vip", res.Engine)
	assert.Empty(t, res.Events)
}

func TestRulesReloadNeedsNats(t *testing.T) {
	_, err := execute(t, "rules", "reload")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NATS_URL")
}

func TestRulesArchiveNeedsBucket(t *testing.T) {
	t.Setenv("CFL_R2_BUCKET_NAME", "")
	_, err := execute(t, "rules", "archive")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CFL_R2_BUCKET_NAME")
}

func TestRulesArchive(t *testing.T) {
	var mu sync.Mutex
	var puts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		puts = append(puts, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	t.Setenv("CFL_R2_BUCKET_NAME", "archive")
	t.Setenv("CFL_R2_ENDPOINT", srv.URL)
	t.Setenv("CFL_R2_ACCESS_KEY_ID", "key")
	t.Setenv("CFL_R2_ACCESS_KEY_SECRET", "secret")
	t.Setenv("CFL_R2_DOMAIN_NAME", "")

	out, err := execute(t, "rules", "archive", catalog.Discount, "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "archived "+catalog.Discount+" to "+srv.URL+"/archive/rulesets/"+catalog.Discount+"/")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, puts, 1)
	assert.True(t, strings.HasPrefix(puts[0], "PUT /archive/rulesets/"+catalog.Discount+"/"))
	assert.True(t, strings.HasSuffix(puts[0], ".yaml"))
}
