package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/moonwalker/verdict/pkg/mime"
	"github.com/moonwalker/verdict/pkg/rules"
	"github.com/moonwalker/verdict/pkg/rules/catalog"
	"github.com/moonwalker/verdict/pkg/rules/repo"
)

func vipRule(pct float64) *rules.Rule {
	return &rules.Rule{
		Name:       "VIP",
		Conditions: rules.Leaf("user-type", "equal", rules.String("vip")),
		Event:      rules.Event{Type: "vip-discount", Params: rules.Params{Percentage: pct, Priority: 9}},
	}
}

func TestAddUpdateRemoveRule(t *testing.T) {
	store := repo.NewInMemoryRuleSetRepo()
	r := newTestRegistry(t, WithRepo(store))

	id, err := r.AddRule("vip", vipRule(25))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "rule_"))

	// persisted with the same id
	saved, err := store.Get("vip")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, id, saved[0].ID)
	assert.False(t, saved[0].Created.IsZero())

	facts := rules.MustFacts(map[string]interface{}{"user-type": "vip"})
	events, err := r.ExecuteRules("vip", facts)
	require.NoError(t, err)
	assert.Equal(t, 25.0, events[0].Params.Percentage)

	require.NoError(t, r.UpdateRule("vip", id, vipRule(30)))
	got, err := r.GetRules("vip")
	require.NoError(t, err)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, "Percentage updated to 30", got[0].Changes)
	assert.False(t, got[0].Updated.IsZero())
	assert.Equal(t, saved[0].Created, got[0].Created)

	events, _ = r.ExecuteRules("vip", facts)
	assert.Equal(t, 30.0, events[0].Params.Percentage)

	err = r.UpdateRule("vip", "missing", vipRule(1))
	assert.True(t, rules.IsNotFound(err))
	assert.Contains(t, err.Error(), "rule missing not found in ruleset vip")

	assert.True(t, rules.IsNotFound(r.RemoveRule("vip", "missing")))
	require.NoError(t, r.RemoveRule("vip", id))
	got, err = r.GetRules("vip")
	require.NoError(t, err)
	assert.Empty(t, got)

	saved, _ = store.Get("vip")
	assert.Empty(t, saved)
}

func TestAddRuleMalformed(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.AddRule("vip", &rules.Rule{Event: rules.Event{Type: "x"}})
	assert.True(t, rules.IsMalformed(err))
	assert.Empty(t, r.GetEngineNames())

	assert.True(t, rules.IsNotFound(r.UpdateRule("nope", "id", vipRule(1))))
	assert.True(t, rules.IsNotFound(r.RemoveRule("nope", "id")))
}

func TestExportImport(t *testing.T) {
	src := newTestRegistry(t)
	registerCatalog(t, src, catalog.Fraud)

	data, err := src.ExportRules(catalog.Fraud, mime.FormatJSON)
	require.NoError(t, err)
	doc := gjson.ParseBytes(data)
	assert.Equal(t, catalog.Fraud, doc.Get("rulesetName").String())
	assert.Equal(t, rules.RuleSetVersion, doc.Get("version").String())
	assert.True(t, doc.Get("exportedAt").Exists())
	assert.Equal(t, int64(4), doc.Get("rules.#").Int())

	dst := newTestRegistry(t)
	name, err := dst.ImportRules("", data)
	require.NoError(t, err)
	assert.Equal(t, catalog.Fraud, name)

	a, _ := src.GetRules(catalog.Fraud)
	b, _ := dst.GetRules(catalog.Fraud)
	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
		assert.Equal(t, a[i].Event.Params.RiskScore, b[i].Event.Params.RiskScore)
	}

	yml, err := src.ExportRules(catalog.Fraud, mime.FormatYAML)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(yml), "rulesetName: fraud-detection"))
	_, err = dst.ImportRules("fraud.yaml", yml)
	assert.NoError(t, err)

	_, err = src.ExportRules("nope", "")
	assert.True(t, rules.IsNotFound(err))
}

func TestImportMalformedInstallsNothing(t *testing.T) {
	r := newTestRegistry(t)
	registerCatalog(t, r, catalog.Discount)
	before, _ := r.GetEngineInfo(catalog.Discount)

	for _, doc := range []string{
		`{"rulesetName":"discount"}`,
		`{"rules":[]}`,
		`{"rulesetName":"discount","rules":[{"conditions":{"all":[]},"event":{"type":"x"}}]}`,
		`{"rulesetName":"discount","rules":[{"conditions":{"fact":"a","operator":"like","value":1},"event":{"type":"x"}}]}`,
		`not json at all {`,
	} {
		_, err := r.ImportRules("", []byte(doc))
		assert.True(t, rules.IsMalformed(err), doc)
		assert.Contains(t, err.Error(), "invalid rules format", doc)
	}

	after, _ := r.GetEngineInfo(catalog.Discount)
	assert.Equal(t, before.Version, after.Version)
}
