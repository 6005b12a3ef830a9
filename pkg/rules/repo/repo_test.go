package repo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonwalker/verdict/pkg/rules"
	boltstore "github.com/moonwalker/verdict/pkg/store/bolt"
)

func sampleRules() []*rules.Rule {
	return []*rules.Rule{
		{
			ID:         "premium",
			Conditions: rules.All(rules.Leaf("user-type", "equal", rules.String("premium"))),
			Event:      rules.Event{Type: "premium-discount", Params: rules.Params{Percentage: 20, Priority: 10}},
		},
		{
			ID:         "bulk",
			Conditions: rules.Leaf("order-quantity", ">=", rules.Number(10)),
			Event:      rules.Event{Type: "bulk-discount", Params: rules.Params{Percentage: 8, Priority: 3}},
		},
	}
}

// testRepo runs the contract every RuleSetRepo implementation honours.
func testRepo(t *testing.T, repo RuleSetRepo) {
	t.Helper()

	for _, name := range []string{"discount", "fraud-detection", "empty"} {
		repo.Remove(name)
	}

	_, err := repo.Get("discount")
	assert.True(t, rules.IsNotFound(err))

	require.NoError(t, repo.Save("discount", sampleRules()))
	require.NoError(t, repo.Save("fraud-detection", sampleRules()[1:]))
	require.NoError(t, repo.Save("empty", nil))
	assert.Equal(t, 3, repo.Count())

	rs, err := repo.Get("discount")
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Equal(t, "premium", rs[0].ID)
	assert.Equal(t, 20.0, rs[0].Event.Params.Percentage)
	assert.True(t, rules.Evaluate(rs[0].Conditions, rules.MustFacts(map[string]interface{}{"user-type": "premium"})))

	empty, err := repo.Get("empty")
	require.NoError(t, err)
	assert.Empty(t, empty)

	var names []string
	require.NoError(t, repo.Each(func(name string, rs []*rules.Rule) error {
		names = append(names, name)
		return nil
	}))
	assert.Equal(t, []string{"discount", "empty", "fraud-detection"}, names)

	require.NoError(t, repo.Remove("discount"))
	_, err = repo.Get("discount")
	assert.True(t, rules.IsNotFound(err))
	assert.Equal(t, 2, repo.Count())
}

func TestInMemoryRuleSetRepo(t *testing.T) {
	testRepo(t, NewInMemoryRuleSetRepo())
}

func TestInMemoryRuleSetRepoCopies(t *testing.T) {
	repo := NewInMemoryRuleSetRepo()
	rs := sampleRules()
	require.NoError(t, repo.Save("discount", rs))

	rs[0].Event.Params.Percentage = 99
	got, err := repo.Get("discount")
	require.NoError(t, err)
	assert.Equal(t, 20.0, got[0].Event.Params.Percentage)

	got[0].Event.Params.Percentage = 50
	again, _ := repo.Get("discount")
	assert.Equal(t, 20.0, again[0].Event.Params.Percentage)
}

func TestDiskRuleSetRepo(t *testing.T) {
	testRepo(t, NewDiskRuleSetRepo(t.TempDir()))
}

func TestDiskRuleSetRepoYAML(t *testing.T) {
	dir := t.TempDir()
	doc := `rulesetName: vip
rules:
  - id: vip
    conditions:
      all:
        - fact: user-type
          operator: equal
          value: vip
    event:
      type: vip-discount
      params:
        percentage: 15
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vip.yaml"), []byte(doc), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# rules"), 0644))

	repo := NewDiskRuleSetRepo(dir)
	assert.Equal(t, 1, repo.Count())

	rs, err := repo.Get("vip")
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, "vip-discount", rs[0].Event.Type)

	// saving keeps the yaml file
	rs[0].Event.Params.Percentage = 18
	require.NoError(t, repo.Save("vip", rs))
	_, err = os.Stat(filepath.Join(dir, "vip.json"))
	assert.True(t, os.IsNotExist(err))

	rs, err = repo.Get("vip")
	require.NoError(t, err)
	assert.Equal(t, 18.0, rs[0].Event.Params.Percentage)
}

func TestDiskRuleSetRepoBareArray(t *testing.T) {
	dir := t.TempDir()
	doc := `[{"conditions":{"fact":"risk","operator":">","value":80},"event":{"type":"block"}}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fraud.json"), []byte(doc), 0644))

	rs, err := NewDiskRuleSetRepo(dir).Get("fraud")
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, "block", rs[0].Event.Type)
}

func TestDiskRuleSetRepoMalformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{"rulesetName":"bad","rules":[{"event":{"type":"x"}}]}`), 0644))

	_, err := NewDiskRuleSetRepo(dir).Get("bad")
	assert.True(t, rules.IsMalformed(err))
}

func TestRuleSetName(t *testing.T) {
	tests := []struct {
		file string
		name string
		ok   bool
	}{
		{"/rules/discount.json", "discount", true},
		{"fraud-detection.YAML", "fraud-detection", true},
		{"x.yml", "x", true},
		{".verdict-123", "", false},
		{"notes.txt", "", false},
	}
	for _, tt := range tests {
		name, ok := RuleSetName(tt.file)
		assert.Equal(t, tt.ok, ok, tt.file)
		assert.Equal(t, tt.name, name, tt.file)
	}
}

func TestStoreRuleSetRepo(t *testing.T) {
	s := boltstore.New(filepath.Join(t.TempDir(), "rules.db"), "verdict")
	repo := NewStoreRuleSetRepo("bolt", s)
	defer repo.Close()

	assert.Equal(t, "bolt", repo.Name())
	testRepo(t, repo)

	_, err := FmtKey("", RULESET_PREFIX)
	assert.Error(t, err)
}
