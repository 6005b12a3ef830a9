package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonwalker/verdict/pkg/mime"
)

const discountYAML = `
rulesetName: discount
rules:
  - conditions:
      all:
        - fact: user-type
          operator: equal
          value: premium
        - fact: order-amount
          operator: greaterThan
          value: 100000
    event:
      type: premium-discount
      params:
        percentage: 20
        priority: 10
        reason: Premium user discount
`

func TestDecodeRuleSetYAML(t *testing.T) {
	rs, err := DecodeRuleSet("", []byte(discountYAML))
	require.NoError(t, err)
	assert.Equal(t, "discount", rs.Name)
	require.Len(t, rs.Rules, 1)
	assert.Equal(t, COMPARER_GREATER, rs.Rules[0].Conditions.Items[1].Comparer)
	assert.Equal(t, 20.0, rs.Rules[0].Event.Params.Percentage)

	facts := MustFacts(map[string]interface{}{"user-type": "premium", "order-amount": 150000})
	assert.True(t, Evaluate(rs.Rules[0].Conditions, facts))
}

func TestDecodeRuleSetJSON(t *testing.T) {
	rs, err := DecodeRuleSet("fraud.json", []byte(`{"rulesetName":"fraud","rules":[`+premiumRuleJSON+`]}`))
	require.NoError(t, err)
	assert.Equal(t, "fraud", rs.Name)
	assert.Len(t, rs.Rules, 1)

	rs, err = DecodeRuleSet("", []byte(`{"rulesetName":"empty","rules":[]}`))
	require.NoError(t, err)
	assert.Empty(t, rs.Rules)
}

func TestDecodeRuleSetMalformed(t *testing.T) {
	tests := map[string]string{
		"empty":            ``,
		"no name":          `{"rules":[]}`,
		"no rules":         `{"rulesetName":"x"}`,
		"rules not array":  `{"rulesetName":"x","rules":{}}`,
		"missing event":    `{"rulesetName":"x","rules":[{"conditions":{"all":[{"fact":"a","operator":"==","value":1}]}}]}`,
		"leaf and group":   `{"rulesetName":"x","rules":[{"conditions":{"fact":"a","operator":"==","value":1,"all":[{"fact":"b","operator":"==","value":2}]},"event":{"type":"t"}}]}`,
		"empty group":      `{"rulesetName":"x","rules":[{"conditions":{"all":[]},"event":{"type":"t"}}]}`,
		"bad operator":     `{"rulesetName":"x","rules":[{"conditions":{"fact":"a","operator":"in","value":1},"event":{"type":"t"}}]}`,
		"bad param":        `{"rulesetName":"x","rules":[{"conditions":{"fact":"a","operator":"==","value":1},"event":{"type":"t","params":{"priority":"x"}}}]}`,
		"not a document":   "\x89PNG\r\n\x1a\n\x00\x00",
		"invalid yaml":     "rulesetName: [x\n",
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			rs, err := DecodeRuleSet("", []byte(doc))
			assert.Nil(t, rs)
			assert.True(t, IsMalformed(err), "%v", err)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecodeRules(t *testing.T) {
	rs, err := DecodeRules("", []byte(`[`+premiumRuleJSON+`]`))
	require.NoError(t, err)
	assert.Len(t, rs, 1)

	_, err = DecodeRules("", []byte(`null`))
	assert.True(t, IsMalformed(err))
}

func TestEncodeRuleSet(t *testing.T) {
	rs, err := DecodeRuleSet("", []byte(discountYAML))
	require.NoError(t, err)
	rs.Version = RuleSetVersion

	for _, format := range []string{mime.FormatJSON, mime.FormatYAML} {
		data, err := EncodeRuleSet(rs, format)
		require.NoError(t, err)

		back, err := DecodeRuleSet("", data)
		require.NoError(t, err, format)
		assert.Equal(t, rs.Name, back.Name)
		assert.Equal(t, RuleSetVersion, back.Version)
		assert.Empty(t, Diff(rs.Rules[0], back.Rules[0]), format)
	}
}
