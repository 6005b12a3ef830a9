// $ go test -v pkg/rules/*.go

package rules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect(t *testing.T) {
	assert.True(t, ConnectCondition(true, true, CONNECTOR_ALL))
	assert.False(t, ConnectCondition(true, false, CONNECTOR_ALL))
	assert.True(t, ConnectCondition(true, false, CONNECTOR_ANY))
	assert.False(t, ConnectCondition(false, false, CONNECTOR_ANY))
}

func TestConditionEvaluateLeaf(t *testing.T) {
	facts := MustFacts(map[string]interface{}{
		"user-type":    "premium",
		"order-amount": 150000,
		"is-new-user":  true,
	})

	tests := []struct {
		name string
		cond *Condition
		want bool
	}{
		{"string equal", Leaf("user-type", "equal", String("premium")), true},
		{"string not equal", Leaf("user-type", "!=", String("vip")), true},
		{"string mismatch", Leaf("user-type", "==", String("vip")), false},
		{"number greater", Leaf("order-amount", ">", Number(100000)), true},
		{"number greater inclusive", Leaf("order-amount", "greaterThanInclusive", Number(150000)), true},
		{"number less", Leaf("order-amount", "lessThan", Number(150000)), false},
		{"number less inclusive", Leaf("order-amount", "<=", Number(150000)), true},
		{"bool equal", Leaf("is-new-user", "==", Bool(true)), true},
		{"bool not equal", Leaf("is-new-user", "notEqual", Bool(true)), false},
		{"numeric comparer on string fact", Leaf("user-type", ">", Number(1)), false},
		{"numeric comparer with string value", Leaf("order-amount", ">", String("1")), false},
		{"kind mismatch equal", Leaf("order-amount", "==", String("150000")), false},
		{"kind mismatch not equal", Leaf("order-amount", "!=", String("150000")), true},
		{"unknown comparer", &Condition{Fact: "order-amount", Comparer: "~", Value: Number(1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.cond, facts))
		})
	}
}

func TestConditionMissingFact(t *testing.T) {
	facts := MustFacts(map[string]interface{}{"user-type": "premium"})

	for _, c := range []string{"==", "!=", ">", ">=", "<", "<="} {
		assert.False(t, Evaluate(Leaf("order-amount", c, Number(1)), facts), c)
	}
	assert.False(t, Evaluate(Leaf("order-amount", "!=", Number(1)), nil))
	assert.False(t, Evaluate(nil, facts))
}

func TestConditionAll(t *testing.T) {
	facts := MustFacts(map[string]interface{}{"a": 1, "b": 2, "c": 3})
	yes := func(f string) *Condition { return Leaf(f, ">", Number(0)) }
	no := func(f string) *Condition { return Leaf(f, "<", Number(0)) }

	assert.True(t, Evaluate(All(yes("a"), yes("b"), yes("c")), facts))

	// flipping any single child to false makes the group false
	for i := 0; i < 3; i++ {
		items := []*Condition{yes("a"), yes("b"), yes("c")}
		items[i] = no(items[i].Fact)
		assert.False(t, Evaluate(All(items...), facts), "child %d false", i)
	}

	assert.True(t, Evaluate(All(), facts))
}

func TestConditionAny(t *testing.T) {
	facts := MustFacts(map[string]interface{}{"a": 1, "b": 2})
	yes := Leaf("a", "==", Number(1))
	no := Leaf("b", "==", Number(1))
	missing := Leaf("z", "==", Number(1))

	assert.True(t, Evaluate(Any(no, missing, yes), facts))
	assert.False(t, Evaluate(Any(no, missing), facts))
	assert.False(t, Evaluate(Any(), facts))
}

func TestConditionNested(t *testing.T) {
	// senior healthcare: age >= 60 and category == healthcare, or vip
	cond := Any(
		All(
			Leaf("user-age", ">=", Number(60)),
			Leaf("order-category", "==", String("healthcare")),
		),
		Leaf("user-type", "==", String("vip")),
	)

	assert.True(t, Evaluate(cond, MustFacts(map[string]interface{}{"user-age": 65, "order-category": "healthcare"})))
	assert.False(t, Evaluate(cond, MustFacts(map[string]interface{}{"user-age": 65, "order-category": "electronics"})))
	assert.True(t, Evaluate(cond, MustFacts(map[string]interface{}{"user-type": "vip"})))
}

func TestConditionEvaluateIsPure(t *testing.T) {
	facts := MustFacts(map[string]interface{}{"a": 1})
	cond := All(Leaf("a", "==", Number(1)))
	before := facts.Map()

	for i := 0; i < 10; i++ {
		assert.True(t, Evaluate(cond, facts))
	}
	assert.Equal(t, before, facts.Map())
}

func TestConditionValidate(t *testing.T) {
	assert.NoError(t, All(Leaf("a", "==", Number(1))).Validate("conditions"))

	err := All().Validate("conditions")
	require.Error(t, err)
	assert.True(t, IsMalformed(err))
	assert.Contains(t, err.Error(), "conditions.all")

	err = All(Any(Leaf("", "==", Number(1)))).Validate("conditions")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conditions.all[0].any[0].fact")

	err = Leaf("a", "like", Number(1)).Validate("conditions")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operator")

	err = Leaf("a", "==", Value{}).Validate("conditions")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "value")

	err = (&Condition{Kind: "none", Items: []*Condition{Leaf("a", "==", Number(1))}}).Validate("c")
	assert.Error(t, err)

	var nilCond *Condition
	assert.Error(t, nilCond.Validate("conditions"))
}

func TestConditionJSON(t *testing.T) {
	doc := `{"all":[{"fact":"user-type","operator":"equal","value":"premium"},{"any":[{"fact":"order-amount","operator":"greaterThan","value":100000},{"fact":"is-vip","operator":"==","value":true}]}]}`

	var c Condition
	require.NoError(t, json.Unmarshal([]byte(doc), &c))
	require.NoError(t, c.Validate("conditions"))

	assert.Equal(t, CONNECTOR_ALL, c.Kind)
	require.Len(t, c.Items, 2)
	assert.Equal(t, COMPARER_EQUAL, c.Items[0].Comparer)
	assert.Equal(t, CONNECTOR_ANY, c.Items[1].Kind)
	assert.Equal(t, COMPARER_GREATER, c.Items[1].Items[0].Comparer)

	out, err := json.Marshal(&c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"all":[{"fact":"user-type","operator":"==","value":"premium"},{"any":[{"fact":"order-amount","operator":">","value":100000},{"fact":"is-vip","operator":"==","value":true}]}]}`, string(out))

	err = json.Unmarshal([]byte(`{"all":[],"any":[]}`), &c)
	assert.True(t, IsMalformed(err))

	err = json.Unmarshal([]byte(`{"fact":"a","operator":"==","value":1,"any":[{"fact":"b","operator":"==","value":2}]}`), &c)
	assert.True(t, IsMalformed(err))
	assert.Contains(t, err.Error(), "both a leaf and a group")
}

func TestExplain(t *testing.T) {
	facts := MustFacts(map[string]interface{}{"order-amount": 50000})

	cond := All(
		Leaf("order-amount", ">", Number(100000)),
		Leaf("user-type", "==", String("premium")),
	)
	assert.Equal(t, "order-amount > 100000 (got 50000)", Explain(cond, facts))
	assert.Equal(t, "user-type is not set", Explain(Leaf("user-type", "==", String("premium")), facts))
	assert.Equal(t, "", Explain(Leaf("order-amount", "<", Number(100000)), facts))
	assert.Contains(t, Explain(Any(Leaf("a", "==", Number(1)), Leaf("b", "==", Number(1))), facts), "none of")
}
