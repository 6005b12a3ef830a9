package rules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueOf(t *testing.T) {
	v, ok := ValueOf(150000)
	require.True(t, ok)
	n, isNum := v.Number()
	assert.True(t, isNum)
	assert.Equal(t, 150000.0, n)

	v, ok = ValueOf(uint8(3))
	require.True(t, ok)
	assert.Equal(t, KindNumber, v.Kind())

	v, ok = ValueOf("premium")
	require.True(t, ok)
	assert.Equal(t, KindString, v.Kind())
	assert.Equal(t, "premium", v.String())

	v, ok = ValueOf(true)
	require.True(t, ok)
	assert.Equal(t, KindBool, v.Kind())

	_, ok = ValueOf([]string{"a"})
	assert.False(t, ok)
	_, ok = ValueOf(nil)
	assert.False(t, ok)
}

func TestValueEqual(t *testing.T) {
	assert.True(t, Number(1).Equal(Number(1)))
	assert.False(t, Number(1).Equal(String("1")))
	assert.False(t, Bool(true).Equal(Bool(false)))
	assert.False(t, Value{}.Equal(Value{}))
}

func TestValueJSON(t *testing.T) {
	var v Value
	require.NoError(t, json.Unmarshal([]byte(`65`), &v))
	assert.True(t, v.Equal(Number(65)))

	require.NoError(t, json.Unmarshal([]byte(`"healthcare"`), &v))
	assert.True(t, v.Equal(String("healthcare")))

	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &v))

	b, err := json.Marshal(Bool(true))
	require.NoError(t, err)
	assert.Equal(t, "true", string(b))
}

func TestNewFacts(t *testing.T) {
	facts, err := NewFacts(map[string]interface{}{
		"user-type":    "premium",
		"order-amount": 150000,
		"is-new":       false,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"is-new", "order-amount", "user-type"}, facts.Keys())
	assert.Equal(t, map[string]interface{}{
		"user-type":    "premium",
		"order-amount": 150000.0,
		"is-new":       false,
	}, facts.Map())

	_, err = NewFacts(map[string]interface{}{"user": map[string]interface{}{"id": 1}})
	assert.True(t, IsMalformed(err))
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), "user")

	assert.Panics(t, func() { MustFacts(map[string]interface{}{"x": struct{}{}}) })
}

func TestFactsUnmarshal(t *testing.T) {
	var facts Facts
	require.NoError(t, json.Unmarshal([]byte(`{"user-type":"vip","order-amount":10}`), &facts))
	v, ok := facts.Get("order-amount")
	assert.True(t, ok)
	assert.True(t, v.Equal(Number(10)))
}
