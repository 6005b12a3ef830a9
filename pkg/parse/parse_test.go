// $ go test -v pkg/parse/*.go

package parse

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseString(t *testing.T) {
	assert.Equal(t, "", ParseString(nil))
	assert.Equal(t, "true", ParseString(true))
	assert.Equal(t, "1", ParseString(1))
	assert.Equal(t, "3.14", ParseString(3.14))
	assert.Equal(t, "test", ParseString("test"))
}

func TestParseFloat(t *testing.T) {
	assert.Equal(t, 30000.0, ParseFloat(30000))
	assert.Equal(t, 2.5, ParseFloat(float32(2.5)))
	assert.Equal(t, 7.0, ParseFloat(uint(7)))
	assert.Equal(t, 12.5, ParseFloat(json.Number("12.5")))
	assert.Equal(t, 1.5, ParseFloat(" 1.5 "))
	assert.Equal(t, 0.0, ParseFloat("nope"))
	assert.Equal(t, 0.0, ParseFloat(nil))
}

func TestParseInt(t *testing.T) {
	assert.Equal(t, 3, ParseInt(3.9))
	assert.Equal(t, 42, ParseInt("42"))
	assert.Equal(t, int64(2), ParseInt64("2.7"))
}

func TestParseBool(t *testing.T) {
	assert.True(t, ParseBool(true))
	assert.True(t, ParseBool("true"))
	assert.True(t, ParseBool(1))
	assert.False(t, ParseBool(0.0))
	assert.False(t, ParseBool(nil))
	assert.False(t, ParseBool("nope"))
}

func TestParseStrings(t *testing.T) {
	assert.Nil(t, ParseStrings(nil))
	assert.Nil(t, ParseStrings(""))
	assert.Equal(t, []string{"email"}, ParseStrings("email"))
	assert.Equal(t, []string{"email", "sms"}, ParseStrings([]interface{}{"email", "", "sms"}))
	assert.Equal(t, []string{"a", "b"}, ParseStrings([]string{"a", "b"}))
}

func TestParseScheduled(t *testing.T) {
	now := time.Now().Unix()

	for _, s := range []string{"2s", "2m", "2h", "2D", "2W", "2M", "2Y"} {
		p := ParseScheduled(s)
		assert.True(t, p != 0 && p > now, "%s later: %v", s, time.Unix(p, 0))
	}

	assert.Zero(t, ParseScheduled("2x"))
	assert.Zero(t, ParseScheduled("foo"))
}

func TestParseRunAt(t *testing.T) {
	at, ok := ParseRunAt("2030-01-02T03:04:05Z")
	assert.True(t, ok)
	assert.Equal(t, 2030, at.Year())

	at, ok = ParseRunAt("1h")
	assert.True(t, ok)
	assert.True(t, at.After(time.Now()))

	_, ok = ParseRunAt("whenever")
	assert.False(t, ok)
}
