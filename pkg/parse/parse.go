package parse

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// loose coercion of action parameters, which arrive from json, yaml or
// plain Go callers with whatever numeric type they happened to decode into

func ParseString(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func ParseFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int64:
		return float64(t)
	case int32:
		return float64(t)
	case int:
		return float64(t)
	case uint64:
		return float64(t)
	case uint32:
		return float64(t)
	case uint:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f
	case []byte:
		f, _ := strconv.ParseFloat(string(t), 64)
		return f
	}
	return 0
}

func ParseInt64(v interface{}) int64 {
	if s, ok := v.(string); ok {
		i, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return i
		}
	}
	return int64(ParseFloat(v))
}

func ParseInt(v interface{}) int {
	return int(ParseInt64(v))
}

func ParseBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	case nil:
		return false
	}
	return ParseFloat(v) != 0
}

// ParseStrings accepts a single string, a []string or a []interface{} of strings.
func ParseStrings(v interface{}) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []string:
		return append([]string(nil), t...)
	case []interface{}:
		res := make([]string, 0, len(t))
		for _, item := range t {
			if s := ParseString(item); s != "" {
				res = append(res, s)
			}
		}
		return res
	}
	return []string{ParseString(v)}
}

// ParseScheduled returns the unix time of a relative "later" expression like
// "30s", "2h" or "1W", 0 if the expression is not valid.
func ParseScheduled(s string) int64 {
	v, u := parseWhen(s)
	return calcTime(v, u)
}

// ParseRunAt resolves a workflow delay, given either as RFC3339 time or as a
// relative ParseScheduled expression. ok is false for anything else.
func ParseRunAt(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	p := ParseScheduled(s)
	if p == 0 {
		return time.Time{}, false
	}
	return time.Unix(p, 0).UTC(), true
}

func parseWhen(s string) (int, string) {
	var v int                     // value
	var u string                  // unit
	fmt.Sscanf(s, "%d%s", &v, &u) // format ("2d", etc.)
	return v, u
}

func calcTime(v int, u string) int64 {
	now := time.Now().UTC()
	switch u {
	case "s":
		return now.Add(time.Duration(v) * time.Second).Unix()
	case "m":
		return now.Add(time.Duration(v) * time.Minute).Unix()
	case "h":
		return now.Add(time.Duration(v) * time.Hour).Unix()
	}
	rounded := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch u {
	case "D":
		return rounded.AddDate(0, 0, v).Unix()
	case "W":
		return rounded.AddDate(0, 0, 7*v).Unix()
	case "M":
		return rounded.AddDate(0, v, 0).Unix()
	case "Y":
		return rounded.AddDate(v, 0, 0).Unix()
	}
	return 0
}
