package rules

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// context

// Context carries the request data actions work on (user, order,
// transaction, ...) together with a trace of the actions run against it.
type Context struct {
	Data      Document `json:"data"`
	Spans     Spans    `json:"spans,omitempty"`
	Engine    string   `json:"engine,omitempty"`
	EventType string   `json:"eventType,omitempty"`
}

const (
	timestampKey = "timestamp"
)

var placeholderRegexp = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)

// NewContext builds a context from raw json ([]byte or string) or any value
// that marshals to a json object.
func NewContext(data interface{}) *Context {
	ctx := &Context{}

	switch v := data.(type) {
	case nil:
	case []byte:
		if gjson.ValidBytes(v) {
			ctx.Data = append(Document(nil), v...)
		}
	case string:
		if gjson.Valid(v) {
			ctx.Data = Document(v)
		}
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			ctx.SetFact(escapePath(k), v[k])
		}
	default:
		if b, err := json.Marshal(v); err == nil && gjson.ParseBytes(b).IsObject() {
			ctx.Data = b
		}
	}

	if !ctx.GetFact(timestampKey).Exists() {
		ctx.SetFact(timestampKey, time.Now().UTC().Format(time.RFC3339Nano))
	}

	return ctx
}

func (ctx *Context) SetFact(path string, value interface{}) (err error) {
	return ctx.Data.Set(path, value)
}

func (ctx *Context) GetFact(path string) gjson.Result {
	return ctx.Data.Get(path)
}

// String returns the value at path as a string, "" when absent.
func (ctx *Context) String(path string) string {
	return ctx.GetFact(path).String()
}

// Float returns the value at path as a number, 0 when absent.
func (ctx *Context) Float(path string) float64 {
	return ctx.GetFact(path).Float()
}

// Interpolate replaces every {{path}} placeholder with the value found at
// that path. Unknown paths are left as they are.
func (ctx *Context) Interpolate(text string) string {
	return placeholderRegexp.ReplaceAllStringFunc(text, func(m string) string {
		path := placeholderRegexp.FindStringSubmatch(m)[1]
		res := ctx.GetFact(path)
		if !res.Exists() {
			return m
		}
		return res.String()
	})
}

func (ctx *Context) NewSpan(name string, params map[string]interface{}) *Span {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vals := []string{"ctx"}
	for _, k := range keys {
		vals = append(vals, fmt.Sprintf("%s=%v", k, params[k]))
	}
	called := fmt.Sprintf("%s(%s)", name, strings.Join(vals, ", "))
	span := &Span{Name: name, Called: called, start: time.Now()}
	ctx.Spans = append(ctx.Spans, span)
	return span
}

func escapePath(key string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return r.Replace(key)
}

// document

// Document is a raw json object addressed with gjson paths.
type Document []byte

func (d Document) Get(path string) gjson.Result {
	return gjson.GetBytes(d, path)
}

func (d *Document) Set(path string, value interface{}) (err error) {
	*d, err = sjson.SetBytes(*d, path, value)
	return
}

func (d Document) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("{}"), nil
	}
	return d, nil
}

func (d *Document) UnmarshalJSON(data []byte) error {
	*d = append(Document(nil), data...)
	return nil
}

func (d Document) String() string {
	return string(d)
}

func (d Document) Map() map[string]interface{} {
	res, ok := gjson.ParseBytes(d).Value().(map[string]interface{})
	if !ok {
		return nil
	}
	return res
}

// spans

type Spans []*Span

type Span struct {
	start    time.Time
	Name     string `json:"-"`
	Called   string `json:"called"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

func (s *Span) Finish() {
	s.Duration = time.Since(s.start).String()
}

func (s *Span) Fail(err error) {
	if err != nil {
		s.Error = err.Error()
	}
	s.Finish()
}
