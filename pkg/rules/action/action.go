package action

import (
	"context"
	"time"

	"github.com/moonwalker/verdict/pkg/parse"
	"github.com/moonwalker/verdict/pkg/rules"
)

// Handler performs one named action. A returned payload is reported even
// when err is set.
type Handler func(ctx context.Context, p Params, actx *rules.Context) (Payload, error)

// Params are the loosely typed arguments of an action, as declared in a
// rule's actionParams.
type Params map[string]interface{}

// Payload is the descriptive result of an action.
type Payload map[string]interface{}

// Outcome reports one action execution, cascaded actions included.
type Outcome struct {
	Success   bool          `json:"success"`
	Action    string        `json:"action"`
	Payload   Payload       `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
	Cascaded  []*Outcome    `json:"cascaded,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"-"`
}

// Result pairs a matched event with the outcome of its action.
type Result struct {
	Event   rules.Event `json:"event"`
	Outcome *Outcome    `json:"actionResult"`
}

func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

func (p Params) Float(key string) float64 {
	return parse.ParseFloat(p[key])
}

func (p Params) String(key string) string {
	return parse.ParseString(p[key])
}

func (p Params) Bool(key string) bool {
	return parse.ParseBool(p[key])
}

func (p Params) Strings(key string) []string {
	return parse.ParseStrings(p[key])
}

func (p Params) Map(key string) map[string]interface{} {
	m, _ := p[key].(map[string]interface{})
	return m
}

// Enabled reports whether a cascade flag is set.
func (p Params) Enabled(flag string) bool {
	return p.Bool(flag)
}

// ParamsFor builds the action params of an event: its actionParams, with the
// event level fields (percentage, reason, workflowType, ...) filled in where
// actionParams does not set them.
func ParamsFor(e rules.Event) Params {
	p := Params{}
	for k, v := range e.Params.Extra {
		p[k] = v
	}
	if e.Params.Reason != "" {
		p["reason"] = e.Params.Reason
	}
	if e.Params.Percentage != 0 {
		p["percentage"] = e.Params.Percentage
	}
	if e.Params.RiskScore != 0 {
		p["risk_score"] = e.Params.RiskScore
	}
	for k, v := range e.Params.ActionParams {
		p[k] = v
	}
	return p
}
