package rules

import (
	"encoding/json"
	"fmt"
	"time"
)

type Rule struct {
	ID         string     `json:"id,omitempty"`
	Name       string     `json:"name,omitempty"`
	Conditions *Condition `json:"conditions"`
	Event      Event      `json:"event"`
	Created    time.Time  `json:"createdAt,omitzero"`
	Updated    time.Time  `json:"updatedAt,omitzero"`
	Changes    string     `json:"changes,omitempty"`
}

// Event is the declarative outcome of a matched rule.
type Event struct {
	Type   string `json:"type"`
	Params Params `json:"params"`
}

// Params holds the event parameters. Well-known fields are typed, anything
// else lands in Extra and is kept on round trips.
type Params struct {
	Priority          float64
	Reason            string
	Action            string
	ActionParams      map[string]interface{}
	RiskScore         float64
	RequiredApprovals float64
	Percentage        float64
	Extra             map[string]interface{}
}

const (
	paramPriority          = "priority"
	paramReason            = "reason"
	paramAction            = "action"
	paramActionParams      = "actionParams"
	paramRiskScore         = "risk_score"
	paramRequiredApprovals = "required_approvals"
	paramPercentage        = "percentage"
)

// Validate checks that the rule can be installed in an engine.
func (r *Rule) Validate(path string) error {
	if r == nil {
		return &MalformedInputError{Field: path, Message: "rule is required"}
	}
	if err := r.Conditions.Validate(path + ".conditions"); err != nil {
		return err
	}
	if r.Event.Type == "" {
		return &MalformedInputError{Field: path + ".event.type", Message: "event type is required"}
	}
	return nil
}

// Clone returns a deep copy, so callers may keep or mutate it freely.
func (r *Rule) Clone() *Rule {
	c := *r
	c.Conditions = r.Conditions.clone()
	c.Event = r.Event.Clone()
	return &c
}

func (c *Condition) clone() *Condition {
	if c == nil {
		return nil
	}
	cc := *c
	if c.Items != nil {
		cc.Items = make([]*Condition, len(c.Items))
		for i, item := range c.Items {
			cc.Items[i] = item.clone()
		}
	}
	return &cc
}

func (e Event) Clone() Event {
	e.Params.ActionParams = cloneMap(e.Params.ActionParams)
	e.Params.Extra = cloneMap(e.Params.Extra)
	return e
}

// HasAction reports whether the event asks for an action to be dispatched.
func (e Event) HasAction() bool {
	return e.Params.Action != ""
}

func (p Params) Get(key string) (interface{}, bool) {
	switch key {
	case paramPriority:
		return p.Priority, true
	case paramReason:
		return p.Reason, p.Reason != ""
	case paramAction:
		return p.Action, p.Action != ""
	case paramActionParams:
		return p.ActionParams, p.ActionParams != nil
	case paramRiskScore:
		return p.RiskScore, true
	case paramRequiredApprovals:
		return p.RequiredApprovals, true
	case paramPercentage:
		return p.Percentage, true
	}
	v, ok := p.Extra[key]
	return v, ok
}

func (p Params) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(p.Extra)+7)
	for k, v := range p.Extra {
		out[k] = v
	}
	out[paramPriority] = p.Priority
	if p.Reason != "" {
		out[paramReason] = p.Reason
	}
	if p.Action != "" {
		out[paramAction] = p.Action
	}
	if p.ActionParams != nil {
		out[paramActionParams] = p.ActionParams
	}
	if p.RiskScore != 0 {
		out[paramRiskScore] = p.RiskScore
	}
	if p.RequiredApprovals != 0 {
		out[paramRequiredApprovals] = p.RequiredApprovals
	}
	if p.Percentage != 0 {
		out[paramPercentage] = p.Percentage
	}
	return json.Marshal(out)
}

func (p *Params) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return p.fromMap(raw)
}

func (p *Params) fromMap(raw map[string]interface{}) error {
	*p = Params{}
	for k, v := range raw {
		var err error
		switch k {
		case paramPriority:
			p.Priority, err = numberParam(k, v)
		case paramRiskScore:
			p.RiskScore, err = numberParam(k, v)
		case paramRequiredApprovals:
			p.RequiredApprovals, err = numberParam(k, v)
		case paramPercentage:
			p.Percentage, err = numberParam(k, v)
		case paramReason:
			p.Reason, err = stringParam(k, v)
		case paramAction:
			p.Action, err = stringParam(k, v)
		case paramActionParams:
			if v == nil {
				continue
			}
			m, ok := v.(map[string]interface{})
			if !ok {
				err = &MalformedInputError{Field: "params." + k, Message: "must be an object"}
			}
			p.ActionParams = m
		default:
			if p.Extra == nil {
				p.Extra = make(map[string]interface{})
			}
			p.Extra[k] = v
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func numberParam(key string, v interface{}) (float64, error) {
	if v == nil {
		return 0, nil
	}
	val, ok := ValueOf(v)
	n, isNum := val.Number()
	if !ok || !isNum {
		return 0, &MalformedInputError{Field: "params." + key, Message: fmt.Sprintf("must be a number, got %T", v)}
	}
	return n, nil
}

func stringParam(key string, v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &MalformedInputError{Field: "params." + key, Message: fmt.Sprintf("must be a string, got %T", v)}
	}
	return s, nil
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}
