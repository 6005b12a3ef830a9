package rules

import (
	"time"
)

// EvalResult describes a single rule evaluation, mostly for debugging.
type EvalResult struct {
	Rule        *Rule         `json:"rule"`
	Met         bool          `json:"met"`
	UnmetReason string        `json:"unmet,omitempty"`
	Duration    time.Duration `json:"-"`
}

// evaluator interface to support swappable implementations
type Evaluator interface {
	EvaluateRules(rules []*Rule, facts Facts) []Event
}
