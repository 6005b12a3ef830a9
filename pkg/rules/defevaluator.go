package rules

import (
	"time"
)

// wrapper to fulfill evaluator interface
type DefaultEvaluator struct{}

// EvaluateRules tests every rule in order and returns copies of the events
// of the rules that matched.
func (e *DefaultEvaluator) EvaluateRules(rules []*Rule, facts Facts) []Event {
	events := make([]Event, 0)
	for _, rule := range rules {
		if rule == nil {
			continue
		}
		if Evaluate(rule.Conditions, facts) {
			events = append(events, rule.Event.Clone())
		}
	}
	return events
}

// EvaluateRule evaluates one rule and reports why it did not match.
func (e *DefaultEvaluator) EvaluateRule(rule *Rule, facts Facts) *EvalResult {
	start := time.Now()
	met := Evaluate(rule.Conditions, facts)
	res := &EvalResult{
		Rule: rule,
		Met:  met,
	}
	if !met {
		res.UnmetReason = Explain(rule.Conditions, facts)
	}
	res.Duration = time.Since(start)
	return res
}
