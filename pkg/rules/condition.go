package rules

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	CONNECTOR_ALL string = "all"
	CONNECTOR_ANY string = "any"

	COMPARER_EQUAL            string = "=="
	COMPARER_NOT_EQUAL        string = "!="
	COMPARER_GREATER          string = ">"
	COMPARER_GREATER_OR_EQUAL string = ">="
	COMPARER_LESS             string = "<"
	COMPARER_LESS_OR_EQUAL    string = "<="
)

// comparer aliases accepted in rule documents
var comparerAliases = map[string]string{
	"==":                   COMPARER_EQUAL,
	"equal":                COMPARER_EQUAL,
	"!=":                   COMPARER_NOT_EQUAL,
	"notEqual":             COMPARER_NOT_EQUAL,
	">":                    COMPARER_GREATER,
	"greaterThan":          COMPARER_GREATER,
	">=":                   COMPARER_GREATER_OR_EQUAL,
	"greaterThanInclusive": COMPARER_GREATER_OR_EQUAL,
	"<":                    COMPARER_LESS,
	"lessThan":             COMPARER_LESS,
	"<=":                   COMPARER_LESS_OR_EQUAL,
	"lessThanInclusive":    COMPARER_LESS_OR_EQUAL,
}

// NormalizeComparer maps a comparer or one of its aliases to its canonical form.
func NormalizeComparer(c string) (string, bool) {
	n, ok := comparerAliases[c]
	return n, ok
}

func isNumericComparer(c string) bool {
	switch c {
	case COMPARER_GREATER, COMPARER_GREATER_OR_EQUAL, COMPARER_LESS, COMPARER_LESS_OR_EQUAL:
		return true
	}
	return false
}

// Condition is either a leaf comparing one fact against a value, or a group
// (Kind set to all/any) combining its Items.
type Condition struct {
	Fact     string
	Comparer string
	Value    Value

	Kind  string
	Items []*Condition
}

func Leaf(fact, comparer string, value Value) *Condition {
	if n, ok := NormalizeComparer(comparer); ok {
		comparer = n
	}
	return &Condition{Fact: fact, Comparer: comparer, Value: value}
}

func All(items ...*Condition) *Condition {
	return &Condition{Kind: CONNECTOR_ALL, Items: items}
}

func Any(items ...*Condition) *Condition {
	return &Condition{Kind: CONNECTOR_ANY, Items: items}
}

func (c *Condition) IsGroup() bool {
	return c.Kind != ""
}

// Validate checks the structural invariants of the tree. path locates the
// offending node in error messages, e.g. "conditions.all[1]".
func (c *Condition) Validate(path string) error {
	if c == nil {
		return &MalformedInputError{Field: path, Message: "condition is required"}
	}
	if c.IsGroup() {
		if c.Kind != CONNECTOR_ALL && c.Kind != CONNECTOR_ANY {
			return &MalformedInputError{Field: path, Message: fmt.Sprintf("unknown group kind %q", c.Kind)}
		}
		if len(c.Items) == 0 {
			return &MalformedInputError{Field: path + "." + c.Kind, Message: "group needs at least one condition"}
		}
		for i, item := range c.Items {
			if err := item.Validate(fmt.Sprintf("%s.%s[%d]", path, c.Kind, i)); err != nil {
				return err
			}
		}
		return nil
	}
	if c.Fact == "" {
		return &MalformedInputError{Field: path + ".fact", Message: "fact is required"}
	}
	if _, ok := NormalizeComparer(c.Comparer); !ok {
		return &MalformedInputError{Field: path + ".operator", Message: fmt.Sprintf("unknown operator %q", c.Comparer)}
	}
	if !c.Value.IsValid() {
		return &MalformedInputError{Field: path + ".value", Message: "value is required"}
	}
	return nil
}

// Evaluate tests the condition tree against facts. It never fails: missing
// facts and type mismatches make the leaf false.
func Evaluate(c *Condition, facts Facts) bool {
	if c == nil {
		return false
	}
	if !c.IsGroup() {
		return evaluate(c, facts)
	}

	ok := c.Kind == CONNECTOR_ALL
	for _, item := range c.Items {
		ok = ConnectCondition(ok, Evaluate(item, facts), c.Kind)
		// all: first false decides, any: first true decides
		if (c.Kind == CONNECTOR_ALL && !ok) || (c.Kind == CONNECTOR_ANY && ok) {
			return ok
		}
	}
	return ok
}

func ConnectCondition(res bool, eval bool, connector string) bool {
	if connector == CONNECTOR_ALL {
		return res && eval
	}
	return res || eval
}

func evaluate(c *Condition, facts Facts) bool {
	fv, ok := facts.Get(c.Fact)
	if !ok {
		return false
	}

	comparer, ok := NormalizeComparer(c.Comparer)
	if !ok {
		return false
	}

	if isNumericComparer(comparer) {
		a, aok := fv.Number()
		b, bok := c.Value.Number()
		if !aok || !bok {
			return false
		}
		return CompareFloat(a, b, comparer)
	}

	switch fv.Kind() {
	case KindString:
		a, _ := fv.Str()
		b, ok := c.Value.Str()
		if !ok {
			return comparer == COMPARER_NOT_EQUAL
		}
		return compareString(a, b, comparer)
	case KindNumber:
		a, _ := fv.Number()
		b, ok := c.Value.Number()
		if !ok {
			return comparer == COMPARER_NOT_EQUAL
		}
		return CompareFloat(a, b, comparer)
	case KindBool:
		a, _ := fv.Boolean()
		b, ok := c.Value.Boolean()
		if !ok {
			return comparer == COMPARER_NOT_EQUAL
		}
		return compareBool(a, b, comparer)
	}

	return false
}

func compareString(a, b string, c string) bool {
	if c == COMPARER_EQUAL {
		return a == b
	}

	if c == COMPARER_NOT_EQUAL {
		return a != b
	}

	return false
}

func CompareFloat(a, b float64, c string) bool {
	if c == COMPARER_EQUAL {
		return a == b
	}

	if c == COMPARER_NOT_EQUAL {
		return a != b
	}

	if c == COMPARER_GREATER {
		return a > b
	}

	if c == COMPARER_GREATER_OR_EQUAL {
		return a >= b
	}

	if c == COMPARER_LESS {
		return a < b
	}

	if c == COMPARER_LESS_OR_EQUAL {
		return a <= b
	}

	return false
}

func compareBool(a, b bool, c string) bool {
	if c == COMPARER_EQUAL {
		return a == b
	}

	if c == COMPARER_NOT_EQUAL {
		return a != b
	}

	return false
}

// Explain returns a readable description of the first leaf that keeps the
// condition from matching, or "" when it matches.
func Explain(c *Condition, facts Facts) string {
	if c == nil {
		return "n/a"
	}
	if Evaluate(c, facts) {
		return ""
	}
	if !c.IsGroup() {
		fv, ok := facts.Get(c.Fact)
		if !ok {
			return fmt.Sprintf("%s is not set", c.Fact)
		}
		return fmt.Sprintf("%s %s %s (got %s)", c.Fact, c.Comparer, c.Value, fv)
	}
	if c.Kind == CONNECTOR_ANY {
		parts := make([]string, 0, len(c.Items))
		for _, item := range c.Items {
			parts = append(parts, Explain(item, facts))
		}
		return "none of ( " + strings.Join(parts, " or ") + " )"
	}
	for _, item := range c.Items {
		if !Evaluate(item, facts) {
			return Explain(item, facts)
		}
	}
	return "n/a"
}

// json

type conditionJSON struct {
	Fact     string       `json:"fact,omitempty"`
	Operator string       `json:"operator,omitempty"`
	Value    *Value       `json:"value,omitempty"`
	All      []*Condition `json:"all,omitempty"`
	Any      []*Condition `json:"any,omitempty"`
}

func (c *Condition) MarshalJSON() ([]byte, error) {
	if c.IsGroup() {
		if c.Kind == CONNECTOR_ANY {
			return json.Marshal(&conditionJSON{Any: c.Items})
		}
		return json.Marshal(&conditionJSON{All: c.Items})
	}
	v := c.Value
	return json.Marshal(&conditionJSON{Fact: c.Fact, Operator: c.Comparer, Value: &v})
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw conditionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	leaf := raw.Fact != "" || raw.Operator != "" || raw.Value != nil
	switch {
	case raw.All != nil && raw.Any != nil:
		return &MalformedInputError{Message: "condition cannot declare both all and any"}
	case leaf && (raw.All != nil || raw.Any != nil):
		return &MalformedInputError{Message: "condition cannot be both a leaf and a group"}
	case raw.All != nil:
		*c = Condition{Kind: CONNECTOR_ALL, Items: raw.All}
	case raw.Any != nil:
		*c = Condition{Kind: CONNECTOR_ANY, Items: raw.Any}
	default:
		comparer := raw.Operator
		if n, ok := NormalizeComparer(comparer); ok {
			comparer = n
		}
		*c = Condition{Fact: raw.Fact, Comparer: comparer}
		if raw.Value != nil {
			c.Value = *raw.Value
		}
	}
	return nil
}
