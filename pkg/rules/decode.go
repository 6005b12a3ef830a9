package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	yaml "gopkg.in/yaml.v2"

	"github.com/moonwalker/verdict/pkg/mime"
)

const RuleSetVersion = "1.0.0"

// RuleSet is the import/export document of one named engine.
type RuleSet struct {
	Name       string    `json:"rulesetName"`
	Rules      []*Rule   `json:"rules"`
	ExportedAt time.Time `json:"exportedAt,omitzero"`
	Version    string    `json:"version,omitempty"`
}

// Validate checks the document and every rule in it. Nothing of a document
// that fails validation may be installed.
func (rs *RuleSet) Validate() error {
	if rs.Name == "" {
		return &MalformedInputError{Field: "rulesetName", Message: "is required"}
	}
	if rs.Rules == nil {
		return &MalformedInputError{Field: "rules", Message: "must be an array"}
	}
	return ValidateRules(rs.Rules)
}

func ValidateRules(rs []*Rule) error {
	for i, r := range rs {
		if err := r.Validate(fmt.Sprintf("rules[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

// DecodeRuleSet reads a rule-set document encoded as json or yaml. name is an
// optional file name used as a format hint.
func DecodeRuleSet(name string, data []byte) (*RuleSet, error) {
	rs := &RuleSet{}
	if err := decode(name, data, rs); err != nil {
		return nil, err
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return rs, nil
}

// DecodeRules reads a bare array of rules encoded as json or yaml.
func DecodeRules(name string, data []byte) ([]*Rule, error) {
	var rs []*Rule
	if err := decode(name, data, &rs); err != nil {
		return nil, err
	}
	if rs == nil {
		return nil, &MalformedInputError{Field: "rules", Message: "must be an array"}
	}
	if err := ValidateRules(rs); err != nil {
		return nil, err
	}
	return rs, nil
}

// EncodeRuleSet writes rs in the given format (mime.FormatJSON or mime.FormatYAML).
func EncodeRuleSet(rs *RuleSet, format string) ([]byte, error) {
	data, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return nil, err
	}
	if format != mime.FormatYAML {
		return data, nil
	}
	var doc yaml.MapSlice
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}

func decode(name string, data []byte, v interface{}) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return &MalformedInputError{Message: "empty document"}
	}

	switch mime.Format(name, data) {
	case mime.FormatJSON:
	case mime.FormatYAML:
		var err error
		data, err = yamlToJSON(data)
		if err != nil {
			return &MalformedInputError{Message: "invalid yaml", Cause: err}
		}
	default:
		return &MalformedInputError{Message: "unsupported content type"}
	}

	if err := json.Unmarshal(data, v); err != nil {
		if IsMalformed(err) {
			return err
		}
		return &MalformedInputError{Message: "invalid json", Cause: err}
	}
	return nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	doc, err := jsonCompatible(doc)
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// yaml.v2 decodes mappings as map[interface{}]interface{}, which json refuses
func jsonCompatible(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, item := range t {
			ks, ok := k.(string)
			if !ok {
				ks = fmt.Sprintf("%v", k)
			}
			conv, err := jsonCompatible(item)
			if err != nil {
				return nil, err
			}
			m[ks] = conv
		}
		return m, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			conv, err := jsonCompatible(item)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	}
	return v, nil
}
