// Package catalog ships the standard rule-sets of the discount, fraud,
// action, workflow and notification use-cases.
package catalog

import (
	"embed"
	"path"
	"sort"
	"strings"

	"github.com/moonwalker/verdict/pkg/rules"
)

const (
	Discount     = "discount"
	Fraud        = "fraud-detection"
	ActionBased  = "action-based-discount"
	Workflow     = "workflow"
	Notification = "notification"
)

//go:embed rulesets/*.yaml
var files embed.FS

const dir = "rulesets"

// Names lists the embedded rule-sets.
func Names() []string {
	entries, _ := files.ReadDir(dir)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), path.Ext(e.Name())))
	}
	sort.Strings(names)
	return names
}

// Get decodes a fresh copy of the named rule-set.
func Get(name string) (*rules.RuleSet, error) {
	file := path.Join(dir, name+".yaml")
	data, err := files.ReadFile(file)
	if err != nil {
		return nil, &rules.NotFoundError{Kind: "ruleset", Name: name}
	}
	return rules.DecodeRuleSet(file, data)
}

func Must(name string) *rules.RuleSet {
	rs, err := Get(name)
	if err != nil {
		panic(err)
	}
	return rs
}

// All decodes every embedded rule-set.
func All() ([]*rules.RuleSet, error) {
	res := make([]*rules.RuleSet, 0)
	for _, name := range Names() {
		rs, err := Get(name)
		if err != nil {
			return nil, err
		}
		res = append(res, rs)
	}
	return res, nil
}
