package repo

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/moonwalker/verdict/pkg/rules"
)

// RuleSetRepo persists named rule-sets. Get returns a *rules.NotFoundError
// for unknown names. Each visits the rule-sets in name order and skips the
// ones that fail to decode.
type RuleSetRepo interface {
	Name() string
	Get(name string) ([]*rules.Rule, error)
	Save(name string, rs []*rules.Rule) error
	Remove(name string) error
	Each(fn func(name string, rs []*rules.Rule) error) error
	Count() int
	Close()
}

func rulesetNotFound(name string) error {
	return &rules.NotFoundError{Kind: "ruleset", Name: name}
}

func encode(name string, rs []*rules.Rule) ([]byte, error) {
	if rs == nil {
		rs = []*rules.Rule{}
	}
	return json.Marshal(&rules.RuleSet{
		Name:       name,
		Rules:      rs,
		ExportedAt: time.Now().UTC(),
		Version:    rules.RuleSetVersion,
	})
}

// decode accepts a rule-set document or a bare array of rules.
func decode(file string, data []byte) ([]*rules.Rule, error) {
	doc, err := rules.DecodeRuleSet(file, data)
	if err == nil {
		return doc.Rules, nil
	}
	rs, e := rules.DecodeRules(file, data)
	if e != nil {
		return nil, err
	}
	return rs, nil
}

// skipMalformed logs a rule-set that cannot be decoded and reports whether
// Each should go on with the next one.
func skipMalformed(repo, name string, err error) bool {
	if !rules.IsMalformed(err) {
		return false
	}
	slog.Error("skipping malformed rule-set", "repo", repo, "ruleset", name, "err", err)
	return true
}

func cloneRules(rs []*rules.Rule) []*rules.Rule {
	if rs == nil {
		return nil
	}
	out := make([]*rules.Rule, len(rs))
	for i, r := range rs {
		out[i] = r.Clone()
	}
	return out
}
