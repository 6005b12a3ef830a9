package engine

import (
	"strings"
	"time"

	"github.com/moonwalker/verdict/pkg/mime"
	"github.com/moonwalker/verdict/pkg/rules"
)

// GetRules returns a copy of the rules of name.
func (r *Registry) GetRules(name string) ([]*rules.Rule, error) {
	rs, err := r.snapshot(name)
	if err != nil {
		return nil, err
	}
	out := make([]*rules.Rule, len(rs.rules))
	for i, rule := range rs.rules {
		out[i] = rule.Clone()
	}
	return out, nil
}

// current returns the rules a mutation of name starts from, an empty
// rule-set when create is set and name is unknown.
func (r *Registry) current(name string, create bool) ([]*rules.Rule, error) {
	rs, err := r.GetRules(name)
	if rules.IsNotFound(err) && create {
		return []*rules.Rule{}, nil
	}
	return rs, err
}

// commit persists rs through the repo, when one is configured, then
// hot-reloads name.
func (r *Registry) commit(name string, rs []*rules.Rule) error {
	if err := rules.ValidateRules(rs); err != nil {
		return err
	}
	// ids are fixed before persisting so a reload keeps them
	now := time.Now().UTC()
	for _, rule := range rs {
		if rule.ID == "" {
			rule.ID = newRuleID()
		}
		if rule.Created.IsZero() {
			rule.Created = now
		}
	}
	if r.Repo != nil {
		if err := r.Repo.Save(name, rs); err != nil {
			return err
		}
	}
	return r.UpdateEngine(name, rs)
}

// AddRule appends rule to name, creating the rule-set when needed, and
// returns the generated rule id.
func (r *Registry) AddRule(name string, rule *rules.Rule) (string, error) {
	if err := rule.Validate("rule"); err != nil {
		return "", err
	}

	r.mgmt.Lock()
	defer r.mgmt.Unlock()

	rs, err := r.current(name, true)
	if err != nil {
		return "", err
	}

	c := rule.Clone()
	c.ID = newRuleID()
	c.Created = time.Now().UTC()
	c.Updated = time.Time{}
	c.Changes = ""
	rs = append(rs, c)

	if err := r.commit(name, rs); err != nil {
		return "", err
	}

	r.logger.Info("rule added", "engine", name, "rule", c.ID)
	return c.ID, nil
}

// UpdateRule replaces rule id of name, keeping its id and creation time and
// recording what changed.
func (r *Registry) UpdateRule(name, id string, rule *rules.Rule) error {
	if err := rule.Validate("rule"); err != nil {
		return err
	}

	r.mgmt.Lock()
	defer r.mgmt.Unlock()

	rs, err := r.current(name, false)
	if err != nil {
		return err
	}

	idx := indexOf(rs, id)
	if idx < 0 {
		return rules.RuleNotFound(name, id)
	}

	old := rs[idx]
	c := rule.Clone()
	c.ID = id
	c.Created = old.Created
	c.Updated = time.Now().UTC()
	changes := rules.Diff(old, c)
	c.Changes = strings.Join(changes, ", ")
	rs[idx] = c

	if err := r.commit(name, rs); err != nil {
		return err
	}

	r.logger.Info("AUDIT: rule updated", "engine", name, "rule", id, "changes", c.Changes, "at", c.Updated)
	return nil
}

func (r *Registry) RemoveRule(name, id string) error {
	r.mgmt.Lock()
	defer r.mgmt.Unlock()

	rs, err := r.current(name, false)
	if err != nil {
		return err
	}

	idx := indexOf(rs, id)
	if idx < 0 {
		return rules.RuleNotFound(name, id)
	}
	rs = append(rs[:idx], rs[idx+1:]...)

	if err := r.commit(name, rs); err != nil {
		return err
	}

	r.logger.Info("rule removed", "engine", name, "rule", id)
	return nil
}

// ExportRules encodes name as a rule-set document in format
// (mime.FormatJSON or mime.FormatYAML).
func (r *Registry) ExportRules(name, format string) ([]byte, error) {
	rs, err := r.GetRules(name)
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = mime.FormatJSON
	}

	return rules.EncodeRuleSet(&rules.RuleSet{
		Name:       name,
		Rules:      rs,
		ExportedAt: time.Now().UTC(),
		Version:    rules.RuleSetVersion,
	}, format)
}

// ImportRules installs the rule-set document in data (json or yaml),
// replacing the named rule-set. file is an optional name used as a format
// hint. Nothing is installed when the document is malformed.
func (r *Registry) ImportRules(file string, data []byte) (string, error) {
	doc, err := rules.DecodeRuleSet(file, data)
	if err != nil {
		r.logger.Error("failed to import rules", "err", err)
		return "", err
	}

	r.mgmt.Lock()
	defer r.mgmt.Unlock()

	if err := r.commit(doc.Name, doc.Rules); err != nil {
		return "", err
	}

	r.logger.Info("rules imported", "engine", doc.Name, "rules", len(doc.Rules))
	return doc.Name, nil
}

func indexOf(rs []*rules.Rule, id string) int {
	for i, rule := range rs {
		if rule.ID == id {
			return i
		}
	}
	return -1
}
