package repo

import (
	"sort"
	"sync"

	"github.com/moonwalker/verdict/pkg/rules"
)

type inMemoryRuleSetRepo struct {
	mu   sync.RWMutex
	sets map[string][]*rules.Rule
}

func NewInMemoryRuleSetRepo() RuleSetRepo {
	return &inMemoryRuleSetRepo{sets: make(map[string][]*rules.Rule)}
}

func (s *inMemoryRuleSetRepo) Name() string {
	return "in-memory"
}

func (s *inMemoryRuleSetRepo) Get(name string) ([]*rules.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, ok := s.sets[name]
	if !ok {
		return nil, rulesetNotFound(name)
	}
	return cloneRules(rs), nil
}

func (s *inMemoryRuleSetRepo) Save(name string, rs []*rules.Rule) error {
	c := cloneRules(rs)
	if c == nil {
		c = []*rules.Rule{}
	}

	s.mu.Lock()
	s.sets[name] = c
	s.mu.Unlock()
	return nil
}

func (s *inMemoryRuleSetRepo) Remove(name string) error {
	s.mu.Lock()
	delete(s.sets, name)
	s.mu.Unlock()
	return nil
}

func (s *inMemoryRuleSetRepo) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sets)
}

// Each walks the rule-sets in name order.
func (s *inMemoryRuleSetRepo) Each(fn func(name string, rs []*rules.Rule) error) error {
	s.mu.RLock()
	names := make([]string, 0, len(s.sets))
	for name := range s.sets {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		rs, err := s.Get(name)
		if rules.IsNotFound(err) {
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(name, rs); err != nil {
			return err
		}
	}
	return nil
}

func (s *inMemoryRuleSetRepo) Close() {
	// no op
}
