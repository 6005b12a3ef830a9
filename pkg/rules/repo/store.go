package repo

import (
	"errors"
	"sort"
	"strings"

	"github.com/moonwalker/verdict/pkg/rules"
	"github.com/moonwalker/verdict/pkg/store"
)

const (
	RULESET_PREFIX = "rulesets:" // => rulesets:name {..}
)

type storeRuleSetRepo struct {
	name   string
	store  store.Store
	prefix string
}

// NewStoreRuleSetRepo keeps rule-set documents under "rulesets:<name>" keys of
// any key/value store (redis, bolt, s3). name labels the backend.
func NewStoreRuleSetRepo(name string, s store.Store) RuleSetRepo {
	return &storeRuleSetRepo{name, s, RULESET_PREFIX}
}

func (s *storeRuleSetRepo) Name() string {
	return s.name
}

func (s *storeRuleSetRepo) Get(name string) ([]*rules.Rule, error) {
	key, err := FmtKey(name, s.prefix)
	if err != nil {
		return nil, err
	}

	val, err := s.store.Get(key)
	if err != nil {
		return nil, err
	}
	if val == nil {
		return nil, rulesetNotFound(name)
	}

	return decode(key+".json", val)
}

func (s *storeRuleSetRepo) Save(name string, rs []*rules.Rule) error {
	key, err := FmtKey(name, s.prefix)
	if err != nil {
		return err
	}

	val, err := encode(name, rs)
	if err != nil {
		return err
	}

	return s.store.Set(key, val, &store.WriteOptions{ContentType: "application/json"})
}

func (s *storeRuleSetRepo) Remove(name string) error {
	key, err := FmtKey(name, s.prefix)
	if err != nil {
		return err
	}

	return s.store.Delete(key)
}

func (s *storeRuleSetRepo) Each(fn func(name string, rs []*rules.Rule) error) error {
	vals := make(map[string][]byte)
	err := s.store.Scan(s.prefix, 0, 0, func(key string, val []byte) {
		vals[strings.TrimPrefix(key, s.prefix)] = val
	})
	if err != nil {
		return err
	}

	names := make([]string, 0, len(vals))
	for name := range vals {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rs, err := decode(name+".json", vals[name])
		if skipMalformed(s.Name(), name, err) {
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

func (s *storeRuleSetRepo) Count() int {
	return s.store.Count(s.prefix)
}

func (s *storeRuleSetRepo) Close() {
	s.store.Close()
}

func FmtKey(name string, prefix string) (string, error) {
	if len(name) == 0 {
		return "", errors.New("ruleset name not specified")
	}
	return prefix + name, nil
}
