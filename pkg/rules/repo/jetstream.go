package repo

import (
	"context"
	"sort"
	"time"

	"github.com/moonwalker/verdict/pkg/rules"
	"github.com/moonwalker/verdict/pkg/streams"
)

const (
	BUCKET_NAME    = "rulesets"
	BUCKET_HISTORY = 10

	jetstreamTimeout = 10 * time.Second
)

type jetstreamRuleSetRepo struct {
	bucket *streams.Bucket
}

// NewJetstreamRuleSetRepo keeps one key per rule-set in a jetstream
// key/value bucket. Older revisions are kept as bucket history.
func NewJetstreamRuleSetRepo(s *streams.Stream) (RuleSetRepo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), jetstreamTimeout)
	defer cancel()

	b, err := s.Bucket(ctx, BUCKET_NAME, BUCKET_HISTORY)
	if err != nil {
		return nil, err
	}
	return &jetstreamRuleSetRepo{b}, nil
}

func (s *jetstreamRuleSetRepo) Name() string {
	return "jetstream"
}

// Bucket is watched by eventsource.WatchBucket to reload changed rule-sets.
func (s *jetstreamRuleSetRepo) Bucket() *streams.Bucket {
	return s.bucket
}

func (s *jetstreamRuleSetRepo) Get(name string) ([]*rules.Rule, error) {
	ctx, cancel := context.WithTimeout(context.Background(), jetstreamTimeout)
	defer cancel()

	val, err := s.bucket.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if val == nil {
		return nil, rulesetNotFound(name)
	}
	return decode(name+".json", val)
}

func (s *jetstreamRuleSetRepo) Save(name string, rs []*rules.Rule) error {
	val, err := encode(name, rs)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), jetstreamTimeout)
	defer cancel()

	_, err = s.bucket.Put(ctx, name, val)
	return err
}

func (s *jetstreamRuleSetRepo) Remove(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), jetstreamTimeout)
	defer cancel()

	return s.bucket.Delete(ctx, name)
}

func (s *jetstreamRuleSetRepo) keys() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), jetstreamTimeout)
	defer cancel()

	keys, err := s.bucket.Keys(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *jetstreamRuleSetRepo) Each(fn func(name string, rs []*rules.Rule) error) error {
	names, err := s.keys()
	if err != nil {
		return err
	}

	for _, name := range names {
		rs, err := s.Get(name)
		if rules.IsNotFound(err) || skipMalformed(s.Name(), name, err) {
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

func (s *jetstreamRuleSetRepo) Count() int {
	names, err := s.keys()
	if err != nil {
		return -1
	}
	return len(names)
}

func (s *jetstreamRuleSetRepo) Close() {
	// the stream connection is owned by the caller
}
