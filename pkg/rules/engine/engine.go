package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/moonwalker/verdict/pkg/rules"
	"github.com/moonwalker/verdict/pkg/rules/action"
	"github.com/moonwalker/verdict/pkg/rules/repo"
)

// Registry holds named rule-sets ("engines"). Every engine is an immutable
// snapshot swapped whole under the write lock, so evaluations never observe a
// half-updated rule-set and run without holding any lock.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]*ruleSet

	// serializes read-modify-write rule management
	mgmt sync.Mutex

	enabled    atomic.Bool
	evaluator  rules.Evaluator
	dispatcher *action.Dispatcher
	logger     *slog.Logger
	observer   Observer
	onStats    func(*EngineStats)

	Repo     repo.RuleSetRepo
	Commands chan *rules.Command

	done      chan struct{}
	closeOnce sync.Once
}

type ruleSet struct {
	rules        []*rules.Rule
	registeredAt time.Time
	version      int
}

type EngineInfo struct {
	Name         string    `json:"name"`
	RulesCount   int       `json:"rulesCount"`
	RegisteredAt time.Time `json:"registeredAt"`
	Version      int       `json:"version"`
}

type EngineStats struct {
	Enabled bool   `json:"enabled"`
	Engines int    `json:"engines"`
	Rules   int    `json:"rules"`
	Repo    string `json:"repo,omitempty"`
}

// ExecutionResult is returned by ExecuteRulesWithActions. Failed actions do
// not make the call fail, callers inspect Success or every ActionResult.
type ExecutionResult struct {
	Events        []rules.Event   `json:"events"`
	ActionResults []action.Result `json:"actionResults"`
	ExecutionTime time.Duration   `json:"-"`
	TotalActions  int             `json:"totalActions"`
	Success       bool            `json:"success"`
}

func (r *ExecutionResult) ExecutionTimeMs() float64 {
	return float64(r.ExecutionTime) / float64(time.Millisecond)
}

// Observer is notified about registry activity, see pkg/rules/metrics.
type Observer interface {
	Executed(engine string, events []rules.Event, d time.Duration)
	Registered(engine string, rulesCount int)
	Cleared()
}

type Option func(*Registry)

func WithRepo(r repo.RuleSetRepo) Option {
	return func(reg *Registry) {
		reg.Repo = r
	}
}

func WithEvaluator(e rules.Evaluator) Option {
	return func(reg *Registry) {
		reg.evaluator = e
	}
}

func WithDispatcher(d *action.Dispatcher) Option {
	return func(reg *Registry) {
		reg.dispatcher = d
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(reg *Registry) {
		reg.logger = l
	}
}

func WithObserver(o Observer) Option {
	return func(reg *Registry) {
		reg.observer = o
	}
}

// New creates an empty registry and starts its command loop. Call LoadAll to
// register the rule-sets of the repo.
func New(opts ...Option) *Registry {
	r := &Registry{
		engines:  make(map[string]*ruleSet),
		Commands: make(chan *rules.Command),
		done:     make(chan struct{}),
	}
	r.enabled.Store(true)

	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.evaluator == nil {
		r.evaluator = &rules.DefaultEvaluator{}
	}
	if r.dispatcher == nil {
		r.dispatcher = action.New(action.WithLogger(r.logger))
	}

	go r.commandsLoop()
	return r
}

func (r *Registry) Dispatcher() *action.Dispatcher {
	return r.dispatcher
}

// RegisterEngine validates rs and installs a private copy under name,
// replacing any previous rule-set. Nothing is installed when a rule is
// malformed. Rules without an id get one.
func (r *Registry) RegisterEngine(name string, rs []*rules.Rule) error {
	if name == "" {
		return &rules.MalformedInputError{Field: "name", Message: "engine name is required"}
	}
	if err := rules.ValidateRules(rs); err != nil {
		return err
	}

	now := time.Now().UTC()
	snapshot := make([]*rules.Rule, len(rs))
	for i, rule := range rs {
		c := rule.Clone()
		if c.ID == "" {
			c.ID = newRuleID()
		}
		if c.Created.IsZero() {
			c.Created = now
		}
		snapshot[i] = c
	}

	r.mu.Lock()
	version := 1
	if prev, ok := r.engines[name]; ok {
		version = prev.version + 1
	}
	r.engines[name] = &ruleSet{rules: snapshot, registeredAt: now, version: version}
	r.mu.Unlock()

	r.logger.Info("engine registered", "engine", name, "rules", len(snapshot), "version", version)
	if r.observer != nil {
		r.observer.Registered(name, len(snapshot))
	}
	return nil
}

// UpdateEngine hot-reloads name with rs.
func (r *Registry) UpdateEngine(name string, rs []*rules.Rule) error {
	if err := r.RegisterEngine(name, rs); err != nil {
		r.logger.Error("engine reload failed", "engine", name, "err", err)
		return err
	}
	r.logger.Info("engine reloaded", "engine", name)
	return nil
}

func (r *Registry) snapshot(name string) (*ruleSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rs, ok := r.engines[name]
	if !ok {
		return nil, rules.EngineNotFound(name)
	}
	return rs, nil
}

// ExecuteRules evaluates the rule-set name against facts and returns the
// events of the matching rules in rule order.
func (r *Registry) ExecuteRules(name string, facts rules.Facts) ([]rules.Event, error) {
	if !r.enabled.Load() {
		return nil, rules.ErrDisabled
	}

	rs, err := r.snapshot(name)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	events := r.evaluator.EvaluateRules(rs.rules, facts)
	d := time.Since(start)

	r.logger.Debug("rules executed", "engine", name, "rules", len(rs.rules), "matched", len(events), "duration", d)
	if r.observer != nil {
		r.observer.Executed(name, events, d)
	}
	return events, nil
}

// Explain evaluates every rule of name and reports why the unmatched ones
// did not match.
func (r *Registry) Explain(name string, facts rules.Facts) ([]*rules.EvalResult, error) {
	rs, err := r.snapshot(name)
	if err != nil {
		return nil, err
	}

	ev := &rules.DefaultEvaluator{}
	res := make([]*rules.EvalResult, 0, len(rs.rules))
	for _, rule := range rs.rules {
		res = append(res, ev.EvaluateRule(rule, facts))
	}
	return res, nil
}

// ExecuteRulesWithActions evaluates name and dispatches the action of every
// matched event, in event order. actx may be nil, a context is then built
// from the facts.
func (r *Registry) ExecuteRulesWithActions(ctx context.Context, name string, facts rules.Facts, actx *rules.Context) (*ExecutionResult, error) {
	start := time.Now()

	events, err := r.ExecuteRules(name, facts)
	if err != nil {
		return nil, err
	}

	if actx == nil {
		actx = rules.NewContext(facts.Map())
	}
	actx.Engine = name

	results := r.dispatcher.ExecuteActionsForEvents(ctx, events, actx)

	res := &ExecutionResult{
		Events:        events,
		ActionResults: results,
		TotalActions:  len(results),
		Success:       true,
	}
	for _, ar := range results {
		if !ar.Outcome.Success {
			res.Success = false
		}
	}
	res.ExecutionTime = time.Since(start)

	r.logger.Info("rules executed with actions", "engine", name, "events", len(events), "actions", res.TotalActions, "success", res.Success, "duration", res.ExecutionTime)
	return res, nil
}

// GetEngineNames returns the registered names in sorted order.
func (r *Registry) GetEngineNames() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

func (r *Registry) GetEngineInfo(name string) (*EngineInfo, error) {
	rs, err := r.snapshot(name)
	if err != nil {
		return nil, err
	}
	return &EngineInfo{
		Name:         name,
		RulesCount:   len(rs.rules),
		RegisteredAt: rs.registeredAt,
		Version:      rs.version,
	}, nil
}

// ClearAllEngines drops every engine. The repo is left untouched.
func (r *Registry) ClearAllEngines() {
	r.mu.Lock()
	r.engines = make(map[string]*ruleSet)
	r.mu.Unlock()

	r.logger.Info("engines cleared")
	if r.observer != nil {
		r.observer.Cleared()
	}
}

func (r *Registry) Enabled() bool {
	return r.enabled.Load()
}

func (r *Registry) Stats() *EngineStats {
	stats := &EngineStats{Enabled: r.enabled.Load()}

	r.mu.RLock()
	stats.Engines = len(r.engines)
	for _, rs := range r.engines {
		stats.Rules += len(rs.rules)
	}
	r.mu.RUnlock()

	if r.Repo != nil {
		stats.Repo = r.Repo.Name()
	}
	return stats
}

// OnStats calls fn with the registry stats immediately, every interval and
// after every command, until Close.
func (r *Registry) OnStats(interval time.Duration, fn func(stats *EngineStats)) {
	r.mu.Lock()
	r.onStats = fn
	r.mu.Unlock()

	r.emitStats()                      // emit first immediately
	ticker := time.NewTicker(interval) // then emit every interval
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.emitStats()
			case <-r.done:
				return
			}
		}
	}()
}

func (r *Registry) emitStats() {
	r.mu.RLock()
	fn := r.onStats
	r.mu.RUnlock()

	if fn != nil {
		fn(r.Stats())
	}
}

// Close stops the command loop and the stats ticker.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
}

func newRuleID() string {
	return "rule_" + uuid.NewString()
}
