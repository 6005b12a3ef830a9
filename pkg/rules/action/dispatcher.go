package action

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/moonwalker/verdict/pkg/rules"
)

const unknownAction = "unknown action type"

// Dispatcher maps action names to handlers and runs them with per-action
// failure isolation.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	index    map[string]string
	cascades map[string][]Step
	ports    Ports
	logger   *slog.Logger
	observe  func(*Outcome)
}

type Option func(*Dispatcher)

func WithPorts(p Ports) Option {
	return func(d *Dispatcher) {
		d.ports = p
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// WithObserver registers fn to be called with every outcome, cascaded ones included.
func WithObserver(fn func(*Outcome)) Option {
	return func(d *Dispatcher) {
		d.observe = fn
	}
}

func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[string]Handler),
		index:    make(map[string]string),
		cascades: DefaultCascades(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	d.ports = d.ports.withDefaults(d.logger)

	b := &builtins{ports: d.ports, logger: d.logger}
	for name, h := range b.handlers() {
		d.Register(name, h)
	}
	return d
}

// Register adds or replaces the handler for name. Lookups also accept the
// hyphenated form of name, e.g. apply-discount for applyDiscount.
func (d *Dispatcher) Register(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = h
	d.index[foldName(name)] = name
}

// Cascade replaces the cascade plan of action.
func (d *Dispatcher) Cascade(action string, steps ...Step) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(steps) == 0 {
		delete(d.cascades, action)
		return
	}
	d.cascades[action] = steps
}

func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Dispatcher) lookup(name string) (string, Handler, []Step, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	canonical, ok := d.index[foldName(name)]
	if !ok {
		return name, nil, nil, false
	}
	return canonical, d.handlers[canonical], d.cascades[canonical], true
}

// ExecuteAction runs the named action and, when it succeeded, the steps of
// its cascade plan that params enable. It never fails: unknown actions,
// handler errors and panics are reported in the outcome.
func (d *Dispatcher) ExecuteAction(ctx context.Context, name string, params Params, actx *rules.Context) *Outcome {
	if actx == nil {
		actx = rules.NewContext(nil)
	}
	if params == nil {
		params = Params{}
	}

	canonical, h, plan, ok := d.lookup(name)
	if !ok {
		d.logger.Warn("unknown action type", "action", name)
		out := &Outcome{Action: name, Error: unknownAction, Timestamp: time.Now().UTC()}
		d.notify(out)
		return out
	}

	out := d.run(ctx, canonical, h, params, actx)
	if !out.Success {
		return out
	}

	for _, step := range plan {
		if !params.Enabled(step.Flag) {
			continue
		}
		stepName, sh, _, ok := d.lookup(step.Action)
		if !ok {
			sub := &Outcome{Action: step.Action, Error: unknownAction, Timestamp: time.Now().UTC()}
			d.notify(sub)
			out.Cascaded = append(out.Cascaded, sub)
			continue
		}
		out.Cascaded = append(out.Cascaded, d.run(ctx, stepName, sh, step.params(params, out.Payload, actx), actx))
	}

	return out
}

// ExecuteActionsForEvents dispatches the action of every event that declares
// one, in event order. Events without an action are skipped.
func (d *Dispatcher) ExecuteActionsForEvents(ctx context.Context, events []rules.Event, actx *rules.Context) []Result {
	if actx == nil {
		actx = rules.NewContext(nil)
	}
	results := make([]Result, 0, len(events))
	for _, e := range events {
		if !e.HasAction() {
			continue
		}
		actx.EventType = e.Type
		results = append(results, Result{
			Event:   e,
			Outcome: d.ExecuteAction(ctx, e.Params.Action, ParamsFor(e), actx),
		})
	}
	return results
}

func (d *Dispatcher) run(ctx context.Context, name string, h Handler, params Params, actx *rules.Context) *Outcome {
	start := time.Now()
	span := actx.NewSpan(name, params)

	payload, err := safeCall(ctx, h, params, actx)

	out := &Outcome{
		Action:    name,
		Success:   err == nil,
		Payload:   payload,
		Timestamp: start.UTC(),
		Duration:  time.Since(start),
	}
	if err != nil {
		out.Error = err.Error()
		span.Fail(err)
		d.logger.Error("action failed", "action", name, "err", err)
	} else {
		span.Finish()
		d.logger.Info("action executed", "action", name, "took", out.Duration.String())
	}

	d.notify(out)
	return out
}

func (d *Dispatcher) notify(out *Outcome) {
	if d.observe != nil {
		d.observe(out)
	}
}

// safeCall runs the handler and returns its error if any
// if the call panics, the panic value is returned as an error
func safeCall(ctx context.Context, h Handler, params Params, actx *rules.Context) (res Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("%v", r)
			}
		}
	}()

	return h(ctx, params, actx)
}

// foldName makes applyDiscount, apply-discount and apply_discount equal
func foldName(name string) string {
	name = strings.ReplaceAll(name, "-", "")
	name = strings.ReplaceAll(name, "_", "")
	return strings.ToLower(name)
}
