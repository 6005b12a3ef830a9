package engine

import (
	"errors"
	"fmt"

	"github.com/moonwalker/verdict/pkg/rules"
)

var errNoRepo = errors.New("no rules repo configured")

// LoadAll registers every rule-set held by the repo. Rule-sets the repo cannot
// decode are logged and skipped, the others are still loaded.
func (r *Registry) LoadAll() error {
	if r.Repo == nil {
		return errNoRepo
	}

	var failed int
	err := r.Repo.Each(func(name string, rs []*rules.Rule) error {
		if err := r.UpdateEngine(name, rs); err != nil {
			failed++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("loading rules from %s: %w", r.Repo.Name(), err)
	}

	r.logger.Info("rules loaded", "repo", r.Repo.Name(), "engines", r.Repo.Count(), "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d rule-sets failed to load", failed)
	}
	return nil
}

// Reload re-reads one rule-set from the repo. A rule-set that no longer
// exists in the repo is dropped from the registry.
func (r *Registry) Reload(name string) error {
	if r.Repo == nil {
		return errNoRepo
	}

	rs, err := r.Repo.Get(name)
	if rules.IsNotFound(err) {
		r.mu.Lock()
		_, known := r.engines[name]
		delete(r.engines, name)
		r.mu.Unlock()
		if known {
			r.logger.Info("engine removed", "engine", name)
		}
		return err
	}
	if err != nil {
		return err
	}

	return r.UpdateEngine(name, rs)
}

// Handle applies one command: reload (one engine, or all when Engine is
// empty), stop or resume.
func (r *Registry) Handle(cmd *rules.Command) error {
	var err error

	switch cmd.Topic {
	case rules.CmdReload:
		if cmd.Engine == "" {
			err = r.LoadAll()
		} else {
			err = r.Reload(cmd.Engine)
		}
	case rules.CmdStop:
		r.enabled.Store(false)
		r.logger.Info("rules processing disabled")
	case rules.CmdResume:
		r.enabled.Store(true)
		r.logger.Info("rules processing enabled")
	default:
		err = fmt.Errorf("unknown command %q", cmd.Topic)
	}

	r.emitStats()
	return err
}

func (r *Registry) commandsLoop() {
	for {
		select {
		case cmd := <-r.Commands:
			if cmd == nil {
				continue
			}
			if err := r.Handle(cmd); err != nil {
				r.logger.Error("command failed", "topic", cmd.Topic, "engine", cmd.Engine, "err", err)
			}
		case <-r.done:
			return
		}
	}
}
