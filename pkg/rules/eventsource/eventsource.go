package eventsource

import (
	"github.com/moonwalker/verdict/pkg/rules"
)

// CommandSource delivers reload, stop and resume commands to a registry.
type CommandSource interface {
	Receive(commands chan<- *rules.Command) error
	// TriggerReload asks every listening registry to reload engine, or all
	// engines when engine is empty.
	TriggerReload(engine string) error
	Close()
}
