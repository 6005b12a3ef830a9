package rules

import "time"

const (
	CommandPrefix = "rules."
	Status        = CommandPrefix + "status"
	CmdReload     = CommandPrefix + "reload"
	CmdStop       = CommandPrefix + "stop"
	CmdResume     = CommandPrefix + "resume"
)

var (
	// set of topics a registry reacts to
	CommandTopics = map[string]struct{}{
		CmdReload: {},
		CmdStop:   {},
		CmdResume: {},
	}
)

// Command asks a registry to reload, stop or resume rule processing.
// An empty Engine on a reload means every engine.
type Command struct {
	Received time.Time `json:"received"`
	Topic    string    `json:"topic"`
	Engine   string    `json:"engine,omitempty"`
}

func NewCommand(topic, engine string) *Command {
	return &Command{
		Received: time.Now().UTC(),
		Topic:    topic,
		Engine:   engine,
	}
}

func IsCommandTopic(topic string) bool {
	_, ok := CommandTopics[topic]
	return ok
}
