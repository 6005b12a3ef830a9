package eventsource

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/moonwalker/verdict/pkg/rules"
	"github.com/moonwalker/verdict/pkg/streams"
)

const publishTimeout = 5 * time.Second

type natsCommandSource struct {
	stream *streams.Stream
	cmdSub *nats.Subscription
	done   chan struct{}
}

// NewNatsCommandSource listens for commands on the "rules.*" subjects. The
// message payload names the engine, an empty payload means every engine.
func NewNatsCommandSource(stream *streams.Stream) CommandSource {
	return &natsCommandSource{stream: stream, done: make(chan struct{})}
}

func (s *natsCommandSource) Receive(commands chan<- *rules.Command) error {
	nc, err := s.stream.Conn()
	if err != nil {
		return err
	}

	// subscription for commands
	s.cmdSub, err = nc.Subscribe(rules.CommandPrefix+"*", func(msg *nats.Msg) {
		if !rules.IsCommandTopic(msg.Subject) {
			return
		}
		cmd := rules.NewCommand(msg.Subject, string(msg.Data))
		slog.Debug("command received", "topic", cmd.Topic, "engine", cmd.Engine)
		select {
		case commands <- cmd:
		case <-s.done:
		}
	})
	return err
}

func (s *natsCommandSource) TriggerReload(engine string) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	return s.stream.Publish(ctx, rules.CmdReload, []byte(engine))
}

func (s *natsCommandSource) Close() {
	select {
	case <-s.done:
		return
	default:
		close(s.done)
	}
	if s.cmdSub != nil {
		s.cmdSub.Unsubscribe()
	}
}
