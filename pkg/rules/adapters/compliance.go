package adapters

import (
	"context"
	"encoding/json"

	"github.com/moonwalker/verdict/pkg/rules/action"
	"github.com/moonwalker/verdict/pkg/streams"
)

const COMPLIANCE_SUBJECT = "compliance.alerts"

// NatsCompliance publishes compliance alerts on a NATS subject. Alerts for
// managers go to "<subject>.manager".
type NatsCompliance struct {
	stream  *streams.Stream
	subject string
}

func NewNatsCompliance(stream *streams.Stream, subject string) *NatsCompliance {
	if subject == "" {
		subject = COMPLIANCE_SUBJECT
	}
	return &NatsCompliance{stream: stream, subject: subject}
}

func (c *NatsCompliance) Alert(ctx context.Context, alert *action.ComplianceAlert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	subject := c.subject
	if alert.ToManager {
		subject += ".manager"
	}
	return c.stream.Publish(ctx, subject, data)
}
