package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/imroc/req/v3"

	"github.com/moonwalker/verdict/pkg/rules/action"
)

const webhookTimeout = 10 * time.Second

type webhookMessage struct {
	Kind         string                  `json:"kind"`
	Notification *action.Notification    `json:"notification,omitempty"`
	Alert        *action.ComplianceAlert `json:"alert,omitempty"`
	SentAt       time.Time               `json:"sentAt"`
}

// Webhook posts notifications and compliance alerts as JSON to one URL.
type Webhook struct {
	client *req.Client
	url    string
	token  string
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		client: req.C().SetTimeout(webhookTimeout).SetUserAgent("verdict-webhook/1.0"),
		url:    url,
	}
}

// SetBearerToken authenticates every request with token.
func (w *Webhook) SetBearerToken(token string) *Webhook {
	w.token = token
	return w
}

func (w *Webhook) Notify(ctx context.Context, n *action.Notification) error {
	return w.post(ctx, &webhookMessage{Kind: "notification", Notification: n, SentAt: time.Now().UTC()})
}

func (w *Webhook) Alert(ctx context.Context, alert *action.ComplianceAlert) error {
	return w.post(ctx, &webhookMessage{Kind: "compliance_alert", Alert: alert, SentAt: time.Now().UTC()})
}

func (w *Webhook) post(ctx context.Context, msg *webhookMessage) error {
	r := w.client.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetBody(msg)
	if w.token != "" {
		r.SetBearerAuthToken(w.token)
	}

	resp, err := r.Post(w.url)
	if err != nil {
		return err
	}
	if resp.IsErrorState() {
		return fmt.Errorf("webhook %s answered %s", msg.Kind, resp.Status)
	}
	return nil
}
