package action

import (
	"context"
	"log/slog"
	"time"
)

type Notification struct {
	Type       string                 `json:"type"`
	Channels   []string               `json:"channels"`
	Recipients []string               `json:"recipients"`
	Template   string                 `json:"template,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Urgency    string                 `json:"urgency,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

type AuditRecord struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	TransactionID string                 `json:"transactionId,omitempty"`
	UserID        string                 `json:"userId,omitempty"`
	Reason        string                 `json:"reason,omitempty"`
	Amount        float64                `json:"amount,omitempty"`
	Data          map[string]interface{} `json:"data,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}

type Workflow struct {
	Type          string                 `json:"type"`
	Steps         []string               `json:"steps"`
	Timeout       time.Duration          `json:"timeout,omitempty"`
	RetryAttempts int                    `json:"retryAttempts,omitempty"`
	RunAt         *time.Time             `json:"runAt,omitempty"`
	Data          map[string]interface{} `json:"data,omitempty"`
}

type ComplianceAlert struct {
	Reason          string    `json:"reason"`
	TransactionID   string    `json:"transactionId,omitempty"`
	UserID          string    `json:"userId,omitempty"`
	EscalationLevel string    `json:"escalationLevel,omitempty"`
	ToManager       bool      `json:"toManager,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// NotificationPort delivers messages over named channels to named recipients.
type NotificationPort interface {
	Notify(ctx context.Context, n *Notification) error
}

// AuditPort appends audit records.
type AuditPort interface {
	Audit(ctx context.Context, rec *AuditRecord) error
}

// LoyaltyPort adjusts point balances and returns the new balance.
type LoyaltyPort interface {
	AddPoints(ctx context.Context, userID string, points float64, reason string) (float64, error)
}

// WorkflowPort starts multi-step workflows and returns their id.
type WorkflowPort interface {
	StartWorkflow(ctx context.Context, wf *Workflow) (string, error)
}

// CompliancePort raises alerts to compliance and risk managers.
type CompliancePort interface {
	Alert(ctx context.Context, alert *ComplianceAlert) error
}

type Ports struct {
	Notifications NotificationPort
	Audit         AuditPort
	Loyalty       LoyaltyPort
	Workflows     WorkflowPort
	Compliance    CompliancePort
}

// withDefaults fills unset ports with ones that only log.
func (p Ports) withDefaults(logger *slog.Logger) Ports {
	nop := &logPort{logger: logger}
	if p.Notifications == nil {
		p.Notifications = nop
	}
	if p.Audit == nil {
		p.Audit = nop
	}
	if p.Loyalty == nil {
		p.Loyalty = nop
	}
	if p.Workflows == nil {
		p.Workflows = nop
	}
	if p.Compliance == nil {
		p.Compliance = nop
	}
	return p
}

type logPort struct {
	logger *slog.Logger
}

func (l *logPort) Notify(ctx context.Context, n *Notification) error {
	l.logger.Info("notification", "type", n.Type, "channels", n.Channels, "recipients", n.Recipients)
	return nil
}

func (l *logPort) Audit(ctx context.Context, rec *AuditRecord) error {
	l.logger.Info("audit record", "id", rec.ID, "type", rec.Type, "transaction", rec.TransactionID)
	return nil
}

func (l *logPort) AddPoints(ctx context.Context, userID string, points float64, reason string) (float64, error) {
	l.logger.Info("loyalty points", "user", userID, "points", points, "reason", reason)
	return points, nil
}

func (l *logPort) StartWorkflow(ctx context.Context, wf *Workflow) (string, error) {
	l.logger.Info("workflow", "type", wf.Type, "steps", len(wf.Steps))
	return "", nil
}

func (l *logPort) Alert(ctx context.Context, alert *ComplianceAlert) error {
	l.logger.Info("compliance alert", "reason", alert.Reason, "transaction", alert.TransactionID, "manager", alert.ToManager)
	return nil
}
