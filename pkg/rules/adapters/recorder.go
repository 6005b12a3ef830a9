package adapters

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/moonwalker/verdict/pkg/rules/action"
)

// Recorder keeps everything the dispatcher sends to its ports in memory.
// It implements all five ports and is safe for concurrent use.
type Recorder struct {
	mu            sync.Mutex
	Notifications []*action.Notification
	Audits        []*action.AuditRecord
	Workflows     []*action.Workflow
	Alerts        []*action.ComplianceAlert
	balances      map[string]float64
}

func NewRecorder() *Recorder {
	return &Recorder{balances: make(map[string]float64)}
}

// Ports returns a port set served entirely by the recorder.
func (r *Recorder) Ports() action.Ports {
	return action.Ports{
		Notifications: r,
		Audit:         r,
		Loyalty:       r,
		Workflows:     r,
		Compliance:    r,
	}
}

func (r *Recorder) Notify(ctx context.Context, n *action.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Notifications = append(r.Notifications, n)
	return nil
}

func (r *Recorder) Audit(ctx context.Context, rec *action.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Audits = append(r.Audits, rec)
	return nil
}

func (r *Recorder) AddPoints(ctx context.Context, userID string, points float64, reason string) (float64, error) {
	if userID == "" {
		return 0, fmt.Errorf("user id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[userID] += points
	return r.balances[userID], nil
}

func (r *Recorder) StartWorkflow(ctx context.Context, wf *action.Workflow) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Workflows = append(r.Workflows, wf)
	return "wf_" + uuid.NewString(), nil
}

func (r *Recorder) Alert(ctx context.Context, alert *action.ComplianceAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Alerts = append(r.Alerts, alert)
	return nil
}

func (r *Recorder) Balance(userID string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.balances[userID]
}

// Summary counts the recorded calls per port.
func (r *Recorder) Summary() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[string]int{
		"notifications": len(r.Notifications),
		"audits":        len(r.Audits),
		"workflows":     len(r.Workflows),
		"alerts":        len(r.Alerts),
		"loyalty":       len(r.balances),
	}
}
