package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/moonwalker/verdict/pkg/parse"
	"github.com/moonwalker/verdict/pkg/rules"
)

const (
	ApplyDiscount         = "applyDiscount"
	BlockTransaction      = "blockTransaction"
	SendNotification      = "sendNotification"
	NotifyDiscount        = "notifyDiscount"
	UpdateLoyaltyPoints   = "updateLoyaltyPoints"
	StartWorkflow         = "startWorkflow"
	CreateAuditLog        = "createAuditLog"
	NotifyCompliance      = "notifyCompliance"
	SendAlertToManager    = "sendAlertToManager"
	SendWelcomeEmail      = "sendWelcomeEmail"
	CreateUserProfile     = "createUserProfile"
	AddToNewsletter       = "addToNewsletter"
	SendSMS               = "sendSMS"
	AssignPersonalManager = "assignPersonalManager"
	CreateVIPReport       = "createVIPReport"
	ScheduleFollowUp      = "scheduleFollowUp"
	AddToPriorityQueue    = "addToPriorityQueue"
	AddToWishlist         = "addToWishlist"
)

const defaultAuditType = "rule_action"

var (
	errNoOrderAmount = errors.New("order amount is required")
	errNoUser        = errors.New("user id is required")
	errNoTransaction = errors.New("transaction id is required")
)

const defaultFollowUp = "3D"

type builtins struct {
	ports  Ports
	logger *slog.Logger
}

func (b *builtins) handlers() map[string]Handler {
	return map[string]Handler{
		ApplyDiscount:         b.applyDiscount,
		BlockTransaction:      b.blockTransaction,
		SendNotification:      b.sendNotification,
		NotifyDiscount:        b.notifyDiscount,
		UpdateLoyaltyPoints:   b.updateLoyaltyPoints,
		StartWorkflow:         b.startWorkflow,
		CreateAuditLog:        b.createAuditLog,
		NotifyCompliance:      b.alert(false),
		SendAlertToManager:    b.alert(true),
		SendWelcomeEmail:      b.userMessage(SendWelcomeEmail, "welcome", "email"),
		SendSMS:               b.userMessage(SendSMS, "sms", "sms"),
		CreateUserProfile:     b.userRecord(CreateUserProfile, "profileId", "profile_"),
		AddToNewsletter:       b.userRecord(AddToNewsletter, "", ""),
		AssignPersonalManager: b.userRecord(AssignPersonalManager, "managerId", "manager_"),
		CreateVIPReport:       b.createVIPReport,
		ScheduleFollowUp:      b.userWorkflow(ScheduleFollowUp, "follow_up", "followUpId"),
		AddToPriorityQueue:    b.userWorkflow(AddToPriorityQueue, "priority_queue", "queueId"),
		AddToWishlist:         b.addToWishlist,
	}
}

func newID(prefix string) string {
	return prefix + uuid.NewString()
}

func userID(actx *rules.Context) (string, error) {
	id := actx.String("user.id")
	if id == "" {
		return "", errNoUser
	}
	return id, nil
}

func (b *builtins) applyDiscount(ctx context.Context, p Params, actx *rules.Context) (Payload, error) {
	order := actx.GetFact("order.amount")
	if !order.Exists() {
		return nil, errNoOrderAmount
	}
	amount := order.Float()
	percentage := p.Float("percentage")

	discountType := p.String("discountType")
	if discountType == "" {
		discountType = "percentage"
	}

	var discount float64
	switch discountType {
	case "percentage":
		discount = amount * percentage / 100
	case "fixed":
		discount = p.Float("amount")
	default:
		return nil, fmt.Errorf("unknown discount type %q", discountType)
	}
	if limit := p.Float("maxDiscountAmount"); limit > 0 && discount > limit {
		discount = limit
	}
	if discount > amount {
		discount = amount
	}

	actx.SetFact("discount.amount", discount)
	actx.SetFact("discount.percentage", percentage)

	return Payload{
		"discountType":   discountType,
		"discountAmount": discount,
		"percentage":     percentage,
		"finalAmount":    amount - discount,
	}, nil
}

func (b *builtins) blockTransaction(ctx context.Context, p Params, actx *rules.Context) (Payload, error) {
	reason := p.String("blockReason")
	if reason == "" {
		reason = p.String("reason")
	}
	actx.SetFact("transaction.blocked", true)
	return Payload{
		"blocked":             true,
		"reason":              reason,
		"transactionId":       actx.String("transaction.id"),
		"requireManualReview": p.Bool("requireManualReview"),
		"escalationLevel":     p.String("escalationLevel"),
	}, nil
}

func (b *builtins) sendNotification(ctx context.Context, p Params, actx *rules.Context) (Payload, error) {
	n := &Notification{
		Type:       p.String("notificationType"),
		Channels:   p.Strings("channels"),
		Recipients: p.Strings("recipients"),
		Template:   p.String("template"),
		Urgency:    p.String("urgency"),
		Data:       interpolate(p.Map("data"), actx),
	}
	if len(n.Channels) == 0 {
		return nil, errors.New("at least one channel is required")
	}
	if len(n.Recipients) == 0 {
		return nil, errors.New("at least one recipient is required")
	}
	if msg := p.String("message"); msg != "" {
		n.Message = actx.Interpolate(msg)
	}

	if err := b.ports.Notifications.Notify(ctx, n); err != nil {
		return nil, err
	}

	return Payload{
		"channels":   n.Channels,
		"recipients": n.Recipients,
		"template":   n.Template,
		"urgency":    n.Urgency,
		"data":       n.Data,
		"sentAt":     time.Now().UTC(),
	}, nil
}

func (b *builtins) notifyDiscount(ctx context.Context, p Params, actx *rules.Context) (Payload, error) {
	percentage := p.Float("percentage")
	amount := p.Float("discountAmount")
	n := &Notification{
		Type:       "discount_applied",
		Channels:   []string{"email"},
		Recipients: []string{actx.String("user.id")},
		Message:    fmt.Sprintf("%v%% off, saved %v", percentage, amount),
		Data:       map[string]interface{}{"percentage": percentage, "discountAmount": amount},
	}
	if err := b.ports.Notifications.Notify(ctx, n); err != nil {
		return nil, err
	}
	return Payload{
		"percentage":     percentage,
		"discountAmount": amount,
		"sentAt":         time.Now().UTC(),
	}, nil
}

func (b *builtins) updateLoyaltyPoints(ctx context.Context, p Params, actx *rules.Context) (Payload, error) {
	user, err := userID(actx)
	if err != nil {
		return nil, err
	}
	points := p.Float("points")
	reason := p.String("reason")

	balance, err := b.ports.Loyalty.AddPoints(ctx, user, points, reason)
	if err != nil {
		return Payload{"userId": user, "points": points}, err
	}
	actx.SetFact("loyalty.points", points)

	return Payload{
		"userId":    user,
		"points":    points,
		"reason":    reason,
		"balance":   balance,
		"updatedAt": time.Now().UTC(),
	}, nil
}

func (b *builtins) startWorkflow(ctx context.Context, p Params, actx *rules.Context) (Payload, error) {
	wf := &Workflow{
		Type:          p.String("workflowType"),
		Steps:         p.Strings("workflowSteps"),
		Timeout:       time.Duration(p.Float("timeout")) * time.Millisecond,
		RetryAttempts: int(p.Float("retryAttempts")),
		Data:          actx.Data.Map(),
	}
	if wf.Type == "" {
		return nil, errors.New("workflow type is required")
	}
	if len(wf.Steps) == 0 {
		return nil, errors.New("workflow needs at least one step")
	}
	if delay := p.String("delay"); delay != "" {
		runAt, ok := parse.ParseRunAt(delay)
		if !ok {
			return nil, fmt.Errorf("invalid workflow delay %q", delay)
		}
		wf.RunAt = &runAt
	}

	id, err := b.ports.Workflows.StartWorkflow(ctx, wf)
	if err != nil {
		return Payload{"workflowType": wf.Type}, err
	}
	if id == "" {
		id = newID("wf_")
	}
	actx.SetFact("workflow.id", id)
	actx.SetFact("workflow.type", wf.Type)

	return Payload{
		"workflowType": wf.Type,
		"workflowId":   id,
		"steps":        wf.Steps,
		"status":       "started",
		"startedAt":    time.Now().UTC(),
	}, nil
}

func (b *builtins) createAuditLog(ctx context.Context, p Params, actx *rules.Context) (Payload, error) {
	rec := &AuditRecord{
		ID:            newID("audit_"),
		Type:          p.String("type"),
		TransactionID: p.String("transactionId"),
		UserID:        p.String("userId"),
		Reason:        p.String("reason"),
		Amount:        p.Float("amount"),
		Data:          p.Map("data"),
		Timestamp:     time.Now().UTC(),
	}
	if rec.Type == "" {
		rec.Type = actx.EventType
	}
	if rec.Type == "" {
		rec.Type = defaultAuditType
	}
	if rec.TransactionID == "" {
		rec.TransactionID = actx.String("transaction.id")
	}
	if rec.UserID == "" {
		rec.UserID = actx.String("user.id")
	}

	if err := b.ports.Audit.Audit(ctx, rec); err != nil {
		return nil, err
	}

	return Payload{
		"logId":         rec.ID,
		"type":          rec.Type,
		"transactionId": rec.TransactionID,
		"userId":        rec.UserID,
		"reason":        rec.Reason,
		"amount":        rec.Amount,
	}, nil
}

func (b *builtins) alert(toManager bool) Handler {
	return func(ctx context.Context, p Params, actx *rules.Context) (Payload, error) {
		tx := actx.String("transaction.id")
		if tx == "" {
			return nil, errNoTransaction
		}
		a := &ComplianceAlert{
			Reason:          p.String("reason"),
			TransactionID:   tx,
			UserID:          actx.String("user.id"),
			EscalationLevel: p.String("escalationLevel"),
			ToManager:       toManager,
			Timestamp:       time.Now().UTC(),
		}
		if err := b.ports.Compliance.Alert(ctx, a); err != nil {
			return nil, err
		}
		return Payload{
			"reason":        a.Reason,
			"transactionId": a.TransactionID,
			"userId":        a.UserID,
			"notifiedAt":    a.Timestamp,
		}, nil
	}
}

func (b *builtins) userMessage(action, kind, channel string) Handler {
	return func(ctx context.Context, p Params, actx *rules.Context) (Payload, error) {
		user, err := userID(actx)
		if err != nil {
			return nil, err
		}
		n := &Notification{
			Type:       kind,
			Channels:   []string{channel},
			Recipients: []string{user},
			Template:   p.String("template"),
		}
		if err := b.ports.Notifications.Notify(ctx, n); err != nil {
			return nil, err
		}
		return Payload{"userId": user, "sentAt": time.Now().UTC()}, nil
	}
}

func (b *builtins) userRecord(action, idKey, prefix string) Handler {
	return func(ctx context.Context, p Params, actx *rules.Context) (Payload, error) {
		user, err := userID(actx)
		if err != nil {
			return nil, err
		}
		b.logger.Info("user action", "action", action, "user", user)
		res := Payload{"userId": user, "at": time.Now().UTC()}
		if idKey != "" {
			res[idKey] = newID(prefix)
		}
		return res, nil
	}
}

func (b *builtins) userWorkflow(action, kind, idKey string) Handler {
	return func(ctx context.Context, p Params, actx *rules.Context) (Payload, error) {
		user, err := userID(actx)
		if err != nil {
			return nil, err
		}
		wf := &Workflow{
			Type:  kind,
			Steps: []string{action},
			Data:  map[string]interface{}{"userId": user},
		}
		if kind == "follow_up" {
			in := p.String("followUpIn")
			if in == "" {
				in = defaultFollowUp
			}
			runAt, ok := parse.ParseRunAt(in)
			if !ok {
				return nil, fmt.Errorf("invalid follow-up delay %q", in)
			}
			wf.RunAt = &runAt
		}
		id, err := b.ports.Workflows.StartWorkflow(ctx, wf)
		if err != nil {
			return nil, err
		}
		if id == "" {
			id = newID(kind + "_")
		}
		res := Payload{"userId": user, idKey: id}
		if wf.RunAt != nil {
			res["scheduledAt"] = *wf.RunAt
		}
		return res, nil
	}
}

func (b *builtins) createVIPReport(ctx context.Context, p Params, actx *rules.Context) (Payload, error) {
	user, err := userID(actx)
	if err != nil {
		return nil, err
	}
	rec := &AuditRecord{
		ID:        newID("vip_report_"),
		Type:      "vip_report",
		UserID:    user,
		Amount:    actx.Float("order.amount"),
		Data:      map[string]interface{}{"orderId": actx.String("order.id")},
		Timestamp: time.Now().UTC(),
	}
	if err := b.ports.Audit.Audit(ctx, rec); err != nil {
		return nil, err
	}
	return Payload{
		"userId":   user,
		"orderId":  actx.String("order.id"),
		"reportId": rec.ID,
	}, nil
}

func (b *builtins) addToWishlist(ctx context.Context, p Params, actx *rules.Context) (Payload, error) {
	user, err := userID(actx)
	if err != nil {
		return nil, err
	}
	return Payload{
		"userId":   user,
		"itemId":   actx.String("order.id"),
		"category": p.String("category"),
		"addedAt":  time.Now().UTC(),
	}, nil
}

// interpolate resolves {{path}} placeholders in string values of a template
// data map.
func interpolate(data map[string]interface{}, actx *rules.Context) map[string]interface{} {
	if data == nil {
		return nil
	}
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok {
			out[k] = actx.Interpolate(s)
			continue
		}
		out[k] = v
	}
	return out
}
