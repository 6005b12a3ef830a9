package action

import (
	"math"

	"github.com/moonwalker/verdict/pkg/rules"
)

// Step is one secondary action of a cascade plan. It runs when the primary
// action succeeded and its params set Flag to true.
type Step struct {
	Flag   string
	Action string

	// Params derives the step params from the primary params and result;
	// nil passes the primary params through.
	Params func(p Params, res Payload, actx *rules.Context) Params
}

func (s Step) params(p Params, res Payload, actx *rules.Context) Params {
	if s.Params == nil {
		return p
	}
	return s.Params(p, res, actx)
}

func passThrough(flags ...string) []Step {
	steps := make([]Step, len(flags))
	for i, f := range flags {
		steps[i] = Step{Flag: f, Action: f}
	}
	return steps
}

// DefaultCascades returns the built-in plans, keyed by primary action. The
// order of each plan is the order its steps run in.
func DefaultCascades() map[string][]Step {
	discount := []Step{
		{
			Flag:   SendNotification,
			Action: NotifyDiscount,
			Params: func(p Params, res Payload, actx *rules.Context) Params {
				return Params{
					"percentage":     res["percentage"],
					"discountAmount": res["discountAmount"],
				}
			},
		},
		{
			Flag:   UpdateLoyaltyPoints,
			Action: UpdateLoyaltyPoints,
			Params: func(p Params, res Payload, actx *rules.Context) Params {
				multiplier := p.Float("pointsMultiplier")
				if multiplier == 0 {
					multiplier = 1
				}
				return Params{
					"points": LoyaltyPoints(Params(res).Float("discountAmount"), multiplier),
					"reason": "Discount applied",
				}
			},
		},
	}
	discount = append(discount, passThrough(
		AddToWishlist,
		SendWelcomeEmail,
		CreateUserProfile,
		AddToNewsletter,
		SendSMS,
		AssignPersonalManager,
		CreateVIPReport,
		ScheduleFollowUp,
		AddToPriorityQueue,
	)...)

	block := []Step{
		{
			Flag:   NotifyCompliance,
			Action: NotifyCompliance,
			Params: blockParams,
		},
		{
			Flag:   CreateAuditLog,
			Action: CreateAuditLog,
			Params: func(p Params, res Payload, actx *rules.Context) Params {
				return Params{
					"type":          "transaction_blocked",
					"transactionId": actx.String("transaction.id"),
					"userId":        actx.String("user.id"),
					"reason":        res["reason"],
					"amount":        actx.Float("transaction.amount"),
				}
			},
		},
		{
			Flag:   SendAlertToManager,
			Action: SendAlertToManager,
			Params: blockParams,
		},
	}

	workflow := []Step{
		{
			Flag:   "createAuditTrail",
			Action: CreateAuditLog,
			Params: func(p Params, res Payload, actx *rules.Context) Params {
				return Params{
					"type":   "workflow_started",
					"reason": p.String("reason"),
					"data": map[string]interface{}{
						"workflowId":   res["workflowId"],
						"workflowType": res["workflowType"],
					},
				}
			},
		},
		{
			Flag:   "notifyCustomer",
			Action: SendNotification,
			Params: workflowNotice("customer"),
		},
		{
			Flag:   "notifyUser",
			Action: SendNotification,
			Params: workflowNotice("user"),
		},
	}

	return map[string][]Step{
		ApplyDiscount:    discount,
		BlockTransaction: block,
		StartWorkflow:    workflow,
		SendNotification: passThrough(ScheduleFollowUp),
	}
}

// LoyaltyPoints awards one point per 1000 of discount, times multiplier.
func LoyaltyPoints(discount, multiplier float64) float64 {
	return math.Floor(discount/1000) * multiplier
}

func blockParams(p Params, res Payload, actx *rules.Context) Params {
	return Params{
		"reason":          res["reason"],
		"escalationLevel": p.String("escalationLevel"),
	}
}

func workflowNotice(recipient string) func(Params, Payload, *rules.Context) Params {
	return func(p Params, res Payload, actx *rules.Context) Params {
		channels := []interface{}{"email"}
		if p.Bool("sendInstructions") {
			channels = append(channels, "sms")
		}
		return Params{
			"notificationType": "workflow_started",
			"channels":         channels,
			"recipients":       []interface{}{recipient},
			"template":         "workflow_started",
			"data": map[string]interface{}{
				"workflowId":   res["workflowId"],
				"workflowType": res["workflowType"],
			},
		}
	}
}
