package resolve

import (
	"github.com/moonwalker/verdict/pkg/rules"
)

const (
	ActionApprove = "approve"
	ActionMonitor = "monitor"
	ActionVerify  = "verify"
	ActionReview  = "review"
	ActionBlock   = "block"
)

const (
	RiskHigh    = "HIGH"
	RiskMedium  = "MEDIUM"
	RiskLow     = "LOW"
	RiskVeryLow = "VERY_LOW"
)

// severity of the recommended actions, unknown actions rank below approve
var actionRank = map[string]int{
	ActionApprove: 1,
	ActionMonitor: 2,
	ActionVerify:  3,
	ActionReview:  4,
	ActionBlock:   5,
}

type Trigger struct {
	Type              string  `json:"type"`
	Action            string  `json:"action,omitempty"`
	Reason            string  `json:"reason,omitempty"`
	RiskScore         float64 `json:"riskScore"`
	RequiredApprovals float64 `json:"requiredApprovals"`
}

type Assessment struct {
	IsBlocked         bool       `json:"isBlocked"`
	RequiresApproval  bool       `json:"requiresApproval"`
	RequiredApprovals float64    `json:"requiredApprovals"`
	RiskScore         float64    `json:"riskScore"`
	RiskLevel         string     `json:"riskLevel"`
	RecommendedAction string     `json:"recommendedAction"`
	Reasons           []string   `json:"reasons"`
	Triggers          []*Trigger `json:"allTriggers"`
}

// ResolveFraud aggregates matched fraud events: the most severe declared
// action wins, the risk score is the highest single score and the required
// approvals are the highest single requirement.
func ResolveFraud(events []rules.Event) *Assessment {
	a := &Assessment{
		RecommendedAction: ActionApprove,
		Reasons:           make([]string, 0, len(events)),
		Triggers:          make([]*Trigger, 0, len(events)),
	}

	for _, e := range events {
		p := e.Params
		if actionRank[p.Action] > actionRank[a.RecommendedAction] {
			a.RecommendedAction = p.Action
		}
		if p.RiskScore > a.RiskScore {
			a.RiskScore = p.RiskScore
		}
		if p.RequiredApprovals > a.RequiredApprovals {
			a.RequiredApprovals = p.RequiredApprovals
		}
		if p.Reason != "" {
			a.Reasons = append(a.Reasons, p.Reason)
		}
		a.Triggers = append(a.Triggers, &Trigger{
			Type:              e.Type,
			Action:            p.Action,
			Reason:            p.Reason,
			RiskScore:         p.RiskScore,
			RequiredApprovals: p.RequiredApprovals,
		})
	}

	a.IsBlocked = a.RecommendedAction == ActionBlock
	a.RequiresApproval = a.RequiredApprovals > 0
	a.RiskLevel = RiskLevel(a.RiskScore)
	return a
}

func RiskLevel(score float64) string {
	switch {
	case score >= 80:
		return RiskHigh
	case score >= 50:
		return RiskMedium
	case score >= 20:
		return RiskLow
	}
	return RiskVeryLow
}
