package resolve

import (
	"github.com/moonwalker/verdict/pkg/rules"
)

const NoDiscountReason = "No discount applied"

// Discount is one matched discount together with its amount for an order.
type Discount struct {
	Type       string  `json:"type"`
	Percentage float64 `json:"percentage"`
	Amount     float64 `json:"amount"`
	Priority   float64 `json:"priority"`
	Reason     string  `json:"reason"`
}

type DiscountResult struct {
	OriginalAmount float64     `json:"originalAmount"`
	Amount         float64     `json:"discountAmount"`
	Percentage     float64     `json:"discountPercentage"`
	FinalAmount    float64     `json:"finalAmount"`
	Reason         string      `json:"appliedRule"`
	Type           string      `json:"type,omitempty"`
	Available      []*Discount `json:"availableDiscounts"`
}

// DiscountAmount is the magnitude of a discount event for an order amount.
func DiscountAmount(orderAmount float64) Magnitude {
	return func(e rules.Event) float64 {
		return orderAmount * e.Params.Percentage / 100
	}
}

// ResolveDiscount picks the discount to apply among the matched events.
// Without matches the result carries a zero discount and NoDiscountReason.
func ResolveDiscount(events []rules.Event, orderAmount float64) *DiscountResult {
	magnitude := DiscountAmount(orderAmount)

	res := &DiscountResult{
		OriginalAmount: orderAmount,
		FinalAmount:    orderAmount,
		Reason:         NoDiscountReason,
		Available:      make([]*Discount, 0, len(events)),
	}

	for _, e := range events {
		res.Available = append(res.Available, &Discount{
			Type:       e.Type,
			Percentage: e.Params.Percentage,
			Amount:     magnitude(e),
			Priority:   e.Params.Priority,
			Reason:     e.Params.Reason,
		})
	}

	i, ok := Winner(events, magnitude)
	if !ok {
		return res
	}

	best := res.Available[i]
	res.Amount = best.Amount
	res.Percentage = best.Percentage
	res.FinalAmount = orderAmount - best.Amount
	res.Reason = best.Reason
	res.Type = best.Type
	return res
}
