package resolve

import (
	"sort"

	"github.com/moonwalker/verdict/pkg/rules"
)

// Magnitude derives the tie-break value of an event, e.g. a discount amount.
type Magnitude func(e rules.Event) float64

// Winner picks the dominant event: highest priority first, then highest
// magnitude, then earliest in input order. ok is false for an empty list.
func Winner(events []rules.Event, magnitude Magnitude) (idx int, ok bool) {
	order := Rank(events, magnitude)
	if len(order) == 0 {
		return -1, false
	}
	return order[0], true
}

// Rank returns the indexes of events in resolution order.
func Rank(events []rules.Event, magnitude Magnitude) []int {
	mags := make([]float64, len(events))
	order := make([]int, len(events))
	for i, e := range events {
		order[i] = i
		if magnitude != nil {
			mags[i] = magnitude(e)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		ea, eb := events[order[a]], events[order[b]]
		if ea.Params.Priority != eb.Params.Priority {
			return ea.Params.Priority > eb.Params.Priority
		}
		return mags[order[a]] > mags[order[b]]
	})
	return order
}
