package adapters

import (
	"context"
	"fmt"
	"strconv"

	"github.com/moonwalker/verdict/pkg/store"
)

const LOYALTY_PREFIX = "loyalty:"

// Ledger keeps loyalty balances on a key/value store, one "loyalty:<user>"
// key per user.
type Ledger struct {
	store store.Store
}

func NewLedger(s store.Store) *Ledger {
	return &Ledger{store: s}
}

func (l *Ledger) AddPoints(ctx context.Context, userID string, points float64, reason string) (float64, error) {
	if userID == "" {
		return 0, fmt.Errorf("user id is required")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return l.store.IncrBy(LOYALTY_PREFIX+userID, points)
}

// Balance returns the current balance of userID, 0 when it has none.
func (l *Ledger) Balance(userID string) (float64, error) {
	b, err := l.store.Get(LOYALTY_PREFIX + userID)
	if err != nil || b == nil {
		return 0, err
	}
	return strconv.ParseFloat(string(b), 64)
}
