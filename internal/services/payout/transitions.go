package payout

import "github.com/promoledger/backend/internal/models"

var payoutEdges = map[models.PayoutStatus][]models.PayoutStatus{
	models.PayoutStatusPending:    {models.PayoutStatusProcessing, models.PayoutStatusCancelled, models.PayoutStatusFailed},
	models.PayoutStatusProcessing: {models.PayoutStatusCompleted, models.PayoutStatusFailed},
	models.PayoutStatusFailed:     {models.PayoutStatusPending},
}

// CanTransition reports whether a payout may move from one status to another
func CanTransition(from, to models.PayoutStatus) bool {
	for _, s := range payoutEdges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func IsTerminal(status models.PayoutStatus) bool {
	return len(payoutEdges[status]) == 0
}
