package ledger

import (
	"github.com/promoledger/backend/internal/models"
)

// conversionEdges lists every legal conversion status change.
// APPROVED->PAID and PAID->APPROVED are reserved for payout settlement and reversal.
var conversionEdges = map[models.ConversionStatus][]models.ConversionStatus{
	models.ConversionStatusPending:  {models.ConversionStatusApproved, models.ConversionStatusRejected},
	models.ConversionStatusApproved: {models.ConversionStatusPaid},
	models.ConversionStatusPaid:     {models.ConversionStatusApproved},
}

// CanTransition reports whether a conversion may move from one status to another
func CanTransition(from, to models.ConversionStatus) bool {
	for _, allowed := range conversionEdges[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
