package jobs

import (
	"time"

	"github.com/promoledger/backend/internal/queue"
	"gorm.io/gorm"
)

// RegisterAllJobHandlers registers all job handlers with the processor
func RegisterAllJobHandlers(p *queue.JobProcessor, db *gorm.DB, postbackTimeout time.Duration) {
	forward := NewForwardConversionJob(db, postbackTimeout)
	p.RegisterHandler(queue.QueueForwardConversion, forward.Handle)
}
