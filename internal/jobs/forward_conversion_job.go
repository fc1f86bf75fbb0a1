package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/promoledger/backend/internal/metrics"
	"github.com/promoledger/backend/internal/models"
	"github.com/promoledger/backend/internal/queue"
	"github.com/promoledger/backend/internal/services/forwarding"
	"github.com/promoledger/backend/internal/utils"
	"gorm.io/gorm"
)

// SignatureHeader carries the HMAC of the postback body under the brand secret
const SignatureHeader = "X-Signature"

// ForwardConversionJob posts forwarded conversion events to the brand's postback URL
type ForwardConversionJob struct {
	db      *gorm.DB
	client  *http.Client
	timeout time.Duration
}

// NewForwardConversionJob creates a new forward conversion job handler
func NewForwardConversionJob(db *gorm.DB, timeout time.Duration) *ForwardConversionJob {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ForwardConversionJob{
		db:      db,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Handle processes a forward_conversion job. Client errors and missing brands
// are permanent; everything else is retried by the queue.
func (j *ForwardConversionJob) Handle(ctx context.Context, job *queue.Job) error {
	var event forwarding.ConversionEvent
	if err := job.Decode(&event); err != nil {
		return queue.Permanent(fmt.Errorf("failed to decode conversion event: %w", err))
	}

	var brand models.Brand
	if err := j.db.WithContext(ctx).First(&brand, "id = ?", event.BrandID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return queue.Permanent(fmt.Errorf("brand %s not found", event.BrandID))
		}
		return fmt.Errorf("failed to get brand: %w", err)
	}

	if brand.PostbackURL == "" {
		log.Printf("Brand %s has no postback url, skipping conversion %s", brand.ID, event.ConversionID)
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return queue.Permanent(fmt.Errorf("failed to marshal conversion event: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, brand.PostbackURL, bytes.NewReader(body))
	if err != nil {
		return queue.Permanent(fmt.Errorf("invalid postback url: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if brand.WebhookSecret != "" {
		req.Header.Set(SignatureHeader, utils.SignHMAC(body, brand.WebhookSecret))
	}

	start := time.Now()
	resp, err := j.client.Do(req)
	metrics.PostbackLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("postback to %s failed: %w", brand.PostbackURL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		log.Printf("Forwarded %s for conversion %s", event.Event, event.ConversionID)
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return queue.Permanent(fmt.Errorf("postback rejected with status %d", resp.StatusCode))
	default:
		return fmt.Errorf("postback returned status %d", resp.StatusCode)
	}
}
