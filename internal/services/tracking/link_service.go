// Package tracking issues tracking links and records clicks on them
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/promoledger/backend/internal/apperrors"
	"github.com/promoledger/backend/internal/database"
	"github.com/promoledger/backend/internal/models"
	"github.com/promoledger/backend/internal/services/campaign"
	"github.com/promoledger/backend/internal/utils"
	"gorm.io/gorm"
)

// maxCreateAttempts bounds retries on code collisions
const maxCreateAttempts = 5

// LinkService handles tracking link issuance and lookup
type LinkService struct {
	db      *gorm.DB
	cache   LinkCache
	baseURL string
	nowFn   func() time.Time
	newCode func() (string, error)
}

// NewLinkService creates a new link service. cache may be nil.
func NewLinkService(db *gorm.DB, cache LinkCache, baseURL string) *LinkService {
	if cache == nil {
		cache = noopCache{}
	}
	return &LinkService{
		db:      db,
		cache:   cache,
		baseURL: baseURL,
		nowFn:   func() time.Time { return time.Now().UTC() },
		newCode: utils.GenerateLinkCode,
	}
}

// SetClock replaces the time source
func (s *LinkService) SetClock(now func() time.Time) {
	s.nowFn = now
}

// GetOrCreate returns the influencer's link for a product, creating it on
// first use. created reports whether a new link was inserted.
func (s *LinkService) GetOrCreate(ctx context.Context, influencerID, productID uuid.UUID, campaignID *uuid.UUID) (link *models.TrackingLink, created bool, err error) {
	db := s.db.WithContext(ctx)

	var product models.Product
	if err := db.First(&product, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, fmt.Errorf("product %s: %w", productID, apperrors.ErrNotFound)
		}
		return nil, false, fmt.Errorf("error finding product: %w", err)
	}

	var influencer models.Influencer
	if err := db.First(&influencer, "id = ?", influencerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, fmt.Errorf("influencer %s: %w", influencerID, apperrors.ErrNotFound)
		}
		return nil, false, fmt.Errorf("error finding influencer: %w", err)
	}

	if campaignID != nil {
		if err := s.checkCampaign(ctx, *campaignID, product, influencerID); err != nil {
			return nil, false, err
		}
	}

	existing, err := s.findPair(db, influencerID, productID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		existing.Product = product
		return existing, false, nil
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, false, err
		}

		link := &models.TrackingLink{
			InfluencerID: influencerID,
			ProductID:    productID,
			CampaignID:   campaignID,
			Code:         code,
		}
		err = db.Create(link).Error
		if err == nil {
			log.Printf("tracking link %s issued for influencer %s product %s", link.ID, influencerID, productID)
			link.Product = product
			return link, true, nil
		}
		if !database.IsUniqueViolation(err) {
			return nil, false, fmt.Errorf("error creating tracking link: %w", err)
		}

		// Either another request created the pair first or the code collided
		existing, findErr := s.findPair(db, influencerID, productID)
		if findErr != nil {
			return nil, false, findErr
		}
		if existing != nil {
			existing.Product = product
			return existing, false, nil
		}
	}

	return nil, false, fmt.Errorf("error creating tracking link: no unique code after %d attempts", maxCreateAttempts)
}

func (s *LinkService) checkCampaign(ctx context.Context, campaignID uuid.UUID, product models.Product, influencerID uuid.UUID) error {
	var camp models.Campaign
	if err := s.db.WithContext(ctx).First(&camp, "id = ?", campaignID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("campaign %s: %w", campaignID, apperrors.ErrNotFound)
		}
		return fmt.Errorf("error finding campaign: %w", err)
	}

	if camp.BrandID != product.BrandID {
		return apperrors.Invalid("campaign %s does not belong to the product's brand", campaignID)
	}

	usage, err := campaign.ComputeUsage(ctx, s.db, camp.ID)
	if err != nil {
		return err
	}

	if verdict := campaign.IsEligible(camp, usage, influencerID, s.nowFn()); !verdict.Eligible {
		return apperrors.Ineligible(verdict.Reason)
	}
	return nil
}

func (s *LinkService) findPair(db *gorm.DB, influencerID, productID uuid.UUID) (*models.TrackingLink, error) {
	var link models.TrackingLink
	err := db.Where("influencer_id = ? AND product_id = ?", influencerID, productID).First(&link).Error
	if err == nil {
		return &link, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, fmt.Errorf("error finding tracking link: %w", err)
}

// ShareURL renders the public link. The trailing slug only decorates the URL.
func (s *LinkService) ShareURL(link models.TrackingLink, product models.Product) string {
	if name := slug.Make(product.Name); name != "" {
		return fmt.Sprintf("%s/r/%s/%s", s.baseURL, link.Code, name)
	}
	return fmt.Sprintf("%s/r/%s", s.baseURL, link.Code)
}

// Resolve looks a code up through the cache
func (s *LinkService) Resolve(ctx context.Context, code string) (*ResolvedLink, error) {
	if link, ok := s.cache.Get(ctx, code); ok {
		return link, nil
	}

	var link models.TrackingLink
	err := s.db.WithContext(ctx).Preload("Product").Where("code = ?", code).First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("link code %q: %w", code, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("error finding tracking link: %w", err)
	}

	resolved := &ResolvedLink{
		ID:             link.ID,
		Code:           link.Code,
		InfluencerID:   link.InfluencerID,
		ProductID:      link.ProductID,
		BrandID:        link.Product.BrandID,
		DestinationURL: link.Product.ProductURL,
	}
	s.cache.Set(ctx, resolved)
	return resolved, nil
}

// ListForInfluencer returns the influencer's links with their products loaded
func (s *LinkService) ListForInfluencer(ctx context.Context, influencerID uuid.UUID) ([]models.TrackingLink, error) {
	var links []models.TrackingLink
	if err := s.db.WithContext(ctx).Preload("Product").
		Where("influencer_id = ?", influencerID).
		Order("created_at DESC").
		Find(&links).Error; err != nil {
		return nil, fmt.Errorf("error finding tracking links: %w", err)
	}
	return links, nil
}

// DeleteForInfluencer removes an influencer's links and their clicks. Links
// with conversions are kept because conversions are never deleted.
func (s *LinkService) DeleteForInfluencer(ctx context.Context, influencerID uuid.UUID) (int64, error) {
	var links []models.TrackingLink
	var deleted int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("influencer_id = ?", influencerID).Find(&links).Error; err != nil {
			return fmt.Errorf("error finding tracking links: %w", err)
		}
		if len(links) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(links))
		for i, l := range links {
			ids[i] = l.ID
		}

		var referenced int64
		if err := tx.Model(&models.Conversion{}).Where("tracking_link_id IN ?", ids).Count(&referenced).Error; err != nil {
			return fmt.Errorf("error counting conversions: %w", err)
		}
		if referenced > 0 {
			return apperrors.ErrLinkInUse
		}

		if err := tx.Where("tracking_link_id IN ?", ids).Delete(&models.Click{}).Error; err != nil {
			return fmt.Errorf("error deleting clicks: %w", err)
		}
		res := tx.Where("id IN ?", ids).Delete(&models.TrackingLink{})
		if res.Error != nil {
			return fmt.Errorf("error deleting tracking links: %w", res.Error)
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}

	codes := make([]string, len(links))
	for i, l := range links {
		codes[i] = l.Code
	}
	s.cache.Delete(ctx, codes...)

	return deleted, nil
}
