package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const linkCachePrefix = "link:code:"

// ResolvedLink is the part of a tracking link the redirect and pixel paths need
type ResolvedLink struct {
	ID             uuid.UUID `json:"id"`
	Code           string    `json:"code"`
	InfluencerID   uuid.UUID `json:"influencer_id"`
	ProductID      uuid.UUID `json:"product_id"`
	BrandID        uuid.UUID `json:"brand_id"`
	DestinationURL string    `json:"destination_url"`
}

// LinkCache caches code lookups. Links are immutable once created so
// entries only need invalidating on delete.
type LinkCache interface {
	Get(ctx context.Context, code string) (*ResolvedLink, bool)
	Set(ctx context.Context, link *ResolvedLink)
	Delete(ctx context.Context, codes ...string)
}

// RedisLinkCache stores resolved links in Redis
type RedisLinkCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLinkCache creates a Redis backed link cache
func NewRedisLinkCache(client *redis.Client, ttl time.Duration) *RedisLinkCache {
	return &RedisLinkCache{client: client, ttl: ttl}
}

// Get returns the cached link. Redis errors count as a miss.
func (c *RedisLinkCache) Get(ctx context.Context, code string) (*ResolvedLink, bool) {
	data, err := c.client.Get(ctx, linkCachePrefix+code).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("link cache get %s: %v", code, err)
		}
		return nil, false
	}

	var link ResolvedLink
	if err := json.Unmarshal(data, &link); err != nil {
		log.Printf("link cache decode %s: %v", code, err)
		return nil, false
	}
	return &link, true
}

// Set stores a resolved link
func (c *RedisLinkCache) Set(ctx context.Context, link *ResolvedLink) {
	data, err := json.Marshal(link)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, linkCachePrefix+link.Code, data, c.ttl).Err(); err != nil {
		log.Printf("link cache set %s: %v", link.Code, err)
	}
}

// Delete drops cached codes
func (c *RedisLinkCache) Delete(ctx context.Context, codes ...string) {
	if len(codes) == 0 {
		return
	}
	keys := make([]string, len(codes))
	for i, code := range codes {
		keys[i] = linkCachePrefix + code
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		log.Printf("link cache delete: %v", err)
	}
}

type noopCache struct{}

func (noopCache) Get(context.Context, string) (*ResolvedLink, bool) { return nil, false }
func (noopCache) Set(context.Context, *ResolvedLink) {}
func (noopCache) Delete(context.Context, ...string) {}
