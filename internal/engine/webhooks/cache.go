package webhooks

import (
	"sync"
	"time"

	"hookrelay/internal/platform/models"
)

type cachedWebhook struct {
	webhook  *models.Webhook
	cachedAt time.Time
}

// Cache keeps recently resolved webhooks keyed by public id so the ingestion
// path skips the store on hot endpoints.
type Cache struct {
	store sync.Map // map[webhook_id]*cachedWebhook
	ttl   time.Duration
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl}
}

func (c *Cache) Get(publicID string) (*models.Webhook, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	val, ok := c.store.Load(publicID)
	if !ok {
		return nil, false
	}

	entry := val.(*cachedWebhook)
	if time.Since(entry.cachedAt) > c.ttl {
		c.store.Delete(publicID)
		return nil, false
	}
	return entry.webhook, true
}

func (c *Cache) Set(w *models.Webhook) {
	if c.ttl <= 0 {
		return
	}
	c.store.Store(w.WebhookID, &cachedWebhook{webhook: w, cachedAt: time.Now()})
}

func (c *Cache) Invalidate(publicID string) {
	c.store.Delete(publicID)
}
