package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"hookrelay/internal/platform/config"
	"hookrelay/internal/platform/models"
)

type RetentionSource interface {
	ListWithRetention(ctx context.Context) ([]*models.Webhook, error)
}

type EventPruner interface {
	DeleteOlderThan(ctx context.Context, webhookID string, cutoff int64) (int64, error)
	TrimToNewest(ctx context.Context, webhookID string, keep int) (int64, error)
}

type Expirer interface {
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

// Housekeeper enforces per-webhook retention and flips expired webhooks.
type Housekeeper struct {
	webhooks RetentionSource
	events   EventPruner
	expirer  Expirer
	now      func() time.Time
}

func NewHousekeeper(webhooks RetentionSource, events EventPruner, expirer Expirer) *Housekeeper {
	return &Housekeeper{webhooks: webhooks, events: events, expirer: expirer, now: time.Now}
}

// SweepRetention deletes events older than keep_days and beyond max_requests
// for every webhook that sets either limit. It returns the number of deleted events.
func (h *Housekeeper) SweepRetention(ctx context.Context) (int64, error) {
	list, err := h.webhooks.ListWithRetention(ctx)
	if err != nil {
		return 0, err
	}

	var deleted int64
	for _, w := range list {
		if w.Retention.KeepDays > 0 {
			cutoff := h.now().AddDate(0, 0, -w.Retention.KeepDays).UnixMilli()
			n, err := h.events.DeleteOlderThan(ctx, w.ID, cutoff)
			if err != nil {
				log.Error().Err(err).Str("webhook_id", w.WebhookID).Msg("retention: age sweep failed")
				continue
			}
			deleted += n
		}
		if w.Retention.MaxRequests > 0 {
			n, err := h.events.TrimToNewest(ctx, w.ID, w.Retention.MaxRequests)
			if err != nil {
				log.Error().Err(err).Str("webhook_id", w.WebhookID).Msg("retention: count sweep failed")
				continue
			}
			deleted += n
		}
	}
	return deleted, nil
}

func (h *Housekeeper) ExpireWebhooks(ctx context.Context) (int, error) {
	return h.expirer.ExpireDue(ctx, h.now())
}

// Run executes both jobs on their intervals until ctx is cancelled.
func (h *Housekeeper) Run(ctx context.Context, cfg config.RetentionConfig) {
	sweepEvery := cfg.SweepInterval
	if sweepEvery <= 0 {
		sweepEvery = time.Hour
	}
	expireEvery := cfg.ExpiryInterval
	if expireEvery <= 0 {
		expireEvery = 5 * time.Minute
	}

	sweep := time.NewTicker(sweepEvery)
	defer sweep.Stop()
	expire := time.NewTicker(expireEvery)
	defer expire.Stop()

	log.Info().Dur("sweep_interval", sweepEvery).Dur("expiry_interval", expireEvery).Msg("housekeeping started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("housekeeping stopped")
			return
		case <-sweep.C:
			n, err := h.SweepRetention(ctx)
			if err != nil {
				log.Error().Err(err).Msg("retention sweep failed")
				continue
			}
			log.Info().Int64("deleted", n).Msg("retention sweep finished")
		case <-expire.C:
			n, err := h.ExpireWebhooks(ctx)
			if err != nil {
				log.Error().Err(err).Msg("expiry sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Int("expired", n).Msg("webhooks expired")
			}
		}
	}
}
