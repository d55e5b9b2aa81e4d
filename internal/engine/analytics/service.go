package analytics

import (
	"context"
	"math"
	"time"

	"hookrelay/internal/platform/models"
)

const (
	recentEventLimit = 10
	dailyWindow      = 7 * 24 * time.Hour
)

type StatusCounter interface {
	CountByStatus(ctx context.Context, webhookID string) (map[string]int, error)
}

// WebhookStats is the dashboard view of a single webhook.
type WebhookStats struct {
	WebhookID          string         `json:"webhook_id"`
	TotalRequests      int64          `json:"total_requests"`
	SuccessfulForwards int64          `json:"successful_forwards"`
	FailedForwards     int64          `json:"failed_forwards"`
	SuccessRate        float64        `json:"success_rate"`
	LastRequestAt      *int64         `json:"last_request_at,omitempty"`
	EventsByStatus     map[string]int `json:"events_by_status"`
	RecentEvents       []EventSummary `json:"recent_events"`
	Daily              []DailyStat    `json:"daily"`
}

type Service struct {
	repo   *Repository
	events StatusCounter
	now    func() time.Time
}

func NewService(repo *Repository, events StatusCounter) *Service {
	return &Service{repo: repo, events: events, now: time.Now}
}

func (s *Service) GetWebhookStats(ctx context.Context, w *models.Webhook) (*WebhookStats, error) {
	counts, err := s.events.CountByStatus(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	recent, err := s.repo.RecentEvents(ctx, w.ID, recentEventLimit)
	if err != nil {
		return nil, err
	}
	daily, err := s.repo.DailyCounts(ctx, w.ID, s.now().Add(-dailyWindow))
	if err != nil {
		return nil, err
	}

	return &WebhookStats{
		WebhookID:          w.WebhookID,
		TotalRequests:      w.TotalRequests,
		SuccessfulForwards: w.SuccessfulForwards,
		FailedForwards:     w.FailedForwards,
		SuccessRate:        SuccessRate(w.SuccessfulForwards, w.FailedForwards),
		LastRequestAt:      w.LastRequestAt,
		EventsByStatus:     counts,
		RecentEvents:       recent,
		Daily:              daily,
	}, nil
}

// SuccessRate is the percentage of forward attempts that succeeded, rounded
// to two decimals. No attempts yields 0.
func SuccessRate(successful, failed int64) float64 {
	total := successful + failed
	if total == 0 {
		return 0
	}
	return math.Round(float64(successful)/float64(total)*10000) / 100
}
