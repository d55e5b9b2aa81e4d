package analytics

import (
	"context"
	"testing"
	"time"

	"hookrelay/internal/platform/config"
	"hookrelay/internal/platform/database"
	"hookrelay/internal/platform/models"
	"hookrelay/internal/platform/repositories"
)

func TestSuccessRate(t *testing.T) {
	tests := []struct {
		ok, failed int64
		want       float64
	}{
		{0, 0, 0},
		{1, 0, 100},
		{1, 2, 33.33},
		{3, 1, 75},
	}
	for _, tt := range tests {
		if got := SuccessRate(tt.ok, tt.failed); got != tt.want {
			t.Errorf("SuccessRate(%d, %d) = %v, want %v", tt.ok, tt.failed, got, tt.want)
		}
	}
}

func TestGetWebhookStats(t *testing.T) {
	db, err := database.Open(config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(db, "up"); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	ctx := context.Background()
	webhooks := repositories.NewWebhookRepository(db)
	events := repositories.NewEventRepository(db)

	w := &models.Webhook{WebhookID: "hook_stats", UserID: "user_1", Name: "stats"}
	if err := webhooks.Create(ctx, w); err != nil {
		t.Fatalf("create webhook: %v", err)
	}

	base := time.Now().Add(-time.Hour).UnixMilli()
	for i := 0; i < 12; i++ {
		e := &models.WebhookEvent{WebhookID: w.ID, Method: "POST", URL: "/webhook/hook_stats", Path: "/", CreatedAt: base + int64(i)}
		if err := events.Create(ctx, e); err != nil {
			t.Fatalf("create event: %v", err)
		}
		webhooks.IncrementRequests(ctx, w.ID, time.Now().Unix())

		switch i % 3 {
		case 0:
			events.UpdateForwarding(ctx, e.ID, models.EventStatusForwarded, &models.ForwardingResult{Attempted: true, Success: true, StatusCode: 200, DurationMs: 12})
			webhooks.IncrementForwardOutcome(ctx, w.ID, true)
		case 1:
			events.UpdateForwarding(ctx, e.ID, models.EventStatusFailed, &models.ForwardingResult{Attempted: true, Error: "timeout"})
			webhooks.IncrementForwardOutcome(ctx, w.ID, false)
		}
	}

	fresh, err := webhooks.GetByID(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	svc := NewService(NewRepository(db), events)
	stats, err := svc.GetWebhookStats(ctx, fresh)
	if err != nil {
		t.Fatalf("GetWebhookStats() error = %v", err)
	}

	if stats.TotalRequests != 12 || stats.SuccessfulForwards != 4 || stats.FailedForwards != 4 {
		t.Errorf("counters = %d/%d/%d, want 12/4/4", stats.TotalRequests, stats.SuccessfulForwards, stats.FailedForwards)
	}
	if stats.SuccessRate != 50 {
		t.Errorf("SuccessRate = %v, want 50", stats.SuccessRate)
	}
	if stats.EventsByStatus[models.EventStatusReceived] != 4 || stats.EventsByStatus[models.EventStatusForwarded] != 4 {
		t.Errorf("EventsByStatus = %v", stats.EventsByStatus)
	}
	if len(stats.RecentEvents) != 10 {
		t.Fatalf("RecentEvents = %d, want 10", len(stats.RecentEvents))
	}
	if stats.RecentEvents[0].CreatedAt < stats.RecentEvents[9].CreatedAt {
		t.Error("RecentEvents should be newest first")
	}
	// i = 9 is the third newest and was forwarded.
	if got := stats.RecentEvents[2]; got.Status != models.EventStatusForwarded || got.StatusCode != 200 || got.DurationMs != 12 {
		t.Errorf("RecentEvents[2] = %+v", got)
	}
	if len(stats.Daily) == 0 {
		t.Fatal("Daily is empty")
	}
	var total int
	for _, d := range stats.Daily {
		total += d.Requests
	}
	if total != 12 {
		t.Errorf("daily requests = %d, want 12", total)
	}
}
