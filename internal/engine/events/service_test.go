package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"hookrelay/internal/engine/forwarding"
	"hookrelay/internal/platform/config"
	"hookrelay/internal/platform/database"
	"hookrelay/internal/platform/models"
	"hookrelay/internal/platform/repositories"
)

type fixture struct {
	svc      *Service
	events   *repositories.EventRepository
	webhooks *repositories.WebhookRepository
	webhook  *models.Webhook
	source   *models.WebhookEvent
}

func setup(t *testing.T, target string) *fixture {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	if err := database.Migrate(db, "up"); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	webhookRepo := repositories.NewWebhookRepository(db)
	eventRepo := repositories.NewEventRepository(db)

	w := &models.Webhook{
		WebhookID: "hook_01h455vb4pex5vsknk084sn02q",
		UserID:    "user_1",
		Name:      "orders",
		Forwarding: models.ForwardingConfig{
			Enabled:    target != "",
			TargetType: models.TargetURL,
			URL:        target,
		},
		// A skip-everything rule proves replays bypass rule evaluation.
		Rules: []models.Rule{{Name: "drop all", Action: models.ActionSkip}},
	}
	if target == "" {
		w.Forwarding.TargetType = models.TargetNone
	}
	if err := webhookRepo.Create(ctx, w); err != nil {
		t.Fatalf("create webhook: %v", err)
	}

	source := &models.WebhookEvent{
		WebhookID:   w.ID,
		Method:      "POST",
		URL:         "/webhook/" + w.WebhookID,
		Headers:     http.Header{"Content-Type": {"application/json"}, "X-Source": {"orig"}},
		Query:       url.Values{"a": {"1"}},
		Body:        map[string]interface{}{"order": "42"},
		RawBody:     []byte(`{"order":"42"}`),
		ContentType: "application/json",
	}
	if err := eventRepo.Create(ctx, source); err != nil {
		t.Fatalf("create event: %v", err)
	}

	cfg := config.ForwardingConfig{DefaultTimeout: 2 * time.Second, MaxResponseBody: 1024, UserAgent: "hookrelay-test"}
	dispatcher := forwarding.NewDispatcher(cfg, repositories.NewTunnelRepository(db), eventRepo, webhookRepo, nil)
	forwarder := forwarding.NewForwarder(dispatcher, eventRepo)

	return &fixture{
		svc:      NewService(eventRepo, forwarder),
		events:   eventRepo,
		webhooks: webhookRepo,
		webhook:  w,
		source:   source,
	}
}

func TestReplay(t *testing.T) {
	received := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		received <- string(b)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	f := setup(t, srv.URL)
	ctx := context.Background()

	replay, err := f.svc.Replay(ctx, f.webhook, f.source.ID)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}

	if !replay.IsReplay || replay.OriginalRequestID != f.source.ID || replay.ReplayCount != 1 {
		t.Errorf("replay linkage = (%v, %q, %d), want (true, %q, 1)", replay.IsReplay, replay.OriginalRequestID, replay.ReplayCount, f.source.ID)
	}
	if replay.ID == f.source.ID {
		t.Error("replay must be a new record")
	}

	select {
	case body := <-received:
		if body != `{"order":"42"}` {
			t.Errorf("forwarded body = %s", body)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("replay was not forwarded")
	}

	stored, err := f.events.GetByID(ctx, replay.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.Status != models.EventStatusReplayed {
		t.Errorf("Status = %q, want replayed", stored.Status)
	}
	if stored.Forwarding == nil || !stored.Forwarding.Success || stored.Forwarding.StatusCode != http.StatusAccepted {
		t.Errorf("Forwarding = %+v, want success with 202", stored.Forwarding)
	}

	original, _ := f.events.GetByID(ctx, f.source.ID)
	if original.Status != models.EventStatusReceived || original.Forwarding != nil || original.ReplayCount != 0 {
		t.Errorf("source event was modified: %+v", original)
	}

	again, err := f.svc.Replay(ctx, f.webhook, replay.ID)
	if err != nil {
		t.Fatalf("second Replay() error = %v", err)
	}
	<-received
	if again.ReplayCount != 2 || again.OriginalRequestID != replay.ID {
		t.Errorf("chained replay = (%d, %q), want (2, %q)", again.ReplayCount, again.OriginalRequestID, replay.ID)
	}
}

func TestResend_Overrides(t *testing.T) {
	type capture struct {
		method string
		header string
		body   string
	}
	received := make(chan capture, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		received <- capture{r.Method, r.Header.Get("X-Source"), string(b)}
	}))
	defer srv.Close()

	f := setup(t, srv.URL)
	resent, err := f.svc.Resend(context.Background(), f.webhook, f.source.ID, &Overrides{
		Method:  "put",
		Headers: map[string]string{"X-Source": "override"},
		Body:    json.RawMessage(`{"order":"43"}`),
	})
	if err != nil {
		t.Fatalf("Resend() error = %v", err)
	}
	if resent.Method != "PUT" {
		t.Errorf("Method = %q, want PUT", resent.Method)
	}

	select {
	case got := <-received:
		if got.method != "PUT" || got.header != "override" || got.body != `{"order":"43"}` {
			t.Errorf("forwarded = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("resend was not forwarded")
	}

	if _, err := f.svc.Resend(context.Background(), f.webhook, f.source.ID, &Overrides{Body: json.RawMessage(`{broken`)}); !errors.Is(err, ErrInvalidOverride) {
		t.Errorf("Resend() bad body error = %v, want ErrInvalidOverride", err)
	}
}

func TestReplay_ForwardingDisabled(t *testing.T) {
	f := setup(t, "")
	replay, err := f.svc.Replay(context.Background(), f.webhook, f.source.ID)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if replay.Forwarding == nil || replay.Forwarding.Attempted {
		t.Errorf("Forwarding = %+v, want an unattempted outcome", replay.Forwarding)
	}
}

func TestGetAndList(t *testing.T) {
	f := setup(t, "")
	ctx := context.Background()

	other := &models.Webhook{ID: "wh_other"}
	if _, err := f.svc.Get(ctx, other, f.source.ID); !errors.Is(err, repositories.ErrNotFound) {
		t.Errorf("Get() foreign webhook error = %v, want ErrNotFound", err)
	}

	if _, err := f.svc.Replay(ctx, f.webhook, f.source.ID); err != nil {
		t.Fatalf("Replay() error = %v", err)
	}

	page, err := f.svc.List(ctx, f.webhook, "", 0, -5)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Limit != DefaultLimit || page.Offset != 0 || page.Total != 2 || len(page.Events) != 2 {
		t.Errorf("List() = limit %d offset %d total %d len %d", page.Limit, page.Offset, page.Total, len(page.Events))
	}

	page, err = f.svc.List(ctx, f.webhook, models.EventStatusReplayed, 500, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Limit != MaxLimit || page.Total != 1 {
		t.Errorf("filtered List() = limit %d total %d, want %d 1", page.Limit, page.Total, MaxLimit)
	}
}
