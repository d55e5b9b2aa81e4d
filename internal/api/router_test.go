package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"hookrelay/internal/api/handlers"
	"hookrelay/internal/api/middleware"
	"hookrelay/internal/engine/analytics"
	"hookrelay/internal/engine/events"
	"hookrelay/internal/engine/forwarding"
	"hookrelay/internal/engine/ingest"
	"hookrelay/internal/engine/notify"
	"hookrelay/internal/engine/webhooks"
	"hookrelay/internal/platform/audit"
	"hookrelay/internal/platform/auth"
	"hookrelay/internal/platform/config"
	"hookrelay/internal/platform/database"
	"hookrelay/internal/platform/repositories"
	"hookrelay/internal/workers"
)

type testServer struct {
	srv      *httptest.Server
	tokens   *auth.TokenService
	auditLog *audit.Logger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	if err := database.Migrate(db, "up"); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	webhookRepo := repositories.NewWebhookRepository(db)
	eventRepo := repositories.NewEventRepository(db)
	tunnelRepo := repositories.NewTunnelRepository(db)

	pool := workers.NewPool(2, 16)
	notifier := notify.NewDispatcher(pool, time.Second)
	dispatcher := forwarding.NewDispatcher(config.ForwardingConfig{DefaultTimeout: time.Second, MaxResponseBody: 1024}, tunnelRepo, eventRepo, webhookRepo, notifier)
	forwarder := forwarding.NewForwarder(dispatcher, eventRepo)

	webhookSvc := webhooks.NewService(webhookRepo, webhooks.NewCache(time.Minute))
	eventSvc := events.NewService(eventRepo, forwarder)
	statsSvc := analytics.NewService(analytics.NewRepository(db), eventRepo)
	auditLog := audit.NewLogger(db)

	pipeline := ingest.NewPipeline(config.IngestConfig{MountPrefix: "/webhook", MaxBodyBytes: 1 << 20}, ingest.Deps{
		Webhooks:  webhookSvc,
		Events:    eventRepo,
		Counters:  webhookRepo,
		Forwarder: forwarder,
		Notifier:  notifier,
		Pool:      pool,
	})

	tokens := auth.NewTokenService(config.JWTConfig{Secret: "test-secret", Issuer: "hookrelay", AccessTokenTTL: time.Hour})
	router := NewRouter(&Dependencies{
		MountPrefix:      "/webhook",
		IngestHandler:    handlers.NewIngestHandler(pipeline),
		WebhookHandler:   handlers.NewWebhookHandler(webhookSvc, auditLog, "/webhook"),
		EventHandler:     handlers.NewEventHandler(webhookSvc, eventSvc, auditLog),
		AnalyticsHandler: handlers.NewAnalyticsHandler(webhookSvc, statsSvc),
		AuditHandler:     handlers.NewAuditHandler(auditLog),
		HealthHandler:    handlers.NewHealthHandler(db),
		MetricsHandler:   handlers.NewMetricsHandler(pool),
		AuthMiddleware:   middleware.NewAuthMiddleware(tokens),
	})

	srv := httptest.NewServer(middleware.Recover(middleware.RequestLogger(router)))
	t.Cleanup(func() {
		srv.Close()
		pool.Stop(context.Background())
		auditLog.Flush()
		db.Close()
	})
	return &testServer{srv: srv, tokens: tokens, auditLog: auditLog}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := s.tokens.GenerateAccessToken(userID, "member", userID+"@example.com")
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token, body string) (int, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, s.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	out := map[string]interface{}{}
	if len(bytes.TrimSpace(raw)) > 0 {
		json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestEndToEnd_IngestForwardReplay(t *testing.T) {
	var mu sync.Mutex
	var forwarded []string
	var notified []string

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		forwarded = append(forwarded, r.Method+" "+r.URL.Path+" "+string(b))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	alerts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg struct {
			Event string `json:"event"`
		}
		json.NewDecoder(r.Body).Decode(&msg)
		mu.Lock()
		notified = append(notified, msg.Event)
		mu.Unlock()
	}))
	defer alerts.Close()

	s := newTestServer(t)
	owner := s.token(t, "user_1")

	create := `{
		"name": "orders",
		"forwarding": {"enabled": true, "target_type": "url", "url": "` + target.URL + `/in"},
		"transformation": {"enabled": true, "remove_fields": ["secret"]},
		"notifications": {"webhook": {"enabled": true, "url": "` + alerts.URL + `", "events": ["received", "forwarded"]}}
	}`
	status, body := s.do(t, http.MethodPost, "/api/v1/webhooks", owner, create)
	if status != http.StatusCreated {
		t.Fatalf("create status = %d body = %v", status, body)
	}
	hookID, _ := body["webhook_id"].(string)
	if hookID == "" || body["ingest_path"] != "/webhook/"+hookID {
		t.Fatalf("create body = %v", body)
	}

	status, body = s.do(t, http.MethodPost, "/webhook/"+hookID+"/orders", "", `{"id":7,"secret":"x"}`)
	if status != http.StatusOK || body["success"] != true {
		t.Fatalf("ingest status = %d body = %v", status, body)
	}
	requestID, _ := body["requestId"].(string)
	if requestID == "" {
		t.Fatal("ingest response is missing requestId")
	}

	waitFor(t, "forwarding", func() bool {
		_, ev := s.do(t, http.MethodGet, "/api/v1/webhooks/"+hookID+"/events/"+requestID, owner, "")
		return ev["status"] == "forwarded"
	})

	mu.Lock()
	if len(forwarded) != 1 || forwarded[0] != `POST /in {"id":7}` {
		t.Errorf("forwarded = %v", forwarded)
	}
	mu.Unlock()

	waitFor(t, "notifications", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(notified) == 2
	})

	status, body = s.do(t, http.MethodPost, "/api/v1/webhooks/"+hookID+"/events/"+requestID+"/replay", owner, "")
	if status != http.StatusOK || body["original_request_id"] != requestID || body["replay_count"] != float64(1) {
		t.Fatalf("replay status = %d body = %v", status, body)
	}

	status, body = s.do(t, http.MethodGet, "/api/v1/webhooks/"+hookID+"/events?limit=10", owner, "")
	if status != http.StatusOK || body["total"] != float64(2) {
		t.Errorf("events status = %d body = %v", status, body)
	}

	status, body = s.do(t, http.MethodGet, "/api/v1/webhooks/"+hookID+"/stats", owner, "")
	if status != http.StatusOK || body["total_requests"] != float64(1) || body["successful_forwards"] != float64(2) {
		t.Errorf("stats status = %d body = %v", status, body)
	}

	s.auditLog.Flush()
	status, body = s.do(t, http.MethodGet, "/api/v1/audit", owner, "")
	logs, _ := body["logs"].([]interface{})
	if status != http.StatusOK || len(logs) != 2 {
		t.Errorf("audit status = %d logs = %v", status, logs)
	}
}

func TestManagementAPI_Errors(t *testing.T) {
	s := newTestServer(t)
	owner := s.token(t, "user_1")
	other := s.token(t, "user_2")

	if status, _ := s.do(t, http.MethodGet, "/api/v1/webhooks", "", ""); status != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", status)
	}

	status, body := s.do(t, http.MethodPost, "/api/v1/webhooks", owner, `{"name":"x","forwarding":{"enabled":true,"target_type":"url","url":"ftp://nope"}}`)
	if status != http.StatusBadRequest || body["code"] != "INVALID_INPUT" {
		t.Errorf("invalid create status = %d body = %v", status, body)
	}

	status, body = s.do(t, http.MethodPost, "/api/v1/webhooks", owner, `{"name":"mine"}`)
	if status != http.StatusCreated {
		t.Fatalf("create status = %d body = %v", status, body)
	}
	hookID := body["webhook_id"].(string)

	if status, _ := s.do(t, http.MethodGet, "/api/v1/webhooks/"+hookID, other, ""); status != http.StatusNotFound {
		t.Errorf("foreign get status = %d, want 404", status)
	}
	if status, _ := s.do(t, http.MethodPatch, "/api/v1/webhooks/"+hookID, owner, `{"status":"paused"}`); status != http.StatusOK {
		t.Errorf("pause status = %d, want 200", status)
	}
	if status, _ := s.do(t, http.MethodPost, "/webhook/"+hookID, "", `{}`); status != http.StatusNotFound {
		t.Errorf("ingest on paused webhook status = %d, want 404", status)
	}
	if status, _ := s.do(t, http.MethodPost, "/webhook/garbage", "", `{}`); status != http.StatusBadRequest {
		t.Errorf("ingest malformed id status = %d, want 400", status)
	}
	if status, _ := s.do(t, http.MethodDelete, "/api/v1/webhooks/"+hookID, owner, ""); status != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", status)
	}
	if status, _ := s.do(t, http.MethodGet, "/api/v1/webhooks/"+hookID, owner, ""); status != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", status)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodGet, "/health", "", "")
	if status != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("health status = %d body = %v", status, body)
	}

	resp, err := http.Get(s.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), "hookrelay_worker_pool_size 2") {
		t.Errorf("metrics output missing pool size:\n%s", raw)
	}
}
