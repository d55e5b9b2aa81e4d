package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"hookrelay/internal/engine/forwarding"
	"hookrelay/internal/engine/signature"
	"hookrelay/internal/platform/auth"
	"hookrelay/internal/platform/config"
	"hookrelay/internal/platform/models"
	"hookrelay/internal/platform/repositories"
	"hookrelay/internal/workers"
)

const hookID = "hook_01h455vb4pex5vsknk084sn02q"

type fakeResolver struct {
	webhook *models.Webhook
	expired []string
}

func (f *fakeResolver) Resolve(ctx context.Context, publicID string) (*models.Webhook, error) {
	if f.webhook == nil || f.webhook.WebhookID != publicID {
		return nil, repositories.ErrNotFound
	}
	return f.webhook, nil
}

func (f *fakeResolver) Expire(ctx context.Context, w *models.Webhook) error {
	f.expired = append(f.expired, w.WebhookID)
	return nil
}

type fakeStore struct {
	mu       sync.Mutex
	events   []*models.WebhookEvent
	requests int
}

func (s *fakeStore) Create(ctx context.Context, e *models.WebhookEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = "req_test"
	s.events = append(s.events, e)
	return nil
}

func (s *fakeStore) IncrementRequests(ctx context.Context, id string, at int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	return nil
}

type fakeForwarder struct {
	calls []*models.WebhookEvent
}

func (f *fakeForwarder) Forward(ctx context.Context, w *models.Webhook, e *models.WebhookEvent, opts forwarding.Options) *models.ForwardingResult {
	f.calls = append(f.calls, e)
	return nil
}

type fakeNotifier struct {
	kinds []string
}

func (n *fakeNotifier) Notify(w *models.Webhook, e *models.WebhookEvent, kind string) {
	n.kinds = append(n.kinds, kind)
}

// inlinePool runs tasks on the calling goroutine.
type inlinePool struct {
	full bool
}

func (p *inlinePool) Submit(task workers.Task) bool {
	if p.full {
		return false
	}
	task(context.Background())
	return true
}

type harness struct {
	pipeline  *Pipeline
	resolver  *fakeResolver
	store     *fakeStore
	forwarder *fakeForwarder
	notifier  *fakeNotifier
	pool      *inlinePool
}

func newHarness(w *models.Webhook) *harness {
	h := &harness{
		resolver:  &fakeResolver{webhook: w},
		store:     &fakeStore{},
		forwarder: &fakeForwarder{},
		notifier:  &fakeNotifier{},
		pool:      &inlinePool{},
	}
	h.pipeline = NewPipeline(config.IngestConfig{MountPrefix: "/webhook", MaxBodyBytes: 64}, Deps{
		Webhooks:  h.resolver,
		Events:    h.store,
		Counters:  h.store,
		Forwarder: h.forwarder,
		Notifier:  h.notifier,
		Pool:      h.pool,
	})
	return h
}

func activeWebhook() *models.Webhook {
	return &models.Webhook{
		ID:        "wh_1",
		WebhookID: hookID,
		Name:      "test",
		Status:    models.WebhookStatusActive,
	}
}

func newRequest(method, path, body string) *http.Request {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.RemoteAddr = "192.0.2.10:4444"
	return r
}

func TestAccept_StoresEventWithoutForwarding(t *testing.T) {
	h := newHarness(activeWebhook())

	r := newRequest(http.MethodPost, "/webhook/"+hookID+"/github/push?ref=main", `{"a":1}`)
	r.Header.Set("User-Agent", "GitHub-Hookshot")
	event, err := h.pipeline.Accept(context.Background(), hookID, r)
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	if event.ID != "req_test" || event.Status != models.EventStatusReceived {
		t.Errorf("event = (%q, %q), want (req_test, received)", event.ID, event.Status)
	}
	if event.Forwarding == nil || event.Forwarding.Attempted {
		t.Errorf("Forwarding = %+v, want attempted=false", event.Forwarding)
	}
	body, ok := event.Body.(map[string]interface{})
	if !ok || body["a"] != float64(1) {
		t.Errorf("Body = %#v, want parsed JSON", event.Body)
	}
	if event.Path != "/github/push" {
		t.Errorf("Path = %q, want /github/push", event.Path)
	}
	if event.Query.Get("ref") != "main" || event.ClientIP != "192.0.2.10" || event.UserAgent != "GitHub-Hookshot" {
		t.Errorf("request snapshot = query %v ip %q ua %q", event.Query, event.ClientIP, event.UserAgent)
	}
	if string(event.RawBody) != `{"a":1}` {
		t.Errorf("RawBody = %q", event.RawBody)
	}
	if h.store.requests != 1 {
		t.Errorf("requests = %d, want 1", h.store.requests)
	}
	if len(h.forwarder.calls) != 0 {
		t.Errorf("forwarder called %d times with forwarding disabled", len(h.forwarder.calls))
	}
	if len(h.notifier.kinds) != 1 || h.notifier.kinds[0] != "received" {
		t.Errorf("notifications = %v, want [received]", h.notifier.kinds)
	}
}

func TestAccept_SchedulesForwarding(t *testing.T) {
	w := activeWebhook()
	w.Forwarding = models.ForwardingConfig{Enabled: true, TargetType: models.TargetURL, URL: "http://example.test"}
	h := newHarness(w)

	event, err := h.pipeline.Accept(context.Background(), hookID, newRequest(http.MethodPost, "/webhook/"+hookID, `{}`))
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if len(h.forwarder.calls) != 1 {
		t.Fatalf("forwarder calls = %d, want 1", len(h.forwarder.calls))
	}
	if h.forwarder.calls[0] == event {
		t.Error("background task should work on its own copy of the event")
	}
	if h.forwarder.calls[0].ID != event.ID {
		t.Errorf("forwarded event id = %q, want %q", h.forwarder.calls[0].ID, event.ID)
	}
}

func TestAccept_QueueFullStillAcknowledges(t *testing.T) {
	w := activeWebhook()
	w.Forwarding = models.ForwardingConfig{Enabled: true, TargetType: models.TargetURL, URL: "http://example.test"}
	h := newHarness(w)
	h.pool.full = true

	if _, err := h.pipeline.Accept(context.Background(), hookID, newRequest(http.MethodPost, "/webhook/"+hookID, `{}`)); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if len(h.store.events) != 1 || len(h.forwarder.calls) != 0 {
		t.Errorf("stored %d events, forwarded %d; want 1, 0", len(h.store.events), len(h.forwarder.calls))
	}
}

func TestAccept_Rejections(t *testing.T) {
	hash, err := auth.HashSecret("s3cret")
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}
	past := time.Now().Add(-time.Minute).Unix()

	tests := []struct {
		name       string
		id         string
		mutate     func(w *models.Webhook)
		request    func() *http.Request
		wantStatus int
	}{
		{
			name:       "malformed id",
			id:         "not-a-hook",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown webhook",
			id:         "hook_01h455vb4pex5vsknk084sn02r",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "expired",
			mutate:     func(w *models.Webhook) { w.ExpiresAt = &past },
			wantStatus: http.StatusGone,
		},
		{
			name:       "paused",
			mutate:     func(w *models.Webhook) { w.Status = models.WebhookStatusPaused },
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "method not allowed",
			mutate:     func(w *models.Webhook) { w.Filters.Methods = []string{"PUT"} },
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "content type not allowed",
			mutate:     func(w *models.Webhook) { w.Filters.ContentTypes = []string{"text/plain"} },
			wantStatus: http.StatusUnsupportedMediaType,
		},
		{
			name:       "ip not in whitelist",
			mutate:     func(w *models.Webhook) { w.Security.IPWhitelist = []string{"10.0.0.0/8"} },
			wantStatus: http.StatusForbidden,
		},
		{
			name: "body too large",
			request: func() *http.Request {
				return newRequest(http.MethodPost, "/webhook/"+hookID, `{"pad":"`+strings.Repeat("x", 100)+`"}`)
			},
			wantStatus: http.StatusRequestEntityTooLarge,
		},
		{
			name: "missing signature",
			mutate: func(w *models.Webhook) {
				w.Security.Signature = models.SignatureConfig{Enabled: true, Header: "X-Signature", Secret: "k", Algorithm: "sha256", Encoding: "hex"}
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "bad signature",
			mutate: func(w *models.Webhook) {
				w.Security.Signature = models.SignatureConfig{Enabled: true, Header: "X-Signature", Secret: "k", Algorithm: "sha256", Encoding: "hex"}
			},
			request: func() *http.Request {
				r := newRequest(http.MethodPost, "/webhook/"+hookID, `{"a":1}`)
				r.Header.Set("X-Signature", "sha256=deadbeef")
				return r
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "wrong token",
			mutate: func(w *models.Webhook) {
				w.Security.Auth = models.AuthConfig{Type: models.AuthToken, HeaderName: "Authorization", Token: "abc"}
			},
			request: func() *http.Request {
				r := newRequest(http.MethodPost, "/webhook/"+hookID, `{}`)
				r.Header.Set("Authorization", "Bearer xyz")
				return r
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "wrong basic password",
			mutate: func(w *models.Webhook) {
				w.Security.Auth = models.AuthConfig{Type: models.AuthBasic, Username: "u", PasswordHash: hash}
			},
			request: func() *http.Request {
				r := newRequest(http.MethodPost, "/webhook/"+hookID, `{}`)
				r.SetBasicAuth("u", "wrong")
				return r
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := activeWebhook()
			if tt.mutate != nil {
				tt.mutate(w)
			}
			h := newHarness(w)

			id := tt.id
			if id == "" {
				id = hookID
			}
			r := newRequest(http.MethodPost, "/webhook/"+id, `{"a":1}`)
			if tt.request != nil {
				r = tt.request()
			}

			_, err := h.pipeline.Accept(context.Background(), id, r)
			var rej *Rejection
			if !errors.As(err, &rej) {
				t.Fatalf("Accept() error = %v, want *Rejection", err)
			}
			if rej.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d (%s)", rej.Status, tt.wantStatus, rej.Message)
			}
			if len(h.store.events) != 0 {
				t.Errorf("rejected request stored %d events", len(h.store.events))
			}
			if tt.wantStatus == http.StatusGone && len(h.resolver.expired) != 1 {
				t.Errorf("expired webhook was not flipped: %v", h.resolver.expired)
			}
		})
	}
}

func TestAccept_Credentials(t *testing.T) {
	hash, _ := auth.HashSecret("s3cret")
	body := `{"a":1}`

	tests := []struct {
		name    string
		mutate  func(w *models.Webhook)
		prepare func(r *http.Request)
	}{
		{
			name: "valid signature",
			mutate: func(w *models.Webhook) {
				w.Security.Signature = models.SignatureConfig{Enabled: true, Header: "X-Hub-Signature-256", Secret: "k", Algorithm: "sha256", Encoding: "hex"}
			},
			prepare: func(r *http.Request) {
				r.Header.Set("X-Hub-Signature-256", "sha256="+signature.Sign([]byte(body), "k", "sha256", "hex"))
			},
		},
		{
			name: "bearer token",
			mutate: func(w *models.Webhook) {
				w.Security.Auth = models.AuthConfig{Type: models.AuthToken, HeaderName: "Authorization", Token: "abc"}
			},
			prepare: func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc") },
		},
		{
			name: "custom token header",
			mutate: func(w *models.Webhook) {
				w.Security.Auth = models.AuthConfig{Type: models.AuthToken, HeaderName: "X-Token", Token: "abc"}
			},
			prepare: func(r *http.Request) { r.Header.Set("X-Token", "abc") },
		},
		{
			name: "basic auth",
			mutate: func(w *models.Webhook) {
				w.Security.Auth = models.AuthConfig{Type: models.AuthBasic, Username: "u", PasswordHash: hash}
			},
			prepare: func(r *http.Request) { r.SetBasicAuth("u", "s3cret") },
		},
		{
			name:    "forwarded ip in whitelist",
			mutate:  func(w *models.Webhook) { w.Security.IPWhitelist = []string{"203.0.113.0/24"} },
			prepare: func(r *http.Request) { r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1") },
		},
		{
			name:    "content type with parameters",
			mutate:  func(w *models.Webhook) { w.Filters.ContentTypes = []string{"application/json"} },
			prepare: func(r *http.Request) { r.Header.Set("Content-Type", "application/json; charset=utf-8") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := activeWebhook()
			tt.mutate(w)
			h := newHarness(w)

			r := newRequest(http.MethodPost, "/webhook/"+hookID, body)
			tt.prepare(r)
			if _, err := h.pipeline.Accept(context.Background(), hookID, r); err != nil {
				t.Fatalf("Accept() error = %v", err)
			}
		})
	}
}

func TestParseBody(t *testing.T) {
	if v, ok := ParseBody("application/x-www-form-urlencoded", []byte("a=1&a=2&b=x")).(map[string]interface{}); !ok || v["a"] != "1" || v["b"] != "x" {
		t.Errorf("form body = %#v", v)
	}
	if v := ParseBody("application/json", []byte("{broken")); v != "{broken" {
		t.Errorf("invalid JSON = %#v, want raw string", v)
	}
	if v := ParseBody("text/plain", []byte("hello")); v != "hello" {
		t.Errorf("text body = %#v", v)
	}
	if v := ParseBody("application/vnd.api+json", []byte(`[1]`)); v == nil {
		t.Error("+json media type should decode")
	}
	if v := ParseBody("application/json", nil); v != nil {
		t.Errorf("empty body = %#v, want nil", v)
	}
}

func TestForwardPath(t *testing.T) {
	tests := []struct {
		path, prefix, want string
	}{
		{"/webhook/" + hookID, "/webhook", "/"},
		{"/webhook/" + hookID + "/", "/webhook", "/"},
		{"/webhook/" + hookID + "/a/b", "/webhook/", "/a/b"},
		{"/hooks/" + hookID + "/x", "/hooks", "/x"},
		{"/other", "/webhook", "/"},
	}
	for _, tt := range tests {
		if got := forwardPath(tt.path, tt.prefix, hookID); got != tt.want {
			t.Errorf("forwardPath(%q, %q) = %q, want %q", tt.path, tt.prefix, got, tt.want)
		}
	}
}
