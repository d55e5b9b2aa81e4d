package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"hookrelay/internal/engine/forwarding"
	"hookrelay/internal/engine/notify"
	"hookrelay/internal/engine/signature"
	"hookrelay/internal/engine/webhooks"
	apperrors "hookrelay/internal/pkg/errors"
	"hookrelay/internal/platform/auth"
	"hookrelay/internal/platform/config"
	"hookrelay/internal/platform/models"
	"hookrelay/internal/platform/repositories"
	"hookrelay/internal/workers"
)

// Rejection is a synchronous refusal of an inbound call. No event is stored.
type Rejection struct {
	Status  int
	Code    string
	Message string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%d %s: %s", r.Status, r.Code, r.Message)
}

func reject(status int, code, message string) *Rejection {
	return &Rejection{Status: status, Code: code, Message: message}
}

type Resolver interface {
	Resolve(ctx context.Context, publicID string) (*models.Webhook, error)
	Expire(ctx context.Context, w *models.Webhook) error
}

type EventStore interface {
	Create(ctx context.Context, e *models.WebhookEvent) error
}

type CounterStore interface {
	IncrementRequests(ctx context.Context, id string, at int64) error
}

type Forwarder interface {
	Forward(ctx context.Context, w *models.Webhook, e *models.WebhookEvent, opts forwarding.Options) *models.ForwardingResult
}

type Notifier interface {
	Notify(w *models.Webhook, e *models.WebhookEvent, kind string)
}

type Submitter interface {
	Submit(task workers.Task) bool
}

// Deps are the collaborators of a Pipeline. Forwarder and Notifier may be nil.
type Deps struct {
	Webhooks  Resolver
	Events    EventStore
	Counters  CounterStore
	Forwarder Forwarder
	Notifier  Notifier
	Pool      Submitter
}

// Pipeline validates inbound calls, stores them and schedules forwarding.
type Pipeline struct {
	cfg  config.IngestConfig
	deps Deps
	now  func() time.Time
}

func NewPipeline(cfg config.IngestConfig, deps Deps) *Pipeline {
	if cfg.MountPrefix == "" {
		cfg.MountPrefix = "/webhook"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	return &Pipeline{cfg: cfg, deps: deps, now: time.Now}
}

// Accept runs the inbound checks in order and persists the event. Forwarding
// and notifications run after Accept returns. A *Rejection error carries the
// status the caller should see.
func (p *Pipeline) Accept(ctx context.Context, publicID string, r *http.Request) (*models.WebhookEvent, error) {
	if !webhooks.ValidPublicID(publicID) {
		return nil, reject(http.StatusBadRequest, apperrors.ErrCodeInvalidInput, "malformed webhook id")
	}

	w, err := p.deps.Webhooks.Resolve(ctx, publicID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, reject(http.StatusNotFound, apperrors.ErrCodeNotFound, "webhook not found")
		}
		return nil, fmt.Errorf("resolve webhook: %w", err)
	}

	now := p.now()
	if w.IsExpired(now.Unix()) {
		if w.Status != models.WebhookStatusExpired {
			if err := p.deps.Webhooks.Expire(ctx, w); err != nil {
				log.Error().Err(err).Str("webhook_id", w.WebhookID).Msg("failed to mark webhook expired")
			}
		}
		return nil, reject(http.StatusGone, apperrors.ErrCodeGone, "webhook has expired")
	}
	if w.Status != models.WebhookStatusActive {
		return nil, reject(http.StatusNotFound, apperrors.ErrCodeNotFound, "webhook is not active")
	}

	if len(w.Filters.Methods) > 0 && !methodAllowed(w.Filters.Methods, r.Method) {
		return nil, reject(http.StatusMethodNotAllowed, apperrors.ErrCodeMethodNotAllowed,
			fmt.Sprintf("method %s is not allowed", r.Method))
	}

	contentType := r.Header.Get("Content-Type")
	if len(w.Filters.ContentTypes) > 0 && !contentTypeAllowed(w.Filters.ContentTypes, contentType) {
		return nil, reject(http.StatusUnsupportedMediaType, apperrors.ErrCodeUnsupportedMediaType,
			fmt.Sprintf("content type %q is not allowed", contentType))
	}

	clientIP := ClientIP(r)
	if len(w.Security.IPWhitelist) > 0 && !ipAllowed(w.Security.IPWhitelist, clientIP) {
		return nil, reject(http.StatusForbidden, apperrors.ErrCodeForbidden, "client IP is not allowed")
	}

	raw, rej := p.readBody(r)
	if rej != nil {
		return nil, rej
	}

	var presented string
	if sig := w.Security.Signature; sig.Enabled {
		presented = r.Header.Get(sig.Header)
		if presented == "" {
			return nil, reject(http.StatusUnauthorized, apperrors.ErrCodeUnauthorized, "missing signature header")
		}
		if !signature.Validate(raw, presented, sig.Secret, sig.Algorithm, sig.Encoding) {
			return nil, reject(http.StatusUnauthorized, apperrors.ErrCodeUnauthorized, "invalid signature")
		}
	}

	if !authorized(w.Security.Auth, r) {
		return nil, reject(http.StatusUnauthorized, apperrors.ErrCodeUnauthorized, "invalid credentials")
	}

	event := &models.WebhookEvent{
		WebhookID:   w.ID,
		Method:      r.Method,
		URL:         r.URL.RequestURI(),
		Path:        forwardPath(r.URL.Path, p.cfg.MountPrefix, publicID),
		Headers:     r.Header.Clone(),
		Query:       r.URL.Query(),
		Body:        ParseBody(contentType, raw),
		RawBody:     raw,
		ContentType: contentType,
		ClientIP:    clientIP,
		UserAgent:   r.UserAgent(),
		Signature:   presented,
		Status:      models.EventStatusReceived,
		Forwarding:  &models.ForwardingResult{Attempted: false},
		CreatedAt:   now.UnixMilli(),
	}
	if err := p.deps.Events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("store event: %w", err)
	}
	if err := p.deps.Counters.IncrementRequests(ctx, w.ID, now.Unix()); err != nil {
		log.Error().Err(err).Str("webhook_id", w.WebhookID).Msg("failed to increment request counter")
	}

	log.Info().
		Str("webhook_id", w.WebhookID).
		Str("event_id", event.ID).
		Str("method", r.Method).
		Str("client_ip", clientIP).
		Int("bytes", len(raw)).
		Msg("webhook received")

	p.schedule(w, event)
	return event, nil
}

func (p *Pipeline) readBody(r *http.Request) ([]byte, *Rejection) {
	tooLarge := reject(http.StatusRequestEntityTooLarge, apperrors.ErrCodePayloadTooLarge,
		fmt.Sprintf("body exceeds %d bytes", p.cfg.MaxBodyBytes))
	if r.ContentLength > p.cfg.MaxBodyBytes {
		return nil, tooLarge
	}
	if r.Body == nil {
		return nil, nil
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, p.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, reject(http.StatusBadRequest, apperrors.ErrCodeInvalidInput, "failed to read request body")
	}
	if int64(len(raw)) > p.cfg.MaxBodyBytes {
		return nil, tooLarge
	}
	return raw, nil
}

func authorized(a models.AuthConfig, r *http.Request) bool {
	switch a.Type {
	case models.AuthToken:
		header := a.HeaderName
		if header == "" {
			header = "Authorization"
		}
		presented := r.Header.Get(header)
		if len(presented) > 7 && strings.EqualFold(presented[:7], "Bearer ") {
			presented = presented[7:]
		}
		return presented != "" && auth.EqualToken(a.Token, presented)
	case models.AuthBasic:
		user, pass, ok := r.BasicAuth()
		if !ok || !auth.EqualToken(a.Username, user) {
			return false
		}
		return auth.CompareSecret(a.PasswordHash, pass)
	default:
		return true
	}
}

// schedule hands the event to the worker pool. The task works on its own copy
// so the caller's value is never written concurrently.
func (p *Pipeline) schedule(w *models.Webhook, event *models.WebhookEvent) {
	if p.deps.Pool == nil || (p.deps.Notifier == nil && (p.deps.Forwarder == nil || !w.Forwarding.Enabled)) {
		return
	}

	bg := *event
	task := func(ctx context.Context) {
		if p.deps.Notifier != nil {
			p.deps.Notifier.Notify(w, &bg, notify.EventReceived)
		}
		if p.deps.Forwarder != nil && w.Forwarding.Enabled {
			p.deps.Forwarder.Forward(ctx, w, &bg, forwarding.Options{})
		}
	}
	if !p.deps.Pool.Submit(task) {
		log.Warn().
			Str("webhook_id", w.WebhookID).
			Str("event_id", event.ID).
			Msg("worker queue full, event left in received state")
	}
}
