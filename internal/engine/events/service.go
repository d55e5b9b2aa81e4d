package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"hookrelay/internal/engine/forwarding"
	"hookrelay/internal/platform/models"
	"hookrelay/internal/platform/repositories"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// ErrInvalidOverride is returned when a resend override cannot be applied.
var ErrInvalidOverride = errors.New("invalid resend override")

// Overrides replace parts of the source request on resend. Headers are merged
// over the original set; Method and Body replace the original when present.
type Overrides struct {
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// Page is one slice of a webhook's event history.
type Page struct {
	Events []*models.WebhookEvent `json:"events"`
	Total  int                    `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
}

type Service struct {
	repo      *repositories.EventRepository
	forwarder *forwarding.Forwarder
}

func NewService(repo *repositories.EventRepository, forwarder *forwarding.Forwarder) *Service {
	return &Service{repo: repo, forwarder: forwarder}
}

// Get returns an event belonging to w.
func (s *Service) Get(ctx context.Context, w *models.Webhook, eventID string) (*models.WebhookEvent, error) {
	e, err := s.repo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if e.WebhookID != w.ID {
		return nil, repositories.ErrNotFound
	}
	return e, nil
}

func (s *Service) List(ctx context.Context, w *models.Webhook, status string, limit, offset int) (*Page, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}

	list, total, err := s.repo.ListByWebhook(ctx, w.ID, repositories.EventFilter{Status: status, Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*models.WebhookEvent{}
	}
	return &Page{Events: list, Total: total, Limit: limit, Offset: offset}, nil
}

// Replay stores a copy of the source event and forwards it with the base
// forwarding configuration. The source record is left untouched.
func (s *Service) Replay(ctx context.Context, w *models.Webhook, eventID string) (*models.WebhookEvent, error) {
	return s.Resend(ctx, w, eventID, nil)
}

// Resend behaves like Replay after applying caller overrides to the copy.
func (s *Service) Resend(ctx context.Context, w *models.Webhook, eventID string, o *Overrides) (*models.WebhookEvent, error) {
	source, err := s.Get(ctx, w, eventID)
	if err != nil {
		return nil, err
	}

	replay := copyEvent(source)
	if o != nil {
		if err := applyOverrides(replay, o); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Create(ctx, replay); err != nil {
		return nil, err
	}
	log.Info().
		Str("webhook_id", w.WebhookID).
		Str("event_id", replay.ID).
		Str("original_request_id", source.ID).
		Int("replay_count", replay.ReplayCount).
		Msg("event replayed")

	if s.forwarder != nil {
		s.forwarder.Forward(ctx, w, replay, forwarding.Options{BypassRules: true})
	}
	return replay, nil
}

func copyEvent(src *models.WebhookEvent) *models.WebhookEvent {
	e := &models.WebhookEvent{
		WebhookID:         src.WebhookID,
		Method:            src.Method,
		URL:               src.URL,
		Path:              src.Path,
		Headers:           src.Headers.Clone(),
		Query:             url.Values{},
		Body:              src.Body,
		RawBody:           bytes.Clone(src.RawBody),
		ContentType:       src.ContentType,
		ClientIP:          src.ClientIP,
		UserAgent:         src.UserAgent,
		Signature:         src.Signature,
		Status:            models.EventStatusReplayed,
		Forwarding:        &models.ForwardingResult{Attempted: false},
		IsReplay:          true,
		OriginalRequestID: src.ID,
		ReplayCount:       src.ReplayCount + 1,
	}
	if e.Headers == nil {
		e.Headers = http.Header{}
	}
	for k, v := range src.Query {
		e.Query[k] = append([]string(nil), v...)
	}
	return e
}

func applyOverrides(e *models.WebhookEvent, o *Overrides) error {
	if o.Method != "" {
		method := strings.ToUpper(strings.TrimSpace(o.Method))
		if strings.ContainsAny(method, " \t\r\n") {
			return ErrInvalidOverride
		}
		e.Method = method
	}
	for k, v := range o.Headers {
		e.Headers.Set(k, v)
	}
	if len(o.Body) > 0 {
		var body interface{}
		if err := json.Unmarshal(o.Body, &body); err != nil {
			return ErrInvalidOverride
		}
		e.Body = body
		e.RawBody = bytes.Clone(o.Body)
		e.ContentType = "application/json"
		e.Headers.Set("Content-Type", "application/json")
	}
	return nil
}
