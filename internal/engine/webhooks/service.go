package webhooks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"hookrelay/internal/platform/auth"
	"hookrelay/internal/platform/models"
	"hookrelay/internal/platform/repositories"
)

// Input carries a create or update request. Nil fields are left unchanged on update.
type Input struct {
	Name           *string                      `json:"name"`
	Description    *string                      `json:"description"`
	Status         *string                      `json:"status"`
	Forwarding     *models.ForwardingConfig     `json:"forwarding"`
	Security       *models.SecurityConfig       `json:"security"`
	Filters        *models.FilterConfig         `json:"filters"`
	Rules          *[]models.Rule               `json:"rules"`
	Transformation *models.TransformationConfig `json:"transformation"`
	Notifications  *models.NotificationConfig   `json:"notifications"`
	Retention      *models.RetentionConfig      `json:"retention"`
	ExpiresAt      *int64                       `json:"expires_at"`
}

type Service struct {
	repo  *repositories.WebhookRepository
	cache *Cache
}

func NewService(repo *repositories.WebhookRepository, cache *Cache) *Service {
	if cache == nil {
		cache = NewCache(0)
	}
	return &Service{repo: repo, cache: cache}
}

func (s *Service) Create(ctx context.Context, userID string, in *Input) (*models.Webhook, error) {
	publicID, err := NewPublicID()
	if err != nil {
		return nil, err
	}

	w := &models.Webhook{
		WebhookID:  publicID,
		UserID:     userID,
		Status:     models.WebhookStatusActive,
		Forwarding: models.ForwardingConfig{TargetType: models.TargetNone},
		Rules:      []models.Rule{},
	}
	if err := s.apply(w, in, ""); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("create webhook: %w", err)
	}
	return w, nil
}

// Get returns the caller's webhook. Webhooks owned by someone else are reported as not found.
func (s *Service) Get(ctx context.Context, userID, publicID string) (*models.Webhook, error) {
	if !ValidPublicID(publicID) {
		return nil, repositories.ErrNotFound
	}
	w, err := s.repo.GetByWebhookID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	if w.UserID != userID {
		return nil, repositories.ErrNotFound
	}
	return w, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]*models.Webhook, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) Update(ctx context.Context, userID, publicID string, in *Input) (*models.Webhook, error) {
	existing, err := s.Get(ctx, userID, publicID)
	if err != nil {
		return nil, err
	}
	previousHash := existing.Security.Auth.PasswordHash

	if err := s.apply(existing, in, previousHash); err != nil {
		return nil, err
	}
	// A new expiry in the future revives an expired webhook.
	if existing.Status == models.WebhookStatusExpired && in.ExpiresAt != nil &&
		(existing.ExpiresAt == nil || *existing.ExpiresAt > time.Now().Unix()) {
		existing.Status = models.WebhookStatusActive
	}

	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, err
	}
	s.cache.Invalidate(publicID)
	return existing, nil
}

func (s *Service) Delete(ctx context.Context, userID, publicID string) (*models.Webhook, error) {
	existing, err := s.Get(ctx, userID, publicID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, existing.ID); err != nil {
		return nil, err
	}
	s.cache.Invalidate(publicID)
	return existing, nil
}

// Resolve looks up a webhook for the ingestion path. The returned value may be
// shared with other requests and must not be mutated.
func (s *Service) Resolve(ctx context.Context, publicID string) (*models.Webhook, error) {
	if w, ok := s.cache.Get(publicID); ok {
		return w, nil
	}
	w, err := s.repo.GetByWebhookID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(w)
	return w, nil
}

// Expire flips a single webhook to expired.
func (s *Service) Expire(ctx context.Context, w *models.Webhook) error {
	if err := s.repo.UpdateStatus(ctx, w.ID, models.WebhookStatusExpired); err != nil {
		return fmt.Errorf("expire webhook: %w", err)
	}
	s.cache.Invalidate(w.WebhookID)
	log.Info().Str("webhook_id", w.WebhookID).Msg("webhook expired")
	return nil
}

// ExpireDue expires every active webhook whose expiry has passed.
func (s *Service) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.repo.ExpireDue(ctx, now.Unix())
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.cache.Invalidate(id)
	}
	return len(ids), nil
}

func (s *Service) Invalidate(publicID string) {
	s.cache.Invalidate(publicID)
}

func (s *Service) apply(w *models.Webhook, in *Input, previousHash string) error {
	if in == nil {
		return &ValidationError{Field: "body", Message: "request body is required"}
	}
	if in.Name != nil {
		w.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		w.Description = *in.Description
	}
	if in.Status != nil {
		if *in.Status != models.WebhookStatusActive && *in.Status != models.WebhookStatusPaused {
			return invalid("status", "must be active or paused")
		}
		w.Status = *in.Status
	}
	if in.Forwarding != nil {
		w.Forwarding = *in.Forwarding
	}
	if in.Security != nil {
		w.Security = *in.Security
		if err := securePassword(&w.Security.Auth, previousHash); err != nil {
			return err
		}
	}
	if in.Filters != nil {
		w.Filters = *in.Filters
	}
	if in.Rules != nil {
		w.Rules = *in.Rules
	}
	if in.Transformation != nil {
		w.Transformation = *in.Transformation
	}
	if in.Notifications != nil {
		w.Notifications = *in.Notifications
	}
	if in.Retention != nil {
		w.Retention = *in.Retention
	}
	if in.ExpiresAt != nil {
		if *in.ExpiresAt == 0 {
			w.ExpiresAt = nil
		} else {
			at := *in.ExpiresAt
			w.ExpiresAt = &at
		}
	}

	applyDefaults(w)
	return ValidateWebhook(w)
}

// securePassword replaces a plaintext basic-auth password with its bcrypt hash.
// An omitted password keeps the previously stored hash.
func securePassword(a *models.AuthConfig, previousHash string) error {
	if a.Type != models.AuthBasic {
		a.Password = ""
		a.PasswordHash = ""
		return nil
	}
	if a.Password == "" {
		a.PasswordHash = previousHash
		return nil
	}
	hash, err := auth.HashSecret(a.Password)
	if err != nil {
		return errors.New("failed to hash password")
	}
	a.PasswordHash = hash
	a.Password = ""
	return nil
}

func applyDefaults(w *models.Webhook) {
	if w.Forwarding.TargetType == "" {
		w.Forwarding.TargetType = models.TargetNone
	}
	if w.Rules == nil {
		w.Rules = []models.Rule{}
	}

	sig := &w.Security.Signature
	if sig.Enabled {
		if sig.Header == "" {
			sig.Header = "X-Signature"
		}
		if sig.Algorithm == "" {
			sig.Algorithm = "sha256"
		}
		if sig.Encoding == "" {
			sig.Encoding = "hex"
		}
	}

	a := &w.Security.Auth
	if a.Type == "" {
		a.Type = models.AuthNone
	}
	if a.Type == models.AuthToken && a.HeaderName == "" {
		a.HeaderName = "Authorization"
	}
	for i := range w.Filters.Methods {
		w.Filters.Methods[i] = strings.ToUpper(w.Filters.Methods[i])
	}
}
