package models

import (
	"net/http"
	"net/url"
)

const (
	EventStatusReceived  = "received"
	EventStatusForwarded = "forwarded"
	EventStatusFailed    = "failed"
	EventStatusReplayed  = "replayed"
)

// WebhookEvent is one captured inbound request. ID doubles as the requestId
// returned to the sender.
type WebhookEvent struct {
	ID          string      `json:"id"`
	WebhookID   string      `json:"webhook_id"`
	Method      string      `json:"method"`
	URL         string      `json:"url"`
	Path        string      `json:"path"`
	Headers     http.Header `json:"headers"`
	Query       url.Values  `json:"query"`
	Body        interface{} `json:"body"`
	RawBody     []byte      `json:"-"`
	ContentType string      `json:"content_type,omitempty"`
	ClientIP    string      `json:"client_ip,omitempty"`
	UserAgent   string      `json:"user_agent,omitempty"`
	Signature   string      `json:"signature,omitempty"`

	Status     string            `json:"status"`
	Forwarding *ForwardingResult `json:"forwarding,omitempty"`

	IsReplay          bool   `json:"is_replay"`
	OriginalRequestID string `json:"original_request_id,omitempty"`
	ReplayCount       int    `json:"replay_count"`

	CreatedAt int64 `json:"created_at"` // unix millis
	UpdatedAt int64 `json:"updated_at"`
}

type ForwardingResult struct {
	Attempted       bool                `json:"attempted"`
	Success         bool                `json:"success"`
	Mode            string              `json:"mode,omitempty"` // single or multiple
	Target          string              `json:"target,omitempty"`
	StatusCode      int                 `json:"status_code,omitempty"`
	ResponseHeaders map[string]string   `json:"response_headers,omitempty"`
	ResponseBody    string              `json:"response_body,omitempty"`
	DurationMs      int64               `json:"duration_ms"`
	Error           string              `json:"error,omitempty"`
	Rule            string              `json:"rule,omitempty"`
	Transformed     bool                `json:"transformed,omitempty"`
	Destinations    []DestinationResult `json:"destinations,omitempty"`
	ForwardedAt     int64               `json:"forwarded_at,omitempty"`
}

type DestinationResult struct {
	Name         string `json:"name"`
	Target       string `json:"target,omitempty"`
	Success      bool   `json:"success"`
	StatusCode   int    `json:"status_code,omitempty"`
	ResponseBody string `json:"response_body,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
	Error        string `json:"error,omitempty"`
}
