package models

const (
	WebhookStatusActive  = "active"
	WebhookStatusPaused  = "paused"
	WebhookStatusExpired = "expired"
)

const (
	TargetNone     = "none"
	TargetURL      = "url"
	TargetTunnel   = "tunnel"
	TargetMultiple = "multiple"
)

const (
	AuthNone  = "none"
	AuthToken = "token"
	AuthBasic = "basic"
)

const (
	ActionForward   = "forward"
	ActionSkip      = "skip"
	ActionTransform = "transform"
)

// Webhook is a user-owned receiving endpoint. Nested configuration blocks are
// persisted as JSON columns.
type Webhook struct {
	ID             string               `json:"id"`
	WebhookID      string               `json:"webhook_id"` // public token used in the inbound URL
	UserID         string               `json:"user_id"`
	Name           string               `json:"name"`
	Description    string               `json:"description,omitempty"`
	Status         string               `json:"status"` // active, paused, expired
	Forwarding     ForwardingConfig     `json:"forwarding"`
	Security       SecurityConfig       `json:"security"`
	Filters        FilterConfig         `json:"filters"`
	Rules          []Rule               `json:"rules"`
	Transformation TransformationConfig `json:"transformation"`
	Notifications  NotificationConfig   `json:"notifications"`
	Retention      RetentionConfig      `json:"retention"`

	TotalRequests      int64  `json:"total_requests"`
	SuccessfulForwards int64  `json:"successful_forwards"`
	FailedForwards     int64  `json:"failed_forwards"`
	LastRequestAt      *int64 `json:"last_request_at,omitempty"`

	ExpiresAt *int64 `json:"expires_at,omitempty"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// IsExpired reports whether the webhook's expiry time is at or before now (unix seconds).
func (w *Webhook) IsExpired(now int64) bool {
	if w.Status == WebhookStatusExpired {
		return true
	}
	return w.ExpiresAt != nil && *w.ExpiresAt <= now
}

// Redacted returns a copy safe to hand back over the management API.
func (w *Webhook) Redacted() *Webhook {
	c := *w
	c.Security.Auth.Password = ""
	c.Security.Auth.PasswordHash = ""
	return &c
}

type ForwardingConfig struct {
	Enabled      bool              `json:"enabled"`
	TargetType   string            `json:"target_type"` // none, url, tunnel, multiple
	URL          string            `json:"url,omitempty"`
	TunnelID     string            `json:"tunnel_id,omitempty"`
	Destinations []Destination     `json:"destinations,omitempty"`
	TimeoutMs    int               `json:"timeout_ms,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
}

type Destination struct {
	Name     string            `json:"name"`
	Type     string            `json:"type"` // url or tunnel
	URL      string            `json:"url,omitempty"`
	TunnelID string            `json:"tunnel_id,omitempty"`
	Enabled  *bool             `json:"enabled,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// IsEnabled treats an unset flag as enabled.
func (d Destination) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

type SecurityConfig struct {
	Signature   SignatureConfig `json:"signature"`
	Auth        AuthConfig      `json:"auth"`
	IPWhitelist []string        `json:"ip_whitelist,omitempty"`
}

type SignatureConfig struct {
	Enabled   bool   `json:"enabled"`
	Header    string `json:"header,omitempty"`
	Secret    string `json:"secret,omitempty"`
	Algorithm string `json:"algorithm,omitempty"` // sha1, sha256, sha512
	Encoding  string `json:"encoding,omitempty"`  // hex, base64
}

type AuthConfig struct {
	Type         string `json:"type,omitempty"` // none, token, basic
	HeaderName   string `json:"header_name,omitempty"`
	Token        string `json:"token,omitempty"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"` // accepted on input only, hashed before storage
	PasswordHash string `json:"password_hash,omitempty"`
}

type FilterConfig struct {
	Methods      []string `json:"methods,omitempty"`
	ContentTypes []string `json:"content_types,omitempty"`
}

type Condition struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value,omitempty"`
}

type Rule struct {
	Name         string      `json:"name"`
	Enabled      *bool       `json:"enabled,omitempty"`
	Conditions   []Condition `json:"conditions"`
	Action       string      `json:"action"` // forward, skip, transform
	Destinations []string    `json:"destinations,omitempty"`
}

func (r Rule) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

type TransformationConfig struct {
	Enabled      bool            `json:"enabled"`
	Template     string          `json:"template,omitempty"`
	Mappings     []FieldMapping  `json:"mappings,omitempty"`
	RemoveFields []string        `json:"remove_fields,omitempty"`
	AddFields    []FieldAddition `json:"add_fields,omitempty"`
}

// FieldAddition writes Value at Path. Additions apply in list order.
type FieldAddition struct {
	Path  string      `json:"path"`
	Value interface{} `json:"value"`
}

type FieldMapping struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Transform string `json:"transform,omitempty"` // uppercase, lowercase, trim, json-parse, base64-encode
}

type NotificationConfig struct {
	Slack   ChannelConfig `json:"slack"`
	Discord ChannelConfig `json:"discord"`
	Webhook ChannelConfig `json:"webhook"`
}

type ChannelConfig struct {
	Enabled bool     `json:"enabled"`
	URL     string   `json:"url,omitempty"`
	Events  []string `json:"events,omitempty"` // received, forwarded, failed
}

type RetentionConfig struct {
	KeepDays    int `json:"keep_days,omitempty"`
	MaxRequests int `json:"max_requests,omitempty"`
}
