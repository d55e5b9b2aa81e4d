package webhooks

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strings"

	"hookrelay/internal/engine/rules"
	"hookrelay/internal/engine/signature"
	"hookrelay/internal/engine/transform"
	"hookrelay/internal/platform/models"
)

// ValidationError points at the offending field of a webhook definition.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ValidateWebhook checks the semantic constraints a schema cannot express.
func ValidateWebhook(w *models.Webhook) error {
	if strings.TrimSpace(w.Name) == "" {
		return invalid("name", "is required")
	}
	switch w.Status {
	case models.WebhookStatusActive, models.WebhookStatusPaused, models.WebhookStatusExpired:
	default:
		return invalid("status", "must be active or paused")
	}

	if err := validateForwarding(&w.Forwarding); err != nil {
		return err
	}
	if err := validateSecurity(&w.Security); err != nil {
		return err
	}
	if err := validateRules(w.Rules, &w.Forwarding); err != nil {
		return err
	}
	if err := validateTransformation(&w.Transformation); err != nil {
		return err
	}
	return validateNotifications(&w.Notifications)
}

func validateForwarding(f *models.ForwardingConfig) error {
	if f.TimeoutMs < 0 {
		return invalid("forwarding.timeout_ms", "must not be negative")
	}
	if !f.Enabled {
		return nil
	}

	switch f.TargetType {
	case models.TargetNone:
	case models.TargetURL:
		if !validHTTPURL(f.URL) {
			return invalid("forwarding.url", "must be an http:// or https:// URL")
		}
	case models.TargetTunnel:
		if f.TunnelID == "" {
			return invalid("forwarding.tunnel_id", "is required for tunnel forwarding")
		}
	case models.TargetMultiple:
		if len(f.Destinations) == 0 {
			return invalid("forwarding.destinations", "at least one destination is required")
		}
		seen := map[string]bool{}
		for i, d := range f.Destinations {
			field := fmt.Sprintf("forwarding.destinations.%d", i)
			if d.Name == "" {
				return invalid(field+".name", "is required")
			}
			if seen[d.Name] {
				return invalid(field+".name", "duplicate destination %q", d.Name)
			}
			seen[d.Name] = true

			switch d.Type {
			case models.TargetURL:
				if !validHTTPURL(d.URL) {
					return invalid(field+".url", "must be an http:// or https:// URL")
				}
			case models.TargetTunnel:
				if d.TunnelID == "" {
					return invalid(field+".tunnel_id", "is required for tunnel destinations")
				}
			default:
				return invalid(field+".type", "must be url or tunnel")
			}
		}
	default:
		return invalid("forwarding.target_type", "must be none, url, tunnel or multiple")
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func validateSecurity(s *models.SecurityConfig) error {
	if s.Signature.Enabled {
		if s.Signature.Secret == "" {
			return invalid("security.signature.secret", "is required when signature validation is enabled")
		}
		if s.Signature.Algorithm != "" && !contains(signature.Algorithms, s.Signature.Algorithm) {
			return invalid("security.signature.algorithm", "unsupported algorithm %q", s.Signature.Algorithm)
		}
		if s.Signature.Encoding != "" && !contains(signature.Encodings, s.Signature.Encoding) {
			return invalid("security.signature.encoding", "unsupported encoding %q", s.Signature.Encoding)
		}
	}

	switch s.Auth.Type {
	case "", models.AuthNone:
	case models.AuthToken:
		if s.Auth.Token == "" {
			return invalid("security.auth.token", "is required for token auth")
		}
	case models.AuthBasic:
		if s.Auth.Username == "" {
			return invalid("security.auth.username", "is required for basic auth")
		}
		if s.Auth.Password == "" && s.Auth.PasswordHash == "" {
			return invalid("security.auth.password", "is required for basic auth")
		}
	default:
		return invalid("security.auth.type", "must be none, token or basic")
	}

	for i, entry := range s.IPWhitelist {
		if strings.Contains(entry, "/") {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				return invalid(fmt.Sprintf("security.ip_whitelist.%d", i), "invalid CIDR %q", entry)
			}
			continue
		}
		if net.ParseIP(entry) == nil {
			return invalid(fmt.Sprintf("security.ip_whitelist.%d", i), "invalid IP address %q", entry)
		}
	}
	return nil
}

func validateRules(list []models.Rule, f *models.ForwardingConfig) error {
	names := map[string]bool{}
	for _, d := range f.Destinations {
		names[d.Name] = true
	}

	for i, r := range list {
		field := fmt.Sprintf("rules.%d", i)
		switch r.Action {
		case models.ActionForward, models.ActionSkip, models.ActionTransform:
		default:
			return invalid(field+".action", "must be forward, skip or transform")
		}
		for j, c := range r.Conditions {
			if c.Field == "" {
				return invalid(fmt.Sprintf("%s.conditions.%d.field", field, j), "is required")
			}
			if !rules.IsOperator(c.Operator) {
				return invalid(fmt.Sprintf("%s.conditions.%d.operator", field, j), "unknown operator %q", c.Operator)
			}
		}
		for _, name := range r.Destinations {
			if !names[name] {
				return invalid(field+".destinations", "unknown destination %q", name)
			}
		}
	}
	return nil
}

func validateTransformation(t *models.TransformationConfig) error {
	if strings.TrimSpace(t.Template) != "" && !json.Valid([]byte(t.Template)) {
		return invalid("transformation.template", "must be a JSON document")
	}
	for i, m := range t.Mappings {
		if m.From == "" || m.To == "" {
			return invalid(fmt.Sprintf("transformation.mappings.%d", i), "from and to are required")
		}
		if m.Transform != "" && !contains(transform.ValueTransforms, m.Transform) {
			return invalid(fmt.Sprintf("transformation.mappings.%d.transform", i), "unknown transform %q", m.Transform)
		}
	}
	for i, a := range t.AddFields {
		if strings.TrimSpace(a.Path) == "" {
			return invalid(fmt.Sprintf("transformation.add_fields.%d.path", i), "is required")
		}
	}
	return nil
}

func validateNotifications(n *models.NotificationConfig) error {
	for name, ch := range map[string]models.ChannelConfig{"slack": n.Slack, "discord": n.Discord, "webhook": n.Webhook} {
		if ch.Enabled && !validHTTPURL(ch.URL) {
			return invalid("notifications."+name+".url", "must be an http:// or https:// URL")
		}
	}
	return nil
}
