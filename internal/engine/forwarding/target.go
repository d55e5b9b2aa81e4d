package forwarding

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"hookrelay/internal/platform/models"
	"hookrelay/internal/platform/repositories"
)

var (
	ErrTunnelNotFound  = errors.New("tunnel not found")
	ErrTunnelNotActive = errors.New("tunnel not active")
	ErrNoURL           = errors.New("forwarding url not configured")
	ErrNoTunnel        = errors.New("tunnel id not configured")
	ErrUnknownTarget   = errors.New("unknown target type")
	ErrNoDestinations  = errors.New("no matching destinations")
)

// TunnelLookup resolves a tunnel by id.
type TunnelLookup interface {
	GetByID(ctx context.Context, id string) (*models.Tunnel, error)
}

// target is one resolved outbound destination.
type target struct {
	name    string
	url     string
	headers map[string]string
	err     error
}

func (d *Dispatcher) resolve(ctx context.Context, kind, rawURL, tunnelID string, e *models.WebhookEvent) (string, error) {
	switch kind {
	case models.TargetURL:
		if rawURL == "" {
			return "", ErrNoURL
		}
		return rawURL, nil
	case models.TargetTunnel:
		if tunnelID == "" {
			return "", ErrNoTunnel
		}
		if d.tunnels == nil {
			return "", ErrTunnelNotFound
		}
		t, err := d.tunnels.GetByID(ctx, tunnelID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return "", ErrTunnelNotFound
			}
			return "", fmt.Errorf("lookup tunnel: %w", err)
		}
		if !t.IsActive() {
			return "", ErrTunnelNotActive
		}
		return tunnelURL(d.cfg.TunnelHost, t.LocalPort, e.Path, e.Query), nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownTarget, kind)
	}
}

// tunnelURL builds http://host:port/path?query for a local tunnel.
func tunnelURL(host string, port int, path string, query url.Values) string {
	if host == "" {
		host = "localhost"
	}
	if path == "" || !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := url.URL{
		Scheme:   "http",
		Host:     fmt.Sprintf("%s:%d", host, port),
		Path:     path,
		RawQuery: query.Encode(),
	}
	return u.String()
}

// destinations returns the enabled destinations of a multi-target webhook,
// restricted to the given names when any are supplied. Configuration order is kept.
func destinations(w *models.Webhook, only []string) []models.Destination {
	allowed := map[string]bool{}
	for _, name := range only {
		allowed[name] = true
	}

	var out []models.Destination
	for _, dst := range w.Forwarding.Destinations {
		if !dst.IsEnabled() {
			continue
		}
		if len(allowed) > 0 && !allowed[dst.Name] {
			continue
		}
		out = append(out, dst)
	}
	return out
}
