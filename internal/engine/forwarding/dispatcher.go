package forwarding

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"hookrelay/internal/platform/config"
	"hookrelay/internal/platform/models"
)

const (
	ModeSingle   = "single"
	ModeMultiple = "multiple"
)

// Headers never copied from the inbound request.
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Host":                true,
	"Content-Length":      true,
	"Accept-Encoding":     true,
}

// EventStore persists a dispatch outcome.
type EventStore interface {
	UpdateForwarding(ctx context.Context, id, status string, result *models.ForwardingResult) error
}

// CounterStore records per-webhook forwarding counters.
type CounterStore interface {
	IncrementForwardOutcome(ctx context.Context, id string, success bool) error
}

// Notifier announces lifecycle events. Implementations must not block.
type Notifier interface {
	Notify(w *models.Webhook, e *models.WebhookEvent, kind string)
}

// Payload is the body sent downstream. ContentType, when set, replaces the
// inbound Content-Type header.
type Payload struct {
	Body        []byte
	ContentType string
	Transformed bool
}

type Dispatcher struct {
	client   *http.Client
	tunnels  TunnelLookup
	events   EventStore
	counters CounterStore
	notifier Notifier
	cfg      config.ForwardingConfig
}

func NewDispatcher(cfg config.ForwardingConfig, tunnels TunnelLookup, events EventStore, counters CounterStore, notifier Notifier) *Dispatcher {
	return &Dispatcher{
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			// the destination's answer is recorded, redirects are not followed
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		tunnels:  tunnels,
		events:   events,
		counters: counters,
		notifier: notifier,
		cfg:      cfg,
	}
}

func (d *Dispatcher) timeout(w *models.Webhook) time.Duration {
	if w.Forwarding.TimeoutMs > 0 {
		return time.Duration(w.Forwarding.TimeoutMs) * time.Millisecond
	}
	if d.cfg.DefaultTimeout > 0 {
		return d.cfg.DefaultTimeout
	}
	return 30 * time.Second
}

// Dispatch delivers the event to the webhook's configured target(s), stores
// the outcome with a single event update, bumps one counter and emits a
// forwarded or failed notification. It returns nil when nothing was attempted.
func (d *Dispatcher) Dispatch(ctx context.Context, w *models.Webhook, e *models.WebhookEvent, payload Payload, only []string, rule string) *models.ForwardingResult {
	var result *models.ForwardingResult

	switch w.Forwarding.TargetType {
	case models.TargetURL, models.TargetTunnel:
		result = d.single(ctx, w, e, payload)
	case models.TargetMultiple:
		dsts := destinations(w, only)
		if len(dsts) == 0 {
			if len(only) == 0 {
				return nil
			}
			result = &models.ForwardingResult{
				Attempted: true,
				Mode:      ModeMultiple,
				Error:     ErrNoDestinations.Error(),
			}
		} else {
			result = d.multiple(ctx, w, e, payload, dsts)
		}
	default:
		return nil
	}

	result.Rule = rule
	result.Transformed = payload.Transformed
	result.ForwardedAt = time.Now().UnixMilli()
	d.record(w, e, result)
	return result
}

func (d *Dispatcher) single(ctx context.Context, w *models.Webhook, e *models.WebhookEvent, payload Payload) *models.ForwardingResult {
	start := time.Now()
	res := &models.ForwardingResult{Attempted: true, Mode: ModeSingle}

	targetURL, err := d.resolve(ctx, w.Forwarding.TargetType, w.Forwarding.URL, w.Forwarding.TunnelID, e)
	if err != nil {
		res.Error = err.Error()
		res.DurationMs = time.Since(start).Milliseconds()
		return res
	}

	out := d.send(ctx, w, e, payload, target{name: ModeSingle, url: targetURL})
	res.Target = targetURL
	res.Success = out.Success
	res.StatusCode = out.StatusCode
	res.ResponseHeaders = out.headers
	res.ResponseBody = out.ResponseBody
	res.Error = out.Error
	res.DurationMs = out.DurationMs
	return res
}

type indexedResult struct {
	index int
	res   models.DestinationResult
}

// multiple fans out to every destination concurrently. Results are reported in
// configuration order and the overall outcome succeeds only if all succeed.
func (d *Dispatcher) multiple(ctx context.Context, w *models.Webhook, e *models.WebhookEvent, payload Payload, dsts []models.Destination) *models.ForwardingResult {
	start := time.Now()

	responseCh := make(chan indexedResult, len(dsts))
	var wg sync.WaitGroup

	for i, dst := range dsts {
		wg.Add(1)
		go func(i int, dst models.Destination) {
			defer wg.Done()
			t := target{name: dst.Name, headers: dst.Headers}
			t.url, t.err = d.resolve(ctx, dst.Type, dst.URL, dst.TunnelID, e)
			responseCh <- indexedResult{index: i, res: d.send(ctx, w, e, payload, t).DestinationResult}
		}(i, dst)
	}

	go func() {
		wg.Wait()
		close(responseCh)
	}()

	results := make([]models.DestinationResult, len(dsts))
	for r := range responseCh {
		results[r.index] = r.res
	}

	res := &models.ForwardingResult{
		Attempted:    true,
		Success:      true,
		Mode:         ModeMultiple,
		Destinations: results,
		DurationMs:   time.Since(start).Milliseconds(),
	}

	var errMsgs []string
	for _, r := range results {
		if !r.Success {
			res.Success = false
			errMsgs = append(errMsgs, fmt.Sprintf("%s: %s", r.Name, r.Error))
		}
	}
	res.Error = strings.Join(errMsgs, "; ")
	return res
}

type sendResult struct {
	models.DestinationResult
	headers map[string]string
}

// send performs one outbound request. Any completed HTTP exchange counts as
// success whatever its status code; transport errors and timeouts do not.
func (d *Dispatcher) send(ctx context.Context, w *models.Webhook, e *models.WebhookEvent, payload Payload, t target) sendResult {
	out := sendResult{DestinationResult: models.DestinationResult{Name: t.name, Target: t.url}}
	if t.err != nil {
		out.Error = t.err.Error()
		return out
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout(w))
	defer cancel()

	method := e.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, t.url, bytes.NewReader(payload.Body))
	if err != nil {
		out.Error = fmt.Sprintf("create request: %v", err)
		return out
	}

	for k, vals := range e.Headers {
		if hopHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	if payload.ContentType != "" {
		req.Header.Set("Content-Type", payload.ContentType)
	}
	if req.Header.Get("User-Agent") == "" && d.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", d.cfg.UserAgent)
	}
	if e.ClientIP != "" {
		req.Header.Set("X-Forwarded-For", e.ClientIP)
	}
	req.Header.Set("X-Hookrelay-Event-Id", e.ID)
	req.Header.Set("X-Hookrelay-Webhook-Id", w.WebhookID)
	for k, v := range w.Forwarding.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	out.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		out.Error = err.Error()
		return out
	}
	defer resp.Body.Close()

	limit := d.cfg.MaxResponseBody
	if limit <= 0 {
		limit = 64 << 10
	}
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, limit))

	out.Success = true
	out.StatusCode = resp.StatusCode
	out.ResponseBody = string(body)
	if readErr != nil {
		out.Error = fmt.Sprintf("read response: %v", readErr)
	}
	out.headers = make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		out.headers[k] = resp.Header.Get(k)
	}
	return out
}

// record persists the outcome. It runs on a fresh context so a caller that has
// gone away cannot leave the event stuck in "received".
func (d *Dispatcher) record(w *models.Webhook, e *models.WebhookEvent, result *models.ForwardingResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status := models.EventStatusFailed
	kind := "failed"
	if result.Success {
		status = models.EventStatusForwarded
		kind = "forwarded"
	}

	if err := d.events.UpdateForwarding(ctx, e.ID, status, result); err != nil {
		log.Error().Err(err).Str("event_id", e.ID).Msg("failed to store forwarding result")
	}
	if err := d.counters.IncrementForwardOutcome(ctx, w.ID, result.Success); err != nil {
		log.Error().Err(err).Str("webhook_id", w.ID).Msg("failed to update forwarding counters")
	}

	if e.Status == models.EventStatusReceived {
		e.Status = status
	}
	e.Forwarding = result

	log.Info().
		Str("webhook_id", w.WebhookID).
		Str("event_id", e.ID).
		Str("mode", result.Mode).
		Bool("success", result.Success).
		Int("status_code", result.StatusCode).
		Int64("duration_ms", result.DurationMs).
		Msg("event forwarded")

	if d.notifier != nil {
		d.notifier.Notify(w, e, kind)
	}
}
