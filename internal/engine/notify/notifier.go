package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"hookrelay/internal/platform/models"
	"hookrelay/internal/workers"
)

const (
	EventReceived  = "received"
	EventForwarded = "forwarded"
	EventFailed    = "failed"
)

const (
	ChannelSlack   = "slack"
	ChannelDiscord = "discord"
	ChannelWebhook = "webhook"
)

// Submitter queues background work. *workers.Pool satisfies it.
type Submitter interface {
	Submit(task workers.Task) bool
}

// Dispatcher sends lifecycle notifications to a webhook's configured channels.
// Delivery is fire-and-forget: failures are logged and never surface to the
// inbound request.
type Dispatcher struct {
	client  *http.Client
	pool    Submitter
	timeout time.Duration
}

func NewDispatcher(pool Submitter, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		pool:    pool,
		timeout: timeout,
	}
}

// Message is the snapshot handed to every channel.
type Message struct {
	Event       string `json:"event"`
	WebhookID   string `json:"webhookId"`
	WebhookName string `json:"webhookName"`
	RequestID   string `json:"requestId"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	Status      string `json:"status"`
	StatusCode  int    `json:"statusCode,omitempty"`
	DurationMs  int64  `json:"durationMs,omitempty"`
	Error       string `json:"error,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

func snapshot(w *models.Webhook, e *models.WebhookEvent, kind string) Message {
	m := Message{
		Event:       kind,
		WebhookID:   w.WebhookID,
		WebhookName: w.Name,
		RequestID:   e.ID,
		Method:      e.Method,
		Path:        e.Path,
		Status:      e.Status,
		Timestamp:   time.Now().Unix(),
	}
	if e.Forwarding != nil {
		m.StatusCode = e.Forwarding.StatusCode
		m.DurationMs = e.Forwarding.DurationMs
		m.Error = e.Forwarding.Error
	}
	return m
}

// Text renders the message for chat channels.
func (m Message) Text() string {
	switch m.Event {
	case EventForwarded:
		if m.StatusCode > 0 {
			return fmt.Sprintf("[%s] %s %s forwarded (HTTP %d, %dms) · %s", m.WebhookName, m.Method, m.Path, m.StatusCode, m.DurationMs, m.RequestID)
		}
		return fmt.Sprintf("[%s] %s %s forwarded (%dms) · %s", m.WebhookName, m.Method, m.Path, m.DurationMs, m.RequestID)
	case EventFailed:
		return fmt.Sprintf("[%s] %s %s failed to forward: %s · %s", m.WebhookName, m.Method, m.Path, m.Error, m.RequestID)
	default:
		return fmt.Sprintf("[%s] %s %s received · %s", m.WebhookName, m.Method, m.Path, m.RequestID)
	}
}

type delivery struct {
	channel string
	url     string
	body    []byte
}

func wants(ch models.ChannelConfig, kind string) bool {
	if !ch.Enabled || ch.URL == "" {
		return false
	}
	for _, e := range ch.Events {
		if e == kind {
			return true
		}
	}
	return false
}

func build(cfg models.NotificationConfig, msg Message) []delivery {
	var out []delivery
	if wants(cfg.Slack, msg.Event) {
		body, _ := json.Marshal(map[string]string{"text": msg.Text()})
		out = append(out, delivery{channel: ChannelSlack, url: cfg.Slack.URL, body: body})
	}
	if wants(cfg.Discord, msg.Event) {
		body, _ := json.Marshal(map[string]string{"content": msg.Text()})
		out = append(out, delivery{channel: ChannelDiscord, url: cfg.Discord.URL, body: body})
	}
	if wants(cfg.Webhook, msg.Event) {
		body, _ := json.Marshal(msg)
		out = append(out, delivery{channel: ChannelWebhook, url: cfg.Webhook.URL, body: body})
	}
	return out
}

// Notify snapshots the event and queues one call per interested channel.
func (d *Dispatcher) Notify(w *models.Webhook, e *models.WebhookEvent, kind string) {
	msg := snapshot(w, e, kind)
	for _, del := range build(w.Notifications, msg) {
		del := del
		task := func(ctx context.Context) {
			if err := d.send(ctx, del); err != nil {
				log.Warn().Err(err).
					Str("channel", del.channel).
					Str("webhook_id", msg.WebhookID).
					Str("event_id", msg.RequestID).
					Msg("notification failed")
			}
		}

		if d.pool == nil {
			go task(context.Background())
			continue
		}
		if !d.pool.Submit(task) {
			log.Warn().Str("channel", del.channel).Str("event_id", msg.RequestID).Msg("notification dropped, worker queue full")
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, del delivery) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, del.url, bytes.NewReader(del.body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s responded with status %d", del.channel, resp.StatusCode)
	}
	return nil
}
