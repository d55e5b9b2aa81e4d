package forwarding

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
	"hookrelay/internal/engine/rules"
	"hookrelay/internal/engine/transform"
	"hookrelay/internal/platform/models"
)

// Options tweak a single Forward call.
type Options struct {
	// BypassRules forwards with the base configuration regardless of rules.
	BypassRules bool
}

// Forwarder runs the post-acknowledgement pipeline for one event: rule
// evaluation, payload transformation and dispatch.
type Forwarder struct {
	dispatcher *Dispatcher
	events     EventStore
}

func NewForwarder(dispatcher *Dispatcher, events EventStore) *Forwarder {
	return &Forwarder{dispatcher: dispatcher, events: events}
}

// Forward returns the stored outcome, or nil when forwarding is disabled or
// has no target.
func (f *Forwarder) Forward(ctx context.Context, w *models.Webhook, e *models.WebhookEvent, opts Options) *models.ForwardingResult {
	if !w.Forwarding.Enabled {
		return nil
	}

	decision := rules.Decision{Forward: true}
	if !opts.BypassRules {
		decision = rules.Evaluate(w.Rules, rules.EventView(e))
	}

	if !decision.Forward {
		skipped := &models.ForwardingResult{Attempted: false, Rule: decision.Rule}
		if err := f.events.UpdateForwarding(ctx, e.ID, models.EventStatusReceived, skipped); err != nil {
			log.Error().Err(err).Str("event_id", e.ID).Msg("failed to store skip decision")
		}
		e.Forwarding = skipped
		log.Debug().Str("event_id", e.ID).Str("rule", decision.Rule).Msg("forwarding skipped by rule")
		return skipped
	}

	payload := Payload{Body: e.RawBody}
	if w.Transformation.Enabled || decision.Transform {
		payload = f.transform(w, e, payload)
	}

	return f.dispatcher.Dispatch(ctx, w, e, payload, decision.Destinations, decision.Rule)
}

// transform reshapes structured bodies. A bad template is logged and the
// remaining steps still apply to structured bodies.
func (f *Forwarder) transform(w *models.Webhook, e *models.WebhookEvent, original Payload) Payload {
	switch e.Body.(type) {
	case map[string]interface{}, []interface{}:
	default:
		if w.Transformation.Template == "" {
			return original
		}
	}

	out, err := transform.Apply(w.Transformation, e.Body)
	if err != nil {
		log.Warn().Err(err).Str("event_id", e.ID).Str("webhook_id", w.WebhookID).Msg("payload template skipped")
		switch out.(type) {
		case map[string]interface{}, []interface{}:
		default:
			// a raw body with no usable template has nothing to reshape
			return original
		}
	}
	body, err := json.Marshal(out)
	if err != nil {
		log.Warn().Err(err).Str("event_id", e.ID).Msg("failed to encode transformed payload")
		return original
	}
	return Payload{Body: body, ContentType: "application/json", Transformed: true}
}
