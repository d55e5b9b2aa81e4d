package rules

import (
	"net/http"
	"net/url"
	"strings"

	"hookrelay/internal/platform/models"
)

// RequestView is what conditions see. Field paths start with one of
// body, headers, method or query.
type RequestView struct {
	Body    interface{}
	Headers map[string]interface{}
	Method  string
	Query   map[string]interface{}
}

func (v *RequestView) Root() map[string]interface{} {
	return map[string]interface{}{
		"body":    v.Body,
		"headers": v.Headers,
		"method":  v.Method,
		"query":   v.Query,
	}
}

// NewView builds a view from captured request parts. Header names are
// lower-cased; only the first value of a repeated header or query key is kept.
func NewView(method string, headers http.Header, query url.Values, body interface{}) *RequestView {
	h := make(map[string]interface{}, len(headers))
	for k, vals := range headers {
		if len(vals) > 0 {
			h[strings.ToLower(k)] = vals[0]
		}
	}
	q := make(map[string]interface{}, len(query))
	for k, vals := range query {
		if len(vals) > 0 {
			q[k] = vals[0]
		}
	}
	return &RequestView{Body: body, Headers: h, Method: method, Query: q}
}

func EventView(e *models.WebhookEvent) *RequestView {
	return NewView(e.Method, e.Headers, e.Query, e.Body)
}

// Decision is the outcome of evaluating a webhook's rule list.
type Decision struct {
	Forward      bool
	Destinations []string // empty means use the base forwarding config
	Rule         string   // name of the matched rule, if any
	Transform    bool     // a transform rule matched
}

// Evaluate walks the rules in order and stops at the first enabled rule whose
// conditions all hold. No match forwards with the base configuration.
func Evaluate(rules []models.Rule, view *RequestView) Decision {
	for _, rule := range rules {
		if !rule.IsEnabled() || !matchAll(rule.Conditions, view) {
			continue
		}

		switch rule.Action {
		case models.ActionSkip:
			return Decision{Forward: false, Rule: rule.Name}
		case models.ActionTransform:
			return Decision{Forward: true, Destinations: rule.Destinations, Rule: rule.Name, Transform: true}
		default:
			return Decision{Forward: true, Destinations: rule.Destinations, Rule: rule.Name}
		}
	}
	return Decision{Forward: true}
}

func matchAll(conditions []models.Condition, view *RequestView) bool {
	for _, c := range conditions {
		if !Match(c, view) {
			return false
		}
	}
	return true
}
