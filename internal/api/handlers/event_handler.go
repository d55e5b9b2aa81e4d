package handlers

import (
	"net/http"
	"strconv"

	"hookrelay/internal/engine/events"
	"hookrelay/internal/engine/webhooks"
	"hookrelay/internal/pkg/errors"
	"hookrelay/internal/platform/audit"
	"hookrelay/internal/platform/models"
)

type EventHandler struct {
	webhooks *webhooks.Service
	events   *events.Service
	audit    *audit.Logger
}

func NewEventHandler(webhookSvc *webhooks.Service, eventSvc *events.Service, auditLogger *audit.Logger) *EventHandler {
	return &EventHandler{webhooks: webhookSvc, events: eventSvc, audit: auditLogger}
}

func (h *EventHandler) owned(w http.ResponseWriter, r *http.Request) (*models.Webhook, bool) {
	wh, err := h.webhooks.Get(r.Context(), userID(r), param(r, "webhook_id"))
	if err != nil {
		writeServiceError(w, r, err, "Webhook not found")
		return nil, false
	}
	return wh, true
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	wh, ok := h.owned(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	page, err := h.events.List(r.Context(), wh, q.Get("status"), limit, offset)
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	errors.WriteJSON(w, http.StatusOK, page)
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	wh, ok := h.owned(w, r)
	if !ok {
		return
	}

	e, err := h.events.Get(r.Context(), wh, param(r, "event_id"))
	if err != nil {
		writeServiceError(w, r, err, "Event not found")
		return
	}
	errors.WriteJSON(w, http.StatusOK, e)
}

func (h *EventHandler) Replay(w http.ResponseWriter, r *http.Request) {
	wh, ok := h.owned(w, r)
	if !ok {
		return
	}

	eventID := param(r, "event_id")
	replay, err := h.events.Replay(r.Context(), wh, eventID)
	if err != nil {
		writeServiceError(w, r, err, "Event not found")
		return
	}

	h.audit.Log(r, wh.UserID, audit.ActionEventReplay, "event", eventID, map[string]interface{}{"replay_id": replay.ID})
	errors.WriteJSON(w, http.StatusOK, replay)
}

func (h *EventHandler) Resend(w http.ResponseWriter, r *http.Request) {
	wh, ok := h.owned(w, r)
	if !ok {
		return
	}

	var overrides events.Overrides
	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	if len(raw) > 0 && !decodeJSON(w, raw, &overrides) {
		return
	}

	eventID := param(r, "event_id")
	resent, err := h.events.Resend(r.Context(), wh, eventID, &overrides)
	if err != nil {
		writeServiceError(w, r, err, "Event not found")
		return
	}

	h.audit.Log(r, wh.UserID, audit.ActionEventResend, "event", eventID, map[string]interface{}{"replay_id": resent.ID})
	errors.WriteJSON(w, http.StatusOK, resent)
}
