package handlers

import (
	"net/http"

	"hookrelay/internal/engine/webhooks"
	"hookrelay/internal/pkg/errors"
	"hookrelay/internal/platform/audit"
	"hookrelay/internal/platform/models"
)

type WebhookHandler struct {
	svc        *webhooks.Service
	audit      *audit.Logger
	ingestBase string
}

// NewWebhookHandler builds the management handler. ingestBase is the public
// mount prefix used to render each webhook's inbound URL path.
func NewWebhookHandler(svc *webhooks.Service, auditLogger *audit.Logger, ingestBase string) *WebhookHandler {
	return &WebhookHandler{svc: svc, audit: auditLogger, ingestBase: ingestBase}
}

type webhookResponse struct {
	*models.Webhook
	IngestPath string `json:"ingest_path"`
}

func (h *WebhookHandler) render(wh *models.Webhook) webhookResponse {
	return webhookResponse{Webhook: wh.Redacted(), IngestPath: h.ingestBase + "/" + wh.WebhookID}
}

func (h *WebhookHandler) decodeInput(w http.ResponseWriter, r *http.Request) (*webhooks.Input, bool) {
	raw, ok := readBody(w, r)
	if !ok {
		return nil, false
	}
	if err := webhooks.ValidateDocument(raw); err != nil {
		writeServiceError(w, r, err, "")
		return nil, false
	}
	var in webhooks.Input
	if !decodeJSON(w, raw, &in) {
		return nil, false
	}
	return &in, true
}

func (h *WebhookHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	if in.Name == nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "is required", map[string]string{"field": "name"})
		return
	}

	uid := userID(r)
	wh, err := h.svc.Create(r.Context(), uid, in)
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}

	h.audit.Log(r, uid, audit.ActionWebhookCreate, "webhook", wh.WebhookID, map[string]interface{}{"name": wh.Name})
	errors.WriteJSON(w, http.StatusCreated, h.render(wh))
}

func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}

	out := make([]webhookResponse, 0, len(list))
	for _, wh := range list {
		out = append(out, h.render(wh))
	}
	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{"webhooks": out, "total": len(out)})
}

func (h *WebhookHandler) Get(w http.ResponseWriter, r *http.Request) {
	wh, err := h.svc.Get(r.Context(), userID(r), param(r, "webhook_id"))
	if err != nil {
		writeServiceError(w, r, err, "Webhook not found")
		return
	}
	errors.WriteJSON(w, http.StatusOK, h.render(wh))
}

func (h *WebhookHandler) Update(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	uid := userID(r)
	wh, err := h.svc.Update(r.Context(), uid, param(r, "webhook_id"), in)
	if err != nil {
		writeServiceError(w, r, err, "Webhook not found")
		return
	}

	h.audit.Log(r, uid, audit.ActionWebhookUpdate, "webhook", wh.WebhookID, nil)
	errors.WriteJSON(w, http.StatusOK, h.render(wh))
}

func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	wh, err := h.svc.Delete(r.Context(), uid, param(r, "webhook_id"))
	if err != nil {
		writeServiceError(w, r, err, "Webhook not found")
		return
	}

	h.audit.Log(r, uid, audit.ActionWebhookDelete, "webhook", wh.WebhookID, map[string]interface{}{"name": wh.Name})
	w.WriteHeader(http.StatusNoContent)
}
