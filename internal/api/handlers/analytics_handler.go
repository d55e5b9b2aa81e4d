package handlers

import (
	"net/http"

	"hookrelay/internal/engine/analytics"
	"hookrelay/internal/engine/webhooks"
	"hookrelay/internal/pkg/errors"
)

type AnalyticsHandler struct {
	webhooks *webhooks.Service
	stats    *analytics.Service
}

func NewAnalyticsHandler(webhookSvc *webhooks.Service, stats *analytics.Service) *AnalyticsHandler {
	return &AnalyticsHandler{webhooks: webhookSvc, stats: stats}
}

func (h *AnalyticsHandler) GetWebhookStats(w http.ResponseWriter, r *http.Request) {
	wh, err := h.webhooks.Get(r.Context(), userID(r), param(r, "webhook_id"))
	if err != nil {
		writeServiceError(w, r, err, "Webhook not found")
		return
	}

	stats, err := h.stats.GetWebhookStats(r.Context(), wh)
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	errors.WriteJSON(w, http.StatusOK, stats)
}
