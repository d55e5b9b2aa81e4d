package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"hookrelay/internal/engine/ingest"
	"hookrelay/internal/pkg/errors"
)

type IngestHandler struct {
	pipeline *ingest.Pipeline
}

func NewIngestHandler(pipeline *ingest.Pipeline) *IngestHandler {
	return &IngestHandler{pipeline: pipeline}
}

type ingestResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

// Handle accepts a webhook call on any method. The response is written as
// soon as the event is stored; forwarding continues in the background.
func (h *IngestHandler) Handle(w http.ResponseWriter, r *http.Request) {
	webhookID := param(r, "webhook_id")

	event, err := h.pipeline.Accept(r.Context(), webhookID, r)
	if err != nil {
		var rej *ingest.Rejection
		if stderrors.As(err, &rej) {
			log.Debug().Str("webhook_id", webhookID).Int("status", rej.Status).Str("reason", rej.Message).Msg("webhook rejected")
			errors.WriteError(w, rej.Status, rej.Code, rej.Message, nil)
			return
		}
		log.Error().Err(err).Str("webhook_id", webhookID).Msg("failed to accept webhook")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to record webhook", nil)
		return
	}

	errors.WriteJSON(w, http.StatusOK, ingestResponse{
		Success:   true,
		Message:   "Webhook received",
		RequestID: event.ID,
	})
}
