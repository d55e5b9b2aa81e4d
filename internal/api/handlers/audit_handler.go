package handlers

import (
	"net/http"
	"strconv"

	"hookrelay/internal/pkg/errors"
	"hookrelay/internal/platform/audit"
)

type AuditHandler struct {
	logger *audit.Logger
}

func NewAuditHandler(logger *audit.Logger) *AuditHandler {
	return &AuditHandler{logger: logger}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	logs, err := h.logger.List(r.Context(), userID(r), limit)
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}
	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{"logs": logs})
}
