package handlers

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	apiContext "hookrelay/internal/api/context"
	"hookrelay/internal/api/middleware"
	"hookrelay/internal/engine/events"
	"hookrelay/internal/engine/webhooks"
	"hookrelay/internal/pkg/errors"
	"hookrelay/internal/platform/repositories"
)

const maxManagementBody = 1 << 20

func param(r *http.Request, name string) string {
	params, _ := r.Context().Value(apiContext.Params).(httprouter.Params)
	return params.ByName(name)
}

func userID(r *http.Request) string {
	if claims := middleware.ClaimsFrom(r.Context()); claims != nil {
		return claims.UserID
	}
	return ""
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxManagementBody+1))
	if err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Failed to read request body", nil)
		return nil, false
	}
	if len(raw) > maxManagementBody {
		errors.WriteError(w, http.StatusRequestEntityTooLarge, errors.ErrCodePayloadTooLarge, "Request body too large", nil)
		return nil, false
	}
	return raw, true
}

func decodeJSON(w http.ResponseWriter, raw []byte, dest interface{}) bool {
	if err := json.Unmarshal(raw, dest); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return false
	}
	return true
}

// writeServiceError maps engine errors onto API responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, notFoundMsg string) {
	var ve *webhooks.ValidationError
	switch {
	case stderrors.Is(err, repositories.ErrNotFound):
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, notFoundMsg, nil)
	case stderrors.As(err, &ve):
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, ve.Message, map[string]string{"field": ve.Field})
	case stderrors.Is(err, events.ErrInvalidOverride):
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Internal server error", nil)
	}
}
