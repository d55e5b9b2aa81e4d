package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	apiContext "hookrelay/internal/api/context"
	"hookrelay/internal/api/handlers"
	"hookrelay/internal/api/middleware"
	"hookrelay/internal/pkg/errors"
)

// ingestMethods are the verbs accepted on the public webhook endpoint.
var ingestMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete, http.MethodOptions,
}

type Dependencies struct {
	MountPrefix      string
	IngestHandler    *handlers.IngestHandler
	WebhookHandler   *handlers.WebhookHandler
	EventHandler     *handlers.EventHandler
	AnalyticsHandler *handlers.AnalyticsHandler
	AuditHandler     *handlers.AuditHandler
	HealthHandler    *handlers.HealthHandler
	MetricsHandler   *handlers.MetricsHandler
	AuthMiddleware   *middleware.AuthMiddleware
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Route not found", nil)
	})
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errors.WriteError(w, http.StatusMethodNotAllowed, errors.ErrCodeMethodNotAllowed, "Method not allowed", nil)
	})

	// Public ingestion endpoint
	prefix := "/" + strings.Trim(deps.MountPrefix, "/")
	for _, method := range ingestMethods {
		router.Handle(method, prefix+"/:webhook_id", wrap(deps.IngestHandler.Handle))
		router.Handle(method, prefix+"/:webhook_id/*path", wrap(deps.IngestHandler.Handle))
	}

	router.GET("/health", wrap(deps.HealthHandler.Check))
	router.GET("/metrics", wrap(deps.MetricsHandler.Export))

	authMid := deps.AuthMiddleware

	// Webhook management
	router.POST("/api/v1/webhooks", chain(deps.WebhookHandler.Create, authMid.Handle))
	router.GET("/api/v1/webhooks", chain(deps.WebhookHandler.List, authMid.Handle))
	router.GET("/api/v1/webhooks/:webhook_id", chain(deps.WebhookHandler.Get, authMid.Handle))
	router.PATCH("/api/v1/webhooks/:webhook_id", chain(deps.WebhookHandler.Update, authMid.Handle))
	router.DELETE("/api/v1/webhooks/:webhook_id", chain(deps.WebhookHandler.Delete, authMid.Handle))

	// Stats
	router.GET("/api/v1/webhooks/:webhook_id/stats", chain(deps.AnalyticsHandler.GetWebhookStats, authMid.Handle))

	// Event history and replay
	router.GET("/api/v1/webhooks/:webhook_id/events", chain(deps.EventHandler.List, authMid.Handle))
	router.GET("/api/v1/webhooks/:webhook_id/events/:event_id", chain(deps.EventHandler.Get, authMid.Handle))
	router.POST("/api/v1/webhooks/:webhook_id/events/:event_id/replay", chain(deps.EventHandler.Replay, authMid.Handle))
	router.POST("/api/v1/webhooks/:webhook_id/events/:event_id/resend", chain(deps.EventHandler.Resend, authMid.Handle))

	// Audit trail
	router.GET("/api/v1/audit", chain(deps.AuditHandler.List, authMid.Handle))

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
