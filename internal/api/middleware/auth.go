package middleware

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	apiContext "hookrelay/internal/api/context"
	"hookrelay/internal/pkg/errors"
	"hookrelay/internal/platform/auth"
)

var (
	errNoCredentials = stderrors.New("Missing authorization header")
	errBadScheme     = stderrors.New("Invalid authorization header format")
	errBadToken      = stderrors.New("Invalid or expired token")
)

// TokenValidator turns a bearer token into management API claims.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// AuthMiddleware guards the management API. Ingestion routes never pass
// through it; they carry their own per-webhook credentials.
type AuthMiddleware struct {
	tokens TokenValidator
}

func NewAuthMiddleware(tokens TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle requires a valid Bearer token carrying a user id.
func (m *AuthMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.authenticate(r)
		if err != nil {
			requestID, _ := r.Context().Value(apiContext.RequestID).(string)
			log.Debug().Str("request_id", requestID).Str("path", r.URL.Path).Str("reason", err.Error()).Msg("management request rejected")
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, err.Error(), nil)
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), apiContext.Claims, claims)))
	}
}

func (m *AuthMiddleware) authenticate(r *http.Request) (*auth.Claims, error) {
	token, err := bearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return nil, err
	}
	claims, err := m.tokens.ValidateToken(token)
	if err != nil || claims == nil || claims.UserID == "" {
		return nil, errBadToken
	}
	return claims, nil
}

// bearerToken extracts the token from an Authorization header value. The
// scheme is matched case-insensitively.
func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errNoCredentials
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", errBadScheme
	}
	return token, nil
}

// ClaimsFrom returns the claims stored by Handle, or nil.
func ClaimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(apiContext.Claims).(*auth.Claims)
	return claims
}
