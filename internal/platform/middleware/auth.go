package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	dErrors "raceday/pkg/domain-errors"
	"raceday/pkg/platform/httputil"
	"raceday/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	UserID        string
	Email         string
	EmailVerified bool
	Permissions   []string
}

// GetUserID retrieves the authenticated user ID from the context
func GetUserID(r *http.Request) uuid.UUID {
	return requestcontext.UserID(r.Context())
}

// RequireAuth resolves the bearer token into a requestcontext.CallerIdentity.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "missing or invalid Authorization header"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "invalid or expired token"))
				return
			}
			userID, err := uuid.Parse(claims.UserID)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - malformed subject",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthenticated, "invalid or expired token"))
				return
			}

			caller := requestcontext.CallerIdentity{
				UserID:        userID,
				Email:         claims.Email,
				EmailVerified: claims.EmailVerified,
			}
			for _, p := range claims.Permissions {
				caller.Permissions = append(caller.Permissions, requestcontext.Permission(p))
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithCaller(ctx, caller)))
		})
	}
}
