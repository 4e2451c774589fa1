package testutil

import (
	"net/http"

	"github.com/google/uuid"

	"raceday/pkg/requestcontext"
)

// AsCaller returns middleware that authenticates every request as caller, standing in
// for the bearer-token middleware in handler tests.
func AsCaller(caller requestcontext.CallerIdentity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, WithCaller(req, caller))
		})
	}
}

// WithCaller attaches caller to the request context.
func WithCaller(req *http.Request, caller requestcontext.CallerIdentity) *http.Request {
	return req.WithContext(requestcontext.WithCaller(req.Context(), caller))
}

// Verified is a caller with a verified email and no extra permissions.
func Verified(userID uuid.UUID, email string) requestcontext.CallerIdentity {
	return requestcontext.CallerIdentity{UserID: userID, Email: email, EmailVerified: true}
}
