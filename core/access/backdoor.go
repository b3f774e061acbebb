package access

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// BackdoorMiddlewareBuilder is a helper builder for the backdoor middleware
type BackdoorMiddlewareBuilder struct {
	// Backdoors is a mapping from a bearer token to an actual authorization
	Backdoors map[string]Authorization
}

// NewBackdoorMiddleware returns a middleware handler for a backdoor.
//
// The key for the backdoors map is the bearer token passed with the request.
//
// Example: if you specify the backdoor
//
//	"please": Authorization{UserID: "root", Roles: []string{"admin"}}
//
// then any request with an authorization bearer token consisting of the single
// magic word "please" will be authorized as root with the admin role.
//
// With curl, use -H 'Authorization: Bearer please'. This middleware is meant
// for local development and tests only.
func NewBackdoorMiddleware(bmb *BackdoorMiddlewareBuilder) mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth := AuthorizationFromContext(r.Context()); auth == nil {
				bearer := r.Header.Get("Authorization")
				if len(bearer) >= 8 && strings.EqualFold(bearer[:7], "bearer ") {
					if backdoor, ok := bmb.Backdoors[bearer[7:]]; ok {
						r = r.WithContext(backdoor.ContextWithAuthorization(r.Context()))
					}
				}
			}
			h.ServeHTTP(w, r)
		})
	}
}
