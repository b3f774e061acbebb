package access

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"

	"github.com/hicsail/anchor/core/logger"
)

// JwtMiddlewareBuilder is a helper builder for the jwt middleware
type JwtMiddlewareBuilder struct {
	// Secret is the HMAC signing secret shared with the token issuer. This is mandatory.
	Secret string
	// Issuer is the accepted issuer for the token. Optional; if empty, any issuer is accepted.
	Issuer string
}

type anchorClaims struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// NewJwtMiddleware returns a middleware handler to validate JWT bearer token.
//
// Tokens are accepted as "Authorization: Bearer" header. The token claims
// must carry a "user_id" and a list of "roles"; those become the resolved
// Authorization for the request. Validated tokens are cached in-process.
//
// This is a final handler with regards to the bearer token: it returns
// http.StatusUnauthorized when a token is present but cannot be validated.
// Requests without any token pass through unauthorized; whether that is
// acceptable is decided downstream by the resource's scope requirements.
func NewJwtMiddleware(jmb *JwtMiddlewareBuilder) mux.MiddlewareFunc {

	if jmb.Secret == "" {
		panic("jwt middleware: secret is missing")
	}
	authCache := NewAuthorizationCache()

	keyLookup := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(jmb.Secret), nil
	}

	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth := AuthorizationFromContext(r.Context()); auth != nil { // already authorized?
				h.ServeHTTP(w, r)
				return
			}

			rlog := logger.FromContext(r.Context())

			tokenString := ""
			bearer := r.Header.Get("Authorization")
			if len(bearer) >= 8 && strings.EqualFold(bearer[:7], "bearer ") {
				tokenString = bearer[7:]
			}
			if tokenString == "" {
				h.ServeHTTP(w, r)
				return
			}

			if auth := authCache.Read(tokenString); auth != nil {
				r = r.WithContext(auth.ContextWithAuthorization(r.Context()))
				h.ServeHTTP(w, r)
				return
			}

			claims := anchorClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, keyLookup)
			if err != nil || !token.Valid {
				rlog.WithError(err).Debugln("invalid bearer token")
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if jmb.Issuer != "" && claims.Issuer != jmb.Issuer {
				rlog.Debugln("token from unaccepted issuer:", claims.Issuer)
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			auth := &Authorization{
				UserID: claims.UserID,
				Roles:  claims.Roles,
			}
			if auth.UserID == "" {
				auth.UserID = claims.Subject
			}
			authCache.Write(tokenString, auth)

			r = r.WithContext(auth.ContextWithAuthorization(r.Context()))
			h.ServeHTTP(w, r)
		})
	}
}
