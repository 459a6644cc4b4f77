// Package auth provides bearer-token authentication middleware for the
// API.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// ErrorResponse is the JSON body of an authentication failure.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// BearerTokenMiddleware validates bearer tokens against the configured
// secret. An empty secret disables authentication and lets every
// request through.
func BearerTokenMiddleware(secret string, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}

	if secret == "" {
		log.Warn("authentication disabled, no api key configured")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				log.Warn("rejected request without bearer token",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path))
				SendUnauthorized(w, "missing or malformed authentication token")

				return
			}

			if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				log.Warn("rejected request with invalid token",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path))
				SendUnauthorized(w, "invalid authentication token")

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}

	return parts[1], true
}

// SendUnauthorized writes a 401 response with a JSON error body.
func SendUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Code:    http.StatusUnauthorized,
		Message: message,
	})
}
