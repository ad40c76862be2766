package auth

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	pkgmw "github.com/chittycorp/chittyrouter/pkg/middleware"
	"github.com/chittycorp/chittyrouter/pkg/contracts"
)

// Middleware is the HTTP middleware that authenticates requests using the
// pluggable AuthProviderChain and stores the resulting Identity in context.
//
// Unlike a toggleable-auth deployment, every non-health endpoint here
// requires a successful Authenticate — there is no anonymous-access mode.
type Middleware struct {
	chain contracts.AuthProviderChain
}

// NewMiddleware creates the auth middleware over the given provider chain.
func NewMiddleware(chain contracts.AuthProviderChain) *Middleware {
	return &Middleware{chain: chain}
}

// Handler returns the HTTP handler middleware that authenticates requests.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := m.chain.Authenticate(r.Context(), r)
		if err != nil {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("authentication failed")
			writeUnauthorized(w, "authentication_failed", err.Error())
			return
		}

		if identity == nil {
			writeUnauthorized(w, "authentication_required",
				"this endpoint requires a bearer credential: set Authorization: Bearer <key> or X-Service-Token")
			return
		}

		next.ServeHTTP(w, r.WithContext(pkgmw.SetIdentity(r.Context(), identity)))
	})
}

func writeUnauthorized(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="chittyrouter"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}

// isPublicPath returns true for the one path that skips authentication.
func isPublicPath(path string) bool {
	return path == "/health"
}
