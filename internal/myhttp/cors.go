package myhttp

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/cors"
)

const corsMaxAge = 600

// originGate answers browsers whose Origin is off the allow-list with 403
// instead of letting them through without CORS headers. Requests without an
// Origin header come from servers and pass untouched.
type originGate struct {
	cors *cors.Cors
}

func newCORS(origins []string) *originGate {
	normalized := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSuffix(strings.TrimSpace(o), "/"); o != "" {
			normalized = append(normalized, o)
		}
	}
	options := cors.Options{
		AllowedOrigins:   normalized,
		AllowedMethods:   []string{http.MethodPost, http.MethodGet},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           corsMaxAge,
	}
	if len(normalized) == 0 {
		// rs/cors reads an empty list as "*".
		options.AllowOriginFunc = func(string) bool { return false }
	}
	return &originGate{cors: cors.New(options)}
}

func (g *originGate) wrap(next http.Handler) http.Handler {
	allowed := g.cors.Handler(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Origin") != "" && !g.cors.OriginAllowed(r) {
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "Origin not allowed"})
			return
		}
		allowed.ServeHTTP(w, r)
	})
}
