// Package myhttp wraps http.ServeMux with the middleware every public route
// of the service shares.
package myhttp

import (
	"net/http"

	"go.opentelemetry.io/otel/metric"
)

type Options struct {
	// Duration records how long each routed request took, labelled by
	// method, route and response status.
	Duration metric.Int64Histogram
	// AllowedOrigins lists the browser origins that may call routed
	// handlers. "*" admits every origin.
	AllowedOrigins []string
}

// Router is a ServeMux whose Route methods add tracing, metrics, profiling
// labels, CORS and panic recovery. Handle and HandleFunc stay bare for
// health checks and debug endpoints.
type Router struct {
	*http.ServeMux
	duration metric.Int64Histogram
	cors     *originGate
}

func NewRouter(o Options) *Router {
	return &Router{
		ServeMux: http.NewServeMux(),
		duration: o.Duration,
		cors:     newCORS(o.AllowedOrigins),
	}
}
