package telemetry

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// HTTPHandler wraps the router with otelhttp so every request gets a server span
// and the standard http.server metrics.
func (t *Telemetry) HTTPHandler(next http.Handler, operation string) http.Handler {
	if t == nil || t.meterProvider == nil {
		return next
	}

	return otelhttp.NewHandler(next, operation,
		otelhttp.WithMeterProvider(t.meterProvider),
		otelhttp.WithTracerProvider(t.tracerProvider),
	)
}

// RouteLabels names the server span and labels http metrics with the chi route
// pattern (e.g. /files/{token}) instead of the raw path, keeping delivery
// tokens out of metric attributes. Mount it inside the router.
func RouteLabels(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		rctx := chi.RouteContext(r.Context())
		if rctx == nil {
			return
		}

		pattern := rctx.RoutePattern()
		if pattern == "" {
			return
		}

		trace.SpanFromContext(r.Context()).SetName(r.Method + " " + pattern)

		if labeler, ok := otelhttp.LabelerFromContext(r.Context()); ok {
			labeler.Add(attribute.String("http.route", pattern))
		}
	})
}
