package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Telemetry wraps an http.Handler with OpenTelemetry instrumentation: one server
// span per request plus the standard otelhttp metrics.
func Telemetry(next http.Handler) http.Handler {
	return otelhttp.NewMiddleware("ofsync-api")(next)
}
