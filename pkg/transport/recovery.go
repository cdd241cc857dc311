package transport

import (
	"log/slog"
	"net/http"
)

// Recovery returns middleware that catches panics in the handler chain and
// converts them to server error responses. The server continues to accept
// new requests after a panic is recovered.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic recovered",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", RequestIDFromContext(r.Context()),
				)
				WriteError(w, ErrorTypeServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
