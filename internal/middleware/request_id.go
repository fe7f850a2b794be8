package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"trip-planner/internal/observability"
)

// RequestContext copies the request id assigned by chi's RequestID into the
// logging context, so that the backend calls made while serving the request
// carry the same X-Request-ID.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chimw.GetReqID(r.Context())
		if id == "" {
			id = r.Header.Get(chimw.RequestIDHeader)
		}
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set(chimw.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(observability.WithRequestID(r.Context(), id)))
	})
}
