package http

import (
	"net/http"
	"regexp"

	"notification-dispatch/internal/handler/http/middleware"
)

const (
	maxPathLength      = 2048
	maxServiceIDLength = 128
)

// serviceIDPattern keeps caller ids safe to embed in rate limit keys and metric labels.
var serviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// InputValidation rejects oversized paths and malformed X-Service-Id headers
// and caps request bodies at maxBody bytes.
func InputValidation(maxBody int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limited := LimitRequestBody(maxBody)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(r.URL.Path) > maxPathLength {
				writeJSONError(w, http.StatusRequestURITooLong, `{"error":"URI too long"}`)
				return
			}

			if svc := r.Header.Get(middleware.ServiceIDHeader); svc != "" {
				if len(svc) > maxServiceIDLength || !serviceIDPattern.MatchString(svc) {
					writeJSONError(w, http.StatusBadRequest, `{"error":"invalid X-Service-Id header"}`)
					return
				}
			}

			limited.ServeHTTP(w, r)
		})
	}
}

func writeJSONError(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}
