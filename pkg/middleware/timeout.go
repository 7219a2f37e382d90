package middleware

import (
	"net/http"
	"strings"
	"time"
)

const timeoutBody = `{"error":"request timeout"}`

// Timeout bounds request handling time with http.TimeoutHandler. Requests
// whose path starts with one of the exempt prefixes (long-running admin
// calls such as a reindex) are passed through unbounded.
func Timeout(timeout time.Duration, exempt ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		bounded := http.TimeoutHandler(next, timeout, timeoutBody)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range exempt {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}
			bounded.ServeHTTP(w, r)
		})
	}
}
