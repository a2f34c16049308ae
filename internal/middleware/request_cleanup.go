package middleware

import (
	"io"
	"net/http"
)

// DefaultMaxBodyBytes bounds API request bodies; mutations carry a single value.
const DefaultMaxBodyBytes = 64 << 10

// LimitAndDrainRequest caps the readable request body at maxBodyBytes, and drains
// and closes it once the handler is done so the connection can be reused.
func LimitAndDrainRequest(maxBodyBytes int64) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && maxBodyBytes > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
			}
			next.ServeHTTP(w, r)
			if r.Body != nil {
				_, _ = io.Copy(io.Discard, r.Body)
				_ = r.Body.Close()
			}
		})
	}
}
