package security

import (
	"encoding/json"
	"net/http"
)

// RequireHTTPS rejects plain-HTTP requests with 406 Not Acceptable. With
// trustProxy set the check is left to the proxy in front.
func RequireHTTPS(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !trustProxy && r.TLS == nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusNotAcceptable)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"message": "requests must use https",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
