package api

import "net/http"

// NotImplemented answers the introspection and revocation endpoints, which
// are reserved but not served.
func (a *API) NotImplemented() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		returnJsonStatus(http.StatusNotImplemented, map[string]string{
			"message": "not implemented",
		}, w)
	}
}
