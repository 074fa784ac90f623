package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"git.sr.ht/~jakintosh/codeflow/internal/security"
)

const formContentType = `^application/x-www-form-urlencoded`

// Router returns a root router with the API mounted at the base path.
func (a *API) Router() http.Handler {
	r := mux.NewRouter()
	a.BuildRouter(r)
	return r
}

// BuildRouter mounts every endpoint on r under the base path.
func (a *API) BuildRouter(r *mux.Router) {
	s := r.PathPrefix(a.basePath).Subrouter()
	s.Use(security.RequestIDMiddleware)
	s.Use(a.accessLog)
	s.Use(security.Headers(a.trustProxy))
	s.Use(security.RequireHTTPS(a.trustProxy))

	// browser flow, carried by the session cookie
	s.Handle("/authorize", a.sessions.Middleware(a.Authorize())).
		Methods(http.MethodGet)
	s.Handle("/authenticate", a.sessions.Middleware(a.AuthenticateForm())).
		Methods(http.MethodGet)
	s.Handle("/authenticate", a.limit(a.sessions.Middleware(a.Authenticate()))).
		Methods(http.MethodPost).
		HeadersRegexp("Content-Type", formContentType)
	s.Handle("/grant", a.sessions.Middleware(a.Grant())).
		Methods(http.MethodPost).
		HeadersRegexp("Content-Type", formContentType)

	// client back channel
	s.Handle("/token", a.limit(a.Token())).
		Methods(http.MethodPost)

	s.HandleFunc("/introspect", a.NotImplemented()).
		Methods(http.MethodGet, http.MethodPost)
	s.HandleFunc("/revoke", a.NotImplemented()).
		Methods(http.MethodGet, http.MethodPost)
}

func (a *API) limit(next http.Handler) http.Handler {
	if a.limiter == nil {
		return next
	}
	return a.limiter.Limit(a.trustProxy, func(r *http.Request) {
		a.inst.Metrics().RecordRateLimitExceeded(r.Context(), r.URL.Path)
	})(next)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"request_id", security.RequestID(r.Context()),
		)
	})
}
