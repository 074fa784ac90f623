// Package api exposes the grant flow over HTTP: the browser-facing
// authorize, authenticate and grant pages, and the client-facing token
// endpoint.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"git.sr.ht/~jakintosh/codeflow/internal/instrumentation"
	"git.sr.ht/~jakintosh/codeflow/internal/resources"
	"git.sr.ht/~jakintosh/codeflow/internal/security"
	"git.sr.ht/~jakintosh/codeflow/internal/service"
	"git.sr.ht/~jakintosh/codeflow/internal/session"
)

const DefaultBasePath = "/oauth/v2"

// maxFormBytes bounds every form body the API reads.
const maxFormBytes = 64 << 10

type Options struct {
	Service   *service.Service
	Sessions  *session.Manager
	Templates *resources.Templates

	BasePath   string
	TrustProxy bool

	// RateLimiter, when set, guards POST /authenticate and POST /token.
	RateLimiter *security.RateLimiter

	Logger          *slog.Logger
	Instrumentation *instrumentation.Instrumentation
}

type API struct {
	service   *service.Service
	sessions  *session.Manager
	templates *resources.Templates

	basePath   string
	trustProxy bool
	limiter    *security.RateLimiter

	logger *slog.Logger
	inst   *instrumentation.Instrumentation
}

func New(opts Options) *API {
	a := &API{
		service:    opts.Service,
		sessions:   opts.Sessions,
		templates:  opts.Templates,
		basePath:   strings.TrimSuffix(opts.BasePath, "/"),
		trustProxy: opts.TrustProxy,
		limiter:    opts.RateLimiter,
		logger:     opts.Logger,
		inst:       opts.Instrumentation,
	}
	if opts.BasePath == "" {
		a.basePath = DefaultBasePath
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.inst == nil {
		a.inst = instrumentation.Noop()
	}
	return a
}

// path joins p onto the base path for form actions.
func (a *API) path(p string) string {
	return a.basePath + p
}

func parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("couldn't parse form: %w", err)
	}
	return nil
}

func returnJson(data any, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(data)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
}

func returnJsonStatus(status int, data any, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (a *API) logApiErr(r *http.Request, msg string, err error) {
	a.logger.Error(msg,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", security.RequestID(r.Context()),
		"error", err,
	)
}

// sessionFrom fetches the session the middleware attached. A missing
// session is a wiring fault.
func (a *API) sessionFrom(w http.ResponseWriter, r *http.Request) (*service.Session, bool) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		a.writeError(w, r, fmt.Errorf("%w: no session in request context", service.ErrInternal))
		return nil, false
	}
	return sess, true
}

// saveSession persists sess and reports failure as a 500.
func (a *API) saveSession(w http.ResponseWriter, r *http.Request, sess *service.Session) bool {
	if err := a.sessions.Save(r.Context(), sess); err != nil {
		a.writeError(w, r, fmt.Errorf("%w: %v", service.ErrInternal, err))
		return false
	}
	return true
}
