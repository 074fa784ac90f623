// Package session carries per-user-agent grant state between the
// authorize, authenticate and grant requests. The session id travels in a
// cookie; the state itself stays in a Store.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"git.sr.ht/~jakintosh/codeflow/internal/service"
)

type ctxKey string

const sessionContextKey ctxKey = "codeflow-session"

const (
	DefaultCookieName = "codeflow_session"
	DefaultTTL        = 24 * time.Hour
	DefaultTimeout    = 5 * time.Second
)

// Store persists sessions. GetSession returns service.ErrRecordNotFound for
// unknown ids and for sessions that expired at or before now.
type Store interface {
	GetSession(ctx context.Context, id string, now time.Time) (*service.Session, error)
	SaveSession(ctx context.Context, sess *service.Session) error
	DeleteSession(ctx context.Context, id string) error
	PurgeSessions(ctx context.Context, now time.Time) (int64, error)
}

type Options struct {
	Store        Store
	TTL          time.Duration
	CookieName   string
	CookiePath   string
	SecureCookie bool
	Timeout      time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

// Manager ensures every request has a session and writes the cookie that
// names it.
type Manager struct {
	store      Store
	ttl        time.Duration
	cookieName string
	cookiePath string
	secure     bool
	timeout    time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

func NewManager(opts Options) *Manager {
	m := &Manager{
		store:      opts.Store,
		ttl:        opts.TTL,
		cookieName: opts.CookieName,
		cookiePath: opts.CookiePath,
		secure:     opts.SecureCookie,
		timeout:    opts.Timeout,
		logger:     opts.Logger,
		now:        opts.Now,
	}
	if m.ttl <= 0 {
		m.ttl = DefaultTTL
	}
	if m.cookieName == "" {
		m.cookieName = DefaultCookieName
	}
	if m.cookiePath == "" {
		m.cookiePath = "/"
	}
	if m.timeout <= 0 {
		m.timeout = DefaultTimeout
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

func (m *Manager) CookieName() string {
	return m.cookieName
}

// Middleware loads the session named by the request cookie, or starts a new
// one, and makes it available through FromContext. New sessions are not
// persisted until Save.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		sess, created, err := m.ensureSession(ctx, r)
		if err != nil {
			m.logger.Error("failed to load session",
				"method", r.Method,
				"path", r.URL.Path,
				"error", err,
			)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		if created {
			http.SetCookie(w, m.buildCookie(sess))
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, sessionContextKey, sess)))
	})
}

func (m *Manager) ensureSession(ctx context.Context, r *http.Request) (*service.Session, bool, error) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie.Value == "" {
		return m.newSession(), true, nil
	}

	sctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	sess, err := m.store.GetSession(sctx, cookie.Value, m.now())
	if err != nil {
		if errors.Is(err, service.ErrRecordNotFound) {
			return m.newSession(), true, nil
		}
		return nil, false, err
	}
	return sess, false, nil
}

func (m *Manager) newSession() *service.Session {
	return &service.Session{
		ID:        uuid.NewString(),
		ExpiresAt: m.now().Add(m.ttl),
	}
}

// Save persists sess.
func (m *Manager) Save(ctx context.Context, sess *service.Session) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.store.SaveSession(ctx, sess); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Rotate gives sess a fresh id and lifetime, drops the old record, and
// writes the new cookie. The caller still has to Save. Call it before the
// response header is written.
func (m *Manager) Rotate(ctx context.Context, w http.ResponseWriter, sess *service.Session) error {
	oldID := sess.ID

	sess.ID = uuid.NewString()
	sess.ExpiresAt = m.now().Add(m.ttl)
	sess.CSRFToken = ""

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.store.DeleteSession(ctx, oldID); err != nil {
		return fmt.Errorf("failed to delete rotated session: %w", err)
	}

	http.SetCookie(w, m.buildCookie(sess))
	return nil
}

// PurgeExpired deletes every session that has expired.
func (m *Manager) PurgeExpired(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	n, err := m.store.PurgeSessions(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return n, nil
}

func (m *Manager) buildCookie(sess *service.Session) *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    sess.ID,
		Path:     m.cookiePath,
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// FromContext returns the session the middleware attached to ctx.
func FromContext(ctx context.Context) (*service.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey).(*service.Session)
	return sess, ok && sess != nil
}
