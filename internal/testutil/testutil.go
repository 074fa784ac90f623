// Package testutil provides test environment setup and utilities for internal package tests.
package testutil

import (
	"context"
	"net/http"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"git.sr.ht/~jakintosh/codeflow/internal/api"
	"git.sr.ht/~jakintosh/codeflow/internal/database"
	"git.sr.ht/~jakintosh/codeflow/internal/logging"
	"git.sr.ht/~jakintosh/codeflow/internal/resources"
	"git.sr.ht/~jakintosh/codeflow/internal/service"
	"git.sr.ht/~jakintosh/codeflow/internal/session"
)

// Fixture clients from testdata/clients.
const (
	MultiCallbackClientID     = "multi-callback"
	MultiCallbackClientSecret = "multi-callback-secret"
	MultiCallbackURL          = "https://app.example.com/callback"
	MultiCallbackAltURL       = "https://app.example.com/alt-callback"

	SingleCallbackClientID     = "single-callback"
	SingleCallbackClientSecret = "single-callback-secret"
	SingleCallbackURL          = "https://single.example.com/callback"
)

// Clock is a settable time source shared by the service and session
// manager of a TestEnv.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Now()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TestEnv provides all dependencies needed for testing
type TestEnv struct {
	DB        *database.Store
	Service   *service.Service
	Sessions  *session.Manager
	Templates *resources.Templates
	Clock     *Clock
	Router    http.Handler
}

// SetupTestEnv creates an isolated test environment with in-memory SQLite
// and the fixture clients from testdata/clients.
func SetupTestEnv(
	t *testing.T,
) *TestEnv {
	t.Helper()

	db, err := database.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	clock := NewClock()
	logger := logging.Discard()

	svc := service.New(service.Options{
		Clients:      db.ClientRegistry(),
		Accounts:     db.AccountStore(),
		Exchanges:    db.ExchangeStore(),
		PasswordMode: service.PasswordModeTesting,
		Logger:       logger,
		Now:          clock.Now,
	})

	clients, err := service.LoadClientCatalog(getTestDataPath("clients"))
	if err != nil {
		t.Fatalf("failed to load test clients: %v", err)
	}
	if _, err := svc.SyncClients(context.Background(), clients); err != nil {
		t.Fatalf("failed to sync test clients: %v", err)
	}

	sessions := session.NewManager(session.Options{
		Store:  db.SessionStore(),
		Logger: logger,
		Now:    clock.Now,
	})

	templates, err := resources.NewTemplates("", logger)
	if err != nil {
		t.Fatalf("failed to load templates: %v", err)
	}

	return &TestEnv{
		DB:        db,
		Service:   svc,
		Sessions:  sessions,
		Templates: templates,
		Clock:     clock,
	}
}

// SetupTestEnvWithRouter creates TestEnv and configures the API router.
// The proxy is not trusted, so requests must be made over https.
func SetupTestEnvWithRouter(
	t *testing.T,
) *TestEnv {
	t.Helper()
	env := SetupTestEnv(t)
	a := api.New(api.Options{
		Service:   env.Service,
		Sessions:  env.Sessions,
		Templates: env.Templates,
		Logger:    logging.Discard(),
	})
	env.Router = a.Router()
	return env
}

// getTestDataPath returns the path to a subdirectory in testdata
func getTestDataPath(
	subdir string,
) string {
	_, filename, _, _ := runtime.Caller(0)
	// Go up from internal/testutil to repo root, then into testdata
	return filepath.Join(filepath.Dir(filename), "..", "..", "testdata", subdir)
}

// RegisterTestAccount creates an account in the database
func (env *TestEnv) RegisterTestAccount(
	t *testing.T,
	username string,
	password string,
) {
	t.Helper()
	if err := env.Service.RegisterAccount(context.Background(), username, password); err != nil {
		t.Fatalf("failed to register test account: %v", err)
	}
}

// RegisterTestClient stores client in the registry
func (env *TestEnv) RegisterTestClient(
	t *testing.T,
	client *service.Client,
) {
	t.Helper()
	if err := env.Service.RegisterClient(context.Background(), client); err != nil {
		t.Fatalf("failed to register test client: %v", err)
	}
}

// NewTestSession returns an unsaved session with a fresh id.
func (env *TestEnv) NewTestSession() *service.Session {
	return &service.Session{
		ID:        "test-session",
		ExpiresAt: env.Clock.Now().Add(time.Hour),
	}
}
