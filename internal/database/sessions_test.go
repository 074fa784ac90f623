package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"git.sr.ht/~jakintosh/codeflow/internal/service"
)

func TestSaveSession_RoundTrip(t *testing.T) {
	t.Parallel()
	store := setupStore(t)
	ctx := context.Background()
	now := time.Now()

	// save a session carrying a pending grant
	sess := &service.Session{
		ID:        "sess-1",
		ExpiresAt: now.Add(time.Hour),
		OAuth:     &service.OAuthBinding{State: "xyz", Code: "code-1"},
		Client:    &service.ClientSnapshot{ID: "client-a", Name: "A"},
		CSRFToken: "csrf",
	}
	if err := store.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	// everything comes back
	got, err := store.GetSession(ctx, "sess-1", now)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.ID != "sess-1" || !got.PendingGrant() || got.CSRFToken != "csrf" {
		t.Errorf("unexpected session: %+v", got)
	}
	if got.OAuth.State != "xyz" || got.Client.Name != "A" {
		t.Errorf("unexpected grant: %+v %+v", got.OAuth, got.Client)
	}
	if got.Authenticated() {
		t.Error("session should not be authenticated")
	}
}

func TestSaveSession_Updates(t *testing.T) {
	t.Parallel()
	store := setupStore(t)
	ctx := context.Background()
	now := time.Now()

	// save, then authenticate and save again
	sess := &service.Session{ID: "sess-1", ExpiresAt: now.Add(time.Hour)}
	if err := store.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	sess.Account = &service.SessionAccount{Username: "alice", IsAuthenticated: true}
	if err := store.SaveSession(ctx, sess); err != nil {
		t.Fatalf("second SaveSession failed: %v", err)
	}

	got, err := store.GetSession(ctx, "sess-1", now)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if !got.Authenticated() || got.Account.Username != "alice" {
		t.Errorf("expected authenticated alice, got %+v", got.Account)
	}
}

func TestGetSession_Expired(t *testing.T) {
	t.Parallel()
	store := setupStore(t)
	ctx := context.Background()
	now := time.Now()

	sess := &service.Session{ID: "sess-1", ExpiresAt: now.Add(time.Minute)}
	if err := store.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	// past expiry the session is gone
	_, err := store.GetSession(ctx, "sess-1", now.Add(time.Hour))
	if !errors.Is(err, service.ErrRecordNotFound) {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestDeleteAndPurgeSessions(t *testing.T) {
	t.Parallel()
	store := setupStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, s := range []*service.Session{
		{ID: "live", ExpiresAt: now.Add(time.Hour)},
		{ID: "dead-1", ExpiresAt: now.Add(-time.Hour)},
		{ID: "dead-2", ExpiresAt: now.Add(-2 * time.Hour)},
		{ID: "deleted", ExpiresAt: now.Add(time.Hour)},
	} {
		if err := store.SaveSession(ctx, s); err != nil {
			t.Fatalf("SaveSession %s failed: %v", s.ID, err)
		}
	}

	// delete
	if err := store.DeleteSession(ctx, "deleted"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if _, err := store.GetSession(ctx, "deleted", now); !errors.Is(err, service.ErrRecordNotFound) {
		t.Errorf("expected deleted session to be gone, got %v", err)
	}

	// purge removes only expired rows
	n, err := store.PurgeSessions(ctx, now)
	if err != nil {
		t.Fatalf("PurgeSessions failed: %v", err)
	}
	if n != 2 {
		t.Errorf("purged = %d, want 2", n)
	}
	if _, err := store.GetSession(ctx, "live", now); err != nil {
		t.Errorf("live session was purged: %v", err)
	}
}
