package database_test

import (
	"context"
	"testing"

	"git.sr.ht/~jakintosh/codeflow/internal/config"
	"git.sr.ht/~jakintosh/codeflow/internal/database"
)

func setupStore(t *testing.T) *database.Store {
	t.Helper()
	store, err := database.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewSQLiteStore_InMemory(t *testing.T) {
	t.Parallel()
	store := setupStore(t)

	// in-memory store is created successfully
	if store.Driver() != config.DriverSQLite {
		t.Errorf("Driver = %s, want %s", store.Driver(), config.DriverSQLite)
	}
}

func TestNewSQLiteStore_CreatesSchema(t *testing.T) {
	t.Parallel()
	store := setupStore(t)
	ctx := context.Background()

	// schema is created - insert and retrieve works
	if err := store.InsertAccount(ctx, "test-user", []byte("secret-hash")); err != nil {
		t.Fatalf("schema not created - InsertAccount failed: %v", err)
	}
	account, err := store.GetAccount(ctx, "test-user")
	if err != nil {
		t.Fatalf("schema not created - GetAccount failed: %v", err)
	}
	if string(account.PasswordHash) != "secret-hash" {
		t.Errorf("unexpected hash: %s", string(account.PasswordHash))
	}
}

func TestNewSQLiteStore_ReopenFile(t *testing.T) {
	t.Parallel()
	path := t.TempDir() + "/codeflow.db"
	ctx := context.Background()

	// write through one store
	store, err := database.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := store.InsertAccount(ctx, "alice", []byte("hash")); err != nil {
		t.Fatalf("InsertAccount failed: %v", err)
	}
	_ = store.Close()

	// schema init is idempotent and data survives
	store, err = database.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer store.Close()
	if _, err := store.GetAccount(ctx, "alice"); err != nil {
		t.Fatalf("GetAccount after reopen failed: %v", err)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := database.Open(context.Background(), config.DatabaseConfig{Driver: "postgres"})
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestOpen_SQLite(t *testing.T) {
	t.Parallel()

	store, err := database.Open(context.Background(), config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   ":memory:",
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()
}

func TestStore_Close(t *testing.T) {
	t.Parallel()
	store, err := database.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	// closing store succeeds without error
	if err := store.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}
}

func TestStore_Accessors(t *testing.T) {
	t.Parallel()
	store := setupStore(t)

	// every accessor returns the same store instance
	if store.ClientRegistry() != store {
		t.Error("ClientRegistry() should return the same store")
	}
	if store.AccountStore() != store {
		t.Error("AccountStore() should return the same store")
	}
	if store.ExchangeStore() != store {
		t.Error("ExchangeStore() should return the same store")
	}
	if store.SessionStore() != store {
		t.Error("SessionStore() should return the same store")
	}
}
