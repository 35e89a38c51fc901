package testsupport

import (
	"context"
	"testing"

	"showrunner/internal/config"
	"showrunner/internal/session"
)

// MustOpenStore opens a session.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *session.Store {
	t.Helper()

	store, err := session.Open(cfg)
	if err != nil {
		t.Fatalf("session.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewSession creates and persists a session for tests using the provided store.
func NewSession(t testing.TB, store *session.Store, workspaceRoot, sourceInput string, selected []int) *session.Session {
	t.Helper()

	sess := session.New(workspaceRoot, sourceInput, selected)
	if err := store.Create(context.Background(), sess); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return sess
}
