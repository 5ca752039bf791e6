package testsupport

import (
	"context"
	"testing"

	"soundscribe/internal/config"
	"soundscribe/internal/docstore"
)

// MustOpenStore opens a docstore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *docstore.Store {
	t.Helper()

	store, err := docstore.Open(cfg)
	if err != nil {
		t.Fatalf("docstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SaveDocument persists a document for tests using the provided store.
func SaveDocument(t testing.TB, store *docstore.Store, doc *docstore.Document) *docstore.Document {
	t.Helper()

	if _, err := store.Save(context.Background(), doc); err != nil {
		t.Fatalf("store.Save: %v", err)
	}
	return doc
}
