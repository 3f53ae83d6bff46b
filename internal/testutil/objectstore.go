package testutil

import (
	"xsync-go/internal/objectstore"
)

// NewTestObjectStore creates an in-memory object store.
func NewTestObjectStore() *objectstore.MemoryStore {
	return objectstore.NewMemoryStore()
}
