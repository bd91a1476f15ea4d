package database

import (
	"context"
	"fmt"
	"sync"
)

// IndexRebuilder is implemented by components that keep an in-memory index
// over stored data (the face gallery) and can rebuild it on demand.
type IndexRebuilder interface {
	// Rebuild reloads the index from the store
	Rebuild(ctx context.Context) error
	// Count returns the number of items in the index
	Count() int
	// Save persists the index to disk (if a path is configured)
	Save() error
}

var (
	backendMu      sync.RWMutex
	backendName    string
	backendStore   func() Store
	galleryIndex   IndexRebuilder // Singleton for gallery rebuilding
	backendEnabled bool
)

// RegisterBackend registers the store constructor of the active backend.
// This is called by the serve and CLI commands after the backend connected.
func RegisterBackend(name string, store func() Store) {
	backendMu.Lock()
	defer backendMu.Unlock()
	backendName = name
	backendStore = store
	backendEnabled = store != nil
}

// ResetBackend clears the registered backend. Used by tests.
func ResetBackend() {
	backendMu.Lock()
	defer backendMu.Unlock()
	backendName = ""
	backendStore = nil
	galleryIndex = nil
	backendEnabled = false
}

// RegisterGalleryRebuilder registers the gallery index so handlers can rebuild
// it after enrollment without knowing the concrete type.
func RegisterGalleryRebuilder(rebuilder IndexRebuilder) {
	backendMu.Lock()
	defer backendMu.Unlock()
	galleryIndex = rebuilder
}

// GetGalleryRebuilder returns the registered gallery rebuilder, or nil if not registered.
func GetGalleryRebuilder() IndexRebuilder {
	backendMu.RLock()
	defer backendMu.RUnlock()
	return galleryIndex
}

// IsInitialized returns whether a backend has been registered.
func IsInitialized() bool {
	backendMu.RLock()
	defer backendMu.RUnlock()
	return backendEnabled
}

// BackendName returns the name of the registered backend ("postgres", "mariadb").
func BackendName() string {
	backendMu.RLock()
	defer backendMu.RUnlock()
	return backendName
}

// GetStore returns the Store of the registered backend
func GetStore(ctx context.Context) (Store, error) {
	backendMu.RLock()
	defer backendMu.RUnlock()
	if !backendEnabled || backendStore == nil {
		return nil, fmt.Errorf("database backend not initialized: DATABASE_URL is required")
	}
	return backendStore(), nil
}
