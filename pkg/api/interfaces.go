// Package api provides interfaces for dependency injection
package api

import (
	"context"

	"github.com/rs/zerolog"
)

// BlobStoreCloser is a blob store that holds resources until closed
type BlobStoreCloser interface {
	IBlobStore
	Close() error
}

// StoreFactory opens blob stores
type StoreFactory interface {
	// OpenStore opens or creates the blob store in dataDir
	OpenStore(dataDir string, logger zerolog.Logger) (BlobStoreCloser, error)
}

// ServerStarter defines the interface for starting the API server
type ServerStarter interface {
	// StartServer serves the API until ctx is cancelled
	StartServer(ctx context.Context, store IBlobStore, config ServerConfig, logger zerolog.Logger) error
}

// ServerFactory creates server instances
type ServerFactory interface {
	// CreateServerStarter creates a server starter
	CreateServerStarter() ServerStarter
}
