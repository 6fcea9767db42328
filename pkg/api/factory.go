// Package api provides factory implementations for dependency injection
package api

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ssargent/structmsg/pkg/storage"
)

// DefaultStoreFactory opens pebble backed blob stores
type DefaultStoreFactory struct{}

// NewStoreFactory creates a new store factory
func NewStoreFactory() StoreFactory {
	return &DefaultStoreFactory{}
}

// OpenStore opens the blob store in dataDir
func (f *DefaultStoreFactory) OpenStore(dataDir string, logger zerolog.Logger) (BlobStoreCloser, error) {
	return storage.NewBlobStore(dataDir, logger)
}

// DefaultServerFactory is the default implementation of ServerFactory
type DefaultServerFactory struct{}

// NewServerFactory creates a new server factory
func NewServerFactory() ServerFactory {
	return &DefaultServerFactory{}
}

// CreateServerStarter creates a server starter
func (f *DefaultServerFactory) CreateServerStarter() ServerStarter {
	return &DefaultServerStarter{}
}

// DefaultServerStarter is the default implementation of ServerStarter
type DefaultServerStarter struct{}

// StartServer starts the API server with the given configuration
func (s *DefaultServerStarter) StartServer(ctx context.Context, store IBlobStore, config ServerConfig, logger zerolog.Logger) error {
	return StartServer(ctx, store, config, logger)
}
