package api

import (
	"context"
	"time"

	"github.com/ssargent/structmsg/pkg/bodystream"
	"github.com/ssargent/structmsg/pkg/storage"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// BlobResponse describes a stored blob
type BlobResponse struct {
	ID      string    `json:"id"`
	Length  int64     `json:"length"`
	Crc64   string    `json:"crc64"`
	Created time.Time `json:"created"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Port   int
	Bind   string
	APIKey string // Empty disables authentication

	// Layout of structured responses
	MaxSegmentLength int64
}

// IBlobStore defines the blob storage operations the server needs
type IBlobStore interface {
	Put(ctx context.Context, content bodystream.BodyStream) (storage.BlobInfo, error)
	Open(id string) (*bodystream.Memory, storage.BlobInfo, error)
	Stat(id string) (storage.BlobInfo, error)
	Delete(id string) error
	List() ([]storage.BlobInfo, error)
}

var _ IBlobStore = (*storage.BlobStore)(nil)
