// Package storage keeps uploaded blobs and their metadata in pebble, keyed by
// KSUID.
package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"github.com/ssargent/structmsg/pkg/bodystream"
	"github.com/ssargent/structmsg/pkg/crc64"
)

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrInvalidID    = errors.New("invalid blob id")
)

const metadataLength = 24

var (
	dataPrefix = []byte("blob/data/")
	metaPrefix = []byte("blob/meta/")
)

// BlobInfo describes a stored blob
type BlobInfo struct {
	ID      string
	Length  int64
	Crc64   uint64
	Created time.Time
}

// BlobStore stores blob content and metadata in a pebble database
type BlobStore struct {
	db     *pebble.DB
	logger zerolog.Logger
}

// NewBlobStore opens or creates the database at path
func NewBlobStore(path string, logger zerolog.Logger) (*BlobStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open blob store at %s: %w", path, err)
	}
	logger.Debug().Str("path", path).Msg("blob store opened")
	return &BlobStore{db: db, logger: logger}, nil
}

// Put reads content to its end and stores it under a new id
func (s *BlobStore) Put(ctx context.Context, content bodystream.BodyStream) (BlobInfo, error) {
	data, err := bodystream.ReadToEnd(ctx, content)
	if err != nil {
		return BlobInfo{}, fmt.Errorf("failed to read blob content: %w", err)
	}

	id := ksuid.New()
	info := BlobInfo{
		ID:      id.String(),
		Length:  int64(len(data)),
		Crc64:   crc64.Checksum(data),
		Created: id.Time().UTC(),
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(dataKey(id), data, nil); err != nil {
		return BlobInfo{}, err
	}
	if err := batch.Set(metaKey(id), encodeMetadata(info), nil); err != nil {
		return BlobInfo{}, err
	}
	if err := batch.Commit(pebble.NoSync); err != nil {
		return BlobInfo{}, fmt.Errorf("failed to store blob: %w", err)
	}

	s.logger.Debug().Str("id", info.ID).Int64("length", info.Length).Msg("blob stored")
	return info, nil
}

// Get returns a copy of the blob content
func (s *BlobStore) Get(id string) ([]byte, BlobInfo, error) {
	info, err := s.Stat(id)
	if err != nil {
		return nil, BlobInfo{}, err
	}

	key, _ := parseID(id)
	value, closer, err := s.db.Get(dataKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, BlobInfo{}, fmt.Errorf("%w: %s", ErrBlobNotFound, id)
	}
	if err != nil {
		return nil, BlobInfo{}, err
	}
	defer closer.Close()

	// Values are only valid until the closer is closed
	data := make([]byte, len(value))
	copy(data, value)
	return data, info, nil
}

// Open returns the blob content as a rewindable stream
func (s *BlobStore) Open(id string) (*bodystream.Memory, BlobInfo, error) {
	data, info, err := s.Get(id)
	if err != nil {
		return nil, BlobInfo{}, err
	}
	return bodystream.NewMemory(data), info, nil
}

// Stat returns blob metadata without reading the content
func (s *BlobStore) Stat(id string) (BlobInfo, error) {
	key, err := parseID(id)
	if err != nil {
		return BlobInfo{}, err
	}

	value, closer, err := s.db.Get(metaKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return BlobInfo{}, fmt.Errorf("%w: %s", ErrBlobNotFound, id)
	}
	if err != nil {
		return BlobInfo{}, err
	}
	defer closer.Close()

	return decodeMetadata(id, value)
}

// Delete removes a blob
func (s *BlobStore) Delete(id string) error {
	if _, err := s.Stat(id); err != nil {
		return err
	}
	key, _ := parseID(id)

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete(dataKey(key), nil); err != nil {
		return err
	}
	if err := batch.Delete(metaKey(key), nil); err != nil {
		return err
	}
	if err := batch.Commit(pebble.NoSync); err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}

	s.logger.Debug().Str("id", id).Msg("blob deleted")
	return nil
}

// List returns every stored blob ordered by id, which is creation order
func (s *BlobStore) List() ([]BlobInfo, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: metaPrefix,
		UpperBound: prefixEnd(metaPrefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var blobs []BlobInfo
	for iter.First(); iter.Valid(); iter.Next() {
		id, err := ksuid.FromBytes(iter.Key()[len(metaPrefix):])
		if err != nil {
			return nil, fmt.Errorf("%w: corrupt metadata key", ErrInvalidID)
		}
		info, err := decodeMetadata(id.String(), iter.Value())
		if err != nil {
			return nil, err
		}
		blobs = append(blobs, info)
	}
	return blobs, iter.Error()
}

// Close closes the database
func (s *BlobStore) Close() error {
	return s.db.Close()
}

func parseID(id string) (ksuid.KSUID, error) {
	key, err := ksuid.Parse(id)
	if err != nil {
		return ksuid.Nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return key, nil
}

func dataKey(id ksuid.KSUID) []byte {
	return append(append([]byte{}, dataPrefix...), id.Bytes()...)
}

func metaKey(id ksuid.KSUID) []byte {
	return append(append([]byte{}, metaPrefix...), id.Bytes()...)
}

func prefixEnd(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	end[len(end)-1]++
	return end
}

// encodeMetadata lays out length, crc64 and creation time, little-endian
func encodeMetadata(info BlobInfo) []byte {
	buf := make([]byte, metadataLength)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(info.Length))
	binary.LittleEndian.PutUint64(buf[8:16], info.Crc64)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(info.Created.UnixNano()))
	return buf
}

func decodeMetadata(id string, buf []byte) (BlobInfo, error) {
	if len(buf) != metadataLength {
		return BlobInfo{}, fmt.Errorf("corrupt metadata for blob %s: %d bytes", id, len(buf))
	}
	return BlobInfo{
		ID:      id,
		Length:  int64(binary.LittleEndian.Uint64(buf[0:8])),
		Crc64:   binary.LittleEndian.Uint64(buf[8:16]),
		Created: time.Unix(0, int64(binary.LittleEndian.Uint64(buf[16:24]))).UTC(),
	}, nil
}
