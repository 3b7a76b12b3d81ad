package blob

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/chorusnet/chorus/pkg/types"
)

var (
	// ErrNotFound is returned when a blob does not exist.
	ErrNotFound = errors.New("blob not found")

	bucketContent = []byte("blob_content")
	bucketMeta    = []byte("blob_meta")
)

// Store defines the interface for blob storage.
type Store interface {
	Put(data []byte, contentType string) (*types.BlobInfo, error)
	Get(id string) ([]byte, *types.BlobInfo, error)
	Stat(id string) (*types.BlobInfo, error)
	Close() error
}

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) the blob database under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "blobs.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketContent, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Put stores data under a fresh blob ID and returns its metadata.
func (s *BoltStore) Put(data []byte, contentType string) (*types.BlobInfo, error) {
	info := &types.BlobInfo{
		BlobID:      uuid.New().String(),
		Size:        int64(len(data)),
		ContentType: contentType,
		CreatedAt:   time.Now().UTC(),
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketContent).Put([]byte(info.BlobID), data); err != nil {
			return err
		}
		meta, err := json.Marshal(info)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put([]byte(info.BlobID), meta)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store blob: %w", err)
	}
	return info, nil
}

// Get returns the content and metadata for id.
func (s *BoltStore) Get(id string) ([]byte, *types.BlobInfo, error) {
	var (
		data []byte
		info types.BlobInfo
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		content := tx.Bucket(bucketContent).Get([]byte(id))
		if content == nil {
			return ErrNotFound
		}
		// Bolt buffers are only valid inside the transaction.
		data = make([]byte, len(content))
		copy(data, content)

		meta := tx.Bucket(bucketMeta).Get([]byte(id))
		if meta == nil {
			return ErrNotFound
		}
		return json.Unmarshal(meta, &info)
	})
	if errors.Is(err, ErrNotFound) {
		return nil, nil, fmt.Errorf("blob %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get blob: %w", err)
	}
	return data, &info, nil
}

// Stat returns metadata for id without reading the content.
func (s *BoltStore) Stat(id string) (*types.BlobInfo, error) {
	var info types.BlobInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta).Get([]byte(id))
		if meta == nil {
			return ErrNotFound
		}
		return json.Unmarshal(meta, &info)
	})
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("blob %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat blob: %w", err)
	}
	return &info, nil
}
