package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/erazemk/najdeno/internal/model"
)

// ItemStore owns the item records and their image blobs.
type ItemStore struct {
	DB    *sql.DB
	Blobs *Blobs
}

// New returns an ItemStore backed by db with blobs kept in blobDir.
func New(db *sql.DB, blobDir string) (*ItemStore, error) {
	blobs, err := OpenBlobs(blobDir)
	if err != nil {
		return nil, err
	}
	return &ItemStore{DB: db, Blobs: blobs}, nil
}

// CreateRecord inserts a new item record.
func (s *ItemStore) CreateRecord(ctx context.Context, item *model.Item) error {
	return CreateItem(ctx, s.DB, item)
}

// UpdateRecord overwrites an existing, unclaimed item record.
func (s *ItemStore) UpdateRecord(ctx context.Context, item *model.Item) error {
	return UpdateItem(ctx, s.DB, item)
}

// GetRecord returns the item record with the given id.
func (s *ItemStore) GetRecord(ctx context.Context, id uuid.UUID) (*model.Item, error) {
	return GetItem(ctx, s.DB, id)
}

// ListRecords returns item records matching filter.
func (s *ItemStore) ListRecords(ctx context.Context, filter ListFilter) ([]model.Item, error) {
	return ListItems(ctx, s.DB, filter)
}

// SaveBlob persists image bytes under name.
func (s *ItemStore) SaveBlob(_ context.Context, name string, data []byte) error {
	return s.Blobs.Save(name, data)
}

// FetchBlob returns the image bytes stored under name.
func (s *ItemStore) FetchBlob(_ context.Context, name string) ([]byte, error) {
	return s.Blobs.Fetch(name)
}

// DeleteBlob removes the image stored under name.
func (s *ItemStore) DeleteBlob(_ context.Context, name string) error {
	return s.Blobs.Delete(name)
}
