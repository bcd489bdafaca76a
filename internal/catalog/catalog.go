// Package catalog implements the lost-and-found item lifecycle: adding
// found items (with an optional photo that is classified to prefill the
// form) and recording who claimed them.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/najdeno/internal/classify"
	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/store"
)

// DefaultClassifyTimeout bounds how long AddItem waits for a label suggestion.
const DefaultClassifyTimeout = 10 * time.Second

var (
	// ErrInvalidClaim is returned when a claim has no claimer name or the
	// item is already claimed.
	ErrInvalidClaim = errors.New("invalid claim")

	// ErrNotAuthorized is returned when a non-admin caller tries to claim an item.
	ErrNotAuthorized = errors.New("only admins can claim items")

	// ErrInvalidItem is returned for drafts that cannot become an item.
	ErrInvalidItem = errors.New("invalid item")
)

// Store is the persistence the service needs. *store.ItemStore implements it.
type Store interface {
	CreateRecord(ctx context.Context, item *model.Item) error
	UpdateRecord(ctx context.Context, item *model.Item) error
	GetRecord(ctx context.Context, id uuid.UUID) (*model.Item, error)
	ListRecords(ctx context.Context, filter store.ListFilter) ([]model.Item, error)
	SaveBlob(ctx context.Context, name string, data []byte) error
	FetchBlob(ctx context.Context, name string) ([]byte, error)
	DeleteBlob(ctx context.Context, name string) error
}

// Labeler suggests a label for a photo. *classify.Classifier implements it.
type Labeler interface {
	Start(ctx context.Context, image []byte) <-chan classify.Result
}

// Draft is the form a user fills in for a found item.
type Draft struct {
	ItemName        string
	ItemDescription string
	Category        string
	LocationFound   string
	DateFound       time.Time
}

// Service runs the item lifecycle on top of a Store and a Labeler.
type Service struct {
	store           Store
	labeler         Labeler
	classifyTimeout time.Duration
	now             func() time.Time
	newID           func() uuid.UUID
}

// Option configures a Service.
type Option func(*Service)

// WithClassifyTimeout sets how long AddItem waits for the classifier
// before saving the item without a suggestion.
func WithClassifyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.classifyTimeout = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces uuid.New for item ids and blob names.
func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(s *Service) { s.newID = newID }
}

// New creates a Service. labeler may be nil, in which case photos are
// stored without a label suggestion.
func New(st Store, labeler Labeler, opts ...Option) *Service {
	s := &Service{
		store:           st,
		labeler:         labeler,
		classifyTimeout: DefaultClassifyTimeout,
		now:             time.Now,
		newID:           uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListItems returns the items matching filter, newest find first.
func (s *Service) ListItems(ctx context.Context, filter store.ListFilter) ([]model.Item, error) {
	return s.store.ListRecords(ctx, filter)
}

// GetItem returns a single item.
func (s *Service) GetItem(ctx context.Context, id uuid.UUID) (*model.Item, error) {
	return s.store.GetRecord(ctx, id)
}

// ItemImage returns the photo of an item, normally a JPEG. Items without a photo
// report store.ErrNotFound.
func (s *Service) ItemImage(ctx context.Context, id uuid.UUID) ([]byte, error) {
	item, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if !item.HasImage() {
		return nil, store.ErrNotFound
	}
	return s.store.FetchBlob(ctx, item.ImageName)
}
