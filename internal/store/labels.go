package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CachedLabel is a remembered classification result for one image.
// HasLabel is false when the classifier found nothing in the image.
type CachedLabel struct {
	Label      string
	Confidence float64
	HasLabel   bool
}

// LabelCache remembers classification results keyed by image hash.
type LabelCache struct {
	DB *sql.DB
}

// Lookup returns the cached result for an image hash.
// Returns nil, nil if no cache entry exists.
func (c *LabelCache) Lookup(ctx context.Context, imageHash string) (*CachedLabel, error) {
	var entry CachedLabel
	err := c.DB.QueryRowContext(ctx,
		`SELECT label, confidence, has_label FROM label_cache WHERE image_hash = ?`,
		imageHash,
	).Scan(&entry.Label, &entry.Confidence, &entry.HasLabel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting label cache: %w", err)
	}
	return &entry, nil
}

// Remember stores the result for an image hash, replacing any previous entry.
func (c *LabelCache) Remember(ctx context.Context, imageHash string, entry *CachedLabel) error {
	_, err := c.DB.ExecContext(ctx,
		`INSERT OR REPLACE INTO label_cache (image_hash, label, confidence, has_label, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		imageHash, entry.Label, entry.Confidence, entry.HasLabel, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("setting label cache: %w", err)
	}
	return nil
}
