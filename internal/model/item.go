package model

import (
	"time"

	"github.com/google/uuid"
)

// Item is a found object tracked by the catalog.
type Item struct {
	ID              uuid.UUID  `json:"id"`
	DateFound       time.Time  `json:"date_found"`
	DateClaimed     *time.Time `json:"date_claimed,omitempty"`
	ItemName        string     `json:"item_name"`
	ItemDescription string     `json:"item_description"`
	IsClaimed       bool       `json:"is_claimed"`
	ImageName       string     `json:"image_name,omitempty"`
	Category        Category   `json:"category"`
	LocationFound   string     `json:"location_found"`
	Claimer         *string    `json:"claimer,omitempty"`
}

// ClaimConsistent reports whether the claim fields agree with each other:
// an item is claimed exactly when it has both a claimer and a claim date.
func (i *Item) ClaimConsistent() bool {
	return i.IsClaimed == (i.Claimer != nil) && i.IsClaimed == (i.DateClaimed != nil)
}

// HasImage reports whether the item references a stored photo.
func (i *Item) HasImage() bool {
	return i.ImageName != ""
}
