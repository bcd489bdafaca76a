package model

import (
	"fmt"
	"strings"
)

// Category groups found items. Stored as plain text.
type Category string

// Item categories.
const (
	CategoryElectronics   Category = "Electronics"
	CategoryClothing      Category = "Clothing"
	CategoryAccessories   Category = "Accessories"
	CategoryBags          Category = "Bags"
	CategoryDocuments     Category = "Documents"
	CategoryKeys          Category = "Keys"
	CategoryMiscellaneous Category = "Miscellaneous"
)

// DefaultCategory is used when a draft leaves the category empty.
const DefaultCategory = CategoryElectronics

// Categories lists the accepted categories in display order.
var Categories = []Category{
	CategoryElectronics,
	CategoryClothing,
	CategoryAccessories,
	CategoryBags,
	CategoryDocuments,
	CategoryKeys,
	CategoryMiscellaneous,
}

// ParseCategory matches s case-insensitively against the known categories.
// An empty string yields DefaultCategory.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultCategory, nil
	}
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}
