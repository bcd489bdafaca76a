package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/najdeno/internal/model"
)

const itemColumns = `id, item_name, item_description, category, location_found, image_name,
       date_found, is_claimed, claimer, date_claimed`

// ListFilter narrows ListItems. Zero values match everything.
type ListFilter struct {
	Claimed  *bool
	Category model.Category
	// Query is matched case-insensitively against name, description and location.
	Query string
}

// CreateItem inserts a new item record. The category must be one of
// model.Categories.
func CreateItem(ctx context.Context, db *sql.DB, item *model.Item) error {
	if !item.Category.Valid() {
		return fmt.Errorf("creating item: unknown category %q", item.Category)
	}

	var claimer, dateClaimed sql.NullString
	if item.Claimer != nil {
		claimer = sql.NullString{String: *item.Claimer, Valid: true}
	}
	if item.DateClaimed != nil {
		dateClaimed = sql.NullString{String: formatTime(*item.DateClaimed), Valid: true}
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO items (`+itemColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		item.ID.String(), item.ItemName, item.ItemDescription, string(item.Category),
		item.LocationFound, item.ImageName, formatTime(item.DateFound), item.IsClaimed,
		claimer, dateClaimed,
	)
	if err != nil {
		return fmt.Errorf("creating item: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("creating item: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("creating item %s: %w", item.ID, ErrDuplicateID)
	}
	return nil
}

// GetItem returns an item by ID.
func GetItem(ctx context.Context, db *sql.DB, id uuid.UUID) (*model.Item, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, id.String(),
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// ListItems returns items matching the filter, newest find first.
func ListItems(ctx context.Context, db *sql.DB, filter ListFilter) ([]model.Item, error) {
	var where []string
	var args []any

	if filter.Claimed != nil {
		where = append(where, "is_claimed = ?")
		args = append(args, *filter.Claimed)
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(filter.Category))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		where = append(where, `(item_name LIKE ? ESCAPE '\' OR item_description LIKE ? ESCAPE '\' OR location_found LIKE ? ESCAPE '\')`)
		pattern := "%" + escapeLike(q) + "%"
		args = append(args, pattern, pattern, pattern)
	}

	query := `SELECT ` + itemColumns + ` FROM items`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date_found DESC, item_name`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// CountItems returns the number of stored item records.
func CountItems(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting items: %w", err)
	}
	return n, nil
}

// UpdateItem overwrites an existing item record. Rows that are already
// claimed are never modified, which keeps the claim one-way even with
// concurrent writers.
func UpdateItem(ctx context.Context, db *sql.DB, item *model.Item) error {
	var claimer, dateClaimed sql.NullString
	if item.Claimer != nil {
		claimer = sql.NullString{String: *item.Claimer, Valid: true}
	}
	if item.DateClaimed != nil {
		dateClaimed = sql.NullString{String: formatTime(*item.DateClaimed), Valid: true}
	}

	result, err := db.ExecContext(ctx,
		`UPDATE items SET item_name = ?, item_description = ?, category = ?, location_found = ?,
		        image_name = ?, date_found = ?, is_claimed = ?, claimer = ?, date_claimed = ?
		 WHERE id = ? AND is_claimed = 0`,
		item.ItemName, item.ItemDescription, string(item.Category), item.LocationFound,
		item.ImageName, formatTime(item.DateFound), item.IsClaimed, claimer, dateClaimed,
		item.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("updating item: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating item: %w", err)
	}
	if n > 0 {
		return nil
	}

	// Nothing matched: either the row is missing or it is already claimed.
	var claimed bool
	err = db.QueryRowContext(ctx,
		`SELECT is_claimed FROM items WHERE id = ?`, item.ID.String(),
	).Scan(&claimed)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("updating item %s: %w", item.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("updating item: %w", err)
	}
	return fmt.Errorf("updating item %s: %w", item.ID, ErrAlreadyClaimed)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (*model.Item, error) {
	var (
		item                 model.Item
		id, category         string
		dateFound            string
		claimer, dateClaimed sql.NullString
	)
	err := s.Scan(&id, &item.ItemName, &item.ItemDescription, &category, &item.LocationFound,
		&item.ImageName, &dateFound, &item.IsClaimed, &claimer, &dateClaimed)
	if err != nil {
		return nil, err
	}

	if item.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parsing item id %q: %w", id, err)
	}
	// Unknown categories are kept as-is so newer data still loads.
	item.Category = model.Category(category)

	if item.DateFound, err = parseTime(dateFound); err != nil {
		return nil, err
	}
	if claimer.Valid {
		item.Claimer = &claimer.String
	}
	if dateClaimed.Valid {
		t, err := parseTime(dateClaimed.String)
		if err != nil {
			return nil, err
		}
		item.DateClaimed = &t
	}
	return &item, nil
}

// timeLayout is fixed width so stored timestamps sort as text in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
