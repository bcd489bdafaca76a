package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/store"
)

// ClaimItem records that claimer picked up item. Only admins may claim.
// On success item is updated in place and returned; on any failure item
// is left exactly as it was passed in.
func (s *Service) ClaimItem(ctx context.Context, isAdmin bool, item *model.Item, claimer string) (*model.Item, error) {
	if !isAdmin {
		return nil, ErrNotAuthorized
	}
	if item == nil {
		return nil, fmt.Errorf("%w: no item", ErrInvalidClaim)
	}
	claimer = strings.TrimSpace(claimer)
	if claimer == "" {
		return nil, fmt.Errorf("%w: claimer name required", ErrInvalidClaim)
	}
	if item.IsClaimed {
		return nil, fmt.Errorf("%w: %w", ErrInvalidClaim, store.ErrAlreadyClaimed)
	}

	prevClaimer, prevClaimed, prevDate := item.Claimer, item.IsClaimed, item.DateClaimed

	now := s.now().UTC()
	item.Claimer = &claimer
	item.IsClaimed = true
	item.DateClaimed = &now

	if err := s.store.UpdateRecord(ctx, item); err != nil {
		item.Claimer, item.IsClaimed, item.DateClaimed = prevClaimer, prevClaimed, prevDate
		if errors.Is(err, store.ErrAlreadyClaimed) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidClaim, err)
		}
		return nil, fmt.Errorf("claiming item: %w", err)
	}

	slog.Info("item claimed", "id", item.ID, "name", item.ItemName, "claimer", claimer)
	return item, nil
}

// ClaimItemByID loads the item with the given id and claims it.
func (s *Service) ClaimItemByID(ctx context.Context, isAdmin bool, id uuid.UUID, claimer string) (*model.Item, error) {
	if !isAdmin {
		return nil, ErrNotAuthorized
	}
	item, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.ClaimItem(ctx, isAdmin, item, claimer)
}
