package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/erazemk/najdeno/internal/classify"
	"github.com/erazemk/najdeno/internal/imaging"
	"github.com/erazemk/najdeno/internal/model"
)

// AddItem creates an unclaimed item from draft. When image is non-empty it
// is classified to prefill empty name and description fields and stored
// alongside the record. Unreadable photos and classification problems never
// fail the call; storage problems do, and leave nothing behind.
func (s *Service) AddItem(ctx context.Context, draft Draft, image []byte) (*model.Item, error) {
	category, err := model.ParseCategory(draft.Category)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidItem, err)
	}
	if draft.DateFound.IsZero() {
		draft.DateFound = s.now()
	}

	var photo []byte
	var imageName string
	if len(image) > 0 {
		photo = normalize(image)
		imageName = "item-" + s.newID().String() + ".jpg"

		labeling, err := s.suggest(ctx, photo)
		if err != nil {
			return nil, err
		}
		if labeling != nil {
			prefill(&draft, labeling)
		}
	}

	if photo != nil {
		if err := s.store.SaveBlob(ctx, imageName, photo); err != nil {
			return nil, fmt.Errorf("saving photo: %w", err)
		}
	}

	item := &model.Item{
		ID:              s.newID(),
		DateFound:       draft.DateFound.UTC(),
		ItemName:        strings.TrimSpace(draft.ItemName),
		ItemDescription: strings.TrimSpace(draft.ItemDescription),
		Category:        category,
		LocationFound:   strings.TrimSpace(draft.LocationFound),
		ImageName:       imageName,
	}

	if err := s.store.CreateRecord(ctx, item); err != nil {
		if photo != nil {
			if derr := s.store.DeleteBlob(context.WithoutCancel(ctx), imageName); derr != nil {
				slog.Error("failed to remove photo of unsaved item", "image", imageName, "error", derr)
			}
		}
		return nil, fmt.Errorf("creating item: %w", err)
	}

	slog.Info("item added", "id", item.ID, "name", item.ItemName, "category", item.Category)
	return item, nil
}

// normalize re-encodes image as a downscaled JPEG. Photos the normalizer
// cannot read are kept as uploaded; the classifier then reports them as
// undecodable and the item is saved without a suggestion.
func normalize(image []byte) []byte {
	photo, err := imaging.Process(image)
	if err != nil {
		slog.Warn("photo could not be decoded, storing it as uploaded", "error", err)
		return image
	}
	return photo
}

// suggest waits for a single classification of photo. It returns nil when
// there is no suggestion for any reason other than the caller giving up.
func (s *Service) suggest(ctx context.Context, photo []byte) (*classify.Labeling, error) {
	if s.labeler == nil {
		return nil, nil
	}

	cctx, cancel := context.WithTimeout(ctx, s.classifyTimeout)
	defer cancel()

	select {
	case res := <-s.labeler.Start(cctx, photo):
		if res.Err != nil {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("adding item: %w", err)
			}
			slog.Warn("classification failed, saving item without suggestion", "error", res.Err)
			return nil, nil
		}
		if res.Labeling == nil {
			slog.Info("classifier found nothing in photo")
			return nil, nil
		}
		slog.Info("classifier suggested label", "label", res.Labeling.Label, "confidence", res.Labeling.Confidence)
		return res.Labeling, nil
	case <-cctx.Done():
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("adding item: %w", err)
		}
		slog.Warn("classification timed out, saving item without suggestion", "timeout", s.classifyTimeout)
		return nil, nil
	}
}

// prefill fills the draft's empty name and description from a label.
func prefill(d *Draft, l *classify.Labeling) {
	if strings.TrimSpace(d.ItemName) == "" {
		d.ItemName = cases.Title(language.English).String(l.Label)
	}
	if strings.TrimSpace(d.ItemDescription) == "" {
		d.ItemDescription = describe(l.Label, d.LocationFound)
	}
}

// describe returns the placeholder description for a labeled item. Blanks
// are left for whatever the finder did not record.
func describe(label, location string) string {
	where := strings.TrimSpace(location)
	if where == "" {
		where = "____"
	}
	return fmt.Sprintf("An item, %s, was found in %s at exactly ___", label, where)
}
