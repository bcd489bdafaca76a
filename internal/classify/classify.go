// Package classify turns a photo into a suggested item label. It wraps an
// external detection backend, picks the best detection, and can remember
// results per image.
package classify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/erazemk/najdeno/internal/imaging"
	"github.com/erazemk/najdeno/internal/store"
)

var (
	// ErrModelUnavailable is returned when the backend cannot be reached or loaded.
	ErrModelUnavailable = errors.New("classifier model unavailable")

	// ErrInferenceFailed is returned when the backend failed to classify the image.
	ErrInferenceFailed = errors.New("classifier inference failed")

	// ErrDecodeFailed is returned when the input bytes are not a readable image.
	ErrDecodeFailed = errors.New("image could not be decoded")
)

// Box is a detection's bounding box in normalized image coordinates.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is one object reported by a backend.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// Labeling is the best guess at what an image shows.
type Labeling struct {
	Label      string
	Confidence float64
}

// Detector is an image detection backend. Implementations return the
// detections in whatever order the model produces them.
type Detector interface {
	Detect(ctx context.Context, image []byte) ([]Detection, error)
}

// LabelCache remembers classification results keyed by image hash.
type LabelCache interface {
	Lookup(ctx context.Context, imageHash string) (*store.CachedLabel, error)
	Remember(ctx context.Context, imageHash string, entry *store.CachedLabel) error
}

// Best returns the detection with the highest confidence, preferring the
// earliest one on ties. Detections without a label or with a NaN confidence
// are ignored. Returns nil when nothing usable was detected.
func Best(detections []Detection) *Labeling {
	var best *Labeling
	for _, d := range detections {
		if d.Label == "" || math.IsNaN(d.Confidence) {
			continue
		}
		conf := clamp(d.Confidence)
		if best == nil || conf > best.Confidence {
			best = &Labeling{Label: d.Label, Confidence: conf}
		}
	}
	return best
}

func clamp(c float64) float64 {
	return math.Max(0, math.Min(1, c))
}

// Classifier selects a single label for an image using a Detector.
type Classifier struct {
	detector Detector
	cache    LabelCache
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithCache makes the classifier consult and fill cache.
func WithCache(cache LabelCache) Option {
	return func(c *Classifier) { c.cache = cache }
}

// New creates a Classifier backed by detector.
func New(detector Detector, opts ...Option) *Classifier {
	c := &Classifier{detector: detector}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the best labeling for image, or nil if nothing was
// detected. Errors wrap ErrModelUnavailable, ErrInferenceFailed or
// ErrDecodeFailed.
func (c *Classifier) Classify(ctx context.Context, image []byte) (*Labeling, error) {
	if c.detector == nil {
		return nil, fmt.Errorf("%w: no detector configured", ErrModelUnavailable)
	}
	if _, err := imaging.DecodeConfig(image); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}

	hash := hashImage(image)
	if c.cache != nil {
		cached, err := c.cache.Lookup(ctx, hash)
		if err != nil {
			slog.Warn("failed to check label cache", "error", err)
		} else if cached != nil {
			slog.Debug("label cache hit", "hash", hash[:16])
			if !cached.HasLabel {
				return nil, nil
			}
			return &Labeling{Label: cached.Label, Confidence: cached.Confidence}, nil
		}
	}

	detections, err := c.detector.Detect(ctx, image)
	if err != nil {
		if errors.Is(err, ErrModelUnavailable) || errors.Is(err, ErrInferenceFailed) || errors.Is(err, ErrDecodeFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrInferenceFailed, err)
	}

	best := Best(detections)

	if c.cache != nil {
		entry := &store.CachedLabel{}
		if best != nil {
			entry = &store.CachedLabel{Label: best.Label, Confidence: best.Confidence, HasLabel: true}
		}
		if err := c.cache.Remember(ctx, hash, entry); err != nil {
			slog.Warn("failed to cache label", "error", err)
		}
	}

	return best, nil
}

// Result is the outcome of an asynchronous classification.
type Result struct {
	Labeling *Labeling
	Err      error
}

// Start classifies image on a separate goroutine. The returned channel
// delivers exactly one Result and is then closed. image must not be
// modified until the result arrives.
func (c *Classifier) Start(ctx context.Context, image []byte) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)

		var res Result
		defer func() {
			if r := recover(); r != nil {
				res = Result{Err: fmt.Errorf("%w: panic: %v", ErrInferenceFailed, r)}
			}
			ch <- res
		}()

		res.Labeling, res.Err = c.Classify(ctx, image)
	}()
	return ch
}

// hashImage creates a SHA256 hash of image data.
func hashImage(image []byte) string {
	sum := sha256.Sum256(image)
	return hex.EncodeToString(sum[:])
}
