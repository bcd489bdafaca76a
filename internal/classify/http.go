package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/erazemk/najdeno/internal/imaging"
)

// DefaultHTTPTimeout bounds a single request to a detection service.
const DefaultHTTPTimeout = 30 * time.Second

// detectResponse is the body returned by a detection service.
type detectResponse struct {
	Detections []Detection `json:"detections"`
}

// HTTPDetector sends photos to a detection service over HTTP. The service
// receives the raw JPEG as the request body and answers with
// {"detections": [{"label": ..., "confidence": ..., "box": {...}}]}.
type HTTPDetector struct {
	client   *resty.Client
	endpoint string
}

// NewHTTPDetector creates a detector that POSTs photos to endpoint.
func NewHTTPDetector(endpoint string, timeout time.Duration) *HTTPDetector {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	client := resty.New().
		SetDebug(false).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &HTTPDetector{client: client, endpoint: endpoint}
}

// Detect implements Detector.
func (d *HTTPDetector) Detect(ctx context.Context, image []byte) ([]Detection, error) {
	res, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", imaging.MIME).
		SetBody(image).
		Post(d.endpoint)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrInferenceFailed, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	switch code := res.StatusCode(); {
	case res.IsSuccess():
	case code == http.StatusBadRequest || code == http.StatusUnsupportedMediaType || code == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: detection service rejected image (status: %d)", ErrDecodeFailed, code)
	case code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout:
		return nil, fmt.Errorf("%w: detection service unavailable (status: %d)", ErrModelUnavailable, code)
	default:
		return nil, fmt.Errorf("%w: detection request failed (status: %d)", ErrInferenceFailed, code)
	}

	return parseDetections(res.Body())
}

// parseDetections decodes a detections body, tolerating a markdown code fence
// around the JSON.
func parseDetections(body []byte) ([]Detection, error) {
	text := strings.TrimSpace(string(body))
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var resp detectResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, fmt.Errorf("%w: parsing detections: %w", ErrInferenceFailed, err)
	}
	return resp.Detections, nil
}
