package classify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPDetector_Success(t *testing.T) {
	var gotBody []byte
	var gotType string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"detections": [
			{"label": "handbag", "confidence": 0.41, "box": {"x": 0.1, "y": 0.1, "width": 0.5, "height": 0.5}},
			{"label": "wallet", "confidence": 0.85, "box": {"x": 0.2, "y": 0.3, "width": 0.2, "height": 0.1}}
		]}`))
	}))
	defer ts.Close()

	img := testJPEG(t)
	det := NewHTTPDetector(ts.URL+"/detect", 0)
	detections, err := det.Detect(context.Background(), img)
	require.NoError(t, err)

	assert.Equal(t, "image/jpeg", gotType)
	assert.Equal(t, img, gotBody)
	require.Len(t, detections, 2)
	assert.Equal(t, Box{X: 0.2, Y: 0.3, Width: 0.2, Height: 0.1}, detections[1].Box)

	// The service lists the handbag first; the classifier still picks the wallet.
	got, err := New(det).Classify(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, "wallet", got.Label)
}

func TestHTTPDetector_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusServiceUnavailable, ErrModelUnavailable},
		{http.StatusBadGateway, ErrModelUnavailable},
		{http.StatusUnsupportedMediaType, ErrDecodeFailed},
		{http.StatusUnprocessableEntity, ErrDecodeFailed},
		{http.StatusInternalServerError, ErrInferenceFailed},
		{http.StatusNotFound, ErrInferenceFailed},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer ts.Close()

			_, err := NewHTTPDetector(ts.URL, 0).Detect(context.Background(), testJPEG(t))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHTTPDetector_MalformedBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"detections": [`))
	}))
	defer ts.Close()

	_, err := NewHTTPDetector(ts.URL, 0).Detect(context.Background(), testJPEG(t))
	assert.ErrorIs(t, err, ErrInferenceFailed)
}

func TestHTTPDetector_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewHTTPDetector(url, 0).Detect(context.Background(), testJPEG(t))
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestParseDetections_CodeFence(t *testing.T) {
	detections, err := parseDetections([]byte("```json\n{\"detections\": [{\"label\": \"keys\", \"confidence\": 0.5}]}\n```"))
	require.NoError(t, err)
	require.Len(t, detections, 1)
	assert.Equal(t, "keys", detections[0].Label)
}
