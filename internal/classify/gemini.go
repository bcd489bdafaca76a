package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/lithammer/dedent"
	"google.golang.org/genai"

	"github.com/erazemk/najdeno/internal/imaging"
)

// DefaultGeminiModel is used when no model name is configured.
const DefaultGeminiModel = "gemini-2.5-flash-lite"

var geminiPrompt = strings.TrimSpace(dedent.Dedent(`
	This photo shows an object that was found and handed in to a lost-and-found desk.

	List the objects you can see, most prominent first. For each object give:
	- label: a short, lowercase English noun phrase naming the object (e.g. "backpack", "wallet", "cell phone")
	- confidence: how sure you are, from 0 to 1
	- box: the object's bounding box as x, y, width, height, each normalized to 0..1

	Return at most 5 objects. If the photo shows no recognizable object, return an empty list.
`))

var detectionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"detections": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"label":      {Type: genai.TypeString},
					"confidence": {Type: genai.TypeNumber},
					"box": {
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"x":      {Type: genai.TypeNumber},
							"y":      {Type: genai.TypeNumber},
							"width":  {Type: genai.TypeNumber},
							"height": {Type: genai.TypeNumber},
						},
					},
				},
				Required:         []string{"label", "confidence"},
				PropertyOrdering: []string{"label", "confidence", "box"},
			},
		},
	},
	Required: []string{"detections"},
}

// GeminiDetector uses Google's Gemini API as a detection backend.
type GeminiDetector struct {
	client *genai.Client
	model  string
}

// NewGeminiDetector creates a Gemini-based detector. An empty model selects
// DefaultGeminiModel.
func NewGeminiDetector(ctx context.Context, apiKey, model string) (*GeminiDetector, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini API key not set", ErrModelUnavailable)
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating gemini client: %w", ErrModelUnavailable, err)
	}
	return &GeminiDetector{client: client, model: model}, nil
}

// Detect implements Detector.
func (g *GeminiDetector) Detect(ctx context.Context, image []byte) ([]Detection, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(geminiPrompt),
		{InlineData: &genai.Blob{Data: image, MIMEType: imaging.MIME}},
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   detectionSchema,
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}, config)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini request: %w", ErrInferenceFailed, err)
	}

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: empty response from gemini", ErrInferenceFailed)
	}

	return parseDetections([]byte(result.Text()))
}
