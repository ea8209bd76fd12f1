package scanning

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements the Extractor interface using Google Gemini
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	maxDim int
}

// NewGemini creates a new Gemini Extractor instance
func NewGemini(cfg Config) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.WithHint(
			&ConfigurationError{Provider: ProviderGemini, Setting: "api key"},
			"set GEMINI_API_KEY (or --api-key) in the environment or .env file",
		)
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}

	client, err := genai.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating gemini client")
	}

	return &Gemini{
		client: client,
		model:  client.GenerativeModel(modelName),
		maxDim: cfg.MaxImageDimension,
	}, nil
}

// Extract analyzes an invoice image and returns the model's JSON object
func (g *Gemini) Extract(ctx context.Context, filename string, image []byte) (map[string]any, error) {
	payload, mimeType, err := prepareImage(filename, image, g.maxDim)
	if err != nil {
		return nil, err
	}

	// genai.ImageData expects just the format suffix (e.g., "png"), not the full MIME type
	parts := []genai.Part{
		genai.ImageData(formatOf(mimeType), payload),
		genai.Text(invoiceExtractionPrompt),
	}

	slog.Debug("Requesting invoice extraction", "provider", ProviderGemini, "mime_type", mimeType, "bytes", len(payload))

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, &ServiceError{Provider: ProviderGemini, Err: err}
	}

	var responseText strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if text, ok := part.(genai.Text); ok {
				responseText.WriteString(string(text))
			}
		}
	}

	return ParseResponse(responseText.String())
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
