package scanning

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/sashabaranov/go-openai"
)

// OpenAI implements the Extractor interface using an OpenAI-compatible chat
// completions API. The image is inlined as a base64 data URI.
type OpenAI struct {
	client *openai.Client
	model  string
	maxDim int
}

// NewOpenAI creates a new OpenAI Extractor instance
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.WithHint(
			&ConfigurationError{Provider: ProviderOpenAI, Setting: "api key"},
			"set OPENAI_API_KEY (or --api-key) in the environment or .env file",
		)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		maxDim: cfg.MaxImageDimension,
	}, nil
}

// Extract analyzes an invoice image and returns the model's JSON object
func (o *OpenAI) Extract(ctx context.Context, filename string, image []byte) (map[string]any, error) {
	payload, mimeType, err := prepareImage(filename, image, o.maxDim)
	if err != nil {
		return nil, err
	}

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: invoiceExtractionPrompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    DataURL(mimeType, payload),
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	}

	slog.Debug("Requesting invoice extraction", "provider", ProviderOpenAI, "model", o.model, "mime_type", mimeType, "bytes", len(payload))

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, &ServiceError{Provider: ProviderOpenAI, Err: err}
	}

	var text string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}

	return ParseResponse(text)
}

// Close is a no-op; the HTTP client holds no resources
func (o *OpenAI) Close() error {
	return nil
}
