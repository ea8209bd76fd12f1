package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
)

// DefaultOllamaURL is used when no base URL is configured.
const DefaultOllamaURL = "http://localhost:11434"

// Ollama implements the Extractor interface using a local Ollama server.
// Recommended vision models: llava:1.6, llava:latest, qwen2-vl:7b.
type Ollama struct {
	baseURL string
	model   string
	maxDim  int
	client  *http.Client
}

// NewOllama creates a new Ollama Extractor instance. No credential is needed.
func NewOllama(cfg Config) (*Ollama, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOllamaModel
	}

	return &Ollama{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		maxDim:  cfg.MaxImageDimension,
		client:  &http.Client{},
	}, nil
}

// ollamaChatRequest represents the request body for Ollama's chat API
type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ollamaChatResponse represents the response from Ollama's chat API
type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Extract analyzes an invoice image and returns the model's JSON object
func (o *Ollama) Extract(ctx context.Context, filename string, image []byte) (map[string]any, error) {
	payload, mimeType, err := prepareImage(filename, image, o.maxDim)
	if err != nil {
		return nil, err
	}

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Format: "json",
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading and extracting information from invoices. You must carefully read all text in images and extract accurate information.",
			},
			{
				Role:    "user",
				Content: invoiceExtractionPrompt,
				Images:  []string{base64.StdEncoding.EncodeToString(payload)},
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling request")
	}

	slog.Debug("Requesting invoice extraction", "provider", ProviderOllama, "model", o.model, "mime_type", mimeType, "bytes", len(payload))

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &ServiceError{Provider: ProviderOllama, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &ServiceError{
			Provider: ProviderOllama,
			Err:      errors.Newf("ollama API error (status %d): %s", resp.StatusCode, string(body)),
		}
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, &ServiceError{Provider: ProviderOllama, Err: errors.Wrap(err, "decoding response")}
	}

	return ParseResponse(chatResp.Message.Content)
}

// Close closes the Ollama client (no-op for HTTP client)
func (o *Ollama) Close() error {
	return nil
}
