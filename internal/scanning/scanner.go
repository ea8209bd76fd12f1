package scanning

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
)

// Supported model providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// Default models per provider.
const (
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultGeminiModel = "gemini-2.5-pro"
	DefaultOllamaModel = "llava"
)

// Extractor sends one invoice image to a vision model and returns the JSON
// object it recovered from the answer.
type Extractor interface {
	// Extract makes a single synchronous model call. filename is only used
	// to infer the image MIME type.
	Extract(ctx context.Context, filename string, image []byte) (map[string]any, error)
	// Close releases the client's resources
	Close() error
}

// Config selects and configures an Extractor.
type Config struct {
	// Provider is one of ProviderOpenAI (default), ProviderGemini or
	// ProviderOllama.
	Provider string
	// APIKey is required for OpenAI and Gemini.
	APIKey string
	// Model defaults per provider when empty.
	Model string
	// BaseURL overrides the provider endpoint (an OpenAI-compatible API
	// root, or the Ollama server).
	BaseURL string
	// MaxImageDimension downscales images whose width or height exceeds it.
	// Zero disables resizing.
	MaxImageDimension int
}

// New builds the Extractor named by cfg.Provider.
func New(cfg Config) (Extractor, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI:
		return NewOpenAI(cfg)
	case ProviderGemini:
		return NewGemini(cfg)
	case ProviderOllama:
		return NewOllama(cfg)
	default:
		return nil, errors.WithHintf(
			errors.Newf("unknown extraction provider %q", cfg.Provider),
			"valid providers are %s, %s and %s", ProviderOpenAI, ProviderGemini, ProviderOllama,
		)
	}
}

// invoiceExtractionPrompt is the fixed prompt shared by all providers.
const invoiceExtractionPrompt = `You are an invoice data extraction engine.

TASK:
Extract invoice details from the provided invoice image and return ONLY valid JSON.
Do NOT add any commentary, markdown, or extra keys.

OUTPUT JSON SCHEMA (exact keys):
{
  "invoice_number": string|null,
  "invoice_date": string|null,
  "email": string|null,

  "billed_by": string|null,
  "billed_by_address": string|null,

  "billed_to": string|null,
  "billed_to_address": string|null,

  "currency": string|null,
  "subtotal": number|null,
  "tax": number|null,
  "total": number|null,

  "items": [
    {"item": string, "quantity": number|null, "rate": number|null, "amount": number|null}
  ]
}

RULES:
- If a field is missing, use null.
- Always return "items" as an array (empty array if none).
- Numbers must be raw numbers (no commas, no currency symbol). Example: "₹3,000.00" -> 3000.00
- Keep invoice_date as the same text you see (we will normalize later).`
