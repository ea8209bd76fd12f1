package pipeline

import (
	"time"

	"github.com/zombor/invoice-extractor/internal/scanning"
)

const (
	// DefaultOutputPath is the workbook used when neither the caller nor the
	// configuration names one.
	DefaultOutputPath = "outputs/invoices.xlsx"
	// DefaultTimeout bounds the model call.
	DefaultTimeout = 120 * time.Second
)

// Config is everything the pipeline needs to know up front. Zero values
// fall back to the defaults above and to the provider defaults in scanning.
type Config struct {
	OutputPath string
	Timeout    time.Duration
	Extraction scanning.Config
}

func (c Config) withDefaults() Config {
	if c.OutputPath == "" {
		c.OutputPath = DefaultOutputPath
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}
