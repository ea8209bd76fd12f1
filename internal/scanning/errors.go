package scanning

import (
	"fmt"
)

// ConfigurationError means the extractor can't be built from its
// configuration, typically because the API credential is missing. It is
// fatal and never retried.
type ConfigurationError struct {
	Provider string
	Setting  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s is required", e.Provider, e.Setting)
}

// ServiceError wraps a network or API failure reported by the model
// provider.
type ServiceError struct {
	Provider string
	Err      error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s extraction request failed: %v", e.Provider, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// FormatError means the model answered but no JSON object could be recovered
// from its response. Raw holds the response text for diagnosis.
type FormatError struct {
	Raw string
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("model did not return JSON, output was:\n%s", e.Raw)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// ImageError means the upload could not be turned into an image the model
// accepts: a corrupt PDF or HEIC file, or bytes that don't decode when
// resizing. The input is at fault, so retrying the same file won't help.
type ImageError struct {
	Filename string
	Err      error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("preparing %s: %v", e.Filename, e.Err)
}

func (e *ImageError) Unwrap() error {
	return e.Err
}
