package providers

import (
	"context"
)

// Image is an inline image attached to a prompt
type Image struct {
	Data     []byte
	MIMEType string
}

// Config represents the configuration for an LLM provider
type Config struct {
	Model       string
	Temperature float64
	Prompt      string
	Images      []Image
	// JSON asks the backend to constrain its answer to a JSON object
	JSON bool
}

// Provider defines the interface for an LLM provider
type Provider interface {
	ExtractText(ctx context.Context, config Config) (string, error)
}

// MIMETypeOrDefault returns the image MIME type, defaulting to JPEG.
func (i Image) MIMETypeOrDefault() string {
	if i.MIMEType == "" {
		return "image/jpeg"
	}
	return i.MIMEType
}
