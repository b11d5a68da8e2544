// Package assist asks a vision model for a title, category and tags for a
// captured photo.
package assist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/lehigh-university-libraries/lifeindex/internal/gemini"
	"github.com/lehigh-university-libraries/lifeindex/internal/models"
	"github.com/lehigh-university-libraries/lifeindex/internal/ollama"
	"github.com/lehigh-university-libraries/lifeindex/internal/openai"
	"github.com/lehigh-university-libraries/lifeindex/internal/providers"
)

// ProviderConfig carries the endpoints and credentials of the supported
// backends.
type ProviderConfig struct {
	OllamaURL    string
	OpenAIKey    string
	OpenAIURL    string
	GeminiAPIKey string
}

// NewProvider returns the backend called name. "none" (or empty) returns a
// nil provider, which makes every analysis unavailable.
func NewProvider(name string, cfg ProviderConfig) (providers.Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ollama":
		return ollama.New(cfg.OllamaURL), nil
	case "openai":
		return openai.New(cfg.OpenAIKey, cfg.OpenAIURL), nil
	case "gemini":
		return gemini.New(cfg.GeminiAPIKey), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}

// DefaultModel returns the model used when none is configured.
func DefaultModel(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return "gpt-4o"
	case "ollama":
		return "mistral-small3.2:24b"
	case "gemini":
		return "gemini-1.5-flash"
	default:
		return ""
	}
}

// Service analyzes images with one provider and model.
type Service struct {
	provider    providers.Provider
	model       string
	temperature float64
	logger      *slog.Logger
}

// New returns a Service. A nil provider is allowed; Analyze then always
// reports models.ErrAssistUnavailable.
func New(provider providers.Provider, model string, temperature float64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		provider:    provider,
		model:       model,
		temperature: temperature,
		logger:      logger,
	}
}

// Analyze reads the image at imagePath and returns the model's proposal.
// Every failure, including ctx expiring, wraps models.ErrAssistUnavailable.
func (s *Service) Analyze(ctx context.Context, imagePath string) (models.Proposal, error) {
	if s == nil || s.provider == nil {
		return models.Proposal{}, fmt.Errorf("%w: no provider configured", models.ErrAssistUnavailable)
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return models.Proposal{}, fmt.Errorf("%w: failed to read image: %v", models.ErrAssistUnavailable, err)
	}

	raw, err := s.provider.ExtractText(ctx, providers.Config{
		Model:       s.model,
		Temperature: s.temperature,
		Prompt:      Prompt(),
		Images:      []providers.Image{{Data: data, MIMEType: http.DetectContentType(data)}},
		JSON:        true,
	})
	if err != nil {
		return models.Proposal{}, fmt.Errorf("%w: %v", models.ErrAssistUnavailable, err)
	}

	proposal, err := ParseProposal(raw)
	if err != nil {
		s.logger.Warn("Unparseable assist response", "model", s.model, "length", len(raw), "error", err)
		return models.Proposal{}, fmt.Errorf("%w: %v", models.ErrAssistUnavailable, err)
	}

	s.logger.Info("Analyzed image", "model", s.model, "title", proposal.Title, "confidence", proposal.Confidence)
	return proposal, nil
}

// Prompt is the instruction sent with every image.
func Prompt() string {
	return fmt.Sprintf(`You are cataloging the personal belongings of one household. Look at the photo and describe the single main object in it.

INSTRUCTIONS:
1. title: a short name for the object (2 to 5 words), e.g. "Blue Denim Shirt"
2. category: exactly one of %s. Use "%s" if none fits.
3. tags: 2 to 6 short lowercase keywords (color, material, brand, use)
4. confidence: a number between 0 and 1 for how sure you are of the title and category
5. description: one or two sentences about the object and its condition

OUTPUT FORMAT:
Respond with ONLY a JSON object:

{
  "title": "...",
  "category": "...",
  "tags": ["..."],
  "confidence": 0.0,
  "description": "..."
}`, strings.Join(quoted(models.Categories), ", "), models.CategoryOther)
}

func quoted(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == models.CategoryUncategorized {
			continue
		}
		out = append(out, `"`+v+`"`)
	}
	return out
}

// ParseProposal extracts a proposal from a model response. Markdown code
// fences and prose around the JSON object are ignored.
func ParseProposal(response string) (models.Proposal, error) {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end < start {
		return models.Proposal{}, fmt.Errorf("no JSON object in response")
	}

	var result struct {
		Title       string      `json:"title"`
		Category    string      `json:"category"`
		Tags        []string    `json:"tags"`
		Confidence  json.Number `json:"confidence"`
		Description string      `json:"description"`
	}
	if err := json.Unmarshal([]byte(response[start:end+1]), &result); err != nil {
		return models.Proposal{}, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	confidence, err := result.Confidence.Float64()
	if err != nil && result.Confidence != "" {
		return models.Proposal{}, fmt.Errorf("invalid confidence %q: %w", result.Confidence, err)
	}
	switch {
	case confidence < 0:
		confidence = 0
	case confidence > 1:
		confidence = 1
	}

	tags := make([]string, 0, len(result.Tags))
	for _, tag := range result.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}

	return models.Proposal{
		Title:       strings.TrimSpace(result.Title),
		Category:    models.NormalizeCategory(result.Category),
		Tags:        tags,
		Confidence:  confidence,
		Description: strings.TrimSpace(result.Description),
	}, nil
}
