package extract

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/akovalev/expenso/internal/domain"
	"github.com/akovalev/expenso/internal/media"
)

// DefaultModelName is the default Gemini model used for extraction.
const DefaultModelName = "gemini-2.5-flash"

// Request carries the caller state one extraction is constrained by.
// Category names and currency are explicit parameters on purpose: they are
// per-user, per-request state and must never be read from ambient context.
type Request struct {
	CategoryNames []string
	Currency      string
	Kind          media.Kind
}

// GeminiExtractor sends prepared media to Gemini with a per-request response
// schema and decodes the structured answer.
type GeminiExtractor struct {
	client *genai.Client
	model  string
}

// NewGeminiExtractor creates an extractor backed by a shared GenAI client.
// An empty apiKey falls back to the GEMINI_API_KEY environment variable.
func NewGeminiExtractor(ctx context.Context, model, apiKey string) (*GeminiExtractor, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiExtractor{client: client, model: model}, nil
}

// Extract makes one GenerateContent call with the media payload and the
// schema built from req, and returns the validated result. There is no local
// persistence and no retry; a failed call surfaces as InferenceError.
func (g *GeminiExtractor) Extract(ctx context.Context, prepared media.PreparedMedia, req Request) (domain.ExtractionResult, error) {
	schema := BuildSchema(req.CategoryNames, req.Currency, req.Kind)

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: Instruction(req.Currency, req.Kind)},
				{
					InlineData: &genai.Blob{
						MIMEType: prepared.MIMEType,
						Data:     prepared.Data,
					},
				},
			},
		},
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return domain.ExtractionResult{}, &InferenceError{Err: fmt.Errorf("generate content: %w", err)}
	}

	rawText := resp.Text()
	if rawText == "" {
		return domain.ExtractionResult{}, &InferenceError{Err: fmt.Errorf("empty response from model")}
	}

	return decodeResult(rawText, req.Kind)
}
