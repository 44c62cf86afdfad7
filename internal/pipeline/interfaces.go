package pipeline

import (
	"context"

	"github.com/akovalev/expenso/internal/domain"
	"github.com/akovalev/expenso/internal/extract"
	"github.com/akovalev/expenso/internal/media"
)

// MediaPreparer validates and normalizes uploaded media.
type MediaPreparer interface {
	Validate(mimeType string, size int64, kind media.Kind) error
	Prepare(ctx context.Context, raw media.RawMedia, kind media.Kind) (media.PreparedMedia, error)
}

// Uploader pushes a prepared blob to durable storage and returns its public
// URL. Uploads are content-addressed per user so re-uploads are idempotent.
type Uploader interface {
	Upload(ctx context.Context, data []byte, userID, contentType string) (string, error)
}

// Extractor sends prepared media to the inference model with a per-request
// schema and returns the structured result.
type Extractor interface {
	Extract(ctx context.Context, prepared media.PreparedMedia, req extract.Request) (domain.ExtractionResult, error)
}

// CategorySource is the caller's live category list.
type CategorySource interface {
	ListCategories(ctx context.Context, userID string) ([]domain.Category, error)
}

// CurrencySource is the caller's currency setting.
type CurrencySource interface {
	GetCurrencySetting(ctx context.Context, userID string) (domain.CurrencySetting, error)
}
