package pipeline

import (
	"cloud.google.com/go/civil"

	"github.com/akovalev/expenso/internal/domain"
)

// buildDraft maps a merged extraction result into the user-editable draft.
// The category id is resolved against the caller's live list with a
// case-sensitive exact name match; unknown names fall back to the well-known
// fallback id and the category store re-validates at save time.
func buildDraft(result domain.ExtractionResult, receiptURL string, categories []domain.Category) domain.DraftTransaction {
	draft := domain.DraftTransaction{
		Name:        result.Title,
		Description: result.Description,
		Amount:      result.Total,
		ReceiptURL:  receiptURL,
		CategoryID:  domain.ResolveCategoryID(result.CategoryName, categories),
		PaymentType: result.PaymentType,
	}

	// The audio path may legitimately return an empty date; the user fills
	// it in on the edit form. Anything unparseable is treated the same way.
	if date, err := civil.ParseDate(result.Date); err == nil {
		draft.Date = date
	}

	return draft
}
