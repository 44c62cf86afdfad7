package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// FallbackCategoryID is used when the model's category name does not match
// any category the user currently has.
const FallbackCategoryID = "general"

// PaymentType is how a transaction was paid.
type PaymentType string

const (
	PaymentCredit PaymentType = "credit"
	PaymentDebit  PaymentType = "debit"
	PaymentCash   PaymentType = "cash"
	PaymentOther  PaymentType = "other"
)

// Valid reports whether p is one of the known payment types.
func (p PaymentType) Valid() bool {
	switch p {
	case PaymentCredit, PaymentDebit, PaymentCash, PaymentOther:
		return true
	}
	return false
}

// Category is one user-defined expense category.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// CurrencySetting is the user's preferred currency and display locale.
type CurrencySetting struct {
	Currency string `json:"currency"`
	Locale   string `json:"locale"`
}

// ExtractionResult is the model's structured answer for one receipt image or
// voice memo. Success is false only on the audio path, when the recording
// contains no explicit amount; image extraction always reports success.
type ExtractionResult struct {
	Success      bool            `json:"success"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Date         string          `json:"date"`
	CategoryName string          `json:"categoryName"`
	PaymentType  PaymentType     `json:"paymentType"`
	Total        decimal.Decimal `json:"total"`
	URL          string          `json:"url,omitempty"`
}

// DraftTransaction is the user-editable result of one extraction. It is not
// persisted; the user confirms or discards it.
type DraftTransaction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Date        civil.Date      `json:"date"`
	ReceiptURL  string          `json:"receiptUrl,omitempty"`
	CategoryID  string          `json:"categoryId"`
	PaymentType PaymentType     `json:"paymentType"`
}

// Transaction is a confirmed, persisted expense.
type Transaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Date        civil.Date      `json:"date"`
	ReceiptURL  string          `json:"receiptUrl,omitempty"`
	CategoryID  string          `json:"categoryId"`
	PaymentType PaymentType     `json:"paymentType"`
	CreatedTS   time.Time       `json:"createdTs"`
}

// CategorySummary is the spend total for one category over a reporting window.
type CategorySummary struct {
	CategoryID string          `json:"categoryId"`
	Total      decimal.Decimal `json:"total"`
	Count      int64           `json:"count"`
}

// ResolveCategoryID maps the model's category name to the id of a category in
// the caller's live list. Matching is exact and case-sensitive; anything else
// falls back to FallbackCategoryID.
func ResolveCategoryID(name string, categories []Category) string {
	for _, c := range categories {
		if c.Name == name {
			return c.ID
		}
	}
	return FallbackCategoryID
}
