package store

import (
	"context"
	"errors"

	"cloud.google.com/go/civil"

	"github.com/akovalev/expenso/internal/domain"
)

// ErrNotFound is returned when a record does not exist for the given user.
var ErrNotFound = errors.New("store: not found")

// CategoryStore is the caller's live category set.
type CategoryStore interface {
	// ListCategories returns all categories for the user.
	ListCategories(ctx context.Context, userID string) ([]domain.Category, error)

	// CreateCategory adds a category for the user.
	CreateCategory(ctx context.Context, userID string, c domain.Category) error

	// DeleteCategory removes a category by id.
	DeleteCategory(ctx context.Context, userID, categoryID string) error
}

// CurrencyStore holds the user's preferred currency and locale.
type CurrencyStore interface {
	// GetCurrencySetting returns the user's setting, or the USD default when
	// the user has never chosen one.
	GetCurrencySetting(ctx context.Context, userID string) (domain.CurrencySetting, error)

	// SetCurrencySetting replaces the user's setting.
	SetCurrencySetting(ctx context.Context, userID string, s domain.CurrencySetting) error
}

// TransactionStore persists confirmed transactions.
type TransactionStore interface {
	// InsertTransaction saves a confirmed transaction.
	InsertTransaction(ctx context.Context, tx *domain.Transaction) error

	// ListTransactions returns the user's transactions newest first.
	ListTransactions(ctx context.Context, userID string, limit, offset int) ([]domain.Transaction, error)

	// DeleteTransaction removes a transaction by id.
	DeleteTransaction(ctx context.Context, userID, transactionID string) error

	// SummarizeByCategory totals spending per category over [from, to].
	SummarizeByCategory(ctx context.Context, userID string, from, to civil.Date) ([]domain.CategorySummary, error)
}

// Store bundles the three collaborator stores behind one handle.
type Store interface {
	CategoryStore
	CurrencyStore
	TransactionStore

	// EnsureDefaults seeds the fallback category and default currency setting
	// for a user that has neither.
	EnsureDefaults(ctx context.Context, userID string) error

	Close() error
}

// DefaultCurrencySetting is used for users that never picked a currency.
var DefaultCurrencySetting = domain.CurrencySetting{Currency: "USD", Locale: "en-US"}
