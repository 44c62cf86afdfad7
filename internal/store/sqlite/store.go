// Package sqlite is the embedded store backend. It keeps the whole expense
// model in a single database file and is the default for local deployments.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/akovalev/expenso/internal/domain"
	"github.com/akovalev/expenso/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS categories (
	id       TEXT NOT NULL,
	user_id  TEXT NOT NULL,
	name     TEXT NOT NULL,
	color    TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (user_id, id)
);

CREATE TABLE IF NOT EXISTS currency_settings (
	user_id  TEXT PRIMARY KEY,
	currency TEXT NOT NULL,
	locale   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	name         TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	amount       TEXT NOT NULL,
	tx_date      TEXT NOT NULL,
	receipt_url  TEXT NOT NULL DEFAULT '',
	category_id  TEXT NOT NULL,
	payment_type TEXT NOT NULL DEFAULT 'other',
	created_ts   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_transactions_user_date
	ON transactions (user_id, tx_date DESC);
`

// Store is the sqlite-backed implementation of store.Store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and bootstraps the schema.
// Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// EnsureDefaults seeds the fallback category and the default currency setting
// for users that have neither.
func (s *Store) EnsureDefaults(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO categories (id, user_id, name, color)
		VALUES (?, ?, 'General', '#9e9e9e')`,
		domain.FallbackCategoryID, userID)
	if err != nil {
		return fmt.Errorf("seed fallback category: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO currency_settings (user_id, currency, locale)
		VALUES (?, ?, ?)`,
		userID, store.DefaultCurrencySetting.Currency, store.DefaultCurrencySetting.Locale)
	if err != nil {
		return fmt.Errorf("seed currency setting: %w", err)
	}
	return nil
}

func (s *Store) ListCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, color FROM categories
		WHERE user_id = ?
		ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Color); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateCategory(ctx context.Context, userID string, c domain.Category) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, user_id, name, color)
		VALUES (?, ?, ?, ?)`,
		c.ID, userID, c.Name, c.Color)
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

func (s *Store) DeleteCategory(ctx context.Context, userID, categoryID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM categories WHERE user_id = ? AND id = ?`,
		userID, categoryID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetCurrencySetting(ctx context.Context, userID string) (domain.CurrencySetting, error) {
	var cs domain.CurrencySetting
	err := s.db.QueryRowContext(ctx, `
		SELECT currency, locale FROM currency_settings WHERE user_id = ?`,
		userID).Scan(&cs.Currency, &cs.Locale)
	if err == sql.ErrNoRows {
		return store.DefaultCurrencySetting, nil
	}
	if err != nil {
		return domain.CurrencySetting{}, fmt.Errorf("get currency setting: %w", err)
	}
	return cs, nil
}

func (s *Store) SetCurrencySetting(ctx context.Context, userID string, cs domain.CurrencySetting) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO currency_settings (user_id, currency, locale)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET currency = excluded.currency, locale = excluded.locale`,
		userID, cs.Currency, cs.Locale)
	if err != nil {
		return fmt.Errorf("set currency setting: %w", err)
	}
	return nil
}

func (s *Store) InsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	// A zero date (the user never filled it in) is stored as the empty
	// string so it round-trips and naturally falls outside any date window.
	dateStr := ""
	if tx.Date.IsValid() {
		dateStr = tx.Date.String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, name, description, amount, tx_date, receipt_url, category_id, payment_type, created_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.UserID, tx.Name, tx.Description, tx.Amount.String(), dateStr,
		tx.ReceiptURL, tx.CategoryID, string(tx.PaymentType), tx.CreatedTS)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, description, amount, tx_date, receipt_url, category_id, payment_type, created_ts
		FROM transactions
		WHERE user_id = ?
		ORDER BY tx_date DESC, created_ts DESC
		LIMIT ? OFFSET ?`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *Store) DeleteTransaction(ctx context.Context, userID, transactionID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM transactions WHERE user_id = ? AND id = ?`,
		userID, transactionID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SummarizeByCategory(ctx context.Context, userID string, from, to civil.Date) ([]domain.CategorySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category_id, amount FROM transactions
		WHERE user_id = ? AND tx_date >= ? AND tx_date <= ?`,
		userID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("summarize transactions: %w", err)
	}
	defer rows.Close()

	// Amounts are stored as decimal strings, so the totals are summed here
	// instead of in SQL to avoid float drift.
	totals := make(map[string]*domain.CategorySummary)
	var order []string
	for rows.Next() {
		var categoryID, amountStr string
		if err := rows.Scan(&categoryID, &amountStr); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("invalid stored amount %q: %w", amountStr, err)
		}
		sum, ok := totals[categoryID]
		if !ok {
			sum = &domain.CategorySummary{CategoryID: categoryID}
			totals[categoryID] = sum
			order = append(order, categoryID)
		}
		sum.Total = sum.Total.Add(amount)
		sum.Count++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.CategorySummary, 0, len(order))
	for _, id := range order {
		out = append(out, *totals[id])
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var (
		tx          domain.Transaction
		amountStr   string
		dateStr     string
		paymentType string
	)
	if err := row.Scan(&tx.ID, &tx.UserID, &tx.Name, &tx.Description, &amountStr,
		&dateStr, &tx.ReceiptURL, &tx.CategoryID, &paymentType, &tx.CreatedTS); err != nil {
		return domain.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("invalid stored amount %q: %w", amountStr, err)
	}
	tx.Amount = amount
	if dateStr != "" {
		date, err := civil.ParseDate(dateStr)
		if err != nil {
			return domain.Transaction{}, fmt.Errorf("invalid stored date %q: %w", dateStr, err)
		}
		tx.Date = date
	}
	tx.PaymentType = domain.PaymentType(paymentType)
	return tx, nil
}

var _ store.Store = (*Store)(nil)
