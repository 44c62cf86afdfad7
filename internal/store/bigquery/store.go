// Package bigquery is the warehouse store backend, for deployments that keep
// the expense model in BigQuery instead of an embedded database.
package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"

	"github.com/akovalev/expenso/internal/domain"
	"github.com/akovalev/expenso/internal/store"
)

const (
	categoriesTable   = "categories"
	settingsTable     = "currency_settings"
	transactionsTable = "transactions"
)

// CategoryRow mirrors the categories table schema.
type CategoryRow struct {
	CategoryID string `bigquery:"category_id"`
	UserID     string `bigquery:"user_id"`
	Name       string `bigquery:"name"`
	Color      string `bigquery:"color"`
}

// TransactionRow mirrors the transactions table schema. Amounts are stored as
// decimal strings to keep full precision.
type TransactionRow struct {
	TransactionID string     `bigquery:"transaction_id"`
	UserID        string     `bigquery:"user_id"`
	Name          string     `bigquery:"name"`
	Description   string     `bigquery:"description"`
	Amount        string     `bigquery:"amount"`
	TxDate        civil.Date `bigquery:"tx_date"`
	ReceiptURL    string     `bigquery:"receipt_url"`
	CategoryID    string     `bigquery:"category_id"`
	PaymentType   string     `bigquery:"payment_type"`
	CreatedTS     time.Time  `bigquery:"created_ts"`
}

// Store is the BigQuery-backed implementation of store.Store. It holds a
// shared client to avoid creating a new connection for each operation.
type Store struct {
	client  *bigquery.Client
	dataset string
}

// New creates a Store with a shared BigQuery client.
func New(ctx context.Context, projectID, dataset string) (*Store, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("bigquery client: %w", err)
	}
	return &Store{client: client, dataset: dataset}, nil
}

// Close closes the BigQuery client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// EnsureDefaults seeds the fallback category and default currency setting for
// a new user.
func (s *Store) EnsureDefaults(ctx context.Context, userID string) error {
	categories, err := s.ListCategories(ctx, userID)
	if err != nil {
		return err
	}
	hasFallback := false
	for _, c := range categories {
		if c.ID == domain.FallbackCategoryID {
			hasFallback = true
			break
		}
	}
	if !hasFallback {
		err := s.CreateCategory(ctx, userID, domain.Category{
			ID:    domain.FallbackCategoryID,
			Name:  "General",
			Color: "#9e9e9e",
		})
		if err != nil {
			return err
		}
	}

	q := s.client.Query(fmt.Sprintf(`
		INSERT %s.%s (user_id, currency, locale)
		SELECT @user_id, @currency, @locale
		FROM (SELECT 1)
		WHERE NOT EXISTS (
			SELECT 1 FROM %s.%s WHERE user_id = @user_id
		)
	`, s.dataset, settingsTable, s.dataset, settingsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "currency", Value: store.DefaultCurrencySetting.Currency},
		{Name: "locale", Value: store.DefaultCurrencySetting.Locale},
	}
	return s.runAndWait(ctx, q, "EnsureDefaults")
}

func (s *Store) ListCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT category_id, user_id, name, color
		FROM %s.%s
		WHERE user_id = @user_id
		ORDER BY name
	`, s.dataset, categoriesTable))
	q.Parameters = []bigquery.QueryParameter{{Name: "user_id", Value: userID}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListCategories: query read: %w", err)
	}

	var out []domain.Category
	for {
		var r CategoryRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListCategories: iter next: %w", err)
		}
		out = append(out, domain.Category{ID: r.CategoryID, Name: r.Name, Color: r.Color})
	}
	return out, nil
}

func (s *Store) CreateCategory(ctx context.Context, userID string, c domain.Category) error {
	inserter := s.client.Dataset(s.dataset).Table(categoriesTable).Inserter()
	row := &CategoryRow{CategoryID: c.ID, UserID: userID, Name: c.Name, Color: c.Color}
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("CreateCategory: inserting row: %w", err)
	}
	return nil
}

func (s *Store) DeleteCategory(ctx context.Context, userID, categoryID string) error {
	q := s.client.Query(fmt.Sprintf(`
		DELETE FROM %s.%s
		WHERE user_id = @user_id AND category_id = @category_id
	`, s.dataset, categoriesTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "category_id", Value: categoryID},
	}
	return s.deleteOne(ctx, q, "DeleteCategory")
}

func (s *Store) GetCurrencySetting(ctx context.Context, userID string) (domain.CurrencySetting, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT currency, locale
		FROM %s.%s
		WHERE user_id = @user_id
		LIMIT 1
	`, s.dataset, settingsTable))
	q.Parameters = []bigquery.QueryParameter{{Name: "user_id", Value: userID}}

	it, err := q.Read(ctx)
	if err != nil {
		return domain.CurrencySetting{}, fmt.Errorf("GetCurrencySetting: query read: %w", err)
	}

	var r struct {
		Currency string `bigquery:"currency"`
		Locale   string `bigquery:"locale"`
	}
	err = it.Next(&r)
	if err == iterator.Done {
		return store.DefaultCurrencySetting, nil
	}
	if err != nil {
		return domain.CurrencySetting{}, fmt.Errorf("GetCurrencySetting: iter next: %w", err)
	}
	return domain.CurrencySetting{Currency: r.Currency, Locale: r.Locale}, nil
}

func (s *Store) SetCurrencySetting(ctx context.Context, userID string, cs domain.CurrencySetting) error {
	q := s.client.Query(fmt.Sprintf(`
		MERGE %s.%s t
		USING (SELECT @user_id AS user_id, @currency AS currency, @locale AS locale) v
		ON t.user_id = v.user_id
		WHEN MATCHED THEN UPDATE SET currency = v.currency, locale = v.locale
		WHEN NOT MATCHED THEN INSERT (user_id, currency, locale) VALUES (v.user_id, v.currency, v.locale)
	`, s.dataset, settingsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "currency", Value: cs.Currency},
		{Name: "locale", Value: cs.Locale},
	}
	return s.runAndWait(ctx, q, "SetCurrencySetting")
}

func (s *Store) InsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	inserter := s.client.Dataset(s.dataset).Table(transactionsTable).Inserter()
	row := &TransactionRow{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		Name:          tx.Name,
		Description:   tx.Description,
		Amount:        tx.Amount.String(),
		TxDate:        tx.Date,
		ReceiptURL:    tx.ReceiptURL,
		CategoryID:    tx.CategoryID,
		PaymentType:   string(tx.PaymentType),
		CreatedTS:     tx.CreatedTS,
	}
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("InsertTransaction: inserting row: %w", err)
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	q := s.client.Query(fmt.Sprintf(`
		SELECT transaction_id, user_id, name, description, amount, tx_date,
		       receipt_url, category_id, payment_type, created_ts
		FROM %s.%s
		WHERE user_id = @user_id
		ORDER BY tx_date DESC, created_ts DESC
		LIMIT @limit OFFSET @offset
	`, s.dataset, transactionsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "limit", Value: int64(limit)},
		{Name: "offset", Value: int64(offset)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: query read: %w", err)
	}

	var out []domain.Transaction
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListTransactions: iter next: %w", err)
		}
		tx, err := rowToTransaction(&r)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, userID, transactionID string) error {
	q := s.client.Query(fmt.Sprintf(`
		DELETE FROM %s.%s
		WHERE user_id = @user_id AND transaction_id = @transaction_id
	`, s.dataset, transactionsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "transaction_id", Value: transactionID},
	}
	return s.deleteOne(ctx, q, "DeleteTransaction")
}

func (s *Store) SummarizeByCategory(ctx context.Context, userID string, from, to civil.Date) ([]domain.CategorySummary, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT category_id, amount
		FROM %s.%s
		WHERE user_id = @user_id AND tx_date >= @from_date AND tx_date <= @to_date
	`, s.dataset, transactionsTable))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "from_date", Value: from},
		{Name: "to_date", Value: to},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("SummarizeByCategory: query read: %w", err)
	}

	totals := make(map[string]*domain.CategorySummary)
	var order []string
	for {
		var r struct {
			CategoryID string `bigquery:"category_id"`
			Amount     string `bigquery:"amount"`
		}
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("SummarizeByCategory: iter next: %w", err)
		}
		amount, err := decimal.NewFromString(r.Amount)
		if err != nil {
			return nil, fmt.Errorf("SummarizeByCategory: invalid stored amount %q: %w", r.Amount, err)
		}
		sum, ok := totals[r.CategoryID]
		if !ok {
			sum = &domain.CategorySummary{CategoryID: r.CategoryID}
			totals[r.CategoryID] = sum
			order = append(order, r.CategoryID)
		}
		sum.Total = sum.Total.Add(amount)
		sum.Count++
	}

	out := make([]domain.CategorySummary, 0, len(order))
	for _, id := range order {
		out = append(out, *totals[id])
	}
	return out, nil
}

func (s *Store) runAndWait(ctx context.Context, q *bigquery.Query, op string) error {
	_, err := s.runDML(ctx, q, op)
	return err
}

// deleteOne runs a DELETE and maps "no rows matched" to store.ErrNotFound,
// matching the embedded backend.
func (s *Store) deleteOne(ctx context.Context, q *bigquery.Query, op string) error {
	status, err := s.runDML(ctx, q, op)
	if err != nil {
		return err
	}
	if dmlAffectedRows(status) == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) runDML(ctx context.Context, q *bigquery.Query, op string) (*bigquery.JobStatus, error) {
	job, err := q.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: running query: %w", op, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: waiting for job: %w", op, err)
	}
	if err := status.Err(); err != nil {
		return nil, fmt.Errorf("%s: job error: %w", op, err)
	}
	return status, nil
}

// dmlAffectedRows reports the DML row count of a finished job, or -1 when
// the statistics are unavailable. Callers treat the unknown count as a
// match so that missing statistics never surface as a spurious not-found.
func dmlAffectedRows(status *bigquery.JobStatus) int64 {
	if status == nil || status.Statistics == nil {
		return -1
	}
	stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics)
	if !ok {
		return -1
	}
	return stats.NumDMLAffectedRows
}

func rowToTransaction(r *TransactionRow) (domain.Transaction, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("invalid stored amount %q: %w", r.Amount, err)
	}
	return domain.Transaction{
		ID:          r.TransactionID,
		UserID:      r.UserID,
		Name:        r.Name,
		Description: r.Description,
		Amount:      amount,
		Date:        r.TxDate,
		ReceiptURL:  r.ReceiptURL,
		CategoryID:  r.CategoryID,
		PaymentType: domain.PaymentType(r.PaymentType),
		CreatedTS:   r.CreatedTS,
	}, nil
}

var _ store.Store = (*Store)(nil)
