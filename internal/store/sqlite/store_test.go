package sqlite

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/akovalev/expenso/internal/domain"
	"github.com/akovalev/expenso/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnsureDefaults(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.EnsureDefaults(ctx, "user-1"); err != nil {
		t.Fatalf("EnsureDefaults() error = %v", err)
	}
	// Second call must be a no-op, not an error.
	if err := s.EnsureDefaults(ctx, "user-1"); err != nil {
		t.Fatalf("EnsureDefaults() second call error = %v", err)
	}

	categories, err := s.ListCategories(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListCategories() error = %v", err)
	}
	if len(categories) != 1 || categories[0].ID != domain.FallbackCategoryID {
		t.Errorf("seeded categories = %+v, want single %q category", categories, domain.FallbackCategoryID)
	}

	setting, err := s.GetCurrencySetting(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetCurrencySetting() error = %v", err)
	}
	if setting != store.DefaultCurrencySetting {
		t.Errorf("seeded setting = %+v, want %+v", setting, store.DefaultCurrencySetting)
	}
}

func TestCategoryCRUD(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateCategory(ctx, "user-1", domain.Category{ID: "food", Name: "Food", Color: "#f00"}); err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}
	if err := s.CreateCategory(ctx, "user-2", domain.Category{ID: "food", Name: "Comida", Color: "#0f0"}); err != nil {
		t.Fatalf("CreateCategory() for second user error = %v", err)
	}

	categories, err := s.ListCategories(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListCategories() error = %v", err)
	}
	if len(categories) != 1 || categories[0].Name != "Food" {
		t.Errorf("ListCategories() = %+v, want only user-1's Food", categories)
	}

	if err := s.DeleteCategory(ctx, "user-1", "food"); err != nil {
		t.Fatalf("DeleteCategory() error = %v", err)
	}
	if err := s.DeleteCategory(ctx, "user-1", "food"); err != store.ErrNotFound {
		t.Errorf("DeleteCategory() second call error = %v, want ErrNotFound", err)
	}
}

func TestCurrencySettingRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Unset users get the default.
	setting, err := s.GetCurrencySetting(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetCurrencySetting() error = %v", err)
	}
	if setting != store.DefaultCurrencySetting {
		t.Errorf("GetCurrencySetting() = %+v, want default", setting)
	}

	want := domain.CurrencySetting{Currency: "IDR", Locale: "id-ID"}
	if err := s.SetCurrencySetting(ctx, "user-1", want); err != nil {
		t.Fatalf("SetCurrencySetting() error = %v", err)
	}
	// Overwrite must work too.
	want = domain.CurrencySetting{Currency: "EUR", Locale: "de-DE"}
	if err := s.SetCurrencySetting(ctx, "user-1", want); err != nil {
		t.Fatalf("SetCurrencySetting() overwrite error = %v", err)
	}

	setting, err = s.GetCurrencySetting(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetCurrencySetting() error = %v", err)
	}
	if setting != want {
		t.Errorf("GetCurrencySetting() = %+v, want %+v", setting, want)
	}
}

func newTestTransaction(id, userID, categoryID, amount, date string) *domain.Transaction {
	amt, _ := decimal.NewFromString(amount)
	d, _ := civil.ParseDate(date)
	return &domain.Transaction{
		ID:          id,
		UserID:      userID,
		Name:        "tx " + id,
		Amount:      amt,
		Date:        d,
		CategoryID:  categoryID,
		PaymentType: domain.PaymentCash,
		CreatedTS:   time.Now().UTC(),
	}
}

func TestTransactionListPagination(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, tx := range []*domain.Transaction{
		newTestTransaction("t1", "user-1", "food", "10", "2024-03-01"),
		newTestTransaction("t2", "user-1", "food", "20", "2024-03-02"),
		newTestTransaction("t3", "user-1", "food", "30", "2024-03-03"),
		newTestTransaction("t4", "user-2", "food", "40", "2024-03-04"),
	} {
		if err := s.InsertTransaction(ctx, tx); err != nil {
			t.Fatalf("InsertTransaction(%s) error = %v", tx.ID, err)
		}
	}

	page, err := s.ListTransactions(ctx, "user-1", 2, 0)
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(page) != 2 || page[0].ID != "t3" || page[1].ID != "t2" {
		t.Errorf("first page = %+v, want [t3 t2]", ids(page))
	}

	page, err = s.ListTransactions(ctx, "user-1", 2, 2)
	if err != nil {
		t.Fatalf("ListTransactions() second page error = %v", err)
	}
	if len(page) != 1 || page[0].ID != "t1" {
		t.Errorf("second page = %v, want [t1]", ids(page))
	}

	if page[0].Amount.String() != "10" {
		t.Errorf("Amount round-trip = %s, want 10", page[0].Amount)
	}
	if page[0].Date.String() != "2024-03-01" {
		t.Errorf("Date round-trip = %s, want 2024-03-01", page[0].Date)
	}
}

func TestDeleteTransaction(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InsertTransaction(ctx, newTestTransaction("t1", "user-1", "food", "10", "2024-03-01")); err != nil {
		t.Fatalf("InsertTransaction() error = %v", err)
	}
	if err := s.DeleteTransaction(ctx, "user-2", "t1"); err != store.ErrNotFound {
		t.Errorf("DeleteTransaction() by wrong user error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteTransaction(ctx, "user-1", "t1"); err != nil {
		t.Errorf("DeleteTransaction() error = %v", err)
	}
}

func TestSummarizeByCategory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, tx := range []*domain.Transaction{
		newTestTransaction("t1", "user-1", "food", "10.50", "2024-03-01"),
		newTestTransaction("t2", "user-1", "food", "4.25", "2024-03-15"),
		newTestTransaction("t3", "user-1", "transport", "7", "2024-03-20"),
		newTestTransaction("t4", "user-1", "food", "99", "2024-04-01"), // outside window
	} {
		if err := s.InsertTransaction(ctx, tx); err != nil {
			t.Fatalf("InsertTransaction(%s) error = %v", tx.ID, err)
		}
	}

	from, _ := civil.ParseDate("2024-03-01")
	to, _ := civil.ParseDate("2024-03-31")
	summaries, err := s.SummarizeByCategory(ctx, "user-1", from, to)
	if err != nil {
		t.Fatalf("SummarizeByCategory() error = %v", err)
	}

	got := make(map[string]domain.CategorySummary)
	for _, sum := range summaries {
		got[sum.CategoryID] = sum
	}
	if len(got) != 2 {
		t.Fatalf("SummarizeByCategory() returned %d categories, want 2", len(got))
	}
	if food := got["food"]; food.Total.String() != "14.75" || food.Count != 2 {
		t.Errorf("food summary = %+v, want total 14.75 count 2", food)
	}
	if transport := got["transport"]; transport.Total.String() != "7" || transport.Count != 1 {
		t.Errorf("transport summary = %+v, want total 7 count 1", transport)
	}
}

func ids(txs []domain.Transaction) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.ID
	}
	return out
}
