package domain

import "testing"

func TestResolveCategoryID(t *testing.T) {
	categories := []Category{
		{ID: "food", Name: "Food", Color: "#ff0000"},
		{ID: "transport", Name: "Transport", Color: "#00ff00"},
	}

	tests := []struct {
		name     string
		category string
		want     string
	}{
		{name: "exact match", category: "Food", want: "food"},
		{name: "unknown name falls back", category: "Unknown", want: FallbackCategoryID},
		{name: "match is case-sensitive", category: "food", want: FallbackCategoryID},
		{name: "empty name falls back", category: "", want: FallbackCategoryID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveCategoryID(tt.category, categories)
			if got != tt.want {
				t.Errorf("ResolveCategoryID(%q) = %q, want %q", tt.category, got, tt.want)
			}
		})
	}
}

func TestPaymentTypeValid(t *testing.T) {
	for _, p := range []PaymentType{PaymentCredit, PaymentDebit, PaymentCash, PaymentOther} {
		if !p.Valid() {
			t.Errorf("PaymentType(%q).Valid() = false, want true", p)
		}
	}
	if PaymentType("wire").Valid() {
		t.Error("PaymentType(\"wire\").Valid() = true, want false")
	}
}
