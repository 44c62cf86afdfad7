package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"

	"github.com/akovalev/expenso/internal/domain"
	"github.com/akovalev/expenso/internal/media"
)

// InferenceError reports a model call that failed or produced output that
// does not conform to the requested schema.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed: %v", e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// decodeResult turns raw model text into a validated ExtractionResult.
// The text is fence-cleaned, decoded, checked against the mirrored JSON
// schema, and only then mapped into the domain type. The image path has no
// success field; it defaults to true because an uploaded receipt is always an
// attempted transaction.
func decodeResult(raw string, kind media.Kind) (domain.ExtractionResult, error) {
	clean := cleanModelJSON(raw)

	if err := validateAgainstSchema(ValidationSchema(kind), []byte(clean)); err != nil {
		return domain.ExtractionResult{}, &InferenceError{Err: err}
	}

	var payload struct {
		Success      *bool       `json:"success"`
		Title        string      `json:"title"`
		Description  string      `json:"description"`
		Date         string      `json:"date"`
		CategoryName string      `json:"categoryName"`
		PaymentType  string      `json:"paymentType"`
		Total        json.Number `json:"total"`
		URL          string      `json:"url"`
	}

	dec := json.NewDecoder(strings.NewReader(clean))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return domain.ExtractionResult{}, &InferenceError{Err: fmt.Errorf("unmarshal model output: %w", err)}
	}

	total, err := decimal.NewFromString(payload.Total.String())
	if err != nil {
		return domain.ExtractionResult{}, &InferenceError{Err: fmt.Errorf("invalid total %q: %w", payload.Total, err)}
	}

	success := true
	if payload.Success != nil {
		success = *payload.Success
	}

	paymentType := domain.PaymentType(payload.PaymentType)
	if !paymentType.Valid() {
		paymentType = domain.PaymentOther
	}

	return domain.ExtractionResult{
		Success:      success,
		Title:        payload.Title,
		Description:  payload.Description,
		Date:         payload.Date,
		CategoryName: payload.CategoryName,
		PaymentType:  paymentType,
		Total:        total,
		URL:          payload.URL,
	}, nil
}

// validateAgainstSchema validates data against the schema document.
func validateAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("model output does not match schema: %w", err)
	}
	return nil
}

// cleanModelJSON strips Markdown fences and surrounding junk the model may
// emit despite the JSON response mode.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	// Extra safety: keep only from the first '{' to the last '}'.
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
