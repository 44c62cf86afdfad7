package extract

import (
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/akovalev/expenso/internal/media"
)

// Field semantics below must stay stable: they are what keeps the model from
// fabricating titles, misreading day/month order, or inventing transactions
// from silent recordings.

const (
	descTitleImage = "Carefully analyze the attached receipt image. Detect and extract the main title - typically the store name, or if not available, a key product name. Ensure the result is concise and accurately reflects the most prominent text."
	descTitleAudio = "If the audio explicitly mentions a store name, extract it. If not, extract the name of the product, service, or transaction purpose mentioned. Do not guess or assume anything not directly stated in the audio."

	descDescriptionImage = "Analyze the receipt description carefully. Extract and identify each item purchased, along with its main category if available. Reformat the receipt into multiple lines, listing one item per line, for clear and easy reading."
	descDescriptionAudio = "Only list items that are explicitly mentioned in the audio. If no items are mentioned, return an empty string. Do not make assumptions about items."

	descDateImage = "Extract the transaction date from the receipt. Interpret it correctly based on local date format (e.g., DD.MM.YY) and convert it to ISO format: YYYY-MM-DD. Ensure the year is accurate and not misread as the day or month."
	descDateAudio = "Only extract the date if explicitly mentioned in the audio. If no date is mentioned, return an empty string. Do not guess or assume dates."

	descPaymentImage = "Payment type"
	descPaymentAudio = "Only specify payment type if explicitly mentioned in the audio. If not mentioned, return 'other'. Do not make assumptions about payment method."

	descSuccessAudio = "Return false if the audio is empty, unclear, or contains no mention of any price, total cost, or number related to spending. Return true only if there is a clear indication of a transaction with a specific amount."
)

var paymentTypes = []string{"credit", "debit", "cash", "other"}

// BuildSchema constructs the per-request response schema for one extraction.
// It is built fresh every call from the caller's live category names and
// currency setting, so the model can only answer with a category the caller
// can resolve and an amount in the caller's currency.
func BuildSchema(categoryNames []string, currency string, kind media.Kind) *genai.Schema {
	audio := kind == media.KindAudio

	categoryDesc := "The main category of the transaction, default to 'general' if not available. The category must be one of the following: " + strings.Join(categoryNames, ", ")
	if audio {
		categoryDesc = "Only specify a category if the transaction type is clearly mentioned in the audio. If not clear, return 'general'. The category must be one of the following: " + strings.Join(categoryNames, ", ")
	}

	totalDesc := fmt.Sprintf("Extract the total amount. The amount should be in %s currency format. Return it as a full numeric value exactly as shown, without converting it to a decimal or changing its format. Do not round or shorten the number.", currency)
	if audio {
		totalDesc = fmt.Sprintf("Only extract the total amount if explicitly mentioned in the audio. If no amount is mentioned, return 0. When an amount is mentioned, it should be in %s currency format. Return it as a full numeric value exactly as shown, without converting it to a decimal or changing its format. Do not round or shorten the number.", currency)
	}

	schema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title": {
				Type:        genai.TypeString,
				Description: pick(audio, descTitleAudio, descTitleImage),
			},
			"description": {
				Type:        genai.TypeString,
				Description: pick(audio, descDescriptionAudio, descDescriptionImage),
			},
			"date": {
				Type:        genai.TypeString,
				Description: pick(audio, descDateAudio, descDateImage),
			},
			"categoryName": {
				Type:        genai.TypeString,
				Description: categoryDesc,
			},
			"paymentType": {
				Type:        genai.TypeString,
				Enum:        paymentTypes,
				Description: pick(audio, descPaymentAudio, descPaymentImage),
			},
			"total": {
				Type:        genai.TypeNumber,
				Description: totalDesc,
			},
		},
		Required: []string{"title", "description", "date", "categoryName", "paymentType", "total"},
	}

	if audio {
		schema.Properties["success"] = &genai.Schema{
			Type:        genai.TypeBoolean,
			Description: descSuccessAudio,
		}
		schema.Required = append(schema.Required, "success")
	}

	return schema
}

// ValidationSchema mirrors BuildSchema as a plain JSON-Schema document, used
// to verify the decoded model output before it is trusted.
func ValidationSchema(kind media.Kind) map[string]any {
	required := []any{"title", "description", "date", "categoryName", "paymentType", "total"}
	properties := map[string]any{
		"title":        map[string]any{"type": "string"},
		"description":  map[string]any{"type": "string"},
		"date":         map[string]any{"type": "string"},
		"categoryName": map[string]any{"type": "string"},
		"paymentType":  map[string]any{"type": "string", "enum": toAnySlice(paymentTypes)},
		"total":        map[string]any{"type": "number"},
		"success":      map[string]any{"type": "boolean"},
		"url":          map[string]any{"type": "string"},
	}
	if kind == media.KindAudio {
		required = append(required, "success")
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// Instruction returns the user-facing prompt text that accompanies the media
// part.
func Instruction(currency string, kind media.Kind) string {
	if kind == media.KindAudio {
		return fmt.Sprintf("Analyze the attached audio file. Extract key details about a transaction ONLY if there is a clear mention of a price or total amount. If no price or amount is mentioned, return success: false. The amount should be interpreted in %s currency format. Do not make assumptions or generate placeholder data when no clear transaction is detected.", currency)
	}
	return fmt.Sprintf("Analyze the attached receipt image. Extract key details. The receipt amount should be interpreted in %s currency format.", currency)
}

func pick(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
