package llm

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/yoockh/callrelay/internal/models"
)

// Extractor pulls structured customer details out of a call transcript.
// raw is the model's JSON output as received.
type Extractor interface {
	Extract(ctx context.Context, transcript string) (details *models.CustomerDetails, raw []byte, err error)
	Close() error
}

const schemaName = "customer_details_extraction"

func extractionPrompt(today string) string {
	return "Extract customer details: name, availability, and any special notes from the transcript " +
		"(you can add the customer's problem to the special notes). Return customer's availability " +
		"as a date in ISO 8601 format. Today's date is " + today
}

// customerDetailsSchema is strict-mode compatible: every property required, no extras.
func customerDetailsSchema() *jsonschema.Schema {
	str := func() *jsonschema.Schema { return &jsonschema.Schema{Type: "string"} }
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"customerName":         str(),
			"customerAvailability": str(),
			"specialNotes":         str(),
		},
		Required:             []string{"customerName", "customerAvailability", "specialNotes"},
		AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}}, // false schema
	}
}
