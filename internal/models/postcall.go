package models

import "time"

// PostCall is what the relay hands over once the inbound stream closes.
type PostCall struct {
	SessionID  string
	CallSID    string
	StreamSID  string
	Transcript string // "<Speaker>: <text>\n" per line
	Lines      []TranscriptLine
	WebhookURL string
	StartedAt  time.Time
	EndedAt    time.Time
}

type TranscriptLine struct {
	Speaker string `bson:"speaker" json:"speaker"`
	Text    string `bson:"text" json:"text"`
}

// CustomerDetails is the structured data extracted from a finished call.
type CustomerDetails struct {
	CustomerName         string `bson:"customer_name" json:"customerName"`
	CustomerAvailability string `bson:"customer_availability" json:"customerAvailability"` // ISO 8601
	SpecialNotes         string `bson:"special_notes" json:"specialNotes"`
}
