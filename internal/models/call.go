package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CallRecord struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID string             `bson:"session_id" json:"session_id"`
	CallSID   string             `bson:"call_sid,omitempty" json:"call_sid,omitempty"`
	StreamSID string             `bson:"stream_sid,omitempty" json:"stream_sid,omitempty"`

	Transcript []TranscriptLine `bson:"transcript" json:"transcript"`
	Details    *CustomerDetails `bson:"details,omitempty" json:"details,omitempty"`

	WebhookStatus string `bson:"webhook_status" json:"webhook_status"` // sent|failed|skipped

	StartedAt       time.Time `bson:"started_at" json:"started_at"`
	EndedAt         time.Time `bson:"ended_at" json:"ended_at"`
	DurationSeconds int64     `bson:"duration_seconds" json:"duration_seconds"`

	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"` // for TTL index
}
