package models

import (
	"time"

	"gorm.io/datatypes"
)

type CallSummary struct {
	ID                   string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	SessionID            string         `gorm:"column:session_id;type:text;index" json:"session_id"`
	CustomerName         string         `gorm:"column:customer_name;type:text" json:"customer_name"`
	CustomerAvailability string         `gorm:"column:customer_availability;type:text" json:"customer_availability"`
	SpecialNotes         string         `gorm:"column:special_notes;type:text" json:"special_notes"`
	Transcript           string         `gorm:"column:transcript;type:text" json:"transcript"`
	Raw                  datatypes.JSON `gorm:"column:raw;type:jsonb" json:"raw"`
	CreatedAt            time.Time      `gorm:"column:created_at;type:timestamptz;index" json:"created_at"`
}

func (CallSummary) TableName() string { return "call_summaries" }
