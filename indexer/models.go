package indexer

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventRecord is one committed protocol event.
type EventRecord struct {
	ID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq uint64    `gorm:"uniqueIndex;not null"`
	// Type is the emitter's event type, e.g. loans.started.
	Type     string `gorm:"index;not null"`
	Contract string `gorm:"index"`
	// LoanID is the loan the event concerns. Refinancing events also set
	// RelatedLoanID to the replacement loan.
	LoanID        *uint64 `gorm:"index"`
	RelatedLoanID *uint64 `gorm:"index"`
	Attributes    string  `gorm:"type:text"`
	CreatedAt     time.Time
}

// TableName pins the table name across drivers.
func (EventRecord) TableName() string { return "protocol_events" }

// Attrs decodes the stored attribute map.
func (r EventRecord) Attrs() (map[string]string, error) {
	out := make(map[string]string)
	if r.Attributes == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(r.Attributes), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AutoMigrate creates or updates the index tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRecord{})
}
