package persistence

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ExchangeRecord stores the transcript of one streamed exchange: the request
// that was sent and the assistant reply reassembled from its fragments.
type ExchangeRecord struct {
	ID            uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	RequestData   json.RawMessage `gorm:"not null" json:"request_data"`
	Model         string          `gorm:"type:varchar(255);not null;index" json:"model"`
	Reply         string          `gorm:"type:text" json:"reply"`
	FragmentCount int             `gorm:"default:0" json:"fragment_count"`
	LatencyMs     int64           `gorm:"default:0" json:"latency_ms"`
	Status        ExchangeStatus  `gorm:"type:varchar(50);not null;default:'pending';index" json:"status"`
	ErrorMessage  string          `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// ExchangeStatus represents the lifecycle state of an exchange
type ExchangeStatus string

const (
	ExchangeStatusPending   ExchangeStatus = "pending"
	ExchangeStatusCompleted ExchangeStatus = "completed"
	ExchangeStatusFailed    ExchangeStatus = "failed"
)

// BeforeCreate hook for ExchangeRecord
func (e *ExchangeRecord) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for ExchangeRecord
func (ExchangeRecord) TableName() string {
	return "exchanges"
}

// RecordEvent is one asynchronous persistence event handled by the recorder.
type RecordEvent struct {
	Type EventType `json:"type"`

	ExchangeID    uuid.UUID       `json:"exchange_id"`
	RequestData   json.RawMessage `json:"request_data,omitempty"`
	Model         string          `json:"model,omitempty"`
	Reply         string          `json:"reply,omitempty"`
	FragmentCount int             `json:"fragment_count,omitempty"`
	LatencyMs     int64           `json:"latency_ms,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
}

// EventType represents the type of persistence event
type EventType string

const (
	EventTypeStartExchange    EventType = "start_exchange"
	EventTypeCompleteExchange EventType = "complete_exchange"
	EventTypeFailExchange     EventType = "fail_exchange"
)
