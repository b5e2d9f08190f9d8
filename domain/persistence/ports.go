package persistence

import (
	"context"

	"github.com/google/uuid"
)

// ExchangeRepository defines operations on exchange transcripts
type ExchangeRepository interface {
	Create(ctx context.Context, record *ExchangeRecord) error
	Complete(ctx context.Context, id uuid.UUID, reply string, fragmentCount int, latencyMs int64) error
	Fail(ctx context.Context, id uuid.UUID, errorMsg string) error
	FindByID(ctx context.Context, id uuid.UUID) (*ExchangeRecord, error)
	FindRecent(ctx context.Context, limit int) ([]*ExchangeRecord, error)
}

// ExchangeTracker records exchanges through their lifecycle. Implementations
// are asynchronous: enqueueing must never block or slow down the fragment
// stream being recorded.
type ExchangeTracker interface {
	StartTracking(ctx context.Context, id uuid.UUID, requestData []byte, model string) error
	CompleteTracking(ctx context.Context, id uuid.UUID, reply string, fragmentCount int, latencyMs int64) error
	FailTracking(ctx context.Context, id uuid.UUID, errorMsg string) error
}

// RecorderHealth represents the health status of the async recorder
type RecorderHealth struct {
	IsRunning      bool  `json:"is_running"`
	QueueSize      int   `json:"queue_size"`
	ProcessedCount int64 `json:"processed_count"`
	ErrorCount     int64 `json:"error_count"`
}

// ExchangeRecorder is the lifecycle view of the async recorder
type ExchangeRecorder interface {
	ExchangeTracker
	Start(ctx context.Context) error
	Stop() error
	Health() RecorderHealth
}

// DatabaseManager defines database management operations
type DatabaseManager interface {
	Connect(ctx context.Context, dsn string) error
	Close() error
	Migrate() error
	Health(ctx context.Context) error
	Repository() ExchangeRepository
}
