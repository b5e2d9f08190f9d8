package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"llm-stream/domain/persistence"
)

// ExchangeRepository implements persistence.ExchangeRepository on gorm.
type ExchangeRepository struct {
	db *gorm.DB
}

// NewExchangeRepository creates a new exchange repository
func NewExchangeRepository(db *gorm.DB) persistence.ExchangeRepository {
	return &ExchangeRepository{db: db}
}

// Create creates a new exchange record
func (r *ExchangeRepository) Create(ctx context.Context, record *persistence.ExchangeRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create exchange record: %w", err)
	}
	return nil
}

// Complete marks an exchange as completed with its reassembled reply.
func (r *ExchangeRepository) Complete(ctx context.Context, id uuid.UUID, reply string, fragmentCount int, latencyMs int64) error {
	result := r.db.WithContext(ctx).Model(&persistence.ExchangeRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"reply":          reply,
		"fragment_count": fragmentCount,
		"latency_ms":     latencyMs,
		"status":         persistence.ExchangeStatusCompleted,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to complete exchange record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("exchange record not found for completion")
	}
	return nil
}

// Fail marks an exchange as failed
func (r *ExchangeRepository) Fail(ctx context.Context, id uuid.UUID, errorMsg string) error {
	result := r.db.WithContext(ctx).Model(&persistence.ExchangeRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"error_message": errorMsg,
		"status":        persistence.ExchangeStatusFailed,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to fail exchange record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("exchange record not found for failure update")
	}
	return nil
}

// FindByID finds an exchange record by ID
func (r *ExchangeRepository) FindByID(ctx context.Context, id uuid.UUID) (*persistence.ExchangeRecord, error) {
	var record persistence.ExchangeRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("exchange record not found: %w", err)
		}
		return nil, fmt.Errorf("failed to find exchange record: %w", err)
	}
	return &record, nil
}

// FindRecent finds recent exchange records
func (r *ExchangeRepository) FindRecent(ctx context.Context, limit int) ([]*persistence.ExchangeRecord, error) {
	var records []*persistence.ExchangeRecord
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to find recent exchange records: %w", err)
	}
	return records, nil
}
