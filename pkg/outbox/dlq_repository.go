package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fastrepair/fastrepair-backend/pkg/db/models"
)

// ErrDLQEntryNotFound is returned when resolving an unknown or settled entry.
var ErrDLQEntryNotFound = errors.New("dlq entry not found")

type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		msg := truncateError(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	return r.FindByEventIDTx(r.db.WithContext(ctx), eventID)
}

func (r *DLQRepository) FindByEventIDTx(tx *gorm.DB, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var dlq models.OutboxDLQ
	err := tx.Where("event_id = ?", eventID).First(&dlq).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &dlq, nil
}

// List returns dead-lettered credits, newest first. Resolved entries are
// included only when includeResolved is set.
func (r *DLQRepository) List(ctx context.Context, includeResolved bool, limit int) ([]models.OutboxDLQ, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.db.WithContext(ctx)
	if !includeResolved {
		query = query.Where("resolved_at IS NULL")
	}
	var rows []models.OutboxDLQ
	err := query.
		Order("failed_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Resolve records that an operator settled the entry by hand.
func (r *DLQRepository) Resolve(ctx context.Context, id, resolvedBy uuid.UUID, at time.Time) (*models.OutboxDLQ, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OutboxDLQ{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Updates(map[string]any{
			"resolved_at": at.UTC(),
			"resolved_by": resolvedBy,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrDLQEntryNotFound
	}

	var row models.OutboxDLQ
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}
