package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fastrepair/fastrepair-backend/pkg/db/models"
	"github.com/fastrepair/fastrepair-backend/pkg/enums"
)

const maxLastErrorLen = 1024

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(&event).Error
}

// ExistsTx reports whether an event of the type was already queued for the aggregate.
func (r *Repository) ExistsTx(tx *gorm.DB, eventType enums.OutboxEventType, aggregateType enums.OutboxAggregateType, aggregateID uuid.UUID) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	var count int64
	err := tx.Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_type = ? AND aggregate_id = ?", eventType, aggregateType, aggregateID).
		Count(&count).Error
	return count > 0, err
}

// FindByAggregate returns the event queued for the aggregate, or nil.
func (r *Repository) FindByAggregate(ctx context.Context, eventType enums.OutboxEventType, aggregateID uuid.UUID) (*models.OutboxEvent, error) {
	return r.FindByAggregateTx(r.db.WithContext(ctx), eventType, aggregateID)
}

// FindByAggregateTx is FindByAggregate bound to tx.
func (r *Repository) FindByAggregateTx(tx *gorm.DB, eventType enums.OutboxEventType, aggregateID uuid.UUID) (*models.OutboxEvent, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	var row models.OutboxEvent
	err := tx.
		Where("event_type = ? AND aggregate_id = ?", eventType, aggregateID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// FindForUpdateTx loads an event and locks it until tx ends.
func (r *Repository) FindForUpdateTx(tx *gorm.DB, id uuid.UUID) (*models.OutboxEvent, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	var row models.OutboxEvent
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ClaimTx locks the event for tx, skipping it when another transaction holds
// the lock. It returns nil when the row is busy or gone.
func (r *Repository) ClaimTx(tx *gorm.DB, id uuid.UUID) (*models.OutboxEvent, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	var rows []models.OutboxEvent
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("id = ?", id).
		Limit(1).
		Find(&rows).Error
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// ListPending returns the ids of unpublished events still eligible for
// automatic retry: under maxAttempts and not dead-lettered.
func (r *Repository) ListPending(ctx context.Context, eventType enums.OutboxEventType, limit, maxAttempts int) ([]uuid.UUID, error) {
	query := r.db.WithContext(ctx).
		Model(&models.OutboxEvent{}).
		Where("published_at IS NULL").
		Where("event_type = ?", eventType).
		Where("NOT EXISTS (SELECT 1 FROM outbox_dlq d WHERE d.event_id = outbox_events.id)")
	if maxAttempts > 0 {
		query = query.Where("attempt_count < ?", maxAttempts)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var ids []uuid.UUID
	err := query.Order("created_at ASC").Order("id ASC").Pluck("id", &ids).Error
	return ids, err
}

func (r *Repository) MarkPublishedTx(tx *gorm.DB, id uuid.UUID, at time.Time) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"published_at": at.UTC(),
			"last_error":   nil,
		}).Error
}

// MarkFailed records a failed attempt outside of the failed transaction.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	return r.MarkFailedTx(r.db.WithContext(ctx), id, cause)
}

func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID, cause error) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	msg := "unknown error"
	if cause != nil {
		msg = truncateError(cause.Error())
	}
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    msg,
			"attempt_count": gorm.Expr("attempt_count + 1"),
		}).Error
}

// DeletePublishedBefore removes published events older than cutoff.
func (r *Repository) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	res := tx.WithContext(ctx).
		Where("published_at IS NOT NULL AND published_at < ?", cutoff.UTC()).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func truncateError(message string) string {
	if len(message) <= maxLastErrorLen {
		return message
	}
	return message[:maxLastErrorLen]
}
