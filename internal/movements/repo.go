package movements

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/fastrepair/fastrepair-backend/pkg/db"
	"github.com/fastrepair/fastrepair-backend/pkg/db/models"
	pkgerrors "github.com/fastrepair/fastrepair-backend/pkg/errors"
)

// Repository appends and reads register movements. Rows are never updated
// or deleted.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, movement *models.Movement) error
	ListByCashAccount(ctx context.Context, cashAccountID uuid.UUID) ([]models.Movement, error)
	ListByTechnician(ctx context.Context, technicianID uuid.UUID) ([]models.Movement, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a movement repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, movement *models.Movement) error {
	if movement == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "movement is required")
	}
	if movement.ID != uuid.Nil {
		var existing int64
		if err := r.db.WithContext(ctx).Model(&models.Movement{}).Where("id = ?", movement.ID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "movement already exists")
		}
	}
	if err := r.db.WithContext(ctx).Create(movement).Error; err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "movement already exists")
		}
		return err
	}
	return nil
}

// ListByCashAccount returns every movement of the account. Callers needing a
// replay order must sort themselves.
func (r *repository) ListByCashAccount(ctx context.Context, cashAccountID uuid.UUID) ([]models.Movement, error) {
	return r.list(ctx, "cash_account_id = ?", cashAccountID)
}

func (r *repository) ListByTechnician(ctx context.Context, technicianID uuid.UUID) ([]models.Movement, error) {
	return r.list(ctx, "technician_id = ?", technicianID)
}

func (r *repository) list(ctx context.Context, where string, id uuid.UUID) ([]models.Movement, error) {
	if id == uuid.Nil {
		return nil, errors.New("id is required")
	}
	var rows []models.Movement
	if err := r.db.WithContext(ctx).
		Where(where, id).
		Order("occurred_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
