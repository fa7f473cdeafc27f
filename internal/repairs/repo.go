package repairs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fastrepair/fastrepair-backend/pkg/db/models"
	pkgerrors "github.com/fastrepair/fastrepair-backend/pkg/errors"
)

// Repository handles repair persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to repair operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create persists a new repair row.
func (r *Repository) Create(ctx context.Context, repair *models.Repair) error {
	if repair == nil {
		return fmt.Errorf("repair is required")
	}
	return r.db.WithContext(ctx).Create(repair).Error
}

// FindByID loads a repair by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Repair, error) {
	var repair models.Repair
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&repair).Error; err != nil {
		return nil, err
	}
	return &repair, nil
}

// FindByIDForUpdate loads a repair and locks it until the bound transaction ends.
func (r *Repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Repair, error) {
	var repair models.Repair
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&repair).Error
	if err != nil {
		return nil, err
	}
	return &repair, nil
}

// UpdateState persists the repair state and completion time.
func (r *Repository) UpdateState(ctx context.Context, repair *models.Repair) error {
	if repair == nil {
		return fmt.Errorf("repair is required")
	}
	res := r.db.WithContext(ctx).
		Model(&models.Repair{}).
		Where("id = ?", repair.ID).
		Updates(map[string]any{
			"state":        repair.State,
			"completed_at": repair.CompletedAt,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "repair not found")
	}
	return nil
}
