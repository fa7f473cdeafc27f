package cashaccounts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/fastrepair/fastrepair-backend/pkg/db"
	"github.com/fastrepair/fastrepair-backend/pkg/db/models"
	pkgerrors "github.com/fastrepair/fastrepair-backend/pkg/errors"
)

// Repository persists shop cash registers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, account *models.CashAccount) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CashAccount, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.CashAccount, error)
	FindByShop(ctx context.Context, shopID uuid.UUID) (*models.CashAccount, error)
	FindByShopForUpdate(ctx context.Context, shopID uuid.UUID) (*models.CashAccount, error)
	ExistsForShop(ctx context.Context, shopID uuid.UUID) (bool, error)
	Update(ctx context.Context, account *models.CashAccount) error
	List(ctx context.Context) ([]models.CashAccount, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a cash account repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the account. A second account for the same shop, or a
// reused id, yields a CONFLICT error.
func (r *repository) Create(ctx context.Context, account *models.CashAccount) error {
	if account == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "cash account is required")
	}
	if account.ShopID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "shop id is required")
	}
	if account.ID != uuid.Nil {
		if _, err := r.FindByID(ctx, account.ID); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "cash account already exists")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}
	if account.LastMovementAt.IsZero() {
		account.LastMovementAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "shop already has a cash account")
		}
		return err
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CashAccount, error) {
	var account models.CashAccount
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// FindByIDForUpdate locks the row until the bound transaction ends.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.CashAccount, error) {
	var account models.CashAccount
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) FindByShop(ctx context.Context, shopID uuid.UUID) (*models.CashAccount, error) {
	var account models.CashAccount
	if err := r.db.WithContext(ctx).Where("shop_id = ?", shopID).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) FindByShopForUpdate(ctx context.Context, shopID uuid.UUID) (*models.CashAccount, error) {
	var account models.CashAccount
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("shop_id = ?", shopID).
		First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) ExistsForShop(ctx context.Context, shopID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.CashAccount{}).
		Where("shop_id = ?", shopID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Update persists the balance and last movement timestamp.
func (r *repository) Update(ctx context.Context, account *models.CashAccount) error {
	if account == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "cash account is required")
	}
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.CashAccount{}).
		Where("id = ?", account.ID).
		Updates(map[string]any{
			"balance":          account.Balance,
			"last_movement_at": account.LastMovementAt,
			"updated_at":       now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cash account not found")
	}
	account.UpdatedAt = now
	return nil
}

func (r *repository) List(ctx context.Context) ([]models.CashAccount, error) {
	var accounts []models.CashAccount
	if err := r.db.WithContext(ctx).Order("created_at ASC").Order("id ASC").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}
