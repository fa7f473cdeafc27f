package shops

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fastrepair/fastrepair-backend/pkg/db/models"
	pkgerrors "github.com/fastrepair/fastrepair-backend/pkg/errors"
	"github.com/fastrepair/fastrepair-backend/pkg/logger"
)

type shopRepository interface {
	WithTx(tx *gorm.DB) *Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Shop, error)
}

// accountOpener is the slice of the ledger used when a shop is created.
type accountOpener interface {
	OpenAccount(ctx context.Context, tx *gorm.DB, shopID uuid.UUID) (*models.CashAccount, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes shop operations.
type Service interface {
	Create(ctx context.Context, input CreateShopInput) (*ShopDTO, error)
	EnsureCashAccount(ctx context.Context, shopID uuid.UUID) (*models.CashAccount, error)
}

type service struct {
	db     txRunner
	repo   shopRepository
	ledger accountOpener
	logg   *logger.Logger
	now    func() time.Time
}

// NewService builds a shop service. Every shop gets its register through
// the ledger.
func NewService(db txRunner, repo shopRepository, ledger accountOpener, logg *logger.Logger) (Service, error) {
	if db == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("shop repository required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{db: db, repo: repo, ledger: ledger, logg: logg, now: time.Now}, nil
}

// Create stores the shop and its zero-balance register in one transaction.
func (s *service) Create(ctx context.Context, input CreateShopInput) (*ShopDTO, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop name is required")
	}

	now := s.now().UTC()
	shop := &models.Shop{
		ID:        uuid.New(),
		Name:      name,
		OwnerID:   input.OwnerID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var account *models.CashAccount
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, shop); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create shop")
		}
		var err error
		account, err = s.ledger.OpenAccount(ctx, tx, shop.ID)
		return err
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create shop")
	}

	logCtx := s.logg.WithShopID(ctx, shop.ID.String())
	s.logg.Info(s.logg.WithField(logCtx, "name", shop.Name), "shop created")
	return FromModels(shop, account), nil
}

// EnsureCashAccount opens the register for shops created before every shop
// had one. It is a no-op when the register exists.
func (s *service) EnsureCashAccount(ctx context.Context, shopID uuid.UUID) (*models.CashAccount, error) {
	if shopID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop id is required")
	}
	if _, err := s.repo.FindByID(ctx, shopID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shop")
	}
	return s.ledger.OpenAccount(ctx, nil, shopID)
}
