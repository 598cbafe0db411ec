package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kartmitra/kartmitra-backend/pkg/db/models"
	"github.com/kartmitra/kartmitra-backend/pkg/enums"
	pkgerrors "github.com/kartmitra/kartmitra-backend/pkg/errors"
	"github.com/kartmitra/kartmitra-backend/pkg/outbox"
	"github.com/kartmitra/kartmitra-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Stock is the point-in-time view of one product's quantities.
type Stock struct {
	ProductID    uuid.UUID       `json:"product_id"`
	AvailableQty decimal.Decimal `json:"available_qty"`
	ReservedQty  decimal.Decimal `json:"reserved_qty"`
	SellableQty  decimal.Decimal `json:"sellable_qty"`
}

// RestockInput adds quantity to a product's available pool.
type RestockInput struct {
	ProductID uuid.UUID
	VendorID  uuid.UUID
	Quantity  decimal.Decimal
	Reason    *string
	ActorID   uuid.UUID
	ActorRole enums.UserRole
}

// AdjustInput applies a signed manual correction or damage write-off.
type AdjustInput struct {
	ProductID uuid.UUID
	VendorID  uuid.UUID
	Type      enums.StockMovementType
	Quantity  decimal.Decimal
	Reason    string
	ActorID   uuid.UUID
	ActorRole enums.UserRole
}

// Service is the vendor- and admin-facing stock ledger.
type Service interface {
	Restock(ctx context.Context, input RestockInput) (*Stock, error)
	Adjust(ctx context.Context, input AdjustInput) (*Stock, error)
	GetStock(ctx context.Context, productID uuid.UUID) (*Stock, error)
	ListMovements(ctx context.Context, productID uuid.UUID, limit int) ([]models.StockMovement, error)

	// RestockReturnTx restores quantity inside an enclosing transaction when
	// an approved return is restocked.
	RestockReturnTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty decimal.Decimal, referenceID uuid.UUID) error

	// EmitLowStockTx queues a stock_low event when sellable quantity is at or
	// below the product's threshold. Deduped per product via the outbox.
	EmitLowStockTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID) error
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
}

// NewService builds the inventory ledger service.
func NewService(repo Repository, tx txRunner, outboxSvc outboxPublisher) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{repo: repo, tx: tx, outbox: outboxSvc}, nil
}

func (s *service) Restock(ctx context.Context, input RestockInput) (*Stock, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if !input.Quantity.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restock quantity must be positive")
	}

	var stock *Stock
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		product, err := repo.FindProduct(ctx, input.ProductID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		if err := ownershipCheck(product, input.VendorID, input.ActorRole); err != nil {
			return err
		}

		if err := repo.EnsureItem(ctx, input.ProductID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure inventory row")
		}
		applied, err := repo.AdjustAvailable(ctx, input.ProductID, input.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply restock")
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeDependency, "restock not applied")
		}

		movement := &models.StockMovement{
			ID:        uuid.New(),
			ProductID: input.ProductID,
			Type:      enums.StockMovementRestock,
			Quantity:  input.Quantity,
			Reason:    input.Reason,
		}
		if err := repo.InsertMovement(ctx, movement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record stock movement")
		}

		stock, err = loadStock(ctx, repo, input.ProductID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stock, nil
}

func (s *service) Adjust(ctx context.Context, input AdjustInput) (*Stock, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if input.Type != enums.StockMovementAdjustment && input.Type != enums.StockMovementDamage {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment type must be adjustment or damage")
	}
	if input.Quantity.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment quantity must be non-zero")
	}
	if input.Type == enums.StockMovementDamage && !input.Quantity.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "damage write-offs must reduce stock")
	}
	if input.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment reason required")
	}

	var stock *Stock
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		product, err := repo.FindProduct(ctx, input.ProductID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		if err := ownershipCheck(product, input.VendorID, input.ActorRole); err != nil {
			return err
		}

		if err := repo.EnsureItem(ctx, input.ProductID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure inventory row")
		}
		applied, err := repo.AdjustAvailable(ctx, input.ProductID, input.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply adjustment")
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "adjustment would drive stock negative")
		}

		reason := input.Reason
		movement := &models.StockMovement{
			ID:        uuid.New(),
			ProductID: input.ProductID,
			Type:      input.Type,
			Quantity:  input.Quantity,
			Reason:    &reason,
		}
		if err := repo.InsertMovement(ctx, movement); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record stock movement")
		}

		if input.Quantity.IsNegative() {
			if err := s.EmitLowStockTx(ctx, tx, input.ProductID); err != nil {
				return err
			}
		}

		stock, err = loadStock(ctx, repo, input.ProductID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stock, nil
}

func (s *service) GetStock(ctx context.Context, productID uuid.UUID) (*Stock, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	stock, err := loadStock(ctx, s.repo, productID)
	if err != nil {
		return nil, err
	}
	return stock, nil
}

func (s *service) ListMovements(ctx context.Context, productID uuid.UUID, limit int) ([]models.StockMovement, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	movements, err := s.repo.ListMovements(ctx, productID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock movements")
	}
	return movements, nil
}

func (s *service) RestockReturnTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty decimal.Decimal, referenceID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for return restock")
	}
	if !qty.IsPositive() {
		return nil
	}
	repo := s.repo.WithTx(tx)

	if err := repo.EnsureItem(ctx, productID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure inventory row")
	}
	applied, err := repo.AdjustAvailable(ctx, productID, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply return restock")
	}
	if !applied {
		return pkgerrors.New(pkgerrors.CodeDependency, "return restock not applied")
	}

	ref := referenceID
	movement := &models.StockMovement{
		ID:          uuid.New(),
		ProductID:   productID,
		Type:        enums.StockMovementReturnRestock,
		Quantity:    qty,
		ReferenceID: &ref,
	}
	if err := repo.InsertMovement(ctx, movement); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record return restock")
	}
	return nil
}

func (s *service) EmitLowStockTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for low stock check")
	}
	repo := s.repo.WithTx(tx)

	item, err := repo.Find(ctx, productID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory row")
	}
	if !item.LowStockThreshold.IsPositive() {
		return nil
	}
	sellable := item.AvailableQty.Sub(item.ReservedQty)
	if sellable.GreaterThan(item.LowStockThreshold) {
		return nil
	}

	product, err := repo.FindProduct(ctx, productID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product for low stock event")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventStockLow,
		AggregateType: enums.AggregateInventoryItem,
		AggregateID:   productID,
		Version:       1,
		Data: payloads.StockLowEvent{
			ProductID:    productID,
			VendorID:     product.VendorID,
			AvailableQty: item.AvailableQty,
			Threshold:    item.LowStockThreshold,
		},
	}
	return s.outbox.EmitIfNotExists(ctx, tx, event)
}

func ownershipCheck(product *models.Product, vendorID uuid.UUID, role enums.UserRole) error {
	if role == enums.UserRoleAdmin {
		return nil
	}
	if vendorID == uuid.Nil || product.VendorID != vendorID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "product does not belong to vendor")
	}
	return nil
}

func loadStock(ctx context.Context, repo Repository, productID uuid.UUID) (*Stock, error) {
	item, err := repo.Find(ctx, productID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory row")
	}
	return &Stock{
		ProductID:    item.ProductID,
		AvailableQty: item.AvailableQty,
		ReservedQty:  item.ReservedQty,
		SellableQty:  item.AvailableQty.Sub(item.ReservedQty),
	}, nil
}
