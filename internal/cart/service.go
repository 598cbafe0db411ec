package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kartmitra/kartmitra-backend/pkg/config"
	"github.com/kartmitra/kartmitra-backend/pkg/db/models"
	"github.com/kartmitra/kartmitra-backend/pkg/enums"
	pkgerrors "github.com/kartmitra/kartmitra-backend/pkg/errors"
)

// Validation error codes surfaced in a cart summary.
const (
	ErrCartEmpty          = "cart_empty"
	ErrProductInactive    = "product_inactive"
	ErrInsufficientStock  = "insufficient_stock"
	ErrPriceChanged       = "price_changed"
	ErrZoneUnavailable    = "zone_unavailable"
	ErrBelowMinOrderValue = "below_min_order_value"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ValidationError is one reason a cart cannot be checked out. Errors
// accumulate across all lines so the buyer sees everything wrong at once.
type ValidationError struct {
	Code      string     `json:"code"`
	ProductID *uuid.UUID `json:"product_id,omitempty"`
	Message   string     `json:"message"`
}

// SummaryLine is one priced cart line inside a Summary. It carries the
// return-policy fields so order placement can snapshot them without another
// product read.
type SummaryLine struct {
	ItemID           uuid.UUID       `json:"item_id"`
	ProductID        uuid.UUID       `json:"product_id"`
	ProductName      string          `json:"product_name"`
	SKU              string          `json:"sku"`
	Quantity         decimal.Decimal `json:"quantity"`
	UnitValue        decimal.Decimal `json:"unit_value"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	LineTotal        decimal.Decimal `json:"line_total"`
	ReturnEligible   bool            `json:"return_eligible"`
	ReturnWindowDays int             `json:"return_window_days"`
}

// Summary is the priced, validated snapshot of a buyer's cart. Orders are
// only created from a summary whose IsValid is true.
type Summary struct {
	CartID           uuid.UUID         `json:"cart_id"`
	BuyerID          uuid.UUID         `json:"buyer_id"`
	VendorID         uuid.UUID         `json:"vendor_id"`
	Pincode          string            `json:"pincode,omitempty"`
	Lines            []SummaryLine     `json:"lines"`
	Subtotal         decimal.Decimal   `json:"subtotal"`
	DeliveryFee      decimal.Decimal   `json:"delivery_fee"`
	TaxAmount        decimal.Decimal   `json:"tax_amount"`
	DiscountAmount   decimal.Decimal   `json:"discount_amount"`
	TotalAmount      decimal.Decimal   `json:"total_amount"`
	IsValid          bool              `json:"is_valid"`
	ValidationErrors []ValidationError `json:"validation_errors"`
}

// Service is the cart aggregator: it keeps a buyer's single active cart and
// builds the checkout summary the order service consumes.
type Service interface {
	GetOrCreateActiveCart(ctx context.Context, buyerID uuid.UUID) (*models.CartRecord, error)
	AddItem(ctx context.Context, buyerID, productID uuid.UUID, quantity decimal.Decimal) (*models.CartRecord, error)
	UpdateItem(ctx context.Context, buyerID, itemID uuid.UUID, quantity decimal.Decimal) (*models.CartRecord, error)
	RemoveItem(ctx context.Context, buyerID, itemID uuid.UUID) error
	Clear(ctx context.Context, buyerID uuid.UUID) error
	BuildSummary(ctx context.Context, buyerID uuid.UUID, pincode string) (*Summary, error)
	MarkConvertedTx(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) error
}

type service struct {
	repo   Repository
	tx     txRunner
	taxPct decimal.Decimal
}

// NewService builds the cart aggregator.
func NewService(repo Repository, tx txRunner, ordersCfg config.OrdersConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	taxPct, err := ordersCfg.Tax()
	if err != nil {
		return nil, err
	}
	return &service{repo: repo, tx: tx, taxPct: taxPct}, nil
}

func (s *service) GetOrCreateActiveCart(ctx context.Context, buyerID uuid.UUID) (*models.CartRecord, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}

	cart, err := s.repo.FindActiveByBuyer(ctx, buyerID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}

	cart = &models.CartRecord{
		ID:      uuid.New(),
		BuyerID: buyerID,
		Status:  enums.CartStatusActive,
	}
	if err := s.repo.Create(ctx, cart); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}
	return cart, nil
}

func (s *service) AddItem(ctx context.Context, buyerID, productID uuid.UUID, quantity decimal.Decimal) (*models.CartRecord, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if !quantity.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	product, err := s.repo.FindProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !product.Active {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is no longer available")
	}

	cart, err := s.GetOrCreateActiveCart(ctx, buyerID)
	if err != nil {
		return nil, err
	}

	// Orders are single-vendor; every line must share the first line's vendor.
	if len(cart.Items) > 0 {
		existing, err := s.repo.FindProduct(ctx, cart.Items[0].ProductID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart vendor")
		}
		if existing.VendorID != product.VendorID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				"cart already holds items from another vendor")
		}
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		item, err := repo.FindItem(ctx, cart.ID, productID)
		switch {
		case err == nil:
			item.Quantity = item.Quantity.Add(quantity)
			return repo.UpsertItem(ctx, item)
		case errors.Is(err, gorm.ErrRecordNotFound):
			return repo.UpsertItem(ctx, &models.CartItem{
				ID:         uuid.New(),
				CartID:     cart.ID,
				ProductID:  productID,
				Quantity:   quantity,
				PriceAtAdd: product.Price,
			})
		default:
			return err
		}
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart item")
	}
	return s.repo.FindActiveByBuyer(ctx, buyerID)
}

func (s *service) UpdateItem(ctx context.Context, buyerID, itemID uuid.UUID, quantity decimal.Decimal) (*models.CartRecord, error) {
	if quantity.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity cannot be negative")
	}

	cart, err := s.activeCart(ctx, buyerID)
	if err != nil {
		return nil, err
	}

	if quantity.IsZero() {
		if err := s.deleteItem(ctx, cart.ID, itemID); err != nil {
			return nil, err
		}
		return s.repo.FindActiveByBuyer(ctx, buyerID)
	}

	var found *models.CartItem
	for i := range cart.Items {
		if cart.Items[i].ID == itemID {
			found = &cart.Items[i]
			break
		}
	}
	if found == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}

	found.Quantity = quantity
	if err := s.repo.UpsertItem(ctx, found); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
	}
	return s.repo.FindActiveByBuyer(ctx, buyerID)
}

func (s *service) RemoveItem(ctx context.Context, buyerID, itemID uuid.UUID) error {
	cart, err := s.activeCart(ctx, buyerID)
	if err != nil {
		return err
	}
	return s.deleteItem(ctx, cart.ID, itemID)
}

func (s *service) Clear(ctx context.Context, buyerID uuid.UUID) error {
	cart, err := s.activeCart(ctx, buyerID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteItems(ctx, cart.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

// BuildSummary prices and re-validates the cart. Line problems accumulate
// into ValidationErrors instead of short-circuiting, so the buyer sees every
// issue in one pass.
func (s *service) BuildSummary(ctx context.Context, buyerID uuid.UUID, pincode string) (*Summary, error) {
	cart, err := s.activeCart(ctx, buyerID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		CartID:         cart.ID,
		BuyerID:        buyerID,
		Pincode:        pincode,
		Lines:          make([]SummaryLine, 0, len(cart.Items)),
		Subtotal:       decimal.Zero,
		DeliveryFee:    decimal.Zero,
		TaxAmount:      decimal.Zero,
		DiscountAmount: decimal.Zero,
		TotalAmount:    decimal.Zero,
	}

	if len(cart.Items) == 0 {
		summary.ValidationErrors = append(summary.ValidationErrors, ValidationError{
			Code:    ErrCartEmpty,
			Message: "cart has no items",
		})
		return summary, nil
	}

	for _, item := range cart.Items {
		pid := item.ProductID
		product, err := s.repo.FindProduct(ctx, pid)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				summary.ValidationErrors = append(summary.ValidationErrors, ValidationError{
					Code:      ErrProductInactive,
					ProductID: &pid,
					Message:   "product no longer exists",
				})
				continue
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}

		if summary.VendorID == uuid.Nil {
			summary.VendorID = product.VendorID
		}

		if !product.Active {
			summary.ValidationErrors = append(summary.ValidationErrors, ValidationError{
				Code:      ErrProductInactive,
				ProductID: &pid,
				Message:   fmt.Sprintf("%s is no longer available", product.Name),
			})
		}

		needed := product.UnitValue.Mul(item.Quantity)
		sellable := decimal.Zero
		inv, err := s.repo.FindInventory(ctx, pid)
		switch {
		case err == nil:
			sellable = inv.AvailableQty.Sub(inv.ReservedQty)
		case errors.Is(err, gorm.ErrRecordNotFound):
			// no inventory row yet, nothing sellable
		default:
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory")
		}
		if needed.GreaterThan(sellable) {
			summary.ValidationErrors = append(summary.ValidationErrors, ValidationError{
				Code:      ErrInsufficientStock,
				ProductID: &pid,
				Message: fmt.Sprintf("only %s of %s left, %s requested",
					sellable, product.Name, needed),
			})
		}

		if !product.Price.Equal(item.PriceAtAdd) {
			summary.ValidationErrors = append(summary.ValidationErrors, ValidationError{
				Code:      ErrPriceChanged,
				ProductID: &pid,
				Message: fmt.Sprintf("%s price changed from %s to %s",
					product.Name, item.PriceAtAdd, product.Price),
			})
		}

		lineTotal := product.Price.Mul(item.Quantity).Round(2)
		summary.Lines = append(summary.Lines, SummaryLine{
			ItemID:           item.ID,
			ProductID:        pid,
			ProductName:      product.Name,
			SKU:              product.SKU,
			Quantity:         item.Quantity,
			UnitValue:        product.UnitValue,
			UnitPrice:        product.Price,
			LineTotal:        lineTotal,
			ReturnEligible:   product.ReturnEligible,
			ReturnWindowDays: product.ReturnWindowDays,
		})
		summary.Subtotal = summary.Subtotal.Add(lineTotal)
	}

	if pincode != "" && summary.VendorID != uuid.Nil {
		zone, err := s.repo.FindDeliveryZone(ctx, summary.VendorID, pincode)
		switch {
		case err == nil && zone.Active:
			summary.DeliveryFee = zone.DeliveryFee
			if summary.Subtotal.LessThan(zone.MinOrderValue) {
				summary.ValidationErrors = append(summary.ValidationErrors, ValidationError{
					Code: ErrBelowMinOrderValue,
					Message: fmt.Sprintf("order total %s is below the %s minimum for pincode %s",
						summary.Subtotal, zone.MinOrderValue, pincode),
				})
			}
		case err == nil || errors.Is(err, gorm.ErrRecordNotFound):
			summary.ValidationErrors = append(summary.ValidationErrors, ValidationError{
				Code:    ErrZoneUnavailable,
				Message: fmt.Sprintf("vendor does not deliver to pincode %s", pincode),
			})
		default:
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery zone")
		}
	}

	summary.TaxAmount = summary.Subtotal.Mul(s.taxPct).Div(decimal.NewFromInt(100)).Round(2)
	summary.TotalAmount = summary.Subtotal.
		Add(summary.DeliveryFee).
		Add(summary.TaxAmount).
		Sub(summary.DiscountAmount).
		Round(2)
	summary.IsValid = len(summary.ValidationErrors) == 0
	return summary, nil
}

// MarkConvertedTx flips the cart to converted inside the order-placement
// transaction so the cart and the order commit together.
func (s *service) MarkConvertedTx(ctx context.Context, tx *gorm.DB, cartID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for cart conversion")
	}
	if err := s.repo.WithTx(tx).UpdateStatus(ctx, cartID, enums.CartStatusConverted); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark cart converted")
	}
	return nil
}

func (s *service) activeCart(ctx context.Context, buyerID uuid.UUID) (*models.CartRecord, error) {
	if buyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	cart, err := s.repo.FindActiveByBuyer(ctx, buyerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active cart")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return cart, nil
}

func (s *service) deleteItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	affected, err := s.repo.DeleteItem(ctx, cartID, itemID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	return nil
}
