package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kartmitra/kartmitra-backend/pkg/config"
	"github.com/kartmitra/kartmitra-backend/pkg/db/models"
	"github.com/kartmitra/kartmitra-backend/pkg/enums"
	pkgerrors "github.com/kartmitra/kartmitra-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:cart_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(
		&models.Product{},
		&models.InventoryItem{},
		&models.CartRecord{},
		&models.CartItem{},
		&models.DeliveryZone{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return conn
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(NewRepository(db), gormTxRunner{db: db}, config.OrdersConfig{TaxPercent: "5"})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

type productOpts struct {
	vendorID  uuid.UUID
	price     string
	unitValue string
	available string
	active    bool
}

func seedProduct(t *testing.T, db *gorm.DB, opts productOpts) uuid.UUID {
	t.Helper()
	if opts.vendorID == uuid.Nil {
		opts.vendorID = uuid.New()
	}
	if opts.unitValue == "" {
		opts.unitValue = "1"
	}
	product := &models.Product{
		ID:        uuid.New(),
		VendorID:  opts.vendorID,
		Name:      "Basmati Rice 5kg",
		SKU:       "SKU-" + uuid.NewString()[:8],
		Price:     dec(opts.price),
		UnitValue: dec(opts.unitValue),
		Active:    opts.active,
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if opts.available != "" {
		if err := db.Create(&models.InventoryItem{ProductID: product.ID, AvailableQty: dec(opts.available)}).Error; err != nil {
			t.Fatalf("seed inventory: %v", err)
		}
	}
	return product.ID
}

func findError(summary *Summary, code string) *ValidationError {
	for i := range summary.ValidationErrors {
		if summary.ValidationErrors[i].Code == code {
			return &summary.ValidationErrors[i]
		}
	}
	return nil
}

func TestGetOrCreateActiveCartReusesExisting(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	buyerID := uuid.New()

	first, err := svc.GetOrCreateActiveCart(ctx, buyerID)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := svc.GetOrCreateActiveCart(ctx, buyerID)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same cart, got %s and %s", first.ID, second.ID)
	}
}

func TestAddItemIncrementsQuantity(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	buyerID := uuid.New()
	productID := seedProduct(t, db, productOpts{price: "120.00", available: "50", active: true})

	if _, err := svc.AddItem(ctx, buyerID, productID, dec("2")); err != nil {
		t.Fatalf("first add: %v", err)
	}
	cart, err := svc.AddItem(ctx, buyerID, productID, dec("3"))
	if err != nil {
		t.Fatalf("second add: %v", err)
	}

	if len(cart.Items) != 1 {
		t.Fatalf("expected single line, got %d", len(cart.Items))
	}
	if !cart.Items[0].Quantity.Equal(dec("5")) {
		t.Fatalf("expected quantity 5, got %s", cart.Items[0].Quantity)
	}
	if !cart.Items[0].PriceAtAdd.Equal(dec("120.00")) {
		t.Fatalf("expected price snapshot 120.00, got %s", cart.Items[0].PriceAtAdd)
	}
}

func TestAddItemRejectsSecondVendor(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	buyerID := uuid.New()
	first := seedProduct(t, db, productOpts{price: "120.00", available: "50", active: true})
	other := seedProduct(t, db, productOpts{price: "80.00", available: "50", active: true})

	if _, err := svc.AddItem(ctx, buyerID, first, dec("1")); err != nil {
		t.Fatalf("add first vendor item: %v", err)
	}
	_, err := svc.AddItem(ctx, buyerID, other, dec("1"))
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAddItemRejectsInactiveProduct(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	productID := seedProduct(t, db, productOpts{price: "120.00", active: false})

	_, err := svc.AddItem(context.Background(), uuid.New(), productID, dec("1"))
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateItemZeroRemovesLine(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	buyerID := uuid.New()
	productID := seedProduct(t, db, productOpts{price: "120.00", available: "50", active: true})

	cart, err := svc.AddItem(ctx, buyerID, productID, dec("2"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	cart, err = svc.UpdateItem(ctx, buyerID, cart.Items[0].ID, dec("0"))
	if err != nil {
		t.Fatalf("update to zero: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected empty cart, got %d items", len(cart.Items))
	}
}

func TestRemoveItemMissingFails(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	buyerID := uuid.New()
	productID := seedProduct(t, db, productOpts{price: "120.00", available: "50", active: true})

	if _, err := svc.AddItem(ctx, buyerID, productID, dec("1")); err != nil {
		t.Fatalf("add: %v", err)
	}
	err := svc.RemoveItem(ctx, buyerID, uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBuildSummaryHappyPath(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	buyerID := uuid.New()
	vendorID := uuid.New()
	productID := seedProduct(t, db, productOpts{vendorID: vendorID, price: "120.00", available: "50", active: true})
	if err := db.Create(&models.DeliveryZone{
		ID:            uuid.New(),
		VendorID:      vendorID,
		Pincode:       "560001",
		DeliveryFee:   dec("30.00"),
		MinOrderValue: dec("100.00"),
		Active:        true,
	}).Error; err != nil {
		t.Fatalf("seed zone: %v", err)
	}

	if _, err := svc.AddItem(ctx, buyerID, productID, dec("2")); err != nil {
		t.Fatalf("add: %v", err)
	}

	summary, err := svc.BuildSummary(ctx, buyerID, "560001")
	if err != nil {
		t.Fatalf("BuildSummary: %v", err)
	}
	if !summary.IsValid {
		t.Fatalf("expected valid summary, got errors %v", summary.ValidationErrors)
	}
	if !summary.Subtotal.Equal(dec("240.00")) {
		t.Fatalf("expected subtotal 240.00, got %s", summary.Subtotal)
	}
	if !summary.DeliveryFee.Equal(dec("30.00")) {
		t.Fatalf("expected delivery fee 30.00, got %s", summary.DeliveryFee)
	}
	// 5% tax on 240 = 12; total 240 + 30 + 12.
	if !summary.TaxAmount.Equal(dec("12.00")) {
		t.Fatalf("expected tax 12.00, got %s", summary.TaxAmount)
	}
	if !summary.TotalAmount.Equal(dec("282.00")) {
		t.Fatalf("expected total 282.00, got %s", summary.TotalAmount)
	}
	if summary.VendorID != vendorID {
		t.Fatalf("expected vendor %s, got %s", vendorID, summary.VendorID)
	}
}

func TestBuildSummaryAccumulatesErrors(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	buyerID := uuid.New()
	vendorID := uuid.New()
	inactive := seedProduct(t, db, productOpts{vendorID: vendorID, price: "120.00", available: "50", active: true})
	lowStock := seedProduct(t, db, productOpts{vendorID: vendorID, price: "80.00", available: "1", active: true})

	if _, err := svc.AddItem(ctx, buyerID, inactive, dec("1")); err != nil {
		t.Fatalf("add inactive-to-be: %v", err)
	}
	if _, err := svc.AddItem(ctx, buyerID, lowStock, dec("5")); err != nil {
		t.Fatalf("add low stock: %v", err)
	}

	// Deactivate and reprice after the lines were added.
	if err := db.Model(&models.Product{}).Where("id = ?", inactive).
		Updates(map[string]any{"active": false, "price": "150.00"}).Error; err != nil {
		t.Fatalf("mutate product: %v", err)
	}

	summary, err := svc.BuildSummary(ctx, buyerID, "")
	if err != nil {
		t.Fatalf("BuildSummary: %v", err)
	}
	if summary.IsValid {
		t.Fatal("expected invalid summary")
	}
	if findError(summary, ErrProductInactive) == nil {
		t.Fatalf("expected %s error, got %v", ErrProductInactive, summary.ValidationErrors)
	}
	if findError(summary, ErrPriceChanged) == nil {
		t.Fatalf("expected %s error, got %v", ErrPriceChanged, summary.ValidationErrors)
	}
	if e := findError(summary, ErrInsufficientStock); e == nil || *e.ProductID != lowStock {
		t.Fatalf("expected %s error for %s, got %v", ErrInsufficientStock, lowStock, summary.ValidationErrors)
	}
}

func TestBuildSummaryZoneChecks(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	vendorID := uuid.New()
	if err := db.Create(&models.DeliveryZone{
		ID:            uuid.New(),
		VendorID:      vendorID,
		Pincode:       "110011",
		DeliveryFee:   dec("40.00"),
		MinOrderValue: dec("500.00"),
		Active:        true,
	}).Error; err != nil {
		t.Fatalf("seed zone: %v", err)
	}
	productID := seedProduct(t, db, productOpts{vendorID: vendorID, price: "120.00", available: "50", active: true})

	buyerID := uuid.New()
	if _, err := svc.AddItem(ctx, buyerID, productID, dec("1")); err != nil {
		t.Fatalf("add: %v", err)
	}

	// Unknown pincode: vendor does not deliver there.
	summary, err := svc.BuildSummary(ctx, buyerID, "999999")
	if err != nil {
		t.Fatalf("BuildSummary unknown pincode: %v", err)
	}
	if findError(summary, ErrZoneUnavailable) == nil {
		t.Fatalf("expected %s error, got %v", ErrZoneUnavailable, summary.ValidationErrors)
	}

	// Known pincode but the subtotal misses the zone minimum.
	summary, err = svc.BuildSummary(ctx, buyerID, "110011")
	if err != nil {
		t.Fatalf("BuildSummary below minimum: %v", err)
	}
	if findError(summary, ErrBelowMinOrderValue) == nil {
		t.Fatalf("expected %s error, got %v", ErrBelowMinOrderValue, summary.ValidationErrors)
	}
	if !summary.DeliveryFee.Equal(dec("40.00")) {
		t.Fatalf("expected fee still priced, got %s", summary.DeliveryFee)
	}
}

func TestBuildSummaryEmptyCart(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	buyerID := uuid.New()

	if _, err := svc.GetOrCreateActiveCart(ctx, buyerID); err != nil {
		t.Fatalf("create cart: %v", err)
	}
	summary, err := svc.BuildSummary(ctx, buyerID, "")
	if err != nil {
		t.Fatalf("BuildSummary: %v", err)
	}
	if summary.IsValid || findError(summary, ErrCartEmpty) == nil {
		t.Fatalf("expected empty-cart error, got %v", summary.ValidationErrors)
	}
}

func TestMarkConvertedTx(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	buyerID := uuid.New()
	productID := seedProduct(t, db, productOpts{price: "120.00", available: "50", active: true})

	cart, err := svc.AddItem(ctx, buyerID, productID, dec("1"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := db.Transaction(func(tx *gorm.DB) error {
		return svc.MarkConvertedTx(ctx, tx, cart.ID)
	}); err != nil {
		t.Fatalf("MarkConvertedTx: %v", err)
	}

	var stored models.CartRecord
	if err := db.First(&stored, "id = ?", cart.ID).Error; err != nil {
		t.Fatalf("load cart: %v", err)
	}
	if stored.Status != enums.CartStatusConverted {
		t.Fatalf("expected converted, got %s", stored.Status)
	}

	// A fresh active cart is minted on the next touch.
	next, err := svc.GetOrCreateActiveCart(ctx, buyerID)
	if err != nil {
		t.Fatalf("next cart: %v", err)
	}
	if next.ID == cart.ID {
		t.Fatal("expected a new cart after conversion")
	}
}
