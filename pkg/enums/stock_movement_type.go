package enums

import "fmt"

// StockMovementType maps to the stock_movement_type enum in Postgres. Every
// ledger row records exactly one of these.
type StockMovementType string

const (
	StockMovementRestock       StockMovementType = "restock"
	StockMovementSale          StockMovementType = "sale"
	StockMovementReturnRestock StockMovementType = "return_restock"
	StockMovementAdjustment    StockMovementType = "adjustment"
	StockMovementDamage        StockMovementType = "damage"
)

var validStockMovementTypes = []StockMovementType{
	StockMovementRestock,
	StockMovementSale,
	StockMovementReturnRestock,
	StockMovementAdjustment,
	StockMovementDamage,
}

// String implements fmt.Stringer.
func (s StockMovementType) String() string {
	return string(s)
}

// IsValid reports whether the value is a known StockMovementType.
func (s StockMovementType) IsValid() bool {
	for _, candidate := range validStockMovementTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStockMovementType converts raw input into a StockMovementType.
func ParseStockMovementType(value string) (StockMovementType, error) {
	for _, candidate := range validStockMovementTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock movement type %q", value)
}
