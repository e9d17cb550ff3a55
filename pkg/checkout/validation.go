package checkout

import (
	"fmt"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// StockValidationInput describes one requested line against current stock.
type StockValidationInput struct {
	ProductID   uuid.UUID
	ProductName string
	Available   int
	Quantity    int
}

// StockViolationDetail exposes the data returned to callers when a validation fails.
type StockViolationDetail struct {
	ProductID    uuid.UUID `json:"product_id"`
	ProductName  string    `json:"product_name,omitempty"`
	Available    int       `json:"available"`
	RequestedQty int       `json:"requested_qty"`
}

// ValidateStock ensures every requested quantity is positive and in stock.
func ValidateStock(items []StockValidationInput) error {
	var violations []StockViolationDetail
	for _, item := range items {
		if item.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity for product %s must be positive", item.ProductID))
		}
		if item.Quantity > item.Available {
			violations = append(violations, StockViolationDetail{
				ProductID:    item.ProductID,
				ProductName:  item.ProductName,
				Available:    item.Available,
				RequestedQty: item.Quantity,
			})
		}
	}
	switch len(violations) {
	case 0:
		return nil
	case 1:
		name := violations[0].ProductName
		if name == "" {
			name = violations[0].ProductID.String()
		}
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("insufficient stock for product %s", name)).WithDetails(map[string]any{
			"violations": violations,
		})
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("insufficient stock for %d item(s)", len(violations))).WithDetails(map[string]any{
			"violations": violations,
		})
	}
}
