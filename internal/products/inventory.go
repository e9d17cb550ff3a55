package products

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Inventory exposes the stock operations order creation and cancellation
// run inside their own transactions.
type Inventory struct {
	repo *Repository
}

// NewInventory builds an inventory adapter over the products repository.
func NewInventory(repo *Repository) *Inventory {
	return &Inventory{repo: repo}
}

// Lock loads and row-locks the products referenced by an order.
func (i *Inventory) Lock(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	return i.repo.WithTx(tx).LockByIDs(ctx, ids)
}

// Reserve removes qty units from stock.
func (i *Inventory) Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("reserve quantity must be positive")
	}
	return i.repo.WithTx(tx).AdjustStock(ctx, productID, -qty)
}

// Release returns qty units to stock.
func (i *Inventory) Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("release quantity must be positive")
	}
	return i.repo.WithTx(tx).AdjustStock(ctx, productID, qty)
}
