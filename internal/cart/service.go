package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type productLookup interface {
	GetActive(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// Service exposes cart mutations for a session. Every mutation persists the
// whole cart before returning it.
type Service interface {
	Current(ctx context.Context, sessionID string) (*Cart, error)
	Add(ctx context.Context, sessionID string, productID uuid.UUID, quantity int) (*Cart, error)
	Remove(ctx context.Context, sessionID string, productID uuid.UUID) (*Cart, error)
	SetQuantity(ctx context.Context, sessionID string, productID uuid.UUID, quantity int) (*Cart, error)
	Clear(ctx context.Context, sessionID string) error
	Discard(ctx context.Context, sessionID string) error
}

type service struct {
	repo     *Repository
	products productLookup
}

// NewService builds a cart service backed by the provided repository and catalog.
func NewService(repo *Repository, products productLookup) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product lookup required")
	}
	return &service{repo: repo, products: products}, nil
}

func (s *service) Current(ctx context.Context, sessionID string) (*Cart, error) {
	return s.load(ctx, sessionID)
}

func (s *service) Add(ctx context.Context, sessionID string, productID uuid.UUID, quantity int) (*Cart, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if quantity == 0 {
		quantity = 1
	}

	product, err := s.products.GetActive(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	c, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	c.add(lineFromProduct(product, quantity))
	return c, s.save(ctx, c)
}

func (s *service) Remove(ctx context.Context, sessionID string, productID uuid.UUID) (*Cart, error) {
	c, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !c.remove(productID) {
		return c, nil
	}
	return c, s.save(ctx, c)
}

func (s *service) SetQuantity(ctx context.Context, sessionID string, productID uuid.UUID, quantity int) (*Cart, error) {
	c, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !c.setQuantity(productID, quantity) {
		if quantity <= 0 {
			return c, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not in cart")
	}
	return c, s.save(ctx, c)
}

func (s *service) Clear(ctx context.Context, sessionID string) error {
	if err := requireSession(sessionID); err != nil {
		return err
	}
	return s.save(ctx, &Cart{SessionID: sessionID, Items: []types.CartLine{}})
}

func (s *service) Discard(ctx context.Context, sessionID string) error {
	if err := requireSession(sessionID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, sessionID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "discard cart")
	}
	return nil
}

func (s *service) load(ctx context.Context, sessionID string) (*Cart, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	c, err := s.repo.Load(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return c, nil
}

func (s *service) save(ctx context.Context, c *Cart) error {
	if err := s.repo.Save(ctx, c); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
	}
	return nil
}

func requireSession(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "session required")
	}
	return nil
}

func lineFromProduct(p *models.Product, quantity int) types.CartLine {
	line := types.CartLine{
		ProductID: p.ID,
		Name:      p.Name,
		Category:  p.Category,
		UnitPrice: p.Price,
		Quantity:  quantity,
	}
	if p.ImageURL != nil {
		line.ImageURL = *p.ImageURL
	}
	return line
}
