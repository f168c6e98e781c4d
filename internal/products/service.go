package product

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mateoreyes/ordercore-backend/pkg/db/models"
	pkgerrors "github.com/mateoreyes/ordercore-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes catalog management operations.
type Service interface {
	CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error)
	UpdateProduct(ctx context.Context, productID uuid.UUID, input UpdateProductInput) (*ProductDTO, error)
	DeleteProduct(ctx context.Context, productID uuid.UUID) error
	GetProduct(ctx context.Context, productID uuid.UUID) (*ProductDTO, error)
	ListProducts(ctx context.Context, nameFilter string) ([]ProductDTO, error)
}

// CreateProductInput holds the validated payload to create a product.
type CreateProductInput struct {
	Name         string
	Description  *string
	PriceCents   int
	InitialStock int
}

// UpdateProductInput holds optional mutation values for a product.
type UpdateProductInput struct {
	Name         *string
	Description  *string
	PriceCents   *int
	AvailableQty *int
}

// ProductDTO is the catalog row returned to clients.
type ProductDTO struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Description  *string   `json:"description,omitempty"`
	PriceCents   int       `json:"price_cents"`
	AvailableQty int       `json:"available_qty"`
	ReservedQty  int       `json:"reserved_qty"`
}

type service struct {
	repo *Repository
	tx   txRunner
}

// NewService constructs a product service instance.
func NewService(repo *Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

// CreateProduct inserts the listing and seeds its inventory counters in one
// transaction.
func (s *service) CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product name is required")
	}
	if input.PriceCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	if input.InitialStock < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "initial stock must not be negative")
	}

	product := &models.Product{
		Name:        name,
		Description: input.Description,
		PriceCents:  input.PriceCents,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.Create(ctx, product); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
		}
		item := &models.InventoryItem{
			ProductID:    product.ID,
			AvailableQty: input.InitialStock,
		}
		if err := tx.WithContext(ctx).Create(item).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "seed inventory")
		}
		product.Inventory = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toDTO(product), nil
}

// UpdateProduct applies the provided fields. AvailableQty writes only the
// available counter; reserved stock is never edited directly.
func (s *service) UpdateProduct(ctx context.Context, productID uuid.UUID, input UpdateProductInput) (*ProductDTO, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.PriceCents != nil && *input.PriceCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	if input.AvailableQty != nil && *input.AvailableQty < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "available qty must not be negative")
	}

	var updated *models.Product
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		product, err := repo.GetWithInventory(ctx, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}

		if input.Name != nil {
			name := strings.TrimSpace(*input.Name)
			if name == "" {
				return pkgerrors.New(pkgerrors.CodeValidation, "product name is required")
			}
			product.Name = name
		}
		if input.Description != nil {
			product.Description = input.Description
		}
		if input.PriceCents != nil {
			product.PriceCents = *input.PriceCents
		}

		inventory := product.Inventory
		product.Inventory = nil
		if _, err := repo.Save(ctx, product); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save product")
		}

		if input.AvailableQty != nil {
			res := tx.WithContext(ctx).
				Model(&models.InventoryItem{}).
				Where("product_id = ?", productID).
				Update("available_qty", *input.AvailableQty)
			if res.Error != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update inventory")
			}
			if inventory != nil {
				inventory.AvailableQty = *input.AvailableQty
			}
		}
		product.Inventory = inventory
		updated = product
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toDTO(updated), nil
}

// DeleteProduct removes the listing; inventory follows via cascade.
func (s *service) DeleteProduct(ctx context.Context, productID uuid.UUID) error {
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	removed, err := s.repo.Delete(ctx, productID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete product")
	}
	if !removed {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return nil
}

// GetProduct returns a single listing with stock counters.
func (s *service) GetProduct(ctx context.Context, productID uuid.UUID) (*ProductDTO, error) {
	product, err := s.repo.GetWithInventory(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return toDTO(product), nil
}

// ListProducts returns the catalog, newest first.
func (s *service) ListProducts(ctx context.Context, nameFilter string) ([]ProductDTO, error) {
	rows, err := s.repo.List(ctx, strings.TrimSpace(nameFilter))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	out := make([]ProductDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *toDTO(&rows[i]))
	}
	return out, nil
}

func toDTO(product *models.Product) *ProductDTO {
	dto := &ProductDTO{
		ID:          product.ID,
		Name:        product.Name,
		Description: product.Description,
		PriceCents:  product.PriceCents,
	}
	if product.Inventory != nil {
		dto.AvailableQty = product.Inventory.AvailableQty
		dto.ReservedQty = product.Inventory.ReservedQty
	}
	return dto
}
