package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kiranabook/backend/internal/domain"
	"kiranabook/backend/internal/reconcile"
	"kiranabook/backend/internal/store"
	"kiranabook/backend/internal/xid"
)

func (s *Service) ListProducts(ctx context.Context, includeDisabled bool) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, includeDisabled)
}

// GetProduct serves from the product cache when it can.
func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, fmt.Errorf("%w: product id is required", store.ErrInvalid)
	}

	if cached, ok, err := s.productCache.Get(ctx, id); err != nil {
		s.logger.Warn("product cache read failed", zap.String("product_id", id), zap.Error(err))
	} else if ok {
		return *cached, nil
	}

	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if err := s.productCache.Set(ctx, product, s.productCacheTTL); err != nil {
		s.logger.Warn("product cache write failed", zap.String("product_id", id), zap.Error(err))
		return *product, nil
	}

	// A unit that committed between the read and the Set has already
	// invalidated, so the entry just written may be stale.
	current, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		s.invalidateProducts(ctx, []string{id})
		return *product, nil
	}
	if !current.UpdatedAt.Equal(product.UpdatedAt) || current.TotalQuantitySold != product.TotalQuantitySold {
		s.invalidateProducts(ctx, []string{id})
	}
	return *current, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := s.validateStruct(req); err != nil {
		return domain.Product{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Product{}, fmt.Errorf("%w: name is required", store.ErrInvalid)
	}
	price, err := minorField("price", req.Price)
	if err != nil {
		return domain.Product{}, err
	}
	if price < 1 {
		return domain.Product{}, fmt.Errorf("%w: price must be positive", store.ErrInvalid)
	}
	mrp, err := optionalAmount("mrp", req.MRP)
	if err != nil {
		return domain.Product{}, err
	}
	purchasePrice, err := optionalAmount("purchasePrice", req.PurchasePrice)
	if err != nil {
		return domain.Product{}, err
	}

	now := s.now()
	product := domain.Product{
		ID:            xid.New("prd"),
		Name:          name,
		Weight:        strings.TrimSpace(req.Weight),
		Unit:          strings.TrimSpace(req.Unit),
		MRP:           mrp,
		Price:         price,
		PurchasePrice: purchasePrice,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	product.ProductSnapshot = reconcile.BuildSnapshot(product.Name, product.Weight, product.Unit, product.MRP)

	err = s.repo.Atomic(ctx, func(tx store.Tx) error {
		return tx.InsertProduct(ctx, product)
	})
	if err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

// UpdateProduct applies the provided fields only. Any change to price, MRP
// or purchase price appends a history row in the same unit.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := s.validateStruct(req); err != nil {
		return domain.Product{}, err
	}

	var saved domain.Product
	err := s.repo.Atomic(ctx, func(tx store.Tx) error {
		existing, err := tx.GetProductForUpdate(ctx, id)
		if err != nil {
			return err
		}
		now := s.now()
		updated := *existing

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return fmt.Errorf("%w: name cannot be empty", store.ErrInvalid)
			}
			updated.Name = name
		}
		if req.Weight != nil {
			updated.Weight = strings.TrimSpace(*req.Weight)
		}
		if req.Unit != nil {
			updated.Unit = strings.TrimSpace(*req.Unit)
		}
		if req.Price != nil {
			if updated.Price, err = minorField("price", *req.Price); err != nil {
				return err
			}
			if updated.Price < 1 {
				return fmt.Errorf("%w: price must be positive", store.ErrInvalid)
			}
		}
		if req.MRP != nil {
			if updated.MRP, err = minorField("mrp", *req.MRP); err != nil {
				return err
			}
			if updated.MRP < 0 {
				return fmt.Errorf("%w: mrp cannot be negative", store.ErrInvalid)
			}
		}
		if req.PurchasePrice != nil {
			if updated.PurchasePrice, err = minorField("purchasePrice", *req.PurchasePrice); err != nil {
				return err
			}
			if updated.PurchasePrice < 0 {
				return fmt.Errorf("%w: purchasePrice cannot be negative", store.ErrInvalid)
			}
		}
		if req.IsDisabled != nil && *req.IsDisabled != updated.IsDisabled {
			updated.IsDisabled = *req.IsDisabled
			updated.DisabledAt = nil
			if updated.IsDisabled {
				updated.DisabledAt = &now
			}
		}
		if req.IsDeleted != nil && *req.IsDeleted != updated.IsDeleted {
			updated.IsDeleted = *req.IsDeleted
			updated.DeletedAt = nil
			if updated.IsDeleted {
				updated.DeletedAt = &now
			}
		}

		updated.ProductSnapshot = reconcile.BuildSnapshot(updated.Name, updated.Weight, updated.Unit, updated.MRP)
		updated.UpdatedAt = now
		if err := tx.UpdateProduct(ctx, updated); err != nil {
			return err
		}

		if existing.Price != updated.Price || existing.MRP != updated.MRP || existing.PurchasePrice != updated.PurchasePrice {
			err := tx.InsertProductHistory(ctx, domain.ProductHistory{
				ID:               xid.New("phs"),
				ProductID:        updated.ID,
				OldPrice:         existing.Price,
				NewPrice:         updated.Price,
				OldMRP:           existing.MRP,
				NewMRP:           updated.MRP,
				OldPurchasePrice: existing.PurchasePrice,
				NewPurchasePrice: updated.PurchasePrice,
				ChangedAt:        now,
			})
			if err != nil {
				return err
			}
		}
		saved = updated
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateProducts(ctx, []string{saved.ID})
	return saved, nil
}

// DeleteProduct removes a product permanently. Products referenced by any
// line item are rejected with store.ErrInUse; soft delete them instead.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	err := s.repo.Atomic(ctx, func(tx store.Tx) error {
		return tx.DeleteProduct(ctx, id)
	})
	if err != nil {
		return err
	}
	s.invalidateProducts(ctx, []string{id})
	return nil
}

func (s *Service) ListProductHistory(ctx context.Context, id string, limit int) ([]domain.ProductHistory, error) {
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListProductHistory(ctx, id, limit)
}

func optionalAmount(field string, value decimal.NullDecimal) (int64, error) {
	if !value.Valid {
		return 0, nil
	}
	amount, err := minorField(field, value.Decimal)
	if err != nil {
		return 0, err
	}
	if amount < 0 {
		return 0, fmt.Errorf("%w: %s cannot be negative", store.ErrInvalid, field)
	}
	return amount, nil
}
