package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kiranabook/backend/internal/domain"
	"kiranabook/backend/internal/store"
	"kiranabook/backend/internal/xid"
)

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	if err := s.validateStruct(req); err != nil {
		return domain.Customer{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Customer{}, fmt.Errorf("%w: name is required", store.ErrInvalid)
	}

	customer := domain.Customer{
		ID:        xid.New("cus"),
		Name:      name,
		Phone:     strings.TrimSpace(req.Phone),
		CreatedAt: s.now(),
	}
	err := s.repo.Atomic(ctx, func(tx store.Tx) error {
		return tx.InsertCustomer(ctx, customer)
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return customer, nil
}

// resolveCustomer picks the bill's customer: an explicit id must exist, a
// bare name finds or creates that customer, and neither means DEFAULT.
func (s *Service) resolveCustomer(ctx context.Context, tx store.Tx, id string, name string) (domain.Customer, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)

	if id != "" {
		customer, err := tx.GetCustomer(ctx, id)
		if err != nil {
			return domain.Customer{}, err
		}
		return *customer, nil
	}
	if name == "" {
		name = domain.DefaultCustomerName
	}

	existing, err := tx.FindCustomerByName(ctx, name)
	if err == nil {
		return *existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.Customer{}, err
	}

	customer := domain.Customer{
		ID:        xid.New("cus"),
		Name:      name,
		CreatedAt: s.now(),
	}
	if err := tx.InsertCustomer(ctx, customer); err != nil {
		return domain.Customer{}, err
	}
	return customer, nil
}
