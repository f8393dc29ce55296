package store

import (
	"context"
	"errors"
	"time"

	"kiranabook/backend/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid request")
	ErrConflict = errors.New("conflict")
	ErrInUse    = errors.New("in use")
)

// Repository is the durable store. Reads run outside any unit; every write
// goes through Atomic so that a failure anywhere inside fn leaves nothing
// behind.
type Repository interface {
	Atomic(ctx context.Context, fn func(tx Tx) error) error

	ListProducts(ctx context.Context, includeDisabled bool) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProductHistory(ctx context.Context, productID string, limit int) ([]domain.ProductHistory, error)

	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)

	GetTransaction(ctx context.Context, kind domain.Kind, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, kind domain.Kind, filter domain.TransactionFilter) ([]domain.Transaction, error)
	Summary(ctx context.Context, kind domain.Kind, from time.Time, to time.Time, topN int) (domain.Summary, error)
}

// Tx is one atomic unit. Implementations lock what they return "for update"
// until the unit ends.
type Tx interface {
	GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error)
	GetProductForUpdate(ctx context.Context, id string) (*domain.Product, error)
	InsertProduct(ctx context.Context, product domain.Product) error
	UpdateProduct(ctx context.Context, product domain.Product) error
	InsertProductHistory(ctx context.Context, entry domain.ProductHistory) error
	DeleteProduct(ctx context.Context, id string) error
	ApplyQuantityDeltas(ctx context.Context, deltas []domain.ProductDelta, at time.Time) error

	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	FindCustomerByName(ctx context.Context, name string) (*domain.Customer, error)
	InsertCustomer(ctx context.Context, customer domain.Customer) error

	GetTransactionForUpdate(ctx context.Context, kind domain.Kind, id string) (*domain.Transaction, error)
	NextSequenceNo(ctx context.Context, kind domain.Kind) (int64, error)
	SequenceTaken(ctx context.Context, kind domain.Kind, sequenceNo int64, excludeID string) (bool, error)
	InsertTransaction(ctx context.Context, kind domain.Kind, header domain.Transaction) error
	UpdateTransaction(ctx context.Context, kind domain.Kind, header domain.Transaction) error
	DeleteTransaction(ctx context.Context, kind domain.Kind, id string) error

	ListItems(ctx context.Context, kind domain.Kind, parentID string) ([]domain.LineItem, error)
	InsertItems(ctx context.Context, kind domain.Kind, items []domain.LineItem) error
	UpdateItems(ctx context.Context, kind domain.Kind, items []domain.LineItem) error
	DeleteItems(ctx context.Context, kind domain.Kind, ids []string) error
	GetItemForUpdate(ctx context.Context, kind domain.Kind, parentID string, itemID string) (*domain.LineItem, error)
	SetCheckedQty(ctx context.Context, kind domain.Kind, itemID string, checkedQty int64, at time.Time) error
	SetAllChecked(ctx context.Context, kind domain.Kind, parentID string, checked bool, at time.Time) error
}
