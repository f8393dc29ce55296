package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind selects the transaction variant. Sales and estimates share every
// rule and differ only in their sequence-number namespace.
type Kind string

const (
	KindSale     Kind = "sale"
	KindEstimate Kind = "estimate"
)

func (k Kind) Valid() bool {
	return k == KindSale || k == KindEstimate
}

// Other returns the variant a conversion moves into.
func (k Kind) Other() Kind {
	if k == KindSale {
		return KindEstimate
	}
	return KindSale
}

// The well-known customer used when a bill names nobody.
const (
	DefaultCustomerID   = "cus_default"
	DefaultCustomerName = "DEFAULT"
)

type Product struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	ProductSnapshot   string     `json:"productSnapshot"`
	Weight            string     `json:"weight"`
	Unit              string     `json:"unit"`
	MRP               int64      `json:"mrp"`
	Price             int64      `json:"price"`
	PurchasePrice     int64      `json:"purchasePrice"`
	TotalQuantitySold int64      `json:"totalQuantitySold"`
	IsDisabled        bool       `json:"isDisabled"`
	IsDeleted         bool       `json:"isDeleted"`
	DisabledAt        *time.Time `json:"disabledAt,omitempty"`
	DeletedAt         *time.Time `json:"deletedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

type ProductCreateRequest struct {
	Name          string              `json:"name" validate:"required,max=200"`
	Weight        string              `json:"weight" validate:"max=32"`
	Unit          string              `json:"unit" validate:"max=32"`
	MRP           decimal.NullDecimal `json:"mrp"`
	Price         decimal.Decimal     `json:"price"`
	PurchasePrice decimal.NullDecimal `json:"purchasePrice"`
}

// ProductUpdateRequest names every mutable field; nil means "not provided".
type ProductUpdateRequest struct {
	Name          *string          `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Weight        *string          `json:"weight,omitempty" validate:"omitempty,max=32"`
	Unit          *string          `json:"unit,omitempty" validate:"omitempty,max=32"`
	MRP           *decimal.Decimal `json:"mrp,omitempty"`
	Price         *decimal.Decimal `json:"price,omitempty"`
	PurchasePrice *decimal.Decimal `json:"purchasePrice,omitempty"`
	IsDisabled    *bool            `json:"isDisabled,omitempty"`
	IsDeleted     *bool            `json:"isDeleted,omitempty"`
}

// ProductHistory is an append-only audit row written whenever price, MRP
// or purchase price changes on update.
type ProductHistory struct {
	ID               string    `json:"id"`
	ProductID        string    `json:"productId"`
	OldPrice         int64     `json:"oldPrice"`
	NewPrice         int64     `json:"newPrice"`
	OldMRP           int64     `json:"oldMrp"`
	NewMRP           int64     `json:"newMrp"`
	OldPurchasePrice int64     `json:"oldPurchasePrice"`
	NewPurchasePrice int64     `json:"newPurchasePrice"`
	ChangedAt        time.Time `json:"changedAt"`
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Phone string `json:"phone" validate:"max=32"`
}

// LineItem is a persisted sale or estimate row. Money is in paise and
// quantities are in milli-units. RowID is echoed back to the caller and
// never stored.
type LineItem struct {
	ID              string    `json:"id"`
	ParentID        string    `json:"parentId"`
	RowID           string    `json:"rowId,omitempty"`
	ProductID       string    `json:"productId,omitempty"`
	Name            string    `json:"name"`
	ProductSnapshot string    `json:"productSnapshot"`
	Weight          string    `json:"weight"`
	Unit            string    `json:"unit"`
	MRP             int64     `json:"mrp"`
	Price           int64     `json:"price"`
	PurchasePrice   int64     `json:"purchasePrice"`
	Quantity        int64     `json:"quantity"`
	TotalPrice      int64     `json:"totalPrice"`
	CheckedQty      int64     `json:"checkedQty"`
	IsInventoryItem bool      `json:"isInventoryItem"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type Transaction struct {
	ID            string     `json:"id"`
	Kind          Kind       `json:"type"`
	SequenceNo    int64      `json:"sequenceNo"`
	CustomerID    string     `json:"customerId,omitempty"`
	CustomerName  string     `json:"customerName,omitempty"`
	GrandTotal    int64      `json:"grandTotal"`
	TotalQuantity int64      `json:"totalQuantity"`
	IsPaid        bool       `json:"isPaid"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	Items         []LineItem `json:"items"`
}

// LineItemInput is the wire shape of a submitted row. Money and quantity
// arrive as decimals and go through the money codec before any arithmetic.
type LineItemInput struct {
	RowID           string              `json:"rowId" validate:"max=64"`
	ID              string              `json:"id,omitempty"`
	ProductID       string              `json:"productId,omitempty"`
	Name            string              `json:"name" validate:"max=200"`
	ProductSnapshot string              `json:"productSnapshot" validate:"max=400"`
	Weight          string              `json:"weight,omitempty" validate:"max=32"`
	Unit            string              `json:"unit,omitempty" validate:"max=32"`
	MRP             decimal.NullDecimal `json:"mrp"`
	Price           decimal.Decimal     `json:"price"`
	PurchasePrice   decimal.NullDecimal `json:"purchasePrice"`
	Quantity        decimal.Decimal     `json:"quantity"`
	CheckedQty      decimal.NullDecimal `json:"checkedQty"`
	IsInventoryItem bool                `json:"isInventoryItem"`
}

type TransactionInput struct {
	TransactionNo *int64          `json:"transactionNo,omitempty" validate:"omitempty,gt=0"`
	CustomerID    string          `json:"customerId,omitempty"`
	CustomerName  string          `json:"customerName,omitempty" validate:"max=200"`
	IsPaid        bool            `json:"isPaid"`
	Items         []LineItemInput `json:"items" validate:"dive"`
	CreatedAt     *time.Time      `json:"createdAt,omitempty"`
}

type ItemIdentity struct {
	RowID    string `json:"rowId"`
	ID       string `json:"id"`
	ParentID string `json:"parentId"`
}

type CreateTransactionResponse struct {
	ID    string         `json:"id"`
	Type  Kind           `json:"type"`
	Items []ItemIdentity `json:"items"`
}

type ConvertTransactionResponse struct {
	ID   string `json:"id"`
	Type Kind   `json:"type"`
}

type TransactionFilter struct {
	From       *time.Time
	To         *time.Time
	CustomerID string
	IsPaid     *bool
	Limit      int
}

// CheckAction drives the per-item checked-quantity state machine.
type CheckAction string

const (
	CheckSet       CheckAction = "set"
	CheckIncrement CheckAction = "inc"
	CheckDecrement CheckAction = "dec"
	CheckMarkAll   CheckAction = "mark_all"
	CheckUnmarkAll CheckAction = "unmark_all"
)

type CheckedQtyRequest struct {
	Action CheckAction `json:"action" validate:"required,oneof=set inc dec"`
}

type CheckedQtyBatchRequest struct {
	Action CheckAction `json:"action" validate:"required,oneof=mark_all unmark_all"`
}

type ProductSales struct {
	ProductID  string `json:"productId"`
	Name       string `json:"name"`
	Quantity   int64  `json:"quantity"`
	TotalPrice int64  `json:"totalPrice"`
}

type Summary struct {
	Kind          Kind           `json:"type"`
	From          string         `json:"from"`
	To            string         `json:"to"`
	Transactions  int64          `json:"transactions"`
	GrandTotal    int64          `json:"grandTotal"`
	TotalQuantity int64          `json:"totalQuantity"`
	PaidTotal     int64          `json:"paidTotal"`
	UnpaidTotal   int64          `json:"unpaidTotal"`
	TopProducts   []ProductSales `json:"topProducts"`
}

// ProductDelta is the net change to one product's quantity-sold counter
// produced by a single reconciliation.
type ProductDelta struct {
	ProductID string
	Delta     int64
}
