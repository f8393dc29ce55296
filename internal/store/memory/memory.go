package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"kiranabook/backend/internal/domain"
	"kiranabook/backend/internal/store"
)

// Store keeps everything in process. Atomic units run against a private
// copy of the state that replaces the live one only when the unit returns
// nil, so a failed unit leaves no trace.
type Store struct {
	mu   sync.RWMutex
	data *state
}

type state struct {
	products   map[string]domain.Product
	history    map[string][]domain.ProductHistory
	customers  map[string]domain.Customer
	headers    map[domain.Kind]map[string]domain.Transaction
	items      map[domain.Kind]map[string][]domain.LineItem
	itemParent map[domain.Kind]map[string]string
}

func New() *Store {
	return &Store{data: newState()}
}

// NewSeeded returns a store with a small kirana catalogue and the DEFAULT
// customer for dev mode.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	products := []domain.Product{
		{ID: "prd_seed_sugar", Name: "Sugar", Weight: "1", Unit: "kg", MRP: 4800, Price: 4500, PurchasePrice: 4100},
		{ID: "prd_seed_atta", Name: "Whole Wheat Atta", Weight: "5", Unit: "kg", MRP: 26500, Price: 24900, PurchasePrice: 22800},
		{ID: "prd_seed_toordal", Name: "Toor Dal", Weight: "1", Unit: "kg", MRP: 16000, Price: 14800, PurchasePrice: 13500},
		{ID: "prd_seed_oil", Name: "Sunflower Oil", Weight: "1", Unit: "l", MRP: 17500, Price: 16200, PurchasePrice: 15000},
		{ID: "prd_seed_tea", Name: "Tea Leaves", Weight: "250", Unit: "g", MRP: 14000, Price: 13000, PurchasePrice: 11800},
		{ID: "prd_seed_rice", Name: "Loose Rice", Weight: "none", Unit: "", Price: 6800, PurchasePrice: 6000},
		{ID: "prd_seed_soap", Name: "Bath Soap", Weight: "1", Unit: "pc", MRP: 4000, Price: 3800, PurchasePrice: 3200},
		{ID: "prd_seed_salt", Name: "Iodised Salt", Weight: "1", Unit: "kg", MRP: 2800, Price: 2800, PurchasePrice: 2200},
	}
	for _, p := range products {
		p.CreatedAt = now
		p.UpdatedAt = now
		s.data.products[p.ID] = p
	}
	s.data.customers[domain.DefaultCustomerID] = domain.Customer{
		ID:        domain.DefaultCustomerID,
		Name:      domain.DefaultCustomerName,
		CreatedAt: now,
	}
	return s
}

func newState() *state {
	return &state{
		products:  make(map[string]domain.Product),
		history:   make(map[string][]domain.ProductHistory),
		customers: make(map[string]domain.Customer),
		headers: map[domain.Kind]map[string]domain.Transaction{
			domain.KindSale:     {},
			domain.KindEstimate: {},
		},
		items: map[domain.Kind]map[string][]domain.LineItem{
			domain.KindSale:     {},
			domain.KindEstimate: {},
		},
		itemParent: map[domain.Kind]map[string]string{
			domain.KindSale:     {},
			domain.KindEstimate: {},
		},
	}
}

func (s *Store) Atomic(_ context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(&unit{st: work}); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *Store) ListProducts(_ context.Context, includeDisabled bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.data.products))
	for _, p := range s.data.products {
		if p.IsDeleted {
			continue
		}
		if p.IsDisabled && !includeDisabled {
			continue
		}
		products = append(products, cloneProduct(p))
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Name == b.Name {
			return strings.Compare(a.ID, b.ID)
		}
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, id)
	}
	dup := cloneProduct(p)
	return &dup, nil
}

func (s *Store) ListProductHistory(_ context.Context, productID string, limit int) ([]domain.ProductHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.data.products[productID]; !ok {
		return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
	}
	entries := s.data.history[productID]
	out := make([]domain.ProductHistory, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.data.customers))
	for _, c := range s.data.customers {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return strings.Compare(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.customer(id)
}

func (s *Store) GetTransaction(_ context.Context, kind domain.Kind, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	header, err := s.data.header(kind, id)
	if err != nil {
		return nil, err
	}
	header.Items = cloneItems(s.data.items[kind][id])
	return header, nil
}

func (s *Store) ListTransactions(_ context.Context, kind domain.Kind, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Transaction, 0, 32)
	for _, t := range s.data.headers[kind] {
		if filter.From != nil && t.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !t.CreatedAt.Before(*filter.To) {
			continue
		}
		if filter.CustomerID != "" && t.CustomerID != filter.CustomerID {
			continue
		}
		if filter.IsPaid != nil && t.IsPaid != *filter.IsPaid {
			continue
		}
		t.Items = []domain.LineItem{}
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b domain.Transaction) int {
		if a.SequenceNo == b.SequenceNo {
			return strings.Compare(a.ID, b.ID)
		}
		if a.SequenceNo > b.SequenceNo {
			return -1
		}
		return 1
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) Summary(_ context.Context, kind domain.Kind, from time.Time, to time.Time, topN int) (domain.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.Summary{Kind: kind, TopProducts: make([]domain.ProductSales, 0, topN)}
	byProduct := map[string]*domain.ProductSales{}

	for id, t := range s.data.headers[kind] {
		if t.CreatedAt.Before(from) || !t.CreatedAt.Before(to) {
			continue
		}
		summary.Transactions++
		summary.GrandTotal += t.GrandTotal
		summary.TotalQuantity += t.TotalQuantity
		if t.IsPaid {
			summary.PaidTotal += t.GrandTotal
		} else {
			summary.UnpaidTotal += t.GrandTotal
		}

		for _, item := range s.data.items[kind][id] {
			if item.ProductID == "" {
				continue
			}
			entry := byProduct[item.ProductID]
			if entry == nil {
				name := item.Name
				if p, ok := s.data.products[item.ProductID]; ok {
					name = p.Name
				}
				entry = &domain.ProductSales{ProductID: item.ProductID, Name: name}
				byProduct[item.ProductID] = entry
			}
			entry.Quantity += item.Quantity
			entry.TotalPrice += item.TotalPrice
		}
	}

	for _, entry := range byProduct {
		summary.TopProducts = append(summary.TopProducts, *entry)
	}
	slices.SortFunc(summary.TopProducts, func(a, b domain.ProductSales) int {
		if a.Quantity == b.Quantity {
			return strings.Compare(a.ProductID, b.ProductID)
		}
		if a.Quantity > b.Quantity {
			return -1
		}
		return 1
	})
	if topN > 0 && len(summary.TopProducts) > topN {
		summary.TopProducts = summary.TopProducts[:topN]
	}
	return summary, nil
}

// unit is the store.Tx handed to an atomic unit. It mutates the working
// copy directly; the caller already holds the store lock.
type unit struct {
	st *state
}

func (u *unit) GetProducts(_ context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := u.st.products[id]; ok {
			out[id] = cloneProduct(p)
		}
	}
	return out, nil
}

func (u *unit) GetProductForUpdate(_ context.Context, id string) (*domain.Product, error) {
	p, ok := u.st.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, id)
	}
	dup := cloneProduct(p)
	return &dup, nil
}

func (u *unit) InsertProduct(_ context.Context, product domain.Product) error {
	if _, exists := u.st.products[product.ID]; exists {
		return fmt.Errorf("%w: product %s already exists", store.ErrConflict, product.ID)
	}
	u.st.products[product.ID] = cloneProduct(product)
	return nil
}

func (u *unit) UpdateProduct(_ context.Context, product domain.Product) error {
	if _, ok := u.st.products[product.ID]; !ok {
		return fmt.Errorf("%w: product %s", store.ErrNotFound, product.ID)
	}
	u.st.products[product.ID] = cloneProduct(product)
	return nil
}

func (u *unit) InsertProductHistory(_ context.Context, entry domain.ProductHistory) error {
	if _, ok := u.st.products[entry.ProductID]; !ok {
		return fmt.Errorf("%w: product %s", store.ErrNotFound, entry.ProductID)
	}
	u.st.history[entry.ProductID] = append(u.st.history[entry.ProductID], entry)
	return nil
}

func (u *unit) DeleteProduct(_ context.Context, id string) error {
	if _, ok := u.st.products[id]; !ok {
		return fmt.Errorf("%w: product %s", store.ErrNotFound, id)
	}
	for _, byParent := range u.st.items {
		for _, items := range byParent {
			for _, item := range items {
				if item.ProductID == id {
					return fmt.Errorf("%w: product %s is referenced by line items", store.ErrInUse, id)
				}
			}
		}
	}
	delete(u.st.products, id)
	delete(u.st.history, id)
	return nil
}

func (u *unit) ApplyQuantityDeltas(_ context.Context, deltas []domain.ProductDelta, at time.Time) error {
	for _, d := range deltas {
		p, ok := u.st.products[d.ProductID]
		if !ok {
			return fmt.Errorf("%w: product %s", store.ErrNotFound, d.ProductID)
		}
		p.TotalQuantitySold += d.Delta
		p.UpdatedAt = at
		u.st.products[d.ProductID] = p
	}
	return nil
}

func (u *unit) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	return u.st.customer(id)
}

func (u *unit) FindCustomerByName(_ context.Context, name string) (*domain.Customer, error) {
	for _, c := range u.st.customers {
		if strings.EqualFold(c.Name, name) {
			dup := c
			return &dup, nil
		}
	}
	return nil, fmt.Errorf("%w: customer %q", store.ErrNotFound, name)
}

func (u *unit) InsertCustomer(_ context.Context, customer domain.Customer) error {
	for _, c := range u.st.customers {
		if strings.EqualFold(c.Name, customer.Name) {
			return fmt.Errorf("%w: customer %q already exists", store.ErrConflict, customer.Name)
		}
	}
	u.st.customers[customer.ID] = customer
	return nil
}

func (u *unit) GetTransactionForUpdate(_ context.Context, kind domain.Kind, id string) (*domain.Transaction, error) {
	return u.st.header(kind, id)
}

func (u *unit) NextSequenceNo(_ context.Context, kind domain.Kind) (int64, error) {
	var maxNo int64
	for _, t := range u.st.headers[kind] {
		if t.SequenceNo > maxNo {
			maxNo = t.SequenceNo
		}
	}
	return maxNo + 1, nil
}

func (u *unit) SequenceTaken(_ context.Context, kind domain.Kind, sequenceNo int64, excludeID string) (bool, error) {
	for id, t := range u.st.headers[kind] {
		if id != excludeID && t.SequenceNo == sequenceNo {
			return true, nil
		}
	}
	return false, nil
}

func (u *unit) InsertTransaction(ctx context.Context, kind domain.Kind, header domain.Transaction) error {
	if _, exists := u.st.headers[kind][header.ID]; exists {
		return fmt.Errorf("%w: %s %s already exists", store.ErrConflict, kind, header.ID)
	}
	taken, _ := u.SequenceTaken(ctx, kind, header.SequenceNo, header.ID)
	if taken {
		return fmt.Errorf("%w: %s number %d already used", store.ErrConflict, kind, header.SequenceNo)
	}
	header.Kind = kind
	header.Items = nil
	u.st.headers[kind][header.ID] = header
	u.st.items[kind][header.ID] = []domain.LineItem{}
	return nil
}

func (u *unit) UpdateTransaction(ctx context.Context, kind domain.Kind, header domain.Transaction) error {
	if _, ok := u.st.headers[kind][header.ID]; !ok {
		return fmt.Errorf("%w: %s %s", store.ErrNotFound, kind, header.ID)
	}
	taken, _ := u.SequenceTaken(ctx, kind, header.SequenceNo, header.ID)
	if taken {
		return fmt.Errorf("%w: %s number %d already used", store.ErrConflict, kind, header.SequenceNo)
	}
	header.Kind = kind
	header.Items = nil
	u.st.headers[kind][header.ID] = header
	return nil
}

func (u *unit) DeleteTransaction(_ context.Context, kind domain.Kind, id string) error {
	if _, ok := u.st.headers[kind][id]; !ok {
		return fmt.Errorf("%w: %s %s", store.ErrNotFound, kind, id)
	}
	for _, item := range u.st.items[kind][id] {
		delete(u.st.itemParent[kind], item.ID)
	}
	delete(u.st.items[kind], id)
	delete(u.st.headers[kind], id)
	return nil
}

func (u *unit) ListItems(_ context.Context, kind domain.Kind, parentID string) ([]domain.LineItem, error) {
	return cloneItems(u.st.items[kind][parentID]), nil
}

func (u *unit) InsertItems(_ context.Context, kind domain.Kind, items []domain.LineItem) error {
	for _, item := range items {
		if _, ok := u.st.headers[kind][item.ParentID]; !ok {
			return fmt.Errorf("%w: %s %s", store.ErrNotFound, kind, item.ParentID)
		}
		if _, exists := u.st.itemParent[kind][item.ID]; exists {
			return fmt.Errorf("%w: item %s already exists", store.ErrConflict, item.ID)
		}
		if item.ProductID != "" {
			if _, ok := u.st.products[item.ProductID]; !ok {
				return fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
			}
		}
		item.RowID = ""
		u.st.items[kind][item.ParentID] = append(u.st.items[kind][item.ParentID], item)
		u.st.itemParent[kind][item.ID] = item.ParentID
	}
	return nil
}

func (u *unit) UpdateItems(_ context.Context, kind domain.Kind, items []domain.LineItem) error {
	for _, item := range items {
		parentID, ok := u.st.itemParent[kind][item.ID]
		if !ok {
			return fmt.Errorf("%w: item %s", store.ErrNotFound, item.ID)
		}
		if item.ProductID != "" {
			if _, ok := u.st.products[item.ProductID]; !ok {
				return fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
			}
		}
		siblings := u.st.items[kind][parentID]
		for i := range siblings {
			if siblings[i].ID == item.ID {
				item.ParentID = parentID
				item.RowID = ""
				item.CreatedAt = siblings[i].CreatedAt
				siblings[i] = item
				break
			}
		}
	}
	return nil
}

func (u *unit) DeleteItems(_ context.Context, kind domain.Kind, ids []string) error {
	for _, id := range ids {
		parentID, ok := u.st.itemParent[kind][id]
		if !ok {
			continue
		}
		u.st.items[kind][parentID] = slices.DeleteFunc(u.st.items[kind][parentID], func(item domain.LineItem) bool {
			return item.ID == id
		})
		delete(u.st.itemParent[kind], id)
	}
	return nil
}

func (u *unit) GetItemForUpdate(_ context.Context, kind domain.Kind, parentID string, itemID string) (*domain.LineItem, error) {
	for _, item := range u.st.items[kind][parentID] {
		if item.ID == itemID {
			dup := item
			return &dup, nil
		}
	}
	return nil, fmt.Errorf("%w: item %s on %s %s", store.ErrNotFound, itemID, kind, parentID)
}

func (u *unit) SetCheckedQty(_ context.Context, kind domain.Kind, itemID string, checkedQty int64, at time.Time) error {
	parentID, ok := u.st.itemParent[kind][itemID]
	if !ok {
		return fmt.Errorf("%w: item %s", store.ErrNotFound, itemID)
	}
	siblings := u.st.items[kind][parentID]
	for i := range siblings {
		if siblings[i].ID == itemID {
			siblings[i].CheckedQty = checkedQty
			siblings[i].UpdatedAt = at
		}
	}
	return nil
}

func (u *unit) SetAllChecked(_ context.Context, kind domain.Kind, parentID string, checked bool, at time.Time) error {
	if _, ok := u.st.headers[kind][parentID]; !ok {
		return fmt.Errorf("%w: %s %s", store.ErrNotFound, kind, parentID)
	}
	siblings := u.st.items[kind][parentID]
	for i := range siblings {
		if checked {
			siblings[i].CheckedQty = siblings[i].Quantity
		} else {
			siblings[i].CheckedQty = 0
		}
		siblings[i].UpdatedAt = at
	}
	return nil
}

func (st *state) customer(id string) (*domain.Customer, error) {
	c, ok := st.customers[id]
	if !ok {
		return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, id)
	}
	return &c, nil
}

func (st *state) header(kind domain.Kind, id string) (*domain.Transaction, error) {
	t, ok := st.headers[kind][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", store.ErrNotFound, kind, id)
	}
	if c, ok := st.customers[t.CustomerID]; ok {
		t.CustomerName = c.Name
	}
	return &t, nil
}

func (st *state) clone() *state {
	dup := &state{
		products:   make(map[string]domain.Product, len(st.products)),
		history:    make(map[string][]domain.ProductHistory, len(st.history)),
		customers:  make(map[string]domain.Customer, len(st.customers)),
		headers:    make(map[domain.Kind]map[string]domain.Transaction, len(st.headers)),
		items:      make(map[domain.Kind]map[string][]domain.LineItem, len(st.items)),
		itemParent: make(map[domain.Kind]map[string]string, len(st.itemParent)),
	}
	for id, p := range st.products {
		dup.products[id] = cloneProduct(p)
	}
	for id, entries := range st.history {
		dup.history[id] = slices.Clone(entries)
	}
	for id, c := range st.customers {
		dup.customers[id] = c
	}
	for kind, byID := range st.headers {
		headers := make(map[string]domain.Transaction, len(byID))
		for id, t := range byID {
			headers[id] = t
		}
		dup.headers[kind] = headers
	}
	for kind, byParent := range st.items {
		items := make(map[string][]domain.LineItem, len(byParent))
		for parentID, list := range byParent {
			items[parentID] = cloneItems(list)
		}
		dup.items[kind] = items
	}
	for kind, parents := range st.itemParent {
		idx := make(map[string]string, len(parents))
		for itemID, parentID := range parents {
			idx[itemID] = parentID
		}
		dup.itemParent[kind] = idx
	}
	return dup
}

func cloneProduct(src domain.Product) domain.Product {
	dup := src
	if src.DisabledAt != nil {
		at := *src.DisabledAt
		dup.DisabledAt = &at
	}
	if src.DeletedAt != nil {
		at := *src.DeletedAt
		dup.DeletedAt = &at
	}
	return dup
}

func cloneItems(src []domain.LineItem) []domain.LineItem {
	dup := make([]domain.LineItem, len(src))
	copy(dup, src)
	return dup
}
