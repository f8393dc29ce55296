package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kiranabook/backend/internal/domain"
	"kiranabook/backend/internal/store"
)

// unit implements store.Tx on top of one database transaction.
type unit struct {
	tx *sql.Tx
}

func (u *unit) GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := u.tx.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (u *unit) GetProductForUpdate(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(u.tx.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	return &p, nil
}

func (u *unit) InsertProduct(ctx context.Context, p domain.Product) error {
	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO products (
			id, name, product_snapshot, weight, unit, mrp, price, purchase_price,
			total_quantity_sold, is_disabled, is_deleted, disabled_at, deleted_at, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, p.ID, p.Name, p.ProductSnapshot, p.Weight, p.Unit, p.MRP, p.Price, p.PurchasePrice,
		p.TotalQuantitySold, p.IsDisabled, p.IsDeleted, nullTime(p.DisabledAt), nullTime(p.DeletedAt),
		p.CreatedAt, p.UpdatedAt)
	return mapError(err)
}

// UpdateProduct writes every mutable column except the quantity-sold
// counter, which only ApplyQuantityDeltas moves.
func (u *unit) UpdateProduct(ctx context.Context, p domain.Product) error {
	res, err := u.tx.ExecContext(ctx, `
		UPDATE products
		SET name = $2, product_snapshot = $3, weight = $4, unit = $5, mrp = $6, price = $7,
			purchase_price = $8, is_disabled = $9, is_deleted = $10, disabled_at = $11,
			deleted_at = $12, updated_at = $13
		WHERE id = $1
	`, p.ID, p.Name, p.ProductSnapshot, p.Weight, p.Unit, p.MRP, p.Price, p.PurchasePrice,
		p.IsDisabled, p.IsDeleted, nullTime(p.DisabledAt), nullTime(p.DeletedAt), p.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	return expectAffected(res, "product", p.ID)
}

func (u *unit) InsertProductHistory(ctx context.Context, entry domain.ProductHistory) error {
	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO product_history (
			id, product_id, old_price, new_price, old_mrp, new_mrp,
			old_purchase_price, new_purchase_price, changed_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.ProductID, entry.OldPrice, entry.NewPrice, entry.OldMRP, entry.NewMRP,
		entry.OldPurchasePrice, entry.NewPurchasePrice, entry.ChangedAt)
	return mapError(err)
}

// DeleteProduct relies on the line-item foreign keys: a referenced product
// fails with a foreign-key violation that maps to store.ErrInUse.
func (u *unit) DeleteProduct(ctx context.Context, id string) error {
	res, err := u.tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	return expectAffected(res, "product", id)
}

// ApplyQuantityDeltas issues one additive update per product. Deltas
// arrive sorted by product id so concurrent units lock rows in the same
// order.
func (u *unit) ApplyQuantityDeltas(ctx context.Context, deltas []domain.ProductDelta, at time.Time) error {
	for _, d := range deltas {
		res, err := u.tx.ExecContext(ctx, `
			UPDATE products
			SET total_quantity_sold = total_quantity_sold + $2, updated_at = $3
			WHERE id = $1
		`, d.ProductID, d.Delta, at)
		if err != nil {
			return mapError(err)
		}
		if err := expectAffected(res, "product", d.ProductID); err != nil {
			return err
		}
	}
	return nil
}

func (u *unit) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return getCustomer(ctx, u.tx, id)
}

func (u *unit) FindCustomerByName(ctx context.Context, name string) (*domain.Customer, error) {
	var c domain.Customer
	err := u.tx.QueryRowContext(ctx, `
		SELECT id, name, phone, created_at
		FROM customers
		WHERE lower(name) = lower($1)
	`, name).Scan(&c.ID, &c.Name, &c.Phone, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: customer %q", store.ErrNotFound, name)
		}
		return nil, err
	}
	return &c, nil
}

func (u *unit) InsertCustomer(ctx context.Context, c domain.Customer) error {
	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, created_at)
		VALUES ($1,$2,$3,$4)
	`, c.ID, c.Name, c.Phone, c.CreatedAt)
	return mapError(err)
}

func (u *unit) GetTransactionForUpdate(ctx context.Context, kind domain.Kind, id string) (*domain.Transaction, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	header, err := scanHeader(u.tx.QueryRowContext(ctx, `
		SELECT h.id, h.`+t.seq+`, COALESCE(h.customer_id, ''), COALESCE(c.name, ''),
			h.grand_total, h.total_quantity, h.is_paid, h.created_at, h.updated_at
		FROM `+t.header+` h
		LEFT JOIN customers c ON c.id = h.customer_id
		WHERE h.id = $1
		FOR UPDATE OF h
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s %s", store.ErrNotFound, kind, id)
		}
		return nil, err
	}
	header.Kind = kind
	return &header, nil
}

// NextSequenceNo serializes number assignment per kind with a
// transaction-scoped advisory lock so two creates never read the same max.
func (u *unit) NextSequenceNo(ctx context.Context, kind domain.Kind) (int64, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return 0, err
	}
	if _, err := u.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, t.header); err != nil {
		return 0, err
	}
	var next int64
	if err := u.tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(`+t.seq+`), 0) + 1 FROM `+t.header).Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

func (u *unit) SequenceTaken(ctx context.Context, kind domain.Kind, sequenceNo int64, excludeID string) (bool, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return false, err
	}
	var taken bool
	err = u.tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM `+t.header+` WHERE `+t.seq+` = $1 AND id <> $2)
	`, sequenceNo, excludeID).Scan(&taken)
	return taken, err
}

func (u *unit) InsertTransaction(ctx context.Context, kind domain.Kind, h domain.Transaction) error {
	t, err := tablesFor(kind)
	if err != nil {
		return err
	}
	_, err = u.tx.ExecContext(ctx, `
		INSERT INTO `+t.header+` (id, `+t.seq+`, customer_id, grand_total, total_quantity, is_paid, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, h.ID, h.SequenceNo, nullIfEmpty(h.CustomerID), h.GrandTotal, h.TotalQuantity, h.IsPaid, h.CreatedAt, h.UpdatedAt)
	return mapError(err)
}

func (u *unit) UpdateTransaction(ctx context.Context, kind domain.Kind, h domain.Transaction) error {
	t, err := tablesFor(kind)
	if err != nil {
		return err
	}
	res, err := u.tx.ExecContext(ctx, `
		UPDATE `+t.header+`
		SET `+t.seq+` = $2, customer_id = $3, grand_total = $4, total_quantity = $5,
			is_paid = $6, created_at = $7, updated_at = $8
		WHERE id = $1
	`, h.ID, h.SequenceNo, nullIfEmpty(h.CustomerID), h.GrandTotal, h.TotalQuantity, h.IsPaid, h.CreatedAt, h.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	return expectAffected(res, string(kind), h.ID)
}

func (u *unit) DeleteTransaction(ctx context.Context, kind domain.Kind, id string) error {
	t, err := tablesFor(kind)
	if err != nil {
		return err
	}
	res, err := u.tx.ExecContext(ctx, `DELETE FROM `+t.header+` WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	return expectAffected(res, string(kind), id)
}

func (u *unit) ListItems(ctx context.Context, kind domain.Kind, parentID string) ([]domain.LineItem, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	return listItems(ctx, u.tx, t, parentID)
}

func (u *unit) InsertItems(ctx context.Context, kind domain.Kind, items []domain.LineItem) error {
	t, err := tablesFor(kind)
	if err != nil {
		return err
	}
	for _, item := range items {
		_, err := u.tx.ExecContext(ctx, `
			INSERT INTO `+t.items+` (
				id, parent_id, product_id, name, product_snapshot, weight, unit, mrp, price,
				purchase_price, quantity, total_price, checked_qty, is_inventory_item, created_at, updated_at
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		`, item.ID, item.ParentID, nullIfEmpty(item.ProductID), item.Name, item.ProductSnapshot, item.Weight,
			item.Unit, item.MRP, item.Price, item.PurchasePrice, item.Quantity, item.TotalPrice, item.CheckedQty,
			item.IsInventoryItem, item.CreatedAt, item.UpdatedAt)
		if err != nil {
			return mapError(err)
		}
	}
	return nil
}

func (u *unit) UpdateItems(ctx context.Context, kind domain.Kind, items []domain.LineItem) error {
	t, err := tablesFor(kind)
	if err != nil {
		return err
	}
	for _, item := range items {
		res, err := u.tx.ExecContext(ctx, `
			UPDATE `+t.items+`
			SET product_id = $2, name = $3, product_snapshot = $4, weight = $5, unit = $6, mrp = $7,
				price = $8, purchase_price = $9, quantity = $10, total_price = $11, checked_qty = $12,
				is_inventory_item = $13, updated_at = $14
			WHERE id = $1
		`, item.ID, nullIfEmpty(item.ProductID), item.Name, item.ProductSnapshot, item.Weight, item.Unit, item.MRP,
			item.Price, item.PurchasePrice, item.Quantity, item.TotalPrice, item.CheckedQty,
			item.IsInventoryItem, item.UpdatedAt)
		if err != nil {
			return mapError(err)
		}
		if err := expectAffected(res, "item", item.ID); err != nil {
			return err
		}
	}
	return nil
}

func (u *unit) DeleteItems(ctx context.Context, kind domain.Kind, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	t, err := tablesFor(kind)
	if err != nil {
		return err
	}
	_, err = u.tx.ExecContext(ctx, `DELETE FROM `+t.items+` WHERE id = ANY($1)`, ids)
	return mapError(err)
}

func (u *unit) GetItemForUpdate(ctx context.Context, kind domain.Kind, parentID string, itemID string) (*domain.LineItem, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	item, err := scanItem(u.tx.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM `+t.items+`
		WHERE id = $1 AND parent_id = $2
		FOR UPDATE
	`, itemID, parentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: item %s on %s %s", store.ErrNotFound, itemID, kind, parentID)
		}
		return nil, err
	}
	return &item, nil
}

func (u *unit) SetCheckedQty(ctx context.Context, kind domain.Kind, itemID string, checkedQty int64, at time.Time) error {
	t, err := tablesFor(kind)
	if err != nil {
		return err
	}
	res, err := u.tx.ExecContext(ctx, `
		UPDATE `+t.items+`
		SET checked_qty = $2, updated_at = $3
		WHERE id = $1
	`, itemID, checkedQty, at)
	if err != nil {
		return mapError(err)
	}
	return expectAffected(res, "item", itemID)
}

func (u *unit) SetAllChecked(ctx context.Context, kind domain.Kind, parentID string, checked bool, at time.Time) error {
	t, err := tablesFor(kind)
	if err != nil {
		return err
	}
	_, err = u.tx.ExecContext(ctx, `
		UPDATE `+t.items+`
		SET checked_qty = CASE WHEN $2 THEN quantity ELSE 0 END, updated_at = $3
		WHERE parent_id = $1
	`, parentID, checked, at)
	return mapError(err)
}

func expectAffected(res sql.Result, what string, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s %s", store.ErrNotFound, what, id)
	}
	return nil
}
