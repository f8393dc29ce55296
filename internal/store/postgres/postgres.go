package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"kiranabook/backend/internal/domain"
	"kiranabook/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// NewFromDB wraps an already opened pool.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Atomic runs fn inside one READ COMMITTED transaction. Rows fetched
// "for update" stay locked until fn returns; any error rolls everything
// back.
func (s *Store) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&unit{tx: sqlTx}); err != nil {
		return mapError(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

const productColumns = `id, name, product_snapshot, weight, unit, mrp, price, purchase_price,
	total_quantity_sold, is_disabled, is_deleted, disabled_at, deleted_at, created_at, updated_at`

func (s *Store) ListProducts(ctx context.Context, includeDisabled bool) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE is_deleted = false AND ($1 OR is_disabled = false)
		ORDER BY name, id
	`, includeDisabled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProductHistory(ctx context.Context, productID string, limit int) ([]domain.ProductHistory, error) {
	if _, err := s.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, old_price, new_price, old_mrp, new_mrp,
			old_purchase_price, new_purchase_price, changed_at
		FROM product_history
		WHERE product_id = $1
		ORDER BY changed_at DESC, id DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.ProductHistory, 0, limit)
	for rows.Next() {
		var entry domain.ProductHistory
		if err := rows.Scan(
			&entry.ID, &entry.ProductID, &entry.OldPrice, &entry.NewPrice, &entry.OldMRP, &entry.NewMRP,
			&entry.OldPurchasePrice, &entry.NewPurchasePrice, &entry.ChangedAt,
		); err != nil {
			return nil, err
		}
		entry.ChangedAt = entry.ChangedAt.UTC()
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return history, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, created_at
		FROM customers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.CreatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return getCustomer(ctx, s.db, id)
}

func (s *Store) GetTransaction(ctx context.Context, kind domain.Kind, id string) (*domain.Transaction, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	header, err := scanHeader(s.db.QueryRowContext(ctx, `
		SELECT h.id, h.`+t.seq+`, COALESCE(h.customer_id, ''), COALESCE(c.name, ''),
			h.grand_total, h.total_quantity, h.is_paid, h.created_at, h.updated_at
		FROM `+t.header+` h
		LEFT JOIN customers c ON c.id = h.customer_id
		WHERE h.id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s %s", store.ErrNotFound, kind, id)
		}
		return nil, err
	}
	header.Kind = kind

	items, err := listItems(ctx, s.db, t, id)
	if err != nil {
		return nil, err
	}
	header.Items = items
	return &header, nil
}

func (s *Store) ListTransactions(ctx context.Context, kind domain.Kind, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}

	where := make([]string, 0, 4)
	args := make([]any, 0, 5)
	if filter.From != nil {
		args = append(args, filter.From.UTC())
		where = append(where, fmt.Sprintf("h.created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, filter.To.UTC())
		where = append(where, fmt.Sprintf("h.created_at < $%d", len(args)))
	}
	if filter.CustomerID != "" {
		args = append(args, filter.CustomerID)
		where = append(where, fmt.Sprintf("h.customer_id = $%d", len(args)))
	}
	if filter.IsPaid != nil {
		args = append(args, *filter.IsPaid)
		where = append(where, fmt.Sprintf("h.is_paid = $%d", len(args)))
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 100
	}
	args = append(args, limit)

	query := `
		SELECT h.id, h.` + t.seq + `, COALESCE(h.customer_id, ''), COALESCE(c.name, ''),
			h.grand_total, h.total_quantity, h.is_paid, h.created_at, h.updated_at
		FROM ` + t.header + ` h
		LEFT JOIN customers c ON c.id = h.customer_id`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf("\n\t\tORDER BY h.%s DESC\n\t\tLIMIT $%d", t.seq, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Transaction, 0, limit)
	for rows.Next() {
		header, err := scanHeader(rows)
		if err != nil {
			return nil, err
		}
		header.Kind = kind
		header.Items = []domain.LineItem{}
		out = append(out, header)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Summary(ctx context.Context, kind domain.Kind, from time.Time, to time.Time, topN int) (domain.Summary, error) {
	t, err := tablesFor(kind)
	if err != nil {
		return domain.Summary{}, err
	}
	summary := domain.Summary{Kind: kind, TopProducts: make([]domain.ProductSales, 0, topN)}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(grand_total), 0),
			COALESCE(SUM(total_quantity), 0),
			COALESCE(SUM(grand_total) FILTER (WHERE is_paid), 0),
			COALESCE(SUM(grand_total) FILTER (WHERE NOT is_paid), 0)
		FROM `+t.header+`
		WHERE created_at >= $1 AND created_at < $2
	`, from.UTC(), to.UTC()).Scan(
		&summary.Transactions, &summary.GrandTotal, &summary.TotalQuantity, &summary.PaidTotal, &summary.UnpaidTotal,
	)
	if err != nil {
		return domain.Summary{}, err
	}
	if topN < 1 {
		return summary, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT i.product_id, p.name, SUM(i.quantity) AS qty, SUM(i.total_price)
		FROM `+t.items+` i
		JOIN `+t.header+` h ON h.id = i.parent_id
		JOIN products p ON p.id = i.product_id
		WHERE h.created_at >= $1 AND h.created_at < $2
		GROUP BY i.product_id, p.name
		ORDER BY qty DESC, i.product_id
		LIMIT $3
	`, from.UTC(), to.UTC(), topN)
	if err != nil {
		return domain.Summary{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var entry domain.ProductSales
		if err := rows.Scan(&entry.ProductID, &entry.Name, &entry.Quantity, &entry.TotalPrice); err != nil {
			return domain.Summary{}, err
		}
		summary.TopProducts = append(summary.TopProducts, entry)
	}
	if err := rows.Err(); err != nil {
		return domain.Summary{}, err
	}
	return summary, nil
}

// kindTables names the per-kind header and item tables and the sequence
// column of the header table.
type kindTables struct {
	header string
	items  string
	seq    string
}

func tablesFor(kind domain.Kind) (kindTables, error) {
	switch kind {
	case domain.KindSale:
		return kindTables{header: "sales", items: "sale_items", seq: "invoice_no"}, nil
	case domain.KindEstimate:
		return kindTables{header: "estimates", items: "estimate_items", seq: "estimate_no"}, nil
	default:
		return kindTables{}, fmt.Errorf("%w: unknown transaction type %q", store.ErrInvalid, kind)
	}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

const itemColumns = `id, parent_id, COALESCE(product_id, ''), name, product_snapshot, weight, unit,
	mrp, price, purchase_price, quantity, total_price, checked_qty, is_inventory_item, created_at, updated_at`

func listItems(ctx context.Context, q queryer, t kindTables, parentID string) ([]domain.LineItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM `+t.items+`
		WHERE parent_id = $1
		ORDER BY line_no
	`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.LineItem, 0, 16)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func getCustomer(ctx context.Context, q queryer, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := q.QueryRowContext(ctx, `
		SELECT id, name, phone, created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: customer %s", store.ErrNotFound, id)
		}
		return nil, err
	}
	return &c, nil
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var disabledAt, deletedAt sql.NullTime
	err := row.Scan(
		&p.ID, &p.Name, &p.ProductSnapshot, &p.Weight, &p.Unit, &p.MRP, &p.Price, &p.PurchasePrice,
		&p.TotalQuantitySold, &p.IsDisabled, &p.IsDeleted, &disabledAt, &deletedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Product{}, err
	}
	p.DisabledAt = timePtr(disabledAt)
	p.DeletedAt = timePtr(deletedAt)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func scanHeader(row rowScanner) (domain.Transaction, error) {
	var h domain.Transaction
	err := row.Scan(
		&h.ID, &h.SequenceNo, &h.CustomerID, &h.CustomerName,
		&h.GrandTotal, &h.TotalQuantity, &h.IsPaid, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return domain.Transaction{}, err
	}
	h.CreatedAt = h.CreatedAt.UTC()
	h.UpdatedAt = h.UpdatedAt.UTC()
	return h, nil
}

func scanItem(row rowScanner) (domain.LineItem, error) {
	var item domain.LineItem
	err := row.Scan(
		&item.ID, &item.ParentID, &item.ProductID, &item.Name, &item.ProductSnapshot, &item.Weight, &item.Unit,
		&item.MRP, &item.Price, &item.PurchasePrice, &item.Quantity, &item.TotalPrice, &item.CheckedQty,
		&item.IsInventoryItem, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return domain.LineItem{}, err
	}
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return item, nil
}

// mapError turns constraint and serialization failures into store
// sentinels. Errors that already carry a sentinel pass through.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		return fmt.Errorf("%w: %s", store.ErrConflict, constraintDetail(pgErr))
	case "23503":
		return fmt.Errorf("%w: %s", store.ErrInUse, constraintDetail(pgErr))
	case "23514", "23502":
		return fmt.Errorf("%w: %s", store.ErrInvalid, constraintDetail(pgErr))
	case "40001", "40P01":
		return fmt.Errorf("%w: concurrent update, retry the request", store.ErrConflict)
	default:
		return err
	}
}

func constraintDetail(pgErr *pgconn.PgError) string {
	if pgErr.ConstraintName != "" {
		return pgErr.ConstraintName
	}
	return pgErr.Message
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func timePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time.UTC()
	return &t
}
