package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiranabook/backend/internal/domain"
	"kiranabook/backend/internal/store"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewFromDB(db), mock
}

func TestAtomic_AppliesDeltasAndCommits(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE products SET total_quantity_sold = total_quantity_sold \+ \$2`).
		WithArgs("prd_a", int64(-2000), at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE products SET total_quantity_sold = total_quantity_sold \+ \$2`).
		WithArgs("prd_b", int64(1500), at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.Atomic(context.Background(), func(tx store.Tx) error {
		return tx.ApplyQuantityDeltas(context.Background(), []domain.ProductDelta{
			{ProductID: "prd_a", Delta: -2000},
			{ProductID: "prd_b", Delta: 1500},
		}, at)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAtomic_RollsBackWhenProductMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE products SET total_quantity_sold`).
		WithArgs("prd_gone", int64(1000), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.Atomic(context.Background(), func(tx store.Tx) error {
		return tx.ApplyQuantityDeltas(context.Background(), []domain.ProductDelta{
			{ProductID: "prd_gone", Delta: 1000},
		}, time.Now())
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAtomic_DeleteReferencedProductIsInUse(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM products WHERE id = \$1`).
		WithArgs("prd_sugar").
		WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "sale_items_product_id_fkey"})
	mock.ExpectRollback()

	err := s.Atomic(context.Background(), func(tx store.Tx) error {
		return tx.DeleteProduct(context.Background(), "prd_sugar")
	})
	assert.ErrorIs(t, err, store.ErrInUse)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAtomic_NextSequenceNoLocksPerKind(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(\$1\)\)`).
		WithArgs("estimates").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(estimate_no\), 0\) \+ 1 FROM estimates`).
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(int64(8)))
	mock.ExpectCommit()

	var next int64
	err := s.Atomic(context.Background(), func(tx store.Tx) error {
		var err error
		next, err = tx.NextSequenceNo(context.Background(), domain.KindEstimate)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8), next)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTransaction_LoadsHeaderAndItems(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM sales h LEFT JOIN customers c ON c.id = h.customer_id WHERE h.id = \$1`).
		WithArgs("sal_1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "invoice_no", "customer_id", "customer_name", "grand_total", "total_quantity", "is_paid", "created_at", "updated_at",
		}).AddRow("sal_1", int64(12), "cus_default", "DEFAULT", int64(67000), int64(9000), true, now, now))
	mock.ExpectQuery(`FROM sale_items WHERE parent_id = \$1 ORDER BY line_no`).
		WithArgs("sal_1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "parent_id", "product_id", "name", "product_snapshot", "weight", "unit", "mrp", "price",
			"purchase_price", "quantity", "total_price", "checked_qty", "is_inventory_item", "created_at", "updated_at",
		}).AddRow("itm_1", "sal_1", "prd_rice", "Rice", "Rice", "", "", int64(0), int64(7000),
			int64(6500), int64(5000), int64(35000), int64(0), true, now, now))

	got, err := s.GetTransaction(context.Background(), domain.KindSale, "sal_1")
	require.NoError(t, err)
	assert.Equal(t, domain.KindSale, got.Kind)
	assert.Equal(t, int64(12), got.SequenceNo)
	assert.Equal(t, "DEFAULT", got.CustomerName)
	require.Len(t, got.Items, 1)
	assert.Equal(t, int64(35000), got.Items[0].TotalPrice)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTransaction_RejectsUnknownKind(t *testing.T) {
	s, _ := newMockStore(t)
	_, err := s.GetTransaction(context.Background(), domain.Kind("invoice"), "x")
	assert.ErrorIs(t, err, store.ErrInvalid)
}

func TestMapError(t *testing.T) {
	plain := errors.New("connection reset")

	cases := []struct {
		name string
		in   error
		want error
	}{
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "sales_invoice_no_key"}, store.ErrConflict},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, store.ErrInUse},
		{"check violation", &pgconn.PgError{Code: "23514"}, store.ErrInvalid},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, store.ErrConflict},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, store.ErrConflict},
		{"other error", plain, plain},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tc.in), tc.want)
		})
	}
	assert.NoError(t, mapError(nil))
}
