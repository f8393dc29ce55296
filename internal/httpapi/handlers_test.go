package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kiranabook/backend/internal/cache"
	"kiranabook/backend/internal/domain"
	"kiranabook/backend/internal/service"
	"kiranabook/backend/internal/store"
	"kiranabook/backend/internal/store/memory"
)

// newTestAPI builds a full API over a seeded in-memory store so handler
// tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopProductCache{}, time.Minute, nil)
	return New(svc, nil, "*", 0)
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		payload, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body map[string]errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body["error"]
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestSaleCreateEditGet(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales/create", `{
		"customerName": "Ravi",
		"isPaid": false,
		"items": [
			{"rowId": "r1", "id": null, "productId": "prd_seed_sugar", "name": "Sugar", "productSnapshot": "", "price": 45, "quantity": 2, "isInventoryItem": true},
			{"rowId": "r2", "id": null, "productId": null, "name": "Carry bag", "productSnapshot": "", "price": "5.00", "quantity": "1", "isInventoryItem": false}
		]
	}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created domain.CreateTransactionResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.Type != domain.KindSale || len(created.Items) != 2 {
		t.Fatalf("unexpected create response %+v", created)
	}
	if created.Items[0].RowID != "r1" || created.Items[0].ParentID != created.ID {
		t.Fatalf("expected row identity echoed, got %+v", created.Items[0])
	}

	edit := fmt.Sprintf(`{
		"isPaid": true,
		"items": [
			{"rowId": "r1", "id": %q, "productId": "prd_seed_sugar", "name": "Sugar", "productSnapshot": "", "price": 45, "quantity": 3, "isInventoryItem": true}
		]
	}`, created.Items[0].ID)
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales/"+created.ID+"/edit", edit)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var sale domain.Transaction
	if err := json.NewDecoder(rec.Body).Decode(&sale); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if sale.GrandTotal != 13500 || sale.TotalQuantity != 3000 || !sale.IsPaid || len(sale.Items) != 1 {
		t.Fatalf("unexpected sale after edit: %+v", sale)
	}
	if sale.CustomerName != "Ravi" {
		t.Fatalf("expected customer kept, got %q", sale.CustomerName)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/products/prd_seed_sugar", nil)
	var body map[string]domain.Product
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode product: %v", err)
	}
	if got := body["product"].TotalQuantitySold; got != 3000 {
		t.Fatalf("expected sugar sold 3000, got %d", got)
	}
}

func TestCreateSaleValidationError(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales/create", `{"items":[{"rowId":"r1","name":"Sugar","price":45,"quantity":0}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := decodeError(t, rec); got.Code != "invalid_request" || got.Message == "" {
		t.Fatalf("unexpected error body %+v", got)
	}
}

func TestCreateSaleRejectsOutOfRangePrice(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales/create", `{"items":[{"rowId":"r1","name":"Sugar","price":200000000000000000,"quantity":1}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeError(t, rec); got.Code != "invalid_request" {
		t.Fatalf("unexpected error body %+v", got)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var listed struct {
		Transactions []map[string]any `json:"transactions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode sales: %v", err)
	}
	if len(listed.Transactions) != 0 {
		t.Fatalf("expected no sales persisted, got %d", len(listed.Transactions))
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/estimates/create", `{"items":[],"discount":10}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestMissingSaleReturns404(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/sales/sal_missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if got := decodeError(t, rec); got.Code != "not_found" {
		t.Fatalf("expected not_found code, got %+v", got)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/invoices", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown kind, got %d", rec.Code)
	}
}

func TestDeleteReferencedProductConflicts(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales/create", `{"items":[{"rowId":"r1","productId":"prd_seed_tea","name":"Tea","price":130,"quantity":1}]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/products/prd_seed_tea", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if got := decodeError(t, rec); got.Code != "in_use" {
		t.Fatalf("expected in_use code, got %+v", got)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/products/prd_seed_salt", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for unreferenced product, got %d", rec.Code)
	}
}

func TestCheckedQtyAndConvert(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/estimates/create", `{"items":[{"rowId":"r1","productId":"prd_seed_rice","name":"Loose Rice","price":68,"quantity":2.5}]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created domain.CreateTransactionResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	base := "/api/v1/estimates/" + created.ID

	rec = doJSON(t, handler, http.MethodPost, base+"/items/"+created.Items[0].ID+"/checked-qty", map[string]string{"action": "inc"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, handler, http.MethodPost, base+"/items/checked-qty/batch", map[string]string{"action": "mark_all"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, handler, http.MethodPost, base+"/items/checked-qty/batch", map[string]string{"action": "inc"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for per-item action on batch route, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, base+"/convert", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var converted domain.ConvertTransactionResponse
	if err := json.NewDecoder(rec.Body).Decode(&converted); err != nil {
		t.Fatalf("decode convert response: %v", err)
	}
	if converted.Type != domain.KindSale {
		t.Fatalf("expected sale, got %s", converted.Type)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales/"+converted.ID, nil)
	var sale domain.Transaction
	if err := json.NewDecoder(rec.Body).Decode(&sale); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if len(sale.Items) != 1 || sale.Items[0].CheckedQty != 2500 {
		t.Fatalf("expected checked state carried over, got %+v", sale.Items)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales", nil)
	var list map[string][]domain.Transaction
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list["transactions"]) != 1 {
		t.Fatalf("expected one sale listed, got %d", len(list["transactions"]))
	}
}

func TestSummaryRejectsBadType(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/reports/summary?type=invoices", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/reports/summary?type=estimates&from=2026-01-01&to=2026-01-31", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: bad", store.ErrInvalid), http.StatusBadRequest, "invalid_request"},
		{fmt.Errorf("%w: gone", store.ErrNotFound), http.StatusNotFound, "not_found"},
		{fmt.Errorf("%w: taken", store.ErrConflict), http.StatusConflict, "conflict"},
		{fmt.Errorf("%w: referenced", store.ErrInUse), http.StatusConflict, "in_use"},
		{errors.New("connection refused"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		status, code := statusFor(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("%v: expected %d/%s, got %d/%s", tc.err, tc.status, tc.code, status, code)
		}
	}
}
