package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"kiranabook/backend/internal/domain"
	"kiranabook/backend/internal/service"
	"kiranabook/backend/internal/store"
)

const dateLayout = "2006-01-02"

type API struct {
	service       *service.Service
	logger        *zap.Logger
	allowedOrigin string
	bodyLimit     int64
}

func New(svc *service.Service, logger *zap.Logger, allowedOrigin string, bodyLimit int64) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bodyLimit <= 0 {
		bodyLimit = 1 << 20
	}
	return &API{
		service:       svc,
		logger:        logger.Named("http"),
		allowedOrigin: allowedOrigin,
		bodyLimit:     bodyLimit,
	}
}

func (a *API) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(a.recoverPanics)
	r.Use(a.logRequests)
	r.Use(a.limitBody)

	r.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/products", a.handleListProducts).Methods(http.MethodGet)
	api.HandleFunc("/products", a.handleCreateProduct).Methods(http.MethodPost)
	api.HandleFunc("/products/{id}", a.handleGetProduct).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", a.handleUpdateProduct).Methods(http.MethodPatch)
	api.HandleFunc("/products/{id}", a.handleDeleteProduct).Methods(http.MethodDelete)
	api.HandleFunc("/products/{id}/history", a.handleProductHistory).Methods(http.MethodGet)

	api.HandleFunc("/customers", a.handleListCustomers).Methods(http.MethodGet)
	api.HandleFunc("/customers", a.handleCreateCustomer).Methods(http.MethodPost)
	api.HandleFunc("/customers/{id}", a.handleGetCustomer).Methods(http.MethodGet)

	api.HandleFunc("/reports/summary", a.handleSummary).Methods(http.MethodGet)

	bills := api.PathPrefix("/{kind:sales|estimates}").Subrouter()
	bills.HandleFunc("", a.handleListTransactions).Methods(http.MethodGet)
	bills.HandleFunc("/create", a.handleCreateTransaction).Methods(http.MethodPost)
	bills.HandleFunc("/{id}", a.handleGetTransaction).Methods(http.MethodGet)
	bills.HandleFunc("/{id}", a.handleDeleteTransaction).Methods(http.MethodDelete)
	bills.HandleFunc("/{id}/edit", a.handleUpdateTransaction).Methods(http.MethodPost)
	bills.HandleFunc("/{id}/convert", a.handleConvertTransaction).Methods(http.MethodPost)
	bills.HandleFunc("/{id}/items/checked-qty/batch", a.handleBatchCheckedQty).Methods(http.MethodPost)
	bills.HandleFunc("/{id}/items/{itemId}/checked-qty", a.handleCheckedQty).Methods(http.MethodPost)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorBody(w, http.StatusMethodNotAllowed, "method not allowed", "method_not_allowed")
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorBody(w, http.StatusNotFound, "route not found", "not_found")
	})

	// Use only wraps matched routes. Headers and CORS preflight apply to
	// every response, so they sit outside the router.
	return a.withMiddleware(r)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	includeDisabled, _ := strconv.ParseBool(r.URL.Query().Get("includeDisabled"))
	products, err := a.service.ListProducts(r.Context(), includeDisabled)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteProduct(r.Context(), mux.Vars(r)["id"]); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleProductHistory(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)
	history, err := a.service.ListProductHistory(r.Context(), mux.Vars(r)["id"], limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (a *API) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := a.service.ListCustomers(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
}

func (a *API) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	customer, err := a.service.CreateCustomer(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"customer": customer})
}

func (a *API) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := a.service.GetCustomer(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
}

func (a *API) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.TransactionFilter{
		CustomerID: strings.TrimSpace(query.Get("customerId")),
		Limit:      parsePositiveLimit(query.Get("limit"), 100, 500),
	}

	from, err := parseDayParam("from", query.Get("from"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	to, err := parseDayParam("to", query.Get("to"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	filter.From = from
	if to != nil {
		end := to.Add(24 * time.Hour)
		filter.To = &end
	}
	if raw := strings.TrimSpace(query.Get("isPaid")); raw != "" {
		paid, err := strconv.ParseBool(raw)
		if err != nil {
			a.writeError(w, r, fmt.Errorf("%w: isPaid must be true or false", store.ErrInvalid))
			return
		}
		filter.IsPaid = &paid
	}

	transactions, err := a.service.ListTransactions(r.Context(), kindFrom(r), filter)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": transactions})
}

func (a *API) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var in domain.TransactionInput
	if !a.decode(w, r, &in) {
		return
	}
	resp, err := a.service.CreateTransaction(r.Context(), kindFrom(r), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	transaction, err := a.service.GetTransaction(r.Context(), kindFrom(r), mux.Vars(r)["id"])
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transaction)
}

func (a *API) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var in domain.TransactionInput
	if !a.decode(w, r, &in) {
		return
	}
	transaction, err := a.service.UpdateTransaction(r.Context(), kindFrom(r), mux.Vars(r)["id"], in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transaction)
}

func (a *API) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteTransaction(r.Context(), kindFrom(r), mux.Vars(r)["id"]); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleConvertTransaction(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.ConvertTransaction(r.Context(), kindFrom(r), mux.Vars(r)["id"])
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCheckedQty(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckedQtyRequest
	if !a.decode(w, r, &req) {
		return
	}
	vars := mux.Vars(r)
	if _, err := a.service.UpdateCheckedQty(r.Context(), kindFrom(r), vars["id"], vars["itemId"], req); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleBatchCheckedQty(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckedQtyBatchRequest
	if !a.decode(w, r, &req) {
		return
	}
	if _, err := a.service.BatchCheckedQty(r.Context(), kindFrom(r), mux.Vars(r)["id"], req); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	kind := domain.KindSale
	switch strings.TrimSpace(query.Get("type")) {
	case "", "sales", string(domain.KindSale):
	case "estimates", string(domain.KindEstimate):
		kind = domain.KindEstimate
	default:
		a.writeError(w, r, fmt.Errorf("%w: type must be sales or estimates", store.ErrInvalid))
		return
	}

	summary, err := a.service.Summary(r.Context(), kind, query.Get("from"), query.Get("to"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// kindFrom maps the plural path segment onto a transaction kind.
func kindFrom(r *http.Request) domain.Kind {
	switch mux.Vars(r)["kind"] {
	case "sales":
		return domain.KindSale
	case "estimates":
		return domain.KindEstimate
	}
	return ""
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorBody(w, http.StatusRequestEntityTooLarge, "request body too large", "too_large")
			return false
		}
		a.writeError(w, r, fmt.Errorf("%w: %v", store.ErrInvalid, err))
		return false
	}
	return true
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func parseDayParam(name string, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	day, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be YYYY-MM-DD", store.ErrInvalid, name)
	}
	return &day, nil
}

// statusFor maps service errors onto HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrInvalid):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, store.ErrInUse):
		return http.StatusConflict, "in_use"
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	// 5xx details stay in the log; clients get a generic message.
	if status >= 500 {
		a.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = "internal server error"
	}
	writeErrorBody(w, status, msg, code)
}

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func writeErrorBody(w http.ResponseWriter, status int, message string, code string) {
	writeJSON(w, status, map[string]errorBody{
		"error": {Message: message, Code: code},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
