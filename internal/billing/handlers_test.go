package billing_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/billing-bridge/internal/billing"
)

func newTestRouter(store billing.Store, bills billing.BillCreator) *chi.Mux {
	h := &billing.Handler{
		Svc:               newTestService(store, bills),
		Validate:          validator.New(),
		DefaultCollection: "col_a",
	}
	r := chi.NewRouter()
	r.Post("/api/v1/bills", h.Create)
	r.Get("/api/v1/transactions/{transactionId}", h.Get)
	return r
}

func createBillBody(t *testing.T, overrides map[string]any) []byte {
	t.Helper()
	body := map[string]any{
		"userId":      "user_1",
		"serviceType": "subscription",
		"description": "monthly plan",
		"amount":      1000,
		"email":       "payer@example.com",
		"name":        "Payer",
	}
	for key, value := range overrides {
		body[key] = value
	}
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	return encoded
}

func TestCreateBillEndpoint(t *testing.T) {
	store := newMemStore()
	bills := &stubBills{resp: billing.CreateBillResponse{ID: "bill_1", URL: "https://pay.example/bill_1", Amount: 1000}}
	router := newTestRouter(store, bills)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bills", bytes.NewReader(createBillBody(t, nil)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		TransactionID string `json:"transactionId"`
		BillID        string `json:"billId"`
		URL           string `json:"url"`
		Status        string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.TransactionID)
	require.Equal(t, "bill_1", resp.BillID)
	require.Equal(t, "pending", resp.Status)
	require.Equal(t, "col_a", bills.last.CollectionID, "default collection applies when none given")
}

func TestCreateBillEndpointValidation(t *testing.T) {
	router := newTestRouter(newMemStore(), &stubBills{})

	cases := map[string]map[string]any{
		"missing amount": {"amount": 0},
		"negative":       {"amount": -5},
		"bad email":      {"email": "not-an-email"},
		"missing user":   {"userId": ""},
		"bad redirect":   {"redirectUrl": "not a url"},
	}
	for name, overrides := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/bills", bytes.NewReader(createBillBody(t, overrides)))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, name)
		require.Contains(t, rec.Body.String(), "VALIDATION_FAILED", name)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bills", bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBillEndpointDuplicateBill(t *testing.T) {
	store := newMemStore()
	seedPending(t, store, "bill_1")
	bills := &stubBills{resp: billing.CreateBillResponse{ID: "bill_1", Amount: 1000}}
	router := newTestRouter(store, bills)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bills", bytes.NewReader(createBillBody(t, nil)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "DUPLICATE_BILL")
}

func TestCreateBillEndpointProviderFailure(t *testing.T) {
	bills := &stubBills{err: http.ErrHandlerTimeout}
	router := newTestRouter(newMemStore(), bills)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bills", bytes.NewReader(createBillBody(t, nil)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Contains(t, rec.Body.String(), "BILL_CREATE_FAILED")
}

func TestGetTransactionEndpoint(t *testing.T) {
	store := newMemStore()
	tx := seedPending(t, store, "bill_1")
	router := newTestRouter(store, &stubBills{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions/"+tx.ID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got billing.Transaction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, tx.ID, got.ID)
	require.Equal(t, billing.StatusPending, got.Status)
	require.Equal(t, "bill_1", got.Billplz.BillID)
}

func TestGetTransactionEndpointNotFound(t *testing.T) {
	router := newTestRouter(newMemStore(), &stubBills{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions/tx_missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "TRANSACTION_NOT_FOUND")
}
