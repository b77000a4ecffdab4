package billing_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/billing-bridge/internal/billing"
	"github.com/noah-isme/billing-bridge/internal/resilience"
)

func validBillRequest() billing.CreateBillRequest {
	return billing.CreateBillRequest{
		CollectionID: "col_a",
		Email:        "payer@example.com",
		Name:         "Payer",
		Amount:       1000,
		Description:  "monthly plan",
		CallbackURL:  "https://bridge.example.com/webhooks/billplz",
		RedirectURL:  "https://app.example.com/payments/done",
	}
}

func TestCreateBillPostsFormWithBasicAuth(t *testing.T) {
	var captured *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		captured = r
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"bill_1","url":"https://pay.example/bill_1","amount":1000}`))
	}))
	defer srv.Close()

	client := billing.Client{APIKey: "sk_test", BaseURL: srv.URL}
	bill, err := client.CreateBill(context.Background(), validBillRequest())
	require.NoError(t, err)
	require.Equal(t, "bill_1", bill.ID)
	require.Equal(t, "https://pay.example/bill_1", bill.URL)
	require.Equal(t, int64(1000), bill.Amount)

	require.Equal(t, "/api/v3/bills", captured.URL.Path)
	user, pass, ok := captured.BasicAuth()
	require.True(t, ok)
	require.Equal(t, "sk_test", user)
	require.Equal(t, "", pass, "api key authenticates with an empty password")

	require.Equal(t, "col_a", captured.PostForm.Get("collection_id"))
	require.Equal(t, "payer@example.com", captured.PostForm.Get("email"))
	require.Equal(t, "1000", captured.PostForm.Get("amount"))
	require.Equal(t, "https://bridge.example.com/webhooks/billplz", captured.PostForm.Get("callback_url"))
	require.Equal(t, "https://app.example.com/payments/done", captured.PostForm.Get("redirect_url"))
}

func resilientTestClient(maxAttempts int) *resilience.HTTPClient {
	return &resilience.HTTPClient{
		Client:      &http.Client{},
		Breaker:     resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget("billplz-test"),
		MaxAttempts: maxAttempts,
		BaseBackoff: time.Millisecond,
		Timeout:     2 * time.Second,
	}
}

// The provider flushes headers before the body arrives. The bill must still
// decode when the call goes through the retry/breaker client the service wires
// in production, which owns the attempt context.
func TestCreateBillThroughResilientClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte(`{"id":"bill_1","url":"https://pay.example/bill_1","amount":1000}`))
	}))
	defer srv.Close()

	client := billing.Client{APIKey: "sk_test", BaseURL: srv.URL, HTTP: resilientTestClient(1)}
	bill, err := client.CreateBill(context.Background(), validBillRequest())
	require.NoError(t, err)
	require.Equal(t, "bill_1", bill.ID)
	require.Equal(t, int64(1000), bill.Amount)
}

func TestCreateBillRetriesTransientProviderFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "col_a", r.PostForm.Get("collection_id"), "form body must replay on retry")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"id":"bill_1","url":"https://pay.example/bill_1","amount":1000}`))
	}))
	defer srv.Close()

	client := billing.Client{APIKey: "sk_test", BaseURL: srv.URL, HTTP: resilientTestClient(3)}
	bill, err := client.CreateBill(context.Background(), validBillRequest())
	require.NoError(t, err)
	require.Equal(t, "bill_1", bill.ID)
	require.Equal(t, int32(2), calls.Load())
}

func TestCreateBillSurfacesProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"message":"collection not found"}}`))
	}))
	defer srv.Close()

	client := billing.Client{APIKey: "sk_test", BaseURL: srv.URL}
	_, err := client.CreateBill(context.Background(), validBillRequest())
	require.Error(t, err)
	require.Contains(t, err.Error(), "422")
}

func TestCreateBillRejectsResponseWithoutID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"url":"https://pay.example/mystery"}`))
	}))
	defer srv.Close()

	client := billing.Client{APIKey: "sk_test", BaseURL: srv.URL}
	_, err := client.CreateBill(context.Background(), validBillRequest())
	require.Error(t, err)
}

func TestCreateBillValidatesInput(t *testing.T) {
	client := billing.Client{APIKey: "sk_test"}

	req := validBillRequest()
	req.Amount = 0
	_, err := client.CreateBill(context.Background(), req)
	require.Error(t, err)

	req = validBillRequest()
	req.CollectionID = ""
	_, err = client.CreateBill(context.Background(), req)
	require.Error(t, err)

	unkeyed := billing.Client{}
	_, err = unkeyed.CreateBill(context.Background(), validBillRequest())
	require.Error(t, err)
}
