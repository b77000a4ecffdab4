package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/noah-isme/billing-bridge/internal/resilience"
)

// DefaultBillplzBaseURL targets the Billplz sandbox; production deployments
// override it through configuration.
const DefaultBillplzBaseURL = "https://www.billplz-sandbox.com"

// Client talks to the Billplz v3 bills API. Requests authenticate with HTTP
// basic auth using the API key as username and an empty password.
type Client struct {
	APIKey  string
	BaseURL string
	HTTP    *resilience.HTTPClient
}

// CreateBillRequest carries the fields Billplz requires to open a bill.
// Amount is in minor units (sen) and must round-trip exactly.
type CreateBillRequest struct {
	CollectionID string
	Email        string
	Name         string
	Amount       int64
	Description  string
	CallbackURL  string
	RedirectURL  string
}

// CreateBillResponse is the subset of the Billplz bill object this service
// consumes: the provider-issued id used to match webhook callbacks later, and
// the hosted payment URL handed back to the caller.
type CreateBillResponse struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Amount int64  `json:"amount"`
}

// CreateBill posts a new bill to Billplz and decodes the created bill object.
func (c Client) CreateBill(ctx context.Context, req CreateBillRequest) (CreateBillResponse, error) {
	var zero CreateBillResponse
	if strings.TrimSpace(c.APIKey) == "" {
		return zero, errors.New("billing: billplz api key not configured")
	}
	if req.CollectionID == "" || req.Email == "" || req.Name == "" || req.Amount <= 0 {
		return zero, errors.New("billing: collection id, email, name and a positive amount are required")
	}

	form := url.Values{}
	form.Set("collection_id", req.CollectionID)
	form.Set("email", req.Email)
	form.Set("name", req.Name)
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("description", req.Description)
	form.Set("callback_url", req.CallbackURL)
	if req.RedirectURL != "" {
		form.Set("redirect_url", req.RedirectURL)
	}

	endpoint := strings.TrimRight(c.baseURL(), "/") + "/api/v3/bills"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return zero, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(c.APIKey, "")

	resp, err := c.do(ctx, httpReq)
	if err != nil {
		return zero, fmt.Errorf("billplz create bill: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return zero, fmt.Errorf("billplz read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return zero, fmt.Errorf("billplz create bill: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var bill CreateBillResponse
	if err := json.Unmarshal(body, &bill); err != nil {
		return zero, fmt.Errorf("billplz decode response: %w", err)
	}
	if bill.ID == "" {
		return zero, errors.New("billplz response missing bill id")
	}
	return bill, nil
}

func (c Client) baseURL() string {
	if strings.TrimSpace(c.BaseURL) == "" {
		return DefaultBillplzBaseURL
	}
	return c.BaseURL
}

func (c Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.HTTP != nil {
		return c.HTTP.Do(ctx, req)
	}
	return http.DefaultClient.Do(req)
}
