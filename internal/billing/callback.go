package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ErrEmptyBody is returned when a webhook request carries no payload.
var ErrEmptyBody = errors.New("billing: empty callback body")

// Callback is the flat field set Billplz delivers with a payment outcome.
// Every value is kept as the provider sent it: booleans and amounts arrive as
// strings and are compared as strings. Raw preserves the unparsed body for
// audit storage.
type Callback struct {
	ID           string
	CollectionID string
	Paid         string
	State        string
	Amount       string
	PaidAmount   string
	PaidAt       string
	DueAt        string
	Email        string
	Mobile       string
	Name         string
	URL          string
	Raw          []byte
}

// Fields returns the callback as the mapping the signature verifier consumes.
// All signed field names are present; absent values map to the empty string.
func (c Callback) Fields() map[string]string {
	return map[string]string{
		"amount":        c.Amount,
		"collection_id": c.CollectionID,
		"due_at":        c.DueAt,
		"email":         c.Email,
		"id":            c.ID,
		"mobile":        c.Mobile,
		"name":          c.Name,
		"paid_amount":   c.PaidAmount,
		"paid_at":       c.PaidAt,
		"paid":          c.Paid,
		"state":         c.State,
		"url":           c.URL,
	}
}

// ParseCallback decodes a webhook body into a Callback. Billplz posts
// URL-form-encoded bodies, but JSON is accepted as well since redelivery
// tooling tends to replay captured payloads as JSON.
func ParseCallback(contentType string, body []byte) (Callback, error) {
	if len(body) == 0 {
		return Callback{}, ErrEmptyBody
	}
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = strings.TrimSpace(mediaType[:idx])
	}

	var (
		fields map[string]string
		err    error
	)
	switch {
	case mediaType == "application/json" || looksLikeJSON(body):
		fields, err = parseJSONFields(body)
	default:
		fields, err = parseFormFields(body)
	}
	if err != nil {
		return Callback{}, err
	}

	cb := Callback{
		ID:           fields["id"],
		CollectionID: fields["collection_id"],
		Paid:         fields["paid"],
		State:        fields["state"],
		Amount:       fields["amount"],
		PaidAmount:   fields["paid_amount"],
		PaidAt:       fields["paid_at"],
		DueAt:        fields["due_at"],
		Email:        fields["email"],
		Mobile:       fields["mobile"],
		Name:         fields["name"],
		URL:          fields["url"],
		Raw:          body,
	}
	return cb, nil
}

func looksLikeJSON(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))
	return strings.HasPrefix(trimmed, "{")
}

func parseJSONFields(body []byte) (map[string]string, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode callback json: %w", err)
	}
	fields := make(map[string]string, len(raw))
	for key, value := range raw {
		fields[key] = stringifyField(value)
	}
	return fields, nil
}

func parseFormFields(body []byte) (map[string]string, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("decode callback form: %w", err)
	}
	fields := make(map[string]string, len(values))
	for key := range values {
		// Billplz nests form keys as billplz[field] on redirect payloads.
		name := strings.TrimSuffix(strings.TrimPrefix(key, "billplz["), "]")
		fields[name] = values.Get(key)
	}
	return fields, nil
}

func stringifyField(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// SignatureFromRequest extracts the out-of-band signature header. Billplz has
// shipped both X-Signature and x-signature casings; net/http canonicalises
// inbound header names, but proxies injecting the lowercase form directly into
// the header map are still observed, so both are checked.
func SignatureFromRequest(r *http.Request) string {
	if sig := strings.TrimSpace(r.Header.Get("X-Signature")); sig != "" {
		return sig
	}
	for _, name := range []string{"x-signature", "X-signature"} {
		if vals, ok := r.Header[name]; ok && len(vals) > 0 {
			return strings.TrimSpace(vals[0])
		}
	}
	return ""
}
