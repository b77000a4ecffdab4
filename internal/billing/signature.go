package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// signedFields is the exact order Billplz concatenates callback fields before
// signing. The order is part of the provider contract; it is not alphabetical
// and must never be re-sorted.
var signedFields = []string{
	"amount",
	"collection_id",
	"due_at",
	"email",
	"id",
	"mobile",
	"name",
	"paid_amount",
	"paid_at",
	"paid",
	"state",
	"url",
}

// Verifier authenticates webhook callbacks against a registry of per-collection
// X-Signature keys. It is a pure value: key resolution happens through the
// injected map, never through the environment.
type Verifier struct {
	// Keys maps a Billplz collection id to its X-Signature key.
	Keys map[string]string
}

// Verify reconstructs the canonical signed string from the callback fields,
// computes HMAC-SHA256 under the key registered for the callback's collection,
// and compares it to the received signature in constant time.
//
// It fails closed: an empty signature, an unknown collection id or an empty
// registered key all yield false. Absent fields contribute an empty value to
// the canonical string rather than being omitted.
func (v Verifier) Verify(fields map[string]string, received string) bool {
	received = strings.TrimSpace(received)
	if received == "" {
		return false
	}
	key, ok := v.Keys[fields["collection_id"]]
	if !ok || strings.TrimSpace(key) == "" {
		return false
	}
	expected := computeSignature(fields, key)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(received)))
}

func computeSignature(fields map[string]string, key string) string {
	parts := make([]string, 0, len(signedFields))
	for _, name := range signedFields {
		parts = append(parts, name+fields[name])
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}
