package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MinSecretLength is the smallest signing secret the service accepts.
const MinSecretLength = 16

// Payload holds the ledger-entry fields covered by the HMAC. The Timestamp is
// the exact string persisted with the entry; verification must reuse it
// verbatim, never a reformatted creation date.
type Payload struct {
	DebitAccountID  string
	CreditAccountID string
	Amount          int64
	Currency        string
	Timestamp       string
}

// Signer produces deterministic HMAC-SHA256 signatures over canonicalized
// ledger-entry payloads. It holds the process-wide signing secret and has no
// other state.
type Signer struct {
	secret []byte
}

// NewSigner validates the signing secret and returns a Signer. A missing or
// short secret is a startup error, not something to discover at runtime.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("ledger signing secret is required")
	}
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("ledger signing secret must be at least %d bytes", MinSecretLength)
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Sign returns the hex-encoded HMAC-SHA256 of the payload's canonical string.
// Same payload and secret always yield the same signature.
func (s *Signer) Sign(p Payload) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(Canonical(p)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the expected signature and compares in constant time.
// Malformed hex input resolves to false rather than an error.
func (s *Signer) Verify(p Payload, sig string) bool {
	provided, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(Canonical(p)))
	return hmac.Equal(provided, mac.Sum(nil))
}

// Canonical renders the payload as sorted key=value pairs joined by '&' so the
// same logical data always signs identically.
func Canonical(p Payload) string {
	fields := map[string]string{
		"amount":          strconv.FormatInt(p.Amount, 10),
		"creditAccountId": p.CreditAccountID,
		"currency":        p.Currency,
		"debitAccountId":  p.DebitAccountID,
		"timestamp":       p.Timestamp,
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+fields[k])
	}
	return strings.Join(parts, "&")
}
