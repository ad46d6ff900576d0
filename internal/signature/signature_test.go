package signature

import (
	"strings"
	"testing"
	"time"
)

const testSecret = "unit-test-signing-secret"

func TestNewSignerRejectsWeakSecrets(t *testing.T) {
	if _, err := NewSigner(""); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := NewSigner("short"); err == nil {
		t.Fatal("expected error for short secret")
	}
	if _, err := NewSigner(testSecret); err != nil {
		t.Fatalf("valid secret rejected: %v", err)
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	signer, err := NewSigner(testSecret)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	payload := Payload{
		DebitAccountID:  "acc-debit",
		CreditAccountID: "acc-credit",
		Amount:          250_000,
		Currency:        "PYG",
		Timestamp:       time.Now().UTC().Format(time.RFC3339Nano),
	}

	sig := signer.Sign(payload)
	if sig == "" {
		t.Fatal("empty signature")
	}
	if sig != signer.Sign(payload) {
		t.Fatal("signing is not deterministic")
	}
	if !signer.Verify(payload, sig) {
		t.Fatal("round trip verification failed")
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	signer, _ := NewSigner(testSecret)
	payload := Payload{
		DebitAccountID:  "acc-debit",
		CreditAccountID: "acc-credit",
		Amount:          100,
		Currency:        "PYG",
		Timestamp:       "2026-08-30T12:00:00.000000001Z",
	}
	sig := signer.Sign(payload)

	mutated := payload
	mutated.Amount = 101
	if signer.Verify(mutated, sig) {
		t.Fatal("amount mutation not detected")
	}

	mutated = payload
	mutated.CreditAccountID = "acc-credit2"
	if signer.Verify(mutated, sig) {
		t.Fatal("account mutation not detected")
	}

	mutated = payload
	mutated.Timestamp = "2026-08-30T12:00:00Z"
	if signer.Verify(mutated, sig) {
		t.Fatal("timestamp reformatting not detected")
	}

	// flip one character of the signature itself
	flipped := []byte(sig)
	if flipped[0] == 'a' {
		flipped[0] = 'b'
	} else {
		flipped[0] = 'a'
	}
	if signer.Verify(payload, string(flipped)) {
		t.Fatal("signature mutation not detected")
	}
}

func TestVerifyMalformedHexIsFalse(t *testing.T) {
	signer, _ := NewSigner(testSecret)
	payload := Payload{DebitAccountID: "a", CreditAccountID: "b", Amount: 1, Currency: "PYG", Timestamp: "t"}
	if signer.Verify(payload, "not-hex-at-all") {
		t.Fatal("malformed hex must verify false")
	}
	if signer.Verify(payload, "") {
		t.Fatal("empty signature must verify false")
	}
}

func TestCanonicalOrdering(t *testing.T) {
	c := Canonical(Payload{
		DebitAccountID:  "d1",
		CreditAccountID: "c1",
		Amount:          42,
		Currency:        "PYG",
		Timestamp:       "ts",
	})
	want := "amount=42&creditAccountId=c1&currency=PYG&debitAccountId=d1&timestamp=ts"
	if c != want {
		t.Fatalf("canonical mismatch:\n got %s\nwant %s", c, want)
	}
	if strings.Contains(c, " ") {
		t.Fatal("canonical string must not contain spaces")
	}
}
