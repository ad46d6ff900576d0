// Package ledger implements the double-entry ledger at the heart of the
// payment backend: immutable signed entries, version-guarded balance updates,
// and derived integrity checks. It is the only writer of account and wallet
// balances.
package ledger

import (
	"errors"
	"time"
)

var (
	// ErrInvalidAmount rejects non-positive amounts before any I/O.
	ErrInvalidAmount = errors.New("amount must be greater than zero")

	// ErrAccountNotFound indicates a debit or credit account id does not resolve.
	ErrAccountNotFound = errors.New("account not found")

	// ErrWalletNotFound indicates the wallet id does not resolve.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrEntryNotFound indicates the ledger entry id does not resolve.
	ErrEntryNotFound = errors.New("ledger entry not found")

	// ErrInsufficientBalance occurs when the debit account cannot cover the amount.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrVersionConflict signals an optimistic-lock failure: another operation
	// committed against the same account or wallet first. Callers may retry
	// the whole business operation.
	ErrVersionConflict = errors.New("version conflict")

	// ErrTransactionTimeout surfaces when acquiring a transaction slot or
	// running the transaction exceeds the configured bounds.
	ErrTransactionTimeout = errors.New("ledger transaction timed out")

	// ErrDuplicateAccount indicates an account with the same number already exists.
	ErrDuplicateAccount = errors.New("account already exists")
)

const (
	// StatusActive marks a usable wallet or account.
	StatusActive = "ACTIVE"

	// AccountTypeMain is a user's primary spending account.
	AccountTypeMain = "MAIN"
	// AccountTypeProvider collects bill payments for an external provider.
	AccountTypeProvider = "PROVIDER"
	// AccountTypeEscrow parks funds held pending release or refund.
	AccountTypeEscrow = "ESCROW"
	// AccountTypeSettlement receives inbound card settlements.
	AccountTypeSettlement = "SETTLEMENT"

	// EntryStatusCompleted is the only status an entry is ever written with;
	// entries are never partial and never mutated.
	EntryStatusCompleted = "COMPLETED"
)

// Wallet aggregates a user's balance across accounts. Balance is in minor
// units (whole guaraníes) and is mutated only inside ledger transactions,
// guarded by Version.
type Wallet struct {
	ID        string
	UserID    string
	Balance   int64
	Currency  string
	Status    string
	Version   int
	CreatedAt time.Time
}

// Account is a named sub-ledger under a wallet with its own version-guarded
// balance.
type Account struct {
	ID            string
	WalletID      string
	AccountType   string
	AccountNumber string
	Balance       int64
	Currency      string
	Status        string
	Version       int
	CreatedAt     time.Time
}

// Entry is one immutable double-entry record. SignedAt holds the exact
// timestamp string covered by the signature; reformatting it would break
// verification.
type Entry struct {
	ID              string
	WalletID        string
	DebitAccountID  string
	CreditAccountID string
	Amount          int64
	Currency        string
	TransactionType string
	Description     string
	ReferenceID     string
	Metadata        map[string]string
	Signature       string
	SignedAt        string
	Status          string
	CreatedAt       time.Time
}

// EntryInput carries everything a consumer supplies to post one entry.
type EntryInput struct {
	WalletID        string
	DebitAccountID  string
	CreditAccountID string
	Amount          int64
	Currency        string
	TransactionType string
	Description     string
	ReferenceID     string
	Metadata        map[string]string
	UserID          string
}
