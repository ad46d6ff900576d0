package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the ledger in PostgreSQL. Balance updates are
// conditional on the version read at the start of the transaction; zero rows
// affected means another transaction won the race, not that the row is
// missing.
type PostgresStore struct {
	db        *pgxpool.Pool
	maxWait   time.Duration
	txTimeout time.Duration
}

// PostgresOpts bounds transaction slot acquisition and total transaction
// duration.
type PostgresOpts struct {
	MaxWait   time.Duration
	TxTimeout time.Duration
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool, opts PostgresOpts) *PostgresStore {
	if opts.MaxWait <= 0 {
		opts.MaxWait = 5 * time.Second
	}
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = 10 * time.Second
	}
	return &PostgresStore{db: db, maxWait: opts.MaxWait, txTimeout: opts.TxTimeout}
}

func (s *PostgresStore) CreateWallet(ctx context.Context, w Wallet) error {
	_, err := s.db.Exec(ctx, `INSERT INTO wallets (id, user_id, balance, currency, status, version, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		w.ID, w.UserID, w.Balance, w.Currency, w.Status, w.Version, w.CreatedAt.UTC())
	return err
}

func (s *PostgresStore) GetWallet(ctx context.Context, id string) (Wallet, error) {
	return s.scanWallet(s.db.QueryRow(ctx, `SELECT id, user_id, balance, currency, status, version, created_at
        FROM wallets WHERE id = $1`, id))
}

func (s *PostgresStore) WalletByUser(ctx context.Context, userID string) (Wallet, error) {
	return s.scanWallet(s.db.QueryRow(ctx, `SELECT id, user_id, balance, currency, status, version, created_at
        FROM wallets WHERE user_id = $1`, userID))
}

func (s *PostgresStore) scanWallet(row pgx.Row) (Wallet, error) {
	var w Wallet
	var createdAt time.Time
	if err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.Currency, &w.Status, &w.Version, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, err
	}
	w.CreatedAt = createdAt.UTC()
	return w, nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, a Account) error {
	_, err := s.db.Exec(ctx, `INSERT INTO accounts (id, wallet_id, account_type, account_number, balance, currency, status, version, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (account_number) DO NOTHING`,
		a.ID, a.WalletID, a.AccountType, a.AccountNumber, a.Balance, a.Currency, a.Status, a.Version, a.CreatedAt.UTC())
	return err
}

const accountColumns = `id, wallet_id, account_type, account_number, balance, currency, status, version, created_at`

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (Account, error) {
	return scanAccount(s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (s *PostgresStore) AccountsByWallet(ctx context.Context, walletID string) ([]Account, error) {
	rows, err := s.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE wallet_id = $1 ORDER BY account_number`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, account)
	}
	return out, rows.Err()
}

func (s *PostgresStore) FindAccount(ctx context.Context, walletID, accountType string) (Account, error) {
	return scanAccount(s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts
        WHERE wallet_id = $1 AND account_type = $2 LIMIT 1`, walletID, accountType))
}

func (s *PostgresStore) FindAccountByNumber(ctx context.Context, accountNumber string) (Account, error) {
	return scanAccount(s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts
        WHERE account_number = $1`, accountNumber))
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	var createdAt time.Time
	if err := row.Scan(&a.ID, &a.WalletID, &a.AccountType, &a.AccountNumber, &a.Balance, &a.Currency, &a.Status, &a.Version, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	a.CreatedAt = createdAt.UTC()
	return a, nil
}

// CreateEntry runs the atomic double-entry posting: load, re-validate, insert
// the signed entry, then apply the three balance updates conditioned on the
// versions read at the start. Any guard failure rolls everything back.
func (s *PostgresStore) CreateEntry(ctx context.Context, entry Entry) (EntryResult, error) {
	acquireCtx, cancelAcquire := context.WithTimeout(ctx, s.maxWait)
	tx, err := s.db.BeginTx(acquireCtx, pgx.TxOptions{})
	cancelAcquire()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return EntryResult{}, fmt.Errorf("acquire transaction: %w", ErrTransactionTimeout)
		}
		return EntryResult{}, err
	}

	txCtx, cancelTx := context.WithTimeout(ctx, s.txTimeout)
	defer cancelTx()
	defer tx.Rollback(context.Background()) // nolint:errcheck

	result, err := s.postEntry(txCtx, tx, entry)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(txCtx.Err(), context.DeadlineExceeded) {
			return EntryResult{}, fmt.Errorf("ledger transaction: %w", ErrTransactionTimeout)
		}
		return EntryResult{}, err
	}

	if err := tx.Commit(txCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return EntryResult{}, fmt.Errorf("commit: %w", ErrTransactionTimeout)
		}
		return EntryResult{}, err
	}
	return result, nil
}

func (s *PostgresStore) postEntry(ctx context.Context, tx pgx.Tx, entry Entry) (EntryResult, error) {
	debit, err := scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, entry.DebitAccountID))
	if err != nil {
		return EntryResult{}, err
	}
	credit, err := scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, entry.CreditAccountID))
	if err != nil {
		return EntryResult{}, err
	}
	wallet, err := s.scanWallet(tx.QueryRow(ctx, `SELECT id, user_id, balance, currency, status, version, created_at
        FROM wallets WHERE id = $1`, entry.WalletID))
	if err != nil {
		return EntryResult{}, err
	}

	// Never trust a pre-transaction read for balance math.
	if debit.Balance < entry.Amount {
		return EntryResult{}, ErrInsufficientBalance
	}

	var metadata []byte
	if len(entry.Metadata) > 0 {
		if metadata, err = json.Marshal(entry.Metadata); err != nil {
			return EntryResult{}, fmt.Errorf("encode metadata: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `INSERT INTO ledger_entries
        (id, wallet_id, debit_account_id, credit_account_id, amount, currency, transaction_type, description, reference_id, metadata, signature, signed_at, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		entry.ID, entry.WalletID, entry.DebitAccountID, entry.CreditAccountID, entry.Amount,
		entry.Currency, entry.TransactionType, entry.Description, nullable(entry.ReferenceID),
		metadata, entry.Signature, entry.SignedAt, entry.Status, entry.CreatedAt.UTC())
	if err != nil {
		return EntryResult{}, err
	}

	if err := guardedAccountUpdate(ctx, tx, debit.ID, -entry.Amount, debit.Version); err != nil {
		return EntryResult{}, err
	}
	if err := guardedAccountUpdate(ctx, tx, credit.ID, entry.Amount, credit.Version); err != nil {
		return EntryResult{}, err
	}

	delta := walletDelta(entry.WalletID, debit.WalletID, credit.WalletID, entry.Amount)
	tag, err := tx.Exec(ctx, `UPDATE wallets SET balance = balance + $1, version = version + 1
        WHERE id = $2 AND version = $3`, delta, wallet.ID, wallet.Version)
	if err != nil {
		return EntryResult{}, err
	}
	if tag.RowsAffected() == 0 {
		return EntryResult{}, fmt.Errorf("wallet %s: %w", wallet.ID, ErrVersionConflict)
	}

	return EntryResult{
		Entry:                 entry,
		PreviousWalletBalance: wallet.Balance,
		NewWalletBalance:      wallet.Balance + delta,
	}, nil
}

func guardedAccountUpdate(ctx context.Context, tx pgx.Tx, accountID string, delta int64, version int) error {
	tag, err := tx.Exec(ctx, `UPDATE accounts SET balance = balance + $1, version = version + 1
        WHERE id = $2 AND version = $3`, delta, accountID, version)
	if err != nil {
		return err
	}
	// The row was loaded moments ago, so zero rows means a concurrent commit
	// bumped the version, not a missing account.
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", accountID, ErrVersionConflict)
	}
	return nil
}

const entryColumns = `id, wallet_id, debit_account_id, credit_account_id, amount, currency, transaction_type, description, reference_id, metadata, signature, signed_at, status, created_at`

func (s *PostgresStore) GetEntry(ctx context.Context, id string) (Entry, error) {
	return scanEntry(s.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1`, id))
}

func (s *PostgresStore) EntriesByWallet(ctx context.Context, walletID string, limit int) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
        WHERE wallet_id = $1 ORDER BY created_at DESC LIMIT $2`, walletID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var referenceID *string
	var metadata []byte
	var createdAt time.Time
	err := row.Scan(&e.ID, &e.WalletID, &e.DebitAccountID, &e.CreditAccountID, &e.Amount,
		&e.Currency, &e.TransactionType, &e.Description, &referenceID, &metadata,
		&e.Signature, &e.SignedAt, &e.Status, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, err
	}
	if referenceID != nil {
		e.ReferenceID = *referenceID
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return Entry{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	e.CreatedAt = createdAt.UTC()
	return e, nil
}

func (s *PostgresStore) DebitTotal(ctx context.Context, accountID string) (int64, error) {
	var total int64
	err := s.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
        WHERE debit_account_id = $1`, accountID).Scan(&total)
	return total, err
}

func (s *PostgresStore) CreditTotal(ctx context.Context, accountID string) (int64, error) {
	var total int64
	err := s.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
        WHERE credit_account_id = $1`, accountID).Scan(&total)
	return total, err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
