package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const paymentColumns = `id, user_id, wallet_id, provider, invoice_number, amount, currency,
	status, ledger_entry_id, failure_reason, created_at, updated_at`

// PostgresRepository stores payment records in the bill_payments table.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository wraps a pgx pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a payment record.
func (r *PostgresRepository) Create(ctx context.Context, p Payment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO bill_payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11, $12)`,
		p.ID, p.UserID, p.WalletID, p.Provider, p.InvoiceNumber, p.Amount, p.Currency,
		p.Status, p.LedgerEntryID, p.FailureReason, p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of a payment record.
func (r *PostgresRepository) Update(ctx context.Context, p Payment) error {
	_, err := r.db.Exec(ctx, `
		UPDATE bill_payments
		SET status = $1, ledger_entry_id = NULLIF($2, ''), failure_reason = NULLIF($3, ''), updated_at = $4
		WHERE id = $5`,
		p.Status, p.LedgerEntryID, p.FailureReason, p.UpdatedAt.UTC(), p.ID)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	return nil
}

// Get fetches a payment by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Payment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM bill_payments WHERE id = $1`, id)
	return scanPayment(row)
}

// ByUser lists the user's payments, newest first.
func (r *PostgresRepository) ByUser(ctx context.Context, userID string, limit int) ([]Payment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM bill_payments
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	var entryID, reason *string
	err := row.Scan(&p.ID, &p.UserID, &p.WalletID, &p.Provider, &p.InvoiceNumber,
		&p.Amount, &p.Currency, &p.Status, &entryID, &reason, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrPaymentNotFound
	}
	if err != nil {
		return Payment{}, fmt.Errorf("scan payment: %w", err)
	}
	if entryID != nil {
		p.LedgerEntryID = *entryID
	}
	if reason != nil {
		p.FailureReason = *reason
	}
	return p, nil
}

// NewMemoryRepository returns an in-memory Repository for tests and local
// development.
func NewMemoryRepository() Repository {
	return &memoryRepository{records: make(map[string]Payment)}
}

type memoryRepository struct {
	mu      sync.RWMutex
	records map[string]Payment
}

func (r *memoryRepository) Create(_ context.Context, p Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[p.ID]; ok {
		return fmt.Errorf("payment %s already exists", p.ID)
	}
	r.records[p.ID] = p
	return nil
}

func (r *memoryRepository) Update(_ context.Context, p Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[p.ID]; !ok {
		return ErrPaymentNotFound
	}
	r.records[p.ID] = p
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.records[id]
	if !ok {
		return Payment{}, ErrPaymentNotFound
	}
	return p, nil
}

func (r *memoryRepository) ByUser(_ context.Context, userID string, limit int) ([]Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Payment
	for _, p := range r.records {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
