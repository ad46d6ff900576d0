package transfers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const transferColumns = `id, sender_id, receiver_id, sender_wallet_id, receiver_wallet_id,
	amount, currency, description, status, ledger_entry_id, failure_reason, created_at, updated_at`

// PostgresRepository stores transfer records in the internal_transfers table.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository wraps a pgx pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a transfer record.
func (r *PostgresRepository) Create(ctx context.Context, t Transfer) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO internal_transfers (`+transferColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), NULLIF($11, ''), $12, $13)`,
		t.ID, t.SenderID, t.ReceiverID, t.SenderWalletID, t.ReceiverWalletID,
		t.Amount, t.Currency, t.Description, t.Status, t.LedgerEntryID, t.FailureReason,
		t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of a transfer record.
func (r *PostgresRepository) Update(ctx context.Context, t Transfer) error {
	_, err := r.db.Exec(ctx, `
		UPDATE internal_transfers
		SET status = $1, ledger_entry_id = NULLIF($2, ''), failure_reason = NULLIF($3, ''), updated_at = $4
		WHERE id = $5`,
		t.Status, t.LedgerEntryID, t.FailureReason, t.UpdatedAt.UTC(), t.ID)
	if err != nil {
		return fmt.Errorf("update transfer: %w", err)
	}
	return nil
}

// Get fetches a transfer by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Transfer, error) {
	row := r.db.QueryRow(ctx, `SELECT `+transferColumns+` FROM internal_transfers WHERE id = $1`, id)
	return scanTransfer(row)
}

// ByUser lists transfers the user sent or received, newest first.
func (r *PostgresRepository) ByUser(ctx context.Context, userID string, limit int) ([]Transfer, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+transferColumns+`
		FROM internal_transfers
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	defer rows.Close()

	var out []Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransfer(row pgx.Row) (Transfer, error) {
	var t Transfer
	var entryID, reason *string
	err := row.Scan(&t.ID, &t.SenderID, &t.ReceiverID, &t.SenderWalletID, &t.ReceiverWalletID,
		&t.Amount, &t.Currency, &t.Description, &t.Status, &entryID, &reason, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transfer{}, ErrTransferNotFound
	}
	if err != nil {
		return Transfer{}, fmt.Errorf("scan transfer: %w", err)
	}
	if entryID != nil {
		t.LedgerEntryID = *entryID
	}
	if reason != nil {
		t.FailureReason = *reason
	}
	return t, nil
}

// NewMemoryRepository returns an in-memory Repository for tests and local
// development.
func NewMemoryRepository() Repository {
	return &memoryRepository{records: make(map[string]Transfer)}
}

type memoryRepository struct {
	mu      sync.RWMutex
	records map[string]Transfer
}

func (r *memoryRepository) Create(_ context.Context, t Transfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[t.ID]; ok {
		return fmt.Errorf("transfer %s already exists", t.ID)
	}
	r.records[t.ID] = t
	return nil
}

func (r *memoryRepository) Update(_ context.Context, t Transfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[t.ID]; !ok {
		return ErrTransferNotFound
	}
	r.records[t.ID] = t
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Transfer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.records[id]
	if !ok {
		return Transfer{}, ErrTransferNotFound
	}
	return t, nil
}

func (r *memoryRepository) ByUser(_ context.Context, userID string, limit int) ([]Transfer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Transfer
	for _, t := range r.records {
		if t.SenderID == userID || t.ReceiverID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
