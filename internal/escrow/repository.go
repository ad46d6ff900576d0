package escrow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const holdColumns = `id, payer_id, payee_id, payer_wallet_id, amount, currency, description,
	status, hold_until, hold_entry_id, settle_entry_id, created_at, updated_at`

// PostgresRepository stores holds in the escrow_holds table.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository wraps a pgx pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a hold.
func (r *PostgresRepository) Create(ctx context.Context, h Hold) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO escrow_holds (`+holdColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13)`,
		h.ID, h.PayerID, h.PayeeID, h.PayerWalletID, h.Amount, h.Currency, h.Description,
		h.Status, h.HoldUntil.UTC(), h.HoldEntryID, h.SettleEntryID, h.CreatedAt.UTC(), h.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert hold: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of a hold.
func (r *PostgresRepository) Update(ctx context.Context, h Hold) error {
	_, err := r.db.Exec(ctx, `
		UPDATE escrow_holds
		SET status = $1, settle_entry_id = NULLIF($2, ''), updated_at = $3
		WHERE id = $4`,
		h.Status, h.SettleEntryID, h.UpdatedAt.UTC(), h.ID)
	if err != nil {
		return fmt.Errorf("update hold: %w", err)
	}
	return nil
}

// Claim moves a hold HELD→SETTLING. Zero rows affected means another
// settlement already claimed the hold, surfaced as ErrNotHeld.
func (r *PostgresRepository) Claim(ctx context.Context, id string) (Hold, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE escrow_holds
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`,
		StatusSettling, time.Now().UTC(), id, StatusHeld)
	if err != nil {
		return Hold{}, fmt.Errorf("claim hold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Hold{}, ErrNotHeld
	}
	return r.Get(ctx, id)
}

// Get fetches a hold by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Hold, error) {
	row := r.db.QueryRow(ctx, `SELECT `+holdColumns+` FROM escrow_holds WHERE id = $1`, id)
	return scanHold(row)
}

// ByUser lists holds where the user is payer or payee, newest first.
func (r *PostgresRepository) ByUser(ctx context.Context, userID string, limit int) ([]Hold, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+holdColumns+`
		FROM escrow_holds
		WHERE payer_id = $1 OR payee_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query holds: %w", err)
	}
	defer rows.Close()

	var out []Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanHold(row pgx.Row) (Hold, error) {
	var h Hold
	var settleID *string
	err := row.Scan(&h.ID, &h.PayerID, &h.PayeeID, &h.PayerWalletID, &h.Amount, &h.Currency,
		&h.Description, &h.Status, &h.HoldUntil, &h.HoldEntryID, &settleID, &h.CreatedAt, &h.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Hold{}, ErrHoldNotFound
	}
	if err != nil {
		return Hold{}, fmt.Errorf("scan hold: %w", err)
	}
	if settleID != nil {
		h.SettleEntryID = *settleID
	}
	return h, nil
}

// NewMemoryRepository returns an in-memory Repository for tests and local
// development.
func NewMemoryRepository() Repository {
	return &memoryRepository{records: make(map[string]Hold)}
}

type memoryRepository struct {
	mu      sync.RWMutex
	records map[string]Hold
}

func (r *memoryRepository) Create(_ context.Context, h Hold) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[h.ID]; ok {
		return fmt.Errorf("hold %s already exists", h.ID)
	}
	r.records[h.ID] = h
	return nil
}

func (r *memoryRepository) Update(_ context.Context, h Hold) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[h.ID]; !ok {
		return ErrHoldNotFound
	}
	r.records[h.ID] = h
	return nil
}

func (r *memoryRepository) Claim(_ context.Context, id string) (Hold, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.records[id]
	if !ok {
		return Hold{}, ErrHoldNotFound
	}
	if h.Status != StatusHeld {
		return Hold{}, ErrNotHeld
	}
	h.Status = StatusSettling
	h.UpdatedAt = time.Now().UTC()
	r.records[id] = h
	return h, nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Hold, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.records[id]
	if !ok {
		return Hold{}, ErrHoldNotFound
	}
	return h, nil
}

func (r *memoryRepository) ByUser(_ context.Context, userID string, limit int) ([]Hold, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Hold
	for _, h := range r.records {
		if h.PayerID == userID || h.PayeeID == userID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
