package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carbonmax/carbonmax/internal/apperrors"
	"github.com/carbonmax/carbonmax/internal/infra"
)

// Repository persists wallets.
type Repository interface {
	// GetOrCreate returns the wallet for ownerID, creating it with zero balances if missing.
	GetOrCreate(ctx context.Context, ownerID string) (Wallet, error)
	// Apply adds delta (which may be negative) as one atomic check-and-apply.
	Apply(ctx context.Context, ownerID string, delta Amounts, at time.Time) (Wallet, error)
}

// PostgresRepository stores wallets in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetOrCreate inserts an empty wallet on first access.
func (r *PostgresRepository) GetOrCreate(ctx context.Context, ownerID string) (Wallet, error) {
	id, err := uuid.Parse(ownerID)
	if err != nil {
		return Wallet{}, fmt.Errorf("%w: owner id: %v", apperrors.ErrValidation, err)
	}
	if _, err := r.db.Exec(ctx, `INSERT INTO wallets (owner_id) VALUES ($1) ON CONFLICT (owner_id) DO NOTHING`, id); err != nil {
		return Wallet{}, infra.PgError(err)
	}
	w, err := ScanWallet(r.db.QueryRow(ctx, `SELECT owner_id, credits, cash, updated_at FROM wallets WHERE owner_id = $1`, id))
	return w, infra.PgError(err)
}

// Apply locks the wallet row, checks the resulting balances and writes them.
func (r *PostgresRepository) Apply(ctx context.Context, ownerID string, delta Amounts, at time.Time) (Wallet, error) {
	id, err := uuid.Parse(ownerID)
	if err != nil {
		return Wallet{}, fmt.Errorf("%w: owner id: %v", apperrors.ErrValidation, err)
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Wallet{}, infra.PgError(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `INSERT INTO wallets (owner_id) VALUES ($1) ON CONFLICT (owner_id) DO NOTHING`, id); err != nil {
		return Wallet{}, infra.PgError(err)
	}
	current, err := LockWallet(ctx, tx, ownerID)
	if err != nil {
		return Wallet{}, err
	}
	next, err := current.Apply(delta)
	if err != nil {
		return Wallet{}, err
	}
	next.UpdatedAt = at.UTC()
	if err := SaveWallet(ctx, tx, next); err != nil {
		return Wallet{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Wallet{}, infra.PgError(err)
	}
	return next, nil
}

// LockWallet selects a wallet FOR UPDATE inside tx.
func LockWallet(ctx context.Context, tx pgx.Tx, ownerID string) (Wallet, error) {
	id, err := uuid.Parse(ownerID)
	if err != nil {
		return Wallet{}, fmt.Errorf("wallet %s: %w", ownerID, apperrors.ErrNotFound)
	}
	w, err := ScanWallet(tx.QueryRow(ctx, `SELECT owner_id, credits, cash, updated_at FROM wallets WHERE owner_id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Wallet{}, fmt.Errorf("wallet %s: %w", ownerID, apperrors.ErrNotFound)
	}
	return w, infra.PgError(err)
}

// SaveWallet writes both balances of w inside tx.
func SaveWallet(ctx context.Context, tx pgx.Tx, w Wallet) error {
	_, err := tx.Exec(ctx, `UPDATE wallets SET credits = $2, cash = $3, updated_at = $4 WHERE owner_id = $1`,
		uuid.MustParse(w.OwnerID), w.Credits, w.Cash, w.UpdatedAt.UTC())
	return infra.PgError(err)
}

// ScanWallet reads one wallet row.
func ScanWallet(row pgx.Row) (Wallet, error) {
	var (
		w  Wallet
		id uuid.UUID
	)
	if err := row.Scan(&id, &w.Credits, &w.Cash, &w.UpdatedAt); err != nil {
		return Wallet{}, err
	}
	w.OwnerID = id.String()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}
