package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/carbonmax/carbonmax/internal/apperrors"
	"github.com/carbonmax/carbonmax/internal/infra"
)

const listingColumns = `id, owner_id, credit_type, crop, region, quantity_remaining, unit_price,
        status, created_at, updated_at, verified_by, verified_at`

// PostgresRepository stores listings in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a listing record.
func (r *PostgresRepository) Create(ctx context.Context, l Listing) error {
	id, err := uuid.Parse(l.ID)
	if err != nil {
		return fmt.Errorf("%w: listing id: %v", apperrors.ErrValidation, err)
	}
	ownerID, err := uuid.Parse(l.OwnerID)
	if err != nil {
		return fmt.Errorf("%w: owner id: %v", apperrors.ErrValidation, err)
	}
	_, err = r.db.Exec(ctx, `INSERT INTO listings (id, owner_id, credit_type, crop, region, quantity_remaining, unit_price, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, ownerID, l.CreditType, l.CropCode, l.Region, l.QuantityRemaining, l.UnitPrice, string(l.Status), l.CreatedAt.UTC(), l.UpdatedAt.UTC())
	return infra.PgError(err)
}

// Get fetches a listing by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Listing, error) {
	listingID, err := uuid.Parse(id)
	if err != nil {
		return Listing{}, fmt.Errorf("listing %s: %w", id, apperrors.ErrNotFound)
	}
	l, err := ScanListing(r.db.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, listingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Listing{}, fmt.Errorf("listing %s: %w", id, apperrors.ErrNotFound)
	}
	return l, infra.PgError(err)
}

// List returns listings matching q, newest first.
func (r *PostgresRepository) List(ctx context.Context, q Query) ([]Listing, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if q.OwnerID != "" {
		ownerID, err := uuid.Parse(q.OwnerID)
		if err != nil {
			return []Listing{}, nil
		}
		add("owner_id = $%d", ownerID)
	}
	if q.Status != "" {
		add("status = $%d", string(q.Status))
	}
	if q.CreditType != "" {
		add("credit_type = $%d", q.CreditType)
	}
	if q.Region != "" {
		add("region = $%d", q.Region)
	}

	sql := `SELECT ` + listingColumns + ` FROM listings`
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	sql += " ORDER BY created_at DESC"

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, infra.PgError(err)
	}
	defer rows.Close()

	out := []Listing{}
	for rows.Next() {
		l, err := ScanListing(rows)
		if err != nil {
			return nil, infra.PgError(err)
		}
		out = append(out, l)
	}
	return out, infra.PgError(rows.Err())
}

// TransitionStatus applies a compare-and-set on the listing status.
func (r *PostgresRepository) TransitionStatus(ctx context.Context, id string, from, to Status, verifierID string, at time.Time) (Listing, error) {
	if !CanTransition(from, to) {
		return Listing{}, fmt.Errorf("%s to %s: %w", from, to, apperrors.ErrInvalidTransition)
	}
	listingID, err := uuid.Parse(id)
	if err != nil {
		return Listing{}, fmt.Errorf("listing %s: %w", id, apperrors.ErrNotFound)
	}
	var verifier *uuid.UUID
	if v, err := uuid.Parse(verifierID); err == nil {
		verifier = &v
	}

	l, err := ScanListing(r.db.QueryRow(ctx, `UPDATE listings
        SET status = $3, verified_by = $4, verified_at = $5, updated_at = $5
        WHERE id = $1 AND status = $2
        RETURNING `+listingColumns, listingID, string(from), string(to), verifier, at.UTC()))
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Listing{}, infra.PgError(err)
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return Listing{}, err
	}
	return Listing{}, fmt.Errorf("listing %s is %s: %w", id, current.Status, apperrors.ErrInvalidTransition)
}

// DecrementQuantity subtracts amount from the remaining quantity in a single guarded update.
func (r *PostgresRepository) DecrementQuantity(ctx context.Context, id string, amount decimal.Decimal) (Listing, error) {
	listingID, err := uuid.Parse(id)
	if err != nil {
		return Listing{}, fmt.Errorf("listing %s: %w", id, apperrors.ErrNotFound)
	}
	l, err := ScanListing(r.db.QueryRow(ctx, `UPDATE listings
        SET quantity_remaining = quantity_remaining - $2, updated_at = NOW()
        WHERE id = $1 AND quantity_remaining >= $2
        RETURNING `+listingColumns, listingID, amount))
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Listing{}, infra.PgError(err)
	}
	if _, err := r.Get(ctx, id); err != nil {
		return Listing{}, err
	}
	return Listing{}, fmt.Errorf("listing %s: %w", id, apperrors.ErrInsufficientQuantity)
}

// DeletePending removes a listing only while it is still Pending.
func (r *PostgresRepository) DeletePending(ctx context.Context, id string) error {
	listingID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("listing %s: %w", id, apperrors.ErrNotFound)
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM listings WHERE id = $1 AND status = $2`, listingID, string(StatusPending))
	if err != nil {
		return infra.PgError(err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("listing %s is %s: %w", id, current.Status, apperrors.ErrInvalidTransition)
}

// ScanListing reads one listing row selected with the standard column list.
func ScanListing(row pgx.Row) (Listing, error) {
	var (
		l          Listing
		id, owner  uuid.UUID
		status     string
		verifiedBy *uuid.UUID
		verifiedAt *time.Time
	)
	if err := row.Scan(&id, &owner, &l.CreditType, &l.CropCode, &l.Region, &l.QuantityRemaining, &l.UnitPrice,
		&status, &l.CreatedAt, &l.UpdatedAt, &verifiedBy, &verifiedAt); err != nil {
		return Listing{}, err
	}
	l.ID = id.String()
	l.OwnerID = owner.String()
	l.Status = Status(status)
	l.CreatedAt = l.CreatedAt.UTC()
	l.UpdatedAt = l.UpdatedAt.UTC()
	if verifiedBy != nil {
		l.VerifiedBy = verifiedBy.String()
	}
	if verifiedAt != nil {
		t := verifiedAt.UTC()
		l.VerifiedAt = &t
	}
	return l, nil
}

// Columns is the select list understood by ScanListing.
func Columns() string { return listingColumns }
