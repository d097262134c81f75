package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carbonmax/carbonmax/internal/apperrors"
	"github.com/carbonmax/carbonmax/internal/infra"
	"github.com/carbonmax/carbonmax/internal/listing"
	"github.com/carbonmax/carbonmax/internal/wallet"
)

const (
	transactionColumns = `id, COALESCE(client_tx_id, ''), listing_id, buyer_id, seller_id, quantity, unit_price,
        total_value, status, created_at, completed_at`
	clientTxConstraint = "transactions_buyer_client_tx_key"
)

// PostgresLedger settles purchases inside a single PostgreSQL transaction.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// Settle locks the listing and both wallets, re-checks the purchase and applies it.
func (l *PostgresLedger) Settle(ctx context.Context, s Settlement) (Receipt, error) {
	listingID, err := uuid.Parse(s.ListingID)
	if err != nil {
		return Receipt{}, fmt.Errorf("listing %s: %w", s.ListingID, apperrors.ErrListingUnavailable)
	}
	buyerID, err := uuid.Parse(s.BuyerID)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: buyer id: %v", apperrors.ErrValidation, err)
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Receipt{}, infra.PgError(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	txID, err := uuid.Parse(s.TransactionID)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: transaction id: %v", apperrors.ErrValidation, err)
	}
	var clientTx *string
	if s.ClientTxID != "" {
		clientTx = &s.ClientTxID
	}
	existing, err := scanTransaction(tx.QueryRow(ctx, `SELECT `+transactionColumns+`
        FROM transactions WHERE id = $1 OR (buyer_id = $2 AND client_tx_id = $3)
        ORDER BY (id = $1) DESC LIMIT 1`, txID, buyerID, clientTx))
	if err == nil {
		receipt, rerr := recordedReceipt(ctx, tx, existing)
		if rerr != nil {
			return Receipt{}, rerr
		}
		return receipt, fmt.Errorf("transaction %s: %w", existing.ID, apperrors.ErrDuplicate)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Receipt{}, infra.PgError(err)
	}

	lst, err := listing.ScanListing(tx.QueryRow(ctx, `SELECT `+listing.Columns()+` FROM listings WHERE id = $1 FOR UPDATE`, listingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Receipt{}, fmt.Errorf("listing %s: %w", s.ListingID, apperrors.ErrListingUnavailable)
	}
	if err != nil {
		return Receipt{}, infra.PgError(err)
	}

	for _, owner := range []string{s.BuyerID, lst.OwnerID} {
		if _, err := tx.Exec(ctx, `INSERT INTO wallets (owner_id) VALUES ($1) ON CONFLICT (owner_id) DO NOTHING`, uuid.MustParse(owner)); err != nil {
			return Receipt{}, infra.PgError(err)
		}
	}

	// Wallet rows are always locked in owner id order so two opposite purchases cannot deadlock.
	locked := map[string]wallet.Wallet{}
	first, second := s.BuyerID, lst.OwnerID
	if strings.Compare(first, second) > 0 {
		first, second = second, first
	}
	for _, owner := range []string{first, second} {
		if _, ok := locked[owner]; ok {
			continue
		}
		w, err := wallet.LockWallet(ctx, tx, owner)
		if err != nil {
			return Receipt{}, err
		}
		locked[owner] = w
	}

	total, err := Check(lst, locked[s.BuyerID], s)
	if err != nil {
		return Receipt{}, err
	}
	receipt, err := Apply(lst, locked[s.BuyerID], locked[lst.OwnerID], s, total)
	if err != nil {
		return Receipt{}, err
	}

	if _, err := tx.Exec(ctx, `UPDATE listings SET quantity_remaining = $2, updated_at = $3 WHERE id = $1`,
		listingID, receipt.Listing.QuantityRemaining, receipt.Listing.UpdatedAt); err != nil {
		return Receipt{}, infra.PgError(err)
	}
	if err := wallet.SaveWallet(ctx, tx, receipt.Buyer); err != nil {
		return Receipt{}, err
	}
	if err := wallet.SaveWallet(ctx, tx, receipt.Seller); err != nil {
		return Receipt{}, err
	}

	t := receipt.Transaction
	if _, err := tx.Exec(ctx, `INSERT INTO transactions (id, client_tx_id, listing_id, buyer_id, seller_id, quantity, unit_price, total_value, status, created_at, completed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		txID, clientTx, listingID, buyerID, uuid.MustParse(t.SellerID),
		t.Quantity, t.UnitPrice, t.TotalValue, string(t.Status), t.CreatedAt, t.CompletedAt); err != nil {
		if infra.IsUniqueViolation(err, clientTxConstraint) {
			return Receipt{}, fmt.Errorf("client transaction %s: %w", t.ClientTxID, apperrors.ErrDuplicate)
		}
		return Receipt{}, infra.PgError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Receipt{}, infra.PgError(err)
	}
	return receipt, nil
}

// recordedReceipt pairs an already settled transaction with the current listing and wallet rows.
func recordedReceipt(ctx context.Context, tx pgx.Tx, t Transaction) (Receipt, error) {
	lst, err := listing.ScanListing(tx.QueryRow(ctx, `SELECT `+listing.Columns()+` FROM listings WHERE id = $1`, uuid.MustParse(t.ListingID)))
	if err != nil {
		return Receipt{}, infra.PgError(err)
	}
	r := Receipt{Transaction: t, Listing: lst}
	for _, w := range []struct {
		owner string
		dst   *wallet.Wallet
	}{{t.BuyerID, &r.Buyer}, {t.SellerID, &r.Seller}} {
		got, err := wallet.ScanWallet(tx.QueryRow(ctx, `SELECT owner_id, credits, cash, updated_at FROM wallets WHERE owner_id = $1`, uuid.MustParse(w.owner)))
		if err != nil {
			return Receipt{}, infra.PgError(err)
		}
		*w.dst = got
	}
	return r, nil
}

// Get fetches a transaction by identifier.
func (l *PostgresLedger) Get(ctx context.Context, id string) (Transaction, error) {
	txID, err := uuid.Parse(id)
	if err != nil {
		return Transaction{}, fmt.Errorf("transaction %s: %w", id, apperrors.ErrNotFound)
	}
	t, err := scanTransaction(l.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, txID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, fmt.Errorf("transaction %s: %w", id, apperrors.ErrNotFound)
	}
	return t, infra.PgError(err)
}

// List returns transactions matching q, newest first.
func (l *PostgresLedger) List(ctx context.Context, q Query) ([]Transaction, error) {
	var (
		conds []string
		args  []any
	)
	if q.AccountID != "" {
		id, err := uuid.Parse(q.AccountID)
		if err != nil {
			return []Transaction{}, nil
		}
		args = append(args, id)
		conds = append(conds, fmt.Sprintf("(buyer_id = $%d OR seller_id = $%d)", len(args), len(args)))
	}
	if !q.From.IsZero() {
		args = append(args, q.From.UTC())
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !q.To.IsZero() {
		args = append(args, q.To.UTC())
		conds = append(conds, fmt.Sprintf("created_at < $%d", len(args)))
	}

	sql := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	sql += " ORDER BY created_at DESC"

	rows, err := l.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, infra.PgError(err)
	}
	defer rows.Close()

	out := []Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, infra.PgError(err)
		}
		out = append(out, t)
	}
	return out, infra.PgError(rows.Err())
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		t                      Transaction
		id, lst, buyer, seller uuid.UUID
		status                 string
		completedAt            *time.Time
	)
	if err := row.Scan(&id, &t.ClientTxID, &lst, &buyer, &seller, &t.Quantity, &t.UnitPrice,
		&t.TotalValue, &status, &t.CreatedAt, &completedAt); err != nil {
		return Transaction{}, err
	}
	t.ID = id.String()
	t.ListingID = lst.String()
	t.BuyerID = buyer.String()
	t.SellerID = seller.String()
	t.Status = Status(status)
	t.CreatedAt = t.CreatedAt.UTC()
	if completedAt != nil {
		c := completedAt.UTC()
		t.CompletedAt = &c
	}
	return t, nil
}
