package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carbonmax/carbonmax/internal/apperrors"
	"github.com/carbonmax/carbonmax/internal/listing"
	"github.com/carbonmax/carbonmax/internal/money"
	"github.com/carbonmax/carbonmax/internal/wallet"
)

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
)

// Transaction records a settled purchase.
type Transaction struct {
	ID          string          `json:"id"`
	ClientTxID  string          `json:"client_tx_id,omitempty"`
	ListingID   string          `json:"listing_id"`
	BuyerID     string          `json:"buyer_id"`
	SellerID    string          `json:"seller_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalValue  decimal.Decimal `json:"total_value"`
	Status      Status          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Settlement is a purchase request handed to the ledger.
type Settlement struct {
	TransactionID string
	ClientTxID    string
	BuyerID       string
	ListingID     string
	Quantity      decimal.Decimal
	At            time.Time
}

// Receipt is the state after a settlement committed.
type Receipt struct {
	Transaction Transaction
	Listing     listing.Listing
	Buyer       wallet.Wallet
	Seller      wallet.Wallet
}

// Query narrows a transaction listing. Zero values mean "any".
type Query struct {
	AccountID string
	From      time.Time
	To        time.Time
}

// Matches applies the query as an in-memory predicate. To is exclusive.
func (q Query) Matches(t Transaction) bool {
	if q.AccountID != "" && t.BuyerID != q.AccountID && t.SellerID != q.AccountID {
		return false
	}
	if !q.From.IsZero() && t.CreatedAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !t.CreatedAt.Before(q.To) {
		return false
	}
	return true
}

// Ledger is the atomic settlement boundary.
type Ledger interface {
	// Settle re-checks the purchase preconditions and, if they hold, records a Completed
	// transaction, decrements the listing, moves cash from buyer to seller and credits the buyer.
	// Either all four effects are applied or none. A TransactionID that is already recorded, or a
	// ClientTxID the buyer already used, returns the original receipt with apperrors.ErrDuplicate.
	Settle(ctx context.Context, s Settlement) (Receipt, error)
	Get(ctx context.Context, id string) (Transaction, error)
	// List returns matching transactions newest first.
	List(ctx context.Context, q Query) ([]Transaction, error)
}

// Check validates a purchase against the listing and buyer state in a fixed order:
// listing availability, own listing, quantity, then funds. It returns the total to charge.
func Check(l listing.Listing, buyer wallet.Wallet, s Settlement) (decimal.Decimal, error) {
	if err := money.CheckPositive("quantity", s.Quantity); err != nil {
		return decimal.Zero, err
	}
	if !l.Purchasable() {
		return decimal.Zero, fmt.Errorf("listing %s: %w", l.ID, apperrors.ErrListingUnavailable)
	}
	if l.OwnerID == s.BuyerID {
		return decimal.Zero, fmt.Errorf("%w: cannot buy your own listing", apperrors.ErrValidation)
	}
	if s.Quantity.GreaterThan(l.QuantityRemaining) {
		return decimal.Zero, fmt.Errorf("requested %s of %s remaining: %w", s.Quantity, l.QuantityRemaining, apperrors.ErrInsufficientQuantity)
	}
	total := Total(s.Quantity, l.UnitPrice)
	if !total.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: order value %s x %s rounds to zero", apperrors.ErrValidation, s.Quantity, l.UnitPrice)
	}
	if buyer.Cash.LessThan(total) {
		return decimal.Zero, fmt.Errorf("need %s, have %s: %w", total, buyer.Cash, apperrors.ErrInsufficientFunds)
	}
	return total, nil
}

// Total is quantity times unit price rounded to two decimals.
func Total(quantity, unitPrice decimal.Decimal) decimal.Decimal {
	return money.Round(quantity.Mul(unitPrice))
}

// Apply computes the post-settlement state from a checked purchase. It does not persist anything.
func Apply(l listing.Listing, buyer, seller wallet.Wallet, s Settlement, total decimal.Decimal) (Receipt, error) {
	at := s.At.UTC()
	l.QuantityRemaining = l.QuantityRemaining.Sub(s.Quantity)
	l.UpdatedAt = at

	buyer, err := buyer.Apply(wallet.Amounts{Credits: s.Quantity, Cash: total.Neg()})
	if err != nil {
		return Receipt{}, err
	}
	buyer.UpdatedAt = at
	seller, err = seller.Apply(wallet.Amounts{Cash: total})
	if err != nil {
		return Receipt{}, err
	}
	seller.UpdatedAt = at

	completed := at
	return Receipt{
		Transaction: Transaction{
			ID:          s.TransactionID,
			ClientTxID:  s.ClientTxID,
			ListingID:   l.ID,
			BuyerID:     s.BuyerID,
			SellerID:    l.OwnerID,
			Quantity:    s.Quantity,
			UnitPrice:   l.UnitPrice,
			TotalValue:  total,
			Status:      StatusCompleted,
			CreatedAt:   at,
			CompletedAt: &completed,
		},
		Listing: l,
		Buyer:   buyer,
		Seller:  seller,
	}, nil
}
