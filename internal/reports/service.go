package reports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/carbonmax/carbonmax/internal/identity"
	"github.com/carbonmax/carbonmax/internal/ledger"
	"github.com/carbonmax/carbonmax/internal/listing"
	"github.com/carbonmax/carbonmax/internal/market"
)

// AccountCounter counts accounts per role.
type AccountCounter interface {
	CountByRole(ctx context.Context) (map[identity.Role]int, error)
}

// ListingLister lists listings by status.
type ListingLister interface {
	ListAll(ctx context.Context, status listing.Status) ([]listing.Listing, error)
}

// TransactionLister lists transactions in a time range.
type TransactionLister interface {
	List(ctx context.Context, from, to time.Time) ([]ledger.Transaction, error)
}

// Service builds admin dashboards and compliance reports.
type Service struct {
	accounts     AccountCounter
	listings     ListingLister
	transactions TransactionLister
}

// NewService wires the report sources.
func NewService(accounts AccountCounter, listings ListingLister, transactions TransactionLister) *Service {
	return &Service{accounts: accounts, listings: listings, transactions: transactions}
}

// Overview is the admin dashboard summary.
type Overview struct {
	TotalUsers           int             `json:"total_users"`
	TotalSellers         int             `json:"total_sellers"`
	TotalBuyers          int             `json:"total_buyers"`
	PendingVerifications int             `json:"pending_verifications"`
	VerifiedCredits      decimal.Decimal `json:"verified_credits"`
	TotalTransactions    int             `json:"total_transactions"`
	TotalVolume          decimal.Decimal `json:"total_volume"`
}

// Overview computes the dashboard. Verified credits count each listing's remaining
// quantity once, however many times verification was attempted.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	counts, err := s.accounts.CountByRole(ctx)
	if err != nil {
		return Overview{}, err
	}
	pending, err := s.listings.ListAll(ctx, listing.StatusPending)
	if err != nil {
		return Overview{}, err
	}
	verified, err := s.listings.ListAll(ctx, listing.StatusVerified)
	if err != nil {
		return Overview{}, err
	}
	txs, err := s.transactions.List(ctx, time.Time{}, time.Time{})
	if err != nil {
		return Overview{}, err
	}

	o := Overview{
		TotalSellers:         counts[identity.RoleSeller],
		TotalBuyers:          counts[identity.RoleBuyer],
		PendingVerifications: len(pending),
		VerifiedCredits:      decimal.Zero,
	}
	for _, n := range counts {
		o.TotalUsers += n
	}
	for _, l := range verified {
		o.VerifiedCredits = o.VerifiedCredits.Add(l.QuantityRemaining)
	}
	stats := market.Summarize(txs)
	o.TotalTransactions = stats.Total
	o.TotalVolume = stats.TotalVolume
	return o, nil
}

// TransactionReport is the transaction list for a period with its totals.
type TransactionReport struct {
	From         time.Time
	To           time.Time
	GeneratedAt  time.Time
	Transactions []ledger.Transaction
	Totals       market.Stats
}

// Transactions builds the transaction report for [from, to). Zero bounds are open.
func (s *Service) Transactions(ctx context.Context, from, to time.Time) (TransactionReport, error) {
	txs, err := s.transactions.List(ctx, from, to)
	if err != nil {
		return TransactionReport{}, err
	}
	return TransactionReport{
		From:         from,
		To:           to,
		GeneratedAt:  time.Now().UTC(),
		Transactions: txs,
		Totals:       market.Summarize(txs),
	}, nil
}
