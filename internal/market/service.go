package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/carbonmax/carbonmax/internal/apperrors"
	"github.com/carbonmax/carbonmax/internal/ledger"
	"github.com/carbonmax/carbonmax/internal/logging"
	"github.com/carbonmax/carbonmax/internal/metrics"
	"github.com/carbonmax/carbonmax/internal/money"
	"github.com/carbonmax/carbonmax/internal/notification"
)

// Service executes purchases of listed credits.
type Service struct {
	ledger  ledger.Ledger
	events  notification.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewService constructs a transaction engine.
func NewService(l ledger.Ledger, events notification.Publisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	if events == nil {
		events = notification.Discard{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{ledger: l, events: events, metrics: m, logger: logger}
}

// PurchaseInput captures a buyer's order. ClientTxID is optional.
type PurchaseInput struct {
	BuyerID    string
	ListingID  string
	Quantity   decimal.Decimal
	ClientTxID string
}

// Purchase buys quantity credits from a listing. Either the whole settlement commits or
// nothing changes. A repeated ClientTxID returns the original transaction with apperrors.ErrDuplicate.
func (s *Service) Purchase(ctx context.Context, in PurchaseInput) (ledger.Receipt, error) {
	if in.BuyerID == "" || in.ListingID == "" {
		s.metrics.ObservePurchase("invalid")
		return ledger.Receipt{}, fmt.Errorf("%w: buyer and listing are required", apperrors.ErrValidation)
	}
	if err := money.CheckPositive("quantity", in.Quantity); err != nil {
		s.metrics.ObservePurchase("invalid")
		return ledger.Receipt{}, err
	}

	settlement := ledger.Settlement{
		TransactionID: uuid.NewString(),
		ClientTxID:    in.ClientTxID,
		BuyerID:       in.BuyerID,
		ListingID:     in.ListingID,
		Quantity:      in.Quantity,
		At:            time.Now().UTC(),
	}
	receipt, err := apperrors.RetryOnce(ctx, func(ctx context.Context) (ledger.Receipt, error) {
		return s.ledger.Settle(ctx, settlement)
	})
	if errors.Is(err, apperrors.ErrDuplicate) && receipt.Transaction.ID == settlement.TransactionID {
		// The first attempt committed although its acknowledgement was lost.
		err = nil
	}
	if err != nil {
		s.metrics.ObservePurchase(outcome(err))
		s.logFailure(in, err)
		return receipt, err
	}
	s.metrics.ObservePurchase("completed")

	s.logger.Info("purchase settled",
		slog.String("transaction_id", receipt.Transaction.ID),
		slog.String("listing_id", in.ListingID),
		slog.String("buyer_id", in.BuyerID),
		slog.String("quantity", in.Quantity.String()),
		slog.String("total", receipt.Transaction.TotalValue.String()))

	s.publish(ctx,
		notification.New(notification.TransactionCompleted, receipt.Transaction, receipt.Transaction.BuyerID, receipt.Transaction.SellerID),
		notification.New(notification.WalletUpdated, receipt.Buyer, receipt.Buyer.OwnerID),
		notification.New(notification.WalletUpdated, receipt.Seller, receipt.Seller.OwnerID),
	)
	return receipt, nil
}

func (s *Service) logFailure(in PurchaseInput, err error) {
	attrs := []any{
		slog.String("listing_id", in.ListingID),
		slog.String("buyer_id", in.BuyerID),
		slog.String("quantity", in.Quantity.String()),
		slog.Any("error", err),
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindState:
		s.logger.Warn("purchase rejected", attrs...)
	case apperrors.KindInfrastructure, apperrors.KindUnknown:
		s.logger.Error("purchase failed", attrs...)
	default:
		s.logger.Info("purchase declined", attrs...)
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrDuplicate):
		return "duplicate"
	case errors.Is(err, apperrors.ErrListingUnavailable):
		return "listing_unavailable"
	case errors.Is(err, apperrors.ErrInsufficientQuantity):
		return "insufficient_quantity"
	case errors.Is(err, apperrors.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, apperrors.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}

// Get returns a transaction the requester took part in. Admins may read any transaction.
func (s *Service) Get(ctx context.Context, id, requesterID string, admin bool) (ledger.Transaction, error) {
	t, err := s.ledger.Get(ctx, id)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if !admin && t.BuyerID != requesterID && t.SellerID != requesterID {
		return ledger.Transaction{}, fmt.Errorf("transaction %s: %w", id, apperrors.ErrForbidden)
	}
	return t, nil
}

// ListForAccount returns the transactions where accountID is buyer or seller, newest first.
func (s *Service) ListForAccount(ctx context.Context, accountID string) ([]ledger.Transaction, error) {
	return s.ledger.List(ctx, ledger.Query{AccountID: accountID})
}

// List returns all transactions in the range [from, to). Zero bounds are open.
func (s *Service) List(ctx context.Context, from, to time.Time) ([]ledger.Transaction, error) {
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return nil, fmt.Errorf("%w: from must be before to", apperrors.ErrValidation)
	}
	return s.ledger.List(ctx, ledger.Query{From: from, To: to})
}

// Stats summarises transactions.
type Stats struct {
	Total        int             `json:"total"`
	Completed    int             `json:"completed"`
	Pending      int             `json:"pending"`
	Processing   int             `json:"processing"`
	TotalVolume  decimal.Decimal `json:"total_volume"`
	TotalCredits decimal.Decimal `json:"total_credits"`
}

// Summarize folds a set of transactions into Stats. Only completed transactions count towards the volume.
func Summarize(txs []ledger.Transaction) Stats {
	st := Stats{TotalVolume: decimal.Zero, TotalCredits: decimal.Zero}
	for _, t := range txs {
		st.Total++
		switch t.Status {
		case ledger.StatusCompleted:
			st.Completed++
			st.TotalVolume = st.TotalVolume.Add(t.TotalValue)
		case ledger.StatusPending:
			st.Pending++
		case ledger.StatusProcessing:
			st.Processing++
		}
		st.TotalCredits = st.TotalCredits.Add(t.Quantity)
	}
	return st
}

// Stats summarises the transactions of accountID, or of everyone when accountID is empty.
func (s *Service) Stats(ctx context.Context, accountID string) (Stats, error) {
	txs, err := s.ledger.List(ctx, ledger.Query{AccountID: accountID})
	if err != nil {
		return Stats{}, err
	}
	return Summarize(txs), nil
}

func (s *Service) publish(ctx context.Context, events ...notification.Event) {
	for _, e := range events {
		if err := s.events.Publish(ctx, e); err != nil {
			s.logger.Error("publish event failed", slog.String("type", string(e.Type)), slog.Any("error", err))
		}
	}
}
