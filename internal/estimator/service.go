package estimator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/carbonmax/carbonmax/internal/apperrors"
	"github.com/carbonmax/carbonmax/internal/listing"
	"github.com/carbonmax/carbonmax/internal/logging"
	"github.com/carbonmax/carbonmax/internal/wallet"
)

// ListingCreator opens new listings and withdraws them while they are still Pending.
type ListingCreator interface {
	Create(ctx context.Context, in listing.CreateInput) (listing.Listing, error)
	Withdraw(ctx context.Context, id, ownerID string) error
}

// WalletCrediter adds balances to a wallet.
type WalletCrediter interface {
	Credit(ctx context.Context, ownerID string, amounts wallet.Amounts) (wallet.Wallet, error)
}

// Service runs estimates at the current market price and turns them into listings.
type Service struct {
	estimator *Estimator
	prices    PriceFeed
	listings  ListingCreator
	wallets   WalletCrediter
	logger    *slog.Logger
}

// NewService wires the estimator to its collaborators.
func NewService(e *Estimator, prices PriceFeed, listings ListingCreator, wallets WalletCrediter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{estimator: e, prices: prices, listings: listings, wallets: wallets, logger: logger}
}

// Preview estimates a profile at the current market price.
func (s *Service) Preview(ctx context.Context, profile FarmProfile) (EstimationResult, error) {
	price, err := s.prices.CurrentPrice(ctx)
	if err != nil {
		return EstimationResult{}, err
	}
	return s.estimator.Estimate(profile, price)
}

// SubmitInput is a seller's estimate submission. Empty CreditType uses the default
// credit type; a zero UnitPrice lists at the market price.
type SubmitInput struct {
	Profile    FarmProfile
	CreditType string
	Region     string
	UnitPrice  decimal.Decimal
}

// Submission is the outcome of a submitted estimate.
type Submission struct {
	Estimate EstimationResult `json:"estimate"`
	Listing  listing.Listing  `json:"listing"`
	Wallet   wallet.Wallet    `json:"wallet"`
}

// Submit estimates the profile, opens a Pending listing for the estimated quantity and
// credits the seller's wallet with it. If the credit fails the listing is withdrawn again,
// so a failed submission leaves neither a listing nor a credit behind.
func (s *Service) Submit(ctx context.Context, sellerID string, in SubmitInput) (Submission, error) {
	if in.UnitPrice.IsNegative() {
		return Submission{}, fmt.Errorf("%w: unit price must not be negative", apperrors.ErrValidation)
	}
	result, err := s.Preview(ctx, in.Profile)
	if err != nil {
		return Submission{}, err
	}
	if !result.CreditQuantity.IsPositive() {
		return Submission{}, fmt.Errorf("%w: estimate is zero; nothing to list", apperrors.ErrValidation)
	}

	creditType := in.CreditType
	if creditType == "" {
		creditType = s.estimator.tables.CreditTypes.LookupOrDefault("").Code
	}
	price := in.UnitPrice
	if price.IsZero() {
		price = result.UnitPrice
	}
	crop := s.estimator.tables.Crops.LookupOrDefault(in.Profile.CropCode).Code

	l, err := s.listings.Create(ctx, listing.CreateInput{
		OwnerID:    sellerID,
		CreditType: creditType,
		CropCode:   crop,
		Region:     in.Region,
		Quantity:   result.CreditQuantity,
		UnitPrice:  price,
	})
	if err != nil {
		return Submission{}, err
	}

	w, err := s.wallets.Credit(ctx, sellerID, wallet.Amounts{Credits: result.CreditQuantity})
	if err != nil {
		attrs := []any{
			slog.String("listing_id", l.ID),
			slog.String("seller_id", sellerID),
			slog.String("credits", result.CreditQuantity.String()),
			slog.Any("error", err),
		}
		if werr := s.listings.Withdraw(context.WithoutCancel(ctx), l.ID, sellerID); werr != nil {
			s.logger.Error("withdraw listing after failed seller credit", append(attrs, slog.Any("withdraw_error", werr))...)
			return Submission{}, errors.Join(err, werr)
		}
		s.logger.Warn("seller credit failed, listing withdrawn", attrs...)
		return Submission{}, err
	}
	return Submission{Estimate: result, Listing: l, Wallet: w}, nil
}
