package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/carbonmax/carbonmax/internal/apperrors"
	"github.com/carbonmax/carbonmax/internal/logging"
	"github.com/carbonmax/carbonmax/internal/money"
	"github.com/carbonmax/carbonmax/internal/notification"
)

// Service exposes wallet balance operations.
type Service struct {
	repo   Repository
	events notification.Publisher
	logger *slog.Logger
}

// NewService builds a wallet service instance.
func NewService(repo Repository, events notification.Publisher, logger *slog.Logger) *Service {
	if events == nil {
		events = notification.Discard{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{repo: repo, events: events, logger: logger}
}

// GetOrCreate provisions an empty wallet for ownerID if it does not exist yet.
func (s *Service) GetOrCreate(ctx context.Context, ownerID string) (Wallet, error) {
	if ownerID == "" {
		return Wallet{}, fmt.Errorf("%w: owner is required", apperrors.ErrValidation)
	}
	return apperrors.RetryOnce(ctx, func(ctx context.Context) (Wallet, error) {
		return s.repo.GetOrCreate(ctx, ownerID)
	})
}

// GetBalance returns the current balances, creating the wallet on first access.
func (s *Service) GetBalance(ctx context.Context, ownerID string) (Wallet, error) {
	return s.GetOrCreate(ctx, ownerID)
}

// Credit adds non-negative amounts to the wallet.
func (s *Service) Credit(ctx context.Context, ownerID string, amounts Amounts) (Wallet, error) {
	if err := checkAmounts(amounts); err != nil {
		return Wallet{}, err
	}
	return s.apply(ctx, ownerID, amounts)
}

// Debit removes non-negative amounts from the wallet, failing with
// ErrInsufficientCredits or ErrInsufficientFunds and leaving it untouched on shortfall.
func (s *Service) Debit(ctx context.Context, ownerID string, amounts Amounts) (Wallet, error) {
	if err := checkAmounts(amounts); err != nil {
		return Wallet{}, err
	}
	return s.apply(ctx, ownerID, amounts.Neg())
}

func (s *Service) apply(ctx context.Context, ownerID string, delta Amounts) (Wallet, error) {
	if ownerID == "" {
		return Wallet{}, fmt.Errorf("%w: owner is required", apperrors.ErrValidation)
	}
	w, err := apperrors.RetryOnce(ctx, func(ctx context.Context) (Wallet, error) {
		return s.repo.Apply(ctx, ownerID, delta, time.Now().UTC())
	})
	if err != nil {
		return Wallet{}, err
	}
	if err := s.events.Publish(ctx, notification.New(notification.WalletUpdated, w, w.OwnerID)); err != nil {
		s.logger.Error("publish event failed", slog.String("type", string(notification.WalletUpdated)), slog.Any("error", err))
	}
	return w, nil
}

func checkAmounts(a Amounts) error {
	if a.Credits.IsNegative() || a.Cash.IsNegative() {
		return fmt.Errorf("%w: amounts must not be negative", apperrors.ErrValidation)
	}
	if !a.Credits.IsPositive() && !a.Cash.IsPositive() {
		return fmt.Errorf("%w: at least one amount must be positive", apperrors.ErrValidation)
	}
	if err := money.CheckExact("credits", a.Credits); err != nil {
		return err
	}
	return money.CheckExact("cash", a.Cash)
}
