package listing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Repository persists listings.
type Repository interface {
	Create(ctx context.Context, l Listing) error
	Get(ctx context.Context, id string) (Listing, error)
	// List returns matching listings newest first.
	List(ctx context.Context, q Query) ([]Listing, error)
	// TransitionStatus moves the listing from one status to another only if it is
	// currently in from. Otherwise it fails with apperrors.ErrInvalidTransition.
	TransitionStatus(ctx context.Context, id string, from, to Status, verifierID string, at time.Time) (Listing, error)
	// DecrementQuantity subtracts amount from the remaining quantity, failing with
	// apperrors.ErrInsufficientQuantity and leaving the row untouched if it would go negative.
	DecrementQuantity(ctx context.Context, id string, amount decimal.Decimal) (Listing, error)
	// DeletePending removes a listing that is still Pending. Any other status fails with
	// apperrors.ErrInvalidTransition.
	DeletePending(ctx context.Context, id string) error
}
