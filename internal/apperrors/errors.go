package apperrors

import (
	"context"
	"errors"
	"net/http"
)

// Kind groups errors by how callers should react to them.
type Kind int

const (
	// KindUnknown is anything not produced by this package.
	KindUnknown Kind = iota
	// KindValidation marks malformed input. Always user recoverable.
	KindValidation
	// KindState marks an operation that conflicts with an entity's current state.
	KindState
	// KindResource marks a shortfall of funds, credits or listed quantity.
	KindResource
	// KindInfrastructure marks an unreachable or failing backing service.
	KindInfrastructure
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindResource:
		return "resource"
	case KindInfrastructure:
		return "infrastructure"
	default:
		return "unknown"
	}
}

var (
	// ErrValidation indicates that input data failed validation checks.
	ErrValidation = errors.New("validation error")
	// ErrNotFound indicates that a requested resource could not be found.
	ErrNotFound = errors.New("resource not found")
	// ErrDuplicate indicates the operation was already applied under the same client key.
	ErrDuplicate = errors.New("duplicate request")
	// ErrForbidden indicates the caller may not act on the resource.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidTransition is returned when a listing status change is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrListingUnavailable is returned when a listing cannot be bought.
	ErrListingUnavailable = errors.New("listing no longer available")

	// ErrInsufficientFunds occurs when a wallet lacks the cash for a debit.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInsufficientCredits occurs when a wallet lacks the credits for a debit.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrInsufficientQuantity occurs when a listing has less remaining than requested.
	ErrInsufficientQuantity = errors.New("insufficient quantity")

	// ErrUnavailable wraps failures of the row store or identity provider.
	ErrUnavailable = errors.New("service temporarily unavailable")
)

// Unavailable marks err as an infrastructure failure while keeping it inspectable.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return errors.Join(ErrUnavailable, err)
}

// KindOf classifies err into the error taxonomy.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound), errors.Is(err, ErrForbidden):
		return KindValidation
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrListingUnavailable), errors.Is(err, ErrDuplicate):
		return KindState
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrInsufficientCredits), errors.Is(err, ErrInsufficientQuantity):
		return KindResource
	case errors.Is(err, ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return KindInfrastructure
	default:
		return KindUnknown
	}
}

// HTTPStatus maps err to the status code handlers should answer with.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrListingUnavailable):
		return http.StatusConflict
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrInsufficientCredits), errors.Is(err, ErrInsufficientQuantity):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the text shown to end users. Infrastructure failures collapse to a generic retry hint.
func Message(err error) string {
	switch KindOf(err) {
	case KindInfrastructure:
		return "service temporarily unavailable, please try again"
	case KindUnknown:
		return "internal error"
	default:
		return err.Error()
	}
}

// RetryOnce runs fn and, if it fails with an infrastructure error, runs it one more time.
func RetryOnce[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	res, err := fn(ctx)
	if err == nil || KindOf(err) != KindInfrastructure || ctx.Err() != nil {
		return res, err
	}
	return fn(ctx)
}
