package notification

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Type names a domain event.
type Type string

const (
	ListingCreated       Type = "listing.created"
	ListingVerified      Type = "listing.verified"
	ListingRejected      Type = "listing.rejected"
	TransactionCompleted Type = "transaction.completed"
	WalletUpdated        Type = "wallet.updated"
)

// Event carries the entity that changed. Audience lists the accounts the event concerns;
// an empty audience means the event is public (e.g. a listing became visible to buyers).
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Audience   []string  `json:"audience,omitempty"`
	Payload    any       `json:"payload"`
}

// New stamps an event with an id and timestamp.
func New(kind Type, payload any, audience ...string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       kind,
		OccurredAt: time.Now().UTC(),
		Audience:   audience,
		Payload:    payload,
	}
}

// Concerns reports whether the event is addressed to accountID.
func (e Event) Concerns(accountID string) bool {
	if len(e.Audience) == 0 {
		return true
	}
	for _, a := range e.Audience {
		if a == accountID {
			return true
		}
	}
	return false
}

// Publisher delivers events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Discard drops every event.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(context.Context, Event) error { return nil }

// LoggerPublisher writes events to the structured logger.
type LoggerPublisher struct {
	logger *slog.Logger
}

// NewLoggerPublisher constructs a logging publisher.
func NewLoggerPublisher(logger *slog.Logger) *LoggerPublisher {
	return &LoggerPublisher{logger: logger}
}

// Publish writes the event to the logger.
func (p *LoggerPublisher) Publish(_ context.Context, event Event) error {
	if p == nil || p.logger == nil {
		return nil
	}
	p.logger.Info("event", slog.String("id", event.ID), slog.String("type", string(event.Type)), slog.Any("audience", event.Audience))
	return nil
}

// Multi fans an event out to several publishers and joins their errors.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
