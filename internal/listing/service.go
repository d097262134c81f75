package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/shopspring/decimal"

	"github.com/carbonmax/carbonmax/internal/apperrors"
	"github.com/carbonmax/carbonmax/internal/logging"
	"github.com/carbonmax/carbonmax/internal/metrics"
	"github.com/carbonmax/carbonmax/internal/money"
	"github.com/carbonmax/carbonmax/internal/notification"
	"github.com/carbonmax/carbonmax/internal/reference"
)

// Service manages listings and their verification lifecycle.
type Service struct {
	repo    Repository
	tables  *reference.Tables
	events  notification.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds a listing service.
func NewService(repo Repository, tables *reference.Tables, events notification.Publisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	if events == nil {
		events = notification.Discard{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{repo: repo, tables: tables, events: events, metrics: m, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// CreateInput captures the data needed to list credits.
type CreateInput struct {
	OwnerID    string
	CreditType string
	CropCode   string
	Region     string
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
}

// Create stores a new Pending listing.
func (s *Service) Create(ctx context.Context, in CreateInput) (Listing, error) {
	if in.OwnerID == "" {
		return Listing{}, fmt.Errorf("%w: owner is required", apperrors.ErrValidation)
	}
	if err := money.CheckPositive("quantity", in.Quantity); err != nil {
		return Listing{}, err
	}
	if err := money.CheckPositive("unit price", in.UnitPrice); err != nil {
		return Listing{}, err
	}
	if _, ok := s.tables.CreditTypes.Lookup(in.CreditType); !ok {
		return Listing{}, fmt.Errorf("%w: unknown credit type %q", apperrors.ErrValidation, in.CreditType)
	}
	if in.CropCode != "" {
		if _, ok := s.tables.Crops.Lookup(in.CropCode); !ok {
			return Listing{}, fmt.Errorf("%w: unknown crop %q", apperrors.ErrValidation, in.CropCode)
		}
	}
	if in.Region != "" {
		if _, ok := s.tables.Region(in.Region); !ok {
			return Listing{}, fmt.Errorf("%w: unknown region %q", apperrors.ErrValidation, in.Region)
		}
	}

	now := s.now()
	l := Listing{
		ID:                uuid.NewString(),
		OwnerID:           in.OwnerID,
		CreditType:        in.CreditType,
		CropCode:          in.CropCode,
		Region:            in.Region,
		QuantityRemaining: in.Quantity,
		UnitPrice:         in.UnitPrice,
		Status:            StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Create(ctx, l); err != nil {
		return Listing{}, err
	}
	s.publish(ctx, notification.New(notification.ListingCreated, l, l.OwnerID))
	return l, nil
}

// Withdraw removes an owner's listing that has not been reviewed yet.
func (s *Service) Withdraw(ctx context.Context, id, ownerID string) error {
	l, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if l.OwnerID != ownerID {
		return fmt.Errorf("listing %s: %w", id, apperrors.ErrForbidden)
	}
	if err := s.repo.DeletePending(ctx, id); err != nil {
		return err
	}
	s.logger.Info("listing withdrawn", slog.String("listing_id", id), slog.String("owner_id", ownerID))
	return nil
}

// Get returns a single listing.
func (s *Service) Get(ctx context.Context, id string) (Listing, error) {
	return s.repo.Get(ctx, id)
}

// Filter narrows the marketplace view. MaxDistanceKm requires Origin.
type Filter struct {
	CreditType    string
	Region        string
	Origin        string
	MaxDistanceKm float64
}

// ListVerified returns purchasable listings, newest first.
func (s *Service) ListVerified(ctx context.Context, f Filter) ([]Listing, error) {
	if f.MaxDistanceKm < 0 {
		return nil, fmt.Errorf("%w: distance must not be negative", apperrors.ErrValidation)
	}
	var origin reference.Region
	if f.MaxDistanceKm > 0 {
		if f.Origin == "" {
			return nil, fmt.Errorf("%w: a distance filter needs an origin region", apperrors.ErrValidation)
		}
		r, ok := s.tables.Region(f.Origin)
		if !ok {
			return nil, fmt.Errorf("%w: unknown region %q", apperrors.ErrValidation, f.Origin)
		}
		origin = r
	}

	found, err := s.repo.List(ctx, Query{Status: StatusVerified, CreditType: f.CreditType, Region: f.Region})
	if err != nil {
		return nil, err
	}
	out := make([]Listing, 0, len(found))
	for _, l := range found {
		if !l.Purchasable() {
			continue
		}
		if f.MaxDistanceKm > 0 && !s.within(origin, l.Region, f.MaxDistanceKm) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *Service) within(origin reference.Region, code string, km float64) bool {
	r, ok := s.tables.Region(code)
	if !ok {
		return false
	}
	meters := geo.DistanceHaversine(orb.Point{origin.Lng, origin.Lat}, orb.Point{r.Lng, r.Lat})
	return meters <= km*1000
}

// DistanceKm returns the centroid distance between two regions.
func (s *Service) DistanceKm(from, to string) (float64, bool) {
	a, ok := s.tables.Region(from)
	if !ok {
		return 0, false
	}
	b, ok := s.tables.Region(to)
	if !ok {
		return 0, false
	}
	return geo.DistanceHaversine(orb.Point{a.Lng, a.Lat}, orb.Point{b.Lng, b.Lat}) / 1000, true
}

// MarketListing is a marketplace entry with its distance from the viewer's region, when both are known.
type MarketListing struct {
	Listing
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

// WithDistances annotates listings with their centroid distance from origin, rounded to 0.1 km.
func (s *Service) WithDistances(origin string, listings []Listing) []MarketListing {
	out := make([]MarketListing, len(listings))
	for i, l := range listings {
		out[i] = MarketListing{Listing: l}
		if origin == "" || l.Region == "" {
			continue
		}
		if km, ok := s.DistanceKm(origin, l.Region); ok {
			km = math.Round(km*10) / 10
			out[i].DistanceKm = &km
		}
	}
	return out
}

// ListByOwner returns a seller's own listings in any status.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]Listing, error) {
	return s.repo.List(ctx, Query{OwnerID: ownerID})
}

// ListAll returns every listing, optionally limited to one status.
func (s *Service) ListAll(ctx context.Context, status Status) ([]Listing, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", apperrors.ErrValidation, status)
	}
	return s.repo.List(ctx, Query{Status: status})
}

// DecrementQuantity lowers the remaining quantity of a listing.
func (s *Service) DecrementQuantity(ctx context.Context, id string, amount decimal.Decimal) (Listing, error) {
	if err := money.CheckPositive("amount", amount); err != nil {
		return Listing{}, err
	}
	return s.repo.DecrementQuantity(ctx, id, amount)
}

// SetStatus verifies or rejects a Pending listing.
func (s *Service) SetStatus(ctx context.Context, id string, to Status, verifierID string) (Listing, error) {
	if to != StatusVerified && to != StatusRejected {
		return Listing{}, fmt.Errorf("%w: cannot move a listing to %q", apperrors.ErrInvalidTransition, to)
	}
	l, err := s.repo.TransitionStatus(ctx, id, StatusPending, to, verifierID, s.now())
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidTransition) {
			s.logger.Warn("rejected listing transition",
				slog.String("listing_id", id),
				slog.String("to", string(to)),
				slog.String("verifier_id", verifierID))
		}
		return Listing{}, err
	}
	s.metrics.ObserveTransition(string(to))

	kind := notification.ListingVerified
	if to == StatusRejected {
		kind = notification.ListingRejected
	}
	s.publish(ctx, notification.New(kind, l))
	return l, nil
}

func (s *Service) publish(ctx context.Context, event notification.Event) {
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Error("publish event failed", slog.String("type", string(event.Type)), slog.Any("error", err))
	}
}
