package listing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the verification state of a listing.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusRejected:
		return true
	}
	return false
}

// Listing is an offer to sell a quantity of credits at a unit price.
type Listing struct {
	ID                string          `json:"id"`
	OwnerID           string          `json:"owner_id"`
	CreditType        string          `json:"credit_type"`
	CropCode          string          `json:"crop,omitempty"`
	Region            string          `json:"region,omitempty"`
	QuantityRemaining decimal.Decimal `json:"quantity_remaining"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	Status            Status          `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	VerifiedBy        string          `json:"verified_by,omitempty"`
	VerifiedAt        *time.Time      `json:"verified_at,omitempty"`
}

// Purchasable reports whether buyers can see and buy the listing.
func (l Listing) Purchasable() bool {
	return l.Status == StatusVerified && l.QuantityRemaining.IsPositive()
}

// Query narrows a repository listing. Zero values mean "any".
type Query struct {
	OwnerID    string
	Status     Status
	CreditType string
	Region     string
}

// Matches applies the query as an in-memory predicate.
func (q Query) Matches(l Listing) bool {
	if q.OwnerID != "" && l.OwnerID != q.OwnerID {
		return false
	}
	if q.Status != "" && l.Status != q.Status {
		return false
	}
	if q.CreditType != "" && l.CreditType != q.CreditType {
		return false
	}
	if q.Region != "" && l.Region != q.Region {
		return false
	}
	return true
}
