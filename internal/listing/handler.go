package listing

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/carbonmax/carbonmax/internal/apperrors"
	"github.com/carbonmax/carbonmax/internal/httpx"
)

// RegionResolver finds the home region of an account.
type RegionResolver func(ctx context.Context, accountID string) string

// Handler exposes listing HTTP endpoints.
type Handler struct {
	service  *Service
	nearbyKm float64
	regions  RegionResolver
}

// NewHandler builds a listing HTTP handler. nearbyKm is the radius used for ?nearby=true.
// regions supplies the caller's home region when ?origin= is absent and may be nil.
func NewHandler(service *Service, nearbyKm float64, regions RegionResolver) *Handler {
	return &Handler{service: service, nearbyKm: nearbyKm, regions: regions}
}

type createRequest struct {
	CreditType string          `json:"credit_type" validate:"required"`
	Crop       string          `json:"crop"`
	Region     string          `json:"region" validate:"omitempty,len=2"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

// Create lists credits for the authenticated seller.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	l, err := h.service.Create(c.UserContext(), CreateInput{
		OwnerID:    httpx.UserID(c),
		CreditType: req.CreditType,
		CropCode:   req.Crop,
		Region:     req.Region,
		Quantity:   req.Quantity,
		UnitPrice:  req.UnitPrice,
	})
	if err != nil {
		return httpx.Error(err)
	}
	return c.Status(http.StatusCreated).JSON(l)
}

// Marketplace lists purchasable credits with their distance from the caller's region.
func (h *Handler) Marketplace(c *fiber.Ctx) error {
	f := Filter{
		CreditType: c.Query("credit_type"),
		Region:     c.Query("region"),
		Origin:     c.Query("origin"),
	}
	if f.Origin == "" && h.regions != nil {
		f.Origin = h.regions(c.UserContext(), httpx.UserID(c))
	}
	if raw := c.Query("max_distance_km"); raw != "" {
		km, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return httpx.Error(fmt.Errorf("%w: max_distance_km must be a number", apperrors.ErrValidation))
		}
		f.MaxDistanceKm = km
	} else if c.QueryBool("nearby") {
		f.MaxDistanceKm = h.nearbyKm
	}
	listings, err := h.service.ListVerified(c.UserContext(), f)
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(fiber.Map{
		"listings": h.service.WithDistances(f.Origin, listings),
		"count":    len(listings),
		"origin":   f.Origin,
	})
}

// Mine lists the authenticated seller's listings.
func (h *Handler) Mine(c *fiber.Ctx) error {
	listings, err := h.service.ListByOwner(c.UserContext(), httpx.UserID(c))
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(fiber.Map{"listings": listings, "count": len(listings)})
}

// Get returns one listing. Pending and rejected listings are only visible to their owner and admins.
func (h *Handler) Get(c *fiber.Ctx) error {
	l, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return httpx.Error(err)
	}
	if !l.Purchasable() && l.OwnerID != httpx.UserID(c) && httpx.Role(c) != "admin" {
		return httpx.Error(apperrors.ErrNotFound)
	}
	return c.JSON(fiber.Map{"listing": l, "allowed_transitions": AllowedTransitions(l.Status)})
}

// AdminList lists listings for review, optionally filtered by ?status=.
func (h *Handler) AdminList(c *fiber.Ctx) error {
	listings, err := h.service.ListAll(c.UserContext(), Status(c.Query("status")))
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(fiber.Map{"listings": listings, "count": len(listings)})
}

// Verify marks a Pending listing Verified.
func (h *Handler) Verify(c *fiber.Ctx) error {
	return h.transition(c, StatusVerified)
}

// Reject marks a Pending listing Rejected.
func (h *Handler) Reject(c *fiber.Ctx) error {
	return h.transition(c, StatusRejected)
}

func (h *Handler) transition(c *fiber.Ctx, to Status) error {
	l, err := h.service.SetStatus(c.UserContext(), c.Params("id"), to, httpx.UserID(c))
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(l)
}
