package estimator

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/carbonmax/carbonmax/internal/httpx"
)

// RegionResolver finds the home region of an account.
type RegionResolver func(ctx context.Context, accountID string) string

// PricePublisher replaces the market price.
type PricePublisher interface {
	Publish(ctx context.Context, price decimal.Decimal) error
}

// Handler exposes estimate and market price endpoints.
type Handler struct {
	service *Service
	regions RegionResolver
	prices  PricePublisher
}

// NewHandler builds an estimate handler. regions and prices may be nil.
func NewHandler(service *Service, regions RegionResolver, prices PricePublisher) *Handler {
	return &Handler{service: service, regions: regions, prices: prices}
}

// Price returns the current market price per tonne.
func (h *Handler) Price(c *fiber.Ctx) error {
	price, err := h.service.prices.CurrentPrice(c.UserContext())
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(fiber.Map{"unit_price": price})
}

type priceRequest struct {
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// SetPrice publishes a new market price.
func (h *Handler) SetPrice(c *fiber.Ctx) error {
	if h.prices == nil {
		return fiber.NewError(http.StatusNotImplemented, "market price is fixed by configuration")
	}
	var req priceRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	if err := h.prices.Publish(c.UserContext(), req.UnitPrice); err != nil {
		return httpx.Error(err)
	}
	return c.JSON(fiber.Map{"unit_price": req.UnitPrice})
}

// Preview estimates a farm profile without side effects.
func (h *Handler) Preview(c *fiber.Ctx) error {
	var profile FarmProfile
	if err := httpx.Bind(c, &profile); err != nil {
		return err
	}
	result, err := h.service.Preview(c.UserContext(), profile)
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(result)
}

type submitRequest struct {
	FarmProfile
	CreditType string          `json:"credit_type"`
	Region     string          `json:"region" validate:"omitempty,len=2"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

// Submit estimates and lists the authenticated seller's farm.
func (h *Handler) Submit(c *fiber.Ctx) error {
	var req submitRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	seller := httpx.UserID(c)
	region := req.Region
	if region == "" && h.regions != nil {
		region = h.regions(c.UserContext(), seller)
	}
	sub, err := h.service.Submit(c.UserContext(), seller, SubmitInput{
		Profile:    req.FarmProfile,
		CreditType: req.CreditType,
		Region:     region,
		UnitPrice:  req.UnitPrice,
	})
	if err != nil {
		return httpx.Error(err)
	}
	return c.Status(http.StatusCreated).JSON(sub)
}
