package wallet

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/carbonmax/carbonmax/internal/httpx"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type adjustRequest struct {
	Credits decimal.Decimal `json:"credits"`
	Cash    decimal.Decimal `json:"cash"`
}

// Me returns the authenticated account's balances.
func (h *Handler) Me(c *fiber.Ctx) error {
	w, err := h.service.GetBalance(c.UserContext(), httpx.UserID(c))
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(w)
}

// Credit adds balances to the wallet named by :ownerId.
func (h *Handler) Credit(c *fiber.Ctx) error {
	var req adjustRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	w, err := h.service.Credit(c.UserContext(), c.Params("ownerId"), Amounts(req))
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(w)
}

// Debit removes balances from the wallet named by :ownerId.
func (h *Handler) Debit(c *fiber.Ctx) error {
	var req adjustRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	w, err := h.service.Debit(c.UserContext(), c.Params("ownerId"), Amounts(req))
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(w)
}
