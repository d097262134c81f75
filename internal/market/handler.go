package market

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/carbonmax/carbonmax/internal/apperrors"
	"github.com/carbonmax/carbonmax/internal/httpx"
)

// Handler exposes purchase and transaction endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a market handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type purchaseRequest struct {
	ListingID  string          `json:"listing_id" validate:"required"`
	Quantity   decimal.Decimal `json:"quantity"`
	ClientTxID string          `json:"client_tx_id" validate:"omitempty,max=64"`
}

// Purchase buys credits for the authenticated buyer.
func (h *Handler) Purchase(c *fiber.Ctx) error {
	var req purchaseRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	receipt, err := h.service.Purchase(c.UserContext(), PurchaseInput{
		BuyerID:    httpx.UserID(c),
		ListingID:  req.ListingID,
		Quantity:   req.Quantity,
		ClientTxID: req.ClientTxID,
	})
	if errors.Is(err, apperrors.ErrDuplicate) && receipt.Transaction.ID != "" {
		return c.Status(http.StatusOK).JSON(fiber.Map{"transaction": receipt.Transaction, "duplicate": true})
	}
	if err != nil {
		return httpx.Error(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction": receipt.Transaction,
		"listing":     receipt.Listing,
		"wallet":      receipt.Buyer,
	})
}

// Mine lists the authenticated account's transactions.
func (h *Handler) Mine(c *fiber.Ctx) error {
	txs, err := h.service.ListForAccount(c.UserContext(), httpx.UserID(c))
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(fiber.Map{"transactions": txs, "count": len(txs)})
}

// Get returns one transaction.
func (h *Handler) Get(c *fiber.Ctx) error {
	t, err := h.service.Get(c.UserContext(), c.Params("id"), httpx.UserID(c), httpx.Role(c) == "admin")
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(t)
}

// Stats summarises the authenticated account's transactions. Admins get the platform totals.
func (h *Handler) Stats(c *fiber.Ctx) error {
	account := httpx.UserID(c)
	if httpx.Role(c) == "admin" {
		account = ""
	}
	st, err := h.service.Stats(c.UserContext(), account)
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(st)
}
