package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/carbonmax/carbonmax/internal/estimator"
	"github.com/carbonmax/carbonmax/internal/identity"
	"github.com/carbonmax/carbonmax/internal/listing"
	"github.com/carbonmax/carbonmax/internal/market"
	"github.com/carbonmax/carbonmax/internal/middleware"
)

var (
	sellerOnly = middleware.RequireRole(string(identity.RoleSeller))
	buyerOnly  = middleware.RequireRole(string(identity.RoleBuyer))
)

// RegisterEstimateRoutes wires the credit estimator. Previews are open to every role.
func RegisterEstimateRoutes(r fiber.Router, h *estimator.Handler) {
	r.Post("/estimates", h.Preview)
	r.Post("/estimates/submit", sellerOnly, h.Submit)
}

// RegisterMarketRoutes wires listings, purchases and transaction history.
func RegisterMarketRoutes(r fiber.Router, listings *listing.Handler, trades *market.Handler) {
	r.Post("/listings", sellerOnly, listings.Create)
	r.Get("/listings", middleware.RequireRole(string(identity.RoleBuyer), string(identity.RoleAdmin)), listings.Marketplace)
	r.Get("/listings/mine", sellerOnly, listings.Mine)
	r.Get("/listings/:id", listings.Get)

	r.Post("/purchases", buyerOnly, trades.Purchase)
	r.Get("/transactions", trades.Mine)
	r.Get("/transactions/stats", trades.Stats)
	r.Get("/transactions/:id", trades.Get)
}
