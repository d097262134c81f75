package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/carbonmax/carbonmax/internal/estimator"
	"github.com/carbonmax/carbonmax/internal/listing"
	"github.com/carbonmax/carbonmax/internal/reports"
	"github.com/carbonmax/carbonmax/internal/wallet"
)

// RegisterAdminRoutes wires verification, wallet adjustments, price control and reports.
// The router is expected to be guarded by an admin role check.
func RegisterAdminRoutes(r fiber.Router, listings *listing.Handler, wallets *wallet.Handler, prices *estimator.Handler, rep *reports.Handler) {
	r.Get("/listings", listings.AdminList)
	r.Post("/listings/:id/verify", listings.Verify)
	r.Post("/listings/:id/reject", listings.Reject)

	r.Post("/wallets/:ownerId/credit", wallets.Credit)
	r.Post("/wallets/:ownerId/debit", wallets.Debit)

	r.Put("/market/price", prices.SetPrice)

	r.Get("/overview", rep.Overview)
	r.Get("/reports/transactions", rep.Transactions)
}
