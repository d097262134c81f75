package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/carbonmax/carbonmax/internal/auth"
	"github.com/carbonmax/carbonmax/internal/identity"
	"github.com/carbonmax/carbonmax/internal/wallet"
)

// RegisterIdentityRoutes wires account registration.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler, idem fiber.Handler) {
	r.Post("/identity/register", idem, h.Register)
}

// RegisterAuthRoutes wires authentication endpoints. Logout needs a valid access token.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter, jwtmw fiber.Handler) {
	group := r.Group("/auth")
	group.Post("/login", rateLimiter, h.Login)
	group.Post("/refresh", h.Refresh)
	group.Post("/logout", jwtmw, h.Logout)
}

// RegisterAccountRoutes wires the caller's profile and wallet.
func RegisterAccountRoutes(r fiber.Router, ids *identity.Handler, wallets *wallet.Handler) {
	r.Get("/me", ids.Me)
	r.Put("/me", ids.UpdateMe)
	r.Get("/wallet", wallets.Me)
}
