package identity

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/carbonmax/carbonmax/internal/httpx"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8"`
	Role     Role    `json:"role" validate:"required,oneof=seller buyer"`
	Profile  Profile `json:"profile"`
}

type userResponse struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	Profile   Profile   `json:"profile"`
	CreatedAt time.Time `json:"created_at"`
}

func toResponse(u User) userResponse {
	return userResponse{UserID: u.ID, Email: u.Email, Role: u.Role, Profile: u.Profile, CreatedAt: u.CreatedAt}
}

// Register handles account onboarding.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	user, err := h.service.Register(c.UserContext(), Registration{Email: req.Email, Password: req.Password, Role: req.Role, Profile: req.Profile})
	if err != nil {
		return httpx.Error(err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(user))
}

// Me returns the authenticated account.
func (h *Handler) Me(c *fiber.Ctx) error {
	user, err := h.service.Get(c.UserContext(), httpx.UserID(c))
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(toResponse(user))
}

// UpdateMe replaces the authenticated account's profile.
func (h *Handler) UpdateMe(c *fiber.Ctx) error {
	var p Profile
	if err := httpx.Bind(c, &p); err != nil {
		return err
	}
	user, err := h.service.UpdateProfile(c.UserContext(), httpx.UserID(c), p)
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(toResponse(user))
}
