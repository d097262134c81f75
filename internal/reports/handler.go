package reports

import (
	"bytes"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/carbonmax/carbonmax/internal/apperrors"
	"github.com/carbonmax/carbonmax/internal/httpx"
)

// Handler exposes admin reporting endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a reports handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Overview returns the admin dashboard.
func (h *Handler) Overview(c *fiber.Ctx) error {
	o, err := h.service.Overview(c.UserContext())
	if err != nil {
		return httpx.Error(err)
	}
	return c.JSON(o)
}

// Transactions downloads the transaction report. Query: format=csv|xlsx|pdf, from, to (YYYY-MM-DD, to inclusive).
func (h *Handler) Transactions(c *fiber.Ctx) error {
	format, err := ParseFormat(c.Query("format"))
	if err != nil {
		return httpx.Error(err)
	}
	from, err := parseDate(c.Query("from"))
	if err != nil {
		return httpx.Error(err)
	}
	to, err := parseDate(c.Query("to"))
	if err != nil {
		return httpx.Error(err)
	}
	if !to.IsZero() {
		to = to.AddDate(0, 0, 1)
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return httpx.Error(fmt.Errorf("%w: from must not be after to", apperrors.ErrValidation))
	}

	report, err := h.service.Transactions(c.UserContext(), from, to)
	if err != nil {
		return httpx.Error(err)
	}
	var buf bytes.Buffer
	if err := Write(&buf, format, report); err != nil {
		return httpx.Error(err)
	}

	c.Set(fiber.HeaderContentType, format.ContentType())
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="transactions-%s.%s"`, report.GeneratedAt.Format("20060102"), format))
	return c.Send(buf.Bytes())
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: dates must be YYYY-MM-DD", apperrors.ErrValidation)
	}
	return t.UTC(), nil
}
