package notification

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

const keepAliveInterval = 15 * time.Second

// Stream serves the caller's events as Server-Sent Events. Public events (listings
// becoming visible) go to everyone; the rest only to the accounts they concern.
func Stream(b *Broker, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		account, _ := c.Locals("user_id").(string)
		if account == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing account")
		}
		sub := b.Subscribe(32, func(e Event) bool { return e.Concerns(account) })

		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer sub.Close()
			ticker := time.NewTicker(keepAliveInterval)
			defer ticker.Stop()

			fmt.Fprint(w, ": connected\n\n")
			if err := w.Flush(); err != nil {
				return
			}
			for {
				select {
				case event, ok := <-sub.C:
					if !ok {
						return
					}
					if err := writeEvent(w, event); err != nil {
						logger.Debug("event stream closed", slog.String("account_id", account), slog.Any("error", err))
						return
					}
				case <-ticker.C:
					fmt.Fprint(w, ": ping\n\n")
					if err := w.Flush(); err != nil {
						return
					}
				}
			}
		})
		return nil
	}
}

func writeEvent(w *bufio.Writer, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Type, data)
	return w.Flush()
}
