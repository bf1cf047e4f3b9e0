package routes

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/middleware"
)

// ErrorHandler renders every error as {"error": ..., "request_id": ...}.
// Errors that are not *fiber.Error become 500s with a generic message.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := http.StatusInternalServerError
	msg := "internal error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	}
	body := fiber.Map{"error": msg}
	if id := middleware.RequestIDFrom(c); id != "" {
		body["request_id"] = id
	}
	return c.Status(code).JSON(body)
}
