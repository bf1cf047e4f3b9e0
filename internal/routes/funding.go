package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/funding"
)

// RegisterFundingRoutes wires deposit initiation and the gateway webhook.
// The webhook authenticates by signature and takes no other middleware.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler, protected ...fiber.Handler) {
	r.Post("/wallet/deposit", append(append([]fiber.Handler{}, protected...), h.Deposit)...)
	r.Post("/wallet/paystack/webhook", h.Webhook)
}
