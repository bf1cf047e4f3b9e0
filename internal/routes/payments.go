package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/payments"
)

// RegisterPaymentRoutes wires wallet-to-wallet transfers.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler, protected ...fiber.Handler) {
	r.Post("/wallet/transfer", append(append([]fiber.Handler{}, protected...), h.Transfer)...)
}
