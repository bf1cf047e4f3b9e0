package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

// RegisterWalletRoutes wires read-only wallet endpoints.
func RegisterWalletRoutes(r fiber.Router, jwt fiber.Handler, h *wallet.Handler) {
	r.Get("/wallet/balance", jwt, h.Balance)
	r.Get("/wallet/transactions", jwt, h.Transactions)
}
