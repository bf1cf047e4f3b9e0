package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/identity"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

// RegisterWalletMeRoute exposes the current user's profile with their wallet.
func RegisterWalletMeRoute(r fiber.Router, jwt fiber.Handler, wallets *wallet.Service, ids *identity.Service) {
	r.Get("/wallet", jwt, func(c *fiber.Ctx) error {
		uid, _ := c.Locals("user_id").(string)
		user, err := ids.Get(c.UserContext(), uid)
		if err != nil {
			return fiber.NewError(http.StatusNotFound, "user not found")
		}
		w, err := wallets.Balance(c.UserContext(), uid)
		if err != nil {
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"user": fiber.Map{
				"id":         user.ID,
				"email":      user.Email,
				"name":       user.Name,
				"created_at": user.CreatedAt,
			},
			"wallet": wallet.NewBalanceView(w),
		})
	})
}
