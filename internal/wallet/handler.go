package wallet

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Balance returns the authenticated user's balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	w, err := h.service.Balance(c.UserContext(), uid)
	if err != nil {
		return walletError(err)
	}
	return c.Status(http.StatusOK).JSON(NewBalanceView(w))
}

// Transactions returns the authenticated user's transaction history.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	history, err := h.service.History(c.UserContext(), uid)
	if err != nil {
		return walletError(err)
	}
	out := make([]TransactionView, 0, len(history))
	for _, t := range history {
		out = append(out, NewTransactionView(t))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transactions": out})
}

func walletError(err error) error {
	if errors.Is(err, ledger.ErrNotFound) {
		return fiber.NewError(http.StatusNotFound, "wallet not found")
	}
	return fiber.NewError(http.StatusInternalServerError, err.Error())
}
