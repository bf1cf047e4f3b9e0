package funding

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/money"
)

// SignatureHeader carries the gateway's HMAC of the webhook body.
const SignatureHeader = "x-paystack-signature"

// Handler exposes HTTP endpoints for gateway deposits.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Deposit opens a gateway charge for the authenticated user.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req DepositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := req.validate()
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	uid, _ := c.Locals("user_id").(string)

	session, err := h.service.InitiateDeposit(c.UserContext(), DepositInput{UserID: uid, Amount: amount})
	if err != nil {
		switch {
		case errors.Is(err, money.ErrInvalidAmount):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrNotFound):
			return fiber.NewError(http.StatusNotFound, "user not found")
		case errors.Is(err, ErrGateway):
			return fiber.NewError(http.StatusBadGateway, "payment gateway unavailable")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusCreated).JSON(DepositResponse{
		Reference:        session.Reference,
		AuthorizationURL: session.AuthorizationURL,
		AccessCode:       session.AccessCode,
		Amount:           amount.String(),
		AmountKobo:       amount.Int64(),
	})
}

// Webhook receives gateway confirmation events. Every verified event is
// acknowledged so the gateway stops retrying, except when the credit could
// not be persisted.
func (h *Handler) Webhook(c *fiber.Ctx) error {
	// the signature covers the bytes as sent, before any Content-Encoding is undone
	body := append([]byte(nil), c.Request().Body()...)
	_, err := h.service.ConfirmDeposit(c.UserContext(), c.Get(SignatureHeader), body)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSignature):
			return fiber.NewError(http.StatusBadRequest, "invalid signature")
		case errors.Is(err, ErrInvalidEvent):
			return fiber.NewError(http.StatusBadRequest, "invalid event")
		default:
			return fiber.NewError(http.StatusInternalServerError, "could not apply event")
		}
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": true})
}
