package routes

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/wallet_ledger/internal/auth"
	"github.com/congo-pay/wallet_ledger/internal/identity"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

type registerRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	PIN   string `json:"pin"`
}

type loginRequest struct {
	Email string `json:"email"`
	PIN   string `json:"pin"`
}

// RegisterIdentityRoutes wires onboarding and PIN login. limit builds a
// rate limiter for the given scope.
func RegisterIdentityRoutes(r fiber.Router, ids *identity.Service, wallets *wallet.Service, tokens *auth.Tokens, logger *slog.Logger, limit func(scope string) fiber.Handler) {
	r.Post("/identity/register", limit("register"), func(c *fiber.Ctx) error {
		var req registerRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		user, err := ids.Register(c.UserContext(), identity.Credentials{Email: req.Email, Name: req.Name, PIN: req.PIN})
		if err != nil {
			switch {
			case errors.Is(err, identity.ErrInvalidEmail), errors.Is(err, identity.ErrInvalidPIN):
				return fiber.NewError(http.StatusBadRequest, err.Error())
			case errors.Is(err, identity.ErrUserExists):
				return fiber.NewError(http.StatusConflict, "email already registered")
			default:
				return fiber.NewError(http.StatusInternalServerError, err.Error())
			}
		}
		w, err := wallets.Ensure(c.UserContext(), user.ID)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}

		logger.Info("identity.register completed",
			slog.String("user_id", user.ID),
			slog.String("wallet_id", w.ID),
		)
		return sessionResponse(c, http.StatusCreated, tokens, user, w.Number)
	})

	r.Post("/identity/login", limit("login"), func(c *fiber.Ctx) error {
		var req loginRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		user, err := ids.Authenticate(c.UserContext(), req.Email, req.PIN)
		if err != nil {
			if errors.Is(err, identity.ErrInvalidCredentials) {
				return fiber.NewError(http.StatusUnauthorized, "invalid email or PIN")
			}
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		w, err := wallets.Ensure(c.UserContext(), user.ID)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		return sessionResponse(c, http.StatusOK, tokens, user, w.Number)
	})
}

func sessionResponse(c *fiber.Ctx, status int, tokens *auth.Tokens, user identity.User, walletNumber string) error {
	token, exp, err := tokens.Issue(user.ID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(status).JSON(fiber.Map{
		"user_id":       user.ID,
		"email":         user.Email,
		"name":          user.Name,
		"wallet_number": walletNumber,
		"access_token":  token,
		"expires_at":    exp.Format(time.RFC3339),
	})
}
