package funding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/wallet_ledger/internal/clock"
	"github.com/congo-pay/wallet_ledger/internal/identity"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/logging"
	"github.com/congo-pay/wallet_ledger/internal/metrics"
	"github.com/congo-pay/wallet_ledger/internal/money"
	"github.com/congo-pay/wallet_ledger/internal/notification"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

var (
	// ErrInvalidSignature is returned when a confirmation event fails HMAC verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrInvalidEvent is returned when a correctly signed body cannot be decoded.
	ErrInvalidEvent = errors.New("invalid webhook event")

	// ErrGateway wraps failures and timeouts talking to the payment gateway.
	ErrGateway = errors.New("payment gateway error")
)

// EventChargeSuccess is the only gateway event that credits a wallet.
const EventChargeSuccess = "charge.success"

// Outcome describes how a confirmation event was resolved.
type Outcome string

const (
	OutcomeIgnored          Outcome = "ignored"
	OutcomeUnknownReference Outcome = "unknown_reference"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeCredited         Outcome = "credited"
)

const (
	defaultMinDeposit     money.Amount = 10_000
	defaultGatewayTimeout              = 15 * time.Second
)

// Users resolves the owner of a deposit.
type Users interface {
	Get(ctx context.Context, id string) (identity.User, error)
}

// Config holds deposit policy and the webhook secret.
type Config struct {
	WebhookSecret  string
	MinDeposit     money.Amount
	GatewayTimeout time.Duration
}

// Deps are the collaborators of the deposit service. Notifier, Metrics,
// Clock and Logger are optional.
type Deps struct {
	Store    ledger.Store
	Wallets  *wallet.Service
	Users    Users
	Gateway  Gateway
	Notifier notification.Notifier
	Metrics  *metrics.Metrics
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Service initiates gateway deposits and applies their confirmations.
type Service struct {
	Deps
	cfg Config
}

// NewService validates deps and prepares a deposit service.
func NewService(d Deps, cfg Config) (*Service, error) {
	if d.Store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if d.Wallets == nil {
		return nil, fmt.Errorf("wallet service is required")
	}
	if d.Users == nil {
		return nil, fmt.Errorf("user directory is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("webhook secret is required")
	}
	if d.Gateway == nil {
		d.Gateway = StaticGateway{}
	}
	if d.Clock == nil {
		d.Clock = clock.RealClock{}
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if cfg.MinDeposit <= 0 {
		cfg.MinDeposit = defaultMinDeposit
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = defaultGatewayTimeout
	}
	return &Service{Deps: d, cfg: cfg}, nil
}

// DepositInput requests a deposit into the user's wallet.
type DepositInput struct {
	UserID string
	Amount money.Amount
}

// InitiateDeposit opens a gateway charge and records it as a pending deposit.
// Nothing is written when the gateway call fails.
func (s *Service) InitiateDeposit(ctx context.Context, input DepositInput) (Session, error) {
	session, err := s.initiate(ctx, input)
	s.Metrics.ObserveDepositInitiated(initiateLabel(err))
	return session, err
}

func (s *Service) initiate(ctx context.Context, input DepositInput) (Session, error) {
	if err := input.Amount.Validate(); err != nil {
		return Session{}, err
	}
	if !input.Amount.Covers(s.cfg.MinDeposit) {
		return Session{}, fmt.Errorf("%w: minimum deposit is %s", money.ErrInvalidAmount, s.cfg.MinDeposit)
	}

	user, err := s.Users.Get(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return Session{}, fmt.Errorf("user %s: %w", input.UserID, ledger.ErrNotFound)
		}
		return Session{}, err
	}
	w, err := s.Wallets.Ensure(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	session, err := s.Gateway.InitializeCharge(gctx, ChargeRequest{
		Email:    user.Email,
		Amount:   input.Amount,
		Metadata: map[string]string{"user_id": user.ID, "wallet_number": w.Number},
	})
	if err != nil {
		s.Logger.ErrorContext(ctx, "gateway initialize failed", "user_id", user.ID, "error", err)
		return Session{}, fmt.Errorf("%w: %w", ErrGateway, err)
	}
	if session.Reference == "" {
		return Session{}, fmt.Errorf("%w: empty reference", ErrGateway)
	}

	now := s.Clock.Now()
	pending := ledger.Transaction{
		ID:        uuid.NewString(),
		WalletID:  w.ID,
		Amount:    input.Amount,
		Type:      ledger.TypeDeposit,
		Status:    ledger.StatusPending,
		Reference: session.Reference,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.CreateTransaction(ctx, pending); err != nil {
		if errors.Is(err, ledger.ErrDuplicateReference) {
			return Session{}, fmt.Errorf("%w: %w", ledger.ErrPersistence, err)
		}
		return Session{}, err
	}

	s.Logger.InfoContext(ctx, "deposit initiated", "wallet_id", w.ID, "reference", session.Reference, "amount", input.Amount.Int64())
	return session, nil
}

type chargeEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string      `json:"reference"`
		Amount    json.Number `json:"amount"`
		Status    string      `json:"status"`
	} `json:"data"`
}

// ConfirmDeposit applies a signed gateway event. The signature is checked
// before the body is parsed or any record is read. Replays of an already
// applied event resolve to OutcomeAlreadyProcessed without touching the
// balance.
func (s *Service) ConfirmDeposit(ctx context.Context, signature string, body []byte) (Outcome, error) {
	outcome, credited, err := s.confirm(ctx, signature, body)
	label := string(outcome)
	switch {
	case errors.Is(err, ErrInvalidSignature):
		label = "invalid_signature"
	case err != nil:
		label = "error"
	}
	s.Metrics.ObserveDepositConfirmation(label, credited.Int64())
	return outcome, err
}

func (s *Service) confirm(ctx context.Context, signature string, body []byte) (Outcome, money.Amount, error) {
	if !validSignature(s.cfg.WebhookSecret, signature, body) {
		s.Logger.WarnContext(ctx, "webhook signature rejected")
		return "", 0, ErrInvalidSignature
	}

	var evt chargeEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if evt.Event != EventChargeSuccess {
		s.Logger.InfoContext(ctx, "webhook event ignored", "event", evt.Event)
		return OutcomeIgnored, 0, nil
	}
	ref := evt.Data.Reference
	if ref == "" {
		return "", 0, fmt.Errorf("%w: missing reference", ErrInvalidEvent)
	}

	rec, err := s.Store.TransactionByReference(ctx, ref)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			s.Logger.WarnContext(ctx, "webhook for unknown reference", "reference", ref)
			return OutcomeUnknownReference, 0, nil
		}
		return "", 0, err
	}
	if rec.Type != ledger.TypeDeposit {
		s.Logger.WarnContext(ctx, "webhook reference is not a deposit", "reference", ref, "type", rec.Type)
		return OutcomeUnknownReference, 0, nil
	}
	if rec.Status == ledger.StatusSuccess {
		return OutcomeAlreadyProcessed, 0, nil
	}
	if reported, err := evt.Data.Amount.Int64(); err == nil && money.Amount(reported) != rec.Amount {
		s.Logger.WarnContext(ctx, "gateway amount differs from recorded deposit",
			"reference", ref, "recorded", rec.Amount.Int64(), "reported", reported)
	}

	var (
		outcome Outcome
		owner   ledger.Wallet
	)
	err = s.Store.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		locked, err := tx.LockTransactionByReference(ctx, ref)
		if err != nil {
			return err
		}
		if locked.Status == ledger.StatusSuccess {
			// a concurrent delivery won the row lock
			outcome = OutcomeAlreadyProcessed
			return nil
		}
		wallets, err := tx.LockWallets(ctx, locked.WalletID)
		if err != nil {
			return err
		}
		owner = wallets[locked.WalletID]
		balance, err := owner.Balance.Add(locked.Amount)
		if err != nil {
			return err
		}
		if err := tx.UpdateBalance(ctx, owner.ID, balance); err != nil {
			return err
		}
		if err := tx.UpdateTransactionStatus(ctx, locked.ID, ledger.StatusSuccess); err != nil {
			return err
		}
		owner.Balance = balance
		outcome = OutcomeCredited
		return nil
	})
	if err != nil {
		s.Logger.ErrorContext(ctx, "deposit credit failed", "reference", ref, "error", err)
		if !errors.Is(err, ledger.ErrPersistence) {
			err = fmt.Errorf("%w: %w", ledger.ErrPersistence, err)
		}
		return "", 0, err
	}
	if outcome != OutcomeCredited {
		return outcome, 0, nil
	}

	s.Wallets.Invalidate(ctx, owner.UserID)
	s.Logger.InfoContext(ctx, "deposit credited", "wallet_id", owner.ID, "reference", ref, "amount", rec.Amount.Int64())
	if s.Notifier != nil {
		msg := notification.Message{
			Kind:        notification.KindDepositCredited,
			Destination: owner.Number,
			Body:        fmt.Sprintf("deposit of %s credited", rec.Amount),
		}
		if err := s.Notifier.Send(ctx, msg); err != nil {
			s.Logger.WarnContext(ctx, "notification failed", "kind", msg.Kind, "error", err)
		}
	}
	return OutcomeCredited, rec.Amount, nil
}

func initiateLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, money.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrGateway):
		return "gateway_error"
	case errors.Is(err, ledger.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
