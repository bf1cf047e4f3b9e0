package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/wallet_ledger/internal/clock"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/logging"
	"github.com/congo-pay/wallet_ledger/internal/metrics"
	"github.com/congo-pay/wallet_ledger/internal/money"
	"github.com/congo-pay/wallet_ledger/internal/notification"
	"github.com/congo-pay/wallet_ledger/internal/wallet"
)

// ErrSelfTransfer is returned when the recipient wallet is the sender's own.
var ErrSelfTransfer = errors.New("cannot transfer to own wallet")

// Service moves funds between wallets.
type Service struct {
	store    ledger.Store
	wallets  *wallet.Service
	notifier notification.Notifier
	metrics  *metrics.Metrics
	clock    clock.Clock
	logger   *slog.Logger
}

// NewService constructs a transfer service. notifier, m, clk and logger may
// be nil.
func NewService(store ledger.Store, wallets *wallet.Service, notifier notification.Notifier, m *metrics.Metrics, clk clock.Clock, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{store: store, wallets: wallets, notifier: notifier, metrics: m, clock: clk, logger: logger}
}

// TransferInput describes a wallet-to-wallet transfer.
type TransferInput struct {
	SenderUserID          string
	RecipientWalletNumber string
	Amount                money.Amount
}

// TransferResult is returned once both legs of a transfer are committed.
type TransferResult struct {
	DebitID          string
	CreditID         string
	SenderBalance    money.Amount
	RecipientBalance money.Amount
	CompletedAt      time.Time
}

// Transfer debits the sender and credits the recipient in a single unit. Both
// wallet rows are locked in ascending id order so two opposing transfers
// between the same pair cannot deadlock.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	started := time.Now()
	res, err := s.transfer(ctx, input)
	s.metrics.ObserveTransfer(resultLabel(err), input.Amount.Int64(), time.Since(started))
	return res, err
}

func (s *Service) transfer(ctx context.Context, input TransferInput) (TransferResult, error) {
	if err := input.Amount.Validate(); err != nil {
		return TransferResult{}, err
	}

	sender, err := s.store.WalletByUser(ctx, input.SenderUserID)
	if err != nil {
		return TransferResult{}, fmt.Errorf("sender: %w", err)
	}
	recipient, err := s.store.WalletByNumber(ctx, input.RecipientWalletNumber)
	if err != nil {
		return TransferResult{}, fmt.Errorf("recipient: %w", err)
	}
	if sender.ID == recipient.ID {
		return TransferResult{}, ErrSelfTransfer
	}

	now := s.clock.Now()
	debit := ledger.Transaction{
		ID:                       uuid.NewString(),
		WalletID:                 sender.ID,
		Amount:                   input.Amount,
		Type:                     ledger.TypeTransferDebit,
		Status:                   ledger.StatusSuccess,
		CounterpartyWalletNumber: recipient.Number,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	credit := ledger.Transaction{
		ID:                       uuid.NewString(),
		WalletID:                 recipient.ID,
		Amount:                   input.Amount,
		Type:                     ledger.TypeTransferCredit,
		Status:                   ledger.StatusSuccess,
		CounterpartyWalletNumber: sender.Number,
		CreatedAt:                now,
		UpdatedAt:                now,
	}

	var res TransferResult
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		locked, err := tx.LockWallets(ctx, sender.ID, recipient.ID)
		if err != nil {
			return err
		}
		from, to := locked[sender.ID], locked[recipient.ID]
		if !from.Balance.Covers(input.Amount) {
			return fmt.Errorf("wallet %s holds %s: %w", from.Number, from.Balance, ledger.ErrInsufficientFunds)
		}

		fromBalance, err := from.Balance.Sub(input.Amount)
		if err != nil {
			return err
		}
		toBalance, err := to.Balance.Add(input.Amount)
		if err != nil {
			return err
		}
		if err := tx.UpdateBalance(ctx, from.ID, fromBalance); err != nil {
			return err
		}
		if err := tx.UpdateBalance(ctx, to.ID, toBalance); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, debit); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, credit); err != nil {
			return err
		}

		res = TransferResult{
			DebitID:          debit.ID,
			CreditID:         credit.ID,
			SenderBalance:    fromBalance,
			RecipientBalance: toBalance,
			CompletedAt:      now,
		}
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}

	s.wallets.Invalidate(ctx, sender.UserID, recipient.UserID)
	s.logger.InfoContext(ctx, "transfer completed",
		"debit_id", res.DebitID, "credit_id", res.CreditID, "amount", input.Amount.Int64())
	s.notify(ctx, notification.Message{
		Kind:        notification.KindTransferReceived,
		Destination: recipient.Number,
		Body:        fmt.Sprintf("received %s from %s", input.Amount, sender.Number),
	})
	return res, nil
}

func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "notification failed", "kind", msg.Kind, "error", err)
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, money.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ledger.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSelfTransfer):
		return "self_transfer"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	default:
		return "error"
	}
}
