package wallet

import (
	"time"

	"github.com/congo-pay/wallet_ledger/internal/ledger"
)

// BalanceView is the public shape of a wallet balance.
type BalanceView struct {
	WalletNumber string    `json:"wallet_number"`
	Balance      string    `json:"balance"`
	BalanceKobo  int64     `json:"balance_kobo"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TransactionView is the public shape of a ledger transaction.
type TransactionView struct {
	ID                       string    `json:"id"`
	Type                     string    `json:"type"`
	Status                   string    `json:"status"`
	Amount                   string    `json:"amount"`
	AmountKobo               int64     `json:"amount_kobo"`
	Reference                string    `json:"reference,omitempty"`
	CounterpartyWalletNumber string    `json:"counterparty_wallet_number,omitempty"`
	CreatedAt                time.Time `json:"created_at"`
}

// NewBalanceView renders w for API responses.
func NewBalanceView(w ledger.Wallet) BalanceView {
	return BalanceView{
		WalletNumber: w.Number,
		Balance:      w.Balance.String(),
		BalanceKobo:  w.Balance.Int64(),
		UpdatedAt:    w.UpdatedAt,
	}
}

// NewTransactionView renders t for API responses.
func NewTransactionView(t ledger.Transaction) TransactionView {
	return TransactionView{
		ID:                       t.ID,
		Type:                     string(t.Type),
		Status:                   string(t.Status),
		Amount:                   t.Amount.String(),
		AmountKobo:               t.Amount.Int64(),
		Reference:                t.Reference,
		CounterpartyWalletNumber: t.CounterpartyWalletNumber,
		CreatedAt:                t.CreatedAt,
	}
}
