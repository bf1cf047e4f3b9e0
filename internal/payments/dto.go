package payments

import (
	"fmt"
	"strings"

	"github.com/congo-pay/wallet_ledger/internal/money"
)

type transferRequest struct {
	WalletNumber string      `json:"wallet_number"`
	Amount       money.Input `json:"amount"`
}

type transferResponse struct {
	DebitID     string `json:"debit_transaction_id"`
	CreditID    string `json:"credit_transaction_id"`
	Balance     string `json:"balance"`
	BalanceKobo int64  `json:"balance_kobo"`
	CompletedAt string `json:"completed_at"`
}

type validationError struct {
	Field  string
	Reason string
}

func (e validationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (r transferRequest) validate() (money.Amount, error) {
	if strings.TrimSpace(r.WalletNumber) == "" {
		return 0, validationError{Field: "wallet_number", Reason: "is required"}
	}
	amount, err := r.Amount.Amount()
	if err != nil {
		return 0, validationError{Field: "amount", Reason: err.Error()}
	}
	return amount, nil
}
