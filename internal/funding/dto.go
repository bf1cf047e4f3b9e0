package funding

import (
	"fmt"

	"github.com/congo-pay/wallet_ledger/internal/money"
)

// DepositRequest carries the deposit amount in major units.
type DepositRequest struct {
	Amount money.Input `json:"amount"`
}

// DepositResponse points the payer at the gateway checkout.
type DepositResponse struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code,omitempty"`
	Amount           string `json:"amount"`
	AmountKobo       int64  `json:"amount_kobo"`
}

type validationError struct {
	Field  string
	Reason string
}

func (e validationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (r DepositRequest) validate() (money.Amount, error) {
	if r.Amount == "" {
		return 0, validationError{Field: "amount", Reason: "is required"}
	}
	amount, err := r.Amount.Amount()
	if err != nil {
		return 0, validationError{Field: "amount", Reason: err.Error()}
	}
	return amount, nil
}
