package wallet

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/congo-pay/wallet_ledger/internal/clock"
)

// NumberGenerator produces candidate public wallet numbers. Uniqueness is
// decided by the store, not the generator.
type NumberGenerator interface {
	Next() (string, error)
}

// ClockNumbers builds 12-digit numbers from the last ten digits of the
// millisecond clock followed by two random digits.
type ClockNumbers struct {
	Clock clock.Clock
}

var suffixRange = big.NewInt(100)

// Next returns a new candidate number.
func (g ClockNumbers) Next() (string, error) {
	clk := g.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	suffix, err := rand.Int(rand.Reader, suffixRange)
	if err != nil {
		return "", fmt.Errorf("wallet number suffix: %w", err)
	}
	return fmt.Sprintf("%010d%02d", clk.Now().UnixMilli()%10_000_000_000, suffix.Int64()), nil
}
