package funding

import (
	"context"
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/congo-pay/wallet_ledger/internal/money"
)

// Gateway opens charge sessions with an external payment processor.
type Gateway interface {
	InitializeCharge(ctx context.Context, req ChargeRequest) (Session, error)
}

// ChargeRequest asks the gateway to collect Amount from the payer.
type ChargeRequest struct {
	Email    string
	Amount   money.Amount
	Metadata map[string]string
}

// Session is the gateway's handle for a charge the payer still has to complete.
type Session struct {
	Reference        string
	AuthorizationURL string
	AccessCode       string
}

// StaticGateway issues synthetic sessions for local development. Nothing is
// ever charged, so confirmations have to be posted by hand.
type StaticGateway struct {
	CheckoutURL string
}

// InitializeCharge returns a session with a time-ordered ULID reference.
func (g StaticGateway) InitializeCharge(ctx context.Context, _ ChargeRequest) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	id := ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0))
	ref := "dep_" + strings.ToLower(id.String())
	base := g.CheckoutURL
	if base == "" {
		base = "http://localhost:8080/checkout"
	}
	return Session{
		Reference:        ref,
		AuthorizationURL: strings.TrimRight(base, "/") + "/" + ref,
		AccessCode:       id.String(),
	}, nil
}
