package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/congo-pay/wallet_ledger/internal/money"
)

var (
	// ErrNotFound is returned when a wallet or transaction does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the user already owns a wallet.
	ErrAlreadyExists = errors.New("wallet already exists")

	// ErrWalletNumberTaken is returned when a generated wallet number collides
	// with an existing one. Callers are expected to retry with a new number.
	ErrWalletNumberTaken = errors.New("wallet number taken")

	// ErrDuplicateReference indicates a gateway reference is already bound to
	// another transaction.
	ErrDuplicateReference = errors.New("duplicate transaction reference")

	// ErrInsufficientFunds occurs when the source wallet lacks available balance
	// to cover a requested debit.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrPersistence wraps storage failures. A unit that fails with it has been
	// rolled back.
	ErrPersistence = errors.New("persistence failure")
)

// TxType discriminates the kind of balance movement a transaction records.
type TxType string

const (
	TypeDeposit        TxType = "deposit"
	TypeTransferDebit  TxType = "transfer_debit"
	TypeTransferCredit TxType = "transfer_credit"
)

// TxStatus is the lifecycle state of a transaction.
type TxStatus string

const (
	StatusPending TxStatus = "pending"
	StatusSuccess TxStatus = "success"
	StatusFailed  TxStatus = "failed"
)

// Wallet is the single balance-bearing account owned by a user.
type Wallet struct {
	ID        string
	Number    string
	UserID    string
	Balance   money.Amount
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is a permanent audit record of a balance movement. Amount is
// always positive; the direction is implied by Type.
type Transaction struct {
	ID                       string
	WalletID                 string
	Amount                   money.Amount
	Type                     TxType
	Status                   TxStatus
	Reference                string
	CounterpartyWalletNumber string
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// Store persists wallets and transactions. Reads outside RunInTx take no locks
// and may observe a value that an in-flight unit is about to replace.
type Store interface {
	CreateWallet(ctx context.Context, w Wallet) error
	WalletByUser(ctx context.Context, userID string) (Wallet, error)
	WalletByNumber(ctx context.Context, number string) (Wallet, error)
	CreateTransaction(ctx context.Context, t Transaction) error
	TransactionByReference(ctx context.Context, reference string) (Transaction, error)
	TransactionsByWallet(ctx context.Context, walletID string) ([]Transaction, error)

	// RunInTx executes fn as a single all-or-nothing unit. An error returned by
	// fn rolls the unit back and is returned unchanged; a failure to begin or
	// commit is reported as ErrPersistence. fn must only touch the store
	// through tx.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the locked scope handed to RunInTx callbacks.
type Tx interface {
	// LockWallets acquires exclusive row locks on the given wallets in
	// ascending id order, regardless of argument order.
	LockWallets(ctx context.Context, ids ...string) (map[string]Wallet, error)
	LockTransactionByReference(ctx context.Context, reference string) (Transaction, error)
	UpdateBalance(ctx context.Context, walletID string, balance money.Amount) error
	InsertTransaction(ctx context.Context, t Transaction) error
	UpdateTransactionStatus(ctx context.Context, id string, status TxStatus) error
}
