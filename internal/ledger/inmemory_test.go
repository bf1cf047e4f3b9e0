package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/wallet_ledger/internal/money"
)

func newWallet(t *testing.T, s Store, number string) Wallet {
	t.Helper()
	now := time.Now().UTC()
	w := Wallet{ID: uuid.NewString(), Number: number, UserID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	if err := s.CreateWallet(context.Background(), w); err != nil {
		t.Fatalf("create wallet %s: %v", number, err)
	}
	return w
}

func TestInMemoryStore_WalletUniqueness(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	w := newWallet(t, s, "100000000001")

	dupUser := Wallet{ID: uuid.NewString(), Number: "100000000002", UserID: w.UserID}
	if err := s.CreateWallet(ctx, dupUser); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}

	dupNumber := Wallet{ID: uuid.NewString(), Number: w.Number, UserID: uuid.NewString()}
	if err := s.CreateWallet(ctx, dupNumber); !errors.Is(err, ErrWalletNumberTaken) {
		t.Fatalf("expected number taken, got %v", err)
	}

	got, err := s.WalletByUser(ctx, w.UserID)
	if err != nil {
		t.Fatalf("wallet by user: %v", err)
	}
	if got.ID != w.ID {
		t.Fatalf("expected wallet %s, got %s", w.ID, got.ID)
	}
	if _, err := s.WalletByNumber(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInMemoryStore_RunInTxCommits(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a := newWallet(t, s, "100000000001")
	b := newWallet(t, s, "100000000002")
	SeedBalance(s, a.ID, 10_000)

	err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		locked, err := tx.LockWallets(ctx, b.ID, a.ID)
		if err != nil {
			return err
		}
		if err := tx.UpdateBalance(ctx, a.ID, locked[a.ID].Balance-1_500); err != nil {
			return err
		}
		if err := tx.UpdateBalance(ctx, b.ID, locked[b.ID].Balance+1_500); err != nil {
			return err
		}
		return tx.InsertTransaction(ctx, Transaction{ID: uuid.NewString(), WalletID: a.ID, Amount: 1_500, Type: TypeTransferDebit, Status: StatusSuccess})
	})
	if err != nil {
		t.Fatalf("run in tx: %v", err)
	}

	gotA, _ := s.WalletByUser(ctx, a.UserID)
	gotB, _ := s.WalletByUser(ctx, b.UserID)
	if gotA.Balance != 8_500 || gotB.Balance != 1_500 {
		t.Fatalf("unexpected balances a=%d b=%d", gotA.Balance, gotB.Balance)
	}
	if TotalBalance(s) != 10_000 {
		t.Fatalf("ledger not balanced, total=%d", TotalBalance(s))
	}
	if TransactionCount(s) != 1 {
		t.Fatalf("expected one transaction, got %d", TransactionCount(s))
	}
}

func TestInMemoryStore_RunInTxRollsBackOnError(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a := newWallet(t, s, "100000000001")
	SeedBalance(s, a.ID, 5_000)

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.UpdateBalance(ctx, a.ID, 0); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, Transaction{ID: uuid.NewString(), WalletID: a.ID, Amount: 5_000, Type: TypeTransferDebit, Status: StatusSuccess}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	got, _ := s.WalletByUser(ctx, a.UserID)
	if got.Balance != 5_000 {
		t.Fatalf("expected balance untouched, got %d", got.Balance)
	}
	if TransactionCount(s) != 0 {
		t.Fatalf("expected no transactions, got %d", TransactionCount(s))
	}
}

func TestInMemoryStore_FailNextCommit(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a := newWallet(t, s, "100000000001")
	SeedBalance(s, a.ID, 5_000)
	FailNextCommit(s, errors.New("disk full"))

	err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.UpdateBalance(ctx, a.ID, 1)
	})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected persistence failure, got %v", err)
	}
	got, _ := s.WalletByUser(ctx, a.UserID)
	if got.Balance != 5_000 {
		t.Fatalf("expected balance untouched, got %d", got.Balance)
	}

	if err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.UpdateBalance(ctx, a.ID, 1)
	}); err != nil {
		t.Fatalf("fault should only fire once: %v", err)
	}
}

func TestInMemoryStore_RejectsNegativeBalance(t *testing.T) {
	s := NewInMemory()
	a := newWallet(t, s, "100000000001")

	err := s.RunInTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.UpdateBalance(ctx, a.ID, -1)
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestInMemoryStore_ReferenceUniqueness(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a := newWallet(t, s, "100000000001")

	pending := Transaction{ID: uuid.NewString(), WalletID: a.ID, Amount: 10_000, Type: TypeDeposit, Status: StatusPending, Reference: "ref-1"}
	if err := s.CreateTransaction(ctx, pending); err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	dup := pending
	dup.ID = uuid.NewString()
	if err := s.CreateTransaction(ctx, dup); !errors.Is(err, ErrDuplicateReference) {
		t.Fatalf("expected duplicate reference, got %v", err)
	}

	got, err := s.TransactionByReference(ctx, "ref-1")
	if err != nil {
		t.Fatalf("by reference: %v", err)
	}
	if got.ID != pending.ID || got.Status != StatusPending {
		t.Fatalf("unexpected transaction: %+v", got)
	}
}

func TestInMemoryStore_HistoryMostRecentFirst(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a := newWallet(t, s, "100000000001")
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		rec := Transaction{
			ID:        uuid.NewString(),
			WalletID:  a.ID,
			Amount:    money.Amount(100 * (i + 1)),
			Type:      TypeDeposit,
			Status:    StatusPending,
			Reference: fmt.Sprintf("ref-%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.CreateTransaction(ctx, rec); err != nil {
			t.Fatalf("create transaction %d: %v", i, err)
		}
	}

	history, err := s.TransactionsByWallet(ctx, a.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(history))
	}
	if history[0].Reference != "ref-2" || history[2].Reference != "ref-0" {
		t.Fatalf("unexpected order: %s, %s, %s", history[0].Reference, history[1].Reference, history[2].Reference)
	}
}

func TestInMemoryStore_ConcurrentUnitsSerialize(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a := newWallet(t, s, "100000000001")
	b := newWallet(t, s, "100000000002")
	SeedBalance(s, a.ID, 100_000)
	SeedBalance(s, b.ID, 100_000)

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := a.ID, b.ID
			if i%2 == 1 {
				from, to = b.ID, a.ID
			}
			err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
				locked, err := tx.LockWallets(ctx, from, to)
				if err != nil {
					return err
				}
				if err := tx.UpdateBalance(ctx, from, locked[from].Balance-500); err != nil {
					return err
				}
				return tx.UpdateBalance(ctx, to, locked[to].Balance+500)
			})
			if err != nil {
				t.Errorf("unit %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if TotalBalance(s) != 200_000 {
		t.Fatalf("ledger not balanced after concurrency, total=%d", TotalBalance(s))
	}
}
