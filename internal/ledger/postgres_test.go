package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/wallet_ledger/internal/infra"
	"github.com/congo-pay/wallet_ledger/internal/money"
)

// newPostgres connects to DATABASE_URL and applies the schema. Tests using it
// are skipped when no database is configured.
func newPostgres(t *testing.T) (*PostgresStore, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := infra.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewPostgresStore(pool), pool
}

func randomNumber() string {
	return fmt.Sprintf("%012d", rand.Int64N(1_000_000_000_000))
}

func newPGWallet(t *testing.T, s *PostgresStore, pool *pgxpool.Pool, balance money.Amount) Wallet {
	t.Helper()
	ctx := context.Background()
	userID := uuid.New()
	if _, err := pool.Exec(ctx, `INSERT INTO users (id, email, name, pin_hash) VALUES ($1, $2, '', $3)`,
		userID, userID.String()+"@example.com", []byte("x")); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	now := time.Now().UTC()
	w := Wallet{ID: uuid.NewString(), Number: randomNumber(), UserID: userID.String(), CreatedAt: now, UpdatedAt: now}
	if err := s.CreateWallet(ctx, w); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if balance > 0 {
		if _, err := pool.Exec(ctx, `UPDATE wallets SET balance = $1 WHERE id = $2`, balance.Int64(), uuid.MustParse(w.ID)); err != nil {
			t.Fatalf("seed balance: %v", err)
		}
		w.Balance = balance
	}
	return w
}

func pgBalance(t *testing.T, s *PostgresStore, userID string) money.Amount {
	t.Helper()
	w, err := s.WalletByUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("wallet by user: %v", err)
	}
	return w.Balance
}

func TestPostgresStore_ConstraintErrors(t *testing.T) {
	s, pool := newPostgres(t)
	ctx := context.Background()
	w := newPGWallet(t, s, pool, 0)

	dupUser := Wallet{ID: uuid.NewString(), Number: randomNumber(), UserID: w.UserID}
	if err := s.CreateWallet(ctx, dupUser); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected already exists, got %v", err)
	}

	other := newPGWallet(t, s, pool, 0)
	if _, err := pool.Exec(ctx, `DELETE FROM wallets WHERE id = $1`, uuid.MustParse(other.ID)); err != nil {
		t.Fatalf("free user: %v", err)
	}
	dupNumber := Wallet{ID: uuid.NewString(), Number: w.Number, UserID: other.UserID}
	if err := s.CreateWallet(ctx, dupNumber); !errors.Is(err, ErrWalletNumberTaken) {
		t.Fatalf("expected number taken, got %v", err)
	}

	ref := "pg-ref-" + uuid.NewString()
	pending := Transaction{ID: uuid.NewString(), WalletID: w.ID, Amount: 10_000, Type: TypeDeposit, Status: StatusPending, Reference: ref}
	if err := s.CreateTransaction(ctx, pending); err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	dup := pending
	dup.ID = uuid.NewString()
	if err := s.CreateTransaction(ctx, dup); !errors.Is(err, ErrDuplicateReference) {
		t.Fatalf("expected duplicate reference, got %v", err)
	}

	if _, err := s.WalletByNumber(ctx, "missing-"+uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found by number, got %v", err)
	}
	if _, err := s.WalletByUser(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found by user, got %v", err)
	}
	if _, err := s.TransactionByReference(ctx, "missing-"+uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found by reference, got %v", err)
	}
}

func TestPostgresStore_RunInTxRollsBackOnError(t *testing.T) {
	s, pool := newPostgres(t)
	ctx := context.Background()
	a := newPGWallet(t, s, pool, 5_000)
	ref := "pg-rollback-" + uuid.NewString()

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.LockWallets(ctx, a.ID); err != nil {
			return err
		}
		if err := tx.UpdateBalance(ctx, a.ID, 0); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, Transaction{ID: uuid.NewString(), WalletID: a.ID, Amount: 5_000, Type: TypeTransferDebit, Status: StatusSuccess, Reference: ref}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if got := pgBalance(t, s, a.UserID); got != 5_000 {
		t.Fatalf("expected balance untouched, got %d", got)
	}
	if _, err := s.TransactionByReference(ctx, ref); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected transaction rolled back, got %v", err)
	}
}

func TestPostgresStore_OpposingTransfersConserveTotal(t *testing.T) {
	s, pool := newPostgres(t)
	a := newPGWallet(t, s, pool, 100_000)
	b := newPGWallet(t, s, pool, 100_000)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

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

	total := pgBalance(t, s, a.UserID) + pgBalance(t, s, b.UserID)
	if total != 200_000 {
		t.Fatalf("ledger not balanced after concurrency, total=%d", total)
	}
}

func TestPostgresStore_ConcurrentConfirmationsCreditOnce(t *testing.T) {
	s, pool := newPostgres(t)
	ctx := context.Background()
	a := newPGWallet(t, s, pool, 0)
	ref := "pg-confirm-" + uuid.NewString()
	if err := s.CreateTransaction(ctx, Transaction{ID: uuid.NewString(), WalletID: a.ID, Amount: 7_500, Type: TypeDeposit, Status: StatusPending, Reference: ref}); err != nil {
		t.Fatalf("create pending: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
				rec, err := tx.LockTransactionByReference(ctx, ref)
				if err != nil {
					return err
				}
				if rec.Status != StatusPending {
					return nil
				}
				locked, err := tx.LockWallets(ctx, rec.WalletID)
				if err != nil {
					return err
				}
				if err := tx.UpdateBalance(ctx, rec.WalletID, locked[rec.WalletID].Balance+rec.Amount); err != nil {
					return err
				}
				return tx.UpdateTransactionStatus(ctx, rec.ID, StatusSuccess)
			})
			if err != nil {
				t.Errorf("confirm: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := pgBalance(t, s, a.UserID); got != 7_500 {
		t.Fatalf("expected a single credit of 7500, got %d", got)
	}
	rec, err := s.TransactionByReference(ctx, ref)
	if err != nil {
		t.Fatalf("by reference: %v", err)
	}
	if rec.Status != StatusSuccess {
		t.Fatalf("expected success, got %s", rec.Status)
	}
}
