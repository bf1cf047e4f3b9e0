package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/wallet_ledger/internal/money"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"

	constraintWalletUser      = "wallets_user_id_key"
	constraintWalletNumber    = "wallets_wallet_number_key"
	constraintTxReference     = "transactions_reference_key"
	constraintPositiveBalance = "wallets_balance_non_negative"
)

const walletColumns = `id, wallet_number, user_id, balance, created_at, updated_at`

const transactionColumns = `id, wallet_id, amount, type, status, reference, counterparty_wallet_number, created_at, updated_at`

// PostgresStore persists wallets and transactions in PostgreSQL and relies on
// row-level locks (SELECT ... FOR UPDATE) for mutual exclusion.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateWallet inserts a wallet row; uniqueness of user and number is enforced
// by the table constraints.
func (s *PostgresStore) CreateWallet(ctx context.Context, w Wallet) error {
	walletID, err := uuid.Parse(w.ID)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(w.UserID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO wallets (id, wallet_number, user_id, balance, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)`, walletID, w.Number, userID, w.Balance.Int64(), w.CreatedAt.UTC(), w.UpdatedAt.UTC())
	return translate(err)
}

// WalletByUser fetches the wallet owned by userID.
func (s *PostgresStore) WalletByUser(ctx context.Context, userID string) (Wallet, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return Wallet{}, fmt.Errorf("wallet for user %s: %w", userID, ErrNotFound)
	}
	row := s.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, id)
	w, err := scanWallet(row)
	if err != nil {
		return Wallet{}, fmt.Errorf("wallet for user %s: %w", userID, err)
	}
	return w, nil
}

// WalletByNumber fetches a wallet by its public wallet number.
func (s *PostgresStore) WalletByNumber(ctx context.Context, number string) (Wallet, error) {
	row := s.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE wallet_number = $1`, number)
	w, err := scanWallet(row)
	if err != nil {
		return Wallet{}, fmt.Errorf("wallet %s: %w", number, err)
	}
	return w, nil
}

// CreateTransaction inserts a standalone transaction row, such as a pending deposit.
func (s *PostgresStore) CreateTransaction(ctx context.Context, t Transaction) error {
	return insertTransaction(ctx, s.db, t)
}

// TransactionByReference fetches the transaction bound to a gateway reference.
func (s *PostgresStore) TransactionByReference(ctx context.Context, reference string) (Transaction, error) {
	row := s.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE reference = $1`, reference)
	t, err := scanTransaction(row)
	if err != nil {
		return Transaction{}, fmt.Errorf("transaction %s: %w", reference, err)
	}
	return t, nil
}

// TransactionsByWallet lists a wallet's transactions, most recent first.
func (s *PostgresStore) TransactionsByWallet(ctx context.Context, walletID string) ([]Transaction, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return nil, fmt.Errorf("wallet %s: %w", walletID, ErrNotFound)
	}
	rows, err := s.db.Query(ctx, `SELECT `+transactionColumns+` FROM transactions
        WHERE wallet_id = $1 ORDER BY created_at DESC`, id)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	out := make([]Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	return out, nil
}

// RunInTx runs fn inside a pgx transaction. The deferred rollback releases
// every row lock on all exit paths; it is a no-op after a successful commit.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrPersistence, err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(ctx, &postgresTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrPersistence, err)
	}
	return nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) LockWallets(ctx context.Context, ids ...string) (map[string]Wallet, error) {
	ordered := append([]string(nil), ids...)
	sort.Strings(ordered)

	out := make(map[string]Wallet, len(ordered))
	for _, raw := range ordered {
		if _, seen := out[raw]; seen {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("wallet %s: %w", raw, ErrNotFound)
		}
		row := t.tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, id)
		w, err := scanWallet(row)
		if err != nil {
			return nil, fmt.Errorf("lock wallet %s: %w", raw, err)
		}
		out[raw] = w
	}
	return out, nil
}

func (t *postgresTx) LockTransactionByReference(ctx context.Context, reference string) (Transaction, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE reference = $1 FOR UPDATE`, reference)
	rec, err := scanTransaction(row)
	if err != nil {
		return Transaction{}, fmt.Errorf("lock transaction %s: %w", reference, err)
	}
	return rec, nil
}

func (t *postgresTx) UpdateBalance(ctx context.Context, walletID string, balance money.Amount) error {
	if balance < 0 {
		return ErrInsufficientFunds
	}
	id, err := uuid.Parse(walletID)
	if err != nil {
		return fmt.Errorf("wallet %s: %w", walletID, ErrNotFound)
	}
	cmd, err := t.tx.Exec(ctx, `UPDATE wallets SET balance = $1, updated_at = $2 WHERE id = $3`,
		balance.Int64(), time.Now().UTC(), id)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("wallet %s: %w", walletID, ErrNotFound)
	}
	return nil
}

func (t *postgresTx) InsertTransaction(ctx context.Context, rec Transaction) error {
	return insertTransaction(ctx, t.tx, rec)
}

func (t *postgresTx) UpdateTransactionStatus(ctx context.Context, id string, status TxStatus) error {
	txID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	cmd, err := t.tx.Exec(ctx, `UPDATE transactions SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), txID)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertTransaction(ctx context.Context, db execer, t Transaction) error {
	txID, err := uuid.Parse(t.ID)
	if err != nil {
		return err
	}
	walletID, err := uuid.Parse(t.WalletID)
	if err != nil {
		return fmt.Errorf("wallet %s: %w", t.WalletID, ErrNotFound)
	}
	_, err = db.Exec(ctx, `INSERT INTO transactions (`+transactionColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		txID, walletID, t.Amount.Int64(), string(t.Type), string(t.Status),
		nullable(t.Reference), nullable(t.CounterpartyWalletNumber), t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	return translate(err)
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w       Wallet
		id      uuid.UUID
		userID  uuid.UUID
		balance int64
	)
	if err := row.Scan(&id, &w.Number, &userID, &balance, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return Wallet{}, translate(err)
	}
	w.ID = id.String()
	w.UserID = userID.String()
	w.Balance = money.Amount(balance)
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		t            Transaction
		id           uuid.UUID
		walletID     uuid.UUID
		amount       int64
		typ, status  string
		reference    *string
		counterparty *string
	)
	if err := row.Scan(&id, &walletID, &amount, &typ, &status, &reference, &counterparty, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Transaction{}, translate(err)
	}
	t.ID = id.String()
	t.WalletID = walletID.String()
	t.Amount = money.Amount(amount)
	t.Type = TxType(typ)
	t.Status = TxStatus(status)
	if reference != nil {
		t.Reference = *reference
	}
	if counterparty != nil {
		t.CounterpartyWalletNumber = *counterparty
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraintWalletUser:
			return ErrAlreadyExists
		case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraintWalletNumber:
			return ErrWalletNumberTaken
		case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraintTxReference:
			return ErrDuplicateReference
		case pgErr.Code == pgCheckViolation && pgErr.ConstraintName == constraintPositiveBalance:
			return ErrInsufficientFunds
		}
	}
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
