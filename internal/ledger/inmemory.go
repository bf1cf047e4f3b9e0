package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/congo-pay/wallet_ledger/internal/money"
)

type inMemoryStore struct {
	mu           sync.RWMutex
	wallets      map[string]Wallet
	walletByUser map[string]string
	walletByNum  map[string]string
	transactions map[string]Transaction
	txByRef      map[string]string
	txOrder      []string
	failCommit   error
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests
// and local development. RunInTx holds a store-wide writer lock for the whole
// unit, which serializes every mutation.
func NewInMemory() Store {
	return &inMemoryStore{
		wallets:      make(map[string]Wallet),
		walletByUser: make(map[string]string),
		walletByNum:  make(map[string]string),
		transactions: make(map[string]Transaction),
		txByRef:      make(map[string]string),
	}
}

func (s *inMemoryStore) CreateWallet(_ context.Context, w Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.walletByUser[w.UserID]; exists {
		return ErrAlreadyExists
	}
	if _, exists := s.walletByNum[w.Number]; exists {
		return ErrWalletNumberTaken
	}
	s.wallets[w.ID] = w
	s.walletByUser[w.UserID] = w.ID
	s.walletByNum[w.Number] = w.ID
	return nil
}

func (s *inMemoryStore) WalletByUser(_ context.Context, userID string) (Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.walletByUser[userID]
	if !ok {
		return Wallet{}, fmt.Errorf("wallet for user %s: %w", userID, ErrNotFound)
	}
	return s.wallets[id], nil
}

func (s *inMemoryStore) WalletByNumber(_ context.Context, number string) (Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.walletByNum[number]
	if !ok {
		return Wallet{}, fmt.Errorf("wallet %s: %w", number, ErrNotFound)
	}
	return s.wallets[id], nil
}

func (s *inMemoryStore) CreateTransaction(_ context.Context, t Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertTransaction(t)
}

func (s *inMemoryStore) insertTransaction(t Transaction) error {
	if _, ok := s.wallets[t.WalletID]; !ok {
		return fmt.Errorf("wallet %s: %w", t.WalletID, ErrNotFound)
	}
	if t.Reference != "" {
		if _, exists := s.txByRef[t.Reference]; exists {
			return ErrDuplicateReference
		}
		s.txByRef[t.Reference] = t.ID
	}
	s.transactions[t.ID] = t
	s.txOrder = append(s.txOrder, t.ID)
	return nil
}

func (s *inMemoryStore) TransactionByReference(_ context.Context, reference string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.txByRef[reference]
	if !ok {
		return Transaction{}, fmt.Errorf("transaction %s: %w", reference, ErrNotFound)
	}
	return s.transactions[id], nil
}

func (s *inMemoryStore) TransactionsByWallet(_ context.Context, walletID string) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Transaction, 0)
	for i := len(s.txOrder) - 1; i >= 0; i-- {
		t := s.transactions[s.txOrder[i]]
		if t.WalletID == walletID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *inMemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &inMemoryTx{
		store:    s,
		balances: make(map[string]money.Amount),
		statuses: make(map[string]TxStatus),
		newRefs:  make(map[string]string),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	if s.failCommit != nil {
		err := s.failCommit
		s.failCommit = nil
		return fmt.Errorf("%w: commit: %w", ErrPersistence, err)
	}

	now := time.Now().UTC()
	for id, bal := range tx.balances {
		w := s.wallets[id]
		w.Balance = bal
		w.UpdatedAt = now
		s.wallets[id] = w
	}
	for _, t := range tx.inserts {
		if err := s.insertTransaction(t); err != nil {
			// inserts were validated while staging; reaching here means the
			// store itself is inconsistent
			return fmt.Errorf("%w: apply: %w", ErrPersistence, err)
		}
	}
	for id, status := range tx.statuses {
		t := s.transactions[id]
		t.Status = status
		t.UpdatedAt = now
		s.transactions[id] = t
	}
	return nil
}

// inMemoryTx stages writes until the surrounding RunInTx commits them.
type inMemoryTx struct {
	store    *inMemoryStore
	balances map[string]money.Amount
	statuses map[string]TxStatus
	inserts  []Transaction
	newRefs  map[string]string
}

func (t *inMemoryTx) wallet(id string) (Wallet, bool) {
	w, ok := t.store.wallets[id]
	if !ok {
		return Wallet{}, false
	}
	if bal, staged := t.balances[id]; staged {
		w.Balance = bal
	}
	return w, true
}

func (t *inMemoryTx) LockWallets(_ context.Context, ids ...string) (map[string]Wallet, error) {
	ordered := append([]string(nil), ids...)
	sort.Strings(ordered)
	out := make(map[string]Wallet, len(ordered))
	for _, id := range ordered {
		w, ok := t.wallet(id)
		if !ok {
			return nil, fmt.Errorf("wallet %s: %w", id, ErrNotFound)
		}
		out[id] = w
	}
	return out, nil
}

func (t *inMemoryTx) LockTransactionByReference(_ context.Context, reference string) (Transaction, error) {
	id, ok := t.store.txByRef[reference]
	if !ok {
		return Transaction{}, fmt.Errorf("transaction %s: %w", reference, ErrNotFound)
	}
	rec := t.store.transactions[id]
	if status, staged := t.statuses[id]; staged {
		rec.Status = status
	}
	return rec, nil
}

func (t *inMemoryTx) UpdateBalance(_ context.Context, walletID string, balance money.Amount) error {
	if _, ok := t.store.wallets[walletID]; !ok {
		return fmt.Errorf("wallet %s: %w", walletID, ErrNotFound)
	}
	if balance < 0 {
		return ErrInsufficientFunds
	}
	t.balances[walletID] = balance
	return nil
}

func (t *inMemoryTx) InsertTransaction(_ context.Context, rec Transaction) error {
	if _, ok := t.store.wallets[rec.WalletID]; !ok {
		return fmt.Errorf("wallet %s: %w", rec.WalletID, ErrNotFound)
	}
	if rec.Reference != "" {
		if _, exists := t.store.txByRef[rec.Reference]; exists {
			return ErrDuplicateReference
		}
		if _, exists := t.newRefs[rec.Reference]; exists {
			return ErrDuplicateReference
		}
		t.newRefs[rec.Reference] = rec.ID
	}
	t.inserts = append(t.inserts, rec)
	return nil
}

func (t *inMemoryTx) UpdateTransactionStatus(_ context.Context, id string, status TxStatus) error {
	if _, ok := t.store.transactions[id]; !ok {
		return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	t.statuses[id] = status
	return nil
}
