package ledger

import "github.com/congo-pay/wallet_ledger/internal/money"

// SeedBalance is a test helper that sets the balance of a wallet held by the in-memory store.
func SeedBalance(s Store, walletID string, amount money.Amount) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		w := mem.wallets[walletID]
		w.Balance = amount
		mem.wallets[walletID] = w
	}
}

// FailNextCommit makes the next RunInTx on the in-memory store fail at commit
// time with err, after the callback has staged its writes.
func FailNextCommit(s Store, err error) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.failCommit = err
	}
}

// TotalBalance sums every wallet balance held by the in-memory store.
func TotalBalance(s Store) money.Amount {
	var total money.Amount
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.RLock()
		defer mem.mu.RUnlock()
		for _, w := range mem.wallets {
			total += w.Balance
		}
	}
	return total
}

// TransactionCount reports how many transaction rows the in-memory store holds.
func TransactionCount(s Store) int {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.RLock()
		defer mem.mu.RUnlock()
		return len(mem.transactions)
	}
	return 0
}
