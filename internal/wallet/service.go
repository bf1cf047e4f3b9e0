package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/wallet_ledger/internal/cache"
	"github.com/congo-pay/wallet_ledger/internal/clock"
	"github.com/congo-pay/wallet_ledger/internal/ledger"
	"github.com/congo-pay/wallet_ledger/internal/logging"
)

const (
	maxNumberAttempts = 5

	// generationTTL keeps a user's cache generation alive well past any
	// balance entry cached under it.
	generationTTL = 24 * time.Hour
)

// Options configures optional collaborators of the wallet service.
type Options struct {
	Numbers  NumberGenerator
	Clock    clock.Clock
	Cache    *redis.Client
	CacheTTL time.Duration
	Logger   *slog.Logger
}

// Service manages wallet lifecycle and read access to balances.
type Service struct {
	store    ledger.Store
	numbers  NumberGenerator
	clock    clock.Clock
	cache    *redis.Client
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewService builds a wallet service over the ledger store.
func NewService(store ledger.Store, opts Options) *Service {
	svc := &Service{
		store:    store,
		numbers:  opts.Numbers,
		clock:    opts.Clock,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		logger:   opts.Logger,
	}
	if svc.clock == nil {
		svc.clock = clock.RealClock{}
	}
	if svc.numbers == nil {
		svc.numbers = ClockNumbers{Clock: svc.clock}
	}
	if svc.cacheTTL <= 0 {
		svc.cacheTTL = 30 * time.Second
	}
	if svc.logger == nil {
		svc.logger = logging.Discard()
	}
	return svc
}

// Create provisions a zero-balance wallet for userID. A user that already
// owns a wallet gets ledger.ErrAlreadyExists.
func (s *Service) Create(ctx context.Context, userID string) (ledger.Wallet, error) {
	if userID == "" {
		return ledger.Wallet{}, fmt.Errorf("wallet for empty user: %w", ledger.ErrNotFound)
	}

	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		number, err := s.numbers.Next()
		if err != nil {
			return ledger.Wallet{}, fmt.Errorf("%w: %w", ledger.ErrPersistence, err)
		}
		now := s.clock.Now()
		w := ledger.Wallet{
			ID:        uuid.NewString(),
			Number:    number,
			UserID:    userID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		err = s.store.CreateWallet(ctx, w)
		switch {
		case err == nil:
			s.logger.InfoContext(ctx, "wallet created", "wallet_id", w.ID, "user_id", userID)
			return w, nil
		case errors.Is(err, ledger.ErrWalletNumberTaken):
			s.logger.WarnContext(ctx, "wallet number collision", "attempt", attempt)
			continue
		case errors.Is(err, ledger.ErrAlreadyExists):
			return ledger.Wallet{}, fmt.Errorf("user %s: %w", userID, err)
		default:
			return ledger.Wallet{}, err
		}
	}
	return ledger.Wallet{}, fmt.Errorf("%w: no free wallet number after %d attempts", ledger.ErrPersistence, maxNumberAttempts)
}

// Ensure returns the user's wallet, creating it on first use.
func (s *Service) Ensure(ctx context.Context, userID string) (ledger.Wallet, error) {
	w, err := s.store.WalletByUser(ctx, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return ledger.Wallet{}, err
	}
	w, err = s.Create(ctx, userID)
	if errors.Is(err, ledger.ErrAlreadyExists) {
		return s.store.WalletByUser(ctx, userID)
	}
	return w, err
}

// Balance returns the user's wallet. Values may be served from the cache and
// can trail an in-flight mutation. Entries are keyed by the user's cache
// generation read before the store, so a read that races a committed
// mutation caches under a generation Invalidate has already retired.
func (s *Service) Balance(ctx context.Context, userID string) (ledger.Wallet, error) {
	key := ""
	if s.cache != nil {
		gen, err := cache.Generation(ctx, s.cache, generationKey(userID))
		if err != nil {
			s.logger.WarnContext(ctx, "balance cache read failed", "user_id", userID, "error", err)
		} else {
			key = cacheKey(userID, gen)
			var cached ledger.Wallet
			hit, err := cache.Get(ctx, s.cache, key, &cached)
			if err != nil {
				s.logger.WarnContext(ctx, "balance cache read failed", "user_id", userID, "error", err)
			} else if hit {
				return cached, nil
			}
		}
	}

	w, err := s.store.WalletByUser(ctx, userID)
	if err != nil {
		return ledger.Wallet{}, err
	}
	if key != "" {
		if err := cache.Set(ctx, s.cache, key, w, s.cacheTTL); err != nil {
			s.logger.WarnContext(ctx, "balance cache write failed", "user_id", userID, "error", err)
		}
	}
	return w, nil
}

// History lists the user's transactions, most recent first.
func (s *Service) History(ctx context.Context, userID string) ([]ledger.Transaction, error) {
	w, err := s.store.WalletByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.store.TransactionsByWallet(ctx, w.ID)
}

// Invalidate retires cached balances for the given users.
func (s *Service) Invalidate(ctx context.Context, userIDs ...string) {
	if s.cache == nil || len(userIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, generationKey(id))
	}
	if err := cache.Bump(ctx, s.cache, generationTTL, keys...); err != nil {
		s.logger.WarnContext(ctx, "balance cache invalidation failed", "error", err)
	}
}

func cacheKey(userID string, gen int64) string {
	return fmt.Sprintf("wallet:user:%s:%d", userID, gen)
}

func generationKey(userID string) string {
	return "wallet:gen:" + userID
}
