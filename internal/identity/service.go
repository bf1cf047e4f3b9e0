package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/wallet_ledger/internal/clock"
)

const (
	minPINLength = 4
	maxPINLength = 12
)

var (
	// ErrInvalidEmail is returned when registration is attempted without a usable address.
	ErrInvalidEmail = errors.New("invalid email")

	// ErrInvalidPIN is returned when a PIN is not 4 to 12 digits.
	ErrInvalidPIN = errors.New("PIN must be 4 to 12 digits")

	// ErrInvalidCredentials covers both an unknown email and a wrong PIN.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Option tunes a Service.
type Option func(*Service)

// WithHashCost overrides the bcrypt cost used for new PINs.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

// Service manages the user registry.
type Service struct {
	repo     Repository
	clock    clock.Clock
	hashCost int
}

// NewService creates a new identity service.
func NewService(repo Repository, clk clock.Clock, opts ...Option) *Service {
	if clk == nil {
		clk = clock.RealClock{}
	}
	s := &Service{repo: repo, clock: clk, hashCost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a user with a hashed PIN. An email that is already
// registered yields ErrUserExists; the existing account is never returned.
func (s *Service) Register(ctx context.Context, creds Credentials) (User, error) {
	email, err := normalizeEmail(creds.Email)
	if err != nil {
		return User{}, err
	}
	if !validPIN(creds.PIN) {
		return User{}, ErrInvalidPIN
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.PIN), s.hashCost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      strings.TrimSpace(creds.Name),
		PINHash:   hash,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// Authenticate verifies the PIN for email.
func (s *Service) Authenticate(ctx context.Context, email, pin string) (User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return User{}, ErrInvalidCredentials
	}
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword(user.PINHash, []byte(pin)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Get fetches a user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return email, nil
}

func validPIN(pin string) bool {
	if len(pin) < minPINLength || len(pin) > maxPINLength {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
