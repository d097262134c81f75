package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/carbonmax/carbonmax/internal/apperrors"
	"github.com/carbonmax/carbonmax/internal/logging"
	"github.com/carbonmax/carbonmax/internal/reference"
	"github.com/carbonmax/carbonmax/internal/wallet"
)

const minPasswordLength = 8

// ErrInvalidCredentials is returned for an unknown email or a wrong password.
var ErrInvalidCredentials = errors.New("invalid email or password")

// WalletProvisioner opens the wallet of a new account.
type WalletProvisioner interface {
	GetOrCreate(ctx context.Context, ownerID string) (wallet.Wallet, error)
}

// Service manages identity lifecycle.
type Service struct {
	repo    Repository
	wallets WalletProvisioner
	tables  *reference.Tables
	logger  *slog.Logger
}

// NewService creates a new identity service. wallets may be nil.
func NewService(repo Repository, wallets WalletProvisioner, tables *reference.Tables, logger *slog.Logger) *Service {
	if tables == nil {
		tables = reference.Default()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{repo: repo, wallets: wallets, tables: tables, logger: logger}
}

// Register creates a seller or buyer account with a hashed password and an empty wallet.
func (s *Service) Register(ctx context.Context, reg Registration) (User, error) {
	if reg.Role != RoleSeller && reg.Role != RoleBuyer {
		return User{}, fmt.Errorf("%w: role must be seller or buyer", apperrors.ErrValidation)
	}
	return s.create(ctx, reg)
}

// EnsureAdmin creates the bootstrap admin account unless the email is already registered.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (User, error) {
	existing, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return User{}, err
	}
	return s.create(ctx, Registration{Email: email, Password: password, Role: RoleAdmin})
}

func (s *Service) create(ctx context.Context, reg Registration) (User, error) {
	email := normalizeEmail(reg.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return User{}, fmt.Errorf("%w: invalid email", apperrors.ErrValidation)
	}
	if len(reg.Password) < minPasswordLength {
		return User{}, fmt.Errorf("%w: password must be at least %d characters", apperrors.ErrValidation, minPasswordLength)
	}
	if err := s.checkProfile(reg.Profile); err != nil {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:           uuid.New().String(),
		Email:        email,
		Role:         reg.Role,
		PasswordHash: hash,
		Profile:      reg.Profile,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	if s.wallets != nil && user.Role != RoleAdmin {
		if _, err := s.wallets.GetOrCreate(ctx, user.ID); err != nil {
			s.logger.Error("provision wallet failed", slog.String("user_id", user.ID), slog.Any("error", err))
			return User{}, err
		}
	}
	s.logger.Info("account registered", slog.String("user_id", user.ID), slog.String("role", string(user.Role)))
	return user, nil
}

func (s *Service) checkProfile(p Profile) error {
	if p.Region != "" {
		if _, ok := s.tables.Region(p.Region); !ok {
			return fmt.Errorf("%w: unknown region %q", apperrors.ErrValidation, p.Region)
		}
	}
	return nil
}

// Authenticate verifies credentials and records the login.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (User, error) {
	user, err := s.repo.FindByEmail(ctx, normalizeEmail(creds.Email))
	if errors.Is(err, apperrors.ErrNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(creds.Password)); err != nil {
		return User{}, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if err := s.repo.TouchLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("record login failed", slog.String("user_id", user.ID), slog.Any("error", err))
	} else {
		user.LastLogin = &now
	}
	return user, nil
}

// Get returns an account by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// UpdateProfile replaces an account's profile.
func (s *Service) UpdateProfile(ctx context.Context, id string, p Profile) (User, error) {
	if err := s.checkProfile(p); err != nil {
		return User{}, err
	}
	if err := s.repo.UpdateProfile(ctx, id, p); err != nil {
		return User{}, err
	}
	return s.repo.FindByID(ctx, id)
}

// Region returns the home region of an account, or "" when unknown.
func (s *Service) Region(ctx context.Context, id string) string {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return ""
	}
	return user.Profile.Region
}

// CountByRole counts accounts per role.
func (s *Service) CountByRole(ctx context.Context) (map[Role]int, error) {
	return s.repo.CountByRole(ctx)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
