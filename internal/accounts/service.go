// Package accounts implements the account store behind careerpath-auth:
// password and federated sign-in, refresh token rotation and password
// reset codes.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/careerpath-dev/careerpath/internal/auth"
	"github.com/careerpath-dev/careerpath/internal/models"
)

// ResetCodeTTL is how long a password reset code stays redeemable
const ResetCodeTTL = 30 * time.Minute

const opaqueTokenBytes = 32

// Session is the result of every successful sign-in, sign-up or refresh
type Session struct {
	Account      *models.Account
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

// Service manages accounts
type Service struct {
	db         *gorm.DB
	issuer     *auth.Issuer
	federated  map[string]FederatedVerifier
	refreshTTL time.Duration
	validate   *validator.Validate
	logger     zerolog.Logger
	now        func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithFederatedVerifier registers the verifier for a federated provider
func WithFederatedVerifier(provider string, v FederatedVerifier) Option {
	return func(s *Service) {
		s.federated[provider] = v
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new accounts service
func NewService(db *gorm.DB, issuer *auth.Issuer, refreshTTL time.Duration, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		db:         db,
		issuer:     issuer,
		federated:  make(map[string]FederatedVerifier),
		refreshTTL: refreshTTL,
		validate:   validator.New(),
		logger:     logger.With().Str("service", "accounts").Logger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeEmail trims and lowercases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) checkEmail(email string) error {
	if err := s.validate.Var(email, "required,email"); err != nil {
		return &ValidationError{Field: "email", Message: "must be a valid email address"}
	}
	return nil
}

// SignUp creates a password account. Any existing account with the same
// email, whatever its providers, makes this fail with ErrEmailExists.
func (s *Service) SignUp(ctx context.Context, email, password string) (*Session, error) {
	email = NormalizeEmail(email)
	if err := s.checkEmail(email); err != nil {
		return nil, err
	}
	if len(password) < auth.MinPasswordLength {
		return nil, &ValidationError{
			Field:   "password",
			Message: fmt.Sprintf("must be at least %d characters", auth.MinPasswordLength),
		}
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	account := models.Account{
		Email:        email,
		PasswordHash: hash,
		Providers:    []models.ProviderLink{{Provider: models.ProviderPassword}},
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Account{}).Where("email = ?", email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrEmailExists
		}
		return tx.Create(&account).Error
	})
	if err != nil {
		if errors.Is(err, ErrEmailExists) || errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info().Str("account_id", account.ID).Msg("Account created")

	return s.issue(ctx, &account)
}

// SignIn authenticates with email and password
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	account, err := s.findByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	// Federated-only accounts have no password to check
	if account.PasswordHash == "" || !account.HasProvider(models.ProviderPassword) {
		return nil, ErrInvalidCredentials
	}

	if err := auth.CheckPassword(account.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	return s.issue(ctx, account)
}

// Lookup returns the sign-in methods bound to email. An unknown email
// yields an empty list, not an error.
func (s *Service) Lookup(ctx context.Context, email string) ([]string, error) {
	account, err := s.findByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []string{}, nil
		}
		return nil, err
	}
	return account.ProviderNames(), nil
}

// SignInFederated signs in with a federated provider access token,
// creating the account on first use. An existing account with the same
// email gains the provider only when the provider vouches for the email.
func (s *Service) SignInFederated(ctx context.Context, provider, accessToken string) (*Session, error) {
	verifier, ok := s.federated[provider]
	if !ok {
		return nil, ErrUnsupportedProvider
	}

	profile, err := verifier.Verify(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	email := NormalizeEmail(profile.Email)

	var account models.Account
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Preload("Providers").Where("email = ?", email).First(&account).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			account = models.Account{
				Email:     email,
				Providers: []models.ProviderLink{{Provider: provider, Subject: profile.Subject}},
			}
			return tx.Create(&account).Error
		case err != nil:
			return err
		}

		if account.HasProvider(provider) {
			return nil
		}
		if !profile.EmailVerified {
			return ErrEmailExists
		}
		link := models.ProviderLink{AccountID: account.ID, Provider: provider, Subject: profile.Subject}
		if err := tx.Create(&link).Error; err != nil {
			return err
		}
		account.Providers = append(account.Providers, link)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrEmailExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to resolve federated account: %w", err)
	}

	return s.issue(ctx, &account)
}

// Refresh redeems a refresh token for a new session. The token is rotated:
// redeeming it again fails and revokes every token of the account.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	now := s.now()

	var record models.RefreshToken
	err := s.db.WithContext(ctx).
		Where("token_hash = ?", auth.HashOpaqueToken(refreshToken)).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("failed to load refresh token: %w", err)
	}

	if record.RevokedAt != nil {
		s.logger.Warn().Str("account_id", record.AccountID).Msg("Revoked refresh token reused, revoking all sessions")
		if err := s.revokeAll(ctx, record.AccountID); err != nil {
			return nil, err
		}
		return nil, ErrInvalidRefreshToken
	}
	if !record.Active(now) {
		return nil, ErrInvalidRefreshToken
	}

	res := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("id = ? AND revoked_at IS NULL", record.ID).
		Update("revoked_at", now)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to rotate refresh token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Lost a race with a concurrent redemption
		return nil, ErrInvalidRefreshToken
	}

	account, err := s.Get(ctx, record.AccountID)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, account)
}

// SignOut revokes a refresh token. Unknown tokens are not an error.
func (s *Service) SignOut(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	err := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", auth.HashOpaqueToken(refreshToken)).
		Update("revoked_at", s.now()).Error
	if err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// RequestPasswordReset issues a single-use reset code for email
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	account, err := s.findByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return "", err
	}

	code, err := auth.NewOpaqueToken(opaqueTokenBytes)
	if err != nil {
		return "", err
	}

	reset := models.PasswordReset{
		AccountID: account.ID,
		CodeHash:  auth.HashOpaqueToken(code),
		ExpiresAt: s.now().Add(ResetCodeTTL),
	}
	if err := s.db.WithContext(ctx).Create(&reset).Error; err != nil {
		return "", fmt.Errorf("failed to store reset code: %w", err)
	}

	return code, nil
}

// ConfirmPasswordReset sets a new password using a reset code. The account
// gains the password provider if it did not have it, and every existing
// refresh token is revoked.
func (s *Service) ConfirmPasswordReset(ctx context.Context, code, newPassword string) error {
	if len(newPassword) < auth.MinPasswordLength {
		return &ValidationError{
			Field:   "password",
			Message: fmt.Sprintf("must be at least %d characters", auth.MinPasswordLength),
		}
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	now := s.now()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reset models.PasswordReset
		err := tx.Where("code_hash = ?", auth.HashOpaqueToken(code)).First(&reset).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidResetCode
		}
		if err != nil {
			return fmt.Errorf("failed to load reset code: %w", err)
		}
		if reset.UsedAt != nil || !now.Before(reset.ExpiresAt) {
			return ErrInvalidResetCode
		}

		res := tx.Model(&models.PasswordReset{}).
			Where("id = ? AND used_at IS NULL", reset.ID).
			Update("used_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidResetCode
		}

		if err := tx.Model(&models.Account{}).
			Where("id = ?", reset.AccountID).
			Update("password_hash", hash).Error; err != nil {
			return err
		}

		var links int64
		if err := tx.Model(&models.ProviderLink{}).
			Where("account_id = ? AND provider = ?", reset.AccountID, models.ProviderPassword).
			Count(&links).Error; err != nil {
			return err
		}
		if links == 0 {
			link := models.ProviderLink{AccountID: reset.AccountID, Provider: models.ProviderPassword}
			if err := tx.Create(&link).Error; err != nil {
				return err
			}
		}

		return tx.Model(&models.RefreshToken{}).
			Where("account_id = ? AND revoked_at IS NULL", reset.AccountID).
			Update("revoked_at", now).Error
	})
}

// Get loads an account with its providers
func (s *Service) Get(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	err := models.FindByIDWithPreload(s.db.WithContext(ctx), id, &account, "Providers")
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return &account, nil
}

func (s *Service) findByEmail(ctx context.Context, email string) (*models.Account, error) {
	if email == "" {
		return nil, ErrNotFound
	}
	var account models.Account
	err := s.db.WithContext(ctx).Preload("Providers").Where("email = ?", email).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return &account, nil
}

// issue mints an ID token and stores a fresh refresh token for account
func (s *Service) issue(ctx context.Context, account *models.Account) (*Session, error) {
	idToken, expiresAt, err := s.issuer.GenerateToken(account.ID, account.Email, account.ProviderNames())
	if err != nil {
		return nil, err
	}

	refresh, err := auth.NewOpaqueToken(opaqueTokenBytes)
	if err != nil {
		return nil, err
	}

	record := models.RefreshToken{
		AccountID: account.ID,
		TokenHash: auth.HashOpaqueToken(refresh),
		ExpiresAt: s.now().Add(s.refreshTTL),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &Session{
		Account:      account,
		IDToken:      idToken,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) revokeAll(ctx context.Context, accountID string) error {
	err := s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("account_id = ? AND revoked_at IS NULL", accountID).
		Update("revoked_at", s.now()).Error
	if err != nil {
		return fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
