package models

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// Provider identifiers stored in ProviderLink.Provider
const (
	ProviderPassword = "password"
	ProviderGoogle   = "google.com"
)

// BaseModel provides common fields and auto-generated ULID for all models
type BaseModel struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(26)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// BeforeCreate generates a ULID for the ID field if it's empty
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = ulid.Make().String()
	}
	return nil
}

// Config represents the signing configuration of the auth server
// This is a singleton model (only one row should exist)
type Config struct {
	BaseModel
	JWTSecret string `json:"-" gorm:"type:varchar(64);not null"` // Auto-generated on first start (64 hex chars)
}

// Account is one end-user identity. Email is stored normalized.
type Account struct {
	BaseModel
	Email        string    `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string    `json:"-"` // empty for federated-only accounts
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Providers []ProviderLink `json:"providers,omitempty" gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE"`
}

// ProviderNames lists the sign-in methods bound to the account, sorted
func (a *Account) ProviderNames() []string {
	names := make([]string, 0, len(a.Providers))
	for _, p := range a.Providers {
		names = append(names, p.Provider)
	}
	slices.Sort(names)
	return names
}

// HasProvider reports whether the account can sign in with provider
func (a *Account) HasProvider(provider string) bool {
	for _, p := range a.Providers {
		if p.Provider == provider {
			return true
		}
	}
	return false
}

// ProviderLink binds a sign-in method to an account
type ProviderLink struct {
	BaseModel
	AccountID string `json:"account_id" gorm:"not null;uniqueIndex:idx_account_provider"`
	Provider  string `json:"provider" gorm:"not null;uniqueIndex:idx_account_provider"`
	Subject   string `json:"subject"` // provider-side user id, empty for password
}

// RefreshToken is a long-lived credential. Only its SHA-256 is stored.
type RefreshToken struct {
	BaseModel
	AccountID string     `json:"account_id" gorm:"not null;index"`
	TokenHash string     `json:"-" gorm:"uniqueIndex;not null"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"not null"`
	RevokedAt *time.Time `json:"revoked_at"`
}

// Active reports whether the token can still be redeemed at now
func (r *RefreshToken) Active(now time.Time) bool {
	return r.RevokedAt == nil && now.Before(r.ExpiresAt)
}

// PasswordReset is a single-use password reset code
type PasswordReset struct {
	BaseModel
	AccountID string     `json:"account_id" gorm:"not null;index"`
	CodeHash  string     `json:"-" gorm:"uniqueIndex;not null"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"not null"`
	UsedAt    *time.Time `json:"used_at"`
}

// AutoMigrate runs database migrations for all models
func AutoMigrate(db *gorm.DB) error {
	// Collect all models
	models := []interface{}{
		&Config{}, &Account{}, &ProviderLink{}, &RefreshToken{}, &PasswordReset{},
	}

	return db.AutoMigrate(models...)
}

// EnsureConfig returns the singleton config row, creating it with a fresh
// random JWT secret on first use.
func EnsureConfig(db *gorm.DB) (*Config, error) {
	var cfg Config
	err := db.First(&cfg).Error
	if err == nil {
		return &cfg, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	cfg = Config{JWTSecret: hex.EncodeToString(secret)}
	if err := db.Create(&cfg).Error; err != nil {
		return nil, fmt.Errorf("failed to create config: %w", err)
	}
	return &cfg, nil
}

// FindByID safely finds a record by string ID
func FindByID[T any](db *gorm.DB, id string, model *T) error {
	return db.Where("id = ?", id).First(model).Error
}

// FindByIDWithPreload finds a record by ID with preloading
func FindByIDWithPreload[T any](db *gorm.DB, id string, model *T, preloads ...string) error {
	query := db
	for _, preload := range preloads {
		query = query.Preload(preload)
	}
	return query.Where("id = ?", id).First(model).Error
}
