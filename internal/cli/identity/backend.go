package identity

import (
	"context"
	"errors"
	"slices"
)

// Provider identifiers reported by SignInMethods
const (
	ProviderPassword = "password"
	ProviderGoogle   = "google.com"
)

// Errors an auth backend reports. Provider uses them to classify failures;
// any other error is treated as an unexpected backend failure.
var (
	// ErrRejected means the backend refused the credentials or request.
	ErrRejected = errors.New("auth backend rejected the request")
	// ErrEmailInUse means an account already exists for the email.
	ErrEmailInUse = errors.New("email already in use")
	// ErrUnreachable means the backend could not be contacted.
	ErrUnreachable = errors.New("auth backend unreachable")
	// ErrSignedOut means the operation requires a signed-in user.
	ErrSignedOut = errors.New("no user is signed in")
)

// User is the auth backend's view of the signed-in account.
type User struct {
	UID       string
	Email     string
	Providers []string
}

// HasProvider reports whether the account can sign in with provider.
func (u *User) HasProvider(provider string) bool {
	return slices.Contains(u.Providers, provider)
}

// Backend is the external auth service the Provider delegates to.
type Backend interface {
	// OnIdentityChange registers fn to receive the signed-in user (nil when
	// signed out) on every identity change. It returns a disposer.
	OnIdentityChange(fn func(*User)) (unsubscribe func())

	SignIn(ctx context.Context, email, password string) (*User, error)
	SignInFederated(ctx context.Context) (*User, error)
	Register(ctx context.Context, email, password string) (*User, error)
	SignOut(ctx context.Context) error

	// Token returns a bearer token for the current user, redeeming a fresh
	// one when forceRefresh is set or the cached one is about to expire.
	Token(ctx context.Context, forceRefresh bool) (string, error)

	// SignInMethods lists the provider identifiers bound to email.
	SignInMethods(ctx context.Context, email string) ([]string, error)

	SendPasswordReset(ctx context.Context, email string) error

	// CurrentUser returns the signed-in user or nil.
	CurrentUser() *User
}
