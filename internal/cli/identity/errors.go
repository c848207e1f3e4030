package identity

import (
	"context"
	"errors"
	"net"
)

// AuthErrorKind classifies a failed sign-in, registration or sign-out.
type AuthErrorKind int

const (
	InvalidCredentials AuthErrorKind = iota + 1
	AccountExistsElsewhere
	NetworkError
)

func (k AuthErrorKind) String() string {
	switch k {
	case InvalidCredentials:
		return "invalid credentials"
	case AccountExistsElsewhere:
		return "account exists elsewhere"
	case NetworkError:
		return "network error"
	default:
		return "auth error"
	}
}

// AuthError is the single, classified failure surfaced to callers.
// Message is meant to be shown to the user as is.
type AuthError struct {
	Kind AuthErrorKind
	// Provider is the provider the email is bound to (AccountExistsElsewhere only).
	Provider string
	Message  string
	Err      error
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.String()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches any *AuthError of the same kind, so callers can write
// errors.Is(err, identity.ErrInvalidCredentials).
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is
var (
	ErrInvalidCredentials     = &AuthError{Kind: InvalidCredentials}
	ErrAccountExistsElsewhere = &AuthError{Kind: AccountExistsElsewhere}
	ErrNetwork                = &AuthError{Kind: NetworkError}
)

// ErrSuperseded is returned when a newer sign-in, registration or sign-out
// started while this one was waiting on the backend.
var ErrSuperseded = errors.New("identity changed while the operation was in flight")

func isNetwork(err error) bool {
	if errors.Is(err, ErrUnreachable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func networkError(err error) *AuthError {
	return &AuthError{
		Kind:    NetworkError,
		Message: "could not reach the sign-in service; check your connection and try again",
		Err:     err,
	}
}

func providerName(provider string) string {
	switch provider {
	case ProviderGoogle:
		return "Google"
	case ProviderPassword:
		return "email and password"
	default:
		return provider
	}
}
