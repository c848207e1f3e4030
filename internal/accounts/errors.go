package accounts

import "errors"

var (
	// ErrInvalidCredentials is returned when an email/password pair does
	// not identify an account. Callers that need to know why look up the
	// account's sign-in methods.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrEmailExists is returned by SignUp when any account, under any
	// provider, already owns the email.
	ErrEmailExists = errors.New("email already registered")

	// ErrNotFound is returned when an account does not exist
	ErrNotFound = errors.New("account not found")

	// ErrInvalidRefreshToken covers unknown, expired, revoked and rotated tokens
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrInvalidResetCode covers unknown, expired and used reset codes
	ErrInvalidResetCode = errors.New("invalid or expired reset code")

	// ErrUnsupportedProvider is returned for federated providers other than Google
	ErrUnsupportedProvider = errors.New("unsupported identity provider")

	// ErrProviderRejected is returned when the federated provider refuses the access token
	ErrProviderRejected = errors.New("identity provider rejected the credential")
)

// ValidationError describes malformed input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
