package authclient

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/careerpath-dev/careerpath/internal/cli/identity"
)

// FederatedSource yields an access token from a federated identity provider
type FederatedSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// GoogleOAuthConfig returns the OAuth client configuration for Google's
// device authorization grant.
func GoogleOAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}
}

// DevicePrompt shows the user where to enter the device code
type DevicePrompt func(*oauth2.DeviceAuthResponse)

// DeviceFlow runs the OAuth 2.0 device authorization grant (RFC 8628).
type DeviceFlow struct {
	config *oauth2.Config
	prompt DevicePrompt
}

// NewDeviceFlow creates a device flow source
func NewDeviceFlow(config *oauth2.Config, prompt DevicePrompt) *DeviceFlow {
	if prompt == nil {
		prompt = func(*oauth2.DeviceAuthResponse) {}
	}
	return &DeviceFlow{config: config, prompt: prompt}
}

// AccessToken starts the flow and polls until the user approves, denies,
// or the code expires.
func (d *DeviceFlow) AccessToken(ctx context.Context) (string, error) {
	da, err := d.config.DeviceAuth(ctx)
	if err != nil {
		return "", classifyOAuthError("start device authorization", err)
	}

	d.prompt(da)

	token, err := d.config.DeviceAccessToken(ctx, da)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", classifyOAuthError("device authorization", err)
	}
	return token.AccessToken, nil
}

// classifyOAuthError maps an OAuth protocol error (denied, expired) to a
// rejection and anything else to an unreachable provider.
func classifyOAuthError(op string, err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return fmt.Errorf("%w: %s: %w", identity.ErrRejected, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: device code expired", identity.ErrRejected, op)
	}
	return fmt.Errorf("%w: %s: %w", identity.ErrUnreachable, op, err)
}
