package authclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/careerpath-dev/careerpath/internal/cli/identity"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignIn signs in with email and password
func (c *Client) SignIn(ctx context.Context, email, password string) (*identity.User, error) {
	return c.establish(ctx, "/v1/accounts/sign-in", credentials{Email: email, Password: password})
}

// Register creates a password account and signs it in
func (c *Client) Register(ctx context.Context, email, password string) (*identity.User, error) {
	return c.establish(ctx, "/v1/accounts/sign-up", credentials{Email: email, Password: password})
}

// SignInFederated obtains a Google access token from the federated source
// and exchanges it for a careerpath session.
func (c *Client) SignInFederated(ctx context.Context) (*identity.User, error) {
	if c.federated == nil {
		return nil, fmt.Errorf("%w: federated sign-in is not configured", identity.ErrRejected)
	}

	accessToken, err := c.federated.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	return c.establish(ctx, "/v1/accounts/federated", map[string]string{
		"provider":     identity.ProviderGoogle,
		"access_token": accessToken,
	})
}

// FederatedConfigured reports whether SignInFederated has a source
func (c *Client) FederatedConfigured() bool {
	return c.federated != nil
}

func (c *Client) establish(ctx context.Context, path string, body any) (*identity.User, error) {
	c.opMu.Lock()
	var resp sessionResponse
	if err := c.post(ctx, path, body, &resp); err != nil {
		c.opMu.Unlock()
		return nil, err
	}
	st := c.stateFrom(&resp)
	c.setState(st)
	c.opMu.Unlock()

	user := st.user()
	c.log.Debug().Str("uid", user.UID).Msg("Session established")
	c.emit(user)
	return user, nil
}

// SignOut ends the local session and revokes its refresh token. A failed
// revocation is logged; the local session is gone either way.
func (c *Client) SignOut(ctx context.Context) error {
	c.opMu.Lock()
	st := c.snapshot()
	if st == nil {
		c.opMu.Unlock()
		return identity.ErrSignedOut
	}
	c.setState(nil)
	c.opMu.Unlock()

	c.emit(nil)

	if err := c.post(ctx, "/v1/accounts/sign-out", map[string]string{"refresh_token": st.RefreshToken}, nil); err != nil {
		c.log.Warn().Err(err).Str("uid", st.UID).Msg("Failed to revoke refresh token")
	}
	return nil
}

// Token returns the cached ID token while it has more than a minute left,
// otherwise redeems the refresh token. A refresh token the server no longer
// accepts ends the session.
func (c *Client) Token(ctx context.Context, forceRefresh bool) (string, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	st := c.snapshot()
	if st == nil {
		return "", identity.ErrSignedOut
	}
	if !forceRefresh && c.now().Add(refreshMargin).Before(st.ExpiresAt) {
		return st.IDToken, nil
	}

	var resp sessionResponse
	if err := c.post(ctx, "/v1/token", map[string]string{"refresh_token": st.RefreshToken}, &resp); err != nil {
		if errors.Is(err, identity.ErrRejected) {
			c.log.Info().Str("uid", st.UID).Msg("Refresh token no longer accepted, signing out")
			c.setState(nil)
			// Listeners may be running Token right now; deliver later.
			go c.emit(nil)
			return "", fmt.Errorf("%w: session expired", identity.ErrSignedOut)
		}
		return "", err
	}

	next := c.stateFrom(&resp)
	c.setState(next)
	return next.IDToken, nil
}

// SignInMethods lists the providers bound to email
func (c *Client) SignInMethods(ctx context.Context, email string) ([]string, error) {
	var resp struct {
		Methods []string `json:"methods"`
	}
	if err := c.post(ctx, "/v1/accounts/lookup", map[string]string{"email": email}, &resp); err != nil {
		return nil, err
	}
	return resp.Methods, nil
}

// SendPasswordReset asks the server to issue a reset code. Whether the
// account exists is not revealed.
func (c *Client) SendPasswordReset(ctx context.Context, email string) error {
	err := c.post(ctx, "/v1/accounts/password-reset", map[string]string{"email": email}, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == 404 {
		return nil
	}
	return err
}

// ConfirmPasswordReset sets a new password with a reset code
func (c *Client) ConfirmPasswordReset(ctx context.Context, code, newPassword string) error {
	return c.post(ctx, "/v1/accounts/password-reset/confirm", map[string]string{
		"code":     code,
		"password": newPassword,
	}, nil)
}
