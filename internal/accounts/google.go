package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// DefaultGoogleUserInfoURL is Google's OAuth2 userinfo endpoint
const DefaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// FederatedProfile is the subset of a federated profile we rely on
type FederatedProfile struct {
	Subject       string
	Email         string
	EmailVerified bool
}

// FederatedVerifier turns a provider access token into a profile
type FederatedVerifier interface {
	Verify(ctx context.Context, accessToken string) (*FederatedProfile, error)
}

// GoogleVerifier resolves Google access tokens through the userinfo endpoint
type GoogleVerifier struct {
	userInfoURL string
	base        *http.Client
}

// NewGoogleVerifier creates a verifier. An empty URL selects Google's endpoint.
func NewGoogleVerifier(userInfoURL string, base *http.Client) *GoogleVerifier {
	if userInfoURL == "" {
		userInfoURL = DefaultGoogleUserInfoURL
	}
	if base == nil {
		base = http.DefaultClient
	}
	return &GoogleVerifier{userInfoURL: userInfoURL, base: base}
}

type googleUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
}

// Verify fetches the profile that owns accessToken
func (g *GoogleVerifier) Verify(ctx context.Context, accessToken string) (*FederatedProfile, error) {
	if accessToken == "" {
		return nil, ErrProviderRejected
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.base)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrProviderRejected
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("userinfo request failed: %s", resp.Status)
	}

	var user googleUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if user.Email == "" || user.ID == "" {
		return nil, fmt.Errorf("%w: google profile missing id or email", ErrProviderRejected)
	}

	return &FederatedProfile{
		Subject:       user.ID,
		Email:         user.Email,
		EmailVerified: user.VerifiedEmail,
	}, nil
}
