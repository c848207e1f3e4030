// Package app assembles the CLI's long-lived components for one
// environment and owns their lifetime.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/careerpath-dev/careerpath/internal/cli/authclient"
	"github.com/careerpath-dev/careerpath/internal/cli/config"
	"github.com/careerpath-dev/careerpath/internal/cli/freshness"
	"github.com/careerpath-dev/careerpath/internal/cli/gateway"
	"github.com/careerpath-dev/careerpath/internal/cli/identity"
	"github.com/careerpath-dev/careerpath/internal/cli/storage"
	"github.com/careerpath-dev/careerpath/internal/cli/userconfig"
)

// EnvGoogleClientSecret holds the OAuth client secret for Google sign-in
const EnvGoogleClientSecret = "CAREERPATH_GOOGLE_CLIENT_SECRET"

// App holds the single instance of every component for an environment.
// Components are passed explicitly; nothing here is global.
type App struct {
	Env      *config.Environment
	Store    storage.Store
	Auth     *authclient.Client
	Identity *identity.Provider
	Gateway  *gateway.Client
	Bus      *freshness.Bus

	log         zerolog.Logger
	stopObserve func()
}

type options struct {
	store      storage.Store
	httpClient *http.Client
	federated  authclient.FederatedSource
	prompt     authclient.DevicePrompt
}

// Option configures New
type Option func(*options)

// WithStore replaces the store selected by the environment
func WithStore(store storage.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithHTTPClient is used for both the auth backend and the API gateway
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *options) {
		o.httpClient = httpClient
	}
}

// WithFederatedSource overrides the Google device flow
func WithFederatedSource(src authclient.FederatedSource) Option {
	return func(o *options) {
		o.federated = src
	}
}

// WithDevicePrompt sets how the device flow shows its verification code
func WithDevicePrompt(prompt authclient.DevicePrompt) Option {
	return func(o *options) {
		o.prompt = prompt
	}
}

// New builds the components for env and starts the identity observation.
// Call Close when done.
func New(env *config.Environment, log zerolog.Logger, opts ...Option) (*App, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	store := o.store
	if store == nil {
		var err error
		store, err = OpenStore(env)
		if err != nil {
			return nil, err
		}
	}

	var authOpts []authclient.Option
	if o.httpClient != nil {
		authOpts = append(authOpts, authclient.WithHTTPClient(o.httpClient))
	}
	switch {
	case o.federated != nil:
		authOpts = append(authOpts, authclient.WithFederatedSource(o.federated))
	case env.GoogleClientID != "":
		oauthCfg := authclient.GoogleOAuthConfig(env.GoogleClientID, os.Getenv(EnvGoogleClientSecret))
		authOpts = append(authOpts, authclient.WithFederatedSource(authclient.NewDeviceFlow(oauthCfg, o.prompt)))
	}

	auth, err := authclient.New(env.AuthURL, store, log, authOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to restore auth session: %w", err)
	}

	provider, err := identity.NewProvider(store, auth, log)
	if err != nil {
		_ = auth.Close()
		return nil, fmt.Errorf("failed to restore identity: %w", err)
	}

	var gwOpts []gateway.Option
	if o.httpClient != nil {
		gwOpts = append(gwOpts, gateway.WithHTTPClient(o.httpClient))
	}

	a := &App{
		Env:      env,
		Store:    store,
		Auth:     auth,
		Identity: provider,
		Gateway:  gateway.New(env.APIURL, provider, gwOpts...),
		Bus:      freshness.NewBus(log),
		log:      log.With().Str("component", "app").Str("env", env.Name).Logger(),
	}

	a.stopObserve = provider.Observe(func(s identity.Session) {
		a.log.Debug().Bool("signed_in", s.SignedIn()).Msg("Identity changed")
	})
	return a, nil
}

// OpenStore returns the durable store selected by env, scoped to the
// environment so several environments can be signed in side by side.
func OpenStore(env *config.Environment) (storage.Store, error) {
	switch env.StorageMedium() {
	case config.StorageMemory:
		return storage.NewMemoryStore(), nil
	case config.StorageFile:
		dir, err := userconfig.Dir()
		if err != nil {
			return nil, err
		}
		return storage.NewFileStore(filepath.Join(dir, fmt.Sprintf("session-%s.json", env.Name))), nil
	case config.StorageKeyring:
		return storage.Namespace(storage.NewKeyringStore(""), env.Name), nil
	}
	return nil, fmt.Errorf("unknown storage medium %q", env.Storage)
}

// Close stops the identity observation and the token refresh schedule
func (a *App) Close() error {
	if a.stopObserve != nil {
		a.stopObserve()
		a.stopObserve = nil
	}
	return a.Auth.Close()
}

// Watch keeps tokens fresh in the background for long-running commands
func (a *App) Watch() error {
	return a.Auth.StartRefresh()
}

// mutate runs a state-changing call and signals data-updated only after
// the gateway reported success.
func (a *App) mutate(op string, call func() error) error {
	if err := call(); err != nil {
		return err
	}
	n := a.Bus.Publish(freshness.TopicDataUpdated)
	a.log.Debug().Str("op", op).Int("listeners", n).Msg("Published data update")
	return nil
}

// SubmitAptitude submits a test result
func (a *App) SubmitAptitude(ctx context.Context, sub gateway.AptitudeSubmission) (json.RawMessage, error) {
	var result json.RawMessage
	err := a.mutate("submit_aptitude", func() (err error) {
		result, err = a.Gateway.SubmitAptitude(ctx, sub)
		return err
	})
	return result, err
}

// SaveProfile saves the student profile
func (a *App) SaveProfile(ctx context.Context, profile map[string]any) (json.RawMessage, error) {
	var result json.RawMessage
	err := a.mutate("save_profile", func() (err error) {
		result, err = a.Gateway.SaveProfile(ctx, profile)
		return err
	})
	return result, err
}

// AddPortfolio adds a portfolio item
func (a *App) AddPortfolio(ctx context.Context, item gateway.PortfolioItem) (*gateway.PortfolioItem, error) {
	var created *gateway.PortfolioItem
	err := a.mutate("add_portfolio", func() (err error) {
		created, err = a.Gateway.AddPortfolio(ctx, item)
		return err
	})
	return created, err
}

// DeletePortfolio removes a portfolio item
func (a *App) DeletePortfolio(ctx context.Context, id string) error {
	return a.mutate("delete_portfolio", func() error {
		return a.Gateway.DeletePortfolio(ctx, id)
	})
}

// AdminDelete removes an admin-managed record
func (a *App) AdminDelete(ctx context.Context, resource gateway.AdminResource, id string) error {
	return a.mutate("admin_delete", func() error {
		return a.Gateway.AdminDelete(ctx, resource, id)
	})
}
