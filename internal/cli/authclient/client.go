// Package authclient implements identity.Backend against careerpath-auth.
//
// The client keeps the signed-in account and its tokens in memory and in
// the session store under StateKey, so a later process resumes the same
// session. Identity changes are delivered to OnIdentityChange listeners
// after the operation that caused them has released every internal lock,
// which lets listeners call straight back into the client.
package authclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/careerpath-dev/careerpath/internal/auth"
	"github.com/careerpath-dev/careerpath/internal/cli/identity"
	"github.com/careerpath-dev/careerpath/internal/cli/storage"
)

const (
	// StateKey is the storage key holding the signed-in account
	StateKey = "auth_user"

	// DefaultRefreshSchedule refreshes ID tokens well before the server's
	// default one hour lifetime runs out
	DefaultRefreshSchedule = "@every 45m"

	// refreshMargin is the minimum remaining validity of a cached token
	refreshMargin = time.Minute
)

var _ identity.Backend = (*Client)(nil)

// state is the persisted signed-in account
type state struct {
	UID          string    `json:"uid"`
	Email        string    `json:"email"`
	Providers    []string  `json:"providers"`
	IDToken      string    `json:"id_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (s *state) user() *identity.User {
	return &identity.User{
		UID:       s.UID,
		Email:     s.Email,
		Providers: append([]string(nil), s.Providers...),
	}
}

// Client talks to careerpath-auth
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      storage.Store
	log        zerolog.Logger
	federated  FederatedSource
	schedule   string
	now        func() time.Time

	// opMu serializes operations that replace the signed-in account
	opMu sync.Mutex

	stateMu sync.RWMutex
	state   *state

	lisMu        sync.Mutex
	listeners    map[uint64]func(*identity.User)
	nextListener uint64
	// emitMu keeps deliveries in the order the changes happened
	emitMu sync.Mutex

	cronMu sync.Mutex
	cron   *cron.Cron
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithFederatedSource enables SignInFederated
func WithFederatedSource(src FederatedSource) Option {
	return func(c *Client) {
		c.federated = src
	}
}

// WithRefreshSchedule overrides DefaultRefreshSchedule. Any robfig/cron
// schedule expression is accepted.
func WithRefreshSchedule(expr string) Option {
	return func(c *Client) {
		c.schedule = expr
	}
}

// WithClock overrides the time source used for token expiry decisions
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates a client and restores a persisted session from store
func New(baseURL string, store storage.Store, log zerolog.Logger, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		store:     store,
		log:       log.With().Str("component", "authclient").Logger(),
		schedule:  DefaultRefreshSchedule,
		now:       time.Now,
		listeners: make(map[uint64]func(*identity.User)),
	}
	for _, opt := range opts {
		opt(c)
	}

	st, err := c.load()
	if err != nil {
		return nil, err
	}
	c.state = st
	return c, nil
}

// CurrentUser returns the signed-in user or nil
func (c *Client) CurrentUser() *identity.User {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	if c.state == nil {
		return nil
	}
	return c.state.user()
}

// ExpiresAt returns the expiry of the cached ID token, zero when signed out
func (c *Client) ExpiresAt() time.Time {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	if c.state == nil {
		return time.Time{}
	}
	return c.state.ExpiresAt
}

// OnIdentityChange registers fn for identity changes. fn is called once with
// the current user (nil when signed out) before OnIdentityChange returns.
func (c *Client) OnIdentityChange(fn func(*identity.User)) (unsubscribe func()) {
	c.lisMu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.lisMu.Unlock()

	c.emitMu.Lock()
	fn(c.CurrentUser())
	c.emitMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.lisMu.Lock()
			delete(c.listeners, id)
			c.lisMu.Unlock()
		})
	}
}

// emit delivers user to every listener. Callers must not hold opMu or stateMu.
func (c *Client) emit(user *identity.User) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.lisMu.Lock()
	fns := make([]func(*identity.User), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.lisMu.Unlock()

	for _, fn := range fns {
		fn(user)
	}
}

func (c *Client) snapshot() *state {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	if c.state == nil {
		return nil
	}
	cp := *c.state
	return &cp
}

// setState replaces the signed-in account and persists it. A persistence
// failure is logged: the session stays usable for this process.
func (c *Client) setState(st *state) {
	c.stateMu.Lock()
	c.state = st
	c.stateMu.Unlock()

	if err := c.save(st); err != nil {
		c.log.Warn().Err(err).Msg("Failed to persist auth session")
	}
}

func (c *Client) load() (*state, error) {
	raw, ok, err := c.store.Get(StateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load auth session: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}

	var st state
	if err := json.Unmarshal([]byte(raw), &st); err != nil || st.UID == "" || st.RefreshToken == "" {
		c.log.Warn().Msg("Discarding unreadable auth session")
		if rerr := c.store.Remove(StateKey); rerr != nil {
			return nil, rerr
		}
		return nil, nil
	}
	return &st, nil
}

func (c *Client) save(st *state) error {
	if st == nil {
		return c.store.Remove(StateKey)
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode auth session: %w", err)
	}
	return c.store.Set(StateKey, string(data))
}

// stateFrom builds the account state from a session response. The expiry
// comes from the token's own exp claim when it can be read.
func (c *Client) stateFrom(resp *sessionResponse) *state {
	expiresAt := resp.ExpiresAt
	if exp, err := auth.ExpiresAt(resp.IDToken); err == nil {
		expiresAt = exp
	}
	return &state{
		UID:          resp.User.UID,
		Email:        resp.User.Email,
		Providers:    resp.User.Providers,
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiresAt,
	}
}
