// Package identity keeps the CLI's identity triple (bearer token, demo uid,
// demo email) consistent with the auth backend and durable across runs.
//
// The Provider is the only writer of the triple. Every write replaces all
// three values inside one critical section, and readers get a snapshot of
// the last committed triple, so an outbound call never observes a token of
// one user next to the demo headers of another.
package identity

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/careerpath-dev/careerpath/internal/cli/storage"
)

const handlerTimeout = 30 * time.Second

// Provider owns the signed-in user lifecycle.
type Provider struct {
	store   storage.Store
	backend Backend
	log     zerolog.Logger

	// mu guards session and epoch, and serializes every triple write.
	mu      sync.RWMutex
	session Session
	// epoch moves on every explicit sign-in, registration and sign-out.
	// Writes that started under an older epoch are discarded.
	epoch uint64

	// subMu serializes establishing and disposing the backend subscription.
	subMu       sync.Mutex
	unsubscribe func()

	obsMu     sync.Mutex
	observers map[uint64]func(Session)
	nextObs   uint64
}

// NewProvider restores the persisted triple from store. A torn triple left
// behind by an interrupted process is cleared rather than trusted.
func NewProvider(store storage.Store, backend Backend, log zerolog.Logger) (*Provider, error) {
	p := &Provider{
		store:     store,
		backend:   backend,
		log:       log.With().Str("component", "identity").Logger(),
		observers: make(map[uint64]func(Session)),
	}

	s, err := p.readTriple()
	if err != nil {
		return nil, err
	}
	if !s.coherent() {
		p.log.Warn().Msg("Persisted identity is incomplete, clearing it")
		if err := p.writeTriple(Session{}); err != nil {
			return nil, err
		}
		s = Session{}
	}
	p.session = s
	return p, nil
}

// Session returns a snapshot of the current identity triple.
func (p *Provider) Session() Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.session
}

// Observe registers fn to run after every committed identity change. The
// first observer establishes the single backend subscription and the last
// stop disposes it, so repeated Observe calls never duplicate identity
// writes. stop is idempotent and must not be called from inside fn.
func (p *Provider) Observe(fn func(Session)) (stop func()) {
	p.subMu.Lock()
	defer p.subMu.Unlock()

	p.obsMu.Lock()
	id := p.nextObs
	p.nextObs++
	p.observers[id] = fn
	p.obsMu.Unlock()

	if p.unsubscribe == nil {
		p.unsubscribe = p.backend.OnIdentityChange(p.handleIdentityChange)
		p.log.Debug().Msg("Subscribed to identity changes")
	}

	var once sync.Once
	return func() {
		once.Do(func() { p.removeObserver(id) })
	}
}

func (p *Provider) removeObserver(id uint64) {
	p.subMu.Lock()
	defer p.subMu.Unlock()

	p.obsMu.Lock()
	delete(p.observers, id)
	remaining := len(p.observers)
	p.obsMu.Unlock()

	if remaining == 0 && p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
		p.log.Debug().Msg("Unsubscribed from identity changes")
	}
}

// Observers returns the number of registered observers
func (p *Provider) Observers() int {
	p.obsMu.Lock()
	defer p.obsMu.Unlock()
	return len(p.observers)
}

// handleIdentityChange is the backend subscription callback. Failures are
// logged and the subscription stays alive; the next event retries.
func (p *Provider) handleIdentityChange(user *User) {
	if user == nil {
		// A late sign-out event must not clear a newer sign-in.
		if p.backend.CurrentUser() != nil {
			p.log.Debug().Msg("Ignoring stale sign-out event")
			return
		}
		if err := p.clear(); err != nil {
			p.log.Error().Err(err).Msg("Failed to clear identity after sign-out event")
		}
		return
	}

	epoch := p.currentEpoch()

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	token, err := p.backend.Token(ctx, false)
	if errors.Is(err, ErrSignedOut) {
		if cerr := p.clearSignedOut(epoch); cerr != nil {
			p.log.Error().Err(cerr).Msg("Failed to clear identity after rejected session")
		}
		return
	}
	if err != nil {
		p.log.Warn().Err(err).Str("uid", user.UID).Msg("Failed to refresh token on identity change")
		return
	}

	committed, err := p.commit(sessionFor(user, token), epoch, user.UID)
	if err != nil {
		p.log.Error().Err(err).Str("uid", user.UID).Msg("Failed to persist identity")
		return
	}
	if !committed {
		p.log.Debug().Str("uid", user.UID).Msg("Dropped identity change superseded by a newer operation")
	}
}

// SignInWithCredentials signs in with email and password. The triple is
// committed before returning, so the next gateway call carries it even if
// the backend's change event has not been delivered yet.
func (p *Provider) SignInWithCredentials(ctx context.Context, email, password string) (*User, error) {
	email = NormalizeEmail(email)
	epoch := p.begin()

	user, err := p.backend.SignIn(ctx, email, password)
	if err != nil {
		return nil, p.classifySignInError(ctx, email, err)
	}
	if err := p.establish(ctx, epoch, user); err != nil {
		return nil, err
	}

	p.log.Info().Str("uid", user.UID).Msg("Signed in with password")
	return user, nil
}

// SignInWithProvider runs the backend's federated sign-in flow.
func (p *Provider) SignInWithProvider(ctx context.Context) (*User, error) {
	epoch := p.begin()

	user, err := p.backend.SignInFederated(ctx)
	if err != nil {
		switch {
		case isNetwork(err):
			return nil, networkError(err)
		case errors.Is(err, ErrEmailInUse):
			return nil, &AuthError{
				Kind:     AccountExistsElsewhere,
				Provider: ProviderPassword,
				Message:  "this email is already registered with a password; sign in with your password instead",
				Err:      err,
			}
		case errors.Is(err, ErrRejected):
			return nil, &AuthError{
				Kind:    InvalidCredentials,
				Message: "federated sign-in was not completed",
				Err:     err,
			}
		}
		return nil, fmt.Errorf("federated sign-in: %w", err)
	}
	if err := p.establish(ctx, epoch, user); err != nil {
		return nil, err
	}

	p.log.Info().Str("uid", user.UID).Msg("Signed in with federated provider")
	return user, nil
}

// Register creates a password account. Existing accounts are detected
// through the sign-in-methods lookup before anything is created, so the
// caller learns which provider already owns the email.
func (p *Provider) Register(ctx context.Context, email, password string) (*User, error) {
	email = NormalizeEmail(email)
	epoch := p.begin()

	methods, err := p.backend.SignInMethods(ctx, email)
	if err != nil {
		if isNetwork(err) {
			return nil, networkError(err)
		}
		return nil, fmt.Errorf("look up sign-in methods: %w", err)
	}
	if len(methods) > 0 {
		return nil, existsError(methods, nil)
	}

	user, err := p.backend.Register(ctx, email, password)
	if err != nil {
		switch {
		case isNetwork(err):
			return nil, networkError(err)
		case errors.Is(err, ErrEmailInUse):
			// Lost a race with another registration for the same email.
			return nil, existsError(nil, err)
		case errors.Is(err, ErrRejected):
			return nil, &AuthError{
				Kind:    InvalidCredentials,
				Message: "the email or password was rejected; passwords need at least 6 characters",
				Err:     err,
			}
		}
		return nil, fmt.Errorf("register: %w", err)
	}
	if err := p.establish(ctx, epoch, user); err != nil {
		return nil, err
	}

	p.log.Info().Str("uid", user.UID).Msg("Registered account")
	return user, nil
}

// SignOut signs out of the backend and clears the triple. Clearing runs on
// every exit path, including a failed or partial backend sign-out.
func (p *Provider) SignOut(ctx context.Context) (err error) {
	p.begin()

	defer func() {
		if cerr := p.clear(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	if err := p.backend.SignOut(ctx); err != nil {
		if errors.Is(err, ErrSignedOut) {
			return nil
		}
		if isNetwork(err) {
			return networkError(err)
		}
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// CurrentToken returns the freshest bearer token for the signed-in user, or
// an empty string when signed out.
func (p *Provider) CurrentToken(ctx context.Context) (string, error) {
	return p.token(ctx, false)
}

// RefreshToken forces the backend to redeem a new bearer token.
func (p *Provider) RefreshToken(ctx context.Context) (string, error) {
	return p.token(ctx, true)
}

func (p *Provider) token(ctx context.Context, force bool) (string, error) {
	epoch := p.currentEpoch()
	user := p.backend.CurrentUser()
	if user == nil {
		return "", p.clearSignedOut(epoch)
	}

	token, err := p.backend.Token(ctx, force)
	if err != nil {
		switch {
		case errors.Is(err, ErrSignedOut):
			// The backend rejected the session; its sign-out event may
			// never arrive before the process exits.
			return "", p.clearSignedOut(epoch)
		case isNetwork(err):
			return "", networkError(err)
		}
		return "", fmt.Errorf("get token: %w", err)
	}

	// Keep the triple in step with the token handed out.
	if _, err := p.commit(sessionFor(user, token), epoch, user.UID); err != nil {
		return "", err
	}
	return token, nil
}

// SendPasswordReset asks the backend to issue a password reset. The
// backend does not reveal whether an account exists for email.
func (p *Provider) SendPasswordReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return &AuthError{Kind: InvalidCredentials, Message: "enter your email to reset your password"}
	}
	if err := p.backend.SendPasswordReset(ctx, email); err != nil {
		if isNetwork(err) {
			return networkError(err)
		}
		return fmt.Errorf("send password reset: %w", err)
	}
	return nil
}

// classifySignInError resolves an ambiguous sign-in failure through the
// sign-in-methods lookup.
func (p *Provider) classifySignInError(ctx context.Context, email string, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	if isNetwork(err) {
		return networkError(err)
	}

	methods, lerr := p.backend.SignInMethods(ctx, email)
	if lerr != nil {
		if isNetwork(lerr) {
			return networkError(lerr)
		}
		p.log.Warn().Err(lerr).Msg("Sign-in methods lookup failed")
		return &AuthError{Kind: InvalidCredentials, Message: "invalid email or password", Err: err}
	}

	switch {
	case slices.Contains(methods, ProviderPassword):
		return &AuthError{
			Kind:    InvalidCredentials,
			Message: "invalid password; if you forgot it, reset your password",
			Err:     err,
		}
	case len(methods) > 0:
		return &AuthError{
			Kind:     AccountExistsElsewhere,
			Provider: methods[0],
			Message:  fmt.Sprintf("this email is registered via %s; sign in with %s instead", providerName(methods[0]), providerName(methods[0])),
			Err:      err,
		}
	default:
		return &AuthError{
			Kind:    InvalidCredentials,
			Message: fmt.Sprintf("no account exists for %s; register first", email),
			Err:     err,
		}
	}
}

func existsError(methods []string, err error) *AuthError {
	e := &AuthError{Kind: AccountExistsElsewhere, Err: err}
	switch {
	case slices.Contains(methods, ProviderGoogle):
		e.Provider = ProviderGoogle
		e.Message = "this email is already registered via Google; sign in with Google instead"
	case slices.Contains(methods, ProviderPassword):
		e.Provider = ProviderPassword
		e.Message = "this email is already registered; sign in with your password or reset it"
	case len(methods) > 0:
		e.Provider = methods[0]
		e.Message = "this email is already registered via another provider"
	default:
		e.Message = "this email is already registered"
	}
	return e
}

// establish fetches the user's token and commits the triple. A token
// failure still commits the demo pair so the user has one resolvable
// identity; the next identity event retries the token.
func (p *Provider) establish(ctx context.Context, epoch uint64, user *User) error {
	token, err := p.backend.Token(ctx, false)
	if err != nil {
		p.log.Warn().Err(err).Str("uid", user.UID).Msg("Signed in without a bearer token")
		token = ""
	}

	committed, err := p.commit(sessionFor(user, token), epoch, "")
	if err != nil {
		return err
	}
	if !committed {
		return ErrSuperseded
	}
	return nil
}

// begin starts an explicit identity operation and invalidates writes that
// started before it.
func (p *Provider) begin() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.epoch++
	return p.epoch
}

func (p *Provider) currentEpoch() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.epoch
}

// commit writes s if no newer operation started since epoch and, when uid
// is set, the backend still reports that user as signed in.
func (p *Provider) commit(s Session, epoch uint64, uid string) (bool, error) {
	p.mu.Lock()
	if p.epoch != epoch {
		p.mu.Unlock()
		return false, nil
	}
	if uid != "" {
		if cur := p.backend.CurrentUser(); cur == nil || cur.UID != uid {
			p.mu.Unlock()
			return false, nil
		}
	}
	changed, err := p.swap(s)
	p.mu.Unlock()

	if err != nil {
		return false, err
	}
	if changed {
		p.notify(s)
	}
	return true, nil
}

// clear unconditionally removes the triple.
func (p *Provider) clear() error {
	p.mu.Lock()
	changed, err := p.swap(Session{})
	p.mu.Unlock()

	if changed {
		p.notify(Session{})
	}
	return err
}

// clearSignedOut removes the triple if no newer operation started since
// epoch and the backend still has no user.
func (p *Provider) clearSignedOut(epoch uint64) error {
	p.mu.Lock()
	if p.epoch != epoch || p.backend.CurrentUser() != nil {
		p.mu.Unlock()
		return nil
	}
	changed, err := p.swap(Session{})
	p.mu.Unlock()

	if changed {
		p.log.Info().Msg("Session no longer accepted, cleared identity")
		p.notify(Session{})
	}
	return err
}

// swap persists s and replaces the cached triple. Callers hold p.mu.
// A failed write rolls the medium back to cleared so no mixed triple
// survives a restart.
func (p *Provider) swap(s Session) (bool, error) {
	if s == p.session {
		return false, nil
	}

	if err := p.writeTriple(s); err != nil {
		if rerr := p.writeTriple(Session{}); rerr != nil {
			p.log.Error().Err(rerr).Msg("Failed to roll back identity after write failure")
		}
		changed := p.session != (Session{})
		p.session = Session{}
		return changed, err
	}

	p.session = s
	return true, nil
}

func (p *Provider) writeTriple(s Session) error {
	if !s.SignedIn() {
		return errors.Join(
			p.store.Remove(KeyToken),
			p.store.Remove(KeyDemoID),
			p.store.Remove(KeyDemoEmail),
		)
	}

	// Token goes first and comes back last, so an interrupted write can
	// never pair one user's token with another user's demo pair.
	if err := p.store.Remove(KeyToken); err != nil {
		return err
	}
	if err := p.store.Set(KeyDemoID, s.DemoID); err != nil {
		return err
	}
	if err := p.store.Set(KeyDemoEmail, s.DemoEmail); err != nil {
		return err
	}
	if s.Token == "" {
		return nil
	}
	return p.store.Set(KeyToken, s.Token)
}

func (p *Provider) readTriple() (Session, error) {
	var s Session
	for key, dst := range map[string]*string{
		KeyToken:     &s.Token,
		KeyDemoID:    &s.DemoID,
		KeyDemoEmail: &s.DemoEmail,
	} {
		v, _, err := p.store.Get(key)
		if err != nil {
			return Session{}, err
		}
		*dst = v
	}
	return s, nil
}

func (p *Provider) notify(s Session) {
	p.obsMu.Lock()
	ids := make([]uint64, 0, len(p.observers))
	for id := range p.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Session), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, p.observers[id])
	}
	p.obsMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}
