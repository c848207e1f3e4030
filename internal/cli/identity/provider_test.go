package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careerpath-dev/careerpath/internal/cli/storage"
)

type fakeAccount struct {
	uid       string
	password  string
	providers []string
}

// fakeBackend is an in-memory auth backend. With emit set it delivers
// identity events synchronously, like a backend whose callback fires
// before the sign-in call returns.
type fakeBackend struct {
	mu        sync.Mutex
	accounts  map[string]fakeAccount
	current   *User
	tokenSeq  int
	listeners map[int]func(*User)
	nextID    int

	emit          bool
	tokenErr      error
	signInErr     error
	signOutErr    error
	lookupErr     error
	registerErr   error
	federatedUser *User

	// tokenHook runs inside Token before the token is minted
	tokenHook func()

	subscribeCalls int
	registerCalls  int
	lastSignIn     string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		accounts:  make(map[string]fakeAccount),
		listeners: make(map[int]func(*User)),
	}
}

func (f *fakeBackend) addAccount(email, uid, password string, providers ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[email] = fakeAccount{uid: uid, password: password, providers: providers}
}

func (f *fakeBackend) OnIdentityChange(fn func(*User)) func() {
	f.mu.Lock()
	f.subscribeCalls++
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *fakeBackend) listenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func (f *fakeBackend) fire(user *User) {
	f.mu.Lock()
	fns := make([]func(*User), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(user)
	}
}

func (f *fakeBackend) setCurrent(u *User) {
	f.mu.Lock()
	f.current = u
	emit := f.emit
	f.mu.Unlock()

	if emit {
		f.fire(u)
	}
}

func (f *fakeBackend) SignIn(_ context.Context, email, password string) (*User, error) {
	f.mu.Lock()
	f.lastSignIn = email
	if f.signInErr != nil {
		err := f.signInErr
		f.mu.Unlock()
		return nil, err
	}
	acct, ok := f.accounts[email]
	f.mu.Unlock()

	if !ok || acct.password == "" || acct.password != password {
		return nil, ErrRejected
	}
	u := &User{UID: acct.uid, Email: email, Providers: acct.providers}
	f.setCurrent(u)
	return u, nil
}

func (f *fakeBackend) SignInFederated(context.Context) (*User, error) {
	f.mu.Lock()
	u := f.federatedUser
	f.mu.Unlock()
	if u == nil {
		return nil, ErrRejected
	}
	f.setCurrent(u)
	return u, nil
}

func (f *fakeBackend) Register(_ context.Context, email, password string) (*User, error) {
	f.mu.Lock()
	f.registerCalls++
	if f.registerErr != nil {
		err := f.registerErr
		f.mu.Unlock()
		return nil, err
	}
	uid := "uid-" + strings.Split(email, "@")[0]
	f.accounts[email] = fakeAccount{uid: uid, password: password, providers: []string{ProviderPassword}}
	f.mu.Unlock()

	u := &User{UID: uid, Email: email, Providers: []string{ProviderPassword}}
	f.setCurrent(u)
	return u, nil
}

func (f *fakeBackend) SignOut(context.Context) error {
	f.setCurrent(nil)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signOutErr
}

func (f *fakeBackend) Token(context.Context, bool) (string, error) {
	f.mu.Lock()
	hook := f.tokenHook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	if f.current == nil {
		return "", ErrSignedOut
	}
	f.tokenSeq++
	return fmt.Sprintf("tok-%s-%d", f.current.UID, f.tokenSeq), nil
}

func (f *fakeBackend) SignInMethods(_ context.Context, email string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.accounts[email].providers, nil
}

func (f *fakeBackend) SendPasswordReset(context.Context, string) error {
	return nil
}

func (f *fakeBackend) CurrentUser() *User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// failingStore fails Set for one key
type failingStore struct {
	*storage.MemoryStore
	failKey string
}

func (s *failingStore) Set(key, value string) error {
	if key == s.failKey {
		return &storage.Error{Op: "set", Key: key, Err: errors.New("disk full")}
	}
	return s.MemoryStore.Set(key, value)
}

// recordingStore logs every mutation in order
type recordingStore struct {
	*storage.MemoryStore
	ops []string
}

func (s *recordingStore) Set(key, value string) error {
	s.ops = append(s.ops, "set "+key)
	return s.MemoryStore.Set(key, value)
}

func (s *recordingStore) Remove(key string) error {
	s.ops = append(s.ops, "remove "+key)
	return s.MemoryStore.Remove(key)
}

func newTestProvider(t *testing.T, backend Backend) (*Provider, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	p, err := NewProvider(store, backend, zerolog.Nop())
	require.NoError(t, err)
	return p, store
}

func TestSignIn_CommitsTripleBeforeReturning(t *testing.T) {
	backend := newFakeBackend()
	backend.addAccount("alice@example.com", "uid-alice", "secret", ProviderPassword)
	p, store := newTestProvider(t, backend)

	// No observation established and no events emitted: the triple must
	// still be in place once sign-in returns.
	user, err := p.SignInWithCredentials(context.Background(), "alice@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "uid-alice", user.UID)

	s := p.Session()
	assert.Equal(t, "alice@example.com", s.DemoID)
	assert.Equal(t, "alice@example.com", s.DemoEmail)
	assert.True(t, strings.HasPrefix(s.Token, "tok-uid-alice-"))

	v, _, _ := store.Get(KeyDemoEmail)
	assert.Equal(t, "alice@example.com", v)
	v, _, _ = store.Get(KeyToken)
	assert.Equal(t, s.Token, v)
}

func TestSignIn_NormalizesEmail(t *testing.T) {
	backend := newFakeBackend()
	backend.addAccount("alice@example.com", "uid-alice", "secret", ProviderPassword)
	p, _ := newTestProvider(t, backend)

	_, err := p.SignInWithCredentials(context.Background(), "  Alice@Example.COM ", "secret")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", backend.lastSignIn)
	assert.Equal(t, "alice@example.com", p.Session().DemoEmail)
}

func TestSignOut_ClearsWholeTriple(t *testing.T) {
	backend := newFakeBackend()
	backend.addAccount("alice@example.com", "uid-alice", "secret", ProviderPassword)
	p, store := newTestProvider(t, backend)

	_, err := p.SignInWithCredentials(context.Background(), "alice@example.com", "secret")
	require.NoError(t, err)

	require.NoError(t, p.SignOut(context.Background()))
	assert.Equal(t, Session{}, p.Session())
	assert.Equal(t, 0, store.Len())
}

func TestSignOut_ClearsEvenWhenBackendFails(t *testing.T) {
	backend := newFakeBackend()
	backend.addAccount("alice@example.com", "uid-alice", "secret", ProviderPassword)
	p, store := newTestProvider(t, backend)

	_, err := p.SignInWithCredentials(context.Background(), "alice@example.com", "secret")
	require.NoError(t, err)

	backend.signOutErr = fmt.Errorf("revoke: %w", ErrUnreachable)
	err = p.SignOut(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)

	assert.Equal(t, Session{}, p.Session())
	assert.Equal(t, 0, store.Len())
}

func TestSignOut_WhenAlreadySignedOut(t *testing.T) {
	backend := newFakeBackend()
	backend.signOutErr = ErrSignedOut
	p, _ := newTestProvider(t, backend)

	require.NoError(t, p.SignOut(context.Background()))
	assert.Equal(t, Session{}, p.Session())
}

func TestSignInFailure_Classification(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(b *fakeBackend)
		email        string
		wantKind     *AuthError
		wantProvider string
		wantMessage  string
	}{
		{
			name: "wrong password for password account",
			setup: func(b *fakeBackend) {
				b.addAccount("alice@example.com", "uid-alice", "secret", ProviderPassword)
			},
			email:       "alice@example.com",
			wantKind:    ErrInvalidCredentials,
			wantMessage: "invalid password",
		},
		{
			name: "email bound to google only",
			setup: func(b *fakeBackend) {
				b.addAccount("gina@example.com", "uid-gina", "", ProviderGoogle)
			},
			email:        "gina@example.com",
			wantKind:     ErrAccountExistsElsewhere,
			wantProvider: ProviderGoogle,
			wantMessage:  "registered via Google",
		},
		{
			name:        "unknown email",
			setup:       func(b *fakeBackend) {},
			email:       "nobody@example.com",
			wantKind:    ErrInvalidCredentials,
			wantMessage: "no account exists",
		},
		{
			name: "backend unreachable",
			setup: func(b *fakeBackend) {
				b.signInErr = fmt.Errorf("dial tcp: %w", ErrUnreachable)
			},
			email:       "alice@example.com",
			wantKind:    ErrNetwork,
			wantMessage: "could not reach",
		},
		{
			name: "lookup unreachable after rejection",
			setup: func(b *fakeBackend) {
				b.addAccount("alice@example.com", "uid-alice", "secret", ProviderPassword)
				b.lookupErr = ErrUnreachable
			},
			email:    "alice@example.com",
			wantKind: ErrNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend()
			tt.setup(backend)
			p, store := newTestProvider(t, backend)

			_, err := p.SignInWithCredentials(context.Background(), tt.email, "wrong")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantKind)

			var aerr *AuthError
			require.True(t, errors.As(err, &aerr))
			assert.Equal(t, tt.wantProvider, aerr.Provider)
			if tt.wantMessage != "" {
				assert.Contains(t, aerr.Message, tt.wantMessage)
			}

			assert.Equal(t, Session{}, p.Session())
			assert.Equal(t, 0, store.Len())
		})
	}
}

func TestRegister_RefusesEmailBoundToFederatedProvider(t *testing.T) {
	backend := newFakeBackend()
	backend.addAccount("gina@example.com", "uid-gina", "", ProviderGoogle)
	p, _ := newTestProvider(t, backend)

	_, err := p.Register(context.Background(), "Gina@Example.com", "secret123")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAccountExistsElsewhere)

	var aerr *AuthError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, ProviderGoogle, aerr.Provider)

	assert.Equal(t, 0, backend.registerCalls, "no account may be created")
	assert.Equal(t, Session{}, p.Session())
}

func TestRegister_RefusesExistingPasswordAccount(t *testing.T) {
	backend := newFakeBackend()
	backend.addAccount("alice@example.com", "uid-alice", "secret", ProviderPassword)
	p, _ := newTestProvider(t, backend)

	_, err := p.Register(context.Background(), "alice@example.com", "secret123")
	assert.ErrorIs(t, err, ErrAccountExistsElsewhere)
	assert.Contains(t, err.Error(), "reset it")
	assert.Equal(t, 0, backend.registerCalls)
}

func TestRegister_DuplicateRaceIsClassified(t *testing.T) {
	backend := newFakeBackend()
	backend.registerErr = ErrEmailInUse
	p, _ := newTestProvider(t, backend)

	_, err := p.Register(context.Background(), "bob@example.com", "secret123")
	assert.ErrorIs(t, err, ErrAccountExistsElsewhere)
}

func TestRegister_Success(t *testing.T) {
	backend := newFakeBackend()
	p, _ := newTestProvider(t, backend)

	user, err := p.Register(context.Background(), " Bob@Example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", user.Email)
	assert.Equal(t, "bob@example.com", p.Session().DemoEmail)
	assert.True(t, p.Session().HasToken())
}

func TestSignInWithProvider_FallsBackToSyntheticDemoEmail(t *testing.T) {
	backend := newFakeBackend()
	backend.federatedUser = &User{UID: "g-123", Providers: []string{ProviderGoogle}}
	p, _ := newTestProvider(t, backend)

	_, err := p.SignInWithProvider(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "g-123@example.com", p.Session().DemoID)
	assert.Equal(t, "g-123@example.com", p.Session().DemoEmail)
}

func TestObserve_SubscribesOnceAndDisposesWithLastObserver(t *testing.T) {
	backend := newFakeBackend()
	p, _ := newTestProvider(t, backend)

	stop1 := p.Observe(func(Session) {})
	stop2 := p.Observe(func(Session) {})
	assert.Equal(t, 1, backend.subscribeCalls)
	assert.Equal(t, 1, backend.listenerCount())
	assert.Equal(t, 2, p.Observers())

	stop1()
	stop1()
	assert.Equal(t, 1, backend.listenerCount())

	stop2()
	assert.Equal(t, 0, backend.listenerCount())
	assert.Equal(t, 0, p.Observers())

	// A new observer re-establishes the subscription
	stop3 := p.Observe(func(Session) {})
	defer stop3()
	assert.Equal(t, 2, backend.subscribeCalls)
}

func TestObserve_EventsWriteTripleAndNotify(t *testing.T) {
	backend := newFakeBackend()
	backend.addAccount("alice@example.com", "uid-alice", "secret", ProviderPassword)
	p, _ := newTestProvider(t, backend)

	var seen []Session
	stop := p.Observe(func(s Session) { seen = append(seen, s) })
	defer stop()

	// Identity changes driven entirely by the backend
	backend.mu.Lock()
	backend.current = &User{UID: "uid-alice", Email: "ALICE@example.com"}
	backend.mu.Unlock()
	backend.fire(backend.CurrentUser())

	require.Len(t, seen, 1)
	assert.Equal(t, "alice@example.com", seen[0].DemoEmail)
	assert.Equal(t, seen[0], p.Session())

	backend.mu.Lock()
	backend.current = nil
	backend.mu.Unlock()
	backend.fire(nil)

	require.Len(t, seen, 2)
	assert.Equal(t, Session{}, seen[1])
	assert.Equal(t, Session{}, p.Session())
}

func TestObserve_SurvivesFailedTokenRefresh(t *testing.T) {
	backend := newFakeBackend()
	p, _ := newTestProvider(t, backend)
	stop := p.Observe(func(Session) {})
	defer stop()

	user := &User{UID: "uid-alice", Email: "alice@example.com"}
	backend.mu.Lock()
	backend.current = user
	backend.tokenErr = ErrUnreachable
	backend.mu.Unlock()

	backend.fire(user)
	assert.Equal(t, Session{}, p.Session(), "failed refresh must not write a partial triple")

	backend.mu.Lock()
	backend.tokenErr = nil
	backend.mu.Unlock()

	backend.fire(user)
	assert.Equal(t, "alice@example.com", p.Session().DemoEmail)
	assert.True(t, p.Session().HasToken())
	assert.Equal(t, 1, backend.listenerCount())
}

func TestObserve_StaleEventDoesNotOverwriteNewerIdentity(t *testing.T) {
	backend := newFakeBackend()
	backend.addAccount("alice@example.com", "uid-alice", "secret", ProviderPassword)
	backend.addAccount("bob@example.com", "uid-bob", "hunter2", ProviderPassword)
	p, _ := newTestProvider(t, backend)
	stop := p.Observe(func(Session) {})
	defer stop()

	_, err := p.SignInWithCredentials(context.Background(), "alice@example.com", "secret")
	require.NoError(t, err)
	alice := backend.CurrentUser()

	entered := make(chan struct{})
	release := make(chan struct{})
	backend.mu.Lock()
	backend.tokenHook = func() {
		close(entered)
		<-release
	}
	backend.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		backend.fire(alice) // handler suspends inside Token
	}()

	<-entered
	backend.mu.Lock()
	backend.tokenHook = nil
	backend.mu.Unlock()

	// Sign out and in as someone else while alice's event is still in flight
	require.NoError(t, p.SignOut(context.Background()))
	_, err = p.SignInWithCredentials(context.Background(), "bob@example.com", "hunter2")
	require.NoError(t, err)

	close(release)
	<-done

	s := p.Session()
	assert.Equal(t, "bob@example.com", s.DemoEmail)
	assert.True(t, strings.HasPrefix(s.Token, "tok-uid-bob-"), "token %q must belong to bob", s.Token)
}

func TestSessions_NeverMixUsers(t *testing.T) {
	backend := newFakeBackend()
	backend.emit = true
	users := []string{"alice", "bob", "carol"}
	for _, u := range users {
		backend.addAccount(u+"@example.com", "uid-"+u, "pw-"+u, ProviderPassword)
	}
	p, _ := newTestProvider(t, backend)
	stop := p.Observe(func(Session) {})
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var mixed []Session
	var mixedMu sync.Mutex

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				s := p.Session()
				if !s.coherent() {
					mixedMu.Lock()
					mixed = append(mixed, s)
					mixedMu.Unlock()
					continue
				}
				if s.Token == "" {
					continue
				}
				name := strings.Split(s.DemoEmail, "@")[0]
				if !strings.HasPrefix(s.Token, "tok-uid-"+name+"-") {
					mixedMu.Lock()
					mixed = append(mixed, s)
					mixedMu.Unlock()
				}
			}
		}()
	}

	for round := 0; round < 50; round++ {
		u := users[round%len(users)]
		_, err := p.SignInWithCredentials(context.Background(), u+"@example.com", "pw-"+u)
		require.NoError(t, err)
		require.NoError(t, p.SignOut(context.Background()))
	}

	cancel()
	wg.Wait()
	assert.Empty(t, mixed)
}

func TestNewProvider_ClearsTornTriple(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(KeyToken, "tok-old"))
	require.NoError(t, store.Set(KeyDemoID, "alice@example.com"))
	// demo_email missing: the previous process died mid-write

	p, err := NewProvider(store, newFakeBackend(), zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, Session{}, p.Session())
	assert.Equal(t, 0, store.Len())
}

func TestNewProvider_RestoresCompleteTriple(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(KeyToken, "tok-1"))
	require.NoError(t, store.Set(KeyDemoID, "alice@example.com"))
	require.NoError(t, store.Set(KeyDemoEmail, "alice@example.com"))

	p, err := NewProvider(store, newFakeBackend(), zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, Session{Token: "tok-1", DemoID: "alice@example.com", DemoEmail: "alice@example.com"}, p.Session())
}

func TestWriteFailure_RollsBackToSignedOut(t *testing.T) {
	backend := newFakeBackend()
	backend.addAccount("alice@example.com", "uid-alice", "secret", ProviderPassword)
	store := &failingStore{MemoryStore: storage.NewMemoryStore(), failKey: KeyToken}
	p, err := NewProvider(store, backend, zerolog.Nop())
	require.NoError(t, err)

	_, err = p.SignInWithCredentials(context.Background(), "alice@example.com", "secret")
	require.Error(t, err)

	var serr *storage.Error
	assert.True(t, errors.As(err, &serr))
	assert.Equal(t, Session{}, p.Session())
	assert.Equal(t, 0, store.Len(), "no partial triple may stay persisted")
}

func TestCurrentToken(t *testing.T) {
	backend := newFakeBackend()
	backend.addAccount("alice@example.com", "uid-alice", "secret", ProviderPassword)
	p, _ := newTestProvider(t, backend)

	token, err := p.CurrentToken(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token, "signed out yields no token")

	_, err = p.SignInWithCredentials(context.Background(), "alice@example.com", "secret")
	require.NoError(t, err)
	first := p.Session().Token

	token, err = p.CurrentToken(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first, token, "fake backend mints a new token per call")
	assert.Equal(t, token, p.Session().Token)
}

func TestSendPasswordReset_RequiresEmail(t *testing.T) {
	p, _ := newTestProvider(t, newFakeBackend())
	err := p.SendPasswordReset(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	require.NoError(t, p.SendPasswordReset(context.Background(), "alice@example.com"))
}

func TestRefreshToken_RejectedSessionClearsTriple(t *testing.T) {
	backend := newFakeBackend()
	backend.addAccount("alice@example.com", "uid-alice", "secret", ProviderPassword)
	p, store := newTestProvider(t, backend)

	_, err := p.SignInWithCredentials(context.Background(), "alice@example.com", "secret")
	require.NoError(t, err)
	require.True(t, p.Session().HasToken())

	var seen []Session
	stop := p.Observe(func(s Session) { seen = append(seen, s) })
	defer stop()

	// the backend drops the session while redeeming and emits nothing
	backend.mu.Lock()
	backend.tokenHook = func() {
		backend.mu.Lock()
		backend.current = nil
		backend.mu.Unlock()
	}
	backend.mu.Unlock()

	token, err := p.RefreshToken(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.Equal(t, Session{}, p.Session())
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, []Session{{}}, seen)
}

func TestCurrentToken_BackendSignedOutClearsStaleTriple(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(KeyToken, "tok-old"))
	require.NoError(t, store.Set(KeyDemoID, "alice@example.com"))
	require.NoError(t, store.Set(KeyDemoEmail, "alice@example.com"))

	p, err := NewProvider(store, newFakeBackend(), zerolog.Nop())
	require.NoError(t, err)
	require.True(t, p.Session().SignedIn())

	token, err := p.CurrentToken(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.Equal(t, Session{}, p.Session())
	assert.Equal(t, 0, store.Len())
}

func TestCurrentToken_SignedOutErrorKeepsTripleWhileBackendHasUser(t *testing.T) {
	backend := newFakeBackend()
	backend.addAccount("alice@example.com", "uid-alice", "secret", ProviderPassword)
	p, _ := newTestProvider(t, backend)

	_, err := p.SignInWithCredentials(context.Background(), "alice@example.com", "secret")
	require.NoError(t, err)
	before := p.Session()

	backend.mu.Lock()
	backend.tokenErr = ErrSignedOut
	backend.mu.Unlock()

	token, err := p.CurrentToken(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.Equal(t, before, p.Session(), "backend still reports alice signed in")
}

func TestWriteTriple_TokenRemovedFirstAndSetLast(t *testing.T) {
	backend := newFakeBackend()
	backend.addAccount("alice@example.com", "uid-alice", "secret", ProviderPassword)
	backend.addAccount("bob@example.com", "uid-bob", "hunter2", ProviderPassword)
	store := &recordingStore{MemoryStore: storage.NewMemoryStore()}
	p, err := NewProvider(store, backend, zerolog.Nop())
	require.NoError(t, err)

	_, err = p.SignInWithCredentials(context.Background(), "alice@example.com", "secret")
	require.NoError(t, err)

	store.ops = nil
	_, err = p.SignInWithCredentials(context.Background(), "bob@example.com", "hunter2")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"remove " + KeyToken,
		"set " + KeyDemoID,
		"set " + KeyDemoEmail,
		"set " + KeyToken,
	}, store.ops)
}

func TestNewProvider_ClearsMixedDemoPair(t *testing.T) {
	store := storage.NewMemoryStore()
	// killed between the two demo writes while switching alice to bob
	require.NoError(t, store.Set(KeyDemoID, "bob@example.com"))
	require.NoError(t, store.Set(KeyDemoEmail, "alice@example.com"))

	p, err := NewProvider(store, newFakeBackend(), zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, Session{}, p.Session())
	assert.Equal(t, 0, store.Len())
}

func TestSignIn_CancelledContextIsNotReportedAsBadCredentials(t *testing.T) {
	backend := newFakeBackend()
	backend.addAccount("alice@example.com", "uid-alice", "secret", ProviderPassword)
	backend.signInErr = context.Canceled
	backend.lookupErr = context.Canceled
	p, _ := newTestProvider(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.SignInWithCredentials(ctx, "alice@example.com", "secret")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	var authErr *AuthError
	assert.False(t, errors.As(err, &authErr))
	assert.Equal(t, Session{}, p.Session())
}
