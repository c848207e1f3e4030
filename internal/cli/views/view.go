// Package views holds the derived state behind the dashboard and skill
// gap screens. A mounted view reloads from the gateway whenever a
// data-updated signal arrives and stops listening when unmounted.
package views

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/careerpath-dev/careerpath/internal/cli/freshness"
)

// Status of a view's last load
type Status string

const (
	StatusLoading      Status = "loading"
	StatusReady        Status = "ready"
	StatusRequiresTest Status = "requires_test"
	StatusFailed       Status = "failed"
)

// ErrMounted is returned when Mount is called on a mounted view
var ErrMounted = errors.New("view is already mounted")

// Snapshot is what a view renders
type Snapshot[T any] struct {
	Status Status
	Data   T
	// Err is set when Status is StatusFailed
	Err error
	// Loads counts completed loads, including failed ones
	Loads int
}

// View loads T from a gateway call and keeps it fresh while mounted
type View[T any] struct {
	name         string
	load         func(context.Context) (T, error)
	requiresTest func(T) bool
	bus          *freshness.Bus
	log          zerolog.Logger

	// loadMu serializes loads so renders happen in load order
	loadMu sync.Mutex

	mu      sync.Mutex
	snap    Snapshot[T]
	render  func(Snapshot[T])
	mounted *mount
}

type mount struct {
	unsubscribe func()
	stop        func() bool
}

func newView[T any](name string, bus *freshness.Bus, log zerolog.Logger, load func(context.Context) (T, error), requiresTest func(T) bool) *View[T] {
	return &View[T]{
		name:         name,
		load:         load,
		requiresTest: requiresTest,
		bus:          bus,
		log:          log.With().Str("view", name).Logger(),
		snap:         Snapshot[T]{Status: StatusLoading},
	}
}

// OnRender sets a callback that receives every new snapshot
func (v *View[T]) OnRender(fn func(Snapshot[T])) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.render = fn
}

// Mount performs the initial load and subscribes to data-updated. The
// subscription ends on Unmount or when ctx is done, whichever is first.
// A failed initial load still mounts; the failure is in the snapshot.
func (v *View[T]) Mount(ctx context.Context) error {
	v.mu.Lock()
	if v.mounted != nil {
		v.mu.Unlock()
		return ErrMounted
	}
	m := &mount{}
	m.unsubscribe = v.bus.Subscribe(freshness.TopicDataUpdated, func() {
		if ctx.Err() != nil {
			return
		}
		v.Reload(ctx)
	})
	m.stop = context.AfterFunc(ctx, func() { v.unmount(m) })
	v.mounted = m
	v.mu.Unlock()

	v.Reload(ctx)
	return nil
}

// Unmount removes the subscription. It is safe to call more than once.
func (v *View[T]) Unmount() {
	v.mu.Lock()
	m := v.mounted
	v.mu.Unlock()

	if m != nil {
		v.unmount(m)
	}
}

func (v *View[T]) unmount(m *mount) {
	v.mu.Lock()
	if v.mounted != m {
		v.mu.Unlock()
		return
	}
	v.mounted = nil
	v.mu.Unlock()

	m.stop()
	m.unsubscribe()
}

// Mounted reports whether the view is subscribed
func (v *View[T]) Mounted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mounted != nil
}

// Snapshot returns the current state
func (v *View[T]) Snapshot() Snapshot[T] {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snap
}

// Reload fetches fresh data and returns the resulting snapshot
func (v *View[T]) Reload(ctx context.Context) Snapshot[T] {
	v.loadMu.Lock()
	defer v.loadMu.Unlock()

	data, err := v.load(ctx)

	v.mu.Lock()
	next := Snapshot[T]{Loads: v.snap.Loads + 1}
	switch {
	case err != nil:
		// keep the last good data around for the renderer
		next.Status = StatusFailed
		next.Data = v.snap.Data
		next.Err = err
	case v.requiresTest(data):
		next.Status = StatusRequiresTest
		next.Data = data
	default:
		next.Status = StatusReady
		next.Data = data
	}
	v.snap = next
	render := v.render
	v.mu.Unlock()

	if err != nil {
		v.log.Warn().Err(err).Msg("Failed to load")
	}
	if render != nil {
		render(next)
	}
	return next
}
