package views

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careerpath-dev/careerpath/internal/cli/freshness"
	"github.com/careerpath-dev/careerpath/internal/cli/gateway"
)

type fakeSource struct {
	mu        sync.Mutex
	calls     int
	err       error
	dashboard *gateway.Dashboard
	skillGap  *gateway.SkillGap
}

func (f *fakeSource) Dashboard(ctx context.Context) (*gateway.Dashboard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.dashboard, nil
}

func (f *fakeSource) SkillGap(ctx context.Context) (*gateway.SkillGap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.skillGap, nil
}

func (f *fakeSource) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSource) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestDashboard_MountLoadsAndReloadsOnSignal(t *testing.T) {
	bus := freshness.NewBus(zerolog.Nop())
	src := &fakeSource{dashboard: &gateway.Dashboard{Portfolio: gateway.PortfolioSummary{Count: 3}}}
	v := NewDashboard(src, bus, zerolog.Nop())

	assert.Equal(t, StatusLoading, v.Snapshot().Status)

	var rendered []Snapshot[*gateway.Dashboard]
	v.OnRender(func(s Snapshot[*gateway.Dashboard]) { rendered = append(rendered, s) })

	require.NoError(t, v.Mount(context.Background()))
	defer v.Unmount()

	snap := v.Snapshot()
	assert.Equal(t, StatusReady, snap.Status)
	assert.Equal(t, 3, snap.Data.Portfolio.Count)
	assert.Equal(t, 1, bus.Listeners(freshness.TopicDataUpdated))

	bus.Publish(freshness.TopicDataUpdated)
	assert.Equal(t, 2, src.count())
	assert.Equal(t, 2, v.Snapshot().Loads)
	assert.Len(t, rendered, 2)
}

func TestDashboard_MountTwice(t *testing.T) {
	bus := freshness.NewBus(zerolog.Nop())
	v := NewDashboard(&fakeSource{dashboard: &gateway.Dashboard{}}, bus, zerolog.Nop())

	require.NoError(t, v.Mount(context.Background()))
	assert.ErrorIs(t, v.Mount(context.Background()), ErrMounted)
	assert.Equal(t, 1, bus.Listeners(freshness.TopicDataUpdated))
	v.Unmount()
}

func TestSkillGap_RequiresTestIsNotAFailure(t *testing.T) {
	bus := freshness.NewBus(zerolog.Nop())
	v := NewSkillGap(&fakeSource{skillGap: &gateway.SkillGap{RequiresTest: true}}, bus, zerolog.Nop())

	require.NoError(t, v.Mount(context.Background()))
	defer v.Unmount()

	snap := v.Snapshot()
	assert.Equal(t, StatusRequiresTest, snap.Status)
	assert.NoError(t, snap.Err)
}

func TestView_FailedLoadKeepsLastData(t *testing.T) {
	bus := freshness.NewBus(zerolog.Nop())
	src := &fakeSource{skillGap: &gateway.SkillGap{Skills: []string{"math"}}}
	v := NewSkillGap(src, bus, zerolog.Nop())

	require.NoError(t, v.Mount(context.Background()))
	defer v.Unmount()
	require.Equal(t, StatusReady, v.Snapshot().Status)

	src.set(errors.New("connection refused"))
	bus.Publish(freshness.TopicDataUpdated)

	snap := v.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.EqualError(t, snap.Err, "connection refused")
	assert.Equal(t, []string{"math"}, snap.Data.Skills)

	src.set(nil)
	bus.Publish(freshness.TopicDataUpdated)
	assert.Equal(t, StatusReady, v.Snapshot().Status)
}

func TestView_InitialFailureStillMounts(t *testing.T) {
	bus := freshness.NewBus(zerolog.Nop())
	src := &fakeSource{err: errors.New("boom")}
	v := NewDashboard(src, bus, zerolog.Nop())

	require.NoError(t, v.Mount(context.Background()))
	defer v.Unmount()

	assert.Equal(t, StatusFailed, v.Snapshot().Status)
	assert.True(t, v.Mounted())
}

func TestView_UnmountStopsReloads(t *testing.T) {
	bus := freshness.NewBus(zerolog.Nop())
	src := &fakeSource{dashboard: &gateway.Dashboard{}}
	v := NewDashboard(src, bus, zerolog.Nop())

	for i := 0; i < 50; i++ {
		require.NoError(t, v.Mount(context.Background()))
		v.Unmount()
		v.Unmount()
	}

	assert.False(t, v.Mounted())
	assert.Zero(t, bus.Listeners(freshness.TopicDataUpdated))

	before := src.count()
	assert.Zero(t, bus.Publish(freshness.TopicDataUpdated))
	assert.Equal(t, before, src.count())
}

func TestView_ContextCancelUnmounts(t *testing.T) {
	bus := freshness.NewBus(zerolog.Nop())
	v := NewDashboard(&fakeSource{dashboard: &gateway.Dashboard{}}, bus, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, v.Mount(ctx))
	cancel()

	assert.Eventually(t, func() bool {
		return !v.Mounted() && bus.Listeners(freshness.TopicDataUpdated) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestView_StaleCancelDoesNotUnmountNewMount(t *testing.T) {
	bus := freshness.NewBus(zerolog.Nop())
	v := NewDashboard(&fakeSource{dashboard: &gateway.Dashboard{}}, bus, zerolog.Nop())

	first, cancel := context.WithCancel(context.Background())
	require.NoError(t, v.Mount(first))
	v.Unmount()

	require.NoError(t, v.Mount(context.Background()))
	defer v.Unmount()
	cancel()

	time.Sleep(20 * time.Millisecond)
	assert.True(t, v.Mounted())
	assert.Equal(t, 1, bus.Listeners(freshness.TopicDataUpdated))
}

func TestView_PanickingSiblingDoesNotBlockReload(t *testing.T) {
	bus := freshness.NewBus(zerolog.Nop())
	dash := NewDashboard(&fakeSource{dashboard: &gateway.Dashboard{}}, bus, zerolog.Nop())
	gap := NewSkillGap(&fakeSource{skillGap: &gateway.SkillGap{}}, bus, zerolog.Nop())

	require.NoError(t, dash.Mount(context.Background()))
	defer dash.Unmount()
	defer bus.Subscribe(freshness.TopicDataUpdated, func() { panic("broken listener") })()
	require.NoError(t, gap.Mount(context.Background()))
	defer gap.Unmount()

	assert.Equal(t, 3, bus.Publish(freshness.TopicDataUpdated))
	assert.Equal(t, 2, dash.Snapshot().Loads)
	assert.Equal(t, 2, gap.Snapshot().Loads)
}
