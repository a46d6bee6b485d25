package service

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/pkg/slogx"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// fakeSyncer reports every call on calls and, while gate is open, holds the
// call until gate is closed.
type fakeSyncer struct {
	calls chan string
	gate  chan struct{}
}

func newFakeSyncer() *fakeSyncer {
	return &fakeSyncer{calls: make(chan string, 16), gate: make(chan struct{})}
}

func (f *fakeSyncer) SyncTenant(ctx context.Context, tenantID string) (domain.SyncResult, error) {
	f.calls <- tenantID
	select {
	case <-f.gate:
	case <-ctx.Done():
		return domain.SyncResult{}, ctx.Err()
	}
	return domain.SyncResult{}, nil
}

func (f *fakeSyncer) next(t *testing.T) string {
	t.Helper()
	select {
	case id := <-f.calls:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("no sync started")
		return ""
	}
}

// requireTickers waits until exactly n tickers are armed on clock.
func requireTickers(t *testing.T, clock *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, n), "expected %d armed tickers", n)
}

func TestSyncScheduler(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.addDirectoryConfig(testCompany, 1)
	idle := h.addDirectoryConfig(otherCo, 0)

	syncer := newFakeSyncer()
	sched := NewSyncScheduler(h.store.DirectoryConfigs(), syncer, h.clock, slogx.Discard(), SchedulerOptions{Metrics: h.metrics})
	require.NoError(t, sched.Start(h.ctx))
	t.Cleanup(sched.Stop)

	require.Equal(t, map[string]int{testCompany: 1}, sched.Scheduled())
	requireTickers(t, h.clock, 2) // reconcile ticker plus one tenant

	// First tick starts a sync that stays in flight.
	h.clock.Advance(time.Hour)
	require.Equal(t, testCompany, syncer.next(t))

	// The next tick finds the lease held and is dropped.
	h.clock.Advance(time.Hour)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.SyncSkipped) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, err := sched.TriggerSync(h.ctx, testCompany)
	require.ErrorIs(t, err, ErrSyncInProgress)

	close(syncer.gate)
	require.Eventually(t, func() bool {
		_, err := sched.TriggerSync(h.ctx, testCompany)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, testCompany, syncer.next(t))

	// Re-arming replaces the timer instead of adding one.
	sched.ScheduleTenant(testCompany, 1)
	sched.ScheduleTenant(testCompany, 1)
	requireTickers(t, h.clock, 2)

	// Config changes are picked up by the reconcile loop.
	cfg, err := h.store.DirectoryConfigs().GetDirectoryConfigByCompany(h.ctx, testCompany)
	require.NoError(t, err)
	cfg.Enabled = false
	require.NoError(t, h.store.DirectoryConfigs().UpdateDirectoryConfig(h.ctx, cfg))
	idle.SyncIntervalHours = 6
	require.NoError(t, h.store.DirectoryConfigs().UpdateDirectoryConfig(h.ctx, idle))

	h.clock.Advance(DefaultReconcileInterval)
	require.Eventually(t, func() bool {
		got := sched.Scheduled()
		return len(got) == 1 && got[otherCo] == 6
	}, 2*time.Second, 10*time.Millisecond)

	sched.Stop()
	requireTickers(t, h.clock, 0)
	require.Empty(t, sched.Scheduled())

	// Stopped schedulers ignore new work.
	sched.ScheduleTenant(testCompany, 1)
	require.Empty(t, sched.Scheduled())
}

func TestSyncSchedulerUnschedule(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	sched := NewSyncScheduler(h.store.DirectoryConfigs(), newFakeSyncer(), h.clock, slogx.Discard(), SchedulerOptions{})
	require.NoError(t, sched.Start(h.ctx))
	t.Cleanup(sched.Stop)
	requireTickers(t, h.clock, 1)

	sched.ScheduleTenant(testCompany, 2)
	require.Equal(t, map[string]int{testCompany: 2}, sched.Scheduled())
	requireTickers(t, h.clock, 2)

	sched.ScheduleTenant(testCompany, 0)
	require.Empty(t, sched.Scheduled())
	requireTickers(t, h.clock, 1)

	sched.UnscheduleTenant("never-scheduled")
}

func TestSyncSchedulerIdleUntilStarted(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	syncer := newFakeSyncer()
	close(syncer.gate)
	sched := NewSyncScheduler(h.store.DirectoryConfigs(), syncer, h.clock, slogx.Discard(), SchedulerOptions{})
	t.Cleanup(sched.Stop)

	sched.ScheduleTenant(testCompany, 1)
	require.Empty(t, sched.Scheduled())
	requireTickers(t, h.clock, 0)

	h.clock.Advance(time.Hour)
	select {
	case id := <-syncer.calls:
		t.Fatalf("scheduled sync ran for %s on a scheduler that was never started", id)
	case <-time.After(100 * time.Millisecond):
	}

	// Manual syncs do not depend on the scheduler running.
	_, err := sched.TriggerSync(h.ctx, testCompany)
	require.NoError(t, err)
	require.Equal(t, testCompany, syncer.next(t))
}

func TestTenantLeases(t *testing.T) {
	t.Parallel()
	l := NewTenantLeases()

	release, ok := l.TryAcquire("a")
	require.True(t, ok)

	_, ok = l.TryAcquire("a")
	require.False(t, ok)

	releaseB, ok := l.TryAcquire("b")
	require.True(t, ok, "leases are per tenant")
	releaseB()

	release()
	release, ok = l.TryAcquire("a")
	require.True(t, ok)
	release()
}
