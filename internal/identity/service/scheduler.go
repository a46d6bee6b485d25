package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/roomkey/internal/identity/domain"
	"github.com/aussiebroadwan/roomkey/internal/identity/store"
	"github.com/aussiebroadwan/roomkey/pkg/slogx"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/semaphore"
)

// DefaultReconcileInterval is how often the scheduler compares its timers
// with the enabled directory configs.
const DefaultReconcileInterval = 5 * time.Minute

// Syncer runs one directory sync for a tenant.
type Syncer interface {
	SyncTenant(ctx context.Context, tenantID string) (domain.SyncResult, error)
}

// TenantLeases is a per-tenant single-flight guard. Scheduled and manual
// syncs share it, so a tenant never has two syncs in flight.
type TenantLeases struct {
	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

func NewTenantLeases() *TenantLeases {
	return &TenantLeases{sems: map[string]*semaphore.Weighted{}}
}

// TryAcquire takes the tenant's lease without waiting. ok is false when a
// sync for the tenant already holds it.
func (l *TenantLeases) TryAcquire(tenantID string) (release func(), ok bool) {
	l.mu.Lock()
	sem, found := l.sems[tenantID]
	if !found {
		sem = semaphore.NewWeighted(1)
		l.sems[tenantID] = sem
	}
	l.mu.Unlock()

	if !sem.TryAcquire(1) {
		return nil, false
	}
	return func() { sem.Release(1) }, true
}

type SchedulerOptions struct {
	ReconcileInterval time.Duration
	Leases            *TenantLeases
	Metrics           *Metrics
}

// SyncScheduler owns one ticker per tenant with directory sync enabled. A
// tick that finds the tenant still syncing is dropped.
type SyncScheduler struct {
	configs   store.DirectoryConfigs
	syncer    Syncer
	clock     clockwork.Clock
	log       *slog.Logger
	leases    *TenantLeases
	metrics   *Metrics
	reconcile time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	tenants map[string]*tenantTimer
	started bool
	stopped bool
}

type tenantTimer struct {
	hours  int
	ticker clockwork.Ticker
	stop   chan struct{}
}

func NewSyncScheduler(
	configs store.DirectoryConfigs,
	syncer Syncer,
	clock clockwork.Clock,
	logger *slog.Logger,
	opts SchedulerOptions,
) *SyncScheduler {
	if opts.ReconcileInterval <= 0 {
		opts.ReconcileInterval = DefaultReconcileInterval
	}
	if opts.Leases == nil {
		opts.Leases = NewTenantLeases()
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SyncScheduler{
		configs:   configs,
		syncer:    syncer,
		clock:     clock,
		log:       logger,
		leases:    opts.Leases,
		metrics:   opts.Metrics,
		reconcile: opts.ReconcileInterval,
		ctx:       slogx.WithContext(ctx, logger),
		cancel:    cancel,
		tenants:   map[string]*tenantTimer{},
	}
}

// Start arms a timer for every enabled config and begins the reconcile
// loop. It is non-blocking.
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	if err := s.Reconcile(ctx); err != nil {
		return err
	}

	ticker := s.clock.NewTicker(s.reconcile)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.Chan():
				if err := s.Reconcile(s.ctx); err != nil {
					s.log.Error("sync scheduler reconcile failed", slog.Any("error", err))
				}
			}
		}
	}()

	s.log.Info("sync scheduler started", slog.Duration("reconcile_interval", s.reconcile))
	return nil
}

// Stop cancels every timer and waits for running syncs to return.
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for id, t := range s.tenants {
		t.cancel()
		delete(s.tenants, id)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.log.Info("sync scheduler stopped")
}

// ScheduleTenant (re)arms the tenant's timer. Any existing timer is
// cancelled first. A non-positive interval unschedules. It does nothing until
// Start has been called, so a replica that never starts the scheduler never
// runs scheduled syncs.
func (s *SyncScheduler) ScheduleTenant(tenantID string, intervalHours int) {
	if intervalHours <= 0 {
		s.UnscheduleTenant(tenantID)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped {
		return
	}
	if t, ok := s.tenants[tenantID]; ok {
		t.cancel()
	}

	t := &tenantTimer{
		hours:  intervalHours,
		ticker: s.clock.NewTicker(time.Duration(intervalHours) * time.Hour),
		stop:   make(chan struct{}),
	}
	s.tenants[tenantID] = t

	s.wg.Add(1)
	go s.loop(tenantID, t)

	s.log.Info("directory sync scheduled",
		slog.String("company_id", tenantID),
		slog.Int("interval_hours", intervalHours))
}

func (s *SyncScheduler) UnscheduleTenant(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tenants[tenantID]; ok {
		t.cancel()
		delete(s.tenants, tenantID)
		s.log.Info("directory sync unscheduled", slog.String("company_id", tenantID))
	}
}

// Scheduled returns the armed tenants and their interval in hours.
func (s *SyncScheduler) Scheduled() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.tenants))
	for id, t := range s.tenants {
		out[id] = t.hours
	}
	return out
}

// TriggerSync runs a sync now under the tenant lease. It fails with
// ErrSyncInProgress instead of waiting for a running sync.
func (s *SyncScheduler) TriggerSync(ctx context.Context, tenantID string) (domain.SyncResult, error) {
	release, ok := s.leases.TryAcquire(tenantID)
	if !ok {
		return domain.SyncResult{}, ErrSyncInProgress
	}
	defer release()
	return s.syncer.SyncTenant(ctx, tenantID)
}

// Reconcile cancels timers for tenants that are no longer enabled and arms
// the ones that are missing or whose interval changed.
func (s *SyncScheduler) Reconcile(ctx context.Context) error {
	configs, err := s.configs.ListEnabledDirectoryConfigs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list enabled directory configs: %w", err)
	}

	want := make(map[string]int, len(configs))
	for _, c := range configs {
		if c.SyncIntervalHours > 0 {
			want[c.CompanyID] = c.SyncIntervalHours
		}
	}

	have := s.Scheduled()
	for id := range have {
		if _, ok := want[id]; !ok {
			s.UnscheduleTenant(id)
		}
	}
	for id, hours := range want {
		if have[id] != hours {
			s.ScheduleTenant(id, hours)
		}
	}
	return nil
}

func (s *SyncScheduler) loop(tenantID string, t *tenantTimer) {
	defer s.wg.Done()
	defer t.ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.stop:
			return
		case <-t.ticker.Chan():
			// Sync off the loop goroutine so ticks keep draining while a
			// long run holds the lease.
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.runScheduled(tenantID)
			}()
		}
	}
}

func (s *SyncScheduler) runScheduled(tenantID string) {
	release, ok := s.leases.TryAcquire(tenantID)
	if !ok {
		s.metrics.syncSkipped()
		s.log.Info("directory sync skipped, previous run still in flight", slog.String("company_id", tenantID))
		return
	}
	defer release()

	if _, err := s.syncer.SyncTenant(s.ctx, tenantID); err != nil {
		s.log.Error("scheduled directory sync failed",
			slog.String("company_id", tenantID),
			slog.Any("error", err))
	}
}

func (t *tenantTimer) cancel() {
	t.ticker.Stop()
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
}
