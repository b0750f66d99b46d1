package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"commerce-sync/internal/models"
	"commerce-sync/internal/service"
	"commerce-sync/internal/util"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Triggers
const (
	TriggerQuick  = "quick"
	TriggerFull   = "full"
	TriggerManual = "manual"
)

const lockKeyPrefix = "tenant-sync:"

var errLockHeld = errors.New("sync already in progress")

// Orchestrator runs tenant syncs
type Orchestrator interface {
	ActiveTenants(ctx context.Context) ([]models.Tenant, error)
	ActiveTenant(ctx context.Context, id string) (*models.Tenant, error)
	QuickSync(ctx context.Context, tenant *models.Tenant) (*service.SyncResults, error)
	FullSync(ctx context.Context, tenant *models.Tenant) (*service.SyncResults, error)
	LatestSyncLog(ctx context.Context, tenantID string) (*models.SyncLog, error)
}

// Locker serializes syncs of the same tenant across ticks and replicas
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, acquired bool, err error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// Config holds scheduler cadences and per-tenant limits
type Config struct {
	QuickSchedule string
	FullSchedule  string
	TenantTimeout time.Duration
	LockTTL       time.Duration
}

// TickReport summarizes one fan-out across tenants
type TickReport struct {
	Trigger   string        `json:"trigger"`
	Tenants   int           `json:"tenants"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

// Reasons an on-demand sync did not succeed
const (
	ReasonNotFound   = "not_found"
	ReasonInactive   = "inactive"
	ReasonInProgress = "in_progress"
	ReasonFailed     = "failed"
)

// Outcome is the result of an on-demand tenant sync. Reason is empty on success.
type Outcome struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Reason  string               `json:"-"`
	Results *service.SyncResults `json:"results,omitempty"`
}

// NeverSynced is the last status of a tenant without any sync log
const NeverSynced = "never"

// TenantSyncState is the latest sync of one active tenant
type TenantSyncState struct {
	TenantID       string     `json:"id"`
	Name           string     `json:"name"`
	ShopDomain     string     `json:"shopDomain"`
	LastSync       *time.Time `json:"lastSync"`
	LastSyncStatus string     `json:"lastSyncStatus"`
}

// ScheduleStatus reports the cadences and where every active tenant stands
type ScheduleStatus struct {
	Running       bool              `json:"running"`
	QuickSchedule string            `json:"quickSchedule"`
	FullSchedule  string            `json:"fullSchedule"`
	Tenants       []TenantSyncState `json:"tenants"`
}

type runFunc func(ctx context.Context, tenant *models.Tenant) (*service.SyncResults, error)

// Scheduler triggers quick and full syncs of every active tenant on two cron cadences
type Scheduler struct {
	orchestrator Orchestrator
	locker       Locker
	cfg          Config
	logger       *zap.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
}

// New creates a stopped scheduler. locker may be nil.
func New(orchestrator Orchestrator, locker Locker, cfg Config) *Scheduler {
	if cfg.QuickSchedule == "" {
		cfg.QuickSchedule = "*/15 * * * *"
	}
	if cfg.FullSchedule == "" {
		cfg.FullSchedule = "0 * * * *"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 15 * time.Minute
	}

	return &Scheduler{
		orchestrator: orchestrator,
		locker:       locker,
		cfg:          cfg,
		logger:       util.GetLogger(),
	}
}

// Start registers both cadences and starts the cron loop. Calling it on a running
// scheduler is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	cronLogger := cron.PrintfLogger(zap.NewStdLog(s.logger))
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))

	entries := make(map[string]cron.EntryID, 2)
	for trigger, schedule := range map[string]string{
		TriggerQuick: s.cfg.QuickSchedule,
		TriggerFull:  s.cfg.FullSchedule,
	} {
		id, err := c.AddFunc(schedule, func() {
			s.runTrigger(context.Background(), trigger)
		})
		if err != nil {
			return fmt.Errorf("invalid %s schedule %q: %w", trigger, schedule, err)
		}
		entries[trigger] = id
	}

	c.Start()
	s.cron = c
	s.entries = entries

	s.logger.Info("Sync scheduler started",
		zap.String("quick_schedule", s.cfg.QuickSchedule),
		zap.String("full_schedule", s.cfg.FullSchedule))
	return nil
}

// Stop deregisters both cadences and waits for running ticks until ctx is done.
// Calling it on a stopped scheduler is a no-op.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	if c == nil {
		s.mu.Unlock()
		return
	}
	for _, id := range s.entries {
		c.Remove(id)
	}
	s.cron = nil
	s.entries = nil
	s.mu.Unlock()

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		s.logger.Warn("Sync scheduler stopped before running ticks finished")
	}
	s.logger.Info("Sync scheduler stopped")
}

// Running reports whether the cron loop is active
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

func (s *Scheduler) runTrigger(ctx context.Context, trigger string) {
	switch trigger {
	case TriggerQuick:
		s.RunQuickTick(ctx)
	case TriggerFull:
		s.RunFullTick(ctx)
	}
}

// RunQuickTick quick-syncs every active tenant concurrently
func (s *Scheduler) RunQuickTick(ctx context.Context) TickReport {
	return s.runTick(ctx, TriggerQuick, s.orchestrator.QuickSync)
}

// RunFullTick full-syncs every active tenant concurrently
func (s *Scheduler) RunFullTick(ctx context.Context) TickReport {
	return s.runTick(ctx, TriggerFull, s.orchestrator.FullSync)
}

func (s *Scheduler) runTick(ctx context.Context, trigger string, run runFunc) TickReport {
	start := time.Now()
	report := TickReport{Trigger: trigger}
	logger := s.logger.With(zap.String("trigger", trigger))

	defer func() {
		report.Duration = time.Since(start)
		util.SchedulerTickDuration.WithLabelValues(trigger).Observe(report.Duration.Seconds())
	}()

	tenants, err := s.orchestrator.ActiveTenants(ctx)
	if err != nil {
		logger.Error("Failed to list tenants for scheduled sync", zap.Error(err))
		return report
	}
	report.Tenants = len(tenants)
	if len(tenants) == 0 {
		logger.Debug("No active tenants to sync")
		return report
	}

	tasks := make([]task, 0, len(tenants))
	for i := range tenants {
		tenant := &tenants[i]
		tasks = append(tasks, func(ctx context.Context) error {
			_, err := s.runTenant(ctx, tenant, run)
			return err
		})
	}

	errs := settleAll(ctx, s.cfg.TenantTimeout, tasks)
	for i, err := range errs {
		outcome := "succeeded"
		switch {
		case err == nil:
			report.Succeeded++
		case errors.Is(err, errLockHeld):
			outcome = "skipped"
			report.Skipped++
			logger.Info("Tenant sync skipped, already in progress", zap.String("tenant_id", tenants[i].ID))
		default:
			outcome = "failed"
			report.Failed++
			logger.Error("Tenant sync failed", zap.String("tenant_id", tenants[i].ID), zap.Error(err))
		}
		util.SchedulerTenantRunsTotal.WithLabelValues(trigger, outcome).Inc()
	}

	logger.Info("Scheduled sync finished",
		zap.Int("tenants", report.Tenants),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped))
	return report
}

// runTenant runs one tenant sync under the tenant lock when a locker is configured
func (s *Scheduler) runTenant(ctx context.Context, tenant *models.Tenant, run runFunc) (*service.SyncResults, error) {
	if s.locker != nil {
		key := lockKeyPrefix + tenant.ID
		token, acquired, err := s.locker.AcquireLock(ctx, key, s.cfg.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire sync lock: %w", err)
		}
		if !acquired {
			return nil, errLockHeld
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := s.locker.ReleaseLock(releaseCtx, key, token); err != nil {
				s.logger.Warn("Failed to release sync lock", zap.String("tenant_id", tenant.ID), zap.Error(err))
			}
		}()
	}

	return run(ctx, tenant)
}

// SyncTenantByID quick-syncs one tenant on demand. It never returns an error; failures are
// reported in the outcome.
func (s *Scheduler) SyncTenantByID(ctx context.Context, tenantID string) Outcome {
	tenant, err := s.orchestrator.ActiveTenant(ctx, tenantID)
	switch {
	case errors.Is(err, service.ErrTenantNotFound):
		return Outcome{Success: false, Message: "Tenant not found", Reason: ReasonNotFound}
	case errors.Is(err, service.ErrTenantInactive):
		return Outcome{Success: false, Message: "Tenant is not active", Reason: ReasonInactive}
	case err != nil:
		return Outcome{Success: false, Message: fmt.Sprintf("Failed to load tenant: %v", err), Reason: ReasonFailed}
	}

	if s.cfg.TenantTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.TenantTimeout)
		defer cancel()
	}

	results, err := s.runTenant(ctx, tenant, s.orchestrator.QuickSync)
	switch {
	case errors.Is(err, errLockHeld):
		util.SchedulerTenantRunsTotal.WithLabelValues(TriggerManual, "skipped").Inc()
		return Outcome{Success: false, Message: "Sync already in progress for tenant", Reason: ReasonInProgress}
	case err != nil:
		util.SchedulerTenantRunsTotal.WithLabelValues(TriggerManual, "failed").Inc()
		s.logger.Error("Manual sync failed", zap.String("tenant_id", tenantID), zap.Error(err))
		return Outcome{Success: false, Message: fmt.Sprintf("Sync failed: %v", err), Reason: ReasonFailed, Results: results}
	}

	util.SchedulerTenantRunsTotal.WithLabelValues(TriggerManual, "succeeded").Inc()
	return Outcome{Success: true, Message: fmt.Sprintf("Sync completed for tenant %s", tenant.ID), Results: results}
}

// Status lists every active tenant with its latest sync time and status. A tenant whose
// log cannot be read reports no last sync rather than failing the listing.
func (s *Scheduler) Status(ctx context.Context) (*ScheduleStatus, error) {
	tenants, err := s.orchestrator.ActiveTenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}

	states := make([]TenantSyncState, 0, len(tenants))
	for _, tenant := range tenants {
		state := TenantSyncState{
			TenantID:       tenant.ID,
			Name:           tenant.Name,
			ShopDomain:     tenant.ShopDomain,
			LastSyncStatus: NeverSynced,
		}

		latest, err := s.orchestrator.LatestSyncLog(ctx, tenant.ID)
		if err != nil {
			s.logger.Warn("Failed to read latest sync log", zap.String("tenant_id", tenant.ID), zap.Error(err))
		} else if latest != nil {
			completedAt := latest.CompletedAt
			state.LastSync = &completedAt
			state.LastSyncStatus = latest.Status
		}
		states = append(states, state)
	}

	return &ScheduleStatus{
		Running:       s.Running(),
		QuickSchedule: s.cfg.QuickSchedule,
		FullSchedule:  s.cfg.FullSchedule,
		Tenants:       states,
	}, nil
}
