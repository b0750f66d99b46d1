package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"commerce-sync/internal/models"
	"commerce-sync/internal/service"
	"commerce-sync/internal/synctest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrchestrator struct {
	mu       sync.Mutex
	tenants  []models.Tenant
	listErr  error
	behavior map[string]func(ctx context.Context) error
	latest   map[string]*models.SyncLog
	quick    []string
	full     []string
}

func newFakeOrchestrator(ids ...string) *fakeOrchestrator {
	f := &fakeOrchestrator{
		behavior: make(map[string]func(ctx context.Context) error),
		latest:   make(map[string]*models.SyncLog),
	}
	for _, id := range ids {
		f.tenants = append(f.tenants, models.Tenant{ID: id, IsActive: true})
	}
	return f
}

func (f *fakeOrchestrator) ActiveTenants(ctx context.Context) ([]models.Tenant, error) {
	return f.tenants, f.listErr
}

func (f *fakeOrchestrator) ActiveTenant(ctx context.Context, id string) (*models.Tenant, error) {
	if id == "inactive" {
		return nil, service.ErrTenantInactive
	}
	for i := range f.tenants {
		if f.tenants[i].ID == id {
			return &f.tenants[i], nil
		}
	}
	return nil, service.ErrTenantNotFound
}

func (f *fakeOrchestrator) run(ctx context.Context, tenant *models.Tenant, record *[]string) (*service.SyncResults, error) {
	f.mu.Lock()
	*record = append(*record, tenant.ID)
	behave := f.behavior[tenant.ID]
	f.mu.Unlock()

	if behave != nil {
		if err := behave(ctx); err != nil {
			return nil, err
		}
	}
	return &service.SyncResults{Customers: &models.SyncResult{RecordsProcessed: 1}}, nil
}

func (f *fakeOrchestrator) QuickSync(ctx context.Context, tenant *models.Tenant) (*service.SyncResults, error) {
	return f.run(ctx, tenant, &f.quick)
}

func (f *fakeOrchestrator) FullSync(ctx context.Context, tenant *models.Tenant) (*service.SyncResults, error) {
	return f.run(ctx, tenant, &f.full)
}

func (f *fakeOrchestrator) LatestSyncLog(ctx context.Context, tenantID string) (*models.SyncLog, error) {
	if tenantID == "unreadable" {
		return nil, errors.New("database unavailable")
	}
	return f.latest[tenantID], nil
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	released []string
}

func (l *fakeLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return "", false, nil
	}
	l.held[key] = true
	return "token-" + key, true, nil
}

func (l *fakeLocker) ReleaseLock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	l.released = append(l.released, key)
	return nil
}

func TestRunQuickTickIsolatesTenantFailures(t *testing.T) {
	orch := newFakeOrchestrator("t1", "t2")
	orch.behavior["t1"] = func(ctx context.Context) error { return errors.New("upstream down") }

	report := New(orch, nil, Config{}).RunQuickTick(context.Background())

	assert.Equal(t, 2, report.Tenants)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.ElementsMatch(t, []string{"t1", "t2"}, orch.quick)
	assert.Empty(t, orch.full)
}

func TestRunQuickTickLeavesFailingTenantDataUntouched(t *testing.T) {
	ctx := context.Background()
	st := synctest.NewStore()
	st.AddTenant(models.Tenant{ID: "A", IsActive: true})
	st.AddTenant(models.Tenant{ID: "B", IsActive: true})

	for _, tenantID := range []string{"A", "B"} {
		email := "old-" + tenantID + "@x.com"
		require.NoError(t, st.UpsertCustomer(ctx, &models.Customer{TenantID: tenantID, ExternalID: "1", Email: &email}))
	}
	seededA := *st.Customers[synctest.Key("A", "1")]

	failing := synctest.NewFetcher()
	failing.FailAll(errors.New("failed to fetch /customers.json: HTTP 503: unavailable"))
	healthy := synctest.NewFetcher()
	healthy.Set(models.EntityCustomers, `{"id":1,"email":"new-B@x.com"}`, `{"id":2,"email":"second-B@x.com"}`)
	healthy.Set(models.EntityOrders, `{"id":900,"total_price":"12.00","customer":{"id":1},"line_items":[{"title":"A","quantity":1,"price":"12.00"}]}`)

	fetchers := map[string]*synctest.Fetcher{"A": failing, "B": healthy}
	svc := service.NewSyncService(st, func(tenant *models.Tenant) service.Fetcher { return fetchers[tenant.ID] }, nil)

	report := New(svc, nil, Config{}).RunQuickTick(ctx)

	assert.Equal(t, 2, report.Tenants)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)

	assert.Equal(t, seededA, *st.Customers[synctest.Key("A", "1")])
	assert.Nil(t, st.Orders[synctest.Key("A", "900")])
	for _, entity := range []string{models.EntityCustomers, models.EntityOrders} {
		logs := st.TenantLogsFor("A", entity)
		require.Len(t, logs, 1, entity)
		assert.Equal(t, models.SyncStatusError, logs[0].Status)
		assert.True(t, logs[0].FetchFailed)
	}

	assert.Equal(t, "new-B@x.com", *st.Customers[synctest.Key("B", "1")].Email)
	assert.Equal(t, "second-B@x.com", *st.Customers[synctest.Key("B", "2")].Email)
	require.NotNil(t, st.Orders[synctest.Key("B", "900")])
	for _, entity := range []string{models.EntityCustomers, models.EntityOrders} {
		logs := st.TenantLogsFor("B", entity)
		require.Len(t, logs, 1, entity)
		assert.Equal(t, models.SyncStatusSuccess, logs[0].Status)
	}
	assert.Zero(t, failing.CallCount(models.EntityProducts))
	assert.Zero(t, healthy.CallCount(models.EntityProducts))
}

func TestRunFullTickRecoversPanics(t *testing.T) {
	orch := newFakeOrchestrator("t1", "t2", "t3")
	orch.behavior["t2"] = func(ctx context.Context) error { panic("nil map") }

	report := New(orch, nil, Config{}).RunFullTick(context.Background())

	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Len(t, orch.full, 3)
}

func TestRunTickAppliesTenantTimeout(t *testing.T) {
	orch := newFakeOrchestrator("slow", "fast")
	orch.behavior["slow"] = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	report := New(orch, nil, Config{TenantTimeout: 20 * time.Millisecond}).RunQuickTick(context.Background())

	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
}

func TestRunTickCountsLockedTenantsAsSkipped(t *testing.T) {
	orch := newFakeOrchestrator("t1", "t2")
	locker := &fakeLocker{held: map[string]bool{"tenant-sync:t1": true}}

	report := New(orch, locker, Config{}).RunQuickTick(context.Background())

	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, []string{"t2"}, orch.quick)
	assert.Equal(t, []string{"tenant-sync:t2"}, locker.released)
	assert.True(t, locker.held["tenant-sync:t1"])
}

func TestRunTickListFailure(t *testing.T) {
	orch := newFakeOrchestrator()
	orch.listErr = errors.New("db down")

	report := New(orch, nil, Config{}).RunQuickTick(context.Background())
	assert.Equal(t, TriggerQuick, report.Trigger)
	assert.Zero(t, report.Tenants)
	assert.Zero(t, report.Succeeded+report.Failed+report.Skipped)
}

func TestSyncTenantByID(t *testing.T) {
	orch := newFakeOrchestrator("t1", "broken")
	orch.behavior["broken"] = func(ctx context.Context) error { return errors.New("bad token") }
	s := New(orch, nil, Config{})

	out := s.SyncTenantByID(context.Background(), "t1")
	assert.True(t, out.Success)
	assert.Equal(t, "Sync completed for tenant t1", out.Message)
	require.NotNil(t, out.Results)

	out = s.SyncTenantByID(context.Background(), "missing")
	assert.Equal(t, Outcome{Success: false, Message: "Tenant not found", Reason: ReasonNotFound}, out)

	out = s.SyncTenantByID(context.Background(), "inactive")
	assert.Equal(t, Outcome{Success: false, Message: "Tenant is not active", Reason: ReasonInactive}, out)

	out = s.SyncTenantByID(context.Background(), "broken")
	assert.False(t, out.Success)
	assert.Contains(t, out.Message, "bad token")
	assert.Equal(t, ReasonFailed, out.Reason)

	assert.Equal(t, []string{"t1", "broken"}, orch.quick)
}

func TestSyncTenantByIDLockHeld(t *testing.T) {
	orch := newFakeOrchestrator("t1")
	locker := &fakeLocker{held: map[string]bool{"tenant-sync:t1": true}}

	out := New(orch, locker, Config{}).SyncTenantByID(context.Background(), "t1")
	assert.False(t, out.Success)
	assert.Equal(t, "Sync already in progress for tenant", out.Message)
	assert.Equal(t, ReasonInProgress, out.Reason)
	assert.Empty(t, orch.quick)
}

func TestStatusListsActiveTenants(t *testing.T) {
	orch := newFakeOrchestrator("t1", "t2", "unreadable")
	orch.tenants[0].Name = "First"
	completed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	orch.latest["t1"] = &models.SyncLog{TenantID: "t1", Status: models.SyncStatusPartial, CompletedAt: completed}

	status, err := New(orch, nil, Config{}).Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.Equal(t, "*/15 * * * *", status.QuickSchedule)
	assert.Equal(t, "0 * * * *", status.FullSchedule)
	require.Len(t, status.Tenants, 3)

	assert.Equal(t, "First", status.Tenants[0].Name)
	require.NotNil(t, status.Tenants[0].LastSync)
	assert.True(t, completed.Equal(*status.Tenants[0].LastSync))
	assert.Equal(t, models.SyncStatusPartial, status.Tenants[0].LastSyncStatus)

	for _, state := range status.Tenants[1:] {
		assert.Nil(t, state.LastSync, state.TenantID)
		assert.Equal(t, NeverSynced, state.LastSyncStatus, state.TenantID)
	}
}

func TestStatusListFailure(t *testing.T) {
	orch := newFakeOrchestrator()
	orch.listErr = errors.New("database unavailable")

	_, err := New(orch, nil, Config{}).Status(context.Background())
	assert.ErrorContains(t, err, "database unavailable")
}

func TestStartStopIdempotent(t *testing.T) {
	s := New(newFakeOrchestrator(), nil, Config{})

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	assert.True(t, s.Running())
	assert.Len(t, s.entries, 2)
	assert.Len(t, s.cron.Entries(), 2)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	s.Stop(ctx)
	assert.False(t, s.Running())

	require.NoError(t, s.Start())
	s.Stop(ctx)
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	s := New(newFakeOrchestrator(), nil, Config{QuickSchedule: "every now and then"})

	err := s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quick")
	assert.False(t, s.Running())
}

func TestSettleAll(t *testing.T) {
	errs := settleAll(context.Background(), 0, []task{
		func(ctx context.Context) error { return nil },
		func(ctx context.Context) error { return errors.New("second") },
		func(ctx context.Context) error { panic("third") },
	})

	require.Len(t, errs, 3)
	assert.NoError(t, errs[0])
	assert.EqualError(t, errs[1], "second")
	assert.EqualError(t, errs[2], "task panicked: third")
}
