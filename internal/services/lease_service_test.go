package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"leasehub/internal/models"
	"leasehub/internal/testutil"
	"leasehub/pkg/errors"
	"leasehub/pkg/jwt"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type leaseFixture struct {
	db       *gorm.DB
	svc      *LeaseService
	locker   *LocalUnitLocker
	events   *recordingEmitter
	property *models.Property
	unit     *models.Unit
	tenant   *models.Tenant

	mu    sync.Mutex
	clock time.Time
}

func newLeaseFixture(t *testing.T, opts ...func(*LeaseOptions)) *leaseFixture {
	t.Helper()
	return newLeaseFixtureOn(t, testutil.NewTestDB(t), opts...)
}

func newLeaseFixtureOn(t *testing.T, db *gorm.DB, opts ...func(*LeaseOptions)) *leaseFixture {
	t.Helper()

	property, unit := testutil.SeedUnit(t, db, "P1", "U-101")
	tenant := testutil.SeedTenant(t, db, "Acme Trading")

	options := LeaseOptions{
		LockTimeout:     5 * time.Second,
		TxTimeout:       5 * time.Second,
		TxRetries:       2,
		ReferencePrefix: "LEASE",
		RejectPastEnd:   true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	f := &leaseFixture{
		db:       db,
		locker:   NewLocalUnitLocker(),
		events:   &recordingEmitter{},
		property: property,
		unit:     unit,
		tenant:   tenant,
		clock:    day(2024, 12, 1),
	}
	f.svc = NewLeaseService(db, NewUnitDirectory(db), NewTenantDirectory(db), f.locker, f.events, options)
	f.svc.SetClock(f.now)
	return f
}

func (f *leaseFixture) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clock
}

func (f *leaseFixture) setNow(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = t
}

func (f *leaseFixture) input(start, end time.Time) CreateLeaseInput {
	amount := 1200.0
	return CreateLeaseInput{
		UnitID:    f.unit.ID,
		TenantID:  f.tenant.ID,
		StartDate: start,
		EndDate:   end,
		Amount:    &amount,
	}
}

func (f *leaseFixture) mustCreate(t *testing.T, start, end time.Time) *models.Lease {
	t.Helper()
	lease, err := f.svc.CreateLease(context.Background(), f.input(start, end), adminScope)
	require.NoError(t, err)
	return lease
}

func (f *leaseFixture) stored(t *testing.T, id string) models.Lease {
	t.Helper()
	var lease models.Lease
	require.NoError(t, f.db.Unscoped().Where("id = ?", id).First(&lease).Error)
	return lease
}

var adminScope = CallerScope{UserID: 1, Username: "admin", Role: jwt.RoleAdmin}

func managerOf(propertyID uint) CallerScope {
	return CallerScope{UserID: 2, Username: "manager", Role: jwt.RoleManager, PropertyID: propertyID}
}

func ptr[T any](v T) *T {
	return &v
}

func TestCreateLeaseSuccess(t *testing.T) {
	f := newLeaseFixture(t)

	lease, err := f.svc.CreateLease(context.Background(), f.input(day(2025, 1, 1), day(2025, 2, 1)), managerOf(f.property.ID))
	require.NoError(t, err)

	assert.NotEmpty(t, lease.ID)
	assert.Regexp(t, `^LEASE-ACME-TRADING-[0-9A-F]{8}$`, lease.Reference)
	assert.Equal(t, models.LeaseStatusActive, lease.Status)
	assert.Equal(t, f.property.ID, lease.PropertyID)
	assert.Equal(t, uint(2), lease.CreatedBy)

	stored := f.stored(t, lease.ID)
	assert.Equal(t, lease.Reference, stored.Reference)
	assert.True(t, stored.StartDate.Equal(day(2025, 1, 1)))
	assert.True(t, stored.EndDate.Equal(day(2025, 2, 1)))
	assert.InDelta(t, 1200.0, stored.Amount, 0.001)

	events := f.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventLeaseCreated, events[0].Name)
	assert.Equal(t, lease.ID, events[0].LeaseID)
}

func TestCreateLeaseValidation(t *testing.T) {
	f := newLeaseFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*CreateLeaseInput)
	}{
		{"start equals end", func(in *CreateLeaseInput) { in.EndDate = in.StartDate }},
		{"start after end", func(in *CreateLeaseInput) { in.StartDate = day(2025, 3, 1) }},
		{"missing unit", func(in *CreateLeaseInput) { in.UnitID = 0 }},
		{"missing tenant", func(in *CreateLeaseInput) { in.TenantID = 0 }},
		{"missing start", func(in *CreateLeaseInput) { in.StartDate = time.Time{} }},
		{"missing amount", func(in *CreateLeaseInput) { in.Amount = nil }},
		{"negative amount", func(in *CreateLeaseInput) { in.Amount = ptr(-1.0) }},
		{"non active status", func(in *CreateLeaseInput) { in.Status = models.LeaseStatusCancelled }},
		{"unknown status", func(in *CreateLeaseInput) { in.Status = "draft" }},
		{"end already past", func(in *CreateLeaseInput) {
			in.StartDate = day(2024, 10, 1)
			in.EndDate = day(2024, 11, 1)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := f.input(day(2025, 1, 1), day(2025, 2, 1))
			tt.mutate(&input)
			_, err := f.svc.CreateLease(ctx, input, adminScope)
			assert.Equal(t, errors.KindValidation, errors.KindOf(err), "%v", err)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&models.Lease{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, f.events.Names())
}

func TestCreateLeaseWithPastEndWhenAllowed(t *testing.T) {
	f := newLeaseFixture(t, func(o *LeaseOptions) { o.RejectPastEnd = false })

	lease, err := f.svc.CreateLease(context.Background(), f.input(day(2024, 10, 1), day(2024, 11, 1)), adminScope)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusExpired, lease.Status)
	assert.Equal(t, models.LeaseStatusActive, f.stored(t, lease.ID).Status)
}

func TestCreateLeaseAccessDenied(t *testing.T) {
	f := newLeaseFixture(t)
	ctx := context.Background()
	input := f.input(day(2025, 1, 1), day(2025, 2, 1))

	_, err := f.svc.CreateLease(ctx, input, managerOf(f.property.ID+1))
	assert.True(t, errors.Is(err, errors.KindAccessDenied))

	_, err = f.svc.CreateLease(ctx, input, CallerScope{UserID: 3, Role: jwt.RoleManager})
	assert.True(t, errors.Is(err, errors.KindAccessDenied))

	_, err = f.svc.CreateLease(ctx, input, CallerScope{UserID: 4, Role: jwt.RoleViewer, PropertyID: f.property.ID})
	assert.True(t, errors.Is(err, errors.KindAccessDenied))
}

func TestCreateLeaseUnknownUnitOrTenant(t *testing.T) {
	f := newLeaseFixture(t)
	ctx := context.Background()

	input := f.input(day(2025, 1, 1), day(2025, 2, 1))
	input.UnitID = 9999
	_, err := f.svc.CreateLease(ctx, input, adminScope)
	assert.True(t, errors.Is(err, errors.KindNotFound))

	input = f.input(day(2025, 1, 1), day(2025, 2, 1))
	input.TenantID = 9999
	_, err = f.svc.CreateLease(ctx, input, adminScope)
	assert.True(t, errors.Is(err, errors.KindNotFound))

	require.NoError(t, f.db.Delete(f.unit).Error)
	_, err = f.svc.CreateLease(ctx, f.input(day(2025, 1, 1), day(2025, 2, 1)), adminScope)
	assert.True(t, errors.Is(err, errors.KindNotFound))
}

func TestCreateLeaseOverlapConflict(t *testing.T) {
	f := newLeaseFixture(t)
	ctx := context.Background()
	first := f.mustCreate(t, day(2025, 1, 1), day(2025, 2, 1))

	_, err := f.svc.CreateLease(ctx, f.input(day(2025, 1, 31), day(2025, 3, 1)), adminScope)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindOverlapConflict))
	assert.False(t, errors.KindOf(err).Retryable())

	conflict := errors.ConflictOf(err)
	require.NotNil(t, conflict)
	assert.Equal(t, first.ID, conflict.LeaseID)
	assert.Equal(t, first.Reference, conflict.Reference)
	assert.True(t, conflict.StartDate.Equal(day(2025, 1, 1)))
	assert.True(t, conflict.EndDate.Equal(day(2025, 2, 1)))

	// 首尾相接不冲突
	next, err := f.svc.CreateLease(ctx, f.input(day(2025, 2, 1), day(2025, 3, 1)), adminScope)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusActive, next.Status)

	// 其他单元互不影响
	_, otherUnit := testutil.SeedUnit(t, f.db, "P1", "U-102")
	input := f.input(day(2025, 1, 1), day(2025, 2, 1))
	input.UnitID = otherUnit.ID
	_, err = f.svc.CreateLease(ctx, input, adminScope)
	require.NoError(t, err)
}

type createRaceResult struct {
	successes int
	conflicts int
	others    []error
}

// raceCreates 同时发起 workers 个两两重叠的创建请求
func raceCreates(f *leaseFixture, workers int) createRaceResult {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result createRaceResult
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			s := day(2025, 1, 1).AddDate(0, 0, i)
			_, err := f.svc.CreateLease(context.Background(), f.input(s, s.AddDate(0, 1, 0)), adminScope)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.successes++
			case errors.Is(err, errors.KindOverlapConflict):
				result.conflicts++
			default:
				result.others = append(result.others, err)
			}
		}(i)
	}
	close(start)
	wg.Wait()
	return result
}

func TestConcurrentCreateExactlyOneSucceeds(t *testing.T) {
	// 多连接文件库：事务可以并发开启，串行化只能来自单元锁
	f := newLeaseFixtureOn(t, testutil.NewFileTestDB(t))
	locker := &countingLocker{inner: f.locker}
	f.svc.locker = locker
	window := &raceWindow{hold: 20 * time.Millisecond}
	f.svc.beforeInsert = window.enter

	const workers = 8
	result := raceCreates(f, workers)

	assert.Empty(t, result.others)
	assert.Equal(t, 1, result.successes)
	assert.Equal(t, workers-1, result.conflicts)

	calls, maxHeld := locker.stats()
	assert.Equal(t, workers, calls)
	assert.Equal(t, 1, maxHeld)
	entries, peak := window.stats()
	assert.Equal(t, 1, entries)
	assert.Equal(t, 1, peak)

	var active int64
	require.NoError(t, f.db.Model(&models.Lease{}).Where("unit_id = ? AND status = ?", f.unit.ID, models.LeaseStatusActive).Count(&active).Error)
	assert.Equal(t, int64(1), active)
}

func TestConcurrentCreateInterleavesWithoutUnitLock(t *testing.T) {
	// 去掉单元锁后，多个请求会同时通过重叠检查
	f := newLeaseFixtureOn(t, testutil.NewFileTestDB(t))
	f.svc.locker = noopLocker{}
	window := &raceWindow{hold: 100 * time.Millisecond}
	f.svc.beforeInsert = window.enter

	raceCreates(f, 8)

	_, peak := window.stats()
	assert.GreaterOrEqual(t, peak, 2)
}

func TestCreateLeaseBusyWhenUnitLocked(t *testing.T) {
	f := newLeaseFixture(t, func(o *LeaseOptions) { o.LockTimeout = 30 * time.Millisecond })

	unlock, err := f.locker.Lock(context.Background(), f.unit.ID)
	require.NoError(t, err)
	defer unlock()

	_, err = f.svc.CreateLease(context.Background(), f.input(day(2025, 1, 1), day(2025, 2, 1)), adminScope)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.KindBusy))
	assert.True(t, errors.KindOf(err).Retryable())
}

func TestUpdateLeaseRechecksOverlap(t *testing.T) {
	f := newLeaseFixture(t)
	ctx := context.Background()
	jan := f.mustCreate(t, day(2025, 1, 1), day(2025, 2, 1))
	mar := f.mustCreate(t, day(2025, 3, 1), day(2025, 4, 1))

	_, err := f.svc.UpdateLease(ctx, mar.ID, UpdateLeaseInput{StartDate: ptr(day(2025, 1, 15))}, adminScope)
	require.True(t, errors.Is(err, errors.KindOverlapConflict))
	assert.Equal(t, jan.ID, errors.ConflictOf(err).LeaseID)

	unchanged := f.stored(t, mar.ID)
	assert.True(t, unchanged.StartDate.Equal(day(2025, 3, 1)))

	// 重新检查时排除自身，与 jan 首尾相接
	updated, err := f.svc.UpdateLease(ctx, mar.ID, UpdateLeaseInput{
		StartDate: ptr(day(2025, 2, 1)),
		EndDate:   ptr(day(2025, 5, 1)),
		Amount:    ptr(1500.0),
	}, adminScope)
	require.NoError(t, err)
	assert.True(t, updated.StartDate.Equal(day(2025, 2, 1)))
	assert.True(t, updated.EndDate.Equal(day(2025, 5, 1)))
	assert.InDelta(t, 1500.0, updated.Amount, 0.001)

	stored := f.stored(t, mar.ID)
	assert.True(t, stored.EndDate.Equal(day(2025, 5, 1)))
	assert.InDelta(t, 1500.0, stored.Amount, 0.001)
	assert.Equal(t, []string{EventLeaseCreated, EventLeaseCreated, EventLeaseUpdated}, f.events.Names())
}

func TestUpdateLeaseValidation(t *testing.T) {
	f := newLeaseFixture(t)
	ctx := context.Background()
	lease := f.mustCreate(t, day(2025, 1, 1), day(2025, 2, 1))

	_, err := f.svc.UpdateLease(ctx, lease.ID, UpdateLeaseInput{EndDate: ptr(day(2024, 12, 31))}, adminScope)
	assert.True(t, errors.Is(err, errors.KindValidation))

	_, err = f.svc.UpdateLease(ctx, lease.ID, UpdateLeaseInput{Amount: ptr(-5.0)}, adminScope)
	assert.True(t, errors.Is(err, errors.KindValidation))

	_, otherUnit := testutil.SeedUnit(t, f.db, "P1", "U-102")
	_, err = f.svc.UpdateLease(ctx, lease.ID, UpdateLeaseInput{UnitID: ptr(otherUnit.ID)}, adminScope)
	assert.True(t, errors.Is(err, errors.KindValidation))

	// 同一单元视为未修改
	_, err = f.svc.UpdateLease(ctx, lease.ID, UpdateLeaseInput{UnitID: ptr(f.unit.ID)}, adminScope)
	assert.NoError(t, err)

	_, err = f.svc.UpdateLease(ctx, lease.ID, UpdateLeaseInput{Amount: ptr(10.0)}, managerOf(f.property.ID+1))
	assert.True(t, errors.Is(err, errors.KindAccessDenied))

	_, err = f.svc.UpdateLease(ctx, uuid.NewString(), UpdateLeaseInput{Amount: ptr(10.0)}, adminScope)
	assert.True(t, errors.Is(err, errors.KindNotFound))

	assert.Equal(t, []string{EventLeaseCreated}, f.events.Names())
}

func TestUpdateLeaseStatusTransitions(t *testing.T) {
	f := newLeaseFixture(t)
	ctx := context.Background()
	lease := f.mustCreate(t, day(2025, 1, 1), day(2025, 2, 1))

	_, err := f.svc.UpdateLease(ctx, lease.ID, UpdateLeaseInput{Status: ptr(models.LeaseStatusExpired)}, adminScope)
	assert.True(t, errors.Is(err, errors.KindInvalidTransition))

	same, err := f.svc.UpdateLease(ctx, lease.ID, UpdateLeaseInput{Status: ptr(models.LeaseStatusActive)}, adminScope)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusActive, same.Status)

	cancelled, err := f.svc.UpdateLease(ctx, lease.ID, UpdateLeaseInput{Status: ptr(models.LeaseStatusCancelled)}, adminScope)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusCancelled, cancelled.Status)

	stored := f.stored(t, lease.ID)
	assert.Equal(t, models.LeaseStatusCancelled, stored.Status)
	assert.False(t, stored.DeletedAt.Valid)

	_, err = f.svc.UpdateLease(ctx, lease.ID, UpdateLeaseInput{Status: ptr(models.LeaseStatusActive)}, adminScope)
	assert.True(t, errors.Is(err, errors.KindInvalidTransition))

	_, err = f.svc.UpdateLease(ctx, lease.ID, UpdateLeaseInput{Amount: ptr(99.0)}, adminScope)
	assert.True(t, errors.Is(err, errors.KindInvalidTransition))

	assert.Equal(t, []string{EventLeaseCreated, EventLeaseCancelled}, f.events.Names())
}

func TestUpdateLeaseOnEffectivelyExpiredLease(t *testing.T) {
	f := newLeaseFixture(t)
	ctx := context.Background()
	lease := f.mustCreate(t, day(2025, 1, 1), day(2025, 2, 1))
	f.setNow(day(2025, 2, 10))

	_, err := f.svc.UpdateLease(ctx, lease.ID, UpdateLeaseInput{EndDate: ptr(day(2025, 6, 1))}, adminScope)
	assert.True(t, errors.Is(err, errors.KindInvalidTransition))

	_, err = f.svc.UpdateLease(ctx, lease.ID, UpdateLeaseInput{Status: ptr(models.LeaseStatusCancelled)}, adminScope)
	assert.True(t, errors.Is(err, errors.KindInvalidTransition))

	noop, err := f.svc.UpdateLease(ctx, lease.ID, UpdateLeaseInput{Status: ptr(models.LeaseStatusExpired)}, adminScope)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusExpired, noop.Status)
	assert.Equal(t, models.LeaseStatusActive, f.stored(t, lease.ID).Status)
}

func TestCancelLeaseIsIdempotent(t *testing.T) {
	f := newLeaseFixture(t)
	ctx := context.Background()
	lease := f.mustCreate(t, day(2025, 1, 1), day(2025, 2, 1))

	first, err := f.svc.CancelLease(ctx, lease.ID, managerOf(f.property.ID))
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusCancelled, first.Status)
	assert.True(t, first.DeletedAt.Valid)

	second, err := f.svc.CancelLease(ctx, lease.ID, managerOf(f.property.ID))
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusCancelled, second.Status)
	assert.True(t, second.DeletedAt.Valid)

	stored := f.stored(t, lease.ID)
	assert.Equal(t, models.LeaseStatusCancelled, stored.Status)
	assert.True(t, stored.DeletedAt.Valid)
	assert.Equal(t, []string{EventLeaseCreated, EventLeaseCancelled}, f.events.Names())

	// 取消后区间释放
	_, err = f.svc.CreateLease(ctx, f.input(day(2025, 1, 1), day(2025, 2, 1)), adminScope)
	require.NoError(t, err)
}

func TestCancelLeaseAfterStatusOnlyCancel(t *testing.T) {
	f := newLeaseFixture(t)
	ctx := context.Background()
	lease := f.mustCreate(t, day(2025, 1, 1), day(2025, 2, 1))

	_, err := f.svc.UpdateLease(ctx, lease.ID, UpdateLeaseInput{Status: ptr(models.LeaseStatusCancelled)}, adminScope)
	require.NoError(t, err)

	cancelled, err := f.svc.CancelLease(ctx, lease.ID, adminScope)
	require.NoError(t, err)
	assert.True(t, cancelled.DeletedAt.Valid)
	assert.Equal(t, []string{EventLeaseCreated, EventLeaseCancelled}, f.events.Names())
}

func TestCancelLeaseRejected(t *testing.T) {
	f := newLeaseFixture(t)
	ctx := context.Background()
	lease := f.mustCreate(t, day(2025, 1, 1), day(2025, 2, 1))

	_, err := f.svc.CancelLease(ctx, lease.ID, CallerScope{UserID: 5, Role: jwt.RoleViewer, PropertyID: f.property.ID})
	assert.True(t, errors.Is(err, errors.KindAccessDenied))

	_, err = f.svc.CancelLease(ctx, lease.ID, managerOf(f.property.ID+1))
	assert.True(t, errors.Is(err, errors.KindAccessDenied))

	_, err = f.svc.CancelLease(ctx, "not-a-uuid", adminScope)
	assert.True(t, errors.Is(err, errors.KindNotFound))

	f.setNow(day(2025, 3, 1))
	_, err = f.svc.CancelLease(ctx, lease.ID, adminScope)
	assert.True(t, errors.Is(err, errors.KindInvalidTransition))
	assert.False(t, f.stored(t, lease.ID).DeletedAt.Valid)
}

func TestGetLeaseAppliesReadTimeCorrection(t *testing.T) {
	f := newLeaseFixture(t)
	ctx := context.Background()
	lease := f.mustCreate(t, day(2025, 1, 1), day(2025, 2, 1))

	got, err := f.svc.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusActive, got.Status)

	f.setNow(day(2025, 2, 1).Add(time.Second))
	got, err = f.svc.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusExpired, got.Status)
	assert.Equal(t, models.LeaseStatusActive, f.stored(t, lease.ID).Status)

	_, err = f.svc.GetLease(ctx, uuid.NewString())
	assert.True(t, errors.Is(err, errors.KindNotFound))
}

func TestGetLeaseReturnsCancelledLease(t *testing.T) {
	f := newLeaseFixture(t)
	ctx := context.Background()
	lease := f.mustCreate(t, day(2025, 1, 1), day(2025, 2, 1))
	_, err := f.svc.CancelLease(ctx, lease.ID, adminScope)
	require.NoError(t, err)

	got, err := f.svc.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeaseStatusCancelled, got.Status)
}

func TestListLeasesFiltersAndPagination(t *testing.T) {
	f := newLeaseFixture(t)
	ctx := context.Background()

	jan := f.mustCreate(t, day(2025, 1, 1), day(2025, 2, 1))
	feb := f.mustCreate(t, day(2025, 2, 1), day(2025, 3, 1))
	mar := f.mustCreate(t, day(2025, 3, 1), day(2025, 4, 1))

	_, unit2 := testutil.SeedUnit(t, f.db, "P2", "U-201")
	other := testutil.SeedTenant(t, f.db, "Globex")
	input := f.input(day(2025, 1, 1), day(2025, 6, 1))
	input.UnitID = unit2.ID
	input.TenantID = other.ID
	globex, err := f.svc.CreateLease(ctx, input, adminScope)
	require.NoError(t, err)

	items, total, err := f.svc.ListLeases(ctx, LeaseFilter{UnitID: f.unit.ID}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, items, 2)
	assert.Equal(t, mar.ID, items[0].ID)
	assert.Equal(t, feb.ID, items[1].ID)

	items, _, err = f.svc.ListLeases(ctx, LeaseFilter{UnitID: f.unit.ID}, 2, 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, jan.ID, items[0].ID)

	items, total, err = f.svc.ListLeases(ctx, LeaseFilter{TenantID: other.ID}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, globex.ID, items[0].ID)

	items, total, err = f.svc.ListLeases(ctx, LeaseFilter{PropertyID: f.property.ID}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, items, 3)

	_, _, err = f.svc.ListLeases(ctx, LeaseFilter{Status: "draft"}, 1, 10)
	assert.True(t, errors.Is(err, errors.KindValidation))
}

func TestListLeasesStatusUsesCorrectedStatus(t *testing.T) {
	f := newLeaseFixture(t)
	ctx := context.Background()

	jan := f.mustCreate(t, day(2025, 1, 1), day(2025, 2, 1))
	mar := f.mustCreate(t, day(2025, 3, 1), day(2025, 4, 1))
	may := f.mustCreate(t, day(2025, 5, 1), day(2025, 6, 1))
	_, err := f.svc.CancelLease(ctx, may.ID, adminScope)
	require.NoError(t, err)

	f.setNow(day(2025, 2, 15))

	expired, total, err := f.svc.ListLeases(ctx, LeaseFilter{Status: models.LeaseStatusExpired}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, expired, 1)
	assert.Equal(t, jan.ID, expired[0].ID)
	assert.Equal(t, models.LeaseStatusExpired, expired[0].Status)

	active, total, err := f.svc.ListLeases(ctx, LeaseFilter{Status: models.LeaseStatusActive}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, mar.ID, active[0].ID)

	all, total, err := f.svc.ListLeases(ctx, LeaseFilter{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	for _, l := range all {
		assert.NotEqual(t, may.ID, l.ID)
	}

	withDeleted, total, err := f.svc.ListLeases(ctx, LeaseFilter{Status: models.LeaseStatusCancelled, IncludeDeleted: true}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, may.ID, withDeleted[0].ID)
}

func TestListLeasesBoundsPageWindow(t *testing.T) {
	f := newLeaseFixture(t)
	f.mustCreate(t, day(2025, 1, 1), day(2025, 2, 1))

	items, total, err := f.svc.ListLeases(context.Background(), LeaseFilter{}, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, items, 1)
}
