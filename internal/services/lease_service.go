package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"leasehub/internal/models"
	"leasehub/pkg/config"
	"leasehub/pkg/errors"
	"leasehub/pkg/logger"
	"leasehub/pkg/pagination"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const maxReferenceAttempts = 5

// LeaseOptions 租约引擎运行参数
type LeaseOptions struct {
	LockTimeout     time.Duration
	TxTimeout       time.Duration
	TxRetries       int
	ReferencePrefix string
	RejectPastEnd   bool
}

// LeaseOptionsFromConfig 从全局配置构造
func LeaseOptionsFromConfig(cfg config.LeaseConfig) LeaseOptions {
	return LeaseOptions{
		LockTimeout:     cfg.LockTimeout,
		TxTimeout:       cfg.TxTimeout,
		TxRetries:       cfg.TxRetries,
		ReferencePrefix: cfg.ReferencePrefix,
		RejectPastEnd:   cfg.RejectPastEnd,
	}
}

// CreateLeaseInput 创建租约参数
type CreateLeaseInput struct {
	UnitID    uint      `json:"unit_id" validate:"required"`
	TenantID  uint      `json:"tenant_id" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	EndDate   time.Time `json:"end_date" validate:"required"`
	Amount    *float64  `json:"amount" validate:"required,gte=0"`
	Status    string    `json:"status" validate:"omitempty,oneof=active expired cancelled"`
}

// UpdateLeaseInput 部分更新，nil 表示不修改
type UpdateLeaseInput struct {
	UnitID    *uint      `json:"unit_id" validate:"omitempty,gt=0"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	Amount    *float64   `json:"amount" validate:"omitempty,gte=0"`
	Status    *string    `json:"status" validate:"omitempty,oneof=active expired cancelled"`
}

// LeaseService 分配引擎：创建、更新、取消、查询租约
type LeaseService struct {
	db       *gorm.DB
	store    *LeaseStore
	units    UnitResolver
	tenants  TenantResolver
	locker   UnitLocker
	events   EventEmitter
	validate *validator.Validate
	now      func() time.Time
	opts     LeaseOptions

	beforeInsert func() // 测试钩子：重叠检查通过之后、写入之前
}

func NewLeaseService(db *gorm.DB, units UnitResolver, tenants TenantResolver, locker UnitLocker, events EventEmitter, opts LeaseOptions) *LeaseService {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 5 * time.Second
	}
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = 10 * time.Second
	}
	if opts.TxRetries < 0 {
		opts.TxRetries = 0
	}
	if locker == nil {
		locker = NewLocalUnitLocker()
	}
	return &LeaseService{
		db:       db,
		store:    NewLeaseStore(db),
		units:    units,
		tenants:  tenants,
		locker:   locker,
		events:   events,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
		opts:     opts,
	}
}

// SetClock 替换时钟，测试使用
func (s *LeaseService) SetClock(now func() time.Time) {
	s.now = func() time.Time { return now().UTC() }
}

// CreateLease 创建租约
func (s *LeaseService) CreateLease(ctx context.Context, input CreateLeaseInput, scope CallerScope) (*models.Lease, error) {
	if err := scope.requireWrite(); err != nil {
		return nil, err
	}
	if err := s.validateStruct(input); err != nil {
		return nil, err
	}
	if input.Status != "" && input.Status != models.LeaseStatusActive {
		return nil, errors.Validation("新租约的状态只能是 active")
	}

	iv := Interval{Start: normalizeTime(input.StartDate), End: normalizeTime(input.EndDate)}
	if !iv.Valid() {
		return nil, errors.Validation("开始时间必须早于结束时间")
	}
	now := s.now()
	if s.opts.RejectPastEnd && !iv.End.After(now) {
		return nil, errors.Validation("结束时间已过，不能创建已到期的租约")
	}

	propertyID, err := s.units.ResolveUnit(ctx, input.UnitID)
	if err != nil {
		return nil, s.lookupError("解析单元失败", err)
	}
	if err := scope.requireProperty(propertyID); err != nil {
		return nil, err
	}

	exists, err := s.tenants.TenantExists(ctx, input.TenantID)
	if err != nil {
		return nil, s.lookupError("查询承租人失败", err)
	}
	if !exists {
		return nil, errors.NotFound("承租人不存在")
	}
	tenantName, err := s.tenants.TenantName(ctx, input.TenantID)
	if err != nil {
		return nil, s.lookupError("查询承租人失败", err)
	}

	var lease *models.Lease
	err = s.withUnitLock(ctx, input.UnitID, func() error {
		return s.runInTx(ctx, func(tx *gorm.DB) error {
			store := s.store.WithTx(tx)
			if err := store.LockUnit(ctx, input.UnitID, s.opts.LockTimeout); err != nil {
				return err
			}

			conflict, err := store.FindConflict(ctx, input.UnitID, iv, "")
			if err != nil {
				return err
			}
			if conflict != nil {
				return errors.OverlapConflict(conflictOf(conflict))
			}
			if s.beforeInsert != nil {
				s.beforeInsert()
			}

			reference, err := s.newReference(ctx, store, tenantName)
			if err != nil {
				return err
			}

			lease = &models.Lease{
				ID:         uuid.NewString(),
				Reference:  reference,
				UnitID:     input.UnitID,
				PropertyID: propertyID,
				TenantID:   input.TenantID,
				StartDate:  iv.Start,
				EndDate:    iv.End,
				Amount:     *input.Amount,
				Status:     models.LeaseStatusActive,
				CreatedBy:  scope.UserID,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			return store.Create(ctx, lease)
		})
	})
	if err != nil {
		s.logFailure("创建租约失败", "", input.UnitID, err)
		return nil, err
	}

	logger.WithLease(lease.ID, lease.UnitID).Infof("租约创建成功: %s", lease.Reference)
	s.emit(EventLeaseCreated, lease, now)
	return ApplyReadCorrection(lease, now), nil
}

// UpdateLease 部分更新租约；日期变化时在同一单元锁内重新做重叠检查
func (s *LeaseService) UpdateLease(ctx context.Context, leaseID string, input UpdateLeaseInput, scope CallerScope) (*models.Lease, error) {
	if err := scope.requireWrite(); err != nil {
		return nil, err
	}
	if err := s.validateStruct(input); err != nil {
		return nil, err
	}

	existing, err := s.loadLease(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	if err := scope.requireProperty(existing.PropertyID); err != nil {
		return nil, err
	}
	if input.UnitID != nil && *input.UnitID != existing.UnitID {
		return nil, errors.Validation("租约单元不可修改，请取消后重新创建")
	}

	var (
		lease     *models.Lease
		eventName string
		now       time.Time
	)
	err = s.withUnitLock(ctx, existing.UnitID, func() error {
		return s.runInTx(ctx, func(tx *gorm.DB) error {
			store := s.store.WithTx(tx)
			if err := store.LockUnit(ctx, existing.UnitID, s.opts.LockTimeout); err != nil {
				return err
			}

			current, err := store.GetForUpdate(ctx, leaseID)
			if err != nil {
				return err
			}
			now = s.now()
			effective := EffectiveStatus(current, now)

			fields := make(map[string]interface{})
			iv := leaseInterval(current)
			if input.StartDate != nil {
				if start := normalizeTime(*input.StartDate); !start.Equal(current.StartDate) {
					iv.Start = start
					fields["start_date"] = start
				}
			}
			if input.EndDate != nil {
				if end := normalizeTime(*input.EndDate); !end.Equal(current.EndDate) {
					iv.End = end
					fields["end_date"] = end
				}
			}
			if input.Amount != nil && *input.Amount != current.Amount {
				fields["amount"] = *input.Amount
			}

			if len(fields) > 0 && IsTerminal(effective) {
				return errors.InvalidTransition("租约已处于 %s 状态，不能修改日期或金额", effective)
			}

			targetStatus := effective
			if input.Status != nil {
				if err := ValidateClientTransition(effective, *input.Status); err != nil {
					return err
				}
				if *input.Status != effective {
					targetStatus = *input.Status
					fields["status"] = targetStatus
				}
			}

			_, startChanged := fields["start_date"]
			_, endChanged := fields["end_date"]
			if startChanged || endChanged {
				if !iv.Valid() {
					return errors.Validation("开始时间必须早于结束时间")
				}
				if endChanged && s.opts.RejectPastEnd && !iv.End.After(now) {
					return errors.Validation("结束时间不能早于当前时间")
				}
				if targetStatus == models.LeaseStatusActive {
					conflict, err := store.FindConflict(ctx, current.UnitID, iv, current.ID)
					if err != nil {
						return err
					}
					if conflict != nil {
						return errors.OverlapConflict(conflictOf(conflict))
					}
				}
			}

			lease = current
			if len(fields) == 0 {
				return nil
			}
			fields["updated_at"] = now
			if err := store.UpdateFields(ctx, current, fields); err != nil {
				return err
			}

			current.StartDate = iv.Start
			current.EndDate = iv.End
			if amount, ok := fields["amount"]; ok {
				current.Amount = amount.(float64)
			}
			current.Status = targetStatus
			current.UpdatedAt = now

			eventName = EventLeaseUpdated
			if targetStatus == models.LeaseStatusCancelled {
				eventName = EventLeaseCancelled
			}
			return nil
		})
	})
	if err != nil {
		s.logFailure("更新租约失败", leaseID, existing.UnitID, err)
		return nil, err
	}

	if eventName != "" {
		logger.WithLease(lease.ID, lease.UnitID).Infof("租约已更新: %s", lease.Reference)
		s.emit(eventName, lease, now)
	}
	return ApplyReadCorrection(lease, now), nil
}

// CancelLease 取消并软删除租约，重复取消直接返回当前状态
func (s *LeaseService) CancelLease(ctx context.Context, leaseID string, scope CallerScope) (*models.Lease, error) {
	if err := scope.requireWrite(); err != nil {
		return nil, err
	}

	existing, err := s.loadLease(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	if err := scope.requireProperty(existing.PropertyID); err != nil {
		return nil, err
	}
	if existing.Status == models.LeaseStatusCancelled && existing.DeletedAt.Valid {
		return existing, nil
	}

	var (
		lease   *models.Lease
		changed bool
		now     time.Time
	)
	err = s.withUnitLock(ctx, existing.UnitID, func() error {
		return s.runInTx(ctx, func(tx *gorm.DB) error {
			store := s.store.WithTx(tx)
			if err := store.LockUnit(ctx, existing.UnitID, s.opts.LockTimeout); err != nil {
				return err
			}

			current, err := store.GetForUpdate(ctx, leaseID)
			if err != nil {
				return err
			}
			now = s.now()
			lease = current

			if current.Status != models.LeaseStatusCancelled {
				corrected := *current
				ApplyReadCorrection(&corrected, now)
				if err := ValidateTransition(&corrected, models.LeaseStatusCancelled, now); err != nil {
					return err
				}
				err := store.UpdateFields(ctx, current, map[string]interface{}{
					"status":     models.LeaseStatusCancelled,
					"updated_at": now,
				})
				if err != nil {
					return err
				}
				current.Status = models.LeaseStatusCancelled
				current.UpdatedAt = now
				changed = true
			}

			if !current.DeletedAt.Valid {
				return store.SoftDelete(ctx, current, now)
			}
			return nil
		})
	})
	if err != nil {
		s.logFailure("取消租约失败", leaseID, existing.UnitID, err)
		return nil, err
	}

	if changed {
		logger.WithLease(lease.ID, lease.UnitID).Infof("租约已取消: %s", lease.Reference)
		s.emit(EventLeaseCancelled, lease, now)
	}
	return lease, nil
}

// GetLease 按ID获取租约（包含已取消删除的），状态做读时修正
func (s *LeaseService) GetLease(ctx context.Context, leaseID string) (*models.Lease, error) {
	lease, err := s.loadLease(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	return ApplyReadCorrection(lease, s.now()), nil
}

// ListLeases 分页查询租约，状态做读时修正
func (s *LeaseService) ListLeases(ctx context.Context, filter LeaseFilter, page, pageSize int) ([]models.Lease, int64, error) {
	if filter.Status != "" && !IsValidLeaseStatus(filter.Status) {
		return nil, 0, errors.Validation("未知的租约状态: %s", filter.Status)
	}
	params := pagination.Normalize(page, pageSize)
	now := s.now()

	leases, total, err := s.store.List(ctx, filter, now, params.GetOffset(), params.GetLimit())
	if err != nil {
		return nil, 0, errors.Internal("查询租约列表失败", err)
	}
	for i := range leases {
		ApplyReadCorrection(&leases[i], now)
	}
	return leases, total, nil
}

// ========== 内部方法 ==========

func (s *LeaseService) loadLease(ctx context.Context, leaseID string) (*models.Lease, error) {
	if _, err := uuid.Parse(leaseID); err != nil {
		return nil, errors.NotFound("租约不存在")
	}
	lease, err := s.store.Get(ctx, leaseID, true)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("租约不存在")
		}
		return nil, errors.Internal("查询租约失败", err)
	}
	return lease, nil
}

// withUnitLock 第一层单元锁，等待时间受 LockTimeout 约束
func (s *LeaseService) withUnitLock(ctx context.Context, unitID uint, fn func() error) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.opts.LockTimeout)
	defer cancel()

	unlock, err := s.locker.Lock(lockCtx, unitID)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

// runInTx 执行写事务；仅序列化失败类错误在内部有限次重试
func (s *LeaseService) runInTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 0; attempt <= s.opts.TxRetries; attempt++ {
		txCtx, cancel := context.WithTimeout(ctx, s.opts.TxTimeout)
		err = s.db.WithContext(txCtx).Transaction(fn)
		cancel()
		if err == nil || !isRetryableTxError(err) {
			break
		}
		logger.GetLogger().WithError(err).Warnf("事务冲突，第 %d 次重试", attempt+1)
	}
	return classifyTxError(err)
}

func (s *LeaseService) newReference(ctx context.Context, store *LeaseStore, tenantName string) (string, error) {
	for i := 0; i < maxReferenceAttempts; i++ {
		reference := GenerateReference(s.opts.ReferencePrefix, tenantName)
		exists, err := store.ReferenceExists(ctx, reference)
		if err != nil {
			return "", err
		}
		if !exists {
			return reference, nil
		}
	}
	return "", errors.Internal("生成租约编号失败", fmt.Errorf("连续 %d 次编号冲突", maxReferenceAttempts))
}

func (s *LeaseService) validateStruct(input interface{}) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return errors.Validation("参数校验失败: %v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
	}
	return errors.Validation("参数校验失败: %s", strings.Join(msgs, ", "))
}

// lookupError 协作方返回的已分类错误原样透传
func (s *LeaseService) lookupError(message string, err error) error {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e
	}
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return errors.NotFound(message)
	}
	return errors.Internal(message, err)
}

func (s *LeaseService) emit(name string, lease *models.Lease, at time.Time) {
	if s.events == nil {
		return
	}
	s.events.Emit(newLeaseEvent(name, lease, at))
}

func (s *LeaseService) logFailure(action, leaseID string, unitID uint, err error) {
	entry := logger.WithLease(leaseID, unitID).WithField("kind", errors.KindOf(err))
	if errors.KindOf(err) == errors.KindInternal {
		entry.WithError(err).Error(action)
		return
	}
	entry.Info(action + ": " + errors.MessageOf(err))
}

func conflictOf(l *models.Lease) *errors.Conflict {
	return &errors.Conflict{
		LeaseID:   l.ID,
		Reference: l.Reference,
		StartDate: l.StartDate,
		EndDate:   l.EndDate,
	}
}

// 统一存为 UTC 微秒精度
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Postgres: 40001 serialization_failure, 40P01 deadlock_detected, 23505 unique_violation（编号并发冲突）
func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return true
		}
	}
	return false
}

func classifyTxError(err error) error {
	if err == nil {
		return nil
	}
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e
	}
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return errors.NotFound("租约不存在")
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return errors.Busy("操作超时，请稍后重试", err)
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return errors.Busy("并发冲突，请稍后重试", err)
		case "55P03", "57014":
			return errors.Busy("等待单元锁超时，请稍后重试", err)
		}
	}
	if strings.Contains(err.Error(), "database is locked") {
		return errors.Busy("数据库繁忙，请稍后重试", err)
	}
	return errors.Internal("租约写入失败", err)
}
