package services

import (
	"context"
	"fmt"
	"time"

	"leasehub/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// advisory lock 命名空间，占锁键高 16 位，与其他业务的锁键隔离
const unitLockNamespace int64 = 0x4c53

// unitLockKey 单个 bigint 锁键：高 16 位命名空间，低 48 位单元 ID。
// 超过 2^48 的 ID 会与低位相同的单元共用锁，只会多串行，不会漏锁。
func unitLockKey(unitID uint) int64 {
	return unitLockNamespace<<48 | int64(uint64(unitID)&(1<<48-1))
}

// LeaseFilter 租约列表过滤条件，状态按读时修正后的语义过滤
type LeaseFilter struct {
	Status         string
	UnitID         uint
	TenantID       uint
	PropertyID     uint
	IncludeDeleted bool
}

// LeaseStore 租约区间存储，只负责索引读写，不含业务规则
type LeaseStore struct {
	db *gorm.DB
}

func NewLeaseStore(db *gorm.DB) *LeaseStore {
	return &LeaseStore{db: db}
}

// WithTx 绑定到事务
func (s *LeaseStore) WithTx(tx *gorm.DB) *LeaseStore {
	return &LeaseStore{db: tx}
}

// LockUnit 在事务内获取单元级 advisory lock，提交或回滚时自动释放。
// 仅 Postgres 生效；SQLite 本身只允许单写者。
func (s *LeaseStore) LockUnit(ctx context.Context, unitID uint, timeout time.Duration) error {
	if s.db.Dialector.Name() != "postgres" {
		return nil
	}
	db := s.db.WithContext(ctx)
	if timeout > 0 {
		if err := db.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeout.Milliseconds())).Error; err != nil {
			return err
		}
	}
	return db.Exec("SELECT pg_advisory_xact_lock(?)", unitLockKey(unitID)).Error
}

// ActiveOverlapping 查询同一单元上与区间重叠的 active 租约
func (s *LeaseStore) ActiveOverlapping(ctx context.Context, unitID uint, iv Interval, excludeID string) ([]models.Lease, error) {
	var leases []models.Lease
	query := s.db.WithContext(ctx).
		Where("unit_id = ? AND status = ?", unitID, models.LeaseStatusActive).
		Where("start_date < ? AND end_date > ?", iv.End, iv.Start)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	err := query.Order("start_date ASC").Find(&leases).Error
	return leases, err
}

// FindConflict 冲突检查：SQL 缩小候选集，最终判定交给 FindConflict 纯函数
func (s *LeaseStore) FindConflict(ctx context.Context, unitID uint, iv Interval, excludeID string) (*models.Lease, error) {
	candidates, err := s.ActiveOverlapping(ctx, unitID, iv, excludeID)
	if err != nil {
		return nil, err
	}
	return FindConflict(unitID, iv, candidates, excludeID), nil
}

func (s *LeaseStore) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Unscoped().Model(&models.Lease{}).
		Where("reference = ?", reference).
		Count(&count).Error
	return count > 0, err
}

func (s *LeaseStore) Create(ctx context.Context, lease *models.Lease) error {
	return s.db.WithContext(ctx).Create(lease).Error
}

// Get 按ID获取，includeDeleted 为 true 时包含已软删除的租约
func (s *LeaseStore) Get(ctx context.Context, id string, includeDeleted bool) (*models.Lease, error) {
	var lease models.Lease
	query := s.db.WithContext(ctx)
	if includeDeleted {
		query = query.Unscoped()
	}
	if err := query.Where("id = ?", id).First(&lease).Error; err != nil {
		return nil, err
	}
	return &lease, nil
}

// GetForUpdate 事务内加行锁读取
func (s *LeaseStore) GetForUpdate(ctx context.Context, id string) (*models.Lease, error) {
	var lease models.Lease
	err := s.db.WithContext(ctx).Unscoped().
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&lease).Error
	if err != nil {
		return nil, err
	}
	return &lease, nil
}

// UpdateFields 只写入给定字段（允许零值）
func (s *LeaseStore) UpdateFields(ctx context.Context, lease *models.Lease, fields map[string]interface{}) error {
	return s.db.WithContext(ctx).Unscoped().Model(lease).Updates(fields).Error
}

// SoftDelete 标记删除，与状态字段相互独立
func (s *LeaseStore) SoftDelete(ctx context.Context, lease *models.Lease, at time.Time) error {
	err := s.db.WithContext(ctx).Unscoped().Model(lease).UpdateColumn("deleted_at", at).Error
	if err != nil {
		return err
	}
	lease.DeletedAt = gorm.DeletedAt{Time: at, Valid: true}
	return nil
}

// List 分页查询，now 用于按修正后的状态过滤
func (s *LeaseStore) List(ctx context.Context, filter LeaseFilter, now time.Time, offset, limit int) ([]models.Lease, int64, error) {
	var leases []models.Lease
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Lease{})
	if filter.IncludeDeleted {
		query = query.Unscoped()
	}
	if filter.UnitID != 0 {
		query = query.Where("unit_id = ?", filter.UnitID)
	}
	if filter.TenantID != 0 {
		query = query.Where("tenant_id = ?", filter.TenantID)
	}
	if filter.PropertyID != 0 {
		query = query.Where("property_id = ?", filter.PropertyID)
	}

	switch filter.Status {
	case "":
	case models.LeaseStatusActive:
		query = query.Where("status = ? AND end_date >= ?", models.LeaseStatusActive, now)
	case models.LeaseStatusExpired:
		query = query.Where("status = ? OR (status = ? AND end_date < ?)",
			models.LeaseStatusExpired, models.LeaseStatusActive, now)
	default:
		query = query.Where("status = ?", filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("start_date DESC").Order("id ASC").
		Offset(offset).Limit(limit).
		Find(&leases).Error
	if err != nil {
		return nil, 0, err
	}

	return leases, total, nil
}

// ExpireBatch 把一批已过期的 active 租约置为 expired，返回被更新的租约与更新行数。
// 候选行加锁并跳过被其他事务锁住的行，并发清扫互不阻塞。
func (s *LeaseStore) ExpireBatch(ctx context.Context, now time.Time, limit int) ([]models.Lease, int64, error) {
	var candidates []models.Lease
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ? AND end_date < ?", models.LeaseStatusActive, now).
		Order("end_date ASC").
		Limit(limit).
		Find(&candidates).Error
	if err != nil || len(candidates) == 0 {
		return nil, 0, err
	}

	ids := make([]string, len(candidates))
	for i := range candidates {
		ids[i] = candidates[i].ID
	}

	result := s.db.WithContext(ctx).Model(&models.Lease{}).
		Where("id IN ?", ids).
		Where("status = ? AND end_date < ?", models.LeaseStatusActive, now).
		Updates(map[string]interface{}{
			"status":     models.LeaseStatusExpired,
			"updated_at": now,
		})
	if result.Error != nil {
		return nil, 0, result.Error
	}

	for i := range candidates {
		candidates[i].Status = models.LeaseStatusExpired
		candidates[i].UpdatedAt = now
	}
	return candidates, result.RowsAffected, nil
}
