package services

import (
	"context"
	stderrors "errors"

	"leasehub/internal/models"
	"leasehub/pkg/errors"

	"gorm.io/gorm"
)

// UnitResolver 单元 -> 所属物业
type UnitResolver interface {
	ResolveUnit(ctx context.Context, unitID uint) (propertyID uint, err error)
}

// TenantResolver 承租人查询
type TenantResolver interface {
	TenantExists(ctx context.Context, tenantID uint) (bool, error)
	TenantName(ctx context.Context, tenantID uint) (string, error)
}

// UnitDirectory 基于数据库的单元解析
type UnitDirectory struct {
	db *gorm.DB
}

func NewUnitDirectory(db *gorm.DB) *UnitDirectory {
	return &UnitDirectory{db: db}
}

// ResolveUnit 已软删除的单元视为不存在
func (d *UnitDirectory) ResolveUnit(ctx context.Context, unitID uint) (uint, error) {
	var unit models.Unit
	err := d.db.WithContext(ctx).Select("id", "property_id").First(&unit, unitID).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return 0, errors.NotFound("单元不存在")
		}
		return 0, err
	}
	return unit.PropertyID, nil
}

// TenantDirectory 基于数据库的承租人查询
type TenantDirectory struct {
	db *gorm.DB
}

func NewTenantDirectory(db *gorm.DB) *TenantDirectory {
	return &TenantDirectory{db: db}
}

func (d *TenantDirectory) GetByID(ctx context.Context, tenantID uint) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := d.db.WithContext(ctx).First(&tenant, tenantID).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("承租人不存在")
		}
		return nil, err
	}
	return &tenant, nil
}

func (d *TenantDirectory) TenantExists(ctx context.Context, tenantID uint) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&models.Tenant{}).Where("id = ?", tenantID).Count(&count).Error
	return count > 0, err
}

func (d *TenantDirectory) TenantName(ctx context.Context, tenantID uint) (string, error) {
	tenant, err := d.GetByID(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return tenant.Name, nil
}
