package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Lease 租约：单元在 [StartDate, EndDate) 区间内分配给承租人
type Lease struct {
	ID         string         `json:"id" gorm:"primaryKey;size:36"`
	Reference  string         `json:"reference" gorm:"uniqueIndex;not null;size:64"`
	UnitID     uint           `json:"unit_id" gorm:"not null;index:idx_leases_unit_status,priority:1"`
	PropertyID uint           `json:"property_id" gorm:"not null;index"`
	TenantID   uint           `json:"tenant_id" gorm:"not null;index"`
	StartDate  time.Time      `json:"start_date" gorm:"not null;index:idx_leases_unit_status,priority:3"`
	EndDate    time.Time      `json:"end_date" gorm:"not null;index"`
	Amount     float64        `json:"amount" gorm:"type:decimal(12,2);not null;default:0"`
	Status     string         `json:"status" gorm:"size:20;not null;default:'active';index:idx_leases_unit_status,priority:2"`
	CreatedBy  uint           `json:"created_by"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

func (Lease) TableName() string {
	return "leases"
}

// 租约状态
const (
	LeaseStatusActive    = "active"
	LeaseStatusExpired   = "expired"
	LeaseStatusCancelled = "cancelled"
)

// LeaseEventFailure 投递失败、等待重试的租约事件
type LeaseEventFailure struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	EventName string         `json:"event_name" gorm:"size:50;not null;index"`
	LeaseID   string         `json:"lease_id" gorm:"size:36;index"`
	Payload   datatypes.JSON `json:"payload"`
	Sinks     string         `json:"sinks" gorm:"size:200"` // 待重投的下游，逗号分隔，空表示全部
	Attempts  int            `json:"attempts" gorm:"default:0"`
	LastError string         `json:"last_error" gorm:"size:500"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (LeaseEventFailure) TableName() string {
	return "lease_event_failures"
}
