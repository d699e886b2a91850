package models

import "gorm.io/gorm"

// Tenant 承租人
type Tenant struct {
	BaseModel
	Name      string         `json:"name" gorm:"not null;size:100"`
	Email     string         `json:"email" gorm:"size:100"`
	Status    string         `json:"status" gorm:"default:'active';size:20"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (t *Tenant) TableName() string {
	return "tenants"
}

const (
	TenantStatusActive   = "active"
	TenantStatusInactive = "inactive"
)
