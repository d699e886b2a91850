package models

import "gorm.io/gorm"

// Property 物业，单元的归属方
type Property struct {
	BaseModel
	Name      string         `json:"name" gorm:"not null;size:100"`
	Code      string         `json:"code" gorm:"unique;not null;size:50"`
	Floors    int            `json:"floors" gorm:"default:1"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Property) TableName() string {
	return "properties"
}

// Unit 可出租单元（商铺/本地）
type Unit struct {
	BaseModel
	PropertyID uint           `json:"property_id" gorm:"not null;index"`
	Code       string         `json:"code" gorm:"not null;size:50"`
	Floor      int            `json:"floor"`
	Area       float64        `json:"area" gorm:"type:decimal(10,2)"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Unit) TableName() string {
	return "units"
}
