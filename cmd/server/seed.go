package main

import (
	"fmt"

	"leasehub/internal/models"
	"leasehub/pkg/logger"

	"gorm.io/gorm"
)

// seedData 初始化演示物业、单元与承租人，已存在时跳过
func seedData(db *gorm.DB) error {
	appLogger := logger.GetLogger()
	appLogger.Info("Starting seed data initialization...")

	property, err := createDefaultProperty(db)
	if err != nil {
		return fmt.Errorf("创建默认物业失败: %v", err)
	}

	if err := createDefaultUnits(db, property); err != nil {
		return fmt.Errorf("创建默认单元失败: %v", err)
	}

	if err := createDefaultTenants(db); err != nil {
		return fmt.Errorf("创建默认承租人失败: %v", err)
	}

	appLogger.Info("Seed data initialization completed successfully")
	return nil
}

func createDefaultProperty(db *gorm.DB) (*models.Property, error) {
	var property models.Property
	err := db.Where(models.Property{Code: "default"}).
		Attrs(models.Property{Name: "默认物业", Floors: 3}).
		FirstOrCreate(&property).Error
	return &property, err
}

func createDefaultUnits(db *gorm.DB, property *models.Property) error {
	var count int64
	db.Model(&models.Unit{}).Where("property_id = ?", property.ID).Count(&count)
	if count > 0 {
		logger.GetLogger().Info("默认单元已存在，跳过创建")
		return nil
	}

	units := []models.Unit{
		{PropertyID: property.ID, Code: "L-101", Floor: 1, Area: 35},
		{PropertyID: property.ID, Code: "L-102", Floor: 1, Area: 42},
		{PropertyID: property.ID, Code: "L-201", Floor: 2, Area: 60},
		{PropertyID: property.ID, Code: "S-001", Floor: -1, Area: 18},
	}
	if err := db.Create(&units).Error; err != nil {
		return err
	}

	logger.GetLogger().Infof("默认单元创建成功，共 %d 个", len(units))
	return nil
}

func createDefaultTenants(db *gorm.DB) error {
	var count int64
	db.Model(&models.Tenant{}).Count(&count)
	if count > 0 {
		logger.GetLogger().Info("承租人已存在，跳过创建")
		return nil
	}

	tenants := []models.Tenant{
		{Name: "Acme Trading", Email: "contact@acme.example", Status: models.TenantStatusActive},
		{Name: "Globex Cafe", Email: "hello@globex.example", Status: models.TenantStatusActive},
	}
	if err := db.Create(&tenants).Error; err != nil {
		return err
	}

	logger.GetLogger().Info("默认承租人创建成功")
	return nil
}
