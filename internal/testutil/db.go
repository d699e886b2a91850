package testutil

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"leasehub/internal/database"
	"leasehub/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB 创建内存 SQLite 数据库并执行迁移，测试结束时自动关闭。
// 单连接保证写事务串行。
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return openTestDB(t, fmt.Sprintf("file:%s?mode=memory&cache=shared", name), 1)
}

// NewFileTestDB 创建 WAL 模式的临时文件数据库，允许多个连接同时开启事务，
// 并发测试用它观察未经单元锁串行化时的交错。
func NewFileTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "leasehub.db")
	return openTestDB(t, path+"?_journal_mode=WAL&_busy_timeout=5000", 8)
}

func openTestDB(t *testing.T, dsn string, maxConns int) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(maxConns)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.MigrateDB(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// SeedUnit 创建一个物业及其下的单元
func SeedUnit(t *testing.T, db *gorm.DB, propertyCode, unitCode string) (*models.Property, *models.Unit) {
	t.Helper()

	var property models.Property
	if err := db.Where(models.Property{Code: propertyCode}).
		Attrs(models.Property{Name: "Property " + propertyCode, Floors: 5}).
		FirstOrCreate(&property).Error; err != nil {
		t.Fatalf("failed to seed property: %v", err)
	}

	unit := &models.Unit{PropertyID: property.ID, Code: unitCode, Floor: 1, Area: 42.5}
	if err := db.Create(unit).Error; err != nil {
		t.Fatalf("failed to seed unit: %v", err)
	}
	return &property, unit
}

// SeedTenant 创建承租人
func SeedTenant(t *testing.T, db *gorm.DB, name string) *models.Tenant {
	t.Helper()

	tenant := &models.Tenant{Name: name, Status: models.TenantStatusActive}
	if err := db.Create(tenant).Error; err != nil {
		t.Fatalf("failed to seed tenant: %v", err)
	}
	return tenant
}
