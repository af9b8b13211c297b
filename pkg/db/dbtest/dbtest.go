// Package dbtest opens throwaway sqlite databases carrying the control-plane
// schema for repository and service tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/angelmondragon/storefront-provisioner/pkg/db/models"
)

// Models lists every control-plane table in dependency order.
func Models() []any {
	return []any{
		&models.Plan{},
		&models.Merchant{},
		&models.Subscription{},
		&models.TenantDatabase{},
		&models.Deployment{},
		&models.DomainConfiguration{},
	}
}

// Open returns an in-memory database private to the calling test. A single
// connection is kept so concurrent callers queue instead of hitting
// "database table is locked".
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(Models()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return conn
}
