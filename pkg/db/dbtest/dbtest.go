// Package dbtest opens throwaway sqlite databases migrated with every model.
package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Open returns an isolated in-memory database. The name prefix only helps when
// reading sqlite errors.
func Open(t testing.TB, prefix string) *gorm.DB {
	t.Helper()
	dsn := "file:" + prefix + "_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

// Client wraps Open in a db.Client for services that run transactions.
func Client(t testing.TB, prefix string) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := Open(t, prefix)
	return db.NewFromConn(conn), conn
}
