// utils/database.go
package utils

import (
	"fmt"
	"strings"
	"time"

	"wager-settlement-system/models"

	"github.com/glebarez/sqlite"
	"github.com/jonboulle/clockwork"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqlitePrefix = "sqlite://"

// OpenDatabase connects to postgres, or to a local SQLite file when dsn starts
// with sqlite://, and migrates the schema. Timestamps come from clock in UTC.
func OpenDatabase(dsn string, clock clockwork.Clock) (*gorm.DB, error) {
	cfg := &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return clock.Now().UTC() },
		Logger:         logger.Default.LogMode(logger.Warn),
	}

	path, isSQLite := strings.CutPrefix(dsn, sqlitePrefix)
	var dialector gorm.Dialector
	if isSQLite {
		dialector = sqlite.Open(path + "?_pragma=busy_timeout(5000)")
	} else {
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if isSQLite {
		// SQLite has a single writer; one connection keeps transactions serial.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := models.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}
