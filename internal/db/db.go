// Package db opens the relational store, migrates the four application tables and
// classifies driver errors.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/powerman/structlog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"quotations/internal/config"
	"quotations/models"
)

// Models lists every migrated model, parents before children so the
// quotation_items foreign keys can be created.
func Models() []any {
	return []any{&models.User{}, &models.CatalogItem{}, &models.Quotation{}, &models.QuotationLineItem{}}
}

// Open connects using cfg.Database and applies pool limits.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	gdb, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("connect %s database: %w", cfg.Driver, err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Driver == "sqlite" && isMemoryDSN(cfg.DSN) {
		// every new connection would see a fresh empty database
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}
	return gdb, nil
}

func dialectorFor(driver, dsn string) (gorm.Dialector, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("DB_DSN is not set")
	}
	switch driver {
	case "postgres":
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(withForeignKeys(dsn)), nil
	case "mysql":
		return mysql.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
}

// withForeignKeys turns on FK enforcement, which sqlite leaves off per connection.
func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// DriverName is the database/sql driver name behind gdb, as sqlx expects it.
func DriverName(gdb *gorm.DB) string {
	switch gdb.Dialector.Name() {
	case "sqlite":
		return "sqlite3"
	case "postgres":
		return "pgx"
	}
	return gdb.Dialector.Name()
}

// Migrate creates or updates the schema. Each model is migrated separately so a
// failure is reported with its table name.
func Migrate(ctx context.Context, gdb *gorm.DB, log *structlog.Logger) error {
	var errs []error
	for _, m := range Models() {
		if err := gdb.WithContext(ctx).AutoMigrate(m); err != nil {
			name := fmt.Sprintf("%T", m)
			log.Warn("migration failed", "model", name, "err", err)
			errs = append(errs, fmt.Errorf("migrate %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Ping checks that the pool can reach the database.
func Ping(ctx context.Context, gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
