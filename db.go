package main

import (
	"context"

	"github.com/powerman/structlog"
	"gorm.io/gorm"

	"quotations/internal/auth"
	"quotations/internal/config"
	"quotations/internal/db"
)

// initDB connects, migrates when DB_AUTO_MIGRATE is on and seeds the admin
// account from ADMIN_USERNAME/ADMIN_PASSWORD when both are set.
func initDB(ctx context.Context, cfg *config.Config, log *structlog.Logger) (*gorm.DB, error) {
	gdb, err := db.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx, gdb); err != nil {
		closeDB(gdb, log)
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx, gdb, log.New(structlog.KeyUnit, "db")); err != nil {
			closeDB(gdb, log)
			return nil, err
		}
	}
	if err := seedAdmin(ctx, gdb, cfg, log); err != nil {
		closeDB(gdb, log)
		return nil, err
	}
	return gdb, nil
}

func seedAdmin(ctx context.Context, gdb *gorm.DB, cfg *config.Config, log *structlog.Logger) error {
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return nil
	}
	gate := auth.New(gdb, cfg.Auth, log.New(structlog.KeyUnit, "auth"))
	created, err := gate.EnsureUser(ctx, cfg.AdminUsername, cfg.AdminPassword)
	if err != nil {
		return err
	}
	if created {
		log.Info("seeded admin user", "username", cfg.AdminUsername)
	}
	return nil
}

func closeDB(gdb *gorm.DB, log *structlog.Logger) {
	sqlDB, err := gdb.DB()
	if err != nil {
		return
	}
	log.ErrIfFail(sqlDB.Close)
}
