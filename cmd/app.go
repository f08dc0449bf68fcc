// cmd/app.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dnd-mplus-bot/config"
	"dnd-mplus-bot/models"
	"dnd-mplus-bot/services"
	"dnd-mplus-bot/store"
	"dnd-mplus-bot/utils"
	"dnd-mplus-bot/workers"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// app holds everything the subcommands share.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	loc    *time.Location

	store    store.Store
	closeFn  func() error
	guard    *services.CycleGuard
	cycle    *services.Cycle
	profiles services.ProfileLookup

	registrations *services.RegistrationService
	rotation      *workers.RotationWorker
	sync          *workers.StatSyncWorker
}

// bootstrap loads config and wires store, services and workers in
// dependency order.
func bootstrap(ctx context.Context, needBot bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := utils.NewLogger(cfg.LogLevel, cfg.AppEnv)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	if err := cfg.Validate(needBot); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, loc: loc, guard: services.NewCycleGuard()}
	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	a.cycle = services.NewCycle(cfg.Store.ActiveSheet, loc)
	a.profiles = services.NewBlizzardClient(cfg.Blizzard, logger.Named("blizzard"))

	a.registrations = services.NewRegistrationService(
		a.store, services.DefaultRealmMatcher(), a.profiles, a.cycle, a.guard,
		logger.Named("registration"),
		services.WithEventInfoURL(cfg.EventInfoURL),
	)

	var uploader workers.Uploader
	if cfg.Archive.Enabled() {
		archiver, err := utils.NewR2Archiver(ctx, cfg.Archive.AccountID, cfg.Archive.AccessKeyID,
			cfg.Archive.AccessKeySecret, cfg.Archive.Bucket)
		if err != nil {
			return nil, err
		}
		uploader = archiver
		logger.Info("📦 R2 archive enabled", zap.String("bucket", cfg.Archive.Bucket))
	}
	a.rotation = workers.NewRotationWorker(a.store, a.cycle, a.guard, uploader, logger.Named("rotation"))
	a.sync = workers.NewStatSyncWorker(a.store, a.profiles, a.guard, a.cycle,
		services.DefaultRetryPolicy(), logger.Named("sync"))
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Store.Backend {
	case config.BackendPostgres:
		db, err := gorm.Open(postgres.Open(a.cfg.Store.DatabaseURL), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		gs, err := store.NewGormStore(db)
		if err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		a.store, a.closeFn = gs, sqlDB.Close
	default:
		if err := utils.EnsureParentDir(a.cfg.Store.WorkbookPath); err != nil {
			return err
		}
		wb, err := store.OpenWorkbook(a.cfg.Store.WorkbookPath, a.cfg.Store.ActiveSheet,
			a.cfg.Store.RemovedSheet, a.loc, a.logger.Named("workbook"))
		if errors.Is(err, store.ErrWorkbookBusy) {
			return fmt.Errorf("%w; while serve is running use POST /admin/rotate or POST /admin/sync", err)
		}
		if err != nil {
			return err
		}
		a.store, a.closeFn = wb, wb.Close
	}

	if err := store.EnsureSheet(ctx, a.store, a.cfg.Store.ActiveSheet, models.Header); err != nil {
		return fmt.Errorf("prepare %s: %w", a.cfg.Store.ActiveSheet, err)
	}
	a.logger.Info("✅ Signup store ready",
		zap.String("backend", a.cfg.Store.Backend), zap.String("active_sheet", a.cfg.Store.ActiveSheet))
	return nil
}

func (a *app) Close() {
	if a.closeFn != nil {
		if err := a.closeFn(); err != nil {
			a.logger.Warn("Failed to close store", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
