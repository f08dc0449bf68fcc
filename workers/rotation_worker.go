// workers/rotation_worker.go
package workers

import (
	"context"
	"fmt"
	"time"

	"dnd-mplus-bot/models"
	"dnd-mplus-bot/services"
	"dnd-mplus-bot/store"

	"go.uber.org/zap"
)

// Uploader stores a workbook snapshot under a sheet's name.
type Uploader interface {
	Upload(ctx context.Context, sheet string, snapshot []byte) (string, error)
}

// RotationResult describes one rotation run.
type RotationResult struct {
	Rotated     bool
	CutoffSheet string
	ArchiveKey  string
}

// RotationWorker closes the active sheet at the weekly cutoff.
type RotationWorker struct {
	store    store.Store
	cycle    *services.Cycle
	guard    *services.CycleGuard
	uploader Uploader // optional
	now      func() time.Time
	logger   *zap.Logger
}

func NewRotationWorker(st store.Store, cycle *services.Cycle, guard *services.CycleGuard, uploader Uploader, logger *zap.Logger) *RotationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RotationWorker{
		store:    st,
		cycle:    cycle,
		guard:    guard,
		uploader: uploader,
		now:      time.Now,
		logger:   logger,
	}
}

// Run renames the active sheet to its cutoff name and opens a fresh active
// sheet with the same header. A cutoff sheet that already exists means this
// cycle was rotated and the run is skipped.
func (w *RotationWorker) Run(ctx context.Context) (RotationResult, error) {
	active := w.cycle.ActiveSheet
	cutoff := w.cycle.CutoffSheet(w.now())
	res := RotationResult{CutoffSheet: cutoff}

	err := w.guard.Exclusive(func() error {
		done, err := w.store.SheetExists(ctx, cutoff)
		if err != nil {
			return err
		}
		if done {
			w.logger.Info("[ROTATE] ⏭️ Cycle already rotated, skipping", zap.String("cutoff_sheet", cutoff))
			// A crash between rename and create leaves no active sheet.
			return store.EnsureSheet(ctx, w.store, active, models.Header)
		}

		header, err := w.store.Header(ctx, active)
		if err != nil {
			return err
		}
		if len(header) == 0 {
			header = models.Header
		}
		if err := w.store.RenameSheet(ctx, active, cutoff); err != nil {
			return err
		}
		if err := w.store.CreateSheet(ctx, active, header); err != nil {
			return err
		}
		res.Rotated = true
		return nil
	})
	if err != nil {
		services.RotationsTotal.WithLabelValues("failed").Inc()
		w.logger.Error("[ROTATE] ❌ Weekly rotation failed", zap.String("cutoff_sheet", cutoff), zap.Error(err))
		return res, fmt.Errorf("rotate %s: %w", active, err)
	}
	if !res.Rotated {
		services.RotationsTotal.WithLabelValues("skipped").Inc()
		return res, nil
	}

	services.RotationsTotal.WithLabelValues("rotated").Inc()
	w.logger.Info("[ROTATE] ✅ Renamed sheet and opened a new one",
		zap.String("cutoff_sheet", cutoff), zap.String("active_sheet", active))
	res.ArchiveKey = w.archive(ctx, cutoff)
	return res, nil
}

// archive uploads a snapshot when both the backend and an uploader support
// it. Failures are logged; the rotation itself already succeeded.
func (w *RotationWorker) archive(ctx context.Context, cutoff string) string {
	snap, ok := w.store.(store.Snapshotter)
	if !ok || w.uploader == nil {
		return ""
	}
	data, err := snap.Snapshot(ctx)
	if err != nil {
		w.logger.Warn("[ROTATE] ⚠️ Failed to snapshot workbook", zap.Error(err))
		return ""
	}
	key, err := w.uploader.Upload(ctx, cutoff, data)
	if err != nil {
		w.logger.Warn("[ROTATE] ⚠️ Failed to upload archive", zap.String("cutoff_sheet", cutoff), zap.Error(err))
		return ""
	}
	w.logger.Info("[ROTATE] 📦 Archived workbook snapshot", zap.String("key", key), zap.Int("bytes", len(data)))
	return key
}
