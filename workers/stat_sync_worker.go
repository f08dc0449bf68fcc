// workers/stat_sync_worker.go
package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dnd-mplus-bot/models"
	"dnd-mplus-bot/services"
	"dnd-mplus-bot/store"

	"go.uber.org/zap"
)

// SyncReport counts what one sync pass did.
type SyncReport struct {
	Sheets   []string
	Total    int
	Updated  int
	NotFound int
	Failed   int
	Skipped  int
	Duration time.Duration
}

// StatSyncWorker refreshes item level, rating and highest key of every row
// on the active sheet. Inside the post-cutoff window the cutoff sheet holds
// the event roster and is refreshed too.
type StatSyncWorker struct {
	store    store.Store
	profiles services.ProfileLookup
	retry    services.RetryPolicy
	guard    *services.CycleGuard
	cycle    *services.Cycle
	now      func() time.Time
	logger   *zap.Logger
}

func NewStatSyncWorker(st store.Store, profiles services.ProfileLookup, guard *services.CycleGuard, cycle *services.Cycle, retry services.RetryPolicy, logger *zap.Logger) *StatSyncWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatSyncWorker{
		store:    st,
		profiles: profiles,
		retry:    retry,
		guard:    guard,
		cycle:    cycle,
		now:      time.Now,
		logger:   logger,
	}
}

type sheetRow struct {
	sheet string
	reg   models.Registration
}

// Run walks the sheets once. A row that fails is logged and counted; it never
// stops the pass. Only a failure to read a sheet is returned.
func (w *StatSyncWorker) Run(ctx context.Context) (SyncReport, error) {
	start := time.Now()
	var report SyncReport

	rows, err := w.collect(ctx, &report)
	if err != nil {
		return report, err
	}

	report.Total = len(rows)
	w.logger.Info("[SYNC] 📥 Refreshing stats", zap.Strings("sheets", report.Sheets), zap.Int("rows", len(rows)))

	for _, row := range rows {
		if ctx.Err() != nil {
			w.logger.Warn("[SYNC] ⏹️ Sync interrupted", zap.Error(ctx.Err()))
			break
		}
		result := w.syncRow(ctx, row.sheet, row.reg)
		services.SyncRowsTotal.WithLabelValues(result).Inc()
		switch result {
		case "updated":
			report.Updated++
		case "not_found":
			report.NotFound++
		case "skipped":
			report.Skipped++
		default:
			report.Failed++
		}
	}

	report.Duration = time.Since(start)
	w.logger.Info("[SYNC] ✅ Stat sync finished",
		zap.Int("total", report.Total),
		zap.Int("updated", report.Updated),
		zap.Int("not_found", report.NotFound),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Duration("took", report.Duration))
	return report, nil
}

// collect lists the active sheet and, after the cutoff, the cutoff sheet.
// A cutoff sheet that was never created is logged and left out.
func (w *StatSyncWorker) collect(ctx context.Context, report *SyncReport) ([]sheetRow, error) {
	now := w.now().In(w.cycle.Loc)
	sheets := []string{w.cycle.ActiveSheet}
	if w.cycle.Phase(now) == services.PhasePostCutoff {
		sheets = append(sheets, w.cycle.CutoffSheet(now))
	}

	var out []sheetRow
	err := w.guard.Shared(func() error {
		for i, sheet := range sheets {
			if i > 0 {
				ok, err := w.store.SheetExists(ctx, sheet)
				if err != nil {
					return fmt.Errorf("check %s: %w", sheet, err)
				}
				if !ok {
					w.logger.Warn("[SYNC] ⚠️ Cutoff sheet missing, cycle not rotated yet", zap.String("sheet", sheet))
					continue
				}
			}
			rows, err := w.store.ListRows(ctx, sheet)
			if err != nil {
				return fmt.Errorf("list %s: %w", sheet, err)
			}
			report.Sheets = append(report.Sheets, sheet)
			for _, reg := range rows {
				out = append(out, sheetRow{sheet: sheet, reg: reg})
			}
		}
		return nil
	})
	if err != nil {
		w.logger.Error("[SYNC] ❌ Failed to list rows", zap.Strings("sheets", sheets), zap.Error(err))
		return nil, err
	}
	return out, nil
}

func (w *StatSyncWorker) syncRow(ctx context.Context, sheet string, row models.Registration) string {
	logger := w.logger.With(
		zap.String("sheet", sheet),
		zap.String("user_id", row.UserID),
		zap.String("character", row.Character),
		zap.String("realm", row.Realm))

	if row.Character == "" || row.Realm == "" {
		logger.Debug("[SYNC] Row has no character or realm")
		return "skipped"
	}

	stats, err := services.LookupWithRetry(ctx, w.profiles, row.Character, row.Realm, w.retry)
	switch {
	case errors.Is(err, models.ErrNotFound):
		logger.Warn("[SYNC] ⚠️ Character not found, keeping previous stats")
		return "not_found"
	case err != nil:
		logger.Warn("[SYNC] ⚠️ Lookup failed, keeping previous stats", zap.Error(err))
		return "failed"
	}

	err = w.guard.Shared(func() error {
		return w.store.UpdateStats(ctx, sheet, row.UserID, stats)
	})
	switch {
	case errors.Is(err, store.ErrRowNotFound):
		logger.Info("[SYNC] Row removed during sync")
		return "skipped"
	case err != nil:
		logger.Error("[SYNC] ❌ Failed to write stats", zap.Error(err))
		return "failed"
	}
	return "updated"
}
