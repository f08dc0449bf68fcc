package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"dnd-mplus-bot/models"
	"dnd-mplus-bot/utils"

	"github.com/gofrs/flock"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const defaultExcelSheet = "Sheet1"

// WorkbookStore keeps every sheet as a tab of one .xlsx workbook and saves
// the file after each mutation. An empty path keeps the workbook in memory.
// A file-backed store holds an exclusive lock on <path>.lock until Close, so
// a second process cannot overwrite it with a stale copy.
type WorkbookStore struct {
	mu           sync.Mutex
	path         string
	lock         *flock.Flock
	file         *excelize.File
	removedSheet string
	loc          *time.Location
	logger       *zap.Logger

	dropRow func(sheet string, row int) error
}

// OpenWorkbook opens the workbook at path, creating it with the active and
// removed signups tabs when it doesn't exist yet. It fails with
// ErrWorkbookBusy while another process holds the same workbook.
func OpenWorkbook(path, activeSheet, removedSheet string, loc *time.Location, logger *zap.Logger) (*WorkbookStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	s := &WorkbookStore{path: path, removedSheet: removedSheet, loc: loc, logger: logger}

	if path != "" {
		if err := s.acquire(); err != nil {
			return nil, err
		}
	}
	if err := s.load(activeSheet); err != nil {
		s.release()
		return nil, err
	}
	return s, nil
}

func (s *WorkbookStore) acquire() error {
	if err := utils.EnsureParentDir(s.path); err != nil {
		return fmt.Errorf("create workbook dir: %w", err)
	}
	lock := flock.New(s.path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock workbook %s: %w", s.path, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", s.path, ErrWorkbookBusy)
	}
	s.lock = lock
	return nil
}

func (s *WorkbookStore) release() {
	if s.lock == nil {
		return
	}
	if err := s.lock.Unlock(); err != nil {
		s.logger.Warn("Failed to unlock workbook", zap.String("path", s.path), zap.Error(err))
	}
	s.lock = nil
}

func (s *WorkbookStore) load(activeSheet string) error {
	if s.path != "" {
		if _, err := os.Stat(s.path); err == nil {
			f, err := excelize.OpenFile(s.path)
			if err != nil {
				return fmt.Errorf("open workbook %s: %w", s.path, err)
			}
			s.file = f
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat workbook %s: %w", s.path, err)
		}
	}

	if s.file == nil {
		s.file = excelize.NewFile()
		if err := s.file.SetSheetName(defaultExcelSheet, activeSheet); err != nil {
			return fmt.Errorf("name active sheet: %w", err)
		}
		if err := s.writeRow(activeSheet, 1, models.Header); err != nil {
			return err
		}
	}

	if s.index(s.removedSheet) < 0 {
		if _, err := s.file.NewSheet(s.removedSheet); err != nil {
			return fmt.Errorf("create %s: %w", s.removedSheet, err)
		}
		if err := s.writeRow(s.removedSheet, 1, models.RemovedHeader); err != nil {
			return err
		}
	}

	s.dropRow = s.file.RemoveRow
	return s.save()
}

// Close releases the workbook and its lock.
func (s *WorkbookStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.release()
	return s.file.Close()
}

func (s *WorkbookStore) AppendRow(ctx context.Context, sheet string, r models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.rows(sheet)
	if err != nil {
		return storeErr("append", sheet, r.UserID, err)
	}
	if err := s.writeRow(sheet, len(rows)+1, r.Row()); err != nil {
		return storeErr("append", sheet, r.UserID, err)
	}
	if err := s.save(); err != nil {
		return storeErr("append", sheet, r.UserID, err)
	}
	return nil
}

func (s *WorkbookStore) FindRow(ctx context.Context, sheet, userID string) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.rows(sheet)
	if err != nil {
		return nil, storeErr("find", sheet, userID, err)
	}
	_, _, reg := s.locate(sheet, rows, userID)
	return reg, nil
}

func (s *WorkbookStore) RemoveRow(ctx context.Context, sheet, userID string, removedAt time.Time) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.rows(sheet)
	if err != nil {
		return nil, storeErr("remove", sheet, userID, err)
	}
	rowNum, raw, reg := s.locate(sheet, rows, userID)
	if reg == nil {
		return nil, nil
	}

	archived, err := s.rows(s.removedSheet)
	if err != nil {
		return nil, storeErr("remove", s.removedSheet, userID, err)
	}
	// The raw cells are archived so a hand-edited row survives as written.
	archiveRow := len(archived) + 1
	record := append([]string{removedAt.In(s.loc).Format(models.TimestampLayout)}, models.PadRow(raw)...)
	if err := s.writeRow(s.removedSheet, archiveRow, record); err != nil {
		return nil, storeErr("remove", s.removedSheet, userID, err)
	}
	if err := s.dropRow(sheet, rowNum); err != nil {
		if undo := s.file.RemoveRow(s.removedSheet, archiveRow); undo != nil {
			s.logger.Error("Failed to undo archive row",
				zap.String("sheet", s.removedSheet), zap.Int("row", archiveRow), zap.Error(undo))
		}
		return nil, storeErr("remove", sheet, userID, err)
	}
	if err := s.save(); err != nil {
		return nil, storeErr("remove", sheet, userID, err)
	}
	return reg, nil
}

func (s *WorkbookStore) ListRows(ctx context.Context, sheet string) ([]models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.rows(sheet)
	if err != nil {
		return nil, storeErr("list", sheet, "", err)
	}
	out := make([]models.Registration, 0, len(rows))
	for i, row := range rows {
		if i == 0 {
			continue
		}
		reg, ok := s.parse(sheet, i+1, row)
		if !ok {
			continue
		}
		out = append(out, reg)
	}
	return out, nil
}

func (s *WorkbookStore) UpdateStats(ctx context.Context, sheet, userID string, stats models.ProfileStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.rows(sheet)
	if err != nil {
		return storeErr("update stats", sheet, userID, err)
	}
	rowNum, _, reg := s.locate(sheet, rows, userID)
	if reg == nil {
		return storeErr("update stats", sheet, userID, ErrRowNotFound)
	}
	reg.ApplyStats(stats)
	rendered := reg.Row()
	for _, col := range []int{models.ColItemLevel, models.ColRating, models.ColHighestKey} {
		cell, err := excelize.CoordinatesToCellName(col+1, rowNum)
		if err != nil {
			return storeErr("update stats", sheet, userID, err)
		}
		if err := s.file.SetCellValue(sheet, cell, rendered[col]); err != nil {
			return storeErr("update stats", sheet, userID, err)
		}
	}
	if err := s.save(); err != nil {
		return storeErr("update stats", sheet, userID, err)
	}
	return nil
}

func (s *WorkbookStore) RenameSheet(ctx context.Context, oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index(oldName) < 0 {
		return storeErr("rename", oldName, "", ErrSheetNotFound)
	}
	if s.index(newName) >= 0 {
		return storeErr("rename", newName, "", ErrSheetExists)
	}
	if err := s.file.SetSheetName(oldName, newName); err != nil {
		return storeErr("rename", oldName, "", err)
	}
	if err := s.save(); err != nil {
		return storeErr("rename", newName, "", err)
	}
	return nil
}

func (s *WorkbookStore) CreateSheet(ctx context.Context, name string, header []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index(name) >= 0 {
		return storeErr("create", name, "", ErrSheetExists)
	}
	if _, err := s.file.NewSheet(name); err != nil {
		return storeErr("create", name, "", err)
	}
	if err := s.writeRow(name, 1, header); err != nil {
		return storeErr("create", name, "", err)
	}
	if err := s.save(); err != nil {
		return storeErr("create", name, "", err)
	}
	return nil
}

func (s *WorkbookStore) SheetExists(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index(name) >= 0, nil
}

func (s *WorkbookStore) Header(ctx context.Context, sheet string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.rows(sheet)
	if err != nil {
		return nil, storeErr("header", sheet, "", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return append([]string(nil), rows[0]...), nil
}

// Snapshot serializes the whole workbook.
func (s *WorkbookStore) Snapshot(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, err := s.file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("snapshot workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// Sheets lists the tab names in workbook order.
func (s *WorkbookStore) Sheets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.GetSheetList()
}

func (s *WorkbookStore) index(name string) int {
	idx, err := s.file.GetSheetIndex(name)
	if err != nil {
		return -1
	}
	return idx
}

func (s *WorkbookStore) rows(sheet string) ([][]string, error) {
	if s.index(sheet) < 0 {
		return nil, ErrSheetNotFound
	}
	return s.file.GetRows(sheet)
}

// locate matches on the user id cell alone and returns the 1-based row
// number, raw cells and parsed row of the user's first row.
func (s *WorkbookStore) locate(sheet string, rows [][]string, userID string) (int, []string, *models.Registration) {
	for i, row := range rows {
		if i == 0 || len(row) <= models.ColUserID || strings.TrimSpace(row[models.ColUserID]) != userID {
			continue
		}
		reg, ok := s.parse(sheet, i+1, row)
		if !ok {
			continue
		}
		return i + 1, row, &reg
	}
	return 0, nil, nil
}

// parse reads a data row, salvaging what it can from hand-edited cells.
func (s *WorkbookStore) parse(sheet string, rowNum int, row []string) (models.Registration, bool) {
	reg, err := models.SalvageRow(row, s.loc)
	if reg.UserID == "" {
		if len(row) > 0 {
			s.logger.Warn("Skipping sheet row without user id",
				zap.String("sheet", sheet), zap.Int("row", rowNum))
		}
		return reg, false
	}
	if err != nil {
		s.logger.Warn("Salvaged unreadable sheet row",
			zap.String("sheet", sheet), zap.Int("row", rowNum), zap.String("user_id", reg.UserID), zap.Error(err))
	}
	return reg, true
}

func (s *WorkbookStore) writeRow(sheet string, rowNum int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	return s.file.SetSheetRow(sheet, cell, &values)
}

func (s *WorkbookStore) save() error {
	if s.path == "" {
		return nil
	}
	if err := utils.EnsureParentDir(s.path); err != nil {
		return fmt.Errorf("create workbook dir: %w", err)
	}
	if err := s.file.SaveAs(s.path); err != nil {
		return fmt.Errorf("save workbook %s: %w", s.path, err)
	}
	return nil
}
