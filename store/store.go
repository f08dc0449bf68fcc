// Package store holds the signup sheet backends. Every backend exposes the
// same tab-oriented contract: sheets are addressed by name, rows are keyed by
// the registering user's identity and move through models.Registration only.
package store

import (
	"context"
	"errors"
	"time"

	"dnd-mplus-bot/models"
)

var (
	ErrSheetNotFound = errors.New("sheet not found")
	ErrSheetExists   = errors.New("sheet already exists")
	ErrRowNotFound   = errors.New("row not found")
	ErrWorkbookBusy  = errors.New("workbook is open in another process")
)

// Store is the registration sheet backend. Each call is atomic on its own;
// nothing spans calls.
type Store interface {
	// AppendRow adds r as the last row of sheet.
	AppendRow(ctx context.Context, sheet string, r models.Registration) error
	// FindRow returns the first row of sheet owned by userID, or nil.
	FindRow(ctx context.Context, sheet, userID string) (*models.Registration, error)
	// RemoveRow moves the user's row from sheet into the removed signups
	// archive and returns it, or nil when the user has no row.
	RemoveRow(ctx context.Context, sheet, userID string, removedAt time.Time) (*models.Registration, error)
	// ListRows returns every parseable row of sheet in sheet order.
	ListRows(ctx context.Context, sheet string) ([]models.Registration, error)
	// UpdateStats overwrites item level, rating and highest key of the user's row.
	UpdateStats(ctx context.Context, sheet, userID string, stats models.ProfileStats) error
	RenameSheet(ctx context.Context, oldName, newName string) error
	CreateSheet(ctx context.Context, name string, header []string) error
	SheetExists(ctx context.Context, name string) (bool, error)
	Header(ctx context.Context, sheet string) ([]string, error)
}

// Snapshotter is implemented by backends that can export themselves as a
// workbook file.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]byte, error)
}

// EnsureSheet creates sheet with header unless it already exists.
func EnsureSheet(ctx context.Context, s Store, sheet string, header []string) error {
	ok, err := s.SheetExists(ctx, sheet)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return s.CreateSheet(ctx, sheet, header)
}

func storeErr(op, sheet, userID string, err error) error {
	return &models.StoreError{Op: op, Sheet: sheet, UserID: userID, Err: err}
}
