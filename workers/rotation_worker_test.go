package workers

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"dnd-mplus-bot/config"
	"dnd-mplus-bot/models"
	"dnd-mplus-bot/services"
	"dnd-mplus-bot/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeUploader struct {
	sheets []string
	sizes  []int
	err    error
}

func (f *fakeUploader) Upload(ctx context.Context, sheet string, snapshot []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.sheets = append(f.sheets, sheet)
	f.sizes = append(f.sizes, len(snapshot))
	return "archives/" + sheet + ".xlsx", nil
}

func newRotation(t *testing.T, up Uploader, now time.Time) (*RotationWorker, func() []string) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	st := newTestStore(t, logger)
	seed(t, st, testActive, signup("1", "Thrall", "Stormrage", 480))

	w := NewRotationWorker(st, services.NewCycle(testActive, eastern), services.NewCycleGuard(), up, logger)
	w.now = func() time.Time { return now }
	return w, st.Sheets
}

func TestRotationWorker_RotatesOncePerCycle(t *testing.T) {
	up := &fakeUploader{}
	w, sheets := newRotation(t, up, et(time.October, 16, 18, 0))
	ctx := context.Background()

	res, err := w.Run(ctx)
	require.NoError(t, err)
	assert.True(t, res.Rotated)
	assert.Equal(t, "General Info Cutoff 10-17-2026", res.CutoffSheet)
	assert.Equal(t, "archives/General Info Cutoff 10-17-2026.xlsx", res.ArchiveKey)

	cutoffRows, err := w.store.ListRows(ctx, res.CutoffSheet)
	require.NoError(t, err)
	require.Len(t, cutoffRows, 1)
	assert.Equal(t, "Thrall", cutoffRows[0].Character)

	activeRows, err := w.store.ListRows(ctx, testActive)
	require.NoError(t, err)
	assert.Empty(t, activeRows)
	header, err := w.store.Header(ctx, testActive)
	require.NoError(t, err)
	assert.Equal(t, models.Header, header)

	// A restart re-fires the job later the same evening.
	w.now = func() time.Time { return et(time.October, 16, 21, 0) }
	again, err := w.Run(ctx)
	require.NoError(t, err)
	assert.False(t, again.Rotated)
	assert.Equal(t, res.CutoffSheet, again.CutoffSheet)

	assert.ElementsMatch(t, []string{testActive, testRemoved, res.CutoffSheet}, sheets())
	assert.Len(t, up.sheets, 1)
	assert.Positive(t, up.sizes[0])
}

func TestRotationWorker_DefaultConfigOnDisk(t *testing.T) {
	cfg, err := config.Parse(map[string]string{})
	require.NoError(t, err)
	loc, err := cfg.Location()
	require.NoError(t, err)
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "signups.xlsx")
	st, err := store.OpenWorkbook(path, cfg.Store.ActiveSheet, cfg.Store.RemovedSheet, loc, logger)
	require.NoError(t, err)
	seed(t, st, cfg.Store.ActiveSheet, signup("1", "Thrall", "Stormrage", 480))

	cycle := services.NewCycle(cfg.Store.ActiveSheet, loc)
	w := NewRotationWorker(st, cycle, services.NewCycleGuard(), nil, logger)
	w.now = func() time.Time { return time.Date(2026, time.October, 16, 18, 0, 0, 0, loc) }

	res, err := w.Run(ctx)
	require.NoError(t, err)
	require.True(t, res.Rotated)
	assert.Equal(t, "General Info Cutoff 10-17-2026", res.CutoffSheet)

	require.NoError(t, st.Close())
	reopened, err := store.OpenWorkbook(path, cfg.Store.ActiveSheet, cfg.Store.RemovedSheet, loc, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	ok, err := reopened.SheetExists(ctx, res.CutoffSheet)
	require.NoError(t, err)
	assert.True(t, ok)
	rows, err := reopened.ListRows(ctx, res.CutoffSheet)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Thrall", rows[0].Character)
}

func TestRotationWorker_RecreatesMissingActiveSheet(t *testing.T) {
	w, sheets := newRotation(t, nil, et(time.October, 16, 18, 0))
	ctx := context.Background()
	cutoff := "General Info Cutoff 10-17-2026"
	require.NoError(t, w.store.RenameSheet(ctx, testActive, cutoff))

	res, err := w.Run(ctx)
	require.NoError(t, err)
	assert.False(t, res.Rotated)
	assert.Contains(t, sheets(), testActive)
}

func TestRotationWorker_UploadFailureDoesNotFailRotation(t *testing.T) {
	w, _ := newRotation(t, &fakeUploader{err: errors.New("r2 down")}, et(time.October, 16, 18, 0))

	res, err := w.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Rotated)
	assert.Empty(t, res.ArchiveKey)
}

func TestRotationWorker_MissingActiveSheetFails(t *testing.T) {
	w, _ := newRotation(t, nil, et(time.October, 16, 18, 0))
	ctx := context.Background()
	require.NoError(t, w.store.RenameSheet(ctx, testActive, "Somewhere Else"))

	_, err := w.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrStore)
}
