package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"dnd-mplus-bot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"
)

const (
	activeSheet  = "General Info"
	removedSheet = "Removed Signups"
)

func openTestWorkbook(t *testing.T, path string) *WorkbookStore {
	t.Helper()
	s, err := OpenWorkbook(path, activeSheet, removedSheet, eastern, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWorkbookStore_Contract(t *testing.T) {
	s := openTestWorkbook(t, filepath.Join(t.TempDir(), "signups.xlsx"))
	runStoreContract(t, s, activeSheet)
}

func TestOpenWorkbook_CreatesLayout(t *testing.T) {
	s := openTestWorkbook(t, "")
	ctx := context.Background()

	assert.Equal(t, []string{activeSheet, removedSheet}, s.Sheets())

	header, err := s.Header(ctx, activeSheet)
	require.NoError(t, err)
	assert.Equal(t, models.Header, header)

	removed, err := s.Header(ctx, removedSheet)
	require.NoError(t, err)
	assert.Equal(t, models.RemovedHeader, removed)
}

func TestWorkbookStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "signups.xlsx")
	ctx := context.Background()

	first, err := OpenWorkbook(path, activeSheet, removedSheet, eastern, zaptest.NewLogger(t))
	require.NoError(t, err)
	reg := fakeRegistration("42")
	require.NoError(t, first.AppendRow(ctx, activeSheet, reg))
	_, err = first.RemoveRow(ctx, activeSheet, reg.UserID, time.Date(2026, 10, 17, 10, 0, 0, 0, eastern))
	require.NoError(t, err)
	require.NoError(t, first.AppendRow(ctx, activeSheet, reg))
	require.NoError(t, first.Close())

	second := openTestWorkbook(t, path)
	got, err := second.FindRow(ctx, activeSheet, "42")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, reg.Character, got.Character)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	archived, err := f.GetRows(removedSheet)
	require.NoError(t, err)
	require.Len(t, archived, 2)
	assert.Equal(t, "10/17/2026 10:00:00", archived[1][0])
	assert.Equal(t, "42", archived[1][1+models.ColUserID])
}

func TestWorkbookStore_SalvagesUnreadableRows(t *testing.T) {
	s := openTestWorkbook(t, "")
	ctx := context.Background()

	require.NoError(t, s.AppendRow(ctx, activeSheet, fakeRegistration("1")))
	// A hand-edited row with text where the item level belongs.
	bad := fakeRegistration("2").Row()
	bad[models.ColItemLevel] = "four eighty"
	require.NoError(t, s.writeRow(activeSheet, 3, bad))
	require.NoError(t, s.writeRow(activeSheet, 4, []string{"", "stray note"}))
	require.NoError(t, s.AppendRow(ctx, activeSheet, fakeRegistration("3")))

	rows, err := s.ListRows(ctx, activeSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"1", "2", "3"}, []string{rows[0].UserID, rows[1].UserID, rows[2].UserID})
	assert.True(t, rows[1].FollowUp)
	assert.Zero(t, rows[1].ItemLevel)
}

func TestWorkbookStore_HandEditedRowStillBelongsToUser(t *testing.T) {
	s := openTestWorkbook(t, "")
	ctx := context.Background()
	removedAt := time.Date(2026, 10, 15, 21, 0, 0, 0, eastern)

	edited := fakeRegistration("42").Row()
	edited[models.ColItemLevel] = "480.5"
	require.NoError(t, s.writeRow(activeSheet, 2, edited))

	found, err := s.FindRow(ctx, activeSheet, "42")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, edited[models.ColCharacter], found.Character)

	require.NoError(t, s.UpdateStats(ctx, activeSheet, "42", models.ProfileStats{ItemLevel: 485, Rating: 2100}))
	raw, err := s.file.GetRows(activeSheet)
	require.NoError(t, err)
	assert.Equal(t, "485", raw[1][models.ColItemLevel])
	// Edited again by hand before the user leaves.
	require.NoError(t, s.writeRow(activeSheet, 2, edited))

	removed, err := s.RemoveRow(ctx, activeSheet, "42", removedAt)
	require.NoError(t, err)
	require.NotNil(t, removed)

	archived, err := s.file.GetRows(removedSheet)
	require.NoError(t, err)
	require.Len(t, archived, 2)
	assert.Equal(t, "480.5", archived[1][1+models.ColItemLevel])

	require.NoError(t, s.AppendRow(ctx, activeSheet, fakeRegistration("42")))
	raw, err = s.file.GetRows(activeSheet)
	require.NoError(t, err)
	owned := 0
	for _, row := range raw[1:] {
		if len(row) > 0 && row[models.ColUserID] == "42" {
			owned++
		}
	}
	assert.Equal(t, 1, owned)
}

func TestWorkbookStore_RemoveRowUndoesArchiveOnFailure(t *testing.T) {
	s := openTestWorkbook(t, "")
	ctx := context.Background()
	require.NoError(t, s.AppendRow(ctx, activeSheet, fakeRegistration("9")))

	s.dropRow = func(string, int) error { return errors.New("sheet protected") }
	removed, err := s.RemoveRow(ctx, activeSheet, "9", time.Date(2026, 10, 15, 21, 0, 0, 0, eastern))
	require.ErrorIs(t, err, models.ErrStore)
	assert.Nil(t, removed)

	archived, err := s.file.GetRows(removedSheet)
	require.NoError(t, err)
	assert.Len(t, archived, 1, "only the header")
	still, err := s.FindRow(ctx, activeSheet, "9")
	require.NoError(t, err)
	assert.NotNil(t, still)
}

func TestOpenWorkbook_RefusesSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signups.xlsx")
	held := openTestWorkbook(t, path)

	_, err := OpenWorkbook(path, activeSheet, removedSheet, eastern, zaptest.NewLogger(t))
	require.ErrorIs(t, err, ErrWorkbookBusy)

	require.NoError(t, held.Close())
	again, err := OpenWorkbook(path, activeSheet, removedSheet, eastern, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestWorkbookStore_Snapshot(t *testing.T) {
	s := openTestWorkbook(t, "")
	ctx := context.Background()
	require.NoError(t, s.AppendRow(ctx, activeSheet, fakeRegistration("7")))

	data, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, data)
}
