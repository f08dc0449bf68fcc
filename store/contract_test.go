package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"dnd-mplus-bot/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var eastern = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func fakeRegistration(userID string) models.Registration {
	role := models.Roles[gofakeit.Number(0, len(models.Roles)-1)]
	keyRange := models.KeyRanges[gofakeit.Number(0, len(models.KeyRanges)-1)]
	return models.Registration{
		UserID:          userID,
		UserName:        gofakeit.Username(),
		Character:       gofakeit.FirstName(),
		Class:           "Paladin",
		Realm:           "Stormrage",
		Role:            role,
		ItemLevel:       gofakeit.Number(440, 500),
		Rating:          float64(gofakeit.Number(0, 3000)),
		HighestKey:      gofakeit.Number(2, 15),
		StatsKnown:      true,
		KeyRange:        keyRange,
		Filter:          models.FilterTag(keyRange, role),
		SpecialRequests: "late start",
		RegisteredAt:    time.Date(2026, 10, 15, 20, 30, 0, 0, eastern),
	}
}

// runStoreContract exercises the behaviour every backend must share.
// active must already exist as a sheet with models.Header.
func runStoreContract(t *testing.T, s Store, active string) {
	ctx := context.Background()
	archive := active + " Cutoff 10-17-2026"

	alice := fakeRegistration("1001")
	bob := fakeRegistration("1002")

	t.Run("append and find", func(t *testing.T) {
		require.NoError(t, s.AppendRow(ctx, active, alice))
		require.NoError(t, s.AppendRow(ctx, active, bob))

		got, err := s.FindRow(ctx, active, alice.UserID)
		require.NoError(t, err)
		require.NotNil(t, got)
		if diff := cmp.Diff(alice, *got); diff != "" {
			t.Fatalf("FindRow mismatch (-want +got):\n%s", diff)
		}

		missing, err := s.FindRow(ctx, active, "nobody")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("list keeps sheet order", func(t *testing.T) {
		rows, err := s.ListRows(ctx, active)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, alice.UserID, rows[0].UserID)
		assert.Equal(t, bob.UserID, rows[1].UserID)
	})

	t.Run("update stats touches only stat fields", func(t *testing.T) {
		require.NoError(t, s.UpdateStats(ctx, active, alice.UserID, models.ProfileStats{ItemLevel: 485, Rating: 2100.5, HighestKey: 12}))

		got, err := s.FindRow(ctx, active, alice.UserID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 485, got.ItemLevel)
		assert.InDelta(t, 2100.5, got.Rating, 0.001)
		assert.Equal(t, 12, got.HighestKey)
		assert.Equal(t, alice.Realm, got.Realm)
		assert.Equal(t, alice.KeyRange, got.KeyRange)
		assert.Equal(t, alice.Class, got.Class)

		err = s.UpdateStats(ctx, active, "nobody", models.ProfileStats{ItemLevel: 1})
		require.ErrorIs(t, err, ErrRowNotFound)
		require.ErrorIs(t, err, models.ErrStore)
	})

	t.Run("remove archives the row", func(t *testing.T) {
		removed, err := s.RemoveRow(ctx, active, bob.UserID, time.Date(2026, 10, 16, 9, 0, 0, 0, eastern))
		require.NoError(t, err)
		require.NotNil(t, removed)
		assert.Equal(t, bob.Character, removed.Character)

		again, err := s.RemoveRow(ctx, active, bob.UserID, time.Now())
		require.NoError(t, err)
		assert.Nil(t, again)

		rows, err := s.ListRows(ctx, active)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, alice.UserID, rows[0].UserID)
	})

	t.Run("rename and create", func(t *testing.T) {
		require.NoError(t, s.RenameSheet(ctx, active, archive))
		require.NoError(t, s.CreateSheet(ctx, active, models.Header))

		err := s.RenameSheet(ctx, active, archive)
		require.ErrorIs(t, err, ErrSheetExists)
		err = s.CreateSheet(ctx, active, models.Header)
		require.ErrorIs(t, err, ErrSheetExists)

		exists, err := s.SheetExists(ctx, archive)
		require.NoError(t, err)
		assert.True(t, exists)

		header, err := s.Header(ctx, active)
		require.NoError(t, err)
		assert.Equal(t, models.Header, header)

		fresh, err := s.ListRows(ctx, active)
		require.NoError(t, err)
		assert.Empty(t, fresh)

		moved, err := s.FindRow(ctx, archive, alice.UserID)
		require.NoError(t, err)
		require.NotNil(t, moved)
		assert.Equal(t, 485, moved.ItemLevel)
	})

	t.Run("missing sheet", func(t *testing.T) {
		_, err := s.FindRow(ctx, fmt.Sprintf("%s Cutoff 01-01-1999", active), alice.UserID)
		require.ErrorIs(t, err, ErrSheetNotFound)
		err = s.RenameSheet(ctx, "does not exist", "whatever")
		require.ErrorIs(t, err, ErrSheetNotFound)
	})
}
