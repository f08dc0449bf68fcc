package workers

import (
	"context"
	"time"

	"dnd-mplus-bot/models"
	"dnd-mplus-bot/services"
	"dnd-mplus-bot/store"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testActive  = "General Info"
	testRemoved = "Removed Signups"
)

var eastern = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic(err)
	}
	return loc
}()

func et(month time.Month, day, hour, minute int) time.Time {
	return time.Date(2026, month, day, hour, minute, 0, 0, eastern)
}

func newTestStore(t require.TestingT, logger *zap.Logger) *store.WorkbookStore {
	st, err := store.OpenWorkbook("", testActive, testRemoved, eastern, logger)
	require.NoError(t, err)
	return st
}

func seed(t require.TestingT, st store.Store, sheet string, regs ...models.Registration) {
	for _, r := range regs {
		require.NoError(t, st.AppendRow(context.Background(), sheet, r))
	}
}

func signup(userID, character, realm string, ilvl int) models.Registration {
	return models.Registration{
		UserID:       userID,
		UserName:     "user" + userID,
		Character:    character,
		Class:        "Mage",
		Realm:        realm,
		Role:         models.RoleDPS,
		ItemLevel:    ilvl,
		Rating:       1500,
		HighestKey:   8,
		StatsKnown:   true,
		KeyRange:     "7-9 (Gilded)",
		Filter:       models.FilterTag("7-9 (Gilded)", models.RoleDPS),
		RegisteredAt: et(time.October, 15, 19, 0),
	}
}

func noWaitRetry() services.RetryPolicy {
	p := services.DefaultRetryPolicy()
	p.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return p
}

type lookupFunc func(ctx context.Context, character, realm string) (models.ProfileStats, error)

func (f lookupFunc) Lookup(ctx context.Context, character, realm string) (models.ProfileStats, error) {
	return f(ctx, character, realm)
}
