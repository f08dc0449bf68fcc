package services

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

var eastern = mustLocation("America/New_York")

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func et(month time.Month, day, hour, minute int) time.Time {
	return time.Date(2026, month, day, hour, minute, 0, 0, eastern)
}

func TestCycle_Phase(t *testing.T) {
	c := NewCycle("General Info", eastern)

	tests := []struct {
		name string
		now  time.Time
		want Phase
	}{
		{"thursday evening", et(time.October, 15, 21, 0), PhaseActive},
		{"friday before cutoff", et(time.October, 16, 17, 59), PhaseActive},
		{"friday at cutoff", et(time.October, 16, 18, 0), PhasePostCutoff},
		{"friday night", et(time.October, 16, 23, 30), PhasePostCutoff},
		{"saturday morning", et(time.October, 17, 10, 0), PhasePostCutoff},
		{"saturday at reopen", et(time.October, 17, 12, 0), PhaseActive},
		{"sunday", et(time.October, 18, 9, 0), PhaseActive},
		{"utc input is converted", time.Date(2026, time.October, 16, 22, 30, 0, 0, time.UTC), PhasePostCutoff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Phase(tt.now))
		})
	}
}

func TestCutoffWindow_PhaseMatchesWallClockRule(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sec := rapid.Int64Range(0, 4_000_000_000).Draw(t, "unix")
		now := time.Unix(sec, 0).In(eastern)

		want := PhaseActive
		if (now.Weekday() == time.Friday && now.Hour() >= 18) || (now.Weekday() == time.Saturday && now.Hour() < 12) {
			want = PhasePostCutoff
		}
		if got := DefaultCutoffWindow.Phase(now); got != want {
			t.Fatalf("Phase(%s) = %s, want %s", now, got, want)
		}
	})
}

func TestCutoffWindow_WrapsAroundWeekEnd(t *testing.T) {
	w := CutoffWindow{
		Cutoff: WeeklyTime{Day: time.Saturday, Hour: 20},
		Reopen: WeeklyTime{Day: time.Sunday, Hour: 6},
	}
	assert.Equal(t, PhasePostCutoff, w.Phase(et(time.October, 17, 21, 0)))
	assert.Equal(t, PhasePostCutoff, w.Phase(et(time.October, 18, 5, 59)))
	assert.Equal(t, PhaseActive, w.Phase(et(time.October, 18, 6, 0)))
	assert.Equal(t, PhaseActive, w.Phase(et(time.October, 17, 19, 59)))
}

func TestCycle_EventDate(t *testing.T) {
	c := NewCycle("General Info", eastern)
	day := func(d time.Time) string { return d.Format("2006-01-02") }

	assert.Equal(t, "2026-10-17", day(c.EventDate(et(time.October, 14, 12, 0))))
	assert.Equal(t, "2026-10-17", day(c.EventDate(et(time.October, 16, 17, 59))))
	assert.Equal(t, "2026-10-24", day(c.EventDate(et(time.October, 16, 18, 0))))
	assert.Equal(t, "2026-10-24", day(c.EventDate(et(time.October, 17, 10, 0))))
	assert.Equal(t, "2026-10-24", day(c.EventDate(et(time.October, 18, 10, 0))))
}

func TestCycle_CutoffSheet(t *testing.T) {
	c := NewCycle("General Info", eastern)

	assert.Equal(t, "General Info Cutoff 10-17-2026", c.CutoffSheet(et(time.October, 16, 18, 0)))
	assert.Equal(t, "General Info Cutoff 10-17-2026", c.CutoffSheet(et(time.October, 17, 11, 0)))
	// After the clocks fall back.
	assert.Equal(t, "General Info Cutoff 11-07-2026", c.CutoffSheet(et(time.November, 6, 18, 0)))
	// Mid-week the most recent cutoff is last Friday.
	assert.Equal(t, "General Info Cutoff 10-17-2026", c.CutoffSheet(et(time.October, 21, 9, 0)))
}

func TestCutoffSheetName_FitsWorkbookLimit(t *testing.T) {
	date := et(time.October, 17, 0, 0)
	assert.LessOrEqual(t, utf8.RuneCountInString(CutoffSheetName("General Info", date)), MaxSheetName)
	assert.Equal(t, "Mythic Plus S Cutoff 10-17-2026", CutoffSheetName("Mythic Plus Signups", date))
	assert.Equal(t, "Ünïcödé Cutoff 10-17-2026", CutoffSheetName("Ünïcödé", date))

	rapid.Check(t, func(t *rapid.T) {
		active := rapid.StringMatching(`[A-Za-zÀ-ÿ ]{1,60}`).Draw(t, "active")
		name := CutoffSheetName(active, date)
		if n := utf8.RuneCountInString(name); n > MaxSheetName {
			t.Fatalf("%q is %d runes", name, n)
		}
		if !strings.HasSuffix(name, " Cutoff 10-17-2026") {
			t.Fatalf("%q lost its date suffix", name)
		}
	})
}

func TestCycle_RemovalSheets(t *testing.T) {
	c := NewCycle("General Info", eastern)

	primary, fallback := c.RemovalSheets(et(time.October, 17, 10, 0))
	assert.Equal(t, "General Info Cutoff 10-17-2026", primary)
	assert.Equal(t, "General Info", fallback)

	primary, fallback = c.RemovalSheets(et(time.October, 15, 10, 0))
	assert.Equal(t, "General Info", primary)
	assert.Empty(t, fallback)
}
