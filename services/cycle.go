// services/cycle.go
package services

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Phase tells which sheet a removal should target.
type Phase int

const (
	PhaseActive Phase = iota
	PhasePostCutoff
)

func (p Phase) String() string {
	if p == PhasePostCutoff {
		return "post-cutoff"
	}
	return "active"
}

// WeeklyTime is a wall-clock moment inside a week.
type WeeklyTime struct {
	Day    time.Weekday
	Hour   int
	Minute int
}

func (w WeeklyTime) minuteOfWeek() int {
	return int(w.Day)*24*60 + w.Hour*60 + w.Minute
}

// CutoffWindow is the weekly span between signup cutoff and the event
// reopening removals on the active sheet.
type CutoffWindow struct {
	Cutoff WeeklyTime
	Reopen WeeklyTime
}

// DefaultCutoffWindow runs from Friday 18:00 to Saturday 12:00.
var DefaultCutoffWindow = CutoffWindow{
	Cutoff: WeeklyTime{Day: time.Friday, Hour: 18},
	Reopen: WeeklyTime{Day: time.Saturday, Hour: 12},
}

// Phase evaluates now in its own location. The window includes the cutoff
// minute and excludes the reopen minute.
func (w CutoffWindow) Phase(now time.Time) Phase {
	t := WeeklyTime{Day: now.Weekday(), Hour: now.Hour(), Minute: now.Minute()}.minuteOfWeek()
	start, end := w.Cutoff.minuteOfWeek(), w.Reopen.minuteOfWeek()

	var inside bool
	if start <= end {
		inside = t >= start && t < end
	} else {
		inside = t >= start || t < end
	}
	if inside {
		return PhasePostCutoff
	}
	return PhaseActive
}

// Cycle holds the weekly calendar rules for one active sheet.
type Cycle struct {
	Window      CutoffWindow
	Loc         *time.Location
	ActiveSheet string
}

// NewCycle uses the default window.
func NewCycle(activeSheet string, loc *time.Location) *Cycle {
	if loc == nil {
		loc = time.UTC
	}
	return &Cycle{Window: DefaultCutoffWindow, Loc: loc, ActiveSheet: activeSheet}
}

// Phase converts now into the cycle timezone before evaluating the window.
func (c *Cycle) Phase(now time.Time) Phase {
	return c.Window.Phase(now.In(c.Loc))
}

// EventDate is the event day the active sheet collects signups for: the
// event following the next cutoff strictly after now.
func (c *Cycle) EventDate(now time.Time) time.Time {
	return c.eventAfter(c.cutoffAt(now, false))
}

// ClosingEventDate is the event day of the most recent cutoff at or before
// now. Rotation names the closed sheet after it.
func (c *Cycle) ClosingEventDate(now time.Time) time.Time {
	return c.eventAfter(c.cutoffAt(now, true))
}

// CutoffSheet names the archival sheet of the cycle closed by the most
// recent cutoff.
func (c *Cycle) CutoffSheet(now time.Time) string {
	return CutoffSheetName(c.ActiveSheet, c.ClosingEventDate(now))
}

// RemovalSheets returns the sheet a removal should search and the sheet to
// fall back to when it is missing. Outside the window there is no fallback.
func (c *Cycle) RemovalSheets(now time.Time) (primary, fallback string) {
	if c.Phase(now) == PhasePostCutoff {
		return c.CutoffSheet(now), c.ActiveSheet
	}
	return c.ActiveSheet, ""
}

// MaxSheetName is the longest tab name a workbook accepts.
const MaxSheetName = 31

// CutoffSheetName is "<active> Cutoff MM-DD-YYYY". The active name is cut
// short so the result never exceeds MaxSheetName runes.
func CutoffSheetName(active string, eventDate time.Time) string {
	suffix := " Cutoff " + eventDate.Format("01-02-2006")
	prefix := []rune(active)
	if room := MaxSheetName - utf8.RuneCountInString(suffix); len(prefix) > room {
		prefix = prefix[:room]
	}
	return strings.TrimRight(string(prefix), " ") + suffix
}

// cutoffAt finds the previous (at or before now) or next (strictly after now)
// cutoff instant in the cycle timezone.
func (c *Cycle) cutoffAt(now time.Time, previous bool) time.Time {
	local := now.In(c.Loc)
	cut := c.Window.Cutoff
	offset := (int(cut.Day) - int(local.Weekday()) + 7) % 7
	candidate := time.Date(local.Year(), local.Month(), local.Day()+offset, cut.Hour, cut.Minute, 0, 0, c.Loc)

	if previous {
		if candidate.After(local) {
			candidate = candidate.AddDate(0, 0, -7)
		}
		return candidate
	}
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}

func (c *Cycle) eventAfter(cutoff time.Time) time.Time {
	days := (int(c.Window.Reopen.Day) - int(cutoff.Weekday()) + 7) % 7
	return time.Date(cutoff.Year(), cutoff.Month(), cutoff.Day()+days, 0, 0, 0, 0, c.Loc)
}
