// models/registration.go
package models

import (
	"time"
)

// UserIdentity is the stable chat identity of whoever triggered an interaction.
// ID is the unique key; Name is the display handle written to the sheet.
type UserIdentity struct {
	ID   string
	Name string
}

// ProfileStats is what the profile service reports for a character.
type ProfileStats struct {
	Class      string
	ItemLevel  int
	Rating     float64
	HighestKey int // 0 = no timed run recorded
}

// Registration is one signup row on a cycle sheet.
type Registration struct {
	UserID          string
	UserName        string
	Character       string
	Class           string
	Realm           string
	Role            string
	ItemLevel       int
	Rating          float64
	HighestKey      int
	StatsKnown      bool // false when the profile service never resolved the character
	KeyRange        string
	Filter          string
	SpecialRequests string
	RegisteredAt    time.Time
	FollowUp        bool // stats need a manual look before the event
}

// Stats returns the stat block of the registration.
func (r Registration) Stats() ProfileStats {
	return ProfileStats{
		Class:      r.Class,
		ItemLevel:  r.ItemLevel,
		Rating:     r.Rating,
		HighestKey: r.HighestKey,
	}
}

// ApplyStats overwrites only the stat fields. Class, realm and every user
// supplied field stay as they were.
func (r *Registration) ApplyStats(s ProfileStats) {
	r.ItemLevel = s.ItemLevel
	r.Rating = s.Rating
	r.HighestKey = s.HighestKey
	r.StatsKnown = true
}
