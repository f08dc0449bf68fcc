package models

import (
	"time"
)

// SheetRecord is a cycle sheet when the store is backed by Postgres.
type SheetRecord struct {
	ID     string   `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	Name   string   `gorm:"uniqueIndex;not null" json:"name"`
	Header []string `gorm:"serializer:json;not null" json:"header"`
	Timestamps
}

// SignupRecord is one sheet row. Position keeps append order.
type SignupRecord struct {
	ID        string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	SheetName string `gorm:"index:idx_sheet_user;not null" json:"sheet_name"`
	UserID    string `gorm:"index:idx_sheet_user;not null" json:"user_id"`
	Position  int64  `gorm:"not null" json:"position"`
	SignupFields
	Timestamps
}

// RemovedSignupRecord is a row of the removed signups archive.
type RemovedSignupRecord struct {
	ID        string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	SheetName string    `gorm:"index;not null" json:"sheet_name"` // sheet the row was removed from
	UserID    string    `gorm:"index;not null" json:"user_id"`
	RemovedAt time.Time `gorm:"not null" json:"removed_at"`
	SignupFields
	Timestamps
}

// SignupFields are the registration columns shared by live and archived rows.
type SignupFields struct {
	UserName        string    `json:"user_name"`
	Character       string    `json:"character"`
	Class           string    `json:"class"`
	Realm           string    `json:"realm"`
	Role            string    `json:"role"`
	ItemLevel       int       `json:"item_level"`
	Rating          float64   `json:"rating"`
	HighestKey      int       `json:"highest_key"`
	StatsKnown      bool      `json:"stats_known"`
	KeyRange        string    `json:"key_range"`
	Filter          string    `json:"filter"`
	SpecialRequests string    `gorm:"type:text" json:"special_requests"`
	RegisteredAt    time.Time `json:"registered_at"`
	FollowUp        bool      `json:"follow_up"`
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// NewSignupFields copies the registration columns out of r.
func NewSignupFields(r Registration) SignupFields {
	return SignupFields{
		UserName:        r.UserName,
		Character:       r.Character,
		Class:           r.Class,
		Realm:           r.Realm,
		Role:            r.Role,
		ItemLevel:       r.ItemLevel,
		Rating:          r.Rating,
		HighestKey:      r.HighestKey,
		StatsKnown:      r.StatsKnown,
		KeyRange:        r.KeyRange,
		Filter:          r.Filter,
		SpecialRequests: r.SpecialRequests,
		RegisteredAt:    r.RegisteredAt,
		FollowUp:        r.FollowUp,
	}
}

// Registration maps the row back.
func (s SignupRecord) Registration() Registration {
	return Registration{
		UserID:          s.UserID,
		UserName:        s.UserName,
		Character:       s.Character,
		Class:           s.Class,
		Realm:           s.Realm,
		Role:            s.Role,
		ItemLevel:       s.ItemLevel,
		Rating:          s.Rating,
		HighestKey:      s.HighestKey,
		StatsKnown:      s.StatsKnown,
		KeyRange:        s.KeyRange,
		Filter:          s.Filter,
		SpecialRequests: s.SpecialRequests,
		RegisteredAt:    s.RegisteredAt,
		FollowUp:        s.FollowUp,
	}
}
