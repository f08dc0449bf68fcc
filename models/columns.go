package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ColumnContractVersion identifies the sheet layout below. 1.1 moved the
// filter column between key range and special requests.
const ColumnContractVersion = "1.1"

const (
	NotAvailable    = "N/A"
	TimestampLayout = "01/02/2006 15:04:05"
	FollowUpMarker  = "CHECK"
)

// Column positions of the v1.1 layout.
const (
	ColUserID = iota
	ColUserName
	ColCharacter
	ColClass
	ColRealm
	ColRole
	ColItemLevel
	ColRating
	ColHighestKey
	ColKeyRange
	ColFilter
	ColSpecialRequests
	ColTimestamp
	ColFollowUp
	columnCount
)

// Header is the header row of every cycle sheet.
var Header = []string{
	"Discord ID",
	"Discord User",
	"Character",
	"Class",
	"Realm",
	"Role",
	"Item Level",
	"Mythic+ Rating",
	"Highest Key",
	"Key Range",
	"Filter",
	"Special Requests",
	"Timestamp",
	"Follow Up",
}

// RemovedHeader is the header row of the removed signups archive.
var RemovedHeader = append([]string{"Removed At"}, Header...)

// Row renders the registration in column order.
func (r Registration) Row() []string {
	row := make([]string, columnCount)
	row[ColUserID] = r.UserID
	row[ColUserName] = r.UserName
	row[ColCharacter] = r.Character
	row[ColClass] = orNA(r.Class)
	row[ColRealm] = r.Realm
	row[ColRole] = r.Role
	row[ColItemLevel] = NotAvailable
	row[ColRating] = NotAvailable
	row[ColHighestKey] = NotAvailable
	if r.StatsKnown {
		row[ColItemLevel] = strconv.Itoa(r.ItemLevel)
		row[ColRating] = strconv.FormatFloat(r.Rating, 'f', 1, 64)
		if r.HighestKey > 0 {
			row[ColHighestKey] = strconv.Itoa(r.HighestKey)
		}
	}
	row[ColKeyRange] = r.KeyRange
	row[ColFilter] = r.Filter
	row[ColSpecialRequests] = r.SpecialRequests
	if !r.RegisteredAt.IsZero() {
		row[ColTimestamp] = r.RegisteredAt.Format(TimestampLayout)
	}
	if r.FollowUp {
		row[ColFollowUp] = FollowUpMarker
	}
	return row
}

// SalvageRow parses a sheet row. Short rows are padded, since spreadsheet
// backends drop trailing empty cells. Timestamps are read in loc. Unreadable
// cells are left zero and the row is flagged for follow-up; the returned
// error lists them. A row without a user id yields an empty Registration.
func SalvageRow(row []string, loc *time.Location) (Registration, error) {
	cells := PadRow(row)
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	if cells[ColUserID] == "" {
		return Registration{}, fmt.Errorf("%w: row has no user id", ErrValidation)
	}

	r := Registration{
		UserID:          cells[ColUserID],
		UserName:        cells[ColUserName],
		Character:       cells[ColCharacter],
		Class:           naToEmpty(cells[ColClass]),
		Realm:           cells[ColRealm],
		Role:            cells[ColRole],
		KeyRange:        cells[ColKeyRange],
		Filter:          cells[ColFilter],
		SpecialRequests: cells[ColSpecialRequests],
		FollowUp:        cells[ColFollowUp] != "",
	}

	var errs []error
	bad := func(what, cell string, err error) {
		errs = append(errs, fmt.Errorf("%w: %s %q: %v", ErrValidation, what, cell, err))
	}
	if ilvl := naToEmpty(cells[ColItemLevel]); ilvl != "" {
		if v, err := strconv.Atoi(ilvl); err != nil {
			bad("item level", ilvl, err)
		} else {
			r.ItemLevel = v
			r.StatsKnown = true
		}
	}
	if rating := naToEmpty(cells[ColRating]); rating != "" {
		if v, err := strconv.ParseFloat(rating, 64); err != nil {
			bad("rating", rating, err)
		} else {
			r.Rating = v
			r.StatsKnown = true
		}
	}
	if key := naToEmpty(cells[ColHighestKey]); key != "" {
		if v, err := strconv.Atoi(key); err != nil {
			bad("highest key", key, err)
		} else {
			r.HighestKey = v
		}
	}
	if ts := cells[ColTimestamp]; ts != "" {
		if loc == nil {
			loc = time.UTC
		}
		if t, err := time.ParseInLocation(TimestampLayout, ts, loc); err != nil {
			bad("timestamp", ts, err)
		} else {
			r.RegisteredAt = t
		}
	}
	if len(errs) > 0 {
		r.FollowUp = true
	}
	return r, errors.Join(errs...)
}

// PadRow copies row into a slice of exactly one cell per column.
func PadRow(row []string) []string {
	cells := make([]string, columnCount)
	copy(cells, row)
	return cells
}

func orNA(s string) string {
	if s == "" {
		return NotAvailable
	}
	return s
}

func naToEmpty(s string) string {
	if strings.EqualFold(s, NotAvailable) {
		return ""
	}
	return s
}
