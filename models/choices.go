package models

import (
	"regexp"
	"strings"
)

const (
	RoleDPS    = "DPS"
	RoleHealer = "Healer"
	RoleTank   = "Tank"
)

// Roles offered during registration, in prompt order.
var Roles = []string{RoleDPS, RoleHealer, RoleTank}

// KeyRanges offered during registration, in prompt order.
var KeyRanges = []string{
	"Heroics (Weathered)",
	"0-3 (Carved)",
	"4-6 (Runed)",
	"7-9 (Gilded)",
	"10-11 (Gilded)",
	"12+ (Gilded)",
}

var keyRangePattern = regexp.MustCompile(`^\s*(\d+)?[^(]*\(([^)]+)\)\s*$`)

// FilterTag derives the filter column from key range and role, e.g.
// "10-11 (Gilded)" + "Tank" -> "Gilded10-Tank". Ranges without a number
// (heroics) keep only the crest word.
func FilterTag(keyRange, role string) string {
	tier := "Other"
	if m := keyRangePattern.FindStringSubmatch(keyRange); m != nil {
		tier = strings.TrimSpace(m[2]) + m[1]
	}
	if role == "" {
		return tier
	}
	return tier + "-" + role
}

// ValidChoice reports whether v is one of options.
func ValidChoice(v string, options []string) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}
