// services/channels.go
package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"dnd-mplus-bot/models"
)

const (
	KeyEventCategory      = "Key Event"
	KeyChannelPrefix      = "Mythic Plus "
	FirstTemporaryChannel = 11
	// MaxTemporaryChannel keeps one command from flooding the guild.
	MaxTemporaryChannel = 50
)

// ChannelAdminRoles may provision temporary key channels. The guild owner
// always may.
var ChannelAdminRoles = []string{"Mythic+ Leader", "Raid Leader", "Moderator", "Admin"}

// CanManageChannels reports whether a member with roleNames may run the
// channel commands.
func CanManageChannels(roleNames []string, isOwner bool) bool {
	if isOwner {
		return true
	}
	for _, r := range roleNames {
		if models.ValidChoice(r, ChannelAdminRoles) {
			return true
		}
	}
	return false
}

// ChannelPlan lists the changes a channel command should apply.
type ChannelPlan struct {
	CreateCategory bool
	Create         []string
	Delete         []string
}

// KeyChannelName is "Mythic Plus <n>".
func KeyChannelName(n int) string {
	return KeyChannelPrefix + strconv.Itoa(n)
}

// KeyChannelNumber parses the number of a "Mythic Plus <n>" channel.
func KeyChannelNumber(name string) (int, bool) {
	if !strings.HasPrefix(name, KeyChannelPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(name, KeyChannelPrefix))
	if err != nil {
		return 0, false
	}
	return n, true
}

// PlanChannelAdd creates every missing "Mythic Plus 11".."Mythic Plus upTo"
// voice channel. existing holds the names of all voice channels in the guild.
func PlanChannelAdd(upTo int, categoryExists bool, existing []string) (ChannelPlan, error) {
	if upTo < FirstTemporaryChannel {
		return ChannelPlan{}, fmt.Errorf("%w: number must be greater than %d to avoid modifying static channels",
			models.ErrValidation, FirstTemporaryChannel-1)
	}
	if upTo > MaxTemporaryChannel {
		return ChannelPlan{}, fmt.Errorf("%w: number must be at most %d", models.ErrValidation, MaxTemporaryChannel)
	}

	have := make(map[string]struct{}, len(existing))
	for _, name := range existing {
		have[name] = struct{}{}
	}
	plan := ChannelPlan{CreateCategory: !categoryExists}
	for n := FirstTemporaryChannel; n <= upTo; n++ {
		name := KeyChannelName(n)
		if _, ok := have[name]; !ok {
			plan.Create = append(plan.Create, name)
		}
	}
	return plan, nil
}

// PlanChannelRemove deletes the temporary channels among inCategory, lowest
// number first. Static channels below 11 and foreign names are kept.
func PlanChannelRemove(inCategory []string) ChannelPlan {
	type numbered struct {
		name string
		n    int
	}
	var doomed []numbered
	for _, name := range inCategory {
		if n, ok := KeyChannelNumber(name); ok && n >= FirstTemporaryChannel {
			doomed = append(doomed, numbered{name, n})
		}
	}
	sort.SliceStable(doomed, func(i, j int) bool { return doomed[i].n < doomed[j].n })

	plan := ChannelPlan{}
	for _, d := range doomed {
		plan.Delete = append(plan.Delete, d.name)
	}
	return plan
}

// ChannelSummary renders "Created 2 channel(s): A, B".
func ChannelSummary(verb string, names []string) string {
	list := "None"
	if len(names) > 0 {
		list = strings.Join(names, ", ")
	}
	return fmt.Sprintf("%s %d channel(s): %s", verb, len(names), list)
}
