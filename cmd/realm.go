// cmd/realm.go
package cmd

import (
	"fmt"
	"strings"

	"dnd-mplus-bot/services"

	"github.com/spf13/cobra"
)

var realmCmd = &cobra.Command{
	Use:   "realm <name>",
	Short: "Show how a realm name would be corrected",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m := services.DefaultRealmMatcher()
		input := strings.Join(args, " ")
		match := m.Correct(input)

		verdict := "rejected"
		if m.Accepts(match) {
			verdict = "accepted"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%q -> %q (score %d, %s, slug %q)\n",
			input, match.Realm, match.Score, verdict, services.RealmSlug(match.Realm))
		return nil
	},
}
