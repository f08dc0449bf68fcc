// cmd/sync.go
package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh character stats of every current signup once",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := a.sync.Run(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d rows on %s: %d updated, %d not found, %d failed, %d skipped (%s)\n",
			r.Total, strings.Join(r.Sheets, ", "), r.Updated, r.NotFound, r.Failed, r.Skipped, r.Duration.Round(time.Millisecond))
		return nil
	},
}
