// cmd/rotate.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Run the weekly sheet rotation once",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.rotation.Run(cmd.Context())
		if err != nil {
			return err
		}
		if !res.Rotated {
			fmt.Fprintf(cmd.OutOrStdout(), "Already rotated: %s exists\n", res.CutoffSheet)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rotated to %s\n", res.CutoffSheet)
		if res.ArchiveKey != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Archived as %s\n", res.ArchiveKey)
		}
		return nil
	},
}
