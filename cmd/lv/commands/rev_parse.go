package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var revParseCmd = &cobra.Command{
	Use:   "rev-parse <prefix>",
	Short: "Expand an abbreviated object id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := resolveID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(revParseCmd)
}
