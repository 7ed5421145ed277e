package commands

import (
	"fmt"
	"time"

	"loosevault/pkg/core"
	"loosevault/pkg/exporter"
	"loosevault/pkg/types"

	"github.com/spf13/cobra"
)

var checkoutCmd = &cobra.Command{
	Use:   "checkout <tree|commit> <dir>",
	Short: "Restore a tree into a directory",
	Long:  `Write the files of a tree (or of the tree a commit points to) into <dir>. Existing files with the same names are overwritten; other files are left alone.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		start := time.Now()

		id, err := resolveID(ctx, args[0])
		if err != nil {
			return err
		}

		obj, err := LV.Store.Decode(ctx, id)
		if err != nil {
			return err
		}

		treeID := id
		switch obj.Kind {
		case core.KindTree:
		case core.KindCommit:
			c, err := core.DecodeCommit(obj.Data)
			if err != nil {
				return err
			}
			treeID = c.TreeCid.ID
		default:
			return fmt.Errorf("%s is a %s, expected a tree or a commit", id.Short(), obj.Kind)
		}

		files := 0
		err = exporter.NewExporter(LV.Store).RestoreTree(ctx, treeID, args[1], func(string, types.ID, int64) {
			files++
		})
		if err != nil {
			return fmt.Errorf("checkout failed: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "restored %d files from %s into %s in %s\n",
			files, treeID.Short(), args[1], time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkoutCmd)
}
