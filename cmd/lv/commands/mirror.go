package commands

import (
	"fmt"

	"loosevault/pkg/types"

	"github.com/spf13/cobra"
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Copy loose objects to and from an S3 compatible bucket",
	Long:  `Objects are transferred as their compressed loose files under <prefix>/aa/bbcc... keys, configured with mirror.s3.*.`,
}

var mirrorPushCmd = &cobra.Command{
	Use:   "push [object]...",
	Short: "Upload objects (all local objects when none are given)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		m, err := LV.Mirror(ctx)
		if err != nil {
			return err
		}

		if len(args) == 0 {
			stats, err := m.PushAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %d, already present %d\n", stats.Uploaded, stats.Skipped)
			return nil
		}

		ids := make([]types.ID, 0, len(args))
		for _, arg := range args {
			id, err := resolveID(ctx, arg)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		stats, err := m.Push(ctx, ids)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "uploaded %d, already present %d\n", stats.Uploaded, stats.Skipped)
		return nil
	},
}

var mirrorFetchCmd = &cobra.Command{
	Use:   "fetch <object>...",
	Short: "Download objects into the local store, verifying each one",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		m, err := LV.Mirror(ctx)
		if err != nil {
			return err
		}

		kind := LV.Loose.HashKind()
		ids := make([]types.ID, 0, len(args))
		for _, arg := range args {
			// 本地还没有这个对象，短哈希要在远端展开
			id, err := types.ParseID(kind, arg)
			if err != nil {
				id, err = m.Expand(ctx, types.HashPrefix(arg))
			}
			if err != nil {
				return fmt.Errorf("cannot resolve %q: %w", arg, err)
			}
			ids = append(ids, id)
		}

		if err := m.Fetch(ctx, ids); err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mirrorCmd)
	mirrorCmd.AddCommand(mirrorPushCmd, mirrorFetchCmd)
}
