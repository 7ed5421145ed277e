package commands

import (
	"fmt"
	"os"
	"time"

	"loosevault/pkg/ignore"
	"loosevault/pkg/ingester"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var addCmd = &cobra.Command{
	Use:   "add <dir>",
	Short: "Store a directory as blobs and trees and print the root tree id",
	Long: `Walk <dir>, write every regular file as a blob (honouring .lvignore) and
build the matching tree objects bottom-up. The root tree id is printed and can
be passed to commit-tree or checkout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		root := args[0]
		start := time.Now()

		info, err := os.Stat(root)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory (use hash-object -w for single files)", root)
		}

		matcher, err := ignore.NewMatcher(root)
		if err != nil {
			return err
		}

		cfg := ingester.Config{
			Workers:         viper.GetInt("ingest.workers"),
			StreamThreshold: viper.GetInt64("ingest.stream_threshold"),
			Logger:          LV.Log,
		}
		// 避免把 nil 指针装进接口
		if LV.Catalog != nil {
			cfg.Recorder = LV.Catalog
		}

		treeID, err := ingester.NewIngester(LV.Store, cfg).IngestTree(ctx, root, matcher)
		if err != nil {
			return fmt.Errorf("add failed: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), treeID)
		fmt.Fprintf(cmd.ErrOrStderr(), "stored %s in %s\n", root, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
}
