package commands

import (
	"fmt"

	"loosevault/pkg/fsck"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var fsckCmd = &cobra.Command{
	Use:   "fsck",
	Short: "Verify every object in the store",
	Long: `Decode every object with hash verification enabled and report files that are
corrupt, truncated, mislabelled or not objects at all. The run is recorded in the
catalog when one is configured. Exits non-zero when problems are found.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		report, err := fsck.Check(ctx, LV.Loose, fsck.Config{
			Workers: viper.GetInt("fsck.workers"),
			Logger:  LV.Log,
		})
		if err != nil {
			return err
		}

		for _, p := range report.Problems {
			fmt.Fprintf(out, "%s %s: %s\n", p.Class, p.Path, p.Error)
		}
		fmt.Fprintf(out, "checked %d objects, %d problems\n", report.Checked, len(report.Problems))

		if LV.Catalog != nil {
			if _, err := report.Save(ctx, LV.Catalog); err != nil {
				// 检查结果已经输出，记录失败不影响退出状态
				LV.Log.Warn("failed to record fsck run", zap.Error(err))
			}
		}

		if !report.OK() {
			return fmt.Errorf("fsck found %d problems", len(report.Problems))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fsckCmd)
}
