package commands

import (
	"fmt"
	"os"

	"loosevault/pkg/types"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an empty object store",
	Long:  `Create the object directory configured by storage.path (./.lv/objects by default). Running it again is harmless.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		kind, err := types.ParseHashKind(viper.GetString("storage.hash"))
		if err != nil {
			return err
		}
		objects := viper.GetString("storage.path")

		if _, err := os.Stat(objects); err == nil {
			fmt.Fprintf(out, "object store already exists in %s\n", objects)
			return nil
		}

		// 分片目录在第一次写入时按需创建，这里只建根目录
		if err := os.MkdirAll(objects, 0o755); err != nil {
			return fmt.Errorf("failed to create object directory: %w", err)
		}

		fmt.Fprintf(out, "Initialized empty %s object store in %s\n", kind, objects)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
