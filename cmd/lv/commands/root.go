package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"loosevault/pkg/app"
	"loosevault/pkg/config"
	"loosevault/pkg/storage"
	"loosevault/pkg/types"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// 全局应用实例，供子命令使用
	LV *app.App
)

var rootCmd = &cobra.Command{
	Use:           "lv",
	Short:         "loosevault: a git-style loose object store",
	SilenceUsage:  true,
	SilenceErrors: true,
	// PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// init 负责创建环境，不需要 App
		if cmd.Name() == "init" || LV != nil {
			return nil
		}

		var err error
		LV, err = app.NewApp(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to initialize loosevault: %w\n(Did you run 'lv init'?)", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if LV == nil {
			return nil
		}
		err := LV.Close()
		LV = nil
		return err
	},
}

// Execute 是入口
func Execute() error {
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./.lv/config.yaml or $HOME/.lv/config.yaml)")

	// 这些参数既可以写在 yaml 里，也可以用命令行覆盖
	flags.String("storage-path", "", "directory holding the loose objects")
	flags.String("hash", "", "object hash kind (sha1 or sha256)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("catalog", "", "catalog driver (sqlite, postgres or none)")

	bindings := map[string]string{
		"storage.path":   "storage-path",
		"storage.hash":   "hash",
		"log.level":      "log-level",
		"catalog.driver": "catalog",
	}
	for key, flag := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			fmt.Fprintln(os.Stderr, "Failed to bind flag:", err)
			os.Exit(1)
		}
	}
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	if _, err := config.Load(cfgFile); err != nil {
		fmt.Fprintln(os.Stderr, "Config error:", err)
		os.Exit(1)
	}
}

// resolveID 把完整或缩写的十六进制哈希还原为对象 ID
// 大小写不敏感，完整哈希和缩写的行为一致
func resolveID(ctx context.Context, arg string) (types.ID, error) {
	arg = strings.ToLower(arg)
	kind := LV.Store.HashKind()
	if len(arg) == kind.HexLen() {
		return types.ParseID(kind, arg)
	}
	id, err := storage.Expand(ctx, LV.Store, types.HashPrefix(arg))
	if err != nil {
		return types.ID{}, fmt.Errorf("cannot resolve %q: %w", arg, err)
	}
	return id, nil
}
