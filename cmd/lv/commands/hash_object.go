package commands

import (
	"fmt"
	"io"
	"os"

	"loosevault/pkg/core"
	"loosevault/pkg/storage"
	"loosevault/pkg/types"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	hashObjectKind  string
	hashObjectWrite bool
	hashObjectStdin bool
)

var hashObjectCmd = &cobra.Command{
	Use:   "hash-object [-t kind] [-w] (--stdin | <file>)",
	Short: "Compute an object id and optionally write the object",
	Args: func(cmd *cobra.Command, args []string) error {
		if hashObjectStdin {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		kind, err := core.ParseKind(hashObjectKind)
		if err != nil {
			return err
		}

		// 大文件写入时走流式路径
		if hashObjectWrite && !hashObjectStdin {
			info, err := os.Stat(args[0])
			if err != nil {
				return err
			}
			if info.Size() >= viper.GetInt64("ingest.stream_threshold") {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				id, err := storage.WriteStream(ctx, LV.Store, kind, uint64(info.Size()), f)
				if err != nil {
					return err
				}
				return finishHashObject(cmd, id, kind, uint64(info.Size()))
			}
		}

		var data []byte
		if hashObjectStdin {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return err
		}

		if !hashObjectWrite {
			id := types.Sum(LV.Store.HashKind(), core.AppendHeader(nil, kind, uint64(len(data))), data)
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		}

		id, err := LV.Store.Write(ctx, kind, data)
		if err != nil {
			return err
		}
		return finishHashObject(cmd, id, kind, uint64(len(data)))
	},
}

func finishHashObject(cmd *cobra.Command, id types.ID, kind core.ObjectKind, size uint64) error {
	if LV.Catalog != nil {
		if err := LV.Catalog.RecordObject(cmd.Context(), id, kind, size); err != nil {
			return err
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func init() {
	rootCmd.AddCommand(hashObjectCmd)

	hashObjectCmd.Flags().StringVarP(&hashObjectKind, "type", "t", "blob", "object kind (blob, tree, commit, tag)")
	hashObjectCmd.Flags().BoolVarP(&hashObjectWrite, "write", "w", false, "write the object into the store")
	hashObjectCmd.Flags().BoolVar(&hashObjectStdin, "stdin", false, "read the object from standard input")
}
