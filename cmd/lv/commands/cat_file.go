package commands

import (
	"errors"
	"fmt"

	"loosevault/pkg/exporter"
	"loosevault/pkg/storage"

	"github.com/spf13/cobra"
)

var (
	catFileType   bool
	catFileSize   bool
	catFileExists bool
	catFilePretty bool
)

var catFileCmd = &cobra.Command{
	Use:   "cat-file (-t | -s | -e | -p) <object>",
	Short: "Show the kind, size or content of an object",
	Long: `Resolve <object> (a full id or an unambiguous prefix of at least 4 hex digits) and print:
  -t  its kind
  -s  its size in bytes
  -e  nothing; exit with a non-zero status if the object is missing or unreadable
  -p  its content, pretty-printed for trees and commits`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		n := 0
		for _, set := range []bool{catFileType, catFileSize, catFileExists, catFilePretty} {
			if set {
				n++
			}
		}
		if n != 1 {
			return errors.New("exactly one of -t, -s, -e or -p is required")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		id, err := resolveID(ctx, args[0])
		if err != nil {
			return err
		}

		switch {
		case catFileExists:
			// 和 git 一样，-e 只检查头部是否可读
			_, _, err := LV.Store.Header(ctx, id)
			return err
		case catFilePretty:
			return exporter.NewExporter(LV.Store).PrintObject(ctx, id, out)
		}

		kind, size, err := LV.Store.Header(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return err
		}
		if catFileType {
			fmt.Fprintln(out, kind)
		} else {
			fmt.Fprintln(out, size)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catFileCmd)

	f := catFileCmd.Flags()
	f.BoolVarP(&catFileType, "type", "t", false, "show the object kind")
	f.BoolVarP(&catFileSize, "size", "s", false, "show the object size")
	f.BoolVarP(&catFileExists, "exists", "e", false, "exit with zero status if the object exists and is readable")
	f.BoolVarP(&catFilePretty, "pretty", "p", false, "pretty-print the object content")
}
