package commands

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"loosevault/pkg/storage/loose"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	lsObjectsAll  bool
	lsObjectsLong bool
)

var lsObjectsCmd = &cobra.Command{
	Use:   "ls-objects",
	Short: "List every object id in the store",
	Long: `List the ids of all objects in the store in filesystem order.
With --all, files that are not objects are reported as well.
With --long, the kind and size of every object are read from its header.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 1, ' ', 0)

		seq := LV.Loose.Objects()
		if lsObjectsAll {
			seq = LV.Loose.Iter()
		}

		n := 0
		for id, err := range seq {
			if err != nil {
				var nao *loose.NotAnObjectError
				if errors.As(err, &nao) {
					fmt.Fprintf(tw, "not-an-object\t%s\n", nao.Path)
					continue
				}
				tw.Flush()
				return err
			}

			n++
			if !lsObjectsLong {
				fmt.Fprintln(tw, id)
				continue
			}
			kind, size, err := LV.Store.Header(ctx, id)
			if err != nil {
				fmt.Fprintf(tw, "%s\t?\t?\t%v\n", id, err)
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\n", id, kind, size)
		}
		LV.Log.Debug("listed objects", zap.Int("count", n))
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(lsObjectsCmd)

	lsObjectsCmd.Flags().BoolVarP(&lsObjectsAll, "all", "a", false, "also report files that are not objects")
	lsObjectsCmd.Flags().BoolVarP(&lsObjectsLong, "long", "l", false, "show kind and size")
}
