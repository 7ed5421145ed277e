package commands

import (
	"errors"
	"fmt"

	"loosevault/pkg/core"
	"loosevault/pkg/storage"
	"loosevault/pkg/types"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	commitMsg     string
	commitParents []string
	commitAuthor  string
)

var commitTreeCmd = &cobra.Command{
	Use:   "commit-tree <tree> -m <message> [-p <parent>]...",
	Short: "Create a commit object for a tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if commitMsg == "" {
			return errors.New("commit message cannot be empty (use -m)")
		}

		treeID, err := resolveKind(cmd, args[0], core.KindTree)
		if err != nil {
			return err
		}

		parents := make([]types.ID, 0, len(commitParents))
		for _, p := range commitParents {
			id, err := resolveKind(cmd, p, core.KindCommit)
			if err != nil {
				return err
			}
			parents = append(parents, id)
		}

		author := commitAuthor
		if author == "" {
			author = viper.GetString("user.name")
		}
		if author == "" {
			author = "loosevault"
		}

		c, err := core.NewCommit(treeID, parents, author, commitMsg)
		if err != nil {
			return fmt.Errorf("failed to create commit object: %w", err)
		}
		id, err := storage.Put(ctx, LV.Store, c)
		if err != nil {
			return fmt.Errorf("failed to store commit: %w", err)
		}

		if LV.Catalog != nil {
			if err := LV.Catalog.RecordObject(ctx, id, core.KindCommit, uint64(len(c.Bytes()))); err != nil {
				return err
			}
			if err := LV.Catalog.IndexCommit(ctx, id, c); err != nil {
				return err
			}
		}

		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

// resolveKind 解析 arg 并确认对象类型
func resolveKind(cmd *cobra.Command, arg string, want core.ObjectKind) (types.ID, error) {
	id, err := resolveID(cmd.Context(), arg)
	if err != nil {
		return types.ID{}, err
	}
	kind, _, err := LV.Store.Header(cmd.Context(), id)
	if err != nil {
		return types.ID{}, fmt.Errorf("%s: %w", arg, err)
	}
	if kind != want {
		return types.ID{}, fmt.Errorf("%s is a %s, not a %s", id.Short(), kind, want)
	}
	return id, nil
}

func init() {
	rootCmd.AddCommand(commitTreeCmd)

	commitTreeCmd.Flags().StringVarP(&commitMsg, "message", "m", "", "commit message")
	commitTreeCmd.Flags().StringArrayVarP(&commitParents, "parent", "p", nil, "parent commit (repeatable)")
	commitTreeCmd.Flags().StringVar(&commitAuthor, "author", "", "commit author (default user.name from config)")
}
