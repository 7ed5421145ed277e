package exporter

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"loosevault/pkg/core"
	"loosevault/pkg/storage"
	"loosevault/pkg/types"
)

type Exporter struct {
	store storage.Reader
}

func NewExporter(store storage.Reader) *Exporter {
	return &Exporter{store: store}
}

func (e *Exporter) decode(ctx context.Context, id types.ID, want core.ObjectKind) (*core.DecodedObject, error) {
	obj, err := e.store.Decode(ctx, id)
	if err != nil {
		return nil, err
	}
	if want != 0 && obj.Kind != want {
		return nil, fmt.Errorf("object %s is a %s, not a %s", id, obj.Kind, want)
	}
	return obj, nil
}

// ExportBlob 将 blob 的原始内容写入 w
func (e *Exporter) ExportBlob(ctx context.Context, id types.ID, w io.Writer) error {
	obj, err := e.decode(ctx, id, core.KindBlob)
	if err != nil {
		return err
	}
	_, err = w.Write(obj.Data)
	return err
}

// PrintObject 按类型输出对象: blob 原样输出，tree 和 commit 输出可读的格式
func (e *Exporter) PrintObject(ctx context.Context, id types.ID, w io.Writer) error {
	obj, err := e.decode(ctx, id, 0)
	if err != nil {
		return err
	}

	switch obj.Kind {
	case core.KindTree:
		tree, err := core.DecodeTree(obj.Data)
		if err != nil {
			return err
		}
		return printTree(tree, w)
	case core.KindCommit:
		c, err := core.DecodeCommit(obj.Data)
		if err != nil {
			return err
		}
		return printCommit(c, w)
	default:
		_, err := w.Write(obj.Data)
		return err
	}
}

func printCommit(c *core.Commit, w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "tree %s\n", c.TreeCid)
	for _, p := range c.Parents {
		fmt.Fprintf(&b, "parent %s\n", p)
	}
	fmt.Fprintf(&b, "author %s %s\n", c.Author, time.Unix(c.Timestamp, 0).UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "\n%s\n", c.Message)
	_, err := io.WriteString(w, b.String())
	return err
}

// printTree 模仿 git ls-tree 的输出格式
func printTree(t *core.Tree, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	for _, entry := range t.Entries {
		kind := core.KindBlob
		if entry.Type == core.EntryDir {
			kind = core.KindTree
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", kind, entry.Hash, fmtSize(entry), entry.Name)
	}
	return tw.Flush()
}

func fmtSize(e core.TreeEntry) string {
	if e.Type == core.EntryDir {
		return "-"
	}
	return fmt.Sprintf("%d", e.Size)
}

type RestoreCallback func(path string, id types.ID, size int64)

// RestoreTree 递归地将 Merkle Tree 还原到目标目录，已存在的文件会被覆盖
func (e *Exporter) RestoreTree(ctx context.Context, treeID types.ID, targetDir string, onRestore RestoreCallback) error {
	obj, err := e.decode(ctx, treeID, core.KindTree)
	if err != nil {
		return fmt.Errorf("failed to get tree %s: %w", treeID, err)
	}
	tree, err := core.DecodeTree(obj.Data)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return fmt.Errorf("failed to create dir %s: %w", targetDir, err)
	}

	for _, entry := range tree.Entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Name 不含 "/"，NewTree 已校验；解码出来的树需要再挡一次
		if entry.Name == "." || entry.Name == ".." || strings.ContainsAny(entry.Name, `/\`) {
			return fmt.Errorf("tree %s: refusing to restore entry %q", treeID.Short(), entry.Name)
		}
		fullPath := filepath.Join(targetDir, entry.Name)

		if entry.Type == core.EntryDir {
			if err := e.RestoreTree(ctx, entry.Hash.ID, fullPath, onRestore); err != nil {
				return err
			}
			continue
		}

		if err := e.restoreFile(ctx, entry.Hash.ID, fullPath); err != nil {
			return err
		}
		if onRestore != nil {
			onRestore(fullPath, entry.Hash.ID, entry.Size)
		}
	}
	return nil
}

func (e *Exporter) restoreFile(ctx context.Context, id types.ID, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", path, err)
	}
	if err := e.ExportBlob(ctx, id, file); err != nil {
		file.Close()
		return fmt.Errorf("failed to restore %s: %w", path, err)
	}
	return file.Close()
}
