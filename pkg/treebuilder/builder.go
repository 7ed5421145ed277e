package treebuilder

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"loosevault/pkg/core"
	"loosevault/pkg/storage"
	"loosevault/pkg/types"
)

// Entry 是一个已经写入对象库的文件
type Entry struct {
	ID   types.ID
	Size int64
}

// Builder 负责将 "相对路径 -> blob" 的扁平映射转换为 Merkle Tree
type Builder struct {
	store storage.Writer
}

func NewBuilder(store storage.Writer) *Builder {
	return &Builder{store: store}
}

// Build 执行构建过程，返回根树的 ID
// 路径使用 "/" 分隔；空映射得到一个空树
func (b *Builder) Build(ctx context.Context, files map[string]Entry) (types.ID, error) {
	root := newDirNode("")
	for path, entry := range files {
		if err := root.addFile(path, entry); err != nil {
			return types.ID{}, err
		}
	}
	return b.writeNode(ctx, root)
}

type node struct {
	name     string
	isDir    bool
	children map[string]*node
	entry    Entry
}

func newDirNode(name string) *node {
	return &node{
		name:     name,
		isDir:    true,
		children: make(map[string]*node),
	}
}

// addFile 将 "a/b/c.txt" 插入树中，沿途创建 a 和 b
func (n *node) addFile(path string, entry Entry) error {
	if entry.ID.IsZero() {
		return fmt.Errorf("file %q has no object id", path)
	}
	parts := strings.Split(path, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid path %q", path)
		}
	}

	current := n
	for _, part := range parts[:len(parts)-1] {
		child, exists := current.children[part]
		if !exists {
			child = newDirNode(part)
			current.children[part] = child
		}
		if !child.isDir {
			return fmt.Errorf("path %q: %q is both a file and a directory", path, part)
		}
		current = child
	}

	name := parts[len(parts)-1]
	if _, exists := current.children[name]; exists {
		return fmt.Errorf("path %q: %q is both a file and a directory", path, name)
	}
	current.children[name] = &node{name: name, entry: entry}
	return nil
}

// writeNode 自底向上写入子树，返回 n 对应的对象 ID
func (b *Builder) writeNode(ctx context.Context, n *node) (types.ID, error) {
	if !n.isDir {
		return n.entry.ID, nil
	}

	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]core.TreeEntry, 0, len(names))
	for _, name := range names {
		child := n.children[name]

		childID, err := b.writeNode(ctx, child)
		if err != nil {
			return types.ID{}, err
		}

		entry := core.TreeEntry{Name: name, Type: core.EntryFile, Hash: core.NewLink(childID)}
		if child.isDir {
			// 目录的 Size 为 0，与 git 一致
			entry.Type = core.EntryDir
		} else {
			entry.Size = child.entry.Size
		}
		entries = append(entries, entry)
	}

	tree, err := core.NewTree(entries)
	if err != nil {
		return types.ID{}, fmt.Errorf("failed to create tree object: %w", err)
	}

	id, err := storage.Put(ctx, b.store, tree)
	if err != nil {
		return types.ID{}, fmt.Errorf("failed to store tree %q: %w", n.name, err)
	}
	return id, nil
}
