package core

import (
	"fmt"
	"slices"
	"strings"
)

type EntryType string

const (
	EntryFile EntryType = "file"
	EntryDir  EntryType = "dir"
)

type TreeEntry struct {
	Name string    `cbor:"n"`
	Type EntryType `cbor:"t"`
	Hash Link      `cbor:"h"`
	Size int64     `cbor:"s"`
}

type Tree struct {
	rawBytes []byte

	Entries []TreeEntry `cbor:"e"`
}

// NewTree 创建一个新的目录树节点
// 条目按名称排序，保证相同内容的目录得到相同的载荷
func NewTree(entries []TreeEntry) (*Tree, error) {
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b TreeEntry) int { return strings.Compare(a.Name, b.Name) })

	for i, e := range sorted {
		if e.Name == "" || strings.ContainsAny(e.Name, "/\x00") {
			return nil, fmt.Errorf("invalid tree entry name %q", e.Name)
		}
		if e.Type != EntryFile && e.Type != EntryDir {
			return nil, fmt.Errorf("entry %q: unknown type %q", e.Name, e.Type)
		}
		if i > 0 && sorted[i-1].Name == e.Name {
			return nil, fmt.Errorf("duplicate tree entry %q", e.Name)
		}
	}

	t := &Tree{Entries: sorted}
	b, err := EncodeObject(t)
	if err != nil {
		return nil, err
	}
	t.rawBytes = b
	return t, nil
}

// DecodeTree 从载荷中还原 Tree
func DecodeTree(data []byte) (*Tree, error) {
	var t Tree
	if err := DecodeObject(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode tree: %w", err)
	}
	t.rawBytes = data
	return &t, nil
}

// NewTreeEntryFromObject 自动根据子对象生成条目
// 子对象的 ID 由调用方按对象库的 HashKind 计算后传入
func NewTreeEntryFromObject(name string, child Object, link Link) (TreeEntry, error) {
	var entryType EntryType
	var size int64

	switch n := child.(type) {
	case *Blob:
		entryType = EntryFile
		size = int64(len(n.data))
	case *Tree:
		entryType = EntryDir
	case *Commit:
		return TreeEntry{}, fmt.Errorf("commit cannot be an entry inside a tree")
	default:
		return TreeEntry{}, fmt.Errorf("unsupported object kind: %s", child.Kind())
	}

	return TreeEntry{
		Name: name,
		Type: entryType,
		Hash: link,
		Size: size,
	}, nil
}

func (t *Tree) Kind() ObjectKind { return KindTree }
func (t *Tree) Bytes() []byte    { return t.rawBytes }
