package treebuilder

import (
	"context"
	"path/filepath"
	"testing"

	"loosevault/pkg/core"
	"loosevault/pkg/storage"
	"loosevault/pkg/storage/loose"
	"loosevault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putBlob(t *testing.T, s loose.Store, content string) Entry {
	t.Helper()
	id, err := storage.Put(context.Background(), s, core.NewBlob([]byte(content)))
	require.NoError(t, err)
	return Entry{ID: id, Size: int64(len(content))}
}

func readTree(t *testing.T, s loose.Store, id types.ID) *core.Tree {
	t.Helper()
	obj, err := s.Decode(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, core.KindTree, obj.Kind)
	tree, err := core.DecodeTree(obj.Data)
	require.NoError(t, err)
	return tree
}

func TestTreeBuilder(t *testing.T) {
	ctx := context.Background()
	store := loose.At(filepath.Join(t.TempDir(), "objects"), types.SHA1)

	// root
	//  ├── a.txt
	//  └── sub
	//       └── b.txt
	a := putBlob(t, store, "content-a")
	b := putBlob(t, store, "content-bb")

	rootID, err := NewBuilder(store).Build(ctx, map[string]Entry{
		"a.txt":     a,
		"sub/b.txt": b,
	})
	require.NoError(t, err)

	root := readTree(t, store, rootID)
	require.Len(t, root.Entries, 2)

	assert.Equal(t, "a.txt", root.Entries[0].Name)
	assert.Equal(t, core.EntryFile, root.Entries[0].Type)
	assert.Equal(t, a.ID, root.Entries[0].Hash.ID)
	assert.Equal(t, int64(9), root.Entries[0].Size)

	assert.Equal(t, "sub", root.Entries[1].Name)
	assert.Equal(t, core.EntryDir, root.Entries[1].Type)
	assert.Zero(t, root.Entries[1].Size)

	sub := readTree(t, store, root.Entries[1].Hash.ID)
	require.Len(t, sub.Entries, 1)
	assert.Equal(t, "b.txt", sub.Entries[0].Name)
	assert.Equal(t, b.ID, sub.Entries[0].Hash.ID)
}

func TestTreeBuilder_Deterministic(t *testing.T) {
	ctx := context.Background()
	store := loose.At(filepath.Join(t.TempDir(), "objects"), types.SHA256)

	files := map[string]Entry{
		"x/1": putBlob(t, store, "1"),
		"x/2": putBlob(t, store, "2"),
		"y":   putBlob(t, store, "3"),
		"z/w": putBlob(t, store, "4"),
	}

	first, err := NewBuilder(store).Build(ctx, files)
	require.NoError(t, err)
	for range 5 {
		again, err := NewBuilder(store).Build(ctx, files)
		require.NoError(t, err)
		assert.Equal(t, first, again, "map 的遍历顺序不能影响树的 ID")
	}
	assert.Equal(t, types.SHA256, first.Kind())
}

func TestTreeBuilder_Empty(t *testing.T) {
	store := loose.At(filepath.Join(t.TempDir(), "objects"), types.SHA1)

	id, err := NewBuilder(store).Build(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, readTree(t, store, id).Entries)
}

func TestTreeBuilder_InvalidPaths(t *testing.T) {
	store := loose.At(filepath.Join(t.TempDir(), "objects"), types.SHA1)
	blob := putBlob(t, store, "x")

	tests := []struct {
		name  string
		files map[string]Entry
	}{
		{"Empty segment", map[string]Entry{"a//b": blob}},
		{"Leading slash", map[string]Entry{"/a": blob}},
		{"Dot dot", map[string]Entry{"../a": blob}},
		{"File and dir", map[string]Entry{"a": blob, "a/b": blob}},
		{"Missing id", map[string]Entry{"a": {Size: 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBuilder(store).Build(context.Background(), tt.files)
			assert.Error(t, err)
		})
	}
}
