package ingester

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"loosevault/pkg/core"
	"loosevault/pkg/ignore"
	"loosevault/pkg/storage/loose"
	"loosevault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedObject struct {
	kind core.ObjectKind
	size uint64
}

type fakeRecorder struct {
	mu   sync.Mutex
	seen map[types.ID]recordedObject
}

func (r *fakeRecorder) RecordObject(_ context.Context, id types.ID, kind core.ObjectKind, size uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen == nil {
		r.seen = make(map[types.ID]recordedObject)
	}
	r.seen[id] = recordedObject{kind: kind, size: size}
	return nil
}

func writeFile(t *testing.T, root, rel string, data []byte) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func newStore(t *testing.T) loose.Store {
	t.Helper()
	return loose.At(filepath.Join(t.TempDir(), "objects"), types.SHA1)
}

func TestIngestFile_SmallAndStreamed(t *testing.T) {
	ctx := context.Background()
	content := bytes.Repeat([]byte("loose object "), 100)
	path := writeFile(t, t.TempDir(), "data.bin", content)
	want := core.ComputeID(types.SHA1, core.NewBlob(content))

	tests := []struct {
		name      string
		threshold int64
	}{
		{"In memory", 1 << 20},
		{"Streamed", 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			ing := NewIngester(store, Config{StreamThreshold: tt.threshold})

			entry, err := ing.IngestFile(ctx, path)
			require.NoError(t, err)
			assert.Equal(t, want, entry.ID)
			assert.Equal(t, int64(len(content)), entry.Size)

			obj, err := store.Decode(ctx, entry.ID)
			require.NoError(t, err)
			assert.Equal(t, core.KindBlob, obj.Kind)
			assert.Equal(t, content, obj.Data)
		})
	}
}

func TestIngestFile_Errors(t *testing.T) {
	ing := NewIngester(newStore(t), Config{})

	_, err := ing.IngestFile(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = ing.IngestFile(context.Background(), t.TempDir())
	assert.ErrorContains(t, err, "not a regular file")
}

func TestIngestDir(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	writeFile(t, root, "a.txt", []byte("a"))
	writeFile(t, root, "sub/b.txt", []byte("bb"))
	writeFile(t, root, "sub/deep/c.txt", []byte("ccc"))
	writeFile(t, root, "build/out.o", []byte("ignored"))
	writeFile(t, root, "debug.log", []byte("ignored"))
	writeFile(t, root, ".lv/objects/e6/9de29bb2d1d6434b8b29ae775ad8c2e48c5391", []byte("ignored"))
	writeFile(t, root, ignore.FileName, []byte("build\n*.log\n"))

	matcher, err := ignore.NewMatcher(root)
	require.NoError(t, err)

	store := newStore(t)
	rec := &fakeRecorder{}
	ing := NewIngester(store, Config{Workers: 2, Recorder: rec})

	files, err := ing.IngestDir(ctx, root, matcher)
	require.NoError(t, err)

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	assert.ElementsMatch(t, []string{"a.txt", "sub/b.txt", "sub/deep/c.txt", ignore.FileName}, paths)

	assert.Equal(t, int64(3), files["sub/deep/c.txt"].Size)
	ok, err := store.Has(ctx, files["sub/b.txt"].ID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, rec.seen, 4)
	assert.Equal(t, recordedObject{kind: core.KindBlob, size: 2}, rec.seen[files["sub/b.txt"].ID])
}

func TestIngestDir_SkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	target := writeFile(t, root, "real.txt", []byte("real"))
	if err := os.Symlink(target, filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	files, err := NewIngester(newStore(t), Config{}).IngestDir(context.Background(), root, nil)
	require.NoError(t, err)
	assert.Len(t, files, 1)
	assert.Contains(t, files, "real.txt")
}

func TestIngestDir_MissingRoot(t *testing.T) {
	_, err := NewIngester(newStore(t), Config{}).IngestDir(context.Background(), filepath.Join(t.TempDir(), "nope"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestIngestTree(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeFile(t, root, "x/1.txt", []byte("one"))
	writeFile(t, root, "y.txt", []byte("two"))

	store := newStore(t)
	ing := NewIngester(store, Config{})

	id, err := ing.IngestTree(ctx, root, nil)
	require.NoError(t, err)

	obj, err := store.Decode(ctx, id)
	require.NoError(t, err)
	require.Equal(t, core.KindTree, obj.Kind)

	tree, err := core.DecodeTree(obj.Data)
	require.NoError(t, err)
	require.Len(t, tree.Entries, 2)
	assert.Equal(t, "x", tree.Entries[0].Name)
	assert.Equal(t, core.EntryDir, tree.Entries[0].Type)
	assert.Equal(t, "y.txt", tree.Entries[1].Name)

	// 同样的目录内容得到同样的树
	again, err := ing.IngestTree(ctx, root, nil)
	require.NoError(t, err)
	assert.Equal(t, id, again)
}
