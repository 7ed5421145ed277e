package loose

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"loosevault/pkg/core"
	"loosevault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, s Store) (map[types.ID]bool, []error) {
	t.Helper()
	ids := make(map[types.ID]bool)
	var errs []error
	for id, err := range s.Iter() {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		assert.False(t, ids[id], "同一个 ID 不能出现两次")
		ids[id] = true
	}
	return ids, errs
}

func TestIter_Completeness(t *testing.T) {
	for _, hk := range []types.HashKind{types.SHA1, types.SHA256} {
		t.Run(hk.String(), func(t *testing.T) {
			s := At(t.TempDir(), hk)
			ctx := context.Background()

			const n = 50
			want := make(map[types.ID]bool, n)
			for i := range n {
				id, err := s.Write(ctx, core.KindBlob, []byte(fmt.Sprintf("object-%d", i)))
				require.NoError(t, err)
				want[id] = true
			}

			got, errs := collect(t, s)
			assert.Empty(t, errs)
			assert.Equal(t, want, got)
		})
	}
}

func TestIter_NotAnObject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Write(ctx, core.KindBlob, []byte("real"))
	require.NoError(t, err)

	// 1. 分片目录里的短文件名
	fanout := filepath.Join(s.Path(), "ab")
	require.NoError(t, os.MkdirAll(fanout, 0o755))
	spurious := filepath.Join(fanout, "short")
	require.NoError(t, os.WriteFile(spurious, []byte("x"), 0o644))

	// 2. 长度正确但不是小写 Hex
	upper := filepath.Join(fanout, "CDEF0123456789ABCDEF0123456789ABCDEF01")
	require.NoError(t, os.WriteFile(upper, []byte("x"), 0o644))

	// 3. 根目录下的散落文件
	stray := filepath.Join(s.Path(), "README")
	require.NoError(t, os.WriteFile(stray, []byte("x"), 0o644))

	// 以下都应该被跳过: 写入中的临时文件、非分片目录、嵌套目录
	require.NoError(t, os.WriteFile(filepath.Join(fanout, tmpPrefix+"123"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Path(), tmpPrefix+"456"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(s.Path(), "info", "packs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(s.Path(), "info", "packs", "p"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(fanout, "nested"), 0o755))

	got, errs := collect(t, s)
	assert.Equal(t, map[types.ID]bool{id: true}, got)

	var paths []string
	for _, err := range errs {
		var nao *NotAnObjectError
		require.True(t, errors.As(err, &nao), "unexpected error: %v", err)
		assert.ErrorIs(t, err, ErrNotAnObject)
		paths = append(paths, nao.Path)
	}
	assert.ElementsMatch(t, []string{spurious, upper, stray}, paths)

	// Objects 过滤掉 NotAnObject
	var objs []types.ID
	for id, err := range s.Objects() {
		require.NoError(t, err)
		objs = append(objs, id)
	}
	assert.Equal(t, []types.ID{id}, objs)
}

func TestIter_MissingRoot(t *testing.T) {
	s := At(filepath.Join(t.TempDir(), "nope"), types.SHA1)
	got, errs := collect(t, s)
	assert.Empty(t, got)
	assert.Empty(t, errs)
}

func TestIter_EarlyStop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := range 10 {
		_, err := s.Write(ctx, core.KindBlob, []byte{byte(i)})
		require.NoError(t, err)
	}

	seen := 0
	for _, err := range s.Iter() {
		require.NoError(t, err)
		seen++
		if seen == 3 {
			break
		}
	}
	assert.Equal(t, 3, seen)
}

func TestIter_WrongWidthIsNotAnObject(t *testing.T) {
	// sha256 库中的 sha1 对象名长度不对
	dir := t.TempDir()
	sha1Store := At(dir, types.SHA1)
	_, err := sha1Store.Write(context.Background(), core.KindBlob, []byte("narrow"))
	require.NoError(t, err)

	ids, errs := collect(t, At(dir, types.SHA256))
	assert.Empty(t, ids)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrNotAnObject)
}
