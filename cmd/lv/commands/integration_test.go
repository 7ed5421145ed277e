package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"loosevault/pkg/app"
	"loosevault/pkg/core"
	"loosevault/pkg/meta"
	"loosevault/pkg/storage/cache"
	"loosevault/pkg/storage/loose"
	"loosevault/pkg/types"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// setupIntegrationEnv 搭建一个使用真实文件系统 + SQLite catalog 的集成环境
func setupIntegrationEnv(t *testing.T) (*app.App, string) {
	t.Helper()
	tmpDir := t.TempDir()
	repo := filepath.Join(tmpDir, ".lv")

	ls := loose.At(filepath.Join(repo, "objects"), types.SHA1)
	hc, err := cache.NewHeaderCache(ls, 128)
	require.NoError(t, err)

	db, err := meta.OpenSQLite(filepath.Join(repo, "catalog.db"))
	require.NoError(t, err)

	application := &app.App{
		Loose:    ls,
		Store:    hc,
		Catalog:  meta.NewRepository(db),
		Log:      zap.NewNop(),
		RepoPath: repo,
	}

	viper.Set("ingest.stream_threshold", 1<<20)
	viper.Set("ingest.workers", 4)
	viper.Set("fsck.workers", 4)

	// 命令依赖全局变量 LV，测试里临时覆盖它
	LV = application
	t.Cleanup(func() {
		LV = nil
		db.Close()
		viper.Reset()
	})
	return application, tmpDir
}

// run 直接调用命令的 PreRunE / RunE，返回 stdout
func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetContext(context.Background())

	if cmd.PreRunE != nil {
		if err := cmd.PreRunE(cmd, args); err != nil {
			return "", err
		}
	}
	err := cmd.RunE(cmd, args)
	return out.String(), err
}

func mustRun(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()
	out, err := run(t, cmd, args...)
	require.NoError(t, err)
	return strings.TrimSpace(out)
}

func resetCatFileFlags(t *testing.T) {
	t.Helper()
	catFileType, catFileSize, catFileExists, catFilePretty = false, false, false, false
	t.Cleanup(func() {
		catFileType, catFileSize, catFileExists, catFilePretty = false, false, false, false
	})
}

func writeTestFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestIntegration_HashObjectAndCatFile(t *testing.T) {
	a, tmpDir := setupIntegrationEnv(t)
	ctx := context.Background()
	file := writeTestFile(t, tmpDir, "hello.txt", "hello world")
	want := core.ComputeID(types.SHA1, core.NewBlob([]byte("hello world")))

	hashObjectKind, hashObjectWrite, hashObjectStdin = "blob", false, false
	t.Cleanup(func() { hashObjectKind, hashObjectWrite = "blob", false })

	// 只计算，不写入
	assert.Equal(t, want.String(), mustRun(t, hashObjectCmd, file))
	ok, err := a.Store.Has(ctx, want)
	require.NoError(t, err)
	assert.False(t, ok)

	// -w 写入，并登记到 catalog
	hashObjectWrite = true
	assert.Equal(t, want.String(), mustRun(t, hashObjectCmd, file))
	rec, err := a.Catalog.GetObject(ctx, want)
	require.NoError(t, err)
	assert.Equal(t, int64(11), rec.Size)

	resetCatFileFlags(t)
	catFileType = true
	assert.Equal(t, "blob", mustRun(t, catFileCmd, want.String()[:7]))

	resetCatFileFlags(t)
	catFileSize = true
	assert.Equal(t, "11", mustRun(t, catFileCmd, want.String()))

	resetCatFileFlags(t)
	catFilePretty = true
	assert.Equal(t, "hello world", mustRun(t, catFileCmd, want.String()))

	resetCatFileFlags(t)
	catFileExists = true
	_, err = run(t, catFileCmd, want.String())
	assert.NoError(t, err)
	_, err = run(t, catFileCmd, core.ComputeID(types.SHA1, core.NewBlob([]byte("nope"))).String())
	assert.ErrorIs(t, err, loose.ErrNotFound)

	assert.Equal(t, want.String(), mustRun(t, revParseCmd, want.String()[:6]))
}

func TestIntegration_UpperCaseHashes(t *testing.T) {
	a, _ := setupIntegrationEnv(t)
	ctx := context.Background()
	id, err := a.Store.Write(ctx, core.KindBlob, []byte("Case Insensitive"))
	require.NoError(t, err)
	upper := strings.ToUpper(id.String())

	assert.Equal(t, id.String(), mustRun(t, revParseCmd, upper))
	assert.Equal(t, id.String(), mustRun(t, revParseCmd, upper[:8]))

	resetCatFileFlags(t)
	catFilePretty = true
	assert.Equal(t, "Case Insensitive", mustRun(t, catFileCmd, upper[:10]))
}

func TestIntegration_CatFileRequiresOneMode(t *testing.T) {
	setupIntegrationEnv(t)
	resetCatFileFlags(t)

	_, err := run(t, catFileCmd, "abcd")
	assert.ErrorContains(t, err, "exactly one")

	catFileType, catFileSize = true, true
	_, err = run(t, catFileCmd, "abcd")
	assert.ErrorContains(t, err, "exactly one")
}

func TestIntegration_AddCommitCheckout(t *testing.T) {
	a, tmpDir := setupIntegrationEnv(t)
	ctx := context.Background()

	src := filepath.Join(tmpDir, "src")
	writeTestFile(t, src, "data.txt", "hello world")
	writeTestFile(t, src, "nested/model.bin", "weights")
	writeTestFile(t, src, "nested/skip.log", "ignored")
	writeTestFile(t, src, ".lvignore", "*.log\n")

	treeHex := mustRun(t, addCmd, src)
	treeID, err := types.ParseID(types.SHA1, treeHex)
	require.NoError(t, err)

	commitMsg, commitAuthor, commitParents = "Integration Test Commit", "Tester", nil
	t.Cleanup(func() { commitMsg, commitAuthor, commitParents = "", "", nil })

	commitHex := mustRun(t, commitTreeCmd, treeHex[:8])
	commitID, err := types.ParseID(types.SHA1, commitHex)
	require.NoError(t, err)

	// 对象库里有 commit，SQL 里有索引
	obj, err := a.Store.Decode(ctx, commitID)
	require.NoError(t, err)
	assert.Equal(t, core.KindCommit, obj.Kind)

	model, err := a.Catalog.GetCommit(ctx, commitID)
	require.NoError(t, err)
	assert.Equal(t, "Integration Test Commit", model.Message)
	assert.Equal(t, treeID.String(), model.TreeHash)

	// 第二个 commit 以第一个为 parent
	commitParents = []string{commitHex}
	commitMsg = "second"
	second := mustRun(t, commitTreeCmd, treeHex)
	model, err = a.Catalog.GetCommit(ctx, mustParse(t, second))
	require.NoError(t, err)
	assert.Contains(t, string(model.Parents), commitHex)

	// parent 必须是 commit
	commitParents = []string{treeHex}
	_, err = run(t, commitTreeCmd, treeHex)
	assert.ErrorContains(t, err, "not a commit")

	// 从 commit 检出
	dst := filepath.Join(tmpDir, "dst")
	out := mustRun(t, checkoutCmd, commitHex, dst)
	assert.Contains(t, out, "restored 3 files")

	data, err := os.ReadFile(filepath.Join(dst, "nested", "model.bin"))
	require.NoError(t, err)
	assert.Equal(t, "weights", string(data))
	assert.NoFileExists(t, filepath.Join(dst, "nested", "skip.log"))
}

func mustParse(t *testing.T, s string) types.ID {
	t.Helper()
	id, err := types.ParseID(types.SHA1, s)
	require.NoError(t, err)
	return id
}

func TestIntegration_LsObjectsAndFsck(t *testing.T) {
	a, _ := setupIntegrationEnv(t)
	ctx := context.Background()

	var ids []string
	for _, s := range []string{"a", "b", "c"} {
		id, err := a.Store.Write(ctx, core.KindBlob, []byte(s))
		require.NoError(t, err)
		ids = append(ids, id.String())
	}

	lsObjectsAll, lsObjectsLong = false, false
	t.Cleanup(func() { lsObjectsAll, lsObjectsLong = false, false })

	out := mustRun(t, lsObjectsCmd)
	assert.ElementsMatch(t, ids, strings.Fields(out))

	out = mustRun(t, fsckCmd)
	assert.Contains(t, out, "checked 3 objects, 0 problems")

	// 混入一个不是对象的文件
	stray := filepath.Join(a.Loose.Path(), "README")
	require.NoError(t, os.WriteFile(stray, []byte("hi"), 0o644))

	out = mustRun(t, lsObjectsCmd)
	assert.Len(t, strings.Fields(out), 3)

	lsObjectsAll = true
	out = mustRun(t, lsObjectsCmd)
	assert.Contains(t, out, "not-an-object")
	assert.Contains(t, out, stray)

	lsObjectsAll, lsObjectsLong = false, true
	out = mustRun(t, lsObjectsCmd)
	assert.Contains(t, out, ids[0]+" blob 1")

	out, err := run(t, fsckCmd)
	assert.ErrorContains(t, err, "fsck found 1 problems")
	assert.Contains(t, out, "not-an-object "+stray)

	last, err := a.Catalog.LatestFsckRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, last.ProblemCount)
	assert.Equal(t, 3, last.Checked)
}

func TestIntegration_CatalogRebuildAndStats(t *testing.T) {
	a, _ := setupIntegrationEnv(t)
	ctx := context.Background()

	blob, err := a.Store.Write(ctx, core.KindBlob, []byte("payload"))
	require.NoError(t, err)
	tree, err := core.NewTree([]core.TreeEntry{
		{Name: "f", Type: core.EntryFile, Hash: core.NewLink(blob), Size: 7},
	})
	require.NoError(t, err)
	treeID, err := a.Store.Write(ctx, tree.Kind(), tree.Bytes())
	require.NoError(t, err)
	c, err := core.NewCommit(treeID, nil, "Tester", "rebuilt")
	require.NoError(t, err)
	commitID, err := a.Store.Write(ctx, c.Kind(), c.Bytes())
	require.NoError(t, err)

	// 直接写入对象库的对象，catalog 还不知道
	_, err = a.Catalog.GetObject(ctx, blob)
	assert.ErrorIs(t, err, meta.ErrObjectNotFound)

	out := mustRun(t, catalogRebuildCmd)
	assert.Contains(t, out, "recorded 3 objects")

	rec, err := a.Catalog.GetObject(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, "blob", rec.Kind)

	model, err := a.Catalog.GetCommit(ctx, commitID)
	require.NoError(t, err)
	assert.Equal(t, "rebuilt", model.Message)

	out = mustRun(t, catalogStatsCmd)
	assert.Contains(t, out, "commit")
	assert.Contains(t, out, "no fsck run recorded")
}

func TestIntegration_MirrorRequiresBucket(t *testing.T) {
	setupIntegrationEnv(t)

	_, err := run(t, mirrorPushCmd)
	assert.ErrorContains(t, err, "bucket is required")
}

func TestIntegration_Init(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".lv", "objects")
	viper.Set("storage.path", dir)
	viper.Set("storage.hash", "sha256")
	t.Cleanup(viper.Reset)

	out := mustRun(t, initCmd)
	assert.Contains(t, out, "Initialized empty sha256 object store")
	assert.DirExists(t, dir)

	out = mustRun(t, initCmd)
	assert.Contains(t, out, "already exists")
}
