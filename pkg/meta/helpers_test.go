package meta

import (
	"context"
	"testing"
	"time"

	"loosevault/pkg/core"
	"loosevault/pkg/types"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 通用辅助函数 (Helpers)
// -----------------------------------------------------------------------------

// mockID 生成合法的测试用 ID
func mockID(input string) types.ID {
	return types.Sum(types.SHA1, []byte(input))
}

// mustNewCommit 创建 Commit，如果失败直接终止测试
func mustNewCommit(t *testing.T, tree types.ID, parents []types.ID, author, msg string, ts int64) (types.ID, *core.Commit) {
	t.Helper()
	c, err := core.NewCommitAt(tree, parents, author, msg, time.Unix(ts, 0))
	require.NoError(t, err)
	return core.ComputeID(types.SHA1, c), c
}

// mustIndexCommit 强制索引 Commit，失败则终止
func mustIndexCommit(t *testing.T, repo *Repository, id types.ID, c *core.Commit, msgAndArgs ...any) {
	t.Helper()
	err := repo.IndexCommit(context.Background(), id, c)
	require.NoError(t, err, msgAndArgs...)
}
