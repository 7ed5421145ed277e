package ignore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"
)

// FileName 是目录中用户自定义忽略规则所在的文件
const FileName = ".lvignore"

// defaultRules 总是生效，用户规则无法覆盖
var defaultRules = []string{
	// 对象库目录本身，录入它会让每次 add 都产生新的对象
	".lv",
	".git",

	// 可能带有 S3 / 数据库凭据
	"config.yaml",
	".env",

	".DS_Store",
	"Thumbs.db",
}

// Matcher 判断目录中的某个路径在录入时是否应跳过
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

// NewMatcher 编译默认规则、root 下的 .lvignore (若存在) 和 extra 中的附加规则
func NewMatcher(root string, extra ...string) (*Matcher, error) {
	rules := append(append([]string{}, defaultRules...), extra...)

	path := filepath.Join(root, FileName)
	_, err := os.Stat(path)
	switch {
	case err == nil:
		ignorer, err := gitignore.CompileIgnoreFileAndLines(path, rules...)
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s: %w", path, err)
		}
		return &Matcher{ignorer: ignorer}, nil
	case errors.Is(err, fs.ErrNotExist):
		return &Matcher{ignorer: gitignore.CompileIgnoreLines(rules...)}, nil
	default:
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
}

// Matches 检查相对于录入根目录的路径 (使用 "/" 分隔) 是否被忽略
// nil Matcher 不忽略任何路径
func (m *Matcher) Matches(rel string) bool {
	if m == nil || m.ignorer == nil {
		return false
	}
	return m.ignorer.MatchesPath(filepath.ToSlash(rel))
}
