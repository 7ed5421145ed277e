package loose

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"loosevault/pkg/types"
)

// Expand 把短哈希还原为完整 ID
// 只需要列出一个分片目录: 前两个字符决定了目录
func (s Store) Expand(ctx context.Context, prefix types.HashPrefix) (types.ID, error) {
	if err := ctx.Err(); err != nil {
		return types.ID{}, err
	}
	if err := prefix.Validate(); err != nil {
		return types.ID{}, err
	}

	p := prefix.String()
	hexLen := s.kind.HexLen()
	if len(p) > hexLen {
		return types.ID{}, fmt.Errorf("hash prefix %q is longer than a %s id", p, s.kind)
	}

	// 完整 ID: 直接 stat
	if len(p) == hexLen {
		id, err := types.ParseID(s.kind, p)
		if err != nil {
			return types.ID{}, err
		}
		_, ok, err := s.Locate(id)
		if err != nil {
			return types.ID{}, err
		}
		if !ok {
			return types.ID{}, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return id, nil
	}

	entries, err := os.ReadDir(filepath.Join(s.root, p[:2]))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.ID{}, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return types.ID{}, ioError("read dir", err)
	}

	var match string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || len(name) != hexLen-2 || !types.IsLowerHex(name) {
			continue
		}
		if !strings.HasPrefix(name, p[2:]) {
			continue
		}
		if match != "" {
			return types.ID{}, fmt.Errorf("%w: %s", ErrAmbiguousHash, p)
		}
		match = name
	}
	if match == "" {
		return types.ID{}, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return types.ParseID(s.kind, p[:2]+match)
}
