package loose

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"path/filepath"
	"strings"

	"loosevault/pkg/types"
)

// Iter 遍历两级目录，按文件系统顺序产出对象 ID
//
// 不是对象的文件会产出 *NotAnObjectError，而不是被静默跳过，
// 这样调用方可以区分 "空库" 和 "目录里混进了别的东西"。
// 写入中的临时文件和非分片目录会被跳过。
// 遍历不加锁：并发写入的对象可能看到也可能看不到。
func (s Store) Iter() iter.Seq2[types.ID, error] {
	return func(yield func(types.ID, error) bool) {
		root := filepath.Clean(s.root)
		hexLen := s.kind.HexLen()

		_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				// 根目录还不存在: 空库
				if p == root && errors.Is(err, fs.ErrNotExist) {
					return filepath.SkipAll
				}
				if !yield(types.ID{}, ioError("walk", err)) {
					return filepath.SkipAll
				}
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if p == root {
				if !d.IsDir() {
					yield(types.ID{}, fmt.Errorf("%w: %s is not a directory", ErrIO, root))
					return filepath.SkipAll
				}
				return nil
			}

			parent := filepath.Dir(p)
			if d.IsDir() {
				// 只进入根目录下的两位 Hex 分片目录
				if parent == root && isFanout(d.Name()) {
					return nil
				}
				return filepath.SkipDir
			}

			name := d.Name()
			if strings.HasPrefix(name, tmpPrefix) {
				return nil
			}

			var id types.ID
			var ok bool
			if parent != root {
				id, ok = parseObjectName(s.kind, hexLen, filepath.Base(parent), name)
			}
			if ok {
				if !yield(id, nil) {
					return filepath.SkipAll
				}
				return nil
			}
			if !yield(types.ID{}, &NotAnObjectError{Path: p}) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

// Objects 与 Iter 相同，但过滤掉 NotAnObject 条目
func (s Store) Objects() iter.Seq2[types.ID, error] {
	return func(yield func(types.ID, error) bool) {
		for id, err := range s.Iter() {
			if errors.Is(err, ErrNotAnObject) {
				continue
			}
			if !yield(id, err) {
				return
			}
		}
	}
}

func isFanout(name string) bool {
	return len(name) == 2 && types.IsLowerHex(name)
}

// parseObjectName 把 (分片目录名, 文件名) 还原成 ID
func parseObjectName(kind types.HashKind, hexLen int, dir, name string) (types.ID, bool) {
	if len(dir)+len(name) != hexLen || !types.IsLowerHex(name) {
		return types.ID{}, false
	}
	id, err := types.ParseID(kind, dir+name)
	if err != nil {
		return types.ID{}, false
	}
	return id, true
}
