//go:build linux

package loose

import (
	"errors"

	"golang.org/x/sys/unix"
)

// renameNoReplace 用 renameat2(RENAME_NOREPLACE) 原子发布，目标已存在时保留原文件
func renameNoReplace(tmp, final string) error {
	err := unix.Renameat2(unix.AT_FDCWD, tmp, unix.AT_FDCWD, final, unix.RENAME_NOREPLACE)
	switch {
	case err == nil, errors.Is(err, unix.EEXIST):
		return nil
	case errors.Is(err, unix.EINVAL), errors.Is(err, unix.ENOSYS), errors.Is(err, unix.EOPNOTSUPP):
		// 内核或文件系统不支持该 flag
		return statRename(tmp, final)
	}
	return ioError("rename", err)
}
