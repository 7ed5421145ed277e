package loose

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"

	"loosevault/pkg/core"
	"loosevault/pkg/storage"
)

var (
	ErrNotFound        = storage.ErrNotFound
	ErrAmbiguousHash   = storage.ErrAmbiguousHash
	ErrMalformedHeader = core.ErrMalformedHeader

	// ErrCorruptCompression 表示 zlib 流本身无法解码 (截断、校验和错误等)
	ErrCorruptCompression = errors.New("corrupt compression stream")

	// ErrSizeMismatch 表示流是完整的，但载荷长度与头部声明不符
	ErrSizeMismatch = errors.New("object size mismatch")

	ErrHashMismatch = errors.New("object hash mismatch")

	// ErrIO 包装底层文件系统错误，原始错误仍可通过 errors.Is 匹配
	ErrIO = errors.New("loose store i/o failure")

	// ErrNoSpace 是 ErrIO 的一种，磁盘写满
	ErrNoSpace = fmt.Errorf("%w: no space left on device", ErrIO)

	ErrHashKindMismatch = errors.New("hash kind mismatch")

	ErrNotAnObject = errors.New("not an object")
)

// NotAnObjectError 在遍历时遇到不是对象文件的条目时返回
type NotAnObjectError struct {
	Path string
}

func (e *NotAnObjectError) Error() string {
	return fmt.Sprintf("not an object: %s", e.Path)
}

func (e *NotAnObjectError) Is(target error) bool { return target == ErrNotAnObject }

// ioError 把 OS 错误包装为 ErrIO，同时保留原始错误链
func ioError(op string, err error) error {
	var pe *fs.PathError
	if errors.As(err, &pe) && errors.Is(pe.Err, syscall.ENOSPC) {
		return fmt.Errorf("%w: %s: %w", ErrNoSpace, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}
