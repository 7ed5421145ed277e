package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"loosevault/pkg/core"
	"loosevault/pkg/types"
)

var (
	ErrNotFound = errors.New("object not found")

	// ErrUnsupported 表示当前存储层不具备某项可选能力
	ErrUnsupported = errors.New("operation not supported by this store")

	// ErrAmbiguousHash 表示短哈希匹配到了多个对象
	ErrAmbiguousHash = errors.New("ambiguous hash prefix")
)

// Reader 是对象库的读取面
// 实现可以是本地 loose 目录，也可以是在其上叠加的缓存层
type Reader interface {
	// HashKind 返回该对象库使用的摘要算法
	HashKind() types.HashKind

	// Has 检查对象是否存在 (用于去重逻辑)
	Has(ctx context.Context, id types.ID) (bool, error)

	// Header 只读取对象头部，不解压完整载荷
	Header(ctx context.Context, id types.ID) (core.ObjectKind, uint64, error)

	// Decode 读取完整对象，载荷长度必须与头部声明一致
	Decode(ctx context.Context, id types.ID) (*core.DecodedObject, error)
}

// Writer 是对象库的写入面
type Writer interface {
	// Write 持久化一个对象并返回它的 ID
	// 对象已存在时是无操作的成功
	Write(ctx context.Context, kind core.ObjectKind, payload []byte) (types.ID, error)
}

type Store interface {
	Reader
	Writer
}

// StreamWriter 是可选能力: 大文件边读边写，不需要整体放进内存
type StreamWriter interface {
	WriteStream(ctx context.Context, kind core.ObjectKind, size uint64, r io.Reader) (types.ID, error)
}

// Expander 是可选能力: 把短哈希还原为完整 ID
type Expander interface {
	Expand(ctx context.Context, prefix types.HashPrefix) (types.ID, error)
}

// Put 写入一个 core.Object
func Put(ctx context.Context, w Writer, obj core.Object) (types.ID, error) {
	return w.Write(ctx, obj.Kind(), obj.Bytes())
}

// Expand 在 s 支持时还原短哈希
func Expand(ctx context.Context, s Reader, prefix types.HashPrefix) (types.ID, error) {
	e, ok := s.(Expander)
	if !ok {
		return types.ID{}, fmt.Errorf("expand %s: %w", prefix, ErrUnsupported)
	}
	return e.Expand(ctx, prefix)
}

// WriteStream 在 s 支持时流式写入，否则读入内存后普通写入
func WriteStream(ctx context.Context, s Writer, kind core.ObjectKind, size uint64, r io.Reader) (types.ID, error) {
	if sw, ok := s.(StreamWriter); ok {
		return sw.WriteStream(ctx, kind, size, r)
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(size)))
	if err != nil {
		return types.ID{}, err
	}
	if uint64(len(data)) != size {
		return types.ID{}, fmt.Errorf("object stream ended after %d of %d bytes: %w", len(data), size, io.ErrUnexpectedEOF)
	}
	return s.Write(ctx, kind, data)
}
