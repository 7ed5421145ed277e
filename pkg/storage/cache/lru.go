package cache

import (
	"context"
	"fmt"
	"io"

	"loosevault/pkg/core"
	"loosevault/pkg/storage"
	"loosevault/pkg/types"

	lru "github.com/hashicorp/golang-lru/v2"
)

type header struct {
	kind core.ObjectKind
	size uint64
}

// HeaderCache 在进程内缓存对象头部 (kind, size)
// 对象写入后不再改变，所以缓存项永远不会过期，只会被淘汰
type HeaderCache struct {
	backend storage.Store
	headers *lru.Cache[types.ID, header]
}

func NewHeaderCache(backend storage.Store, size int) (*HeaderCache, error) {
	c, err := lru.New[types.ID, header](size)
	if err != nil {
		return nil, fmt.Errorf("create header cache: %w", err)
	}
	return &HeaderCache{backend: backend, headers: c}, nil
}

func (c *HeaderCache) HashKind() types.HashKind { return c.backend.HashKind() }

// Has 命中缓存时不访问文件系统
func (c *HeaderCache) Has(ctx context.Context, id types.ID) (bool, error) {
	if c.headers.Contains(id) {
		return true, nil
	}
	return c.backend.Has(ctx, id)
}

func (c *HeaderCache) Header(ctx context.Context, id types.ID) (core.ObjectKind, uint64, error) {
	if h, ok := c.headers.Get(id); ok {
		return h.kind, h.size, nil
	}
	kind, size, err := c.backend.Header(ctx, id)
	if err != nil {
		return 0, 0, err
	}
	c.headers.Add(id, header{kind: kind, size: size})
	return kind, size, nil
}

// Decode 总是读底层存储，顺便记住头部
func (c *HeaderCache) Decode(ctx context.Context, id types.ID) (*core.DecodedObject, error) {
	obj, err := c.backend.Decode(ctx, id)
	if err != nil {
		return nil, err
	}
	c.headers.Add(id, header{kind: obj.Kind, size: obj.Size})
	return obj, nil
}

func (c *HeaderCache) Write(ctx context.Context, kind core.ObjectKind, payload []byte) (types.ID, error) {
	id, err := c.backend.Write(ctx, kind, payload)
	if err != nil {
		return types.ID{}, err
	}
	c.headers.Add(id, header{kind: kind, size: uint64(len(payload))})
	return id, nil
}

func (c *HeaderCache) WriteStream(ctx context.Context, kind core.ObjectKind, size uint64, r io.Reader) (types.ID, error) {
	id, err := storage.WriteStream(ctx, c.backend, kind, size, r)
	if err != nil {
		return types.ID{}, err
	}
	c.headers.Add(id, header{kind: kind, size: size})
	return id, nil
}

func (c *HeaderCache) Expand(ctx context.Context, prefix types.HashPrefix) (types.ID, error) {
	return storage.Expand(ctx, c.backend, prefix)
}

// Len 返回当前缓存的头部数量
func (c *HeaderCache) Len() int { return c.headers.Len() }
