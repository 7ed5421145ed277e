package cache

import (
	"context"
	"fmt"
	"io"
	"time"

	"loosevault/pkg/core"
	"loosevault/pkg/storage"
	"loosevault/pkg/types"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedStore 是一个装饰器，它为底层的 storage.Store 添加 Redis 存在性缓存
// 多个进程共享同一个对象库时，Has 可以在 Redis 中命中而不必 stat 文件
type CachedStore struct {
	backend storage.Store
	client  *redis.Client
	ns      string
	ttl     time.Duration
	log     *zap.Logger
}

type Config struct {
	RedisURL string        // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 过期时间

	// Namespace 标识底层对象库 (通常是对象目录的绝对路径)
	// 共用一个 Redis 的不同对象库必须使用不同的 Namespace
	Namespace string

	Logger *zap.Logger
}

func NewCachedStore(backend storage.Store, cfg Config) (*CachedStore, error) {
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("redis cache requires a namespace")
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &CachedStore{
		backend: backend,
		client:  client,
		ns:      types.Sum(types.SHA256, []byte(cfg.Namespace)).String()[:16],
		ttl:     cfg.TTL,
		log:     log.Named("redis-cache"),
	}, nil
}

// cacheKey 生成 Redis Key: lv:obj:<namespace 摘要>:<算法>:<hex>
// Key 只说明 "这个对象库里有这个对象"，不能跨库复用
func (s *CachedStore) cacheKey(id types.ID) string {
	return "lv:obj:" + s.ns + ":" + id.Kind().String() + ":" + id.String()
}

func (s *CachedStore) HashKind() types.HashKind { return s.backend.HashKind() }

// Has 优先查 Redis
func (s *CachedStore) Has(ctx context.Context, id types.ID) (bool, error) {
	key := s.cacheKey(id)

	// 1. 查 Redis
	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		// 缓存故障降级为直接查底层存储
		s.log.Warn("redis exists failed, falling back to backend", zap.String("id", id.String()), zap.Error(err))
	} else if val > 0 {
		return true, nil
	}

	// 2. 缓存未命中，查底层存储
	found, err := s.backend.Has(ctx, id)
	if err != nil {
		return false, err
	}

	// 3. 缓存回填，不阻塞主流程
	if found {
		go func() {
			fillCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := s.client.Set(fillCtx, key, "1", s.ttl).Err(); err != nil {
				s.log.Debug("redis fill failed", zap.String("id", id.String()), zap.Error(err))
			}
		}()
	}

	return found, nil
}

// Write 总是交给底层存储 (它自己会 stat 去重)，成功后写入缓存
// Redis 只能证明对象曾经写入过，不能代替磁盘上的文件
func (s *CachedStore) Write(ctx context.Context, kind core.ObjectKind, payload []byte) (types.ID, error) {
	id, err := s.backend.Write(ctx, kind, payload)
	if err != nil {
		return types.ID{}, err
	}
	s.remember(ctx, id)
	return id, nil
}

// WriteStream 透传，成功后写入缓存
func (s *CachedStore) WriteStream(ctx context.Context, kind core.ObjectKind, size uint64, r io.Reader) (types.ID, error) {
	id, err := storage.WriteStream(ctx, s.backend, kind, size, r)
	if err != nil {
		return types.ID{}, err
	}
	s.remember(ctx, id)
	return id, nil
}

// remember 只有底层写入成功了才写 Redis，失败可以忽略
func (s *CachedStore) remember(ctx context.Context, id types.ID) {
	if err := s.client.Set(ctx, s.cacheKey(id), "1", s.ttl).Err(); err != nil {
		s.log.Debug("redis set failed", zap.String("id", id.String()), zap.Error(err))
	}
}

// Header / Decode 透传 - 我们不缓存对象数据
// Redis 内存宝贵，只存存在性性价比最高
func (s *CachedStore) Header(ctx context.Context, id types.ID) (core.ObjectKind, uint64, error) {
	return s.backend.Header(ctx, id)
}

func (s *CachedStore) Decode(ctx context.Context, id types.ID) (*core.DecodedObject, error) {
	return s.backend.Decode(ctx, id)
}

// Expand 透传
func (s *CachedStore) Expand(ctx context.Context, prefix types.HashPrefix) (types.ID, error) {
	return storage.Expand(ctx, s.backend, prefix)
}

func (s *CachedStore) Close() error {
	return s.client.Close()
}
