// pkg/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"loosevault/pkg/logging"
	"loosevault/pkg/meta"
	"loosevault/pkg/storage"
	"loosevault/pkg/storage/cache"
	"loosevault/pkg/storage/loose"
	"loosevault/pkg/storage/s3"
	"loosevault/pkg/types"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// App 是整个应用程序的依赖容器 (Dependency Container)
// 它持有所有“单例”服务
type App struct {
	// Loose 是底层对象库，遍历、短哈希和导入直接用它
	Loose loose.Store

	// Store 是叠加了缓存层的读写入口
	Store storage.Store

	// Catalog 为 nil 表示 catalog.driver = none
	Catalog *meta.Repository

	Log      *zap.Logger
	RepoPath string

	mirror  *s3.Mirror
	closers []func() error
}

// NewApp 是工厂函数，负责组装这一台机器
// 它遵循 Viper 的配置，但不知道具体的 CLI 命令
func NewApp(ctx context.Context) (*App, error) {
	log, err := logging.New(viper.GetString("log.level"))
	if err != nil {
		return nil, err
	}

	a := &App{Log: log}

	// 1. 存储层
	a.Loose, a.Store, err = a.initStore()
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}
	a.RepoPath = filepath.Dir(a.Loose.Path())

	// 2. 对象目录
	a.Catalog, err = a.initCatalog(ctx)
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}

	return a, nil
}

// initStore 组装: loose 库 -> LRU 头部缓存 -> Redis 存在性缓存
func (a *App) initStore() (loose.Store, storage.Store, error) {
	storePath := viper.GetString("storage.path")
	if storePath == "" {
		return loose.Store{}, nil, fmt.Errorf("storage path not set")
	}

	kind, err := types.ParseHashKind(viper.GetString("storage.hash"))
	if err != nil {
		return loose.Store{}, nil, fmt.Errorf("invalid storage.hash: %w", err)
	}

	ls := loose.At(storePath, kind,
		loose.WithCompressionLevel(viper.GetInt("storage.compression_level")),
		loose.WithSync(viper.GetBool("storage.sync")),
		loose.WithVerify(viper.GetBool("storage.verify")),
	)

	var store storage.Store = ls

	if n := viper.GetInt("cache.headers"); n > 0 {
		hc, err := cache.NewHeaderCache(store, n)
		if err != nil {
			return loose.Store{}, nil, err
		}
		store = hc
	}

	if url := viper.GetString("cache.redis_url"); url != "" {
		ns, err := filepath.Abs(ls.Path())
		if err != nil {
			return loose.Store{}, nil, fmt.Errorf("resolve storage path: %w", err)
		}
		cs, err := cache.NewCachedStore(store, cache.Config{
			RedisURL:  url,
			TTL:       viper.GetDuration("cache.ttl"),
			Namespace: ns,
			Logger:    a.Log,
		})
		if err != nil {
			// Redis 只是加速层，连不上时降级为无缓存
			a.Log.Warn("redis cache disabled", zap.Error(err))
		} else {
			store = cs
			a.closers = append(a.closers, cs.Close)
		}
	}

	return ls, store, nil
}

func (a *App) initCatalog(ctx context.Context) (*meta.Repository, error) {
	var (
		db  *meta.DB
		err error
	)

	switch driver := viper.GetString("catalog.driver"); driver {
	case "", "none":
		return nil, nil
	case "sqlite":
		db, err = meta.OpenSQLite(viper.GetString("catalog.path"))
	case "postgres":
		db, err = meta.NewDB(ctx, meta.Config{
			Host:     viper.GetString("database.host"),
			Port:     viper.GetInt("database.port"),
			User:     viper.GetString("database.user"),
			Password: viper.GetString("database.password"),
			DBName:   viper.GetString("database.dbname"),
			SSLMode:  viper.GetString("database.sslmode"),
		})
	default:
		return nil, fmt.Errorf("unsupported catalog driver: %s", driver)
	}
	if err != nil {
		return nil, err
	}

	a.closers = append(a.closers, db.Close)
	return meta.NewRepository(db), nil
}

// Mirror 在第一次使用时连接 S3
func (a *App) Mirror(ctx context.Context) (*s3.Mirror, error) {
	if a.mirror != nil {
		return a.mirror, nil
	}

	bucket := viper.GetString("mirror.s3.bucket")
	if bucket == "" {
		return nil, fmt.Errorf("s3 mirror requires mirror.s3.bucket: bucket is required")
	}

	m, err := s3.NewMirror(ctx, a.Loose, s3.Config{
		Endpoint:        viper.GetString("mirror.s3.endpoint"),
		Region:          viper.GetString("mirror.s3.region"),
		Bucket:          bucket,
		Prefix:          viper.GetString("mirror.s3.prefix"),
		AccessKeyID:     viper.GetString("mirror.s3.access_key_id"),
		SecretAccessKey: viper.GetString("mirror.s3.secret_access_key"),
		Workers:         viper.GetInt("mirror.workers"),
	}, a.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to init mirror: %w", err)
	}
	a.mirror = m
	return m, nil
}

// Close 释放所有外部连接
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	if a.Log != nil {
		_ = a.Log.Sync()
	}
	return errors.Join(errs...)
}
