package ingester

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"loosevault/pkg/core"
	"loosevault/pkg/ignore"
	"loosevault/pkg/logging"
	"loosevault/pkg/storage"
	"loosevault/pkg/treebuilder"
	"loosevault/pkg/types"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultStreamThreshold 以上的文件边读边写，不整体读入内存
const DefaultStreamThreshold = 8 << 20

// Recorder 接收每个写入的 blob，通常是 *meta.Repository
type Recorder interface {
	RecordObject(ctx context.Context, id types.ID, kind core.ObjectKind, size uint64) error
}

type Config struct {
	// Workers 是并发写入的文件数，<= 0 时使用 GOMAXPROCS
	Workers int

	// StreamThreshold <= 0 时使用 DefaultStreamThreshold
	StreamThreshold int64

	// Recorder 可以为 nil
	Recorder Recorder

	Logger *zap.Logger
}

type Ingester struct {
	store     storage.Store
	workers   int
	threshold int64
	recorder  Recorder
	log       *zap.Logger
}

func NewIngester(store storage.Store, cfg Config) *Ingester {
	ing := &Ingester{
		store:     store,
		workers:   cfg.Workers,
		threshold: cfg.StreamThreshold,
		recorder:  cfg.Recorder,
		log:       logging.OrNop(cfg.Logger),
	}
	if ing.workers <= 0 {
		ing.workers = runtime.GOMAXPROCS(0)
	}
	if ing.threshold <= 0 {
		ing.threshold = DefaultStreamThreshold
	}
	return ing
}

// IngestFile 将一个普通文件写为 blob
func (ing *Ingester) IngestFile(ctx context.Context, path string) (treebuilder.Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return treebuilder.Entry{}, fmt.Errorf("failed to stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return treebuilder.Entry{}, fmt.Errorf("%s is not a regular file", path)
	}

	var id types.ID
	if info.Size() >= ing.threshold {
		id, err = ing.stream(ctx, path, uint64(info.Size()))
	} else {
		var data []byte
		data, err = os.ReadFile(path)
		if err == nil {
			id, err = ing.store.Write(ctx, core.KindBlob, data)
		}
	}
	if err != nil {
		return treebuilder.Entry{}, fmt.Errorf("failed to store %s: %w", path, err)
	}

	if ing.recorder != nil {
		if err := ing.recorder.RecordObject(ctx, id, core.KindBlob, uint64(info.Size())); err != nil {
			return treebuilder.Entry{}, fmt.Errorf("failed to record %s: %w", id, err)
		}
	}

	ing.log.Debug("ingested file",
		zap.String("path", path),
		zap.Stringer("id", id),
		zap.Int64("size", info.Size()))
	return treebuilder.Entry{ID: id, Size: info.Size()}, nil
}

func (ing *Ingester) stream(ctx context.Context, path string, size uint64) (types.ID, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.ID{}, err
	}
	defer f.Close()
	return storage.WriteStream(ctx, ing.store, core.KindBlob, size, f)
}

// IngestDir 并发录入 root 下所有未被忽略的普通文件
// 返回值的 key 是相对 root 的 "/" 分隔路径，可直接交给 treebuilder
// 符号链接等特殊文件会被跳过
func (ing *Ingester) IngestDir(ctx context.Context, root string, matcher *ignore.Matcher) (map[string]treebuilder.Entry, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if matcher.Matches(rel) {
			ing.log.Debug("ignored", zap.String("path", rel))
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			ing.log.Debug("skipping special file", zap.String("path", rel), zap.Stringer("mode", d.Type()))
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	var mu sync.Mutex
	files := make(map[string]treebuilder.Entry, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(ing.workers)

	for _, rel := range paths {
		g.Go(func() error {
			entry, err := ing.IngestFile(ctx, filepath.Join(root, filepath.FromSlash(rel)))
			if err != nil {
				return err
			}
			mu.Lock()
			files[rel] = entry
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ing.log.Info("ingested directory", zap.String("root", root), zap.Int("files", len(files)))
	return files, nil
}

// IngestTree 录入目录并构建树，返回根树的 ID
func (ing *Ingester) IngestTree(ctx context.Context, root string, matcher *ignore.Matcher) (types.ID, error) {
	files, err := ing.IngestDir(ctx, root, matcher)
	if err != nil {
		return types.ID{}, err
	}
	return treebuilder.NewBuilder(ing.store).Build(ctx, files)
}
