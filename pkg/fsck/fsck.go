// Package fsck 检查 loose 对象库中每个文件的完整性
package fsck

import (
	"cmp"
	"context"
	"errors"
	"io/fs"
	"runtime"
	"slices"
	"sync"
	"time"

	"loosevault/pkg/core"
	"loosevault/pkg/logging"
	"loosevault/pkg/meta"
	"loosevault/pkg/storage/loose"
	"loosevault/pkg/types"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Class 是问题的分类，保存到 catalog 的 fsck 历史中
type Class string

const (
	ClassNotAnObject        Class = "not-an-object"
	ClassCorruptCompression Class = "corrupt-compression"
	ClassMalformedHeader    Class = "malformed-header"
	ClassSizeMismatch       Class = "size-mismatch"
	ClassHashMismatch       Class = "hash-mismatch"
	ClassMissing            Class = "missing"
	ClassIO                 Class = "io"
)

// Classify 把 loose 库返回的错误映射为 Class
func Classify(err error) Class {
	switch {
	case errors.Is(err, loose.ErrNotAnObject):
		return ClassNotAnObject
	case errors.Is(err, loose.ErrCorruptCompression):
		return ClassCorruptCompression
	case errors.Is(err, loose.ErrMalformedHeader):
		return ClassMalformedHeader
	case errors.Is(err, loose.ErrSizeMismatch):
		return ClassSizeMismatch
	case errors.Is(err, loose.ErrHashMismatch):
		return ClassHashMismatch
	case errors.Is(err, loose.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return ClassMissing
	default:
		return ClassIO
	}
}

type Config struct {
	// Workers <= 0 时使用 GOMAXPROCS
	Workers int

	// OnObject 在每个通过检查的对象上调用，可并发调用
	// 返回错误会终止检查
	OnObject func(ctx context.Context, id types.ID, kind core.ObjectKind, size uint64) error

	Logger *zap.Logger
}

type Report struct {
	Started  time.Time
	Finished time.Time

	// Checked 是解码过的对象数，不含 not-an-object 条目
	Checked int

	// Vanished 是遍历时还在、解码前已被删除的对象数，不算问题
	Vanished int

	Kinds    map[core.ObjectKind]int
	Problems []meta.Problem
}

func (r *Report) OK() bool { return len(r.Problems) == 0 }

// Check 遍历整个库，开启哈希校验解码每个对象
// 对象层面的问题记录在 Report 中；只有 ctx 取消或 OnObject 失败才返回 error
func Check(ctx context.Context, store loose.Store, cfg Config) (*Report, error) {
	log := logging.OrNop(cfg.Logger)
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	verifying := store.Verifying()

	report := &Report{Started: time.Now(), Kinds: make(map[core.ObjectKind]int)}
	var mu sync.Mutex

	addProblem := func(p meta.Problem) {
		log.Warn("fsck problem",
			zap.String("class", p.Class),
			zap.String("path", p.Path),
			zap.String("error", p.Error))
		mu.Lock()
		report.Problems = append(report.Problems, p)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for id, err := range store.Iter() {
		if gctx.Err() != nil {
			break
		}
		if err != nil {
			if Classify(err) == ClassMissing {
				log.Debug("directory vanished during fsck", zap.Error(err))
				continue
			}
			p := meta.Problem{Class: string(Classify(err)), Error: err.Error()}
			var nao *loose.NotAnObjectError
			if errors.As(err, &nao) {
				p.Path = nao.Path
			}
			addProblem(p)
			continue
		}

		g.Go(func() error {
			obj, err := verifying.Decode(gctx, id)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				if Classify(err) == ClassMissing {
					log.Debug("object vanished during fsck", zap.String("id", id.String()))
					mu.Lock()
					report.Vanished++
					mu.Unlock()
					return nil
				}
				addProblem(meta.Problem{
					ID:    id.String(),
					Path:  store.PathFor(id),
					Class: string(Classify(err)),
					Error: err.Error(),
				})
				return nil
			}

			mu.Lock()
			report.Checked++
			report.Kinds[obj.Kind]++
			mu.Unlock()

			if cfg.OnObject != nil {
				return cfg.OnObject(gctx, id, obj.Kind, obj.Size)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slices.SortFunc(report.Problems, func(a, b meta.Problem) int {
		return cmp.Or(cmp.Compare(a.Path, b.Path), cmp.Compare(a.Class, b.Class))
	})
	report.Finished = time.Now()

	log.Info("fsck finished",
		zap.Int("checked", report.Checked),
		zap.Int("problems", len(report.Problems)),
		zap.Int("vanished", report.Vanished),
		zap.Duration("took", report.Finished.Sub(report.Started)))
	return report, nil
}

// Save 把报告写入 catalog 的 fsck 历史
func (r *Report) Save(ctx context.Context, repo *meta.Repository) (*meta.FsckRun, error) {
	return repo.SaveFsckRun(ctx, r.Started, r.Finished, r.Checked, r.Problems)
}
