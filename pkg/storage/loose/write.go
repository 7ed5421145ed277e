package loose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"loosevault/pkg/core"
	"loosevault/pkg/types"

	"github.com/klauspost/compress/zlib"
)

// Write 计算对象 ID 并持久化
// 目标文件已存在时直接返回：相同的 ID 意味着相同的内容
func (s Store) Write(ctx context.Context, kind core.ObjectKind, payload []byte) (types.ID, error) {
	if err := ctx.Err(); err != nil {
		return types.ID{}, err
	}
	if err := s.checkWritable(kind); err != nil {
		return types.ID{}, err
	}

	hdr := core.AppendHeader(nil, kind, uint64(len(payload)))
	id := types.Sum(s.kind, hdr, payload)
	final := s.PathFor(id)

	// 1. 检查是否存在 (幂等性)
	if exists, err := fileExists(final); err != nil {
		return types.ID{}, err
	} else if exists {
		return id, nil
	}

	// 2. 压缩写入同目录下的临时文件
	tmp, err := s.createTemp(filepath.Dir(final), func(w io.Writer) error {
		return s.compress(w, hdr, payload)
	})
	if err != nil {
		return types.ID{}, err
	}
	defer os.Remove(tmp)

	// 3. 发布到最终位置 (先到者胜)
	if err := publish(tmp, final); err != nil {
		return types.ID{}, err
	}
	return id, nil
}

// Put 写入一个 core.Object
func (s Store) Put(ctx context.Context, obj core.Object) (types.ID, error) {
	return s.Write(ctx, obj.Kind(), obj.Bytes())
}

// WriteStream 从 r 中读取恰好 size 个字节作为载荷，边哈希边压缩
// ID 在读完之前未知，所以临时文件放在根目录，结束后再发布到分片目录 (同一文件系统)
func (s Store) WriteStream(ctx context.Context, kind core.ObjectKind, size uint64, r io.Reader) (types.ID, error) {
	if err := ctx.Err(); err != nil {
		return types.ID{}, err
	}
	if err := s.checkWritable(kind); err != nil {
		return types.ID{}, err
	}
	if size > 1<<62 {
		return types.ID{}, fmt.Errorf("object size %d too large", size)
	}

	h := s.kind.New()
	hdr := core.AppendHeader(nil, kind, size)

	tmp, err := s.createTemp(s.root, func(w io.Writer) error {
		zw, err := zlib.NewWriterLevel(w, s.level)
		if err != nil {
			return fmt.Errorf("compression level %d: %w", s.level, err)
		}
		mw := io.MultiWriter(h, zw)
		if _, err := mw.Write(hdr); err != nil {
			return err
		}
		n, err := io.CopyN(mw, r, int64(size))
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("object stream ended after %d of %d bytes: %w", n, size, io.ErrUnexpectedEOF)
			}
			return fmt.Errorf("copy object data: %w", err)
		}
		return zw.Close()
	})
	if err != nil {
		return types.ID{}, err
	}
	defer os.Remove(tmp)

	if err := ctx.Err(); err != nil {
		return types.ID{}, err
	}

	id := types.SumOf(s.kind, h)
	final := s.PathFor(id)
	if exists, err := fileExists(final); err != nil {
		return types.ID{}, err
	} else if exists {
		return id, nil
	}
	if err := os.MkdirAll(filepath.Dir(final), s.dirPerm); err != nil {
		return types.ID{}, ioError("mkdir", err)
	}
	if err := publish(tmp, final); err != nil {
		return types.ID{}, err
	}
	return id, nil
}

// Import 存入一个已经压缩好的 loose 对象 (例如从镜像拉回来的文件)
// 写入前完整解压并重新计算摘要，内容必须与 id 一致
func (s Store) Import(ctx context.Context, id types.ID, compressed []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.checkKind(id); err != nil {
		return err
	}

	final := s.PathFor(id)
	if exists, err := fileExists(final); err != nil || exists {
		return err
	}

	if _, err := decodeCompressed(id, "import", compressed); err != nil {
		return err
	}

	tmp, err := s.createTemp(filepath.Dir(final), func(w io.Writer) error {
		_, err := w.Write(compressed)
		return err
	})
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	return publish(tmp, final)
}

func (s Store) checkWritable(kind core.ObjectKind) error {
	if !kind.Valid() {
		return fmt.Errorf("cannot write object of kind %s", kind)
	}
	if !s.kind.Valid() {
		return fmt.Errorf("%w: store has no usable hash kind (%s)", ErrHashKindMismatch, s.kind)
	}
	return nil
}

// compress 把 header+payload 写成一个 zlib 流
func (s Store) compress(w io.Writer, hdr, payload []byte) error {
	zw, err := zlib.NewWriterLevel(w, s.level)
	if err != nil {
		return fmt.Errorf("compression level %d: %w", s.level, err)
	}
	if _, err := zw.Write(hdr); err != nil {
		return err
	}
	if _, err := zw.Write(payload); err != nil {
		return err
	}
	return zw.Close()
}

// createTemp 在 dir 中创建临时文件并用 fill 写入内容
// 成功时文件已按配置 fsync、设置权限并关闭，调用方负责删除
func (s Store) createTemp(dir string, fill func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(dir, s.dirPerm); err != nil {
		return "", ioError("mkdir", err)
	}
	f, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return "", ioError("create temp file", err)
	}
	name := f.Name()

	err = fill(fileWriter{f})
	if err == nil && s.sync {
		if serr := f.Sync(); serr != nil {
			err = ioError("sync", serr)
		}
	}
	if err == nil {
		if cerr := f.Chmod(s.filePerm); cerr != nil {
			err = ioError("chmod", cerr)
		}
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = ioError("close", cerr)
	}
	if err != nil {
		_ = os.Remove(name)
		return "", err
	}
	return name, nil
}

// linkFile 测试中可以替换为总是失败，强制走 rename 路径
var linkFile = os.Link

// publish 让临时文件在 final 出现，已存在时保留原文件 (first-writer-wins)
// 硬链接不会覆盖已存在的目标
func publish(tmp, final string) error {
	err := linkFile(tmp, final)
	if err == nil || errors.Is(err, fs.ErrExist) {
		return nil
	}

	// 不支持硬链接的文件系统
	return renameNoReplace(tmp, final)
}

// statRename 是没有原子 no-replace rename 时的退路
// stat 与 rename 之间并发写入者可能先发布，rename 会覆盖它，
// 两者是同一个 ID 的完整对象，读者看到的内容不变
func statRename(tmp, final string) error {
	if exists, serr := fileExists(final); serr != nil || exists {
		return serr
	}
	if err := os.Rename(tmp, final); err != nil {
		return ioError("rename", err)
	}
	return nil
}

func fileExists(p string) (bool, error) {
	_, err := os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, ioError("stat", err)
}

// fileWriter 把写入错误标记为 ErrIO，压缩器会原样返回它们
type fileWriter struct {
	f *os.File
}

func (w fileWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	if err != nil {
		err = ioError("write", err)
	}
	return n, err
}
