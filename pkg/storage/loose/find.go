package loose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"

	"loosevault/pkg/core"
	"loosevault/pkg/types"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

const (
	// headerStep 是读取头部时每次向解压器要的字节数
	headerStep = 64

	// maxPrealloc 限制按头部声明的大小预分配的内存，伪造的头部不能让我们直接申请巨大的 buffer
	maxPrealloc = 16 << 20
)

// readPhase 是单次读取的状态
type readPhase uint8

const (
	phaseUnopened readPhase = iota
	phaseOpened
	phaseHeaderPending
	phaseHeaderParsed
	phasePayloadStreaming
	phaseComplete
	phaseFailed
)

var phaseNames = [...]string{
	phaseUnopened:         "unopened",
	phaseOpened:           "opened",
	phaseHeaderPending:    "header-pending",
	phaseHeaderParsed:     "header-parsed",
	phasePayloadStreaming: "payload-streaming",
	phaseComplete:         "complete",
	phaseFailed:           "failed",
}

func (p readPhase) String() string { return phaseNames[p] }

// objectReader 负责一次对象读取，不可复用
type objectReader struct {
	id    types.ID
	path  string
	phase readPhase

	f  *os.File
	zr io.ReadCloser

	// buf 保存已解压的前缀 (头部 + 可能的一小段载荷)
	buf    []byte
	kind   core.ObjectKind
	size   uint64
	hdrLen int
}

func newObjectReader(id types.ID, path string) *objectReader {
	return &objectReader{id: id, path: path, phase: phaseUnopened}
}

// fail 记录失败并带上对象、路径和失败时所处的阶段
func (r *objectReader) fail(err error) error {
	at := r.phase
	r.phase = phaseFailed
	return fmt.Errorf("object %s at %s (%s): %w", r.id, r.path, at, err)
}

// openFile: unopened -> opened
func (r *objectReader) openFile() error {
	f, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return r.fail(ErrNotFound)
		}
		return r.fail(ioError("open", err))
	}
	r.f = f
	return r.start(f)
}

// start 在给定的压缩流上初始化解压器
func (r *objectReader) start(src io.Reader) error {
	r.phase = phaseOpened
	zr, err := getZlibReader(src)
	if err != nil {
		return r.fail(classifyStreamError(err))
	}
	r.zr = zr
	return nil
}

// readHeader: opened -> header-pending -> header-parsed
// 逐步解压，头部一旦完整就停下，不会解压整个载荷
func (r *objectReader) readHeader() error {
	r.phase = phaseHeaderPending
	r.buf = make([]byte, 0, core.MaxHeaderLen)

	for {
		kind, size, n, err := core.DecodeHeader(r.buf)
		if err == nil {
			r.kind, r.size, r.hdrLen = kind, size, n
			r.phase = phaseHeaderParsed
			return nil
		}
		if !errors.Is(err, core.ErrHeaderIncomplete) {
			return r.fail(err)
		}

		want := min(len(r.buf)+headerStep, cap(r.buf))
		m, rerr := r.zr.Read(r.buf[len(r.buf):want])
		r.buf = r.buf[:len(r.buf)+m]
		switch {
		case rerr == nil:
			continue
		case rerr == io.EOF:
			// 流已经结束，最后尝试一次解析
			kind, size, n, err := core.DecodeHeader(r.buf)
			if err != nil {
				return r.fail(fmt.Errorf("%w: stream ended before header terminator", ErrMalformedHeader))
			}
			r.kind, r.size, r.hdrLen = kind, size, n
			r.phase = phaseHeaderParsed
			return nil
		default:
			return r.fail(classifyStreamError(rerr))
		}
	}
}

// readPayload: header-parsed -> payload-streaming -> complete
// 读到流结束，这样 zlib 的 adler32 校验和才会被检查
func (r *objectReader) readPayload(verify bool) (*core.DecodedObject, error) {
	r.phase = phasePayloadStreaming

	prefix := r.buf[r.hdrLen:]
	if uint64(len(prefix)) > r.size {
		return nil, r.fail(fmt.Errorf("%w: header declares %d bytes, payload has more", ErrSizeMismatch, r.size))
	}

	out := bytes.NewBuffer(make([]byte, 0, min(r.size, maxPrealloc)))
	out.Write(prefix)

	// 多读 1 个字节，用来发现比声明更长的载荷
	limit := r.size - uint64(len(prefix))
	if limit < math.MaxInt64 {
		limit++
	}
	if _, err := out.ReadFrom(io.LimitReader(r.zr, int64(limit))); err != nil {
		return nil, r.fail(classifyStreamError(err))
	}

	if got := uint64(out.Len()); got != r.size {
		if got > r.size {
			return nil, r.fail(fmt.Errorf("%w: header declares %d bytes, payload has more", ErrSizeMismatch, r.size))
		}
		return nil, r.fail(fmt.Errorf("%w: header declares %d bytes, payload has %d", ErrSizeMismatch, r.size, got))
	}

	data := out.Bytes()
	if verify {
		if got := types.Sum(r.id.Kind(), r.buf[:r.hdrLen], data); got != r.id {
			return nil, r.fail(fmt.Errorf("%w: content hashes to %s", ErrHashMismatch, got))
		}
	}

	r.phase = phaseComplete
	return &core.DecodedObject{Kind: r.kind, Size: r.size, Data: data}, nil
}

func (r *objectReader) close() {
	if r.zr != nil {
		putZlibReader(r.zr)
		r.zr = nil
	}
	if r.f != nil {
		_ = r.f.Close()
		r.f = nil
	}
}

// classifyStreamError 区分 "压缩流损坏" 和 "底层 I/O 失败"
func classifyStreamError(err error) error {
	var corrupt flate.CorruptInputError
	var internal flate.InternalError
	switch {
	case errors.As(err, &corrupt),
		errors.As(err, &internal),
		errors.Is(err, zlib.ErrChecksum),
		errors.Is(err, zlib.ErrHeader),
		errors.Is(err, zlib.ErrDictionary),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return fmt.Errorf("%w: %w", ErrCorruptCompression, err)
	default:
		return ioError("read", err)
	}
}

// Locate 检查对象是否存在，只做 stat，不打开文件
func (s Store) Locate(id types.ID) (string, bool, error) {
	if err := s.checkKind(id); err != nil {
		return "", false, err
	}
	p := s.PathFor(id)
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, ioError("stat", err)
	}
	return p, true, nil
}

// Has 检查对象是否存在 (用于去重逻辑)
func (s Store) Has(ctx context.Context, id types.ID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, ok, err := s.Locate(id)
	return ok, err
}

// Header 只解压到头部结束为止，返回对象类型和声明的大小
func (s Store) Header(ctx context.Context, id types.ID) (core.ObjectKind, uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	if err := s.checkKind(id); err != nil {
		return 0, 0, err
	}

	r := newObjectReader(id, s.PathFor(id))
	defer r.close()

	if err := r.openFile(); err != nil {
		return 0, 0, err
	}
	if err := r.readHeader(); err != nil {
		return 0, 0, err
	}
	return r.kind, r.size, nil
}

// Decode 读取并校验完整对象
func (s Store) Decode(ctx context.Context, id types.ID) (*core.DecodedObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.checkKind(id); err != nil {
		return nil, err
	}

	r := newObjectReader(id, s.PathFor(id))
	defer r.close()

	if err := r.openFile(); err != nil {
		return nil, err
	}
	if err := r.readHeader(); err != nil {
		return nil, err
	}
	return r.readPayload(s.verify)
}

// decodeCompressed 在内存中的压缩数据上完整解码并校验摘要
func decodeCompressed(id types.ID, label string, compressed []byte) (*core.DecodedObject, error) {
	r := newObjectReader(id, label)
	defer r.close()

	if err := r.start(bytes.NewReader(compressed)); err != nil {
		return nil, err
	}
	if err := r.readHeader(); err != nil {
		return nil, err
	}
	return r.readPayload(true)
}
