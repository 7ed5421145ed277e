// Package loose 实现 "一个对象一个文件" 的内容寻址对象库。
//
// 每个对象以 "<kind> <size>\x00" + payload 的形式计算摘要，
// zlib 压缩后存放在 root/<hex[0:2]>/<hex[2:]>。
// Store 是值类型，不持有任何可变状态；所有并发协调都依赖文件系统
// (临时文件 + 原子发布)，进程内没有锁。
package loose

import (
	"encoding/hex"
	"fmt"
	"io/fs"
	"path/filepath"

	"loosevault/pkg/types"

	"github.com/klauspost/compress/zlib"
)

const (
	DefaultFilePerm fs.FileMode = 0o644
	DefaultDirPerm  fs.FileMode = 0o755

	// tmpPrefix 是写入中临时文件的前缀，遍历时跳过
	tmpPrefix = "tmp_obj_"
)

// Store 指向一个 loose 对象目录
type Store struct {
	root string
	kind types.HashKind

	filePerm fs.FileMode
	dirPerm  fs.FileMode
	level    int
	sync     bool
	verify   bool
}

type Option func(*Store)

func WithFilePerm(p fs.FileMode) Option {
	return func(s *Store) {
		s.filePerm = p
	}
}

func WithDirPerm(p fs.FileMode) Option {
	return func(s *Store) {
		s.dirPerm = p
	}
}

// WithCompressionLevel 设置 zlib 压缩级别 (zlib.HuffmanOnly..zlib.BestCompression)
func WithCompressionLevel(level int) Option {
	return func(s *Store) {
		s.level = level
	}
}

// WithSync 在发布前对临时文件执行 fsync
func WithSync(sync bool) Option {
	return func(s *Store) {
		s.sync = sync
	}
}

// WithVerify 让 Decode 重新计算摘要并与请求的 ID 比较
func WithVerify(verify bool) Option {
	return func(s *Store) {
		s.verify = verify
	}
}

// At 构造一个 Store，不做任何 I/O
// 根目录不需要存在，第一次写入时才会创建
func At(root string, kind types.HashKind, opts ...Option) Store {
	s := Store{
		root:     root,
		kind:     kind,
		filePerm: DefaultFilePerm,
		dirPerm:  DefaultDirPerm,
		level:    zlib.BestSpeed,
	}
	for _, o := range opts {
		o(&s)
	}
	return s
}

func (s Store) Path() string             { return s.root }
func (s Store) HashKind() types.HashKind { return s.kind }

// Verifying 返回一个开启读取校验的副本
func (s Store) Verifying() Store {
	s.verify = true
	return s
}

// PathFor 返回对象的物理路径
// 策略：使用前 2 个字符作为子目录 (Sharding)
// Example: "aabbcc..." -> root/aa/bbcc...
func (s Store) PathFor(id types.ID) string {
	var buf [2 * types.MaxHashSize]byte
	h := buf[:hex.Encode(buf[:], id.Bytes())]
	if len(h) < 2 {
		return filepath.Join(s.root, string(h))
	}
	return filepath.Join(s.root, string(h[:2]), string(h[2:]))
}

// checkKind 拒绝与 Store 摘要宽度不一致的 ID
func (s Store) checkKind(id types.ID) error {
	if id.Kind() != s.kind {
		return fmt.Errorf("%w: store uses %s, id %s is %s", ErrHashKindMismatch, s.kind, id.Short(), id.Kind())
	}
	return nil
}
