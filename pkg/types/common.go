// pkg/types/common.go
package types

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
)

var ErrInvalidID = errors.New("invalid object id")

// ID 代表对象的唯一标识符: header+payload 的摘要
// 这是一个“值对象”，可以直接比较 (==) 和作为 map key 使用。
// 字节宽度由 kind 决定, sum 中超出部分恒为 0。
type ID struct {
	kind HashKind
	sum  [MaxHashSize]byte
}

// NewID 用原始摘要字节构造 ID，长度必须与 kind 匹配
func NewID(kind HashKind, b []byte) (ID, error) {
	if !kind.Valid() {
		return ID{}, fmt.Errorf("%w: unsupported hash kind %s", ErrInvalidID, kind)
	}
	if len(b) != kind.Size() {
		return ID{}, fmt.Errorf("%w: %s digest must be %d bytes, got %d", ErrInvalidID, kind, kind.Size(), len(b))
	}
	var id ID
	id.kind = kind
	copy(id.sum[:], b)
	return id, nil
}

// IDFromBytes 根据字节长度推断算法 (20 -> sha1, 32 -> sha256)
func IDFromBytes(b []byte) (ID, error) {
	kind, ok := kindForSize(len(b))
	if !ok {
		return ID{}, fmt.Errorf("%w: no hash kind with %d byte digests", ErrInvalidID, len(b))
	}
	return NewID(kind, b)
}

// ParseID 解析完整的 Hex 字符串，长度必须恰好是 kind.HexLen()
func ParseID(kind HashKind, s string) (ID, error) {
	if !kind.Valid() {
		return ID{}, fmt.Errorf("%w: unsupported hash kind %s", ErrInvalidID, kind)
	}
	if len(s) != kind.HexLen() {
		return ID{}, fmt.Errorf("%w: %s id must be %d hex chars, got %d", ErrInvalidID, kind, kind.HexLen(), len(s))
	}
	var id ID
	id.kind = kind
	if _, err := hex.Decode(id.sum[:kind.Size()], []byte(s)); err != nil {
		return ID{}, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	return id, nil
}

// ParseAnyID 根据 Hex 长度推断算法 (40 -> sha1, 64 -> sha256)
func ParseAnyID(s string) (ID, error) {
	kind, ok := kindForSize(len(s) / 2)
	if !ok || len(s)%2 != 0 {
		return ID{}, fmt.Errorf("%w: %q has no matching hash kind", ErrInvalidID, s)
	}
	return ParseID(kind, s)
}

// Sum 计算若干字节片段拼接后的摘要
func Sum(kind HashKind, parts ...[]byte) ID {
	h := kind.New()
	for _, p := range parts {
		h.Write(p)
	}
	return SumOf(kind, h)
}

// SumOf 从一个已经写完数据的 hash.Hash 中取出 ID
func SumOf(kind HashKind, h hash.Hash) ID {
	var id ID
	id.kind = kind
	h.Sum(id.sum[:0])
	return id
}

func (id ID) Kind() HashKind { return id.kind }

// Bytes 返回摘要字节的副本
func (id ID) Bytes() []byte {
	return bytes.Clone(id.sum[:id.kind.Size()])
}

func (id ID) String() string {
	return hex.EncodeToString(id.sum[:id.kind.Size()])
}

// Short 返回前 8 个 Hex 字符，用于日志和表格输出
func (id ID) Short() string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

func (id ID) IsZero() bool { return id.kind == 0 }

// Compare 按字节序比较
func (id ID) Compare(other ID) int {
	return bytes.Compare(id.sum[:id.kind.Size()], other.sum[:other.kind.Size()])
}

func (id ID) MarshalText() ([]byte, error) {
	if id.IsZero() {
		return []byte{}, nil
	}
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*id = ID{}
		return nil
	}
	parsed, err := ParseAnyID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// MinPrefixLen 是短哈希的最小长度
const MinPrefixLen = 4

// HashPrefix 是用户输入的短哈希 (例如 "a8fd12")
type HashPrefix string

func (p HashPrefix) String() string { return string(p) }

// Validate 检查长度和字符集 (只接受小写 Hex)
func (p HashPrefix) Validate() error {
	if len(p) < MinPrefixLen {
		return fmt.Errorf("hash prefix %q too short (min %d chars)", string(p), MinPrefixLen)
	}
	if !IsLowerHex(string(p)) {
		return fmt.Errorf("hash prefix %q is not lower-case hex", string(p))
	}
	return nil
}

// IsLowerHex 判断字符串是否只由 [0-9a-f] 组成
func IsLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
