package types

import (
	"crypto/sha1"
	"fmt"
	"hash"

	sha256 "github.com/minio/sha256-simd"
)

// HashKind 标识对象 ID 使用的摘要算法
// 它同时决定了 ID 的字节宽度和 Hex 长度
type HashKind uint8

const (
	SHA1   HashKind = iota + 1 // 20 字节, git 默认
	SHA256                     // 32 字节
)

// MaxHashSize 是所有支持算法中最大的摘要长度
const MaxHashSize = sha256.Size

// Size 返回摘要的字节数
func (k HashKind) Size() int {
	switch k {
	case SHA1:
		return sha1.Size
	case SHA256:
		return sha256.Size
	default:
		return 0
	}
}

// HexLen 返回摘要的 Hex 字符数
func (k HashKind) HexLen() int { return 2 * k.Size() }

func (k HashKind) Valid() bool { return k.Size() != 0 }

func (k HashKind) String() string {
	switch k {
	case SHA1:
		return "sha1"
	case SHA256:
		return "sha256"
	default:
		return fmt.Sprintf("HashKind(%d)", uint8(k))
	}
}

// New 返回一个新的 hash.Hash
// SHA-256 使用 sha256-simd (自动选择 SHA-NI / AVX512 实现)
func (k HashKind) New() hash.Hash {
	switch k {
	case SHA1:
		return sha1.New()
	case SHA256:
		return sha256.New()
	default:
		panic(fmt.Sprintf("types: unsupported hash kind %d", uint8(k)))
	}
}

// ParseHashKind 解析配置中的算法名
func ParseHashKind(s string) (HashKind, error) {
	switch s {
	case "sha1", "SHA1", "sha-1":
		return SHA1, nil
	case "sha256", "SHA256", "sha-256":
		return SHA256, nil
	default:
		return 0, fmt.Errorf("unknown hash kind %q", s)
	}
}

// kindForSize 根据摘要字节数反推算法
func kindForSize(n int) (HashKind, bool) {
	switch n {
	case sha1.Size:
		return SHA1, true
	case sha256.Size:
		return SHA256, true
	default:
		return 0, false
	}
}
