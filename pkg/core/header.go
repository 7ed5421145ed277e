package core

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// MaxHeaderLen 是查找头部终止符 NUL 的窗口大小
// 头部总是很短，所以读到这个长度还没找到 NUL 就说明数据损坏
const MaxHeaderLen = 512

var (
	ErrMalformedHeader = errors.New("malformed object header")

	// ErrHeaderIncomplete 表示数据还不够，需要继续解压更多字节
	ErrHeaderIncomplete = errors.New("object header incomplete")
)

// AppendHeader 追加 "<kind> <size>\x00"
func AppendHeader(dst []byte, kind ObjectKind, size uint64) []byte {
	dst = append(dst, kind.String()...)
	dst = append(dst, ' ')
	dst = strconv.AppendUint(dst, size, 10)
	return append(dst, 0)
}

// DecodeHeader 从解压后的前缀中解析头部
// 返回值 n 是头部 (含 NUL) 的长度，buf[n:] 即载荷的开头
func DecodeHeader(buf []byte) (kind ObjectKind, size uint64, n int, err error) {
	window := buf
	if len(window) > MaxHeaderLen {
		window = window[:MaxHeaderLen]
	}

	nul := bytes.IndexByte(window, 0)
	if nul < 0 {
		if len(buf) < MaxHeaderLen {
			return 0, 0, 0, ErrHeaderIncomplete
		}
		return 0, 0, 0, fmt.Errorf("%w: no terminator within %d bytes", ErrMalformedHeader, MaxHeaderLen)
	}

	head := window[:nul]
	sp := bytes.IndexByte(head, ' ')
	if sp < 0 {
		return 0, 0, 0, fmt.Errorf("%w: missing space separator", ErrMalformedHeader)
	}

	kind, err = ParseKind(string(head[:sp]))
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: %v", ErrMalformedHeader, err)
	}

	digits := head[sp+1:]
	if len(digits) == 0 {
		return 0, 0, 0, fmt.Errorf("%w: empty size", ErrMalformedHeader)
	}
	// ParseUint 本身会拒绝 "-1"，这里再挡掉 "+1"
	if digits[0] < '0' || digits[0] > '9' {
		return 0, 0, 0, fmt.Errorf("%w: invalid size %q", ErrMalformedHeader, digits)
	}
	size, err = strconv.ParseUint(string(digits), 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: invalid size %q", ErrMalformedHeader, digits)
	}

	return kind, size, nul + 1, nil
}
