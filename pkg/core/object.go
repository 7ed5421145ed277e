package core

import (
	"fmt"

	"loosevault/pkg/types"
)

// ObjectKind 定义了对象头部中的类型标签
// 这是一个封闭集合，名称固定为小写 ASCII
type ObjectKind uint8

const (
	KindBlob   ObjectKind = iota + 1 // 原始文件内容
	KindTree                         // 目录树
	KindCommit                       // 版本快照
	KindTag                          // 带注释的标签
)

var kindNames = [...]string{
	KindBlob:   "blob",
	KindTree:   "tree",
	KindCommit: "commit",
	KindTag:    "tag",
}

func (k ObjectKind) String() string {
	if k.Valid() {
		return kindNames[k]
	}
	return fmt.Sprintf("ObjectKind(%d)", uint8(k))
}

func (k ObjectKind) Valid() bool { return k >= KindBlob && k <= KindTag }

// ParseKind 将头部中的类型名转换为 ObjectKind
func ParseKind(name string) (ObjectKind, error) {
	for k := KindBlob; k <= KindTag; k++ {
		if kindNames[k] == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown object kind %q", name)
}

// Object 是可以写入对象库的值 (Blob / Tree / Commit)
// ID 不在对象内部计算：它取决于对象库配置的 HashKind
type Object interface {
	// Kind 返回对象类型
	Kind() ObjectKind

	// Bytes 返回对象的载荷 (不含头部)
	Bytes() []byte
}

// DecodedObject 是一次读取的结果，由调用者持有
// 不变式: len(Data) == Size，读取时强制校验
type DecodedObject struct {
	Kind ObjectKind
	Size uint64
	Data []byte
}

// Canonical 返回 header+payload，即参与哈希计算的字节序列
func Canonical(kind ObjectKind, payload []byte) []byte {
	buf := AppendHeader(make([]byte, 0, 32+len(payload)), kind, uint64(len(payload)))
	return append(buf, payload...)
}

// ComputeID 计算对象在给定 HashKind 下的 ID，不做任何 I/O
func ComputeID(kind types.HashKind, obj Object) types.ID {
	payload := obj.Bytes()
	return types.Sum(kind, AppendHeader(nil, obj.Kind(), uint64(len(payload))), payload)
}
