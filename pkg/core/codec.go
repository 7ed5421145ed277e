package core

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Tree / Commit 的载荷使用确定性的 CBOR 编码
// 相同的结构必须产生相同的字节，否则同一目录会得到不同的 ID
var encOptions = cbor.EncOptions{
	// Map Key 排序 (Canonical)
	Sort: cbor.SortCanonical,

	ShortestFloat: cbor.ShortestFloatNone,
	// 时间编码为 Unix 整数，不生成 Tag 0/1
	Time:    cbor.TimeUnix,
	TimeTag: cbor.EncTagNone,

	// 禁止不定长编码
	IndefLength: cbor.IndefLengthForbidden,

	BigIntConvert: cbor.BigIntConvertShortest,
}

var em, _ = encOptions.EncMode()

var decOptions = cbor.DecOptions{
	// 限制容器大小和嵌套深度，防止恶意载荷耗尽内存
	MaxArrayElements: 1 << 20,
	MaxMapPairs:      10000,
	MaxNestedLevels:  32,

	IndefLength: cbor.IndefLengthForbidden,
	DupMapKey:   cbor.DupMapKeyEnforcedAPF,
	BignumTag:   cbor.BignumTagForbidden,
	TimeTag:     cbor.DecTagIgnored,
}

var dm, _ = decOptions.DecMode()

// EncodeObject 将结构体编码为规范 CBOR
func EncodeObject(v any) ([]byte, error) {
	data, err := em.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal object: %w", err)
	}
	return data, nil
}

// DecodeObject 通用的解码函数 (供外部使用)
func DecodeObject(data []byte, v any) error {
	return dm.Unmarshal(data, v)
}
