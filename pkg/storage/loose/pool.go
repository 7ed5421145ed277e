package loose

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
)

// zrPool 复用 zlib.Reader，读取大量小对象时 (fsck / 遍历) 可以省掉大部分分配
var zrPool sync.Pool

// getZlibReader 从池中取一个 reader 并指向 src
// zlib 流头部无效时返回错误
func getZlibReader(src io.Reader) (io.ReadCloser, error) {
	if v := zrPool.Get(); v != nil {
		zr := v.(io.ReadCloser)
		if err := zr.(zlib.Resetter).Reset(src, nil); err != nil {
			// Reset 失败说明流头部损坏，reader 状态不可信，直接丢弃
			return nil, err
		}
		return zr, nil
	}
	return zlib.NewReader(src)
}

func putZlibReader(zr io.ReadCloser) {
	_ = zr.Close()
	zrPool.Put(zr)
}
