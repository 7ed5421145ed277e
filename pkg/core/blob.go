package core

// Blob 是不透明的文件内容，载荷就是原始字节
type Blob struct {
	data []byte
}

func NewBlob(data []byte) *Blob {
	return &Blob{data: data}
}

func (b *Blob) Kind() ObjectKind { return KindBlob }
func (b *Blob) Bytes() []byte    { return b.data }
func (b *Blob) Size() int64      { return int64(len(b.data)) }
