package core

import (
	"errors"
	"fmt"

	"loosevault/pkg/types"

	"github.com/fxamacker/cbor/v2"
)

// Link 代表 Tree / Commit 中指向另一个对象的边
// 在 CBOR 层面序列化为 Tag 42(0x00 + 摘要字节)，摘要长度决定了 HashKind
type Link struct {
	ID types.ID
}

const linkTagNumber = 42

func NewLink(id types.ID) Link {
	return Link{ID: id}
}

func (l Link) String() string { return l.ID.String() }

// MarshalCBOR 实现自定义序列化逻辑
func (l Link) MarshalCBOR() ([]byte, error) {
	if l.ID.IsZero() {
		return nil, errors.New("cannot encode empty link")
	}
	content := append([]byte{0x00}, l.ID.Bytes()...)
	return em.Marshal(cbor.Tag{
		Number:  linkTagNumber,
		Content: content,
	})
}

// UnmarshalCBOR 实现自定义反序列化逻辑
func (l *Link) UnmarshalCBOR(data []byte) error {
	var tag cbor.Tag
	if err := dm.Unmarshal(data, &tag); err != nil {
		return err
	}

	if tag.Number != linkTagNumber {
		return fmt.Errorf("expected tag 42 for Link, got %d", tag.Number)
	}

	raw, ok := tag.Content.([]byte)
	if !ok {
		return fmt.Errorf("link content must be byte string")
	}
	if len(raw) < 1 {
		return fmt.Errorf("invalid link: empty content")
	}
	if raw[0] != 0x00 {
		return fmt.Errorf("invalid link: missing 0x00 multibase prefix")
	}

	id, err := types.IDFromBytes(raw[1:])
	if err != nil {
		return fmt.Errorf("invalid link: %w", err)
	}
	l.ID = id
	return nil
}
