package core

import (
	"fmt"
	"time"

	"loosevault/pkg/types"
)

type Commit struct {
	rawBytes []byte

	TreeCid Link   `cbor:"th"`
	Parents []Link `cbor:"p"`

	Author  string `cbor:"a"`
	Message string `cbor:"m"`

	Timestamp int64 `cbor:"ts"`
}

func NewCommit(treeID types.ID, parents []types.ID, author, msg string) (*Commit, error) {
	return NewCommitAt(treeID, parents, author, msg, time.Now())
}

// NewCommitAt 使用给定时间创建 Commit，相同输入得到相同的 ID
func NewCommitAt(treeID types.ID, parents []types.ID, author, msg string, at time.Time) (*Commit, error) {
	if treeID.IsZero() {
		return nil, fmt.Errorf("commit requires a tree")
	}
	parentLinks := make([]Link, len(parents))
	for i, p := range parents {
		if p.Kind() != treeID.Kind() {
			return nil, fmt.Errorf("parent %s uses %s, tree uses %s", p.Short(), p.Kind(), treeID.Kind())
		}
		parentLinks[i] = NewLink(p)
	}

	c := &Commit{
		TreeCid:   NewLink(treeID),
		Parents:   parentLinks,
		Author:    author,
		Message:   msg,
		Timestamp: at.Unix(),
	}

	b, err := EncodeObject(c)
	if err != nil {
		return nil, err
	}
	c.rawBytes = b
	return c, nil
}

// DecodeCommit 从载荷中还原 Commit
func DecodeCommit(data []byte) (*Commit, error) {
	var c Commit
	if err := DecodeObject(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode commit: %w", err)
	}
	c.rawBytes = data
	return &c, nil
}

func (c *Commit) Kind() ObjectKind { return KindCommit }
func (c *Commit) Bytes() []byte    { return c.rawBytes }
