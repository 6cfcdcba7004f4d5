// Package cache provides an LRU cache for delta-base materializations,
// keyed by their offset within a pack file. Resolving an ofs-delta or
// ref-delta chain can otherwise re-inflate and re-apply
// the same base object many times over when several entries delta
// against it.
package cache

import (
	"container/list"
	"sync"

	"github.com/srchound/gitkernel/plumbing"
)

const (
	Byte = 1 << (iota * 10)
	KiByte
	MiByte
	GiByte
)

// Object caches materialized (type, content) pairs by pack offset.
type Object interface {
	Get(offset uint64) (plumbing.ObjectType, []byte, bool)
	Put(offset uint64, typ plumbing.ObjectType, content []byte)
	Clear()
}

type entry struct {
	offset  uint64
	typ     plumbing.ObjectType
	content []byte
}

// LRU is a fixed-capacity, size-bounded LRU cache of delta bases.
type LRU struct {
	mu       sync.Mutex
	maxBytes int64
	curBytes int64
	ll       *list.List
	index    map[uint64]*list.Element
}

// NewLRU returns an LRU bounded by maxBytes of cached content (the Byte/
// KiByte/MiByte/GiByte constants size this conveniently).
func NewLRU(maxBytes int64) *LRU {
	return &LRU{
		maxBytes: maxBytes,
		ll:       list.New(),
		index:    make(map[uint64]*list.Element),
	}
}

func (c *LRU) Get(offset uint64) (plumbing.ObjectType, []byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[offset]
	if !ok {
		return plumbing.InvalidObject, nil, false
	}
	c.ll.MoveToFront(el)
	e := el.Value.(*entry)
	return e.typ, e.content, true
}

func (c *LRU) Put(offset uint64, typ plumbing.ObjectType, content []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[offset]; ok {
		c.curBytes -= int64(len(el.Value.(*entry).content))
		el.Value = &entry{offset: offset, typ: typ, content: content}
		c.curBytes += int64(len(content))
		c.ll.MoveToFront(el)
	} else {
		el := c.ll.PushFront(&entry{offset: offset, typ: typ, content: content})
		c.index[offset] = el
		c.curBytes += int64(len(content))
	}

	for c.curBytes > c.maxBytes && c.ll.Len() > 1 {
		back := c.ll.Back()
		if back == nil {
			break
		}
		e := back.Value.(*entry)
		c.curBytes -= int64(len(e.content))
		delete(c.index, e.offset)
		c.ll.Remove(back)
	}
}

func (c *LRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ll.Init()
	c.index = make(map[uint64]*list.Element)
	c.curBytes = 0
}
