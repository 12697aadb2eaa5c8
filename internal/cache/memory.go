package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type entry struct {
	key   string
	value []byte
	exp   time.Time
}

// LRU is an in-process cache bounded by entry count, with per-entry TTL.
type LRU struct {
	mu   sync.Mutex
	cap  int
	lst  *list.List
	dict map[string]*list.Element
	now  func() time.Time
}

func NewLRU(capacity int) *LRU {
	if capacity <= 0 {
		capacity = 1024
	}
	return &LRU{cap: capacity, lst: list.New(), dict: make(map[string]*list.Element), now: time.Now}
}

func (c *LRU) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.dict[key]
	if !ok {
		return nil, false, nil
	}
	it := e.Value.(*entry)
	if !c.now().Before(it.exp) {
		c.lst.Remove(e)
		delete(c.dict, key)
		return nil, false, nil
	}
	c.lst.MoveToFront(e)
	return it.value, true, nil
}

func (c *LRU) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	exp := c.now().Add(ttl)
	if e, ok := c.dict[key]; ok {
		e.Value = &entry{key: key, value: value, exp: exp}
		c.lst.MoveToFront(e)
		return nil
	}
	c.dict[key] = c.lst.PushFront(&entry{key: key, value: value, exp: exp})
	for c.lst.Len() > c.cap {
		back := c.lst.Back()
		delete(c.dict, back.Value.(*entry).key)
		c.lst.Remove(back)
	}
	return nil
}

// Len reports the number of entries, expired ones included.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lst.Len()
}
