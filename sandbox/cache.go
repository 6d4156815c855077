package sandbox

import (
	"container/list"

	"github.com/dgryski/go-farm"

	"github.com/geeth24/codeflow/vm"
)

// programCache memoizes compiled programs keyed by a fingerprint of
// the source text, with LRU eviction. Programs are immutable after
// compilation, so cached entries are safe to share across runs.
type programCache struct {
	entries   map[uint64]*list.Element
	evictList *list.List
	maxSize   int
}

type cacheEntry struct {
	key  uint64
	prog *vm.Program
}

func newProgramCache(maxSize int) *programCache {
	if maxSize <= 0 {
		maxSize = 128
	}
	return &programCache{
		entries:   make(map[uint64]*list.Element),
		evictList: list.New(),
		maxSize:   maxSize,
	}
}

func fingerprint(code string) uint64 {
	return farm.Hash64([]byte(code))
}

func (c *programCache) Get(code string) (*vm.Program, bool) {
	elem, ok := c.entries[fingerprint(code)]
	if !ok {
		return nil, false
	}
	c.evictList.MoveToFront(elem)
	return elem.Value.(*cacheEntry).prog, true
}

func (c *programCache) Put(code string, prog *vm.Program) {
	key := fingerprint(code)
	if elem, ok := c.entries[key]; ok {
		c.evictList.MoveToFront(elem)
		elem.Value.(*cacheEntry).prog = prog
		return
	}
	elem := c.evictList.PushFront(&cacheEntry{key: key, prog: prog})
	c.entries[key] = elem
	if c.evictList.Len() > c.maxSize {
		c.evictOldest()
	}
}

func (c *programCache) evictOldest() {
	elem := c.evictList.Back()
	if elem == nil {
		return
	}
	c.evictList.Remove(elem)
	delete(c.entries, elem.Value.(*cacheEntry).key)
}

func (c *programCache) Len() int {
	return len(c.entries)
}
