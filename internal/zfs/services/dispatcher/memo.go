package dispatcher

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// successorMemo is an LRU-backed SuccessorCache with hit/miss counters.
// It is only touched from the request loop, so the counters are plain fields.
type successorMemo struct {
	lru    *lru.Cache[string, int]
	hits   uint64
	misses uint64
}

// disabledMemo always misses.
type disabledMemo struct{}

// NewSuccessorCache returns an LRU memo of the given size, or a disabled memo
// when size <= 0.
func NewSuccessorCache(size int) (SuccessorCache, error) {
	if size <= 0 {
		return disabledMemo{}, nil
	}
	cache, err := lru.New[string, int](size)
	if err != nil {
		return nil, err
	}
	return &successorMemo{lru: cache}, nil
}

func (m *successorMemo) Get(key string) (int, bool) {
	if pos, ok := m.lru.Get(key); ok {
		m.hits++
		return pos, true
	}
	m.misses++
	return 0, false
}

func (m *successorMemo) Put(key string, pos int) { m.lru.Add(key, pos) }

func (m *successorMemo) Len() int { return m.lru.Len() }

func (m *successorMemo) Stats() (uint64, uint64) { return m.hits, m.misses }

func (disabledMemo) Get(string) (int, bool) { return 0, false }

func (disabledMemo) Put(string, int) {}

func (disabledMemo) Len() int { return 0 }

func (disabledMemo) Stats() (uint64, uint64) { return 0, 0 }

var _ SuccessorCache = (*successorMemo)(nil)
var _ SuccessorCache = disabledMemo{}
