package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// DefaultSize is the entry cap of a [Memory] store created with size <= 0.
const DefaultSize = 1024

var _ Store = (*Memory)(nil)

type memEntry struct {
	key     string
	value   string
	expires time.Time
}

// Memory is an in-process LRU [Store]. It is safe for concurrent use.
type Memory struct {
	mu    sync.Mutex
	size  int
	order *list.List // front = most recently used
	items map[string]*list.Element
	now   func() time.Time
}

// NewMemory returns an LRU holding at most size entries.
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = DefaultSize
	}
	return &Memory{
		size:  size,
		order: list.New(),
		items: make(map[string]*list.Element, size),
		now:   time.Now,
	}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return "", false, nil
	}
	e := el.Value.(*memEntry)
	if m.now().After(e.expires) {
		m.order.Remove(el)
		delete(m.items, key)
		return "", false, nil
	}
	m.order.MoveToFront(el)
	return e.value, true, nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	expires := m.now().Add(ttl)
	if el, ok := m.items[key]; ok {
		e := el.Value.(*memEntry)
		e.value, e.expires = value, expires
		m.order.MoveToFront(el)
		return nil
	}

	m.items[key] = m.order.PushFront(&memEntry{key: key, value: value, expires: expires})
	for m.order.Len() > m.size {
		oldest := m.order.Back()
		m.order.Remove(oldest)
		delete(m.items, oldest.Value.(*memEntry).key)
	}
	return nil
}

// Len returns the number of stored entries, including expired ones not yet
// evicted.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}
