package storage

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. State is not shared across processes,
// so it is only suitable for development deployments and tests; the Store
// semantics (atomic multi-step operations, TTL expiry) match Redis.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memEntry
}

type memEntry struct {
	expiresAt time.Time // zero means no expiry
	zset      map[string]float64
	list      []string
	set       map[string]struct{}
	num       int64
	str       string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memEntry)}
}

// get returns the live entry for key, discarding it first if expired.
// Callers must hold mu.
func (m *MemoryStore) get(key string) *memEntry {
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(m.entries, key)
		return nil
	}
	return e
}

func (m *MemoryStore) ensure(key string) *memEntry {
	if e := m.get(key); e != nil {
		return e
	}
	e := &memEntry{}
	m.entries[key] = e
	return e
}

func (m *MemoryStore) WindowTake(_ context.Context, key string, now float64, window time.Duration, member string, grace time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.ensure(key)
	if e.zset == nil {
		e.zset = make(map[string]float64)
	}
	cutoff := now - window.Seconds()
	for mem, score := range e.zset {
		if score <= cutoff {
			delete(e.zset, mem)
		}
	}
	count := int64(len(e.zset))
	e.zset[member] = now
	e.expiresAt = time.Now().Add(window + grace)
	return count, nil
}

func (m *MemoryStore) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := &memEntry{str: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(key) != nil, nil
}

func (m *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.get(key)
	if e == nil {
		return -2 * time.Second, nil
	}
	if e.expiresAt.IsZero() {
		return -1 * time.Second, nil
	}
	return time.Until(e.expiresAt), nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, key := range keys {
		if m.get(key) != nil {
			delete(m.entries, key)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) SetAdd(_ context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.ensure(key)
	if e.set == nil {
		e.set = make(map[string]struct{})
	}
	e.set[member] = struct{}{}
	return nil
}

func (m *MemoryStore) SetRemove(_ context.Context, key, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.get(key)
	if e == nil || e.set == nil {
		return false, nil
	}
	if _, ok := e.set[member]; !ok {
		return false, nil
	}
	delete(e.set, member)
	return true, nil
}

func (m *MemoryStore) SetIsMember(_ context.Context, key, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.get(key)
	if e == nil || e.set == nil {
		return false, nil
	}
	_, ok := e.set[member]
	return ok, nil
}

func (m *MemoryStore) SetMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.get(key)
	if e == nil || e.set == nil {
		return nil, nil
	}
	members := make([]string, 0, len(e.set))
	for member := range e.set {
		members = append(members, member)
	}
	sort.Strings(members)
	return members, nil
}

func (m *MemoryStore) ListPushTrim(_ context.Context, key, value string, cap int64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.ensure(key)
	e.list = append([]string{value}, e.list...)
	if int64(len(e.list)) > cap {
		e.list = e.list[:cap]
	}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	return nil
}

func (m *MemoryStore) ListRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.get(key)
	if e == nil {
		return nil, nil
	}
	n := int64(len(e.list))
	if start < 0 {
		start = n + start
	}
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, e.list[start:stop+1])
	return out, nil
}

func (m *MemoryStore) ListLen(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.get(key)
	if e == nil {
		return 0, nil
	}
	return int64(len(e.list)), nil
}

func (m *MemoryStore) ListRemove(_ context.Context, key, value string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.get(key)
	if e == nil {
		return 0, nil
	}
	for i, v := range e.list {
		if v == value {
			e.list = append(e.list[:i], e.list[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (m *MemoryStore) ListReplace(_ context.Context, key string, values []string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(values) == 0 {
		delete(m.entries, key)
		return nil
	}
	e := &memEntry{list: append([]string(nil), values...)}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *MemoryStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.get(key)
	if e == nil {
		e = &memEntry{}
		m.entries[key] = e
	}
	e.num++
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	return e.num, nil
}

func (m *MemoryStore) GetInt(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.get(key)
	if e == nil {
		return 0, nil
	}
	return e.num, nil
}

func (m *MemoryStore) ScanKeys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []string
	for key := range m.entries {
		if m.get(key) == nil {
			continue
		}
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}
