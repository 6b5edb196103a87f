// internal/store/memory.go
package store

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests. It keeps a version
// counter per key so Transact detects concurrent writes the same way the
// Redis implementation does.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	queues  map[string][][]byte
	now     func() time.Time
}

type memEntry struct {
	value     []byte
	version   uint64
	expiresAt time.Time // zero means no expiry
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memEntry),
		queues:  make(map[string][][]byte),
		now:     time.Now,
	}
}

func (s *MemoryStore) live(e memEntry) bool {
	return e.expiresAt.IsZero() || s.now().Before(e.expiresAt)
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok || !s.live(e) {
		return nil, false, nil
	}
	val := make([]byte, len(e.value))
	copy(val, e.value)
	return val, true, nil
}

func (s *MemoryStore) SetEx(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(key, value, ttl)
	return nil
}

func (s *MemoryStore) setLocked(key string, value []byte, ttl time.Duration) {
	e := s.entries[key]
	var exp time.Time
	if ttl > 0 {
		exp = s.now().Add(ttl)
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	s.entries[key] = memEntry{value: buf, version: e.version + 1, expiresAt: exp}
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		s.deleteLocked(key)
	}
	return nil
}

// deleteLocked bumps the version so a transaction watching the key still
// observes the change.
func (s *MemoryStore) deleteLocked(key string) {
	e, ok := s.entries[key]
	if !ok {
		return
	}
	s.entries[key] = memEntry{version: e.version + 1, expiresAt: time.Unix(0, 1)}
}

func (s *MemoryStore) Scan(_ context.Context, prefix string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var entries []Entry
	for key, e := range s.entries {
		if !strings.HasPrefix(key, prefix) || !s.live(e) {
			continue
		}
		val := make([]byte, len(e.value))
		copy(val, e.value)
		entries = append(entries, Entry{Key: key, Value: val})
	}
	return entries, nil
}

func (s *MemoryStore) Transact(ctx context.Context, watch []string, fn func(ctx context.Context, v View) ([]Write, error)) error {
	// Snapshot watched versions, run fn unlocked, then verify at commit.
	s.mu.RLock()
	snapshot := make(map[string]uint64, len(watch))
	for _, key := range watch {
		snapshot[key] = s.entries[key].version
	}
	s.mu.RUnlock()

	writes, err := fn(ctx, s)
	if err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, ver := range snapshot {
		if s.entries[key].version != ver {
			return ErrConflict
		}
	}
	for _, w := range writes {
		if w.Delete {
			s.deleteLocked(w.Key)
		} else {
			s.setLocked(w.Key, w.Value, w.TTL)
		}
	}
	return nil
}

func (s *MemoryStore) QueuePush(_ context.Context, queue string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(value))
	copy(buf, value)
	s.queues[queue] = append(s.queues[queue], buf)
	return nil
}

// QueueLen reports how many items were pushed to the named queue.
func (s *MemoryStore) QueueLen(queue string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queues[queue])
}

var _ Store = (*MemoryStore)(nil)
var _ View = (*MemoryStore)(nil)
