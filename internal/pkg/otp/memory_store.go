package otp

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

type entry struct {
	code      string
	expiresAt time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]entry
}

// MemoryStore is a single-process Store. Keys are spread over shards so
// requests for different phones rarely share a lock.
type MemoryStore struct {
	shards [shardCount]*shard
	now    func() time.Time
}

// NewMemoryStore creates an empty store using the wall clock.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock creates a store reading time from now.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	s := &MemoryStore{now: now}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]entry)}
	}
	return s
}

func (s *MemoryStore) shardFor(phone string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(phone))
	return s.shards[h.Sum32()%shardCount]
}

func (s *MemoryStore) Put(_ context.Context, phone, code string, ttl time.Duration) error {
	sh := s.shardFor(phone)
	sh.mu.Lock()
	sh.entries[phone] = entry{code: code, expiresAt: s.now().Add(ttl)}
	sh.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, phone string) (string, bool, error) {
	sh := s.shardFor(phone)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[phone]
	if !ok {
		return "", false, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(sh.entries, phone)
		return "", false, nil
	}
	return e.code, true, nil
}

func (s *MemoryStore) Delete(_ context.Context, phone string) error {
	sh := s.shardFor(phone)
	sh.mu.Lock()
	delete(sh.entries, phone)
	sh.mu.Unlock()
	return nil
}

// Purge drops expired entries and returns how many were removed.
func (s *MemoryStore) Purge() int {
	now := s.now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, e := range sh.entries {
			if !now.Before(e.expiresAt) {
				delete(sh.entries, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

// StartJanitor purges expired entries every interval until the returned
// function is called.
func (s *MemoryStore) StartJanitor(interval time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.Purge()
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}
