package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryProvider is an in-process Provider with per-entry TTLs. Expired
// entries are dropped lazily on read; MaxEntries bounds memory by evicting
// the entry closest to expiry when the store is full.
type MemoryProvider struct {
	mu         sync.RWMutex
	data       map[string]entry
	maxEntries int
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryProvider creates a memory-backed cache holding at most maxEntries
// values. Non-positive maxEntries falls back to a sensible bound.
func NewMemoryProvider(maxEntries int) *MemoryProvider {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &MemoryProvider{
		data:       make(map[string]entry),
		maxEntries: maxEntries,
	}
}

// Get retrieves a stored value if present and not expired.
func (p *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	p.mu.RLock()
	e, ok := p.data[key]
	p.mu.RUnlock()
	if !ok {
		return nil, ErrCacheMiss
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		p.mu.Lock()
		delete(p.data, key)
		p.mu.Unlock()
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores a value with the provided TTL. Zero TTL means no expiry.
func (p *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.data[key]; !exists && len(p.data) >= p.maxEntries {
		p.evictLocked()
	}
	p.data[key] = entry{value: append([]byte(nil), value...), expiresAt: expires}
	return nil
}

// Del removes an entry.
func (p *MemoryProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.data, key)
	return nil
}

// Close drops all entries.
func (p *MemoryProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data = make(map[string]entry)
	return nil
}

// evictLocked removes the entry expiring soonest; entries without expiry are
// evicted last. Caller holds the write lock.
func (p *MemoryProvider) evictLocked() {
	var victim string
	var victimExpiry time.Time
	first := true
	for key, e := range p.data {
		if first {
			victim, victimExpiry = key, e.expiresAt
			first = false
			continue
		}
		if victimExpiry.IsZero() && !e.expiresAt.IsZero() {
			victim, victimExpiry = key, e.expiresAt
			continue
		}
		if !e.expiresAt.IsZero() && e.expiresAt.Before(victimExpiry) {
			victim, victimExpiry = key, e.expiresAt
		}
	}
	delete(p.data, victim)
}
