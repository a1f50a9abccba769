package store

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value []byte
	// expiresAt is zero for entries that never expire.
	expiresAt time.Time
}

// Memory is a map-backed Store with per-entry TTL and a background sweep.
// It is the default backend for single-process deployments and tests.
type Memory struct {
	mu          sync.RWMutex
	items       map[string]memoryEntry
	stopSweep   chan struct{}
	closeOnce   sync.Once
	defaultTTL  time.Duration
	sweepPeriod time.Duration
}

// NewMemory creates an in-process store. Entries written without an
// explicit ttl live for defaultTTL; a non-positive defaultTTL keeps them
// until deleted. A non-positive sweepPeriod falls back to 5 minutes.
func NewMemory(defaultTTL, sweepPeriod time.Duration) *Memory {
	if sweepPeriod <= 0 {
		sweepPeriod = 5 * time.Minute
	}

	m := &Memory{
		items:       make(map[string]memoryEntry),
		stopSweep:   make(chan struct{}),
		defaultTTL:  defaultTTL,
		sweepPeriod: sweepPeriod,
	}

	go m.sweepExpired()

	return m
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	entry, ok := m.items[key]
	m.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}

	now := time.Now()
	if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
		m.mu.Lock()
		if e, exists := m.items[key]; exists && now.After(e.expiresAt) {
			delete(m.items, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}

	return entry.value, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	// Copy to decouple from the caller's buffer.
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	m.mu.Lock()
	m.items[key] = memoryEntry{
		value:     valueCopy,
		expiresAt: expiresAt,
	}
	m.mu.Unlock()

	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

// sweepExpired runs periodically to remove expired entries.
func (m *Memory) sweepExpired() {
	ticker := time.NewTicker(m.sweepPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			m.mu.Lock()
			for k, v := range m.items {
				if !v.expiresAt.IsZero() && now.After(v.expiresAt) {
					delete(m.items, k)
				}
			}
			m.mu.Unlock()
		case <-m.stopSweep:
			return
		}
	}
}

// Close stops the sweep goroutine. Call on shutdown or in tests.
func (m *Memory) Close() error {
	m.closeOnce.Do(func() {
		close(m.stopSweep)
	})
	return nil
}

// Len returns the number of entries currently held.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Clear removes every entry. Useful for tests or manual resets.
func (m *Memory) Clear() {
	m.mu.Lock()
	m.items = make(map[string]memoryEntry)
	m.mu.Unlock()
}
