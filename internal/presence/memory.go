package presence

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryTracker keeps lastSeen per domain and fingerprint in process.
type MemoryTracker struct {
	mu      sync.RWMutex
	timeout time.Duration
	domains map[string]map[string]time.Time
}

var _ Tracker = (*MemoryTracker)(nil)

func NewMemoryTracker(timeout time.Duration) *MemoryTracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &MemoryTracker{
		timeout: timeout,
		domains: make(map[string]map[string]time.Time),
	}
}

func (m *MemoryTracker) RecordActivity(_ context.Context, domain, fingerprint string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	visitors, ok := m.domains[domain]
	if !ok {
		visitors = make(map[string]time.Time)
		m.domains[domain] = visitors
	}
	if last, ok := visitors[fingerprint]; !ok || at.After(last) {
		visitors[fingerprint] = at
	}
	return nil
}

func (m *MemoryTracker) Remove(_ context.Context, domain, fingerprint string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	visitors := m.domains[domain]
	if last, ok := visitors[fingerprint]; ok && !at.Before(last) {
		delete(visitors, fingerprint)
	}
	return nil
}

func (m *MemoryTracker) IsOnline(_ context.Context, domain, fingerprint string, now time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	last, ok := m.domains[domain][fingerprint]
	return ok && online(last, now, m.timeout), nil
}

func (m *MemoryTracker) OnlineCount(ctx context.Context, domain string, now time.Time) (int, error) {
	fingerprints, err := m.OnlineFingerprints(ctx, domain, now)
	return len(fingerprints), err
}

func (m *MemoryTracker) OnlineFingerprints(_ context.Context, domain string, now time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fingerprints := []string{}
	for fp, last := range m.domains[domain] {
		if online(last, now, m.timeout) {
			fingerprints = append(fingerprints, fp)
		}
	}
	sort.Strings(fingerprints)
	return fingerprints, nil
}

func (m *MemoryTracker) Sweep(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for domain, visitors := range m.domains {
		for fp, last := range visitors {
			if !online(last, now, m.timeout) {
				delete(visitors, fp)
				evicted++
			}
		}
		if len(visitors) == 0 {
			delete(m.domains, domain)
		}
	}
	return evicted, nil
}

func (m *MemoryTracker) Close() error {
	return nil
}
