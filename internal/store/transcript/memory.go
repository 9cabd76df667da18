package transcript

import (
	"context"
	"sort"
	"sync"
)

// MemoryArchive keeps entries in process memory. Opt-in via the "memory"
// driver; nothing is ever pruned, so transcripts live until restart.
type MemoryArchive struct {
	mu      sync.RWMutex
	entries map[string]map[int]Entry
}

var _ Archive = (*MemoryArchive)(nil)

// NewMemoryArchive returns an empty process-local archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{entries: make(map[string]map[int]Entry)}
}

// Append stores entries, skipping sequences already held for the session.
func (m *MemoryArchive) Append(_ context.Context, entries ...Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		bySeq, ok := m.entries[e.SessionID]
		if !ok {
			bySeq = make(map[int]Entry)
			m.entries[e.SessionID] = bySeq
		}
		if _, exists := bySeq[e.Sequence]; exists {
			continue
		}
		bySeq[e.Sequence] = e
	}
	return nil
}

// Load returns a copy of the session entries ordered by sequence.
func (m *MemoryArchive) Load(_ context.Context, sessionID string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bySeq := m.entries[sessionID]
	out := make([]Entry, 0, len(bySeq))
	for _, e := range bySeq {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

// Close is a no-op.
func (m *MemoryArchive) Close() error { return nil }
