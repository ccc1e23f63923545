package descendants

import (
	"context"
	"fmt"
	"sort"
	"sync"

	engine "github.com/VAC4EU/Codemapper-sub000/internal/descendants"
)

type memoryKey struct {
	codingSystem string
	version      string
	code         string
}

type memoryEntry struct {
	seq     uint64
	payload string
}

// MemoryStore keeps entries in process memory. Contents are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	seq     uint64
	entries map[memoryKey]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[memoryKey]memoryEntry)}
}

func (s *MemoryStore) Get(_ context.Context, codingSystem, version string, codes []string) (map[string][]engine.Code, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]engine.Code)
	for _, code := range codes {
		e, ok := s.entries[memoryKey{codingSystem, version, code}]
		if !ok {
			continue
		}
		out[code] = decode(e.payload)
	}
	return out, nil
}

func (s *MemoryStore) Put(_ context.Context, codingSystem, version, code string, descendants []engine.Code) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	if err := validateKey(codingSystem, code); err != nil {
		return err
	}
	payload := encode(descendants)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.entries[memoryKey{codingSystem, version, code}] = memoryEntry{seq: s.seq, payload: payload}
	return nil
}

func (s *MemoryStore) Evict(_ context.Context, n int) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("store is nil")
	}
	if err := validateEvict(n); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n >= len(s.entries) {
		removed := len(s.entries)
		s.entries = make(map[memoryKey]memoryEntry)
		return removed, nil
	}
	keys := make([]memoryKey, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return s.entries[keys[i]].seq < s.entries[keys[j]].seq })
	for _, k := range keys[:n] {
		delete(s.entries, k)
	}
	return n, nil
}

func (s *MemoryStore) Len(_ context.Context) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("store is nil")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}
