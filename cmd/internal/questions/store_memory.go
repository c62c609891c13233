package questions

import (
	"context"
	"math/rand/v2"
	"sync"
)

// MemoryStore holds questions in memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items []Question
	rand  func(n int) int
}

// NewMemoryStore returns a store holding qs.
func NewMemoryStore(qs []Question) *MemoryStore {
	items := make([]Question, len(qs))
	copy(items, qs)
	return &MemoryStore{items: items, rand: rand.IntN}
}

func (s *MemoryStore) Random(ctx context.Context, exclude []string) (Question, error) {
	if err := ctx.Err(); err != nil {
		return Question{}, err
	}

	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := make([]Question, 0, len(s.items))
	for _, q := range s.items {
		if _, ok := skip[q.ID]; !ok {
			candidates = append(candidates, q)
		}
	}
	if len(candidates) == 0 {
		return Question{}, ErrNotFound
	}
	return candidates[s.rand(len(candidates))], nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Question, error) {
	if err := ctx.Err(); err != nil {
		return Question{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, q := range s.items {
		if q.ID == id {
			return q, nil
		}
	}
	return Question{}, ErrNotFound
}
