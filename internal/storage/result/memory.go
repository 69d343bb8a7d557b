package result

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/newthinker/arena/internal/competition"
	"github.com/newthinker/arena/internal/core"
)

// MemoryStore is an in-memory result store.
type MemoryStore struct {
	results []competition.Result
	maxSize int
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory store with max capacity.
func NewMemoryStore(maxSize int) *MemoryStore {
	return &MemoryStore{
		results: make([]competition.Result, 0, maxSize),
		maxSize: maxSize,
	}
}

// Save adds a result to the store.
func (m *MemoryStore) Save(ctx context.Context, res competition.Result) error {
	if res.CompetitionID == "" {
		return fmt.Errorf("result: competition id required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.results {
		if r.CompetitionID == res.CompetitionID {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, res.CompetitionID)
		}
	}
	m.results = append(m.results, res)

	// Trim if over capacity (remove oldest)
	if m.maxSize > 0 && len(m.results) > m.maxSize {
		m.results = m.results[len(m.results)-m.maxSize:]
	}

	return nil
}

// Get retrieves a result by competition id.
func (m *MemoryStore) Get(ctx context.Context, id string) (*competition.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := range m.results {
		if m.results[i].CompetitionID == id {
			res := m.results[i]
			return &res, nil
		}
	}
	return nil, core.ErrCompetitionNotFound
}

// List returns results matching the filter.
func (m *MemoryStore) List(ctx context.Context, filter ListFilter) ([]competition.Result, error) {
	m.mu.RLock()
	var result []competition.Result
	for _, res := range m.results {
		if matches(res, filter) {
			result = append(result, res)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].EndedAt.After(result[j].EndedAt)
	})

	// Apply offset and limit
	if filter.Offset > 0 && filter.Offset < len(result) {
		result = result[filter.Offset:]
	} else if filter.Offset > 0 && filter.Offset >= len(result) {
		return []competition.Result{}, nil
	}

	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

// Count returns the count of matching results.
func (m *MemoryStore) Count(ctx context.Context, filter ListFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, res := range m.results {
		if matches(res, filter) {
			count++
		}
	}
	return count, nil
}

func matches(res competition.Result, filter ListFilter) bool {
	if filter.Mode != "" && res.Mode != filter.Mode {
		return false
	}
	if filter.WinnerID != "" && winnerID(res) != filter.WinnerID {
		return false
	}
	if !filter.From.IsZero() && res.EndedAt.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && res.EndedAt.After(filter.To) {
		return false
	}
	return true
}

var _ Store = (*MemoryStore)(nil)
