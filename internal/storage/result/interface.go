package result

import (
	"context"
	"errors"
	"time"

	"github.com/newthinker/arena/internal/competition"
)

// ErrDuplicateKey is returned when a result with the same competition id exists.
var ErrDuplicateKey = errors.New("result: duplicate key")

// Store defines the interface for finished competition results.
type Store interface {
	// Save persists a result. Results are immutable once saved.
	Save(ctx context.Context, res competition.Result) error

	// Get retrieves a result by competition id.
	Get(ctx context.Context, id string) (*competition.Result, error)

	// List retrieves results matching the filter, most recent first.
	List(ctx context.Context, filter ListFilter) ([]competition.Result, error)

	// Count returns the number of results matching the filter.
	Count(ctx context.Context, filter ListFilter) (int, error)
}

// ListFilter defines criteria for listing results.
type ListFilter struct {
	Mode     competition.Mode
	WinnerID string
	From     time.Time // on EndedAt
	To       time.Time
	Limit    int
	Offset   int
}

func winnerID(res competition.Result) string {
	if res.Winner == nil {
		return ""
	}
	return res.Winner.ID
}
