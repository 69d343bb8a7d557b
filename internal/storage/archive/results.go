package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/newthinker/arena/internal/competition"
	"go.uber.org/zap"
)

const resultsPrefix = "results"

// ResultPath is where a result is archived: results/<yyyy-mm-dd>/<id>.json,
// dated by the UTC end time.
func ResultPath(res competition.Result) string {
	return path.Join(resultsPrefix, res.EndedAt.UTC().Format("2006-01-02"), res.CompetitionID+".json")
}

// ResultArchiver writes finished results to a Storage backend. It observes
// competition events and archives on competition_finished.
type ResultArchiver struct {
	storage Storage
	timeout time.Duration
	logger  *zap.Logger
}

// NewResultArchiver creates an archiver over storage.
func NewResultArchiver(storage Storage, logger ...*zap.Logger) *ResultArchiver {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &ResultArchiver{storage: storage, timeout: 30 * time.Second, logger: l}
}

// Archive writes res and returns its path.
func (a *ResultArchiver) Archive(ctx context.Context, res competition.Result) (string, error) {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	p := ResultPath(res)
	if err := a.storage.Write(ctx, p, data); err != nil {
		return "", err
	}
	return p, nil
}

// Load reads an archived result.
func (a *ResultArchiver) Load(ctx context.Context, p string) (*competition.Result, error) {
	data, err := a.storage.Read(ctx, p)
	if err != nil {
		return nil, err
	}
	var res competition.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode %s: %w", p, err)
	}
	return &res, nil
}

// List returns archived result paths for one UTC day, or all days when day is zero.
func (a *ResultArchiver) List(ctx context.Context, day time.Time) ([]string, error) {
	prefix := resultsPrefix
	if !day.IsZero() {
		prefix = path.Join(resultsPrefix, day.UTC().Format("2006-01-02"))
	}
	return a.storage.List(ctx, prefix)
}

// OnEvent archives the result carried by competition_finished.
func (a *ResultArchiver) OnEvent(ev competition.Event) {
	if ev.Type != competition.EventCompetitionFinished || ev.Result == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	p, err := a.Archive(ctx, *ev.Result)
	if err != nil {
		a.logger.Error("failed to archive result",
			zap.String("competition", ev.CompetitionID),
			zap.Error(err),
		)
		return
	}
	a.logger.Info("result archived",
		zap.String("competition", ev.CompetitionID),
		zap.String("path", p),
	)
}

var _ competition.Observer = (*ResultArchiver)(nil)
