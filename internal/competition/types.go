// Package competition runs several isolated paper-trading competitors against
// one shared market feed, scoring and ranking them as they trade.
package competition

import (
	"context"
	"fmt"
	"time"

	"github.com/newthinker/arena/internal/core"
	"github.com/newthinker/arena/internal/paper"
	"github.com/newthinker/arena/internal/strategy"
)

// Mode selects how a competition ends.
type Mode string

const (
	// ModeContinuous runs until stopped.
	ModeContinuous Mode = "continuous"
	// ModeTimed finishes automatically after Duration.
	ModeTimed Mode = "timed"
	// ModeElimination removes competitors whose loss reaches the threshold
	// and finishes when at most one remains.
	ModeElimination Mode = "elimination"
	// ModeTournament runs like continuous; brackets are arranged by the caller.
	ModeTournament Mode = "tournament"
)

// IsValid reports whether m is a known mode
func (m Mode) IsValid() bool {
	switch m {
	case ModeContinuous, ModeTimed, ModeElimination, ModeTournament:
		return true
	}
	return false
}

// Status is the engine lifecycle state.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusPaused   Status = "paused"
	StatusFinished Status = "finished"
)

// CompetitorStatus is the lifecycle state of one competitor.
type CompetitorStatus string

const (
	CompetitorRunning    CompetitorStatus = "running"
	CompetitorPaused     CompetitorStatus = "paused"
	CompetitorStopped    CompetitorStatus = "stopped"
	CompetitorEliminated CompetitorStatus = "eliminated"
)

// Trend compares a competitor's rank with the previous tick.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// Weights combine the normalised score terms.
type Weights struct {
	Returns     float64 `json:"returns" mapstructure:"returns"`
	Sharpe      float64 `json:"sharpe" mapstructure:"sharpe"`
	WinRate     float64 `json:"win_rate" mapstructure:"win_rate"`
	Consistency float64 `json:"consistency" mapstructure:"consistency"`
}

// DefaultWeights favours returns, then risk-adjusted returns.
func DefaultWeights() Weights {
	return Weights{Returns: 0.4, Sharpe: 0.3, WinRate: 0.2, Consistency: 0.1}
}

func (w Weights) isZero() bool {
	return w == Weights{}
}

// Config holds immutable run parameters.
type Config struct {
	ID                   string        `json:"id"`
	Name                 string        `json:"name"`
	Mode                 Mode          `json:"mode"`
	Duration             time.Duration `json:"duration,omitempty"`              // timed mode only
	EliminationThreshold float64       `json:"elimination_threshold,omitempty"` // percent loss; 0 disables
	Markets              []string      `json:"markets"`
	StartingBalance      float64       `json:"starting_balance"`
	Weights              Weights       `json:"weights"`
	TickInterval         time.Duration `json:"tick_interval"` // state loop; analysis runs at half this period
	MinSignalStrength    float64       `json:"min_signal_strength"`
	MinSignalConfidence  float64       `json:"min_signal_confidence"`
}

// Defaults for zero-valued Config fields.
const (
	DefaultTickInterval        = time.Second
	DefaultStartingBalance     = 10000.0
	DefaultMinSignalStrength   = 60.0
	DefaultMinSignalConfidence = 60.0
)

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeContinuous
	}
	if c.Name == "" {
		c.Name = c.ID
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.StartingBalance <= 0 {
		c.StartingBalance = DefaultStartingBalance
	}
	if c.Weights.isZero() {
		c.Weights = DefaultWeights()
	}
	if c.MinSignalStrength <= 0 {
		c.MinSignalStrength = DefaultMinSignalStrength
	}
	if c.MinSignalConfidence <= 0 {
		c.MinSignalConfidence = DefaultMinSignalConfidence
	}
	return c
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if !c.Mode.IsValid() {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown mode %q", c.Mode))
	}
	if c.Mode == ModeTimed && c.Duration <= 0 {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("timed mode requires a duration"))
	}
	if c.EliminationThreshold < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("elimination_threshold cannot be negative, got %f", c.EliminationThreshold))
	}
	if len(c.Markets) == 0 {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("at least one market required"))
	}
	w := c.Weights
	if w.Returns < 0 || w.Sharpe < 0 || w.WinRate < 0 || w.Consistency < 0 {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("weights cannot be negative"))
	}
	if c.MinSignalStrength > 100 || c.MinSignalConfidence > 100 {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("signal thresholds are on a 0-100 scale"))
	}
	return nil
}

// CompetitorConfig is the registration input for one competitor.
type CompetitorConfig struct {
	ID               string
	Name             string
	Strategies       []strategy.Strategy
	StrategySettings map[string]any
	Paper            paper.Settings // zero fields fall back to the competition defaults
	Disabled         bool           // registered and scored but never trades
}

// CompetitorState is the latest view of one competitor.
type CompetitorState struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	Status             CompetitorStatus `json:"status"`
	Balance            float64          `json:"balance"`
	Equity             float64          `json:"equity"`
	PnL                float64          `json:"pnl"`
	PnLPercent         float64          `json:"pnl_percent"`
	OpenPositions      int              `json:"open_positions"`
	TotalTrades        int              `json:"total_trades"`
	WinRate            float64          `json:"win_rate"`
	SharpeRatio        float64          `json:"sharpe_ratio"`
	MaxDrawdownPercent float64          `json:"max_drawdown_percent"`
	Rank               int              `json:"rank"` // 0 while unranked or eliminated
	Score              float64          `json:"score"`
	EliminatedAt       *time.Time       `json:"eliminated_at,omitempty"`
}

// LeaderboardEntry is one row of the ranking.
type LeaderboardEntry struct {
	Rank         int     `json:"rank"`
	CompetitorID string  `json:"competitor_id"`
	Name         string  `json:"name"`
	Equity       float64 `json:"equity"`
	PnLPercent   float64 `json:"pnl_percent"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	WinRate      float64 `json:"win_rate"`
	TotalTrades  int     `json:"total_trades"`
	Score        float64 `json:"score"`
	Trend        Trend   `json:"trend"`
	PreviousRank int     `json:"previous_rank"`
}

// CompetitorDetail describes one competitor for inspection.
type CompetitorDetail struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Strategies []string        `json:"strategies"`
	Settings   paper.Settings  `json:"settings"`
	State      CompetitorState `json:"state"`
	Positions  []core.Position `json:"positions"`
}

// MarketSummary reports recent activity of one market.
type MarketSummary struct {
	Ticker      string  `json:"ticker"`
	Volume      int64   `json:"volume"`
	PriceChange float64 `json:"price_change"`
	LastPrice   float64 `json:"last_price"`
}

// AggregateStats summarises every registered competitor, eliminated ones included.
type AggregateStats struct {
	TotalTrades   int     `json:"total_trades"`
	TotalVolume   int64   `json:"total_volume"`
	AverageReturn float64 `json:"average_return"`
	BestReturn    float64 `json:"best_return"`
	WorstReturn   float64 `json:"worst_return"`
}

// Result is the terminal snapshot produced when a competition finishes.
type Result struct {
	CompetitionID string             `json:"competition_id"`
	Name          string             `json:"name"`
	Mode          Mode               `json:"mode"`
	StartedAt     time.Time          `json:"started_at"`
	EndedAt       time.Time          `json:"ended_at"`
	Duration      time.Duration      `json:"duration"`
	Winner        *CompetitorState   `json:"winner,omitempty"`
	Leaderboard   []LeaderboardEntry `json:"leaderboard"`
	Markets       []MarketSummary    `json:"markets"`
	Stats         AggregateStats     `json:"stats"`
	Competitors   []CompetitorState  `json:"competitors"`
}

// StatusReport answers a status query.
type StatusReport struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	Mode               Mode           `json:"mode"`
	Status             Status         `json:"status"`
	StartedAt          time.Time      `json:"started_at,omitempty"`
	Elapsed            time.Duration  `json:"elapsed"`
	Remaining          *time.Duration `json:"remaining,omitempty"` // timed mode only
	TotalCompetitors   int            `json:"total_competitors"`
	RunningCompetitors int            `json:"running_competitors"`
}

// Trader is the per-competitor account the engine trades through.
type Trader interface {
	SubmitOrder(ctx context.Context, req paper.OrderRequest) (*paper.Fill, error)
	Positions() []core.Position
	Metrics() paper.Metrics
	Equity() float64
	Balance() float64
	Subscribe(handler paper.EventHandler)
}

// TraderFactory builds a fresh isolated account for one competitor.
type TraderFactory func(settings paper.Settings) Trader

// MarketData is the read side of the shared market aggregator.
type MarketData interface {
	Subscribe(ctx context.Context, tickers []string) error
	GetMarketData(ticker string) (core.MarketSnapshot, bool)
}
