package alert

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/arena/internal/competition"
)

// exprPattern matches "metric op value".
var exprPattern = regexp.MustCompile(`^(\w+)\s*(>=|<=|==|!=|>|<)\s*(-?[\d.]+)$`)

// Rule defines a standings alert rule. Expr compares one leaderboard
// metric with a constant, e.g. "pnl_percent < -10".
type Rule struct {
	Name     string        `mapstructure:"name"`
	Expr     string        `mapstructure:"expr"`
	For      time.Duration `mapstructure:"for"`
	Severity string        `mapstructure:"severity"`
	Message  string        `mapstructure:"message"`
}

// condition is a parsed rule expression.
type condition struct {
	metric    string
	op        string
	threshold float64
}

func parse(expr string) (condition, error) {
	matches := exprPattern.FindStringSubmatch(strings.TrimSpace(expr))
	if len(matches) != 4 {
		return condition{}, fmt.Errorf("expression %q: want \"metric op value\"", expr)
	}
	threshold, err := strconv.ParseFloat(matches[3], 64)
	if err != nil {
		return condition{}, fmt.Errorf("expression %q: %w", expr, err)
	}
	if !isMetric(matches[1]) {
		return condition{}, fmt.Errorf("expression %q: unknown metric %q", expr, matches[1])
	}
	return condition{metric: matches[1], op: matches[2], threshold: threshold}, nil
}

func (c condition) holds(value float64) bool {
	switch c.op {
	case ">":
		return value > c.threshold
	case "<":
		return value < c.threshold
	case ">=":
		return value >= c.threshold
	case "<=":
		return value <= c.threshold
	case "==":
		return value == c.threshold
	case "!=":
		return value != c.threshold
	default:
		return false
	}
}

// Validate checks the rule is complete and its expression parses.
func (r Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("alert rule name required")
	}
	if r.For < 0 {
		return fmt.Errorf("alert rule %s: negative for duration", r.Name)
	}
	if _, err := parse(r.Expr); err != nil {
		return fmt.Errorf("alert rule %s: %w", r.Name, err)
	}
	return nil
}

// Evaluate evaluates the rule expression against metrics. Malformed
// expressions and missing metrics never match.
func (r Rule) Evaluate(metrics map[string]float64) bool {
	c, err := parse(r.Expr)
	if err != nil {
		return false
	}
	value, ok := metrics[c.metric]
	return ok && c.holds(value)
}

// FormatMessage formats the alert message for a competitor.
func (r Rule) FormatMessage(competitorID string) string {
	msg := fmt.Sprintf("[%s] %s: %s", strings.ToUpper(r.severity()), r.Name, competitorID)
	if r.Message != "" {
		msg += " " + r.Message
	}
	return msg
}

func (r Rule) severity() string {
	if r.Severity == "" {
		return "warning"
	}
	return r.Severity
}

// Metric names usable in rule expressions.
const (
	MetricRank        = "rank"
	MetricEquity      = "equity"
	MetricPnLPercent  = "pnl_percent"
	MetricSharpeRatio = "sharpe_ratio"
	MetricWinRate     = "win_rate"
	MetricTotalTrades = "total_trades"
	MetricScore       = "score"
)

func isMetric(name string) bool {
	switch name {
	case MetricRank, MetricEquity, MetricPnLPercent, MetricSharpeRatio,
		MetricWinRate, MetricTotalTrades, MetricScore:
		return true
	}
	return false
}

// EntryMetrics exposes a leaderboard row to rule expressions.
func EntryMetrics(e competition.LeaderboardEntry) map[string]float64 {
	return map[string]float64{
		MetricRank:        float64(e.Rank),
		MetricEquity:      e.Equity,
		MetricPnLPercent:  e.PnLPercent,
		MetricSharpeRatio: e.SharpeRatio,
		MetricWinRate:     e.WinRate,
		MetricTotalTrades: float64(e.TotalTrades),
		MetricScore:       e.Score,
	}
}
