package alert

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/newthinker/arena/internal/competition"
	"go.uber.org/zap"
)

// DefaultCooldown is the minimum gap between two firings of one rule for
// one competitor.
const DefaultCooldown = 5 * time.Minute

// Evaluator evaluates alert rules against every leaderboard update and
// forwards fired alerts to a sink as competitor_alert events.
type Evaluator struct {
	rules    []Rule
	conds    []condition
	sink     competition.Observer
	cooldown time.Duration
	logger   *zap.Logger

	// Track pending alerts (waiting for "for" duration)
	pending map[string]time.Time
	// Track last fired time for cooldown
	lastFired map[string]time.Time

	mu sync.Mutex
}

// NewEvaluator creates a new alert evaluator. It fails if any rule is invalid.
func NewEvaluator(rules []Rule, sink competition.Observer, logger ...*zap.Logger) (*Evaluator, error) {
	if sink == nil {
		return nil, fmt.Errorf("alert sink required")
	}

	conds := make([]condition, len(rules))
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("duplicate alert rule %s", r.Name)
		}
		seen[r.Name] = true
		conds[i], _ = parse(r.Expr)
	}

	l := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}

	return &Evaluator{
		rules:     rules,
		conds:     conds,
		sink:      sink,
		cooldown:  DefaultCooldown,
		logger:    l,
		pending:   make(map[string]time.Time),
		lastFired: make(map[string]time.Time),
	}, nil
}

// SetCooldown sets the cooldown duration between alerts.
func (e *Evaluator) SetCooldown(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cooldown = d
}

// OnEvent implements competition.Observer.
func (e *Evaluator) OnEvent(ev competition.Event) {
	switch ev.Type {
	case competition.EventLeaderboardUpdated:
		for _, fired := range e.evaluate(ev) {
			e.sink.OnEvent(fired)
		}
	case competition.EventCompetitionFinished:
		e.forget(ev.CompetitionID)
	}
}

// evaluate returns the alerts that fire for one leaderboard update. The
// update's timestamp is the clock, so pending and cooldown windows follow
// competition time.
func (e *Evaluator) evaluate(ev competition.Event) []competition.Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := ev.Time
	if now.IsZero() {
		now = time.Now()
	}

	var fired []competition.Event
	for _, entry := range ev.Leaderboard {
		metrics := EntryMetrics(entry)
		for i, rule := range e.rules {
			cond := e.conds[i]
			key := ev.CompetitionID + "/" + entry.CompetitorID + "/" + rule.Name

			// Rule not triggered, clear pending state
			if !cond.holds(metrics[cond.metric]) {
				delete(e.pending, key)
				continue
			}

			if rule.For > 0 {
				pendingSince, isPending := e.pending[key]
				if !isPending {
					e.pending[key] = now
					continue
				}
				if now.Sub(pendingSince) < rule.For {
					continue
				}
			}

			if last, ok := e.lastFired[key]; ok && now.Sub(last) < e.cooldown {
				continue
			}

			e.lastFired[key] = now
			delete(e.pending, key)

			e.logger.Warn(rule.FormatMessage(entry.CompetitorID),
				zap.String("competition", ev.CompetitionID),
				zap.String("rule", rule.Name),
				zap.Float64("value", metrics[cond.metric]),
			)
			fired = append(fired, competition.Event{
				Type:          competition.EventCompetitorAlert,
				CompetitionID: ev.CompetitionID,
				CompetitorID:  entry.CompetitorID,
				Time:          now,
				Alert: &competition.Alert{
					Rule:     rule.Name,
					Severity: rule.severity(),
					Message:  rule.Message,
					Metric:   cond.metric,
					Value:    metrics[cond.metric],
				},
			})
		}
	}
	return fired
}

// forget drops all state kept for a finished competition.
func (e *Evaluator) forget(competitionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prefix := competitionID + "/"
	for key := range e.pending {
		if strings.HasPrefix(key, prefix) {
			delete(e.pending, key)
		}
	}
	for key := range e.lastFired {
		if strings.HasPrefix(key, prefix) {
			delete(e.lastFired, key)
		}
	}
}

var _ competition.Observer = (*Evaluator)(nil)
