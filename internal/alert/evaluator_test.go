package alert

import (
	"sync"
	"testing"
	"time"

	"github.com/newthinker/arena/internal/competition"
)

type mockSink struct {
	mu     sync.Mutex
	events []competition.Event
}

func (m *mockSink) OnEvent(ev competition.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *mockSink) sent() []competition.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]competition.Event(nil), m.events...)
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func update(at time.Duration, entries ...competition.LeaderboardEntry) competition.Event {
	return competition.Event{
		Type:          competition.EventLeaderboardUpdated,
		CompetitionID: "c1",
		Time:          t0.Add(at),
		Leaderboard:   entries,
	}
}

func entry(id string, pnl float64) competition.LeaderboardEntry {
	return competition.LeaderboardEntry{CompetitorID: id, PnLPercent: pnl}
}

func newEvaluator(t *testing.T, sink *mockSink, rules ...Rule) *Evaluator {
	t.Helper()
	eval, err := NewEvaluator(rules, sink)
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	return eval
}

func TestEvaluator_EvaluateRule(t *testing.T) {
	sink := &mockSink{}
	eval := newEvaluator(t, sink, Rule{
		Name:     "deep_loss",
		Expr:     "pnl_percent < -10",
		For:      time.Minute,
		Severity: "critical",
		Message:  "losing more than 10%",
	})

	// First evaluation starts the pending timer, doesn't fire
	eval.OnEvent(update(0, entry("a", -12)))
	if n := len(sink.sent()); n != 0 {
		t.Errorf("expected no alert on first eval, got %d", n)
	}

	eval.OnEvent(update(2*time.Minute, entry("a", -13)))

	sent := sink.sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 alert after duration, got %d", len(sent))
	}
	ev := sent[0]
	if ev.Type != competition.EventCompetitorAlert || ev.CompetitorID != "a" || ev.CompetitionID != "c1" {
		t.Errorf("unexpected alert event %+v", ev)
	}
	if ev.Alert == nil || ev.Alert.Rule != "deep_loss" || ev.Alert.Severity != "critical" ||
		ev.Alert.Metric != "pnl_percent" || ev.Alert.Value != -13 {
		t.Errorf("unexpected alert payload %+v", ev.Alert)
	}
}

func TestEvaluator_Cooldown(t *testing.T) {
	sink := &mockSink{}
	eval := newEvaluator(t, sink, Rule{Name: "loss", Expr: "pnl_percent < 0"})
	eval.SetCooldown(5 * time.Minute)

	eval.OnEvent(update(0, entry("a", -1)))
	eval.OnEvent(update(time.Minute, entry("a", -1)))
	eval.OnEvent(update(2*time.Minute, entry("a", -1)))

	// Should only notify once due to cooldown
	if n := len(sink.sent()); n != 1 {
		t.Errorf("expected 1 alert due to cooldown, got %d", n)
	}

	eval.OnEvent(update(6*time.Minute, entry("a", -1)))
	if n := len(sink.sent()); n != 2 {
		t.Errorf("expected a second alert after cooldown, got %d", n)
	}
}

func TestEvaluator_PerCompetitor(t *testing.T) {
	sink := &mockSink{}
	eval := newEvaluator(t, sink,
		Rule{Name: "loss", Expr: "pnl_percent < 0"},
		Rule{Name: "leader", Expr: "rank == 1"},
	)

	leader := entry("a", 5)
	leader.Rank = 1
	trailing := entry("b", -2)
	trailing.Rank = 2
	eval.OnEvent(update(0, leader, trailing))

	got := map[string]string{}
	for _, ev := range sink.sent() {
		got[ev.CompetitorID] = ev.Alert.Rule
	}
	if len(got) != 2 || got["a"] != "leader" || got["b"] != "loss" {
		t.Errorf("unexpected alerts %v", got)
	}
}

func TestEvaluator_PendingClearsWhenRuleNoLongerTriggers(t *testing.T) {
	sink := &mockSink{}
	eval := newEvaluator(t, sink, Rule{Name: "loss", Expr: "pnl_percent < -10", For: time.Minute})

	// First: trigger rule to start pending
	eval.OnEvent(update(0, entry("a", -12)))
	// Second: rule no longer triggers - should clear pending
	eval.OnEvent(update(30*time.Second, entry("a", -2)))
	// Third: re-trigger later - should start new pending
	eval.OnEvent(update(2*time.Minute, entry("a", -12)))

	if n := len(sink.sent()); n != 0 {
		t.Errorf("expected no alert (pending cleared), got %d", n)
	}
}

func TestEvaluator_FinishForgetsState(t *testing.T) {
	sink := &mockSink{}
	eval := newEvaluator(t, sink, Rule{Name: "loss", Expr: "pnl_percent < 0"})

	eval.OnEvent(update(0, entry("a", -1)))
	eval.OnEvent(competition.Event{Type: competition.EventCompetitionFinished, CompetitionID: "c1"})
	eval.OnEvent(update(time.Second, entry("a", -1)))

	if n := len(sink.sent()); n != 2 {
		t.Errorf("expected cooldown reset after finish, got %d alerts", n)
	}
}

func TestEvaluator_IgnoresOtherEvents(t *testing.T) {
	sink := &mockSink{}
	eval := newEvaluator(t, sink, Rule{Name: "loss", Expr: "pnl_percent < 0"})

	eval.OnEvent(competition.Event{Type: competition.EventCompetitorTrade, CompetitorID: "a"})
	if n := len(sink.sent()); n != 0 {
		t.Errorf("expected no alerts, got %d", n)
	}
}

func TestNewEvaluator_Errors(t *testing.T) {
	sink := &mockSink{}
	tests := []struct {
		name  string
		sink  competition.Observer
		rules []Rule
	}{
		{"no sink", nil, nil},
		{"missing name", sink, []Rule{{Expr: "score > 1"}}},
		{"bad expr", sink, []Rule{{Name: "x", Expr: "score >> 1"}}},
		{"unknown metric", sink, []Rule{{Name: "x", Expr: "latency > 1"}}},
		{"negative for", sink, []Rule{{Name: "x", Expr: "score > 1", For: -time.Second}}},
		{"duplicate", sink, []Rule{{Name: "x", Expr: "score > 1"}, {Name: "x", Expr: "rank > 1"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEvaluator(tt.rules, tt.sink); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRule_Evaluate(t *testing.T) {
	tests := []struct {
		expr     string
		metrics  map[string]float64
		expected bool
	}{
		{"pnl_percent > 5", map[string]float64{"pnl_percent": 10}, true},
		{"pnl_percent > 5", map[string]float64{"pnl_percent": 1}, false},
		{"pnl_percent < -10", map[string]float64{"pnl_percent": -12}, true},
		{"rank == 1", map[string]float64{"rank": 1}, true},
		{"rank == 1", map[string]float64{"rank": 2}, false},
		{"total_trades >= 10", map[string]float64{"total_trades": 10}, true},
		{"total_trades >= 10", map[string]float64{"total_trades": 9}, false},
		{"win_rate <= 40", map[string]float64{"win_rate": 35}, true},
		{"win_rate <= 40", map[string]float64{"win_rate": 55}, false},
		{"score != 50", map[string]float64{"score": 49}, true},
		{"score != 50", map[string]float64{"score": 50}, false},
		{"equity > 0", map[string]float64{}, false}, // missing metric
		{"not an expression", map[string]float64{"score": 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			rule := Rule{Expr: tt.expr}
			result := rule.Evaluate(tt.metrics)
			if result != tt.expected {
				t.Errorf("expr %q with metrics %v: expected %v, got %v",
					tt.expr, tt.metrics, tt.expected, result)
			}
		})
	}
}

func TestRule_FormatMessage(t *testing.T) {
	rule := Rule{
		Name:     "deep_loss",
		Severity: "warning",
		Message:  "losing more than 10%",
	}

	msg := rule.FormatMessage("alpha")

	if msg != "[WARNING] deep_loss: alpha losing more than 10%" {
		t.Errorf("unexpected message: %s", msg)
	}
}

func TestEntryMetrics(t *testing.T) {
	m := EntryMetrics(competition.LeaderboardEntry{Rank: 2, Equity: 1100, TotalTrades: 7, Score: 61})
	if m[MetricRank] != 2 || m[MetricEquity] != 1100 || m[MetricTotalTrades] != 7 || m[MetricScore] != 61 {
		t.Errorf("unexpected metrics %v", m)
	}
}
