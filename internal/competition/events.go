package competition

import (
	"sync/atomic"
	"time"

	"github.com/newthinker/arena/internal/core"
	"github.com/newthinker/arena/internal/paper"
)

// EventType names a competition event.
type EventType string

const (
	EventCompetitorRegistered     EventType = "competitor_registered"
	EventCompetitorUnregistered   EventType = "competitor_unregistered"
	EventCompetitionStarted       EventType = "competition_started"
	EventCompetitionPaused        EventType = "competition_paused"
	EventCompetitionResumed       EventType = "competition_resumed"
	EventCompetitionFinished      EventType = "competition_finished"
	EventCompetitorEliminated     EventType = "competitor_eliminated"
	EventCompetitorTrade          EventType = "competitor_trade"
	EventCompetitorPositionOpened EventType = "competitor_position_opened"
	EventCompetitorPositionClosed EventType = "competitor_position_closed"
	EventLeaderboardUpdated       EventType = "leaderboard_updated"
	EventCompetitorAlert          EventType = "competitor_alert"
)

// Elimination describes why a competitor was removed.
type Elimination struct {
	Equity     float64 `json:"equity"`
	PnLPercent float64 `json:"pnl_percent"`
	Threshold  float64 `json:"threshold"`
}

// Alert describes a standings rule that fired for a competitor.
type Alert struct {
	Rule     string  `json:"rule"`
	Severity string  `json:"severity"`
	Message  string  `json:"message"`
	Metric   string  `json:"metric"`
	Value    float64 `json:"value"`
}

// Event is published to observers. Only the payload field matching Type is set.
type Event struct {
	Type          EventType          `json:"type"`
	CompetitionID string             `json:"competition_id"`
	CompetitorID  string             `json:"competitor_id,omitempty"`
	Time          time.Time          `json:"time"`
	Fill          *paper.Fill        `json:"fill,omitempty"`
	Position      *core.Position     `json:"position,omitempty"`
	Leaderboard   []LeaderboardEntry `json:"leaderboard,omitempty"`
	Elimination   *Elimination       `json:"elimination,omitempty"`
	Alert         *Alert             `json:"alert,omitempty"`
	Result        *Result            `json:"result,omitempty"`
}

// Observer receives competition events. OnEvent is called synchronously,
// outside the engine lock, so it may query the engine but should not block.
type Observer interface {
	OnEvent(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

func (f ObserverFunc) OnEvent(ev Event) { f(ev) }

// ChannelSink buffers events on a channel for asynchronous consumers.
// Events arriving while the buffer is full are dropped and counted.
type ChannelSink struct {
	ch      chan Event
	dropped atomic.Int64
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(size int) *ChannelSink {
	if size < 1 {
		size = 1
	}
	return &ChannelSink{ch: make(chan Event, size)}
}

func (s *ChannelSink) OnEvent(ev Event) {
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// Dropped returns the number of events lost to a full buffer.
func (s *ChannelSink) Dropped() int64 {
	return s.dropped.Load()
}

var (
	_ Observer = ObserverFunc(nil)
	_ Observer = (*ChannelSink)(nil)
)
