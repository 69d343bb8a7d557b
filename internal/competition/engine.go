package competition

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/arena/internal/core"
	"github.com/newthinker/arena/internal/market"
	"github.com/newthinker/arena/internal/metrics"
	"github.com/newthinker/arena/internal/paper"
	"github.com/newthinker/arena/internal/strategy"
	"go.uber.org/zap"
)

// Tick loop names used for metrics.
const (
	loopState    = "state"
	loopAnalysis = "analysis"
)

// fallbackPrice is used when the order book has no quote on the signal side.
const fallbackPrice = 50.0

// Dependencies are the collaborators an engine needs.
type Dependencies struct {
	Client    market.StreamingClient // optional; connected on Start, disconnected on Finish
	Market    MarketData
	NewTrader TraderFactory // defaults to a paper engine marked against Market
	Logger    *zap.Logger
	Metrics   *metrics.Registry
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithObserver subscribes an observer at construction.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observers = append(e.observers, o)
	}
}

type competitor struct {
	cfg        CompetitorConfig
	settings   paper.Settings
	trader     Trader
	strategies []strategy.Strategy
	state      CompetitorState
}

// Engine runs one competition.
type Engine struct {
	cfg     Config
	market  MarketData
	client  market.StreamingClient
	factory TraderFactory
	logger  *zap.Logger
	metrics *metrics.Registry
	clock   func() time.Time

	mu          sync.Mutex
	status      Status
	competitors []*competitor
	byID        map[string]*competitor
	leaderboard []LeaderboardEntry
	prevRanks   map[string]int
	startedAt   time.Time
	endedAt     time.Time
	result      *Result

	runCtx    context.Context
	runCancel context.CancelFunc
	stop      chan struct{}
	loopDone  chan struct{}
	done      chan struct{}
	deadline  *time.Timer
	closeFeed sync.Once

	outboxMu    sync.Mutex
	outbox      []Event
	dispatching bool

	obsMu     sync.RWMutex
	observers []Observer
}

// NewEngine validates cfg and creates an idle engine.
func NewEngine(cfg Config, deps Dependencies, opts ...Option) (*Engine, error) {
	if deps.Market == nil {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("market data source required"))
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := deps.Logger
	if l == nil {
		l = zap.NewNop()
	}

	e := &Engine{
		cfg:       cfg,
		market:    deps.Market,
		client:    deps.Client,
		factory:   deps.NewTrader,
		logger:    l.With(zap.String("competition", cfg.ID)),
		metrics:   deps.Metrics,
		clock:     time.Now,
		status:    StatusIdle,
		byID:      make(map[string]*competitor),
		prevRanks: make(map[string]int),
		done:      make(chan struct{}),
	}
	if e.factory == nil {
		quotes := deps.Market
		e.factory = func(s paper.Settings) Trader {
			return paper.New(s, quotes, paper.WithClock(e.now))
		}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) now() time.Time {
	return e.clock()
}

// ID returns the competition id.
func (e *Engine) ID() string {
	return e.cfg.ID
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Subscribe adds an observer for all subsequent events.
func (e *Engine) Subscribe(o Observer) {
	e.obsMu.Lock()
	e.observers = append(e.observers, o)
	e.obsMu.Unlock()
}

// Done is closed when the competition finishes.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

func (e *Engine) emit(ev Event) {
	ev.CompetitionID = e.cfg.ID
	if ev.Time.IsZero() {
		ev.Time = e.now()
	}
	e.outboxMu.Lock()
	e.outbox = append(e.outbox, ev)
	e.outboxMu.Unlock()
}

// flush delivers queued events. Callers must not hold e.mu.
//
// One goroutine delivers at a time and drains the outbox until it is empty,
// so observers see events in emit order and never concurrently. A flush that
// finds delivery in progress returns at once; its events are picked up by
// the active dispatcher. Observers may therefore call back into the engine.
func (e *Engine) flush() {
	e.outboxMu.Lock()
	if e.dispatching {
		e.outboxMu.Unlock()
		return
	}
	e.dispatching = true
	e.outboxMu.Unlock()

	for {
		e.outboxMu.Lock()
		events := e.outbox
		e.outbox = nil
		if len(events) == 0 {
			e.dispatching = false
			e.outboxMu.Unlock()
			return
		}
		e.outboxMu.Unlock()

		e.obsMu.RLock()
		observers := make([]Observer, len(e.observers))
		copy(observers, e.observers)
		e.obsMu.RUnlock()

		for _, ev := range events {
			for _, o := range observers {
				o.OnEvent(ev)
			}
		}
	}
}

// RegisterCompetitor adds a competitor with a fresh paper account.
func (e *Engine) RegisterCompetitor(cfg CompetitorConfig) error {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusIdle {
		return e.notIdleLocked()
	}
	if cfg.ID == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("competitor id required"))
	}
	if _, ok := e.byID[cfg.ID]; ok {
		return core.WrapError(core.ErrCompetitorExists, fmt.Errorf("competitor %q", cfg.ID))
	}
	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}

	base := paper.DefaultSettings()
	base.StartingBalance = e.cfg.StartingBalance
	settings := cfg.Paper.Merge(base)

	c := &competitor{
		cfg:        cfg,
		settings:   settings,
		trader:     e.factory(settings),
		strategies: append([]strategy.Strategy(nil), cfg.Strategies...),
		state: CompetitorState{
			ID:      cfg.ID,
			Name:    cfg.Name,
			Status:  CompetitorStopped,
			Balance: settings.StartingBalance,
			Equity:  settings.StartingBalance,
		},
	}
	id := cfg.ID
	c.trader.Subscribe(func(pe paper.Event) {
		e.forwardTrade(id, pe)
	})

	e.competitors = append(e.competitors, c)
	e.byID[id] = c

	e.logger.Info("competitor registered",
		zap.String("competitor", id),
		zap.Int("strategies", len(c.strategies)),
		zap.Float64("starting_balance", settings.StartingBalance),
	)
	e.emit(Event{Type: EventCompetitorRegistered, CompetitorID: id})
	return nil
}

func (e *Engine) notIdleLocked() error {
	if e.status == StatusFinished {
		return core.ErrCompetitionFinished
	}
	return core.ErrCompetitionStarted
}

func (e *Engine) forwardTrade(id string, pe paper.Event) {
	ev := Event{CompetitorID: id, Time: pe.Time}
	switch pe.Type {
	case paper.EventFill:
		fill := pe.Fill
		ev.Type = EventCompetitorTrade
		ev.Fill = &fill
	case paper.EventPositionOpened:
		pos := pe.Position
		ev.Type = EventCompetitorPositionOpened
		ev.Position = &pos
	case paper.EventPositionClosed:
		pos := pe.Position
		ev.Type = EventCompetitorPositionClosed
		ev.Position = &pos
	default:
		return
	}
	e.emit(ev)
}

// UnregisterCompetitor removes a competitor before the start.
// It reports false when id is unknown.
func (e *Engine) UnregisterCompetitor(id string) (bool, error) {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusIdle {
		return false, e.notIdleLocked()
	}
	if _, ok := e.byID[id]; !ok {
		return false, nil
	}

	delete(e.byID, id)
	for i, c := range e.competitors {
		if c.cfg.ID == id {
			e.competitors = append(e.competitors[:i], e.competitors[i+1:]...)
			break
		}
	}
	e.emit(Event{Type: EventCompetitorUnregistered, CompetitorID: id})
	return true, nil
}

// Start connects the feed, subscribes the markets and launches the tick loops.
// ctx bounds only the setup; the loops run until Finish.
func (e *Engine) Start(ctx context.Context) error {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusIdle {
		return e.notIdleLocked()
	}
	if len(e.competitors) < 2 {
		return core.WrapError(core.ErrTooFewCompetitors,
			fmt.Errorf("%d registered", len(e.competitors)))
	}

	if e.client != nil {
		if err := e.client.Connect(ctx); err != nil {
			return core.WrapError(core.ErrFeedFailed, err)
		}
	}
	if err := e.market.Subscribe(ctx, e.cfg.Markets); err != nil {
		// The engine stays idle, so a later Start reconnects and Finish
		// must still be able to disconnect.
		e.disconnectLocked()
		e.closeFeed = sync.Once{}
		return core.WrapError(core.ErrFeedFailed, err)
	}

	for _, c := range e.competitors {
		if !c.cfg.Disabled {
			c.state.Status = CompetitorRunning
		}
	}

	e.status = StatusRunning
	e.startedAt = e.now()
	e.runCtx, e.runCancel = context.WithCancel(context.Background())
	e.stop = make(chan struct{})
	e.loopDone = make(chan struct{})

	var deadline <-chan time.Time
	if e.cfg.Mode == ModeTimed {
		e.deadline = time.NewTimer(e.cfg.Duration)
		deadline = e.deadline.C
	}
	go e.run(e.stop, deadline)

	e.logger.Info("competition started",
		zap.String("mode", string(e.cfg.Mode)),
		zap.Strings("markets", e.cfg.Markets),
		zap.Int("competitors", len(e.competitors)),
	)
	e.metrics.RecordCompetition("started")
	e.emit(Event{Type: EventCompetitionStarted})
	return nil
}

func (e *Engine) run(stop <-chan struct{}, deadline <-chan time.Time) {
	defer close(e.loopDone)

	stateTicker := time.NewTicker(e.cfg.TickInterval)
	defer stateTicker.Stop()
	analysisTicker := time.NewTicker(e.cfg.TickInterval / 2)
	defer analysisTicker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-stateTicker.C:
			e.stateTick()
		case <-analysisTicker.C:
			e.analysisTick()
		case <-deadline:
			e.logger.Info("competition duration elapsed")
			e.mu.Lock()
			if e.status == StatusRunning || e.status == StatusPaused {
				e.finishLocked()
			}
			e.mu.Unlock()
			e.flush()
			return
		}
	}
}

// Pause halts analysis. The state loop keeps publishing.
func (e *Engine) Pause() bool {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusRunning {
		return false
	}
	e.status = StatusPaused
	for _, c := range e.competitors {
		if c.state.Status == CompetitorRunning {
			c.state.Status = CompetitorPaused
		}
	}
	e.logger.Info("competition paused")
	e.emit(Event{Type: EventCompetitionPaused})
	return true
}

// Resume restarts analysis after Pause.
func (e *Engine) Resume() bool {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusPaused {
		return false
	}
	e.status = StatusRunning
	for _, c := range e.competitors {
		if c.state.Status == CompetitorPaused {
			c.state.Status = CompetitorRunning
		}
	}
	e.logger.Info("competition resumed")
	e.emit(Event{Type: EventCompetitionResumed})
	return true
}

// Finish stops the competition and returns its result. Calling it again
// returns the same result without side effects.
func (e *Engine) Finish(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	switch e.status {
	case StatusIdle:
		e.mu.Unlock()
		return nil, core.ErrNotStarted
	case StatusFinished:
		res := e.result
		e.mu.Unlock()
		return res, nil
	}
	e.finishLocked()
	res := e.result
	loopDone := e.loopDone
	e.mu.Unlock()
	e.flush()

	select {
	case <-loopDone:
	case <-ctx.Done():
		return res, ctx.Err()
	}
	return res, nil
}

// finishLocked must be called with e.mu held from running or paused.
func (e *Engine) finishLocked() {
	close(e.stop)
	if e.deadline != nil {
		e.deadline.Stop()
	}
	e.runCancel()
	e.disconnectLocked()

	now := e.now()
	e.refreshLocked(now)
	e.leaderboard = buildLeaderboard(e.statesLocked(), e.prevRanks)
	e.applyRanksLocked()

	for _, c := range e.competitors {
		if c.state.Status != CompetitorEliminated {
			c.state.Status = CompetitorStopped
		}
	}

	e.status = StatusFinished
	e.endedAt = now
	e.result = e.buildResultLocked()
	close(e.done)

	fields := []zap.Field{zap.Duration("duration", e.result.Duration)}
	if e.result.Winner != nil {
		fields = append(fields,
			zap.String("winner", e.result.Winner.ID),
			zap.Float64("score", e.result.Winner.Score))
	}
	e.logger.Info("competition finished", fields...)
	e.metrics.RecordCompetition("finished")
	e.emit(Event{Type: EventCompetitionFinished, Result: e.result})
}

func (e *Engine) disconnectLocked() {
	if e.client == nil {
		return
	}
	e.closeFeed.Do(func() {
		if err := e.client.Disconnect(); err != nil {
			e.logger.Warn("market feed disconnect failed", zap.Error(err))
		}
	})
}

// analysisTick runs every running competitor's strategies against every market.
func (e *Engine) analysisTick() {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusRunning {
		return
	}
	start := time.Now()
	defer func() { e.metrics.RecordTick(loopAnalysis, time.Since(start).Seconds()) }()

	now := e.now()
	for _, ticker := range e.cfg.Markets {
		snap, ok := e.market.GetMarketData(ticker)
		if !ok {
			continue
		}
		for _, c := range e.competitors {
			if c.state.Status != CompetitorRunning {
				continue
			}
			e.analyzeLocked(c, snap, now)
		}
	}
}

func (e *Engine) analyzeLocked(c *competitor, snap core.MarketSnapshot, now time.Time) {
	actx := strategy.AnalysisContext{Snapshot: snap, Positions: c.trader.Positions(), Now: now}
	signals := strategy.Run(e.runCtx, c.strategies, actx, e.logger.With(zap.String("competitor", c.cfg.ID)))

	for _, sig := range signals {
		if sig.Strength < e.cfg.MinSignalStrength || sig.Confidence < e.cfg.MinSignalConfidence {
			e.metrics.RecordSignal("filtered")
			continue
		}
		e.metrics.RecordSignal("accepted")
		e.executeLocked(c, sig, snap)
	}
}

func (e *Engine) executeLocked(c *competitor, sig core.Signal, snap core.MarketSnapshot) {
	price := fallbackPrice
	if q, ok := snap.Book.Best(sig.Side); ok {
		price = q.Price
	}

	action := paper.ActionBuy
	if sig.Type == core.SignalSell {
		action = paper.ActionSell
	}

	req := paper.OrderRequest{
		Ticker:   sig.Ticker,
		Side:     sig.Side,
		Action:   action,
		Type:     paper.OrderTypeMarket,
		Quantity: int64(math.Ceil(sig.Strength / 100 * float64(c.settings.MaxTradeSize))),
		Price:    price,
	}

	if _, err := c.trader.SubmitOrder(e.runCtx, req); err != nil {
		result := "rejected"
		if !errors.Is(err, core.ErrOrderRejected) {
			result = "failed"
		}
		e.metrics.RecordOrder(result)
		e.logger.Debug("order not filled",
			zap.String("competitor", c.cfg.ID),
			zap.String("strategy", sig.Strategy),
			zap.String("ticker", req.Ticker),
			zap.String("side", string(req.Side)),
			zap.String("action", string(req.Action)),
			zap.Int64("quantity", req.Quantity),
			zap.Error(err),
		)
		return
	}
	e.metrics.RecordOrder("filled")
}

// stateTick refreshes states, republishes the leaderboard and applies elimination.
func (e *Engine) stateTick() {
	defer e.flush()
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusRunning && e.status != StatusPaused {
		return
	}
	start := time.Now()
	defer func() { e.metrics.RecordTick(loopState, time.Since(start).Seconds()) }()

	now := e.now()
	e.refreshLocked(now)
	e.leaderboard = buildLeaderboard(e.statesLocked(), e.prevRanks)
	e.applyRanksLocked()
	e.emit(Event{Type: EventLeaderboardUpdated, Leaderboard: copyEntries(e.leaderboard)})

	if e.cfg.Mode != ModeElimination || e.cfg.EliminationThreshold <= 0 {
		return
	}

	remaining := 0
	for _, c := range e.competitors {
		if c.state.Status == CompetitorEliminated {
			continue
		}
		if -c.state.PnLPercent >= e.cfg.EliminationThreshold {
			e.eliminateLocked(c, now)
			continue
		}
		remaining++
	}
	if remaining <= 1 {
		e.finishLocked()
	}
}

func (e *Engine) eliminateLocked(c *competitor, now time.Time) {
	at := now
	c.state.Status = CompetitorEliminated
	c.state.EliminatedAt = &at

	e.logger.Warn("competitor eliminated",
		zap.String("competitor", c.cfg.ID),
		zap.Float64("pnl_percent", c.state.PnLPercent),
		zap.Float64("threshold", e.cfg.EliminationThreshold),
	)
	e.metrics.RecordElimination()
	e.emit(Event{
		Type:         EventCompetitorEliminated,
		CompetitorID: c.cfg.ID,
		Time:         now,
		Elimination: &Elimination{
			Equity:     c.state.Equity,
			PnLPercent: c.state.PnLPercent,
			Threshold:  e.cfg.EliminationThreshold,
		},
	})
}

func (e *Engine) refreshLocked(now time.Time) {
	for _, c := range e.competitors {
		m := c.trader.Metrics()
		equity := c.trader.Equity()
		starting := c.settings.StartingBalance

		s := &c.state
		s.Balance = c.trader.Balance()
		s.Equity = equity
		s.PnL = equity - starting
		s.PnLPercent = 0
		if starting > 0 {
			s.PnLPercent = s.PnL / starting * 100
		}
		s.OpenPositions = m.OpenPositions
		s.TotalTrades = m.TotalTrades
		s.WinRate = m.WinRate
		s.SharpeRatio = m.SharpeRatio
		s.MaxDrawdownPercent = m.MaxDrawdownPercent
		s.Score = Score(*s, e.cfg.Weights)

		e.metrics.SetCompetitorScore(e.cfg.ID, c.cfg.ID, s.Score)
	}
}

func (e *Engine) applyRanksLocked() {
	for _, c := range e.competitors {
		c.state.Rank = 0
	}
	for _, entry := range e.leaderboard {
		e.byID[entry.CompetitorID].state.Rank = entry.Rank
	}
}

func (e *Engine) statesLocked() []CompetitorState {
	states := make([]CompetitorState, len(e.competitors))
	for i, c := range e.competitors {
		states[i] = c.state
	}
	return states
}

func (e *Engine) buildResultLocked() *Result {
	res := &Result{
		CompetitionID: e.cfg.ID,
		Name:          e.cfg.Name,
		Mode:          e.cfg.Mode,
		StartedAt:     e.startedAt,
		EndedAt:       e.endedAt,
		Duration:      e.endedAt.Sub(e.startedAt),
		Leaderboard:   copyEntries(e.leaderboard),
		Competitors:   e.statesLocked(),
	}

	if len(e.leaderboard) > 0 {
		winner := e.byID[e.leaderboard[0].CompetitorID].state
		res.Winner = &winner
	}

	for _, ticker := range e.cfg.Markets {
		summary := MarketSummary{Ticker: ticker}
		if snap, ok := e.market.GetMarketData(ticker); ok {
			summary.Volume = snap.Volume
			summary.PriceChange = snap.PriceChange
			summary.LastPrice = snap.LastPrice
		}
		res.Markets = append(res.Markets, summary)
		res.Stats.TotalVolume += summary.Volume
	}

	for i, s := range res.Competitors {
		res.Stats.TotalTrades += s.TotalTrades
		res.Stats.AverageReturn += s.PnLPercent
		if i == 0 || s.PnLPercent > res.Stats.BestReturn {
			res.Stats.BestReturn = s.PnLPercent
		}
		if i == 0 || s.PnLPercent < res.Stats.WorstReturn {
			res.Stats.WorstReturn = s.PnLPercent
		}
	}
	if n := len(res.Competitors); n > 0 {
		res.Stats.AverageReturn /= float64(n)
	}
	return res
}

// Status reports the lifecycle state and timing.
func (e *Engine) Status() StatusReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := StatusReport{
		ID:               e.cfg.ID,
		Name:             e.cfg.Name,
		Mode:             e.cfg.Mode,
		Status:           e.status,
		StartedAt:        e.startedAt,
		TotalCompetitors: len(e.competitors),
	}
	switch e.status {
	case StatusRunning, StatusPaused:
		r.Elapsed = e.now().Sub(e.startedAt)
	case StatusFinished:
		r.Elapsed = e.endedAt.Sub(e.startedAt)
	}
	if e.cfg.Mode == ModeTimed {
		remaining := e.cfg.Duration - r.Elapsed
		if remaining < 0 {
			remaining = 0
		}
		r.Remaining = &remaining
	}
	for _, c := range e.competitors {
		if c.state.Status == CompetitorRunning {
			r.RunningCompetitors++
		}
	}
	return r
}

// Leaderboard returns the ranking computed at the last state tick.
func (e *Engine) Leaderboard() []LeaderboardEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyEntries(e.leaderboard)
}

// Competitors returns every competitor state in registration order.
func (e *Engine) Competitors() []CompetitorState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statesLocked()
}

// Competitor returns detail for one competitor.
func (e *Engine) Competitor(id string) (CompetitorDetail, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.byID[id]
	if !ok {
		return CompetitorDetail{}, false
	}
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return CompetitorDetail{
		ID:         c.cfg.ID,
		Name:       c.cfg.Name,
		Strategies: names,
		Settings:   c.settings,
		State:      c.state,
		Positions:  c.trader.Positions(),
	}, true
}

// Result returns the final result, or nil before the competition finishes.
func (e *Engine) Result() *Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result
}

func copyEntries(entries []LeaderboardEntry) []LeaderboardEntry {
	if entries == nil {
		return nil
	}
	out := make([]LeaderboardEntry, len(entries))
	copy(out, entries)
	return out
}
