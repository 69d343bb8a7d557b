package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/arena/internal/alert"
	"github.com/newthinker/arena/internal/competition"
	"github.com/newthinker/arena/internal/config"
	"github.com/newthinker/arena/internal/core"
	"github.com/newthinker/arena/internal/market"
	"github.com/newthinker/arena/internal/metrics"
	"github.com/newthinker/arena/internal/notifier"
	"github.com/newthinker/arena/internal/storage/archive"
	"github.com/newthinker/arena/internal/storage/result"
	"github.com/newthinker/arena/internal/strategy"
	"github.com/newthinker/arena/internal/strategy/builtin"
	"go.uber.org/zap"
)

// saveTimeout bounds persisting a finished result.
const saveTimeout = 30 * time.Second

// Feed is the market data source of one competition.
type Feed struct {
	Market *market.Aggregator
	Client market.StreamingClient
}

// FeedFactory builds a fresh feed. seed only applies to simulated feeds.
type FeedFactory func(seed int64) Feed

// StrategyInfo describes a registered strategy.
type StrategyInfo struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	Ranges      map[string]core.ParamRange `json:"ranges,omitempty"`
}

// Option configures an Arena.
type Option func(*Arena)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Arena) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMetrics instruments competitions and evolution runs.
func WithMetrics(m *metrics.Registry) Option {
	return func(a *Arena) { a.metrics = m }
}

// WithResultStore replaces the in-memory result store.
func WithResultStore(s result.Store) Option {
	return func(a *Arena) {
		if s != nil {
			a.results = s
		}
	}
}

// WithArchive writes every finished result to cold storage.
func WithArchive(s archive.Storage) Option {
	return func(a *Arena) {
		if s != nil {
			a.archiver = archive.NewResultArchiver(s, a.logger)
		}
	}
}

// WithNotifiers forwards competition events to external channels.
func WithNotifiers(r *notifier.Registry) Option {
	return func(a *Arena) { a.notifiers = r }
}

// WithAlerts evaluates standings alert rules on every leaderboard update.
// Fired alerts are logged, counted and forwarded to the notifiers.
func WithAlerts(cfg config.AlertsConfig) Option {
	return func(a *Arena) { a.alertCfg = cfg }
}

// WithStrategies replaces the builtin strategy registry.
func WithStrategies(r *strategy.Registry) Option {
	return func(a *Arena) {
		if r != nil {
			a.strategies = r
		}
	}
}

// WithFeedFactory replaces the feed built from configuration.
func WithFeedFactory(f FeedFactory) Option {
	return func(a *Arena) {
		if f != nil {
			a.newFeed = f
		}
	}
}

// Arena is the main application orchestrator. It owns every competition
// created through it and the collaborators they share.
type Arena struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *metrics.Registry
	strategies *strategy.Registry
	results    result.Store
	archiver   *archive.ResultArchiver
	notifiers  *notifier.Registry
	alertCfg   config.AlertsConfig
	alerts     *alert.Evaluator
	newFeed    FeedFactory

	mu           sync.RWMutex
	competitions map[string]*competition.Engine
	order        []string
}

// New creates an Arena. Options are applied in order, so WithLogger should
// come before WithArchive for the archiver to share the logger.
func New(cfg *config.Config, opts ...Option) *Arena {
	if cfg == nil {
		cfg = config.Defaults()
	}

	a := &Arena{
		cfg:          cfg,
		logger:       zap.NewNop(),
		results:      result.NewMemoryStore(cfg.Server.MaxJobs),
		competitions: make(map[string]*competition.Engine),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.strategies == nil {
		a.strategies = builtin.NewRegistry(a.logger)
	}
	if a.newFeed == nil {
		a.newFeed = ConfiguredFeed(cfg.Feed, a.logger)
	}
	if len(a.alertCfg.Rules) > 0 {
		a.initAlerts()
	}
	return a
}

func (a *Arena) initAlerts() {
	ev, err := alert.NewEvaluator(a.alertCfg.Rules, competition.ObserverFunc(a.onAlert), a.logger)
	if err != nil {
		a.logger.Error("alerts disabled", zap.Error(err))
		return
	}
	if a.alertCfg.Cooldown > 0 {
		ev.SetCooldown(a.alertCfg.Cooldown)
	}
	a.alerts = ev
}

// onAlert receives alerts fired by the evaluator.
func (a *Arena) onAlert(ev competition.Event) {
	if ev.Alert != nil {
		a.metrics.RecordAlert(ev.Alert.Severity)
	}
	if a.notifiers != nil {
		a.notifiers.OnEvent(ev)
	}
}

// ConfiguredFeed returns a factory for the feed described by cfg.
func ConfiguredFeed(cfg config.FeedConfig, logger *zap.Logger) FeedFactory {
	return func(seed int64) Feed {
		agg := market.NewAggregator(market.DefaultAggregatorConfig(), logger)
		if cfg.Type == config.FeedWebsocket {
			ws := market.DefaultWSConfig()
			ws.URL = cfg.URL
			ws.PingInterval = cfg.PingInterval
			ws.ReadTimeout = cfg.ReadTimeout
			ws.WriteTimeout = cfg.WriteTimeout
			return Feed{Market: agg, Client: market.NewWSClient(agg, ws, logger)}
		}
		return Feed{Market: agg, Client: market.NewSimulatedFeed(agg, simulatedConfig(cfg, seed), logger)}
	}
}

// SimulatedFeed returns a factory that always builds a random-walk feed.
func SimulatedFeed(cfg config.FeedConfig, logger *zap.Logger) FeedFactory {
	return func(seed int64) Feed {
		agg := market.NewAggregator(market.DefaultAggregatorConfig(), logger)
		return Feed{Market: agg, Client: market.NewSimulatedFeed(agg, simulatedConfig(cfg, seed), logger)}
	}
}

func simulatedConfig(cfg config.FeedConfig, seed int64) market.SimulatedConfig {
	if seed == 0 {
		seed = cfg.Seed
	}
	return market.SimulatedConfig{
		Interval:     cfg.Interval,
		Volatility:   cfg.Volatility,
		Spread:       cfg.Spread,
		InitialPrice: cfg.InitialPrice,
		Warmup:       cfg.Warmup,
		Seed:         seed,
	}
}

// Strategies returns the strategy registry.
func (a *Arena) Strategies() *strategy.Registry {
	return a.strategies
}

// StrategyInfos describes every registered strategy in name order.
func (a *Arena) StrategyInfos() []StrategyInfo {
	names := a.strategies.Names()
	infos := make([]StrategyInfo, 0, len(names))
	for _, name := range names {
		info := StrategyInfo{Name: name}
		if s, err := a.strategies.New(name, nil); err == nil {
			info.Description = s.Description()
		}
		if ranges, ok := a.strategies.Ranges(name); ok {
			info.Ranges = ranges
		}
		infos = append(infos, info)
	}
	return infos
}

// Results returns the result store.
func (a *Arena) Results() result.Store {
	return a.results
}

// CreateCompetition builds a competition from spec and registers its
// competitors. The competition stays idle until Start.
func (a *Arena) CreateCompetition(spec config.CompetitionSpec) (*competition.Engine, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	defaults := a.cfg.Competition
	cfg := competition.Config{
		ID:                   uuid.NewString(),
		Name:                 spec.Name,
		Mode:                 competition.Mode(spec.Mode),
		Duration:             spec.Duration,
		EliminationThreshold: spec.EliminationThreshold,
		Markets:              spec.Markets,
		StartingBalance:      spec.StartingBalance,
		Weights:              defaults.Weights,
		TickInterval:         defaults.TickInterval,
		MinSignalStrength:    defaults.MinSignalStrength,
		MinSignalConfidence:  defaults.MinSignalConfidence,
	}
	if cfg.StartingBalance == 0 {
		cfg.StartingBalance = defaults.StartingBalance
	}

	e, err := a.newEngine(cfg, a.newFeed(a.cfg.Feed.Seed))
	if err != nil {
		return nil, err
	}
	for _, cs := range spec.Competitors {
		if err := a.register(e, cs); err != nil {
			return nil, fmt.Errorf("competitor %s: %w", cs.ID, err)
		}
	}

	a.mu.Lock()
	a.competitions[e.ID()] = e
	a.order = append(a.order, e.ID())
	a.mu.Unlock()

	a.logger.Info("competition created",
		zap.String("competition", e.ID()),
		zap.String("name", spec.Name),
		zap.Int("competitors", len(spec.Competitors)),
	)
	return e, nil
}

func (a *Arena) newEngine(cfg competition.Config, feed Feed) (*competition.Engine, error) {
	opts := []competition.Option{competition.WithObserver(competition.ObserverFunc(a.onEvent))}
	if a.archiver != nil {
		opts = append(opts, competition.WithObserver(a.archiver))
	}
	if a.notifiers != nil {
		opts = append(opts, competition.WithObserver(a.notifiers))
	}
	if a.alerts != nil {
		opts = append(opts, competition.WithObserver(a.alerts))
	}

	return competition.NewEngine(cfg, competition.Dependencies{
		Client:  feed.Client,
		Market:  feed.Market,
		Logger:  a.logger,
		Metrics: a.metrics,
	}, opts...)
}

// onEvent persists finished results.
func (a *Arena) onEvent(ev competition.Event) {
	if ev.Type != competition.EventCompetitionFinished || ev.Result == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := a.results.Save(ctx, *ev.Result); err != nil {
		a.logger.Error("failed to save result",
			zap.String("competition", ev.CompetitionID),
			zap.Error(err),
		)
	}
}

// Competition returns a competition by id.
func (a *Arena) Competition(id string) (*competition.Engine, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	e, ok := a.competitions[id]
	if !ok {
		return nil, core.WrapError(core.ErrCompetitionNotFound, fmt.Errorf("%q", id))
	}
	return e, nil
}

// Competitions reports every competition in creation order.
func (a *Arena) Competitions() []competition.StatusReport {
	a.mu.RLock()
	engines := make([]*competition.Engine, 0, len(a.order))
	for _, id := range a.order {
		engines = append(engines, a.competitions[id])
	}
	a.mu.RUnlock()

	reports := make([]competition.StatusReport, len(engines))
	for i, e := range engines {
		reports[i] = e.Status()
	}
	return reports
}

// RegisterCompetitor builds the competitor's strategies and registers it.
func (a *Arena) RegisterCompetitor(id string, spec config.CompetitorSpec) error {
	e, err := a.Competition(id)
	if err != nil {
		return err
	}
	return a.register(e, spec)
}

func (a *Arena) register(e *competition.Engine, spec config.CompetitorSpec) error {
	if spec.ID == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("competitor id required"))
	}
	if len(spec.Strategies) == 0 {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("competitor %q has no strategies", spec.ID))
	}

	strategies := make([]strategy.Strategy, 0, len(spec.Strategies))
	for _, ss := range spec.Strategies {
		s, err := a.strategies.New(ss.Name, ss.Params)
		if err != nil {
			return err
		}
		strategies = append(strategies, s)
	}

	// The competition supplies the starting balance unless the competitor overrides it.
	base := a.cfg.Competition.Paper
	base.StartingBalance = 0
	return e.RegisterCompetitor(competition.CompetitorConfig{
		ID:         spec.ID,
		Name:       spec.Name,
		Strategies: strategies,
		Paper:      spec.Paper.Merge(base),
		Disabled:   spec.Disabled,
	})
}

// UnregisterCompetitor removes a competitor from an idle competition.
func (a *Arena) UnregisterCompetitor(id, competitorID string) error {
	e, err := a.Competition(id)
	if err != nil {
		return err
	}
	removed, err := e.UnregisterCompetitor(competitorID)
	if err != nil {
		return err
	}
	if !removed {
		return core.WrapError(core.ErrCompetitorNotFound, fmt.Errorf("%q", competitorID))
	}
	return nil
}

// Start starts a competition.
func (a *Arena) Start(ctx context.Context, id string) error {
	e, err := a.Competition(id)
	if err != nil {
		return err
	}
	return e.Start(ctx)
}

// Pause pauses a running competition.
func (a *Arena) Pause(id string) error {
	e, err := a.Competition(id)
	if err != nil {
		return err
	}
	if !e.Pause() {
		return transitionError(e.Status().Status)
	}
	return nil
}

// Resume resumes a paused competition.
func (a *Arena) Resume(id string) error {
	e, err := a.Competition(id)
	if err != nil {
		return err
	}
	if !e.Resume() {
		return transitionError(e.Status().Status)
	}
	return nil
}

func transitionError(s competition.Status) error {
	switch s {
	case competition.StatusFinished:
		return core.ErrCompetitionFinished
	case competition.StatusIdle:
		return core.ErrNotStarted
	default:
		return core.WrapError(core.ErrCompetitionStarted, fmt.Errorf("competition is %s", s))
	}
}

// Stop finishes a competition and returns its result.
func (a *Arena) Stop(ctx context.Context, id string) (*competition.Result, error) {
	e, err := a.Competition(id)
	if err != nil {
		return nil, err
	}
	return e.Finish(ctx)
}

// Leaderboard returns a competition's current ranking.
func (a *Arena) Leaderboard(id string) ([]competition.LeaderboardEntry, error) {
	e, err := a.Competition(id)
	if err != nil {
		return nil, err
	}
	return e.Leaderboard(), nil
}

// Status returns a competition's lifecycle state.
func (a *Arena) Status(id string) (competition.StatusReport, error) {
	e, err := a.Competition(id)
	if err != nil {
		return competition.StatusReport{}, err
	}
	return e.Status(), nil
}

// Competitor returns one competitor's detail.
func (a *Arena) Competitor(id, competitorID string) (competition.CompetitorDetail, error) {
	e, err := a.Competition(id)
	if err != nil {
		return competition.CompetitorDetail{}, err
	}
	d, ok := e.Competitor(competitorID)
	if !ok {
		return competition.CompetitorDetail{}, core.WrapError(core.ErrCompetitorNotFound, fmt.Errorf("%q", competitorID))
	}
	return d, nil
}

// Result returns the final result of a finished competition.
func (a *Arena) Result(id string) (*competition.Result, error) {
	e, err := a.Competition(id)
	if err != nil {
		return nil, err
	}
	res := e.Result()
	if res == nil {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("competition %s has not finished", id))
	}
	return res, nil
}

// Close finishes every active competition and drains pending notifications.
func (a *Arena) Close(ctx context.Context) error {
	a.mu.RLock()
	engines := make([]*competition.Engine, 0, len(a.competitions))
	for _, id := range a.order {
		engines = append(engines, a.competitions[id])
	}
	a.mu.RUnlock()

	var firstErr error
	for _, e := range engines {
		switch e.Status().Status {
		case competition.StatusRunning, competition.StatusPaused:
			if _, err := e.Finish(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	if a.notifiers != nil {
		a.notifiers.Close()
	}
	return firstErr
}
