package market

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/newthinker/arena/internal/core"
	"go.uber.org/zap"
)

// SimulatedConfig configures the random-walk feed.
type SimulatedConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	Volatility   float64       `mapstructure:"volatility"` // std dev of a step, in cents
	Spread       float64       `mapstructure:"spread"`     // mean yes+no premium over par, in cents
	InitialPrice float64       `mapstructure:"initial_price"`
	Warmup       int           `mapstructure:"warmup"` // steps generated at subscription time
	Seed         int64         `mapstructure:"seed"`
}

// DefaultSimulatedConfig returns the defaults used by local runs.
func DefaultSimulatedConfig() SimulatedConfig {
	return SimulatedConfig{
		Interval:     250 * time.Millisecond,
		Volatility:   1.5,
		Spread:       2,
		InitialPrice: 50,
		Warmup:       60,
	}
}

// SimulatedFeed drives an Aggregator with a seeded random walk per ticker.
type SimulatedFeed struct {
	mu     sync.Mutex
	agg    *Aggregator
	cfg    SimulatedConfig
	rng    *rand.Rand
	prices map[string]float64
	clock  func() time.Time
	logger *zap.Logger

	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewSimulatedFeed creates a feed and attaches it to agg.
func NewSimulatedFeed(agg *Aggregator, cfg SimulatedConfig, logger ...*zap.Logger) *SimulatedFeed {
	def := DefaultSimulatedConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Volatility <= 0 {
		cfg.Volatility = def.Volatility
	}
	if cfg.InitialPrice <= 0 {
		cfg.InitialPrice = def.InitialPrice
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}

	f := &SimulatedFeed{
		agg:    agg,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		prices: make(map[string]float64),
		clock:  time.Now,
		logger: l,
	}
	agg.Attach(f)
	return f
}

// Connect starts generating updates every Interval.
func (f *SimulatedFeed) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return nil
	}
	f.running = true
	f.stop = make(chan struct{})

	f.wg.Add(1)
	go f.run(f.stop)

	f.logger.Info("simulated feed connected",
		zap.Duration("interval", f.cfg.Interval),
		zap.Int64("seed", f.cfg.Seed),
	)
	return nil
}

func (f *SimulatedFeed) run(stop <-chan struct{}) {
	defer f.wg.Done()

	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			f.Step()
		}
	}
}

// Disconnect stops the generator. Safe to call more than once.
func (f *SimulatedFeed) Disconnect() error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = false
	close(f.stop)
	f.mu.Unlock()

	f.wg.Wait()
	f.logger.Info("simulated feed disconnected")
	return nil
}

// SubscribeTickers seeds new tickers and pre-generates Warmup steps of history.
func (f *SimulatedFeed) SubscribeTickers(ctx context.Context, tickers []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, t := range tickers {
		if _, ok := f.prices[t]; ok {
			continue
		}
		f.prices[t] = f.cfg.InitialPrice
		for i := 0; i < f.cfg.Warmup; i++ {
			f.stepLocked(t)
		}
	}
	return nil
}

// Step advances every seeded ticker by one update. Tickers are stepped in
// subscription order so a fixed seed replays the same path.
func (f *SimulatedFeed) Step() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, t := range f.agg.Subscribed() {
		if _, ok := f.prices[t]; ok {
			f.stepLocked(t)
		}
	}
}

func (f *SimulatedFeed) stepLocked(ticker string) {
	p := f.prices[ticker]
	// weak pull toward par keeps the walk away from the bounds
	p += f.rng.NormFloat64()*f.cfg.Volatility + (50-p)*0.01
	p = math.Max(2, math.Min(98, p))
	f.prices[ticker] = p

	now := f.clock()
	half := f.cfg.Spread / 2
	yesAsk := clampPrice(math.Round(p + half + f.rng.NormFloat64()*half))
	noAsk := clampPrice(math.Round(100 - p + half + f.rng.NormFloat64()*half))

	// books carry asks, cheapest first
	f.agg.ApplyBook(BookUpdate{
		Ticker: ticker,
		Yes:    levels(yesAsk, 1, f.rng),
		No:     levels(noAsk, 1, f.rng),
		Time:   now,
	})
	f.agg.ApplyTrade(TradeUpdate{
		Ticker:   ticker,
		Side:     core.SideYes,
		Price:    math.Round(p*100) / 100,
		Quantity: 1 + f.rng.Int63n(50),
		Time:     now,
	})
}

// levels builds a three-level book walking away from best by step cents.
func levels(best, step float64, rng *rand.Rand) []core.Quote {
	out := make([]core.Quote, 0, 3)
	for i := 0; i < 3; i++ {
		price := best + float64(i)*step
		if price < 1 || price > 99 {
			break
		}
		out = append(out, core.Quote{Price: price, Quantity: 10 + rng.Int63n(90)})
	}
	return out
}

func clampPrice(p float64) float64 {
	return math.Max(1, math.Min(99, p))
}
