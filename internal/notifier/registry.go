package notifier

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/newthinker/arena/internal/competition"
	"github.com/newthinker/arena/internal/core"
	"go.uber.org/zap"
)

// DefaultEvents are forwarded when no filter is set.
var DefaultEvents = []competition.EventType{
	competition.EventCompetitionStarted,
	competition.EventCompetitionFinished,
	competition.EventCompetitorEliminated,
	competition.EventCompetitorAlert,
}

const (
	queueSize   = 64
	sendTimeout = 30 * time.Second
)

// Registry manages notifier instances. It is also a competition.Observer:
// matching events are queued and delivered in order by a background worker
// so the engine never waits on the network.
type Registry struct {
	mu        sync.RWMutex
	notifiers map[string]Notifier
	filter    map[competition.EventType]bool
	logger    *zap.Logger

	qmu    sync.Mutex
	queue  chan competition.Event
	closed bool
	wg     sync.WaitGroup
}

// NewRegistry creates a new notifier registry
func NewRegistry(logger ...*zap.Logger) *Registry {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}

	r := &Registry{
		notifiers: make(map[string]Notifier),
		logger:    l,
	}
	r.Watch(DefaultEvents...)
	return r
}

// Watch replaces the set of event types forwarded by OnEvent.
func (r *Registry) Watch(types ...competition.EventType) {
	filter := make(map[competition.EventType]bool, len(types))
	for _, t := range types {
		filter[t] = true
	}
	r.mu.Lock()
	r.filter = filter
	r.mu.Unlock()
}

// Register adds a notifier to the registry
func (r *Registry) Register(n Notifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := n.Name()
	if _, exists := r.notifiers[name]; exists {
		return fmt.Errorf("notifier %s already registered", name)
	}

	r.notifiers[name] = n
	return nil
}

// Get retrieves a notifier by name
func (r *Registry) Get(name string) (Notifier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, exists := r.notifiers[name]
	if !exists {
		return nil, fmt.Errorf("notifier %s not found", name)
	}
	return n, nil
}

// GetAll returns all registered notifiers sorted by name
func (r *Registry) GetAll() []Notifier {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Notifier, 0, len(r.notifiers))
	for _, n := range r.notifiers {
		result = append(result, n)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

// NotifyAll sends an event to all registered notifiers
func (r *Registry) NotifyAll(ctx context.Context, ev competition.Event) map[string]error {
	errs := make(map[string]error)
	for _, n := range r.GetAll() {
		if err := n.Send(ctx, ev); err != nil {
			errs[n.Name()] = core.WrapError(core.ErrNotifierFailed, err)
		}
	}
	return errs
}

// NotifyAllBatch sends several events to all registered notifiers
func (r *Registry) NotifyAllBatch(ctx context.Context, events []competition.Event) map[string]error {
	errs := make(map[string]error)
	for _, n := range r.GetAll() {
		if err := n.SendBatch(ctx, events); err != nil {
			errs[n.Name()] = core.WrapError(core.ErrNotifierFailed, err)
		}
	}
	return errs
}

func (r *Registry) wants(t competition.EventType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filter[t]
}

// OnEvent queues a watched event for delivery. Events are dropped with a
// warning when the queue is full or after Close.
func (r *Registry) OnEvent(ev competition.Event) {
	if !r.wants(ev.Type) {
		return
	}

	r.qmu.Lock()
	defer r.qmu.Unlock()

	if r.closed {
		return
	}
	if r.queue == nil {
		r.queue = make(chan competition.Event, queueSize)
		r.wg.Add(1)
		go r.deliver(r.queue)
	}

	select {
	case r.queue <- ev:
	default:
		r.logger.Warn("notification dropped, queue full",
			zap.String("event", string(ev.Type)),
			zap.String("competition", ev.CompetitionID),
		)
	}
}

func (r *Registry) deliver(queue <-chan competition.Event) {
	defer r.wg.Done()

	for ev := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		for name, err := range r.NotifyAll(ctx, ev) {
			r.logger.Error("notification failed",
				zap.String("notifier", name),
				zap.String("event", string(ev.Type)),
				zap.Error(err),
			)
		}
		cancel()
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (r *Registry) Close() {
	r.qmu.Lock()
	if r.closed {
		r.qmu.Unlock()
		return
	}
	r.closed = true
	queue := r.queue
	r.qmu.Unlock()

	if queue != nil {
		close(queue)
	}
	r.wg.Wait()
}

var _ competition.Observer = (*Registry)(nil)
