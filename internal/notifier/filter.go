package notifier

import (
	"context"

	"github.com/newthinker/arena/internal/competition"
)

// filtered drops events a notifier was not configured for.
type filtered struct {
	Notifier
	types map[competition.EventType]bool
}

// WithEvents restricts n to the given event types. With no types n is
// returned unchanged.
func WithEvents(n Notifier, types ...competition.EventType) Notifier {
	if len(types) == 0 {
		return n
	}
	set := make(map[competition.EventType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return &filtered{Notifier: n, types: set}
}

func (f *filtered) Send(ctx context.Context, ev competition.Event) error {
	if !f.types[ev.Type] {
		return nil
	}
	return f.Notifier.Send(ctx, ev)
}

func (f *filtered) SendBatch(ctx context.Context, events []competition.Event) error {
	kept := make([]competition.Event, 0, len(events))
	for _, ev := range events {
		if f.types[ev.Type] {
			kept = append(kept, ev)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return f.Notifier.SendBatch(ctx, kept)
}
