package notifier

import (
	"context"

	"github.com/newthinker/arena/internal/competition"
)

// Config holds notifier configuration
type Config struct {
	Type   string         `mapstructure:"type"`
	Params map[string]any `mapstructure:"params"`
}

// Notifier delivers competition events to an external channel.
type Notifier interface {
	// Name returns the unique identifier for this notifier
	Name() string

	// Init initializes the notifier with configuration
	Init(cfg Config) error

	// Send delivers a single event
	Send(ctx context.Context, ev competition.Event) error

	// SendBatch delivers several events at once
	SendBatch(ctx context.Context, events []competition.Event) error
}
