package event

import (
	"context"
	"fmt"

	"github.com/twingraph/twingraph/config"
)

// Bus carries simulator lifecycle events (execution.started, node.finished,
// execution.finished). The original system's websocket layer subscribes
// here; so can anything else.
type Bus interface {
	Publish(topic string, payload any) error
	Subscribe(ctx context.Context, topic string, handler func(payload any))
}

// NewInProcBus returns a new in-memory bus. Used when event config
// driver=="memory" or omitted.
func NewInProcBus() *WatermillBus {
	return NewWatermillInMemBus()
}

// NewBusFromConfig returns a Bus based on config. Supported: memory
// (default), nats (with url). Unknown drivers fail cleanly.
func NewBusFromConfig(cfg *config.EventConfig) (Bus, error) {
	if cfg == nil || cfg.Driver == "" || cfg.Driver == "memory" {
		return NewWatermillInMemBus(), nil
	}
	switch cfg.Driver {
	case "nats":
		if cfg.URL == "" {
			return nil, fmt.Errorf("NATS driver requires url")
		}
		return NewWatermillNATSBus("twingraph", "twingraph-client", cfg.URL), nil
	default:
		return nil, fmt.Errorf("unsupported event bus driver: %s", cfg.Driver)
	}
}
