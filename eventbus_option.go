package toolweave

import "github.com/toolweave/toolweave/internal/eventbus"

// WithEventBus sets the event bus component.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(b *Broker) {
		b.eventBus = bus
	}
}
