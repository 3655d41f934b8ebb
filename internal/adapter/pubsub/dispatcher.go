package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/antonmal/protectogram/internal/domain/event"
)

// EventDispatcher is the high-level contract the incident state machine and
// cascade engine publish through, staying agnostic of the transport
// implementation underneath (watermill's in-process gochannel today).
type EventDispatcher interface {
	Publish(ctx context.Context, ev event.Eventer) error
	Subscribe(ctx context.Context, routingKey string) (<-chan *message.Message, error)
}

type eventDispatcher struct {
	bus Bus
}

// NewEventDispatcher returns the interface instead of the pointer to the struct.
func NewEventDispatcher(bus Bus) EventDispatcher {
	return &eventDispatcher{bus: bus}
}

func (d *eventDispatcher) Publish(ctx context.Context, ev event.Eventer) error {
	if ev == nil {
		return fmt.Errorf("event dispatcher: cannot publish nil event")
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("event dispatcher: marshal failure: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("incident_id", ev.GetIncidentID().String())

	if err := d.bus.Publish(ev.GetRoutingKey(), msg); err != nil {
		return fmt.Errorf("event dispatcher: failed to publish to topic %s: %w", ev.GetRoutingKey(), err)
	}

	return nil
}

func (d *eventDispatcher) Subscribe(ctx context.Context, routingKey string) (<-chan *message.Message, error) {
	return d.bus.Subscribe(ctx, routingKey)
}
