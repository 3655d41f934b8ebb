// Package pubsub wires the domain event bus. It reuses the teacher's
// watermill-based dispatcher shape (internal/adapter/pubsub/dispatcher.go in
// the source tree this module was adapted from) but swaps the AMQP
// publisher/subscriber pair for watermill's in-process gochannel
// implementation: incident state changes and cascade decisions never need
// to cross a process boundary, only to decouple C7/C8 from their listeners
// within one binary.
package pubsub

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// NewGoChannel builds the single in-process pub/sub backbone for domain
// events. Persistent=false: a missed subscriber on a routing key simply
// never sees that event. The only subscriber is the cascade engine, which
// subscribes when its Start goroutine runs (launched from an fx OnStart
// hook); an event published before that subscription is not delivered.
func NewGoChannel(logger *slog.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            256,
		Persistent:                     false,
		BlockPublishUntilSubscriberAck: false,
	}, watermill.NewSlogLogger(logger))
}

// Bus is the narrow interface the domain layer depends on, mirroring the
// message.Publisher/Subscriber pairing already used by watermill.
type Bus interface {
	message.Publisher
	message.Subscriber
}
