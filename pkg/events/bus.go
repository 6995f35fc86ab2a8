package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog/log"
)

// TopicUI is the topic display components subscribe to.
const TopicUI = "ui"

// Bus is an in-process event feed: components publish through the embedded
// PublisherManager, presentation code subscribes to TopicUI.
type Bus struct {
	*PublisherManager
	pubSub *gochannel.GoChannel
}

type BusOption func(*busConfig)

type busConfig struct {
	logger watermill.LoggerAdapter
}

func WithLogger(logger watermill.LoggerAdapter) BusOption {
	return func(c *busConfig) {
		c.logger = logger
	}
}

func NewBus(options ...BusOption) *Bus {
	cfg := &busConfig{logger: watermill.NopLogger{}}
	for _, o := range options {
		o(cfg)
	}

	// blocking until ack keeps events in publish order for the subscriber
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		BlockPublishUntilSubscriberAck: true,
	}, cfg.logger)

	pm := NewPublisherManager()
	pm.SubscribePublisher(TopicUI, pubSub)

	return &Bus{PublisherManager: pm, pubSub: pubSub}
}

// Subscribe returns the raw message channel for TopicUI. Every message must be acked.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubSub.Subscribe(ctx, TopicUI)
}

// Listen decodes events from TopicUI and calls handler for each until ctx is done or the
// bus is closed.
func (b *Bus) Listen(ctx context.Context, handler func(Event)) error {
	ch, err := b.Subscribe(ctx)
	if err != nil {
		return err
	}
	return Handle(ctx, ch, handler)
}

// Handle consumes a channel returned by Subscribe. Subscribing first and handling in a
// goroutine guarantees no event published after Subscribe returns is missed.
func Handle(ctx context.Context, ch <-chan *message.Message, handler func(Event)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			e, err := Decode(msg)
			if err != nil {
				log.Warn().Err(err).Str("message_id", msg.UUID).Msg("could not decode event")
			} else {
				handler(e)
			}
			msg.Ack()
		}
	}
}

func (b *Bus) Close() error {
	log.Debug().Msg("Closing event bus")
	return b.pubSub.Close()
}
