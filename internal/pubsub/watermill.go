package pubsub

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"
)

// WatermillBroker is the single-process broker backed by watermill's GoChannel.
type WatermillBroker struct {
	pub    message.Publisher
	sub    message.Subscriber
	logger zerolog.Logger
}

func NewWatermillBroker(adapter watermill.LoggerAdapter, logger zerolog.Logger) *WatermillBroker {
	goChannel := gochannel.NewGoChannel(
		// Blocking until ack keeps deliveries from one publisher in order.
		gochannel.Config{OutputChannelBuffer: 256, BlockPublishUntilSubscriberAck: true},
		adapter,
	)

	return &WatermillBroker{
		pub:    goChannel,
		sub:    goChannel,
		logger: logger,
	}
}

func (b *WatermillBroker) Publish(ctx context.Context, d Delivery) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	return b.pub.Publish(Topic, msg)
}

func (b *WatermillBroker) Subscribe(ctx context.Context, handler Handler) error {
	messages, err := b.sub.Subscribe(ctx, Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			var d Delivery
			if err := json.Unmarshal(msg.Payload, &d); err != nil {
				b.logger.Error().Err(err).Str("msg_id", msg.UUID).Msg("dropping undecodable delivery")
				msg.Ack()
				continue
			}

			if err := handler(ctx, d); err != nil {
				b.logger.Error().Err(err).Str("msg_id", msg.UUID).Msg("delivery handler failed")
			}
			// GoChannel redelivers nacked messages forever; local delivery
			// failures are not retried.
			msg.Ack()
		}
		b.logger.Debug().Msg("subscription loop ended")
	}()

	return nil
}

func (b *WatermillBroker) Close() error {
	return b.sub.Close()
}
