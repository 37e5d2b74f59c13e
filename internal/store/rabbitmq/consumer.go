package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/chatmimic/internal/bot"
	"go.uber.org/zap"
)

var ErrDeliveriesClosed = errors.New("rabbitmq: delivery channel closed")

type EventHandler interface {
	Handle(ctx context.Context, ev bot.Event) []bot.Reply
}

type ReplyPublisher interface {
	PublishReply(ctx context.Context, r bot.Reply) error
}

// Consumer reads chat events from a queue, hands them to the bot one at a
// time and publishes whatever the bot answers.
type Consumer struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string

	handler EventHandler
	replies ReplyPublisher
	log     *zap.Logger
}

func NewConsumer(url, queue string, h EventHandler, replies ReplyPublisher, log *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	c := newConsumer(queue, h, replies, log)
	c.conn, c.ch = conn, ch
	return c, nil
}

func newConsumer(queue string, h EventHandler, replies ReplyPublisher, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{queue: queue, handler: h, replies: replies, log: log}
}

func (c *Consumer) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Run declares the event queue, starts consuming with manual acks and
// serves deliveries until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	if err := declareTopology(c.ch, c.queue); err != nil {
		return err
	}
	// events are applied in order, so keep one in flight
	if err := c.ch.Qos(1, 0, false); err != nil {
		return err
	}
	msgs, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	c.log.Info("consumer started", zap.String("queue", c.queue))
	return c.Serve(ctx, msgs)
}

// Serve processes deliveries sequentially. It returns nil when ctx is done
// and ErrDeliveriesClosed when the broker closes the channel.
func (c *Consumer) Serve(ctx context.Context, msgs <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			c.log.Info("consumer shutting down", zap.String("queue", c.queue))
			return nil
		case d, ok := <-msgs:
			if !ok {
				return ErrDeliveriesClosed
			}
			c.process(ctx, d)
		}
	}
}

func (c *Consumer) process(ctx context.Context, d amqp.Delivery) {
	var ev bot.Event
	if err := json.Unmarshal(d.Body, &ev); err != nil || ev.ChatID == 0 {
		c.log.Warn("bad event message", zap.Uint64("delivery_tag", d.DeliveryTag), zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	replies := c.handler.Handle(ctx, ev)
	for _, r := range replies {
		if err := c.replies.PublishReply(ctx, r); err != nil {
			c.log.Error("publish reply failed",
				zap.Int64("chat_id", ev.ChatID),
				zap.Int64("message_id", ev.MessageID),
				zap.Error(err),
			)
			_ = d.Nack(false, false)
			return
		}
	}

	if err := d.Ack(false); err != nil {
		c.log.Warn("ack failed", zap.Uint64("delivery_tag", d.DeliveryTag), zap.Error(err))
	}
	if cost := time.Since(start); cost > 2*time.Second {
		c.log.Info("slow event",
			zap.Int64("chat_id", ev.ChatID),
			zap.Int("replies", len(replies)),
			zap.Duration("cost", cost),
		)
	}
}
