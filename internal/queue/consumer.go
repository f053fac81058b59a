package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type MessageHandler interface {
	Handle(ctx context.Context, task Task) error
}

type ConsumerOptions struct {
	Stream           string
	Group            string
	Consumer         string
	DeadLetterStream string
	ClaimInterval    time.Duration
	MaxDeliveries    int64
}

type Consumer struct {
	client  *redis.Client
	opts    ConsumerOptions
	logger  zerolog.Logger
	handler MessageHandler
}

func NewConsumer(client *redis.Client, opts ConsumerOptions, logger zerolog.Logger, handler MessageHandler) *Consumer {
	if opts.ClaimInterval <= 0 {
		opts.ClaimInterval = 30 * time.Second
	}
	if opts.MaxDeliveries <= 0 {
		opts.MaxDeliveries = 5
	}
	return &Consumer{
		client:  client,
		opts:    opts,
		logger:  logger,
		handler: handler,
	}
}

// EnsureGroup creates the stream and consumer group if they do not exist.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.opts.Stream, c.opts.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (c *Consumer) Start(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.ClaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := c.read(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Error().Err(err).Msg("stream read error")
				time.Sleep(2 * time.Second)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.claimStalled(ctx); err != nil {
				c.logger.Error().Err(err).Msg("claim stalled messages failed")
			}
		default:
		}
	}
}

func (c *Consumer) read(ctx context.Context) error {
	result, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.opts.Group,
		Consumer: c.opts.Consumer,
		Streams:  []string{c.opts.Stream, ">"},
		Count:    10,
		Block:    5 * time.Second,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	for _, stream := range result {
		for _, msg := range stream.Messages {
			c.process(ctx, msg, 1)
		}
	}
	return nil
}

// process runs the handler and acks on success. A failed message stays
// pending and is retried by claimStalled.
func (c *Consumer) process(ctx context.Context, msg redis.XMessage, deliveries int64) {
	task, err := decodeTask(msg.Values, deliveries)
	if err != nil {
		c.logger.Error().Err(err).Str("message_id", msg.ID).Msg("dropping malformed message")
		c.deadLetter(ctx, msg, err)
		return
	}

	if err := c.handler.Handle(ctx, task); err != nil {
		c.logger.Error().
			Err(err).
			Str("message_id", msg.ID).
			Str("type", task.Type).
			Int("attempt", task.Attempt).
			Msg("handle message failed")
		return
	}
	c.ack(ctx, msg.ID)
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, c.opts.Stream, c.opts.Group, id).Err(); err != nil {
		c.logger.Error().Err(err).Str("message_id", id).Msg("ack failed")
	}
}

func (c *Consumer) claimStalled(ctx context.Context) error {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.opts.Stream,
		Group:  c.opts.Group,
		Idle:   c.opts.ClaimInterval,
		Start:  "-",
		End:    "+",
		Count:  10,
	}).Result()
	if err != nil {
		return err
	}

	for _, entry := range pending {
		msgs, err := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   c.opts.Stream,
			Group:    c.opts.Group,
			Consumer: c.opts.Consumer,
			MinIdle:  c.opts.ClaimInterval,
			Messages: []string{entry.ID},
		}).Result()
		if err != nil {
			c.logger.Error().Err(err).Str("message_id", entry.ID).Msg("claim error")
			continue
		}
		for _, msg := range msgs {
			if exhausted(entry.RetryCount, c.opts.MaxDeliveries) {
				c.logger.Warn().
					Str("message_id", msg.ID).
					Int64("deliveries", entry.RetryCount).
					Msg("moving message to dead-letter stream")
				c.deadLetter(ctx, msg, errors.New("max deliveries exceeded"))
				continue
			}
			// XCLAIM counts as one more delivery.
			c.process(ctx, msg, entry.RetryCount+1)
		}
	}
	return nil
}

// exhausted reports whether a message delivered deliveries times has used
// up its budget.
func exhausted(deliveries, max int64) bool {
	return deliveries >= max
}

func (c *Consumer) deadLetter(ctx context.Context, msg redis.XMessage, cause error) {
	if c.opts.DeadLetterStream != "" {
		values := make(map[string]any, len(msg.Values)+2)
		for k, v := range msg.Values {
			values[k] = v
		}
		values["source_id"] = msg.ID
		values["error"] = cause.Error()
		if err := c.client.XAdd(ctx, &redis.XAddArgs{Stream: c.opts.DeadLetterStream, Values: values}).Err(); err != nil {
			c.logger.Error().Err(err).Str("message_id", msg.ID).Msg("dead-letter publish failed")
			return
		}
	}
	c.ack(ctx, msg.ID)
}
