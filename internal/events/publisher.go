// Package events fans staged domain events out to interested consumers.
// Publication happens strictly after the unit of work that produced the
// events has committed.
package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"gigpay/internal/domain"
	"gigpay/pkg/errors"
	"gigpay/pkg/logger"
)

// Publisher is the outbound port for domain-event fan-out. Failures are the
// broker's problem: callers log and move on, the committed ledger state is
// authoritative.
type Publisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Channel is the pub/sub channel all gigpay domain events go out on.
const Channel = "gigpay.events"

// RedisPublisher publishes events as JSON on a Redis pub/sub channel.
type RedisPublisher struct {
	client *redis.Client
	logger logger.Logger
}

func NewRedisPublisher(client *redis.Client, log logger.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, logger: log}
}

func (p *RedisPublisher) Publish(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to encode event")
	}
	if err := p.client.Publish(ctx, Channel, payload).Err(); err != nil {
		return errors.Wrap(err, "failed to publish event")
	}
	p.logger.Debug("Event published", map[string]interface{}{
		"event_id": event.ID,
		"type":     event.Type,
	})
	return nil
}

// NopPublisher discards events. Intended for tests.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event domain.Event) error { return nil }
