package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/order"
	"github.com/uhyunpark/hyperswap/pkg/util"
)

const DefaultChannelPrefix = "order-updates:"

var _ Forwarder = (*RedisRelay)(nil)

// relayEnvelope tags an update with the node that produced it.
type relayEnvelope struct {
	Origin string          `json:"origin"`
	Update json.RawMessage `json:"update"`
}

// RedisRelay carries status updates between replicas over Redis pub/sub.
// Each node forwards what its own pipeline publishes and fans out what the
// other nodes forward, so a listener may attach to any replica.
type RedisRelay struct {
	client redis.UniversalClient
	prefix string
	origin string
	logger *zap.SugaredLogger
}

// NewRedisRelay builds a relay. An empty origin gets a random node id.
func NewRedisRelay(client redis.UniversalClient, prefix, origin string, logger *zap.SugaredLogger) *RedisRelay {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	if origin == "" {
		origin = uuid.NewString()
	}
	return &RedisRelay{client: client, prefix: prefix, origin: origin, logger: util.OrNop(logger)}
}

// Channel returns the Redis channel carrying updates for orderID.
func (r *RedisRelay) Channel(orderID string) string { return r.prefix + orderID }

func (r *RedisRelay) Origin() string { return r.origin }

// Forward publishes the serialized update on the order's channel.
func (r *RedisRelay) Forward(ctx context.Context, u order.StatusUpdate, msg []byte) error {
	payload, err := json.Marshal(relayEnvelope{Origin: r.origin, Update: msg})
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.Channel(u.OrderID), payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Listen subscribes to every order channel and fans updates from other
// nodes out on registry until ctx ends.
func (r *RedisRelay) Listen(ctx context.Context, registry *Registry) error {
	sub := r.client.PSubscribe(ctx, r.prefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe: %w", err)
	}
	r.logger.Infow("redis_relay_listening", "pattern", r.prefix+"*", "origin", r.origin)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			r.relay(registry, m.Channel, []byte(m.Payload))
		}
	}
}

func (r *RedisRelay) relay(registry *Registry, channel string, payload []byte) int {
	var env relayEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		r.logger.Warnw("redis_relay_bad_message", "channel", channel, "err", err)
		return 0
	}
	if env.Origin == r.origin {
		return 0
	}
	u, err := order.DecodeStatusUpdate(env.Update)
	if err != nil {
		r.logger.Warnw("redis_relay_bad_message", "channel", channel, "err", err)
		return 0
	}
	if channel != r.Channel(u.OrderID) {
		r.logger.Warnw("redis_relay_channel_mismatch", "channel", channel, "order_id", u.OrderID)
		return 0
	}
	return registry.Fanout(u.OrderID, env.Update)
}
