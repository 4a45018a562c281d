package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"bibleverse-backend/internal/database"
	"bibleverse-backend/internal/domain"
)

// CallEventBus fans call events out to every instance over Redis Pub/Sub
type CallEventBus struct {
	client *database.RedisClient
}

// NewCallEventBus creates a new CallEventBus
func NewCallEventBus(client *database.RedisClient) *CallEventBus {
	return &CallEventBus{client: client}
}

// CallEventChannel is the Pub/Sub channel carrying one call's events
func CallEventChannel(callID string) string {
	return fmt.Sprintf("call-events:%s", callID)
}

// Available reports whether Redis is currently usable
func (b *CallEventBus) Available() bool {
	return !b.client.IsDegraded()
}

// Publish sends event to the call's channel
func (b *CallEventBus) Publish(ctx context.Context, event *domain.CallEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal call event: %w", err)
	}

	if err := b.client.SafePublish(ctx, CallEventChannel(event.CallID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish call event: %w", err)
	}
	return nil
}

// Subscribe opens a subscription on the call's channel.
// It returns nil while Redis is degraded.
func (b *CallEventBus) Subscribe(ctx context.Context, callID string) *redis.PubSub {
	return b.client.SafeSubscribe(ctx, CallEventChannel(callID))
}

// DecodeCallEvent parses a Pub/Sub payload
func DecodeCallEvent(payload string) (*domain.CallEvent, error) {
	var event domain.CallEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal call event: %w", err)
	}
	return &event, nil
}
