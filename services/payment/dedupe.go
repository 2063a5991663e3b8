package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const DefaultDedupeTTL = 72 * time.Hour

// EventDeduper remembers processed webhook event ids in redis so duplicate deliveries are dropped.
type EventDeduper struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewEventDeduper(rdb redis.Cmdable, ttl time.Duration) *EventDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &EventDeduper{rdb: rdb, ttl: ttl}
}

func dedupeKey(eventID string) string {
	return "webhook:event:" + eventID
}

// FirstDelivery claims the event id. It returns false when the event was already claimed.
func (d *EventDeduper) FirstDelivery(ctx context.Context, eventID string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, dedupeKey(eventID), "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim webhook event %s: %w", eventID, err)
	}
	return ok, nil
}

// Forget drops a claim so the gateway's redelivery gets processed after a failure.
func (d *EventDeduper) Forget(ctx context.Context, eventID string) error {
	if err := d.rdb.Del(ctx, dedupeKey(eventID)).Err(); err != nil {
		return fmt.Errorf("failed to release webhook event %s: %w", eventID, err)
	}
	return nil
}
