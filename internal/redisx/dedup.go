package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Dedup rejects already-applied events at the consumption layer. The bus is
// at-least-once and the stock handlers are not idempotent on their own, so a
// duplicate confirmation would double-decrement without this.
type Dedup struct {
	rdb     *redis.Client
	service string
	ttl     time.Duration
}

func NewDedup(rdb *redis.Client, service string, ttl time.Duration) *Dedup {
	return &Dedup{rdb: rdb, service: service, ttl: ttl}
}

// Seen marks eventID as applied and reports whether it already was. The
// SETNX claim and the check are one round trip.
//
// The claim lands before the handler applies the event. A consumer crash in
// between makes the redelivery look like a duplicate and the event is lost
// for up to the claim TTL; lost events surface as Order/Inventory divergence
// in the reconciliation logs. Claiming after apply would trade this for
// double-application on crash, which the stock decrement cannot tolerate.
func (d *Dedup) Seen(ctx context.Context, eventID string) (bool, error) {
	key := fmt.Sprintf(KeyDedup, d.service, eventID)
	ok, err := d.rdb.SetNX(ctx, key, "1", d.ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}
