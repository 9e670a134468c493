// Package dedup keeps short-lived claim markers in Redis so a notification is
// sent at most once per job.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "textdrop:notified:"

// ErrAlreadyClaimed is returned by Claim when another invocation holds the
// marker.
var ErrAlreadyClaimed = errors.New("marker already claimed")

// Marker claims and releases keys with SET NX.
type Marker struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewMarker returns a Marker whose claims expire after ttl.
func NewMarker(rdb redis.UniversalClient, ttl time.Duration) *Marker {
	return &Marker{rdb: rdb, prefix: defaultPrefix, ttl: ttl}
}

// Claim takes the marker for id. It returns ErrAlreadyClaimed when the
// marker exists.
func (m *Marker) Claim(ctx context.Context, id string) error {
	ok, err := m.rdb.SetNX(ctx, m.prefix+id, time.Now().UTC().Format(time.RFC3339), m.ttl).Result()
	if err != nil {
		return fmt.Errorf("claim %s: %w", id, err)
	}
	if !ok {
		return ErrAlreadyClaimed
	}
	return nil
}

// Release drops the marker so a later invocation can claim it again.
func (m *Marker) Release(ctx context.Context, id string) error {
	if err := m.rdb.Del(ctx, m.prefix+id).Err(); err != nil {
		return fmt.Errorf("release %s: %w", id, err)
	}
	return nil
}
