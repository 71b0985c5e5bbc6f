package ports

import (
	"context"
	"time"
)

// Port: TTL-keyed cache for rendered read-path payloads (list pages, stats).
// Implementations must treat a miss as (nil, false, nil), not an error.
type QueryCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	// Drop every cached payload; called after any distance write or cascade.
	Invalidate(ctx context.Context) error
}
